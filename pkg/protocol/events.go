package protocol

// WebSocket event names pushed from server to client.
const (
	// EventPairingStatus carries PairingStatusPayload for every transition
	// of a subscribed session.
	EventPairingStatus = "pairing.status"
	EventShutdown      = "shutdown"
)
