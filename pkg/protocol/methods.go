package protocol

import "encoding/json"

// RPC method names.
const (
	MethodConnect = "connect"
	MethodHealth  = "health"

	MethodPairingCreate      = "pairing.create"
	MethodPairingMessage     = "pairing.message"
	MethodPairingDecide      = "pairing.decide"
	MethodPairingSync        = "pairing.sync"
	MethodPairingCancel      = "pairing.cancel"
	MethodPairingStatus      = "pairing.status"
	MethodPairingList        = "pairing.list"
	MethodPairingSubscribe   = "pairing.subscribe"
	MethodPairingUnsubscribe = "pairing.unsubscribe"
	MethodPairingHistory     = "pairing.history"

	MethodLibrariesList = "libraries.list"
	MethodLibrariesAdd  = "libraries.add"
)

// ConnectParams is the first request on every connection.
type ConnectParams struct {
	Token    string `json:"token,omitempty"`
	Protocol int    `json:"protocol,omitempty"`
	Client   string `json:"client,omitempty"`
}

// PairingStatusPayload is the payload of EventPairingStatus. State keeps
// the {"type","data"} shape produced by the pairing package.
type PairingStatusPayload struct {
	ID    uint64          `json:"id"`
	State json.RawMessage `json:"state"`
	Final bool            `json:"final,omitempty"`
}

// Decision values accepted by pairing.decide.
const (
	DecisionAccept = "accept"
	DecisionReject = "reject"
)

// Sync actions accepted by pairing.sync.
const (
	SyncBegin    = "begin"
	SyncProgress = "progress"
	SyncComplete = "complete"
)
