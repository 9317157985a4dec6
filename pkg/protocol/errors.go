package protocol

// Error codes returned in ErrorShape.Code.
const (
	ErrInvalidRequest    = "INVALID_REQUEST"
	ErrUnauthorized      = "UNAUTHORIZED"
	ErrNotFound          = "NOT_FOUND"
	ErrResourceExhausted = "RESOURCE_EXHAUSTED"
	ErrUnavailable       = "UNAVAILABLE"
	ErrInternal          = "INTERNAL"

	// Pairing errors.
	ErrDuplicateID       = "DUPLICATE_ID"
	ErrUnknownPairingID  = "UNKNOWN_PAIRING_ID"
	ErrInvalidTransition = "INVALID_TRANSITION"
	ErrLibraryNotFound   = "LIBRARY_NOT_FOUND"
	ErrInvalidProgress   = "INVALID_PROGRESS"
)
