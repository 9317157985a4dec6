package pairing

import "errors"

var (
	// ErrDuplicateID is returned when creating a session whose id is live or retired.
	ErrDuplicateID = errors.New("pairing id already in use")

	// ErrUnknownPairingID is returned for ids with no live session.
	ErrUnknownPairingID = errors.New("unknown pairing id")

	// ErrInvalidTransition is returned for events that are not legal from the current state.
	ErrInvalidTransition = errors.New("invalid pairing transition")

	// ErrLibraryNotFound is returned when an accept names a library outside the candidate set.
	ErrLibraryNotFound = errors.New("library not found")

	// ErrInvalidProgress is returned for sync progress outside 0..100.
	ErrInvalidProgress = errors.New("sync progress out of range")

	// ErrRegistryClosed is returned after Shutdown.
	ErrRegistryClosed = errors.New("pairing registry closed")
)
