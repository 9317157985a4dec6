// Package pairing implements the device-to-device library pairing protocol.
//
// A pairing attempt is a Session driven through a fixed state graph:
//
//	EstablishingConnection -> PairingRequested -> PairingDecisionRequest
//	  -> PairingRejected | LibraryAlreadyExists
//	  -> PairingInProgress -> InitialSyncProgress{0..100} -> PairingComplete
//
// Any non-terminal state can be cancelled (user abort, peer disconnect,
// timeout), which always resolves to PairingRejected.
//
// The Registry owns every live session, serializes writers per session and
// publishes each transition to a status broadcaster. DecisionGateway,
// SyncProgressFeed and PeerInbox are the entry points used by the
// presentation layer, the library store and the transport respectively.
package pairing

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ID identifies one pairing attempt for the lifetime of a Registry.
type ID uint64

func (id ID) String() string { return strconv.FormatUint(uint64(id), 10) }

// ParseID parses the decimal form produced by ID.String.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid pairing id %q", s)
	}
	return ID(v), nil
}

// Role is fixed at session creation and never flips.
type Role string

const (
	RoleOriginator Role = "originator"
	RoleResponder  Role = "responder"
)

func (r Role) Valid() bool {
	return r == RoleOriginator || r == RoleResponder
}

// OperatingSystem is the peer's self-reported platform.
type OperatingSystem string

const (
	OSWindows OperatingSystem = "Windows"
	OSLinux   OperatingSystem = "Linux"
	OSMacOS   OperatingSystem = "MacOS"
	OSIos     OperatingSystem = "Ios"
	OSAndroid OperatingSystem = "Android"
	OSOther   OperatingSystem = "Other"
)

// Peer describes the remote device. Identity is the transport's concern.
type Peer struct {
	Name string           `json:"name"`
	OS   *OperatingSystem `json:"os,omitempty"`
}

// Decision is the responder's answer to a pairing request.
type Decision struct {
	Accept    bool      `json:"accept"`
	LibraryID uuid.UUID `json:"library_id,omitempty"`
}

func Accept(libraryID uuid.UUID) Decision { return Decision{Accept: true, LibraryID: libraryID} }
func Reject() Decision                    { return Decision{} }

// View is a read-only snapshot of a session.
type View struct {
	ID            ID        `json:"id"`
	Role          Role      `json:"role"`
	Peer          Peer      `json:"peer"`
	State         State     `json:"state"`
	OriginLibrary uuid.UUID `json:"origin_library,omitempty"`
	LibraryID     uuid.UUID `json:"library_id,omitempty"`
	LibraryName   string    `json:"library_name,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func sortViews(views []View) {
	slices.SortFunc(views, func(a, b View) int { return cmp.Compare(a.ID, b.ID) })
}
