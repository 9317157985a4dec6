// Package store defines the persistence contracts used by the pairing
// service: the library catalogue consulted when a responder accepts a
// request, and the history of finished pairing attempts.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a library does not exist.
var ErrNotFound = errors.New("not found")

// LibraryDescriptor is a library the local device can merge a peer into.
type LibraryDescriptor struct {
	UUID        uuid.UUID `json:"uuid" db:"id"`
	DisplayName string    `json:"display_name" db:"display_name"`
}

// PairingRecord is the persisted outcome of one finished pairing attempt.
type PairingRecord struct {
	PairingID     uint64    `json:"pairing_id" db:"pairing_id"`
	Role          string    `json:"role" db:"role"`
	PeerName      string    `json:"peer_name" db:"peer_name"`
	PeerOS        string    `json:"peer_os,omitempty" db:"peer_os"`
	Outcome       string    `json:"outcome" db:"outcome"`
	Cause         string    `json:"cause,omitempty" db:"cause"`
	OriginLibrary uuid.UUID `json:"origin_library,omitempty" db:"origin_library"`
	LibraryName   string    `json:"library_name,omitempty" db:"library_name"`
	StartedAt     time.Time `json:"started_at" db:"started_at"`
	EndedAt       time.Time `json:"ended_at" db:"ended_at"`
}

// LibraryStore is the library catalogue.
type LibraryStore interface {
	// ListLibraries returns every library ordered by display name.
	ListLibraries(ctx context.Context) ([]LibraryDescriptor, error)
	// ContainsLibrary reports whether member was already merged into library.
	ContainsLibrary(ctx context.Context, library, member uuid.UUID) (bool, error)
	// PutLibrary creates or renames a library.
	PutLibrary(ctx context.Context, lib LibraryDescriptor) error
	// AddMember records that member was merged into library.
	AddMember(ctx context.Context, library, member uuid.UUID) error
}

// HistoryStore records finished pairing attempts.
type HistoryStore interface {
	RecordPairing(ctx context.Context, rec PairingRecord) error
	// ListPairings returns the most recent records first. limit <= 0 means all.
	ListPairings(ctx context.Context, limit int) ([]PairingRecord, error)
	// PruneBefore deletes records that ended before cutoff.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Stores is the set of backends selected at startup.
type Stores struct {
	Libraries LibraryStore
	History   HistoryStore

	closer func() error
}

// NewStores bundles backends with an optional release function.
func NewStores(libs LibraryStore, history HistoryStore, closer func() error) *Stores {
	return &Stores{Libraries: libs, History: history, closer: closer}
}

// Close releases the underlying database handle, if any.
func (s *Stores) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer()
}

// Backend modes.
const (
	ModeFile    = "file"
	ModeSQLite  = "sqlite"
	ModeManaged = "managed"
)

// StoreConfig configures the store layer.
type StoreConfig struct {
	// Mode: "file" (default), "sqlite" or "managed" (Postgres).
	Mode string

	// Path is the JSON file (file mode) or database file (sqlite mode).
	Path string

	// PostgresDSN is the Postgres connection string used in managed mode.
	PostgresDSN string
}

// IsManaged returns true if the system is in managed (Postgres) mode.
func (c StoreConfig) IsManaged() bool {
	return c.PostgresDSN != "" && c.Mode == ModeManaged
}
