package pairing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/pairlink/internal/store"
)

// SyncProgressFeed forwards the library store's initial-sync notifications
// into sessions.
type SyncProgressFeed struct {
	reg  *Registry
	libs store.LibraryStore
}

// NewSyncProgressFeed creates a feed. libs may be nil; when set, a pairing
// completed on the responder side records the originator's library as a
// member of the selected one.
func NewSyncProgressFeed(reg *Registry, libs store.LibraryStore) *SyncProgressFeed {
	return &SyncProgressFeed{reg: reg, libs: libs}
}

// Begin moves PairingInProgress to InitialSyncProgress{0}.
func (f *SyncProgressFeed) Begin(ctx context.Context, id ID) (State, error) {
	return f.reg.Advance(ctx, id, SyncStarted())
}

// ReportProgress applies a percent update. Called while the session is
// still in PairingInProgress it begins the sync first. Updates that do not
// increase the percent are ignored.
func (f *SyncProgressFeed) ReportProgress(ctx context.Context, id ID, percent int) (State, error) {
	if percent < 0 || percent > 100 {
		return State{}, fmt.Errorf("%w: %d", ErrInvalidProgress, percent)
	}
	s, err := f.reg.Session(id)
	if err != nil {
		return State{}, err
	}
	if s.State().Kind == KindPairingInProgress {
		st, err := s.Advance(ctx, SyncStarted())
		if err != nil && !(errors.Is(err, ErrInvalidTransition) && st.Kind == KindInitialSyncProgress) {
			return st, err
		}
	}
	return s.Advance(ctx, SyncProgress(percent))
}

// Complete finishes the pairing. The sync must have reached 100%.
func (f *SyncProgressFeed) Complete(ctx context.Context, id ID) (State, error) {
	s, err := f.reg.Session(id)
	if err != nil {
		return State{}, err
	}
	st, err := s.Advance(ctx, SyncComplete())
	if err != nil {
		return st, err
	}
	f.recordMember(ctx, s.View())
	return st, nil
}

func (f *SyncProgressFeed) recordMember(ctx context.Context, v View) {
	if f.libs == nil || v.Role != RoleResponder || v.LibraryID == uuid.Nil || v.OriginLibrary == uuid.Nil {
		return
	}
	if err := f.libs.AddMember(ctx, v.LibraryID, v.OriginLibrary); err != nil {
		slog.Warn("record library member failed", "id", v.ID, "library", v.LibraryID, "member", v.OriginLibrary, "error", err)
	}
}
