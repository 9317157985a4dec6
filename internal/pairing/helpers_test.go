package pairing

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/pairlink/internal/bus"
	"github.com/nextlevelbuilder/pairlink/internal/cron"
	"github.com/nextlevelbuilder/pairlink/internal/store"
)

type memLibraries struct {
	mu      sync.Mutex
	libs    []store.LibraryDescriptor
	members map[uuid.UUID][]uuid.UUID
}

func newMemLibraries(libs ...store.LibraryDescriptor) *memLibraries {
	return &memLibraries{libs: libs, members: make(map[uuid.UUID][]uuid.UUID)}
}

func (m *memLibraries) ListLibraries(context.Context) ([]store.LibraryDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.libs), nil
}

func (m *memLibraries) ContainsLibrary(_ context.Context, library, member uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.ContainsFunc(m.libs, func(l store.LibraryDescriptor) bool { return l.UUID == library }) {
		return false, fmt.Errorf("library %s: %w", library, store.ErrNotFound)
	}
	return slices.Contains(m.members[library], member), nil
}

func (m *memLibraries) PutLibrary(_ context.Context, lib store.LibraryDescriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.libs = append(m.libs, lib)
	return nil
}

func (m *memLibraries) AddMember(_ context.Context, library, member uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[library] = append(m.members[library], member)
	return nil
}

type memHistory struct {
	mu   sync.Mutex
	recs []store.PairingRecord
}

func (h *memHistory) RecordPairing(_ context.Context, rec store.PairingRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recs = append(h.recs, rec)
	return nil
}

func (h *memHistory) ListPairings(context.Context, int) ([]store.PairingRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.recs), nil
}

func (h *memHistory) PruneBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type harness struct {
	reg      *Registry
	libs     *memLibraries
	history  *memHistory
	decision *DecisionGateway
	feed     *SyncProgressFeed
	inbox    *PeerInbox

	photos  store.LibraryDescriptor
	archive store.LibraryDescriptor
}

func newHarness(t *testing.T, timeouts Timeouts) *harness {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Timeouts = timeouts
	cfg.HistoryRetry = cron.RetryConfig{MaxRetries: 0}

	h := &harness{
		reg:     NewRegistry(cfg),
		history: &memHistory{},
		photos:  store.LibraryDescriptor{UUID: uuid.New(), DisplayName: "Photos"},
		archive: store.LibraryDescriptor{UUID: uuid.New(), DisplayName: "Archive"},
	}
	h.libs = newMemLibraries(h.photos, h.archive)
	h.reg.SetHistory(h.history)
	h.decision = NewDecisionGateway(h.reg, h.libs)
	h.feed = NewSyncProgressFeed(h.reg, h.libs)
	h.inbox = NewPeerInbox(h.reg, h.feed, time.Minute, 100)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h.reg.Shutdown(ctx)
	})
	return h
}

var testPeer = Peer{Name: "pixel"}

// responderAtDecision creates a responder session and delivers the
// originator's request, leaving it in PairingDecisionRequest.
func (h *harness) responderAtDecision(t *testing.T, id ID, origin uuid.UUID) *Session {
	t.Helper()
	ctx := context.Background()
	s, err := h.reg.Create(ctx, id, RoleResponder, testPeer)
	if err != nil {
		t.Fatalf("Create(%d): %v", id, err)
	}
	st, err := h.inbox.Deliver(ctx, PeerMessage{PairingID: id, Type: MsgRequest, Library: origin})
	if err != nil {
		t.Fatalf("deliver request: %v", err)
	}
	if st.Kind != KindPairingDecisionRequest {
		t.Fatalf("state = %s, want PairingDecisionRequest", st)
	}
	return s
}

// collect reads sub until it closes.
func collect(t *testing.T, sub *bus.Subscription[State]) []State {
	t.Helper()
	var got []State
	timeout := time.After(5 * time.Second)
	for {
		select {
		case st, ok := <-sub.C():
			if !ok {
				return got
			}
			got = append(got, st)
		case <-timeout:
			t.Fatalf("subscription did not close, got %v", got)
		}
	}
}

func next1(t *testing.T, sub *bus.Subscription[State]) State {
	t.Helper()
	select {
	case st, ok := <-sub.C():
		if !ok {
			t.Fatal("subscription closed")
		}
		return st
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for state")
	}
	return State{}
}

func (h *harness) records() []store.PairingRecord {
	recs, _ := h.history.ListPairings(context.Background(), 0)
	return recs
}
