package pairing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/nextlevelbuilder/pairlink/internal/bus"
	"github.com/nextlevelbuilder/pairlink/internal/cron"
	"github.com/nextlevelbuilder/pairlink/internal/store"
)

// Timeouts bound how long a session may wait in the states that depend on
// an unresponsive peer. Zero disables the bound.
type Timeouts struct {
	Connect time.Duration // EstablishingConnection
	Request time.Duration // PairingRequested
}

// For returns the bound for kind, or zero when kind has none.
func (t Timeouts) For(kind Kind) time.Duration {
	switch kind {
	case KindEstablishingConnection:
		return t.Connect
	case KindPairingRequested:
		return t.Request
	}
	return 0
}

// Config configures a Registry.
type Config struct {
	Timeouts Timeouts

	// SubscriberQueue is the per-subscriber status queue size.
	SubscriberQueue int

	// Retired ids are remembered individually for RetiredTTL (at most
	// RetiredMax of them). Once one is forgotten, every id at or below it is
	// refused by Create, so no id is ever reused.
	RetiredTTL time.Duration
	RetiredMax int

	// HistoryRetry controls retries when recording finished sessions.
	HistoryRetry cron.RetryConfig
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeouts: Timeouts{
			Connect: 30 * time.Second,
			Request: 2 * time.Minute,
		},
		SubscriberQueue: bus.DefaultQueueCap,
		RetiredTTL:      24 * time.Hour,
		RetiredMax:      10000,
		HistoryRetry:    cron.DefaultRetryConfig(),
	}
}

// Mirror receives every published view, e.g. to forward status to other
// processes. Implementations must not block.
type Mirror interface {
	MirrorStatus(v View)
}

// MirrorFunc adapts a function to Mirror.
type MirrorFunc func(v View)

func (f MirrorFunc) MirrorStatus(v View) { f(v) }

// Registry is the process-scoped table of live pairing sessions. It is
// constructed at startup and drained with Shutdown.
type Registry struct {
	cfg    Config
	status *bus.Broadcaster[ID, State]

	mu       sync.RWMutex
	sessions map[ID]*Session
	retired  *expirable.LRU[ID, Kind]
	lastID   uint64
	closed   bool
	timeouts Timeouts

	// forgotten is the highest retired id evicted from retired.
	forgotten atomic.Uint64

	tracer  trace.Tracer
	history store.HistoryStore
	mirror  Mirror

	pending sync.WaitGroup
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.RetiredMax <= 0 {
		cfg.RetiredMax = 10000
	}
	r := &Registry{
		cfg:      cfg,
		status:   bus.New[ID, State](cfg.SubscriberQueue),
		sessions: make(map[ID]*Session),
		timeouts: cfg.Timeouts,
		tracer:   noop.NewTracerProvider().Tracer("pairlink"),
	}
	r.retired = expirable.NewLRU[ID, Kind](cfg.RetiredMax, r.forget, cfg.RetiredTTL)
	return r
}

// forget runs when a retired id leaves the LRU, by eviction or expiry.
func (r *Registry) forget(id ID, _ Kind) {
	for {
		cur := r.forgotten.Load()
		if uint64(id) <= cur || r.forgotten.CompareAndSwap(cur, uint64(id)) {
			return
		}
	}
}

// SetTracer sets the tracer used for per-session spans.
func (r *Registry) SetTracer(t trace.Tracer) {
	if t == nil {
		return
	}
	r.mu.Lock()
	r.tracer = t
	r.mu.Unlock()
}

// SetHistory attaches a store that records every finished session.
func (r *Registry) SetHistory(h store.HistoryStore) {
	r.mu.Lock()
	r.history = h
	r.mu.Unlock()
}

// SetMirror attaches a status mirror.
func (r *Registry) SetMirror(m Mirror) {
	r.mu.Lock()
	r.mirror = m
	r.mu.Unlock()
}

// SetTimeouts replaces the state bounds. Timers already armed keep their
// original duration.
func (r *Registry) SetTimeouts(t Timeouts) {
	r.mu.Lock()
	r.timeouts = t
	r.mu.Unlock()
	slog.Info("pairing timeouts updated", "connect", t.Connect, "request", t.Request)
}

// Timeouts returns the current state bounds.
func (r *Registry) Timeouts() Timeouts {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.timeouts
}

// Allocate returns a fresh id that is neither live nor retired.
func (r *Registry) Allocate() ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		r.lastID++
		id := ID(r.lastID)
		if _, live := r.sessions[id]; live {
			continue
		}
		if r.retired.Contains(id) {
			continue
		}
		return id
	}
}

// CreateOption customizes a new session.
type CreateOption func(*Session)

// WithOriginLibrary records the library the originator offers.
func WithOriginLibrary(id uuid.UUID) CreateOption {
	return func(s *Session) { s.origin = id }
}

// Create starts a session in EstablishingConnection. It fails with
// ErrDuplicateID when id is live or was used by a finished session. When
// the retired-id memory has dropped a finished id, every id at or below it
// is refused as well, even one that was never used.
func (r *Registry) Create(ctx context.Context, id ID, role Role, peer Peer, opts ...CreateOption) (*Session, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("invalid pairing role %q", role)
	}

	now := time.Now().UTC()
	s := &Session{
		id:        id,
		role:      role,
		peer:      peer,
		createdAt: now,
		updatedAt: now,
		reg:       r,
		state:     EstablishingConnection(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	if _, live := r.sessions[id]; live {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	if r.retired.Contains(id) {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s (finished)", ErrDuplicateID, id)
	}
	if f := r.forgotten.Load(); f > 0 && uint64(id) <= f {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s (at or below forgotten id %d)", ErrDuplicateID, id, f)
	}
	if err := r.status.Open(id, s.state); err != nil {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	r.sessions[id] = s
	if uint64(id) > r.lastID {
		r.lastID = uint64(id)
	}
	tracer := r.tracer
	mirror := r.mirror
	r.mu.Unlock()

	_, span := tracer.Start(ctx, "pairing.session",
		trace.WithNewRoot(),
		trace.WithAttributes(
			attribute.Int64("pairing.id", int64(id)),
			attribute.String("pairing.role", string(role)),
			attribute.String("pairing.peer", peer.Name),
		),
	)

	s.mu.Lock()
	if s.state.Terminal() {
		span.End()
	} else {
		s.span = span
		s.armLocked()
	}
	view := s.viewLocked()
	s.mu.Unlock()

	if mirror != nil {
		mirror.MirrorStatus(view)
	}

	slog.Info("pairing session created", "id", id, "role", role, "peer", peer.Name)
	return s, nil
}

// Get returns a snapshot of a live session.
func (r *Registry) Get(id ID) (View, bool) {
	s, err := r.lookup(id)
	if err != nil {
		return View{}, false
	}
	return s.View(), true
}

// Session returns the handle of a live session.
func (r *Registry) Session(id ID) (*Session, error) {
	return r.lookup(id)
}

// List returns snapshots of every live session ordered by id.
func (r *Registry) List() []View {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	views := make([]View, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, s.View())
	}
	sortViews(views)
	return views
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Advance applies ev to the session with the given id.
func (r *Registry) Advance(ctx context.Context, id ID, ev Event) (State, error) {
	s, err := r.lookup(id)
	if err != nil {
		return State{}, err
	}
	return s.Advance(ctx, ev)
}

// Cancel ends a non-terminal session with PairingRejected.
func (r *Registry) Cancel(ctx context.Context, id ID, cause Cause) (State, error) {
	return r.Advance(ctx, id, Cancel(cause))
}

// Subscribe streams the state of id, starting with the current state and
// ending after the terminal state.
func (r *Registry) Subscribe(ctx context.Context, id ID) (*bus.Subscription[State], error) {
	if _, err := r.lookup(id); err != nil {
		return nil, err
	}
	sub, err := r.status.Subscribe(ctx, id)
	switch {
	case errors.Is(err, bus.ErrNoTopic):
		return nil, fmt.Errorf("%w: %s", ErrUnknownPairingID, id)
	case errors.Is(err, bus.ErrClosed):
		return nil, ErrRegistryClosed
	case err != nil:
		return nil, err
	}
	return sub, nil
}

// Remove drops a session. A session that is not yet terminal is cancelled
// first so its subscribers see PairingRejected. Removing an absent id is a
// no-op.
func (r *Registry) Remove(id ID) {
	s, err := r.lookup(id)
	if err != nil {
		return
	}
	if _, err := s.Advance(context.Background(), Cancel(CauseCancelled)); err != nil {
		r.retire(s, s.View())
	}
}

// Shutdown cancels every live session, waits for history writes and closes
// the broadcaster.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.Advance(ctx, Cancel(CauseShutdown))
	}

	done := make(chan struct{})
	go func() {
		r.pending.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	r.status.Close()
	slog.Info("pairing registry stopped", "cancelled", len(sessions))
	return err
}

func (r *Registry) lookup(id ID) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPairingID, id)
	}
	return s, nil
}

// publish is called by a session with its lock held.
func (r *Registry) publish(v View, final bool) {
	r.status.Publish(v.ID, v.State, final)
	r.mu.RLock()
	mirror := r.mirror
	r.mu.RUnlock()
	if mirror != nil {
		mirror.MirrorStatus(v)
	}
}

// retire removes a terminal session and records it in history.
func (r *Registry) retire(s *Session, v View) {
	r.mu.Lock()
	if cur, ok := r.sessions[s.id]; !ok || cur != s {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, s.id)
	r.retired.Add(s.id, v.State.Kind)
	history := r.history
	r.pending.Add(1)
	r.mu.Unlock()

	slog.Debug("pairing session removed", "id", s.id, "outcome", v.State.String())

	go func() {
		defer r.pending.Done()
		if history == nil {
			return
		}
		r.recordHistory(history, v)
	}()
}

func (r *Registry) recordHistory(h store.HistoryStore, v View) {
	rec := store.PairingRecord{
		PairingID:     uint64(v.ID),
		Role:          string(v.Role),
		PeerName:      v.Peer.Name,
		Outcome:       string(v.State.Kind),
		Cause:         string(v.State.Cause),
		OriginLibrary: v.OriginLibrary,
		LibraryName:   v.LibraryName,
		StartedAt:     v.CreatedAt,
		EndedAt:       v.UpdatedAt,
	}
	if v.Peer.OS != nil {
		rec.PeerOS = string(*v.Peer.OS)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, attempts, err := cron.ExecuteWithRetry(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, h.RecordPairing(ctx, rec)
	}, r.cfg.HistoryRetry)
	if err != nil {
		slog.Warn("pairing history write failed", "id", v.ID, "attempts", attempts, "error", err)
	}
}
