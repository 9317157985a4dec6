package pairing

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Session is one pairing attempt. All writers go through Advance, which
// holds the session lock while a transition is applied and published.
type Session struct {
	id        ID
	role      Role
	peer      Peer
	createdAt time.Time
	reg       *Registry

	mu        sync.Mutex
	state     State
	origin    uuid.UUID
	library   string
	libraryID uuid.UUID
	updatedAt time.Time
	timer     *time.Timer
	span      trace.Span
}

func (s *Session) ID() ID     { return s.id }
func (s *Session) Role() Role { return s.role }
func (s *Session) Peer() Peer { return s.peer }

// State returns the current state. It only waits for a transition that is
// already being applied.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View returns a snapshot of the session.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() View {
	return View{
		ID:            s.id,
		Role:          s.role,
		Peer:          s.peer,
		State:         s.state,
		OriginLibrary: s.origin,
		LibraryID:     s.libraryID,
		LibraryName:   s.library,
		CreatedAt:     s.createdAt,
		UpdatedAt:     s.updatedAt,
	}
}

// Advance applies ev. On success the new state has been published to the
// status broadcaster before Advance returns. A progress update that does
// not increase the percent returns the current state and a nil error
// without publishing anything.
func (s *Session) Advance(ctx context.Context, ev Event) (State, error) {
	s.mu.Lock()
	cur := s.state
	to, changed, err := next(cur, ev)
	if err != nil || !changed {
		s.mu.Unlock()
		if err != nil && !errors.Is(err, ErrUnknownPairingID) {
			slog.Debug("pairing event refused", "id", s.id, "state", cur.String(), "event", ev.String(), "error", err)
		}
		return cur, err
	}

	if ev.Kind == EventRequestReceived && ev.OriginLibrary != uuid.Nil {
		s.origin = ev.OriginLibrary
	}
	if to.Kind == KindPairingInProgress {
		s.library = to.LibraryName
		s.libraryID = ev.Decision.LibraryID
	}
	s.state = to
	s.updatedAt = time.Now().UTC()
	terminal := to.Terminal()

	s.reg.publish(s.viewLocked(), terminal)
	s.traceLocked(cur, to, ev)
	if terminal {
		s.stopTimerLocked()
	} else if to.Kind != cur.Kind {
		s.armLocked()
	}
	view := s.viewLocked()
	s.mu.Unlock()

	slog.Info("pairing transition",
		"id", s.id,
		"role", s.role,
		"event", ev.String(),
		"from", cur.String(),
		"to", to.String(),
	)

	if terminal {
		s.reg.retire(s, view)
	}
	return to, nil
}

// armLocked replaces the state timer with one for the current state, if
// that state has a configured upper bound.
func (s *Session) armLocked() {
	s.stopTimerLocked()
	kind := s.state.Kind
	d := s.reg.Timeouts().For(kind)
	if d <= 0 {
		return
	}
	s.timer = time.AfterFunc(d, func() {
		if _, err := s.Advance(context.Background(), timeoutEvent(kind)); err == nil {
			slog.Warn("pairing timed out", "id", s.id, "state", string(kind), "after", d)
		}
	})
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) traceLocked(from, to State, ev Event) {
	if s.span == nil {
		return
	}
	s.span.AddEvent("pairing.transition", trace.WithAttributes(
		attribute.String("pairing.event", string(ev.Kind)),
		attribute.String("pairing.from", string(from.Kind)),
		attribute.String("pairing.to", string(to.Kind)),
	))
	if !to.Terminal() {
		return
	}
	s.span.SetAttributes(attribute.String("pairing.outcome", string(to.Kind)))
	switch to.Kind {
	case KindPairingComplete:
		s.span.SetStatus(codes.Ok, "")
	case KindPairingRejected:
		s.span.SetAttributes(attribute.String("pairing.cause", string(to.Cause)))
		if to.Cause == CauseTimeout || to.Cause == CauseDisconnected {
			s.span.SetStatus(codes.Error, string(to.Cause))
		}
	}
	s.span.End()
	s.span = nil
}
