package pairing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/pairlink/internal/store"
)

// DecisionGateway accepts the local user's answer to a pairing request and
// resolves it against the library store before it reaches the session.
type DecisionGateway struct {
	reg  *Registry
	libs store.LibraryStore
}

func NewDecisionGateway(reg *Registry, libs store.LibraryStore) *DecisionGateway {
	return &DecisionGateway{reg: reg, libs: libs}
}

// Candidates returns the libraries the user may merge the peer into. The
// first entry is the default selection; an empty list leaves only Reject.
func (g *DecisionGateway) Candidates(ctx context.Context) ([]store.LibraryDescriptor, error) {
	if g.libs == nil {
		return nil, nil
	}
	return g.libs.ListLibraries(ctx)
}

// SubmitDecision applies d to the session id. It fails with
// ErrUnknownPairingID, ErrInvalidTransition when the session is not waiting
// for a decision, or ErrLibraryNotFound when an accept names a library the
// store does not have.
func (g *DecisionGateway) SubmitDecision(ctx context.Context, id ID, d Decision) error {
	s, err := g.reg.Session(id)
	if err != nil {
		return err
	}
	if cur := s.State(); cur.Kind != KindPairingDecisionRequest {
		if cur.Terminal() {
			return fmt.Errorf("%w: %s", ErrUnknownPairingID, id)
		}
		return fmt.Errorf("%w: decision in %s", ErrInvalidTransition, cur)
	}

	if !d.Accept {
		_, err := s.Advance(ctx, DecisionEvent(d, "", false))
		return err
	}

	lib, err := g.resolve(ctx, d.LibraryID)
	if err != nil {
		return err
	}
	exists, err := g.alreadyExists(ctx, lib.UUID, s.View().OriginLibrary)
	if err != nil {
		return err
	}
	_, err = s.Advance(ctx, DecisionEvent(d, lib.DisplayName, exists))
	return err
}

func (g *DecisionGateway) resolve(ctx context.Context, libraryID uuid.UUID) (store.LibraryDescriptor, error) {
	libs, err := g.Candidates(ctx)
	if err != nil {
		return store.LibraryDescriptor{}, fmt.Errorf("list libraries: %w", err)
	}
	for _, lib := range libs {
		if lib.UUID == libraryID {
			return lib, nil
		}
	}
	return store.LibraryDescriptor{}, fmt.Errorf("%w: %s", ErrLibraryNotFound, libraryID)
}

// alreadyExists reports whether selected already holds the originator's
// library, either as the same library or as a previously merged member.
func (g *DecisionGateway) alreadyExists(ctx context.Context, selected, origin uuid.UUID) (bool, error) {
	if origin == uuid.Nil {
		return false, nil
	}
	if selected == origin {
		return true, nil
	}
	ok, err := g.libs.ContainsLibrary(ctx, selected, origin)
	if errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("%w: %s", ErrLibraryNotFound, selected)
	}
	if err != nil {
		slog.Warn("library membership lookup failed", "library", selected, "member", origin, "error", err)
		return false, fmt.Errorf("check library %s: %w", selected, err)
	}
	return ok, nil
}
