package pairing

import (
	"fmt"

	"github.com/google/uuid"
)

// EventKind names an input to the session state machine.
type EventKind string

const (
	// EventRequestSent: the originator sent its pairing request.
	EventRequestSent EventKind = "request.sent"
	// EventRequestReceived: the responder received the request.
	EventRequestReceived EventKind = "request.received"
	// EventDecision: accept or reject from whichever side is deciding.
	EventDecision EventKind = "decision"
	// EventSyncStarted: the library store began the initial sync.
	EventSyncStarted EventKind = "sync.started"
	// EventSyncProgress: a progress update in percent.
	EventSyncProgress EventKind = "sync.progress"
	// EventSyncComplete: the library store finished the initial sync.
	EventSyncComplete EventKind = "sync.complete"
	// EventCancel: user abort, closed dialog or peer disconnect.
	EventCancel EventKind = "cancel"
	// EventTimeout: a state timer fired. Only meaningful while the
	// session is still in TimeoutOf.
	EventTimeout EventKind = "timeout"
)

// Event is a tagged input to Session.Advance. Only the fields relevant to
// Kind are read.
type Event struct {
	Kind EventKind

	// EventRequestReceived: the library the originator offers.
	OriginLibrary uuid.UUID

	// EventDecision.
	Decision      Decision
	LibraryName   string
	AlreadyExists bool

	// EventSyncProgress.
	Percent int

	// EventCancel.
	Cause Cause

	// EventTimeout.
	TimeoutOf Kind
}

func RequestSent() Event { return Event{Kind: EventRequestSent} }

func RequestReceived(originLibrary uuid.UUID) Event {
	return Event{Kind: EventRequestReceived, OriginLibrary: originLibrary}
}

// DecisionEvent builds a decision event. For an accept, libraryName is the
// selected library's display name and alreadyExists reports whether that
// library already contains the originator's library.
func DecisionEvent(d Decision, libraryName string, alreadyExists bool) Event {
	return Event{Kind: EventDecision, Decision: d, LibraryName: libraryName, AlreadyExists: alreadyExists}
}

func SyncStarted() Event             { return Event{Kind: EventSyncStarted} }
func SyncProgress(percent int) Event { return Event{Kind: EventSyncProgress, Percent: percent} }
func SyncComplete() Event            { return Event{Kind: EventSyncComplete} }

func Cancel(cause Cause) Event {
	if cause == "" {
		cause = CauseCancelled
	}
	return Event{Kind: EventCancel, Cause: cause}
}

func timeoutEvent(of Kind) Event { return Event{Kind: EventTimeout, TimeoutOf: of} }

func (e Event) String() string {
	switch e.Kind {
	case EventDecision:
		if e.Decision.Accept {
			return fmt.Sprintf("%s{accept %s}", e.Kind, e.Decision.LibraryID)
		}
		return fmt.Sprintf("%s{reject}", e.Kind)
	case EventSyncProgress:
		return fmt.Sprintf("%s{%d}", e.Kind, e.Percent)
	case EventCancel:
		return fmt.Sprintf("%s{%s}", e.Kind, e.Cause)
	case EventTimeout:
		return fmt.Sprintf("%s{%s}", e.Kind, e.TimeoutOf)
	}
	return string(e.Kind)
}

// next computes the transition for ev from cur. changed is false when the
// event is accepted but is a no-op (a stale progress update).
func next(cur State, ev Event) (to State, changed bool, err error) {
	if cur.Terminal() {
		return cur, false, ErrUnknownPairingID
	}

	switch ev.Kind {
	case EventCancel:
		return PairingRejected(ev.Cause), true, nil

	case EventTimeout:
		if cur.Kind != ev.TimeoutOf {
			return cur, false, fmt.Errorf("%w: stale %s timer in %s", ErrInvalidTransition, ev.TimeoutOf, cur)
		}
		return PairingRejected(CauseTimeout), true, nil

	case EventRequestSent:
		if cur.Kind == KindEstablishingConnection {
			return PairingRequested(), true, nil
		}

	case EventRequestReceived:
		if cur.Kind == KindPairingRequested {
			return PairingDecisionRequest(), true, nil
		}

	case EventDecision:
		if cur.Kind == KindPairingDecisionRequest {
			switch {
			case !ev.Decision.Accept:
				return PairingRejected(CauseRejected), true, nil
			case ev.AlreadyExists:
				return LibraryAlreadyExists(), true, nil
			default:
				return PairingInProgress(ev.LibraryName), true, nil
			}
		}

	case EventSyncStarted:
		if cur.Kind == KindPairingInProgress {
			return InitialSyncProgress(0), true, nil
		}

	case EventSyncProgress:
		if ev.Percent < 0 || ev.Percent > 100 {
			return cur, false, fmt.Errorf("%w: %d", ErrInvalidProgress, ev.Percent)
		}
		if cur.Kind == KindInitialSyncProgress {
			if ev.Percent <= cur.Percent {
				return cur, false, nil
			}
			return InitialSyncProgress(ev.Percent), true, nil
		}

	case EventSyncComplete:
		if cur.Kind == KindInitialSyncProgress && cur.Percent == 100 {
			return PairingComplete(), true, nil
		}
	}

	return cur, false, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ev, cur)
}
