package pairing

import (
	"encoding/json"
	"fmt"
)

// Kind is the discriminator of a pairing State.
type Kind string

const (
	KindEstablishingConnection Kind = "EstablishingConnection"
	KindPairingRequested       Kind = "PairingRequested"
	KindPairingDecisionRequest Kind = "PairingDecisionRequest"
	KindPairingInProgress      Kind = "PairingInProgress"
	KindInitialSyncProgress    Kind = "InitialSyncProgress"
	KindPairingComplete        Kind = "PairingComplete"
	KindPairingRejected        Kind = "PairingRejected"
	KindLibraryAlreadyExists   Kind = "LibraryAlreadyExists"
)

// Kinds returns every state kind in protocol order.
func Kinds() []Kind {
	return []Kind{
		KindEstablishingConnection,
		KindPairingRequested,
		KindPairingDecisionRequest,
		KindPairingInProgress,
		KindInitialSyncProgress,
		KindPairingComplete,
		KindPairingRejected,
		KindLibraryAlreadyExists,
	}
}

// Terminal reports whether no further transition can leave this kind.
func (k Kind) Terminal() bool {
	switch k {
	case KindPairingComplete, KindPairingRejected, KindLibraryAlreadyExists:
		return true
	case KindEstablishingConnection, KindPairingRequested, KindPairingDecisionRequest,
		KindPairingInProgress, KindInitialSyncProgress:
		return false
	}
	panic(fmt.Sprintf("pairing: unclassified state kind %q", string(k)))
}

// Cause explains why a session ended in PairingRejected. It is metadata only:
// every cause surfaces as the same PairingRejected state.
type Cause string

const (
	CauseRejected     Cause = "rejected"
	CauseCancelled    Cause = "cancelled"
	CauseDisconnected Cause = "disconnected"
	CauseTimeout      Cause = "timeout"
	CauseShutdown     Cause = "shutdown"
)

// State is a tagged union over the pairing protocol states.
// LibraryName is set only for PairingInProgress, Percent only for
// InitialSyncProgress and Cause only for PairingRejected.
type State struct {
	Kind        Kind
	LibraryName string
	Percent     int
	Cause       Cause
}

func EstablishingConnection() State { return State{Kind: KindEstablishingConnection} }
func PairingRequested() State       { return State{Kind: KindPairingRequested} }
func PairingDecisionRequest() State { return State{Kind: KindPairingDecisionRequest} }
func PairingComplete() State        { return State{Kind: KindPairingComplete} }
func LibraryAlreadyExists() State   { return State{Kind: KindLibraryAlreadyExists} }

func PairingInProgress(libraryName string) State {
	return State{Kind: KindPairingInProgress, LibraryName: libraryName}
}

func InitialSyncProgress(percent int) State {
	return State{Kind: KindInitialSyncProgress, Percent: percent}
}

func PairingRejected(cause Cause) State {
	if cause == "" {
		cause = CauseRejected
	}
	return State{Kind: KindPairingRejected, Cause: cause}
}

// Terminal reports whether the state ends the session.
func (s State) Terminal() bool { return s.Kind.Terminal() }

func (s State) String() string {
	switch s.Kind {
	case KindPairingInProgress:
		return fmt.Sprintf("%s{%s}", s.Kind, s.LibraryName)
	case KindInitialSyncProgress:
		return fmt.Sprintf("%s{%d}", s.Kind, s.Percent)
	case KindPairingRejected:
		return fmt.Sprintf("%s{%s}", s.Kind, s.Cause)
	}
	return string(s.Kind)
}

// Visitor has one method per state kind. Adding a kind adds a method here,
// so every consumer that renders or reacts to states stops compiling until
// it handles the new kind.
type Visitor interface {
	EstablishingConnection()
	PairingRequested()
	PairingDecisionRequest()
	PairingInProgress(libraryName string)
	InitialSyncProgress(percent int)
	PairingComplete()
	PairingRejected(cause Cause)
	LibraryAlreadyExists()
}

// Accept dispatches s to the matching Visitor method.
func (s State) Accept(v Visitor) {
	switch s.Kind {
	case KindEstablishingConnection:
		v.EstablishingConnection()
	case KindPairingRequested:
		v.PairingRequested()
	case KindPairingDecisionRequest:
		v.PairingDecisionRequest()
	case KindPairingInProgress:
		v.PairingInProgress(s.LibraryName)
	case KindInitialSyncProgress:
		v.InitialSyncProgress(s.Percent)
	case KindPairingComplete:
		v.PairingComplete()
	case KindPairingRejected:
		v.PairingRejected(s.Cause)
	case KindLibraryAlreadyExists:
		v.LibraryAlreadyExists()
	default:
		panic(fmt.Sprintf("pairing: unhandled state kind %q", string(s.Kind)))
	}
}

// wireState is the JSON shape shared with presentation clients:
// {"type": "PairingInProgress", "data": {"library_name": "..."}}.
type wireState struct {
	Type  Kind            `json:"type"`
	Data  json.RawMessage `json:"data,omitempty"`
	Cause Cause           `json:"cause,omitempty"`
}

type inProgressData struct {
	LibraryName string `json:"library_name"`
}

func (s State) MarshalJSON() ([]byte, error) {
	w := wireState{Type: s.Kind}
	var err error
	switch s.Kind {
	case KindPairingInProgress:
		w.Data, err = json.Marshal(inProgressData{LibraryName: s.LibraryName})
	case KindInitialSyncProgress:
		w.Data, err = json.Marshal(s.Percent)
	case KindPairingRejected:
		w.Cause = s.Cause
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func (s *State) UnmarshalJSON(data []byte) error {
	var w wireState
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = State{Kind: w.Type}
	switch w.Type {
	case KindPairingInProgress:
		var d inProgressData
		if len(w.Data) > 0 {
			if err := json.Unmarshal(w.Data, &d); err != nil {
				return fmt.Errorf("pairing state data: %w", err)
			}
		}
		s.LibraryName = d.LibraryName
	case KindInitialSyncProgress:
		if len(w.Data) > 0 {
			if err := json.Unmarshal(w.Data, &s.Percent); err != nil {
				return fmt.Errorf("pairing state data: %w", err)
			}
		}
	case KindPairingRejected:
		s.Cause = w.Cause
	case KindEstablishingConnection, KindPairingRequested, KindPairingDecisionRequest,
		KindPairingComplete, KindLibraryAlreadyExists:
	default:
		return fmt.Errorf("pairing: unknown state type %q", string(w.Type))
	}
	return nil
}
