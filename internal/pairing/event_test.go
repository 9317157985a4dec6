package pairing

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestNext_LegalPath(t *testing.T) {
	lib := uuid.New()
	steps := []struct {
		ev   Event
		want State
	}{
		{RequestSent(), PairingRequested()},
		{RequestReceived(uuid.Nil), PairingDecisionRequest()},
		{DecisionEvent(Accept(lib), "Photos", false), PairingInProgress("Photos")},
		{SyncStarted(), InitialSyncProgress(0)},
		{SyncProgress(40), InitialSyncProgress(40)},
		{SyncProgress(100), InitialSyncProgress(100)},
		{SyncComplete(), PairingComplete()},
	}
	cur := EstablishingConnection()
	for _, step := range steps {
		to, changed, err := next(cur, step.ev)
		if err != nil {
			t.Fatalf("%s from %s: %v", step.ev, cur, err)
		}
		if !changed || to != step.want {
			t.Fatalf("%s from %s = %s (changed %v), want %s", step.ev, cur, to, changed, step.want)
		}
		cur = to
	}
}

func TestNext_DecisionOutcomes(t *testing.T) {
	lib := uuid.New()
	tests := []struct {
		name string
		ev   Event
		want State
	}{
		{"reject", DecisionEvent(Reject(), "", false), PairingRejected(CauseRejected)},
		{"already exists", DecisionEvent(Accept(lib), "Photos", true), LibraryAlreadyExists()},
		{"accept", DecisionEvent(Accept(lib), "Photos", false), PairingInProgress("Photos")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			to, _, err := next(PairingDecisionRequest(), tt.ev)
			if err != nil {
				t.Fatal(err)
			}
			if to != tt.want {
				t.Errorf("got %s, want %s", to, tt.want)
			}
		})
	}
}

func TestNext_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cur  State
		ev   Event
	}{
		{"decision before request", EstablishingConnection(), DecisionEvent(Reject(), "", false)},
		{"request twice", PairingRequested(), RequestSent()},
		{"sync before decision", PairingDecisionRequest(), SyncStarted()},
		{"progress before sync", PairingInProgress("x"), SyncProgress(10)},
		{"complete below 100", InitialSyncProgress(99), SyncComplete()},
		{"decision twice", PairingInProgress("x"), DecisionEvent(Reject(), "", false)},
		{"stale timer", PairingRequested(), timeoutEvent(KindEstablishingConnection)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			to, changed, err := next(tt.cur, tt.ev)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("err = %v, want ErrInvalidTransition", err)
			}
			if changed || to != tt.cur {
				t.Errorf("state moved to %s", to)
			}
		})
	}
}

func TestNext_Progress(t *testing.T) {
	tests := []struct {
		name        string
		cur         int
		percent     int
		want        int
		wantChanged bool
		wantErr     error
	}{
		{"forward", 10, 20, 20, true, nil},
		{"same", 50, 50, 50, false, nil},
		{"backwards", 50, 30, 50, false, nil},
		{"negative", 10, -1, 10, false, ErrInvalidProgress},
		{"over 100", 10, 101, 10, false, ErrInvalidProgress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			to, changed, err := next(InitialSyncProgress(tt.cur), SyncProgress(tt.percent))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if changed != tt.wantChanged || to.Percent != tt.want {
				t.Errorf("got %s changed=%v, want percent %d changed=%v", to, changed, tt.want, tt.wantChanged)
			}
		})
	}
}

func TestNext_CancelFromEveryNonTerminal(t *testing.T) {
	for _, cur := range []State{
		EstablishingConnection(), PairingRequested(), PairingDecisionRequest(),
		PairingInProgress("x"), InitialSyncProgress(30),
	} {
		to, changed, err := next(cur, Cancel(CauseDisconnected))
		if err != nil || !changed {
			t.Fatalf("cancel from %s: %v", cur, err)
		}
		if to != PairingRejected(CauseDisconnected) {
			t.Errorf("cancel from %s = %s", cur, to)
		}
	}
}

func TestNext_TerminalAcceptsNothing(t *testing.T) {
	for _, cur := range []State{PairingComplete(), PairingRejected(CauseRejected), LibraryAlreadyExists()} {
		for _, ev := range []Event{RequestSent(), Cancel(CauseCancelled), SyncProgress(100), timeoutEvent(cur.Kind)} {
			if _, _, err := next(cur, ev); !errors.Is(err, ErrUnknownPairingID) {
				t.Errorf("%s from %s: err = %v, want ErrUnknownPairingID", ev, cur, err)
			}
		}
	}
}
