package pairing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/pairlink/internal/bus"
)

// MessageType is the type of a message received from the peer.
type MessageType string

const (
	// MsgRequest: the originator's pairing request, received by the responder.
	MsgRequest MessageType = "request"
	// MsgRequestAck: the responder got our request, received by the originator.
	MsgRequestAck MessageType = "request.ack"
	// MsgAccept and MsgReject carry the responder's decision to the originator.
	MsgAccept       MessageType = "accept"
	MsgReject       MessageType = "reject"
	MsgSyncStart    MessageType = "sync.start"
	MsgSyncProgress MessageType = "sync.progress"
	MsgSyncDone     MessageType = "sync.done"
	MsgDisconnect   MessageType = "disconnect"
)

// PeerMessage is one message from the transport, already authenticated and
// bound to a pairing id.
type PeerMessage struct {
	// MessageID identifies retransmits. Empty disables deduplication.
	MessageID string      `json:"message_id,omitempty"`
	PairingID ID          `json:"pairing_id"`
	Type      MessageType `json:"type"`

	// MsgRequest: the library offered by the originator.
	Library uuid.UUID `json:"library,omitempty"`
	// MsgAccept: the library chosen by the responder.
	LibraryName   string `json:"library_name,omitempty"`
	AlreadyExists bool   `json:"already_exists,omitempty"`
	// MsgSyncProgress.
	Percent int `json:"percent,omitempty"`
}

// PeerInbox turns peer messages into session events and drops retransmits.
type PeerInbox struct {
	reg   *Registry
	feed  *SyncProgressFeed
	dedup *bus.DedupeCache
}

// NewPeerInbox creates an inbox. Message ids are remembered for ttl.
func NewPeerInbox(reg *Registry, feed *SyncProgressFeed, ttl time.Duration, maxSize int) *PeerInbox {
	if feed == nil {
		feed = NewSyncProgressFeed(reg, nil)
	}
	return &PeerInbox{reg: reg, feed: feed, dedup: bus.NewDedupeCache(ttl, maxSize)}
}

// Deliver applies msg to its session. A retransmitted message returns the
// current state and a nil error without touching the session. A message the
// session refuses is not remembered, so a later retransmit is applied again.
func (in *PeerInbox) Deliver(ctx context.Context, msg PeerMessage) (State, error) {
	s, err := in.reg.Session(msg.PairingID)
	if err != nil {
		return State{}, err
	}
	var key string
	if msg.MessageID != "" {
		key = msg.PairingID.String() + ":" + msg.MessageID
		if in.dedup.IsDuplicate(key) {
			slog.Debug("peer message duplicate", "id", msg.PairingID, "type", msg.Type, "message_id", msg.MessageID)
			return s.State(), nil
		}
	}

	st, err := in.apply(ctx, s, msg)
	if err != nil {
		in.dedup.Forget(key)
	}
	return st, err
}

func (in *PeerInbox) apply(ctx context.Context, s *Session, msg PeerMessage) (State, error) {
	switch msg.Type {
	case MsgRequest:
		// The responder has no request of its own to send, so the incoming
		// request stands in for it.
		if s.State().Kind == KindEstablishingConnection {
			if st, err := s.Advance(ctx, RequestSent()); err != nil {
				return st, err
			}
		}
		return s.Advance(ctx, RequestReceived(msg.Library))
	case MsgRequestAck:
		return s.Advance(ctx, RequestReceived(uuid.Nil))
	case MsgAccept:
		return s.Advance(ctx, DecisionEvent(Accept(msg.Library), msg.LibraryName, msg.AlreadyExists))
	case MsgReject:
		return s.Advance(ctx, DecisionEvent(Reject(), "", false))
	case MsgSyncStart:
		return in.feed.Begin(ctx, msg.PairingID)
	case MsgSyncProgress:
		return in.feed.ReportProgress(ctx, msg.PairingID, msg.Percent)
	case MsgSyncDone:
		return in.feed.Complete(ctx, msg.PairingID)
	case MsgDisconnect:
		return s.Advance(ctx, Cancel(CauseDisconnected))
	}
	return s.State(), fmt.Errorf("%w: unknown peer message %q", ErrInvalidTransition, msg.Type)
}
