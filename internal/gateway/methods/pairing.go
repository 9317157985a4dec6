package methods

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/pairlink/internal/gateway"
	"github.com/nextlevelbuilder/pairlink/internal/pairing"
	"github.com/nextlevelbuilder/pairlink/internal/store"
	"github.com/nextlevelbuilder/pairlink/pkg/protocol"
)

// PairingMethods handles pairing.create, pairing.message, pairing.decide,
// pairing.sync, pairing.cancel, pairing.status, pairing.list,
// pairing.subscribe, pairing.unsubscribe and pairing.history.
type PairingMethods struct {
	reg      *pairing.Registry
	decision *pairing.DecisionGateway
	feed     *pairing.SyncProgressFeed
	inbox    *pairing.PeerInbox
	history  store.HistoryStore
}

func NewPairingMethods(reg *pairing.Registry, decision *pairing.DecisionGateway, feed *pairing.SyncProgressFeed, inbox *pairing.PeerInbox) *PairingMethods {
	return &PairingMethods{reg: reg, decision: decision, feed: feed, inbox: inbox}
}

// SetHistory enables pairing.history.
func (m *PairingMethods) SetHistory(h store.HistoryStore) {
	m.history = h
}

func (m *PairingMethods) Register(router *gateway.MethodRouter) {
	router.Register(protocol.MethodPairingCreate, m.handleCreate)
	router.Register(protocol.MethodPairingMessage, m.handleMessage)
	router.Register(protocol.MethodPairingDecide, m.handleDecide)
	router.Register(protocol.MethodPairingSync, m.handleSync)
	router.Register(protocol.MethodPairingCancel, m.handleCancel)
	router.Register(protocol.MethodPairingStatus, m.handleStatus)
	router.Register(protocol.MethodPairingList, m.handleList)
	router.Register(protocol.MethodPairingSubscribe, m.handleSubscribe)
	router.Register(protocol.MethodPairingUnsubscribe, m.handleUnsubscribe)
	router.Register(protocol.MethodPairingHistory, m.handleHistory)
}

type idParams struct {
	ID pairing.ID `json:"id"`
}

func (m *PairingMethods) handleCreate(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		ID            pairing.ID   `json:"id,omitempty"` // 0 allocates
		Role          pairing.Role `json:"role"`
		Peer          pairing.Peer `json:"peer"`
		OriginLibrary uuid.UUID    `json:"origin_library,omitempty"`
		SendRequest   bool         `json:"send_request,omitempty"`
	}
	if !decodeParams(client, req, &params) {
		return
	}
	if !params.Role.Valid() {
		badRequest(client, req, "role must be originator or responder")
		return
	}
	if params.Peer.Name == "" {
		badRequest(client, req, "peer.name is required")
		return
	}
	if params.SendRequest && params.Role != pairing.RoleOriginator {
		badRequest(client, req, "send_request is only valid for originators")
		return
	}

	id := params.ID
	if id == 0 {
		id = m.reg.Allocate()
	}
	var opts []pairing.CreateOption
	if params.OriginLibrary != uuid.Nil {
		opts = append(opts, pairing.WithOriginLibrary(params.OriginLibrary))
	}
	s, err := m.reg.Create(ctx, id, params.Role, params.Peer, opts...)
	if err != nil {
		sendErr(client, req, err)
		return
	}
	if params.SendRequest {
		if _, err := s.Advance(ctx, pairing.RequestSent()); err != nil {
			sendErr(client, req, err)
			return
		}
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, s.View()))
}

func (m *PairingMethods) handleMessage(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var msg pairing.PeerMessage
	if !decodeParams(client, req, &msg) {
		return
	}
	st, err := m.inbox.Deliver(ctx, msg)
	if err != nil {
		sendErr(client, req, err)
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{"id": msg.PairingID, "state": st}))
}

func (m *PairingMethods) handleDecide(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		ID        pairing.ID `json:"id"`
		Decision  string     `json:"decision"`
		LibraryID uuid.UUID  `json:"library_id,omitempty"`
	}
	if !decodeParams(client, req, &params) {
		return
	}

	var d pairing.Decision
	switch params.Decision {
	case protocol.DecisionAccept:
		d = pairing.Accept(params.LibraryID)
	case protocol.DecisionReject:
		d = pairing.Reject()
	default:
		badRequest(client, req, "decision must be accept or reject")
		return
	}

	if err := m.decision.SubmitDecision(ctx, params.ID, d); err != nil {
		sendErr(client, req, err)
		return
	}
	resp := map[string]any{"id": params.ID, "decision": params.Decision}
	if v, ok := m.reg.Get(params.ID); ok {
		resp["state"] = v.State
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, resp))
}

func (m *PairingMethods) handleSync(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		ID      pairing.ID `json:"id"`
		Action  string     `json:"action"`
		Percent int        `json:"percent,omitempty"`
	}
	if !decodeParams(client, req, &params) {
		return
	}

	var (
		st  pairing.State
		err error
	)
	switch params.Action {
	case protocol.SyncBegin:
		st, err = m.feed.Begin(ctx, params.ID)
	case protocol.SyncProgress:
		st, err = m.feed.ReportProgress(ctx, params.ID, params.Percent)
	case protocol.SyncComplete:
		st, err = m.feed.Complete(ctx, params.ID)
	default:
		badRequest(client, req, "action must be begin, progress or complete")
		return
	}
	if err != nil {
		sendErr(client, req, err)
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{"id": params.ID, "state": st}))
}

func (m *PairingMethods) handleCancel(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params idParams
	if !decodeParams(client, req, &params) {
		return
	}
	st, err := m.reg.Cancel(ctx, params.ID, pairing.CauseCancelled)
	if err != nil {
		sendErr(client, req, err)
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{"id": params.ID, "state": st}))
}

func (m *PairingMethods) handleStatus(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params idParams
	if !decodeParams(client, req, &params) {
		return
	}
	v, ok := m.reg.Get(params.ID)
	if !ok {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrUnknownPairingID, "unknown pairing id: "+params.ID.String()))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, v))
}

func (m *PairingMethods) handleList(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{
		"sessions": m.reg.List(),
	}))
}

// handleSubscribe streams pairing.status events for one session until its
// terminal state, pairing.unsubscribe, or disconnect.
func (m *PairingMethods) handleSubscribe(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params idParams
	if !decodeParams(client, req, &params) {
		return
	}
	sub, err := m.reg.Subscribe(ctx, params.ID)
	if err != nil {
		sendErr(client, req, err)
		return
	}
	key := params.ID.String()
	if !client.AddSubscription(key, sub.Unsubscribe) {
		sub.Unsubscribe()
		client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{"id": params.ID, "subscribed": false}))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{"id": params.ID, "subscribed": true}))

	go func() {
		for st := range sub.C() {
			data, err := json.Marshal(st)
			if err != nil {
				slog.Warn("marshal pairing state failed", "id", params.ID, "error", err)
				continue
			}
			client.SendEvent(*protocol.NewEvent(protocol.EventPairingStatus, protocol.PairingStatusPayload{
				ID:    uint64(params.ID),
				State: data,
				Final: st.Terminal(),
			}))
			if st.Terminal() {
				client.ForgetSubscription(key)
			}
		}
	}()
}

func (m *PairingMethods) handleUnsubscribe(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params idParams
	if !decodeParams(client, req, &params) {
		return
	}
	removed := client.RemoveSubscription(params.ID.String())
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{"id": params.ID, "removed": removed}))
}

func (m *PairingMethods) handleHistory(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	if m.history == nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrUnavailable, "pairing history is not configured"))
		return
	}
	var params struct {
		Limit int `json:"limit,omitempty"`
	}
	if !decodeParams(client, req, &params) {
		return
	}
	if params.Limit <= 0 {
		params.Limit = 50
	}
	records, err := m.history.ListPairings(ctx, params.Limit)
	if err != nil {
		slog.Warn("list pairing history failed", "error", err)
		sendErr(client, req, err)
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{"records": records}))
}
