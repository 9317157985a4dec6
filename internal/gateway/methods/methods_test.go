package methods

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/pairlink/internal/config"
	"github.com/nextlevelbuilder/pairlink/internal/cron"
	"github.com/nextlevelbuilder/pairlink/internal/gateway"
	"github.com/nextlevelbuilder/pairlink/internal/pairing"
	"github.com/nextlevelbuilder/pairlink/internal/store"
	"github.com/nextlevelbuilder/pairlink/internal/store/file"
	"github.com/nextlevelbuilder/pairlink/pkg/protocol"
)

const testToken = "secret"

// frame is the union of response and event frames as seen by a client.
type frame struct {
	Type    string               `json:"type"`
	ID      string               `json:"id"`
	OK      bool                 `json:"ok"`
	Payload json.RawMessage      `json:"payload"`
	Error   *protocol.ErrorShape `json:"error"`
	Event   string               `json:"event"`
	Seq     int64                `json:"seq"`
}

type testClient struct {
	t      *testing.T
	conn   *websocket.Conn
	nextID int
	events []frame
}

type fixture struct {
	reg    *pairing.Registry
	store  *file.Store
	client *testClient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := file.New(filepath.Join(t.TempDir(), "pairlink.json"))
	if err != nil {
		t.Fatalf("file.New: %v", err)
	}
	cfg := pairing.DefaultConfig()
	cfg.HistoryRetry = cron.RetryConfig{MaxRetries: 0}
	reg := pairing.NewRegistry(cfg)
	reg.SetHistory(st)

	decision := pairing.NewDecisionGateway(reg, st)
	feed := pairing.NewSyncProgressFeed(reg, st)
	inbox := pairing.NewPeerInbox(reg, feed, time.Minute, 100)

	srv := gateway.NewServer(config.GatewayConfig{Token: testToken}, "test")
	pm := NewPairingMethods(reg, decision, feed, inbox)
	pm.SetHistory(st)
	pm.Register(srv.Router())
	NewLibrariesMethods(decision, st).Register(srv.Router())

	ts := httptest.NewServer(srv.Handler())
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		ts.Close()
		t.Fatalf("dial: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		reg.Shutdown(ctx)
	})
	return &fixture{reg: reg, store: st, client: &testClient{t: t, conn: conn}}
}

// call sends one request and returns its response. Events received in the
// meantime are kept for nextEvent.
func (c *testClient) call(method string, params any) frame {
	c.t.Helper()
	c.nextID++
	id := strconv.Itoa(c.nextID)
	raw, err := json.Marshal(params)
	if err != nil {
		c.t.Fatalf("marshal params: %v", err)
	}
	req := protocol.RequestFrame{Type: protocol.FrameTypeRequest, ID: id, Method: method, Params: raw}
	if err := c.conn.WriteJSON(req); err != nil {
		c.t.Fatalf("write %s: %v", method, err)
	}
	for {
		f := c.read()
		if f.Type == protocol.FrameTypeEvent {
			c.events = append(c.events, f)
			continue
		}
		if f.ID != id {
			c.t.Fatalf("response id = %q, want %q", f.ID, id)
		}
		return f
	}
}

func (c *testClient) nextEvent() frame {
	c.t.Helper()
	if len(c.events) > 0 {
		f := c.events[0]
		c.events = c.events[1:]
		return f
	}
	for {
		f := c.read()
		if f.Type == protocol.FrameTypeEvent {
			return f
		}
	}
}

func (c *testClient) read() frame {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f frame
	if err := c.conn.ReadJSON(&f); err != nil {
		c.t.Fatalf("read frame: %v", err)
	}
	return f
}

func (c *testClient) connect() {
	c.t.Helper()
	if resp := c.call(protocol.MethodConnect, protocol.ConnectParams{Token: testToken, Client: "test"}); !resp.OK {
		c.t.Fatalf("connect failed: %+v", resp.Error)
	}
}

func wantOK(t *testing.T, resp frame, v any) {
	t.Helper()
	if !resp.OK {
		t.Fatalf("response error: %+v", resp.Error)
	}
	if v != nil {
		if err := json.Unmarshal(resp.Payload, v); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
	}
}

func wantCode(t *testing.T, resp frame, code string) {
	t.Helper()
	if resp.OK {
		t.Fatalf("response ok, want error %s", code)
	}
	if resp.Error.Code != code {
		t.Fatalf("error code = %s (%s), want %s", resp.Error.Code, resp.Error.Message, code)
	}
}

type statePayload struct {
	ID    pairing.ID    `json:"id"`
	State pairing.State `json:"state"`
}

func TestConnectRequiresToken(t *testing.T) {
	f := newFixture(t)
	c := f.client

	wantCode(t, c.call(protocol.MethodPairingList, nil), protocol.ErrUnauthorized)
	wantCode(t, c.call(protocol.MethodConnect, protocol.ConnectParams{Token: "wrong"}), protocol.ErrUnauthorized)
	wantCode(t, c.call(protocol.MethodConnect, protocol.ConnectParams{Token: testToken, Protocol: 99}), protocol.ErrInvalidRequest)

	c.connect()
	var list struct {
		Sessions []pairing.View `json:"sessions"`
	}
	wantOK(t, c.call(protocol.MethodPairingList, nil), &list)
	if len(list.Sessions) != 0 {
		t.Errorf("sessions = %d, want 0", len(list.Sessions))
	}
	wantCode(t, c.call("no.such.method", nil), protocol.ErrInvalidRequest)
}

func TestResponderAcceptAndSync(t *testing.T) {
	f := newFixture(t)
	c := f.client
	c.connect()

	var lib store.LibraryDescriptor
	wantOK(t, c.call(protocol.MethodLibrariesAdd, map[string]any{"display_name": "Family"}), &lib)
	if lib.UUID == uuid.Nil || lib.DisplayName != "Family" {
		t.Fatalf("added library = %+v", lib)
	}
	var libs struct {
		Libraries []store.LibraryDescriptor `json:"libraries"`
	}
	wantOK(t, c.call(protocol.MethodLibrariesList, nil), &libs)
	if len(libs.Libraries) != 1 {
		t.Fatalf("libraries = %d, want 1", len(libs.Libraries))
	}

	var view pairing.View
	wantOK(t, c.call(protocol.MethodPairingCreate, map[string]any{
		"id":   7,
		"role": "responder",
		"peer": map[string]any{"name": "pixel", "os": "Android"},
	}), &view)
	if view.ID != 7 || view.State.Kind != pairing.KindEstablishingConnection {
		t.Fatalf("created view = %+v", view)
	}
	wantCode(t, c.call(protocol.MethodPairingCreate, map[string]any{
		"id": 7, "role": "responder", "peer": map[string]any{"name": "pixel"},
	}), protocol.ErrDuplicateID)

	var sub struct {
		Subscribed bool `json:"subscribed"`
	}
	wantOK(t, c.call(protocol.MethodPairingSubscribe, map[string]any{"id": 7}), &sub)
	if !sub.Subscribed {
		t.Fatal("subscribed = false")
	}

	origin := uuid.New()
	var sp statePayload
	wantOK(t, c.call(protocol.MethodPairingMessage, map[string]any{
		"pairing_id": 7, "type": "request", "library": origin,
	}), &sp)
	if sp.State.Kind != pairing.KindPairingDecisionRequest {
		t.Fatalf("after request: %s", sp.State)
	}

	wantCode(t, c.call(protocol.MethodPairingDecide, map[string]any{
		"id": 7, "decision": "accept", "library_id": uuid.New(),
	}), protocol.ErrLibraryNotFound)
	wantCode(t, c.call(protocol.MethodPairingDecide, map[string]any{"id": 7, "decision": "maybe"}), protocol.ErrInvalidRequest)

	var decided struct {
		State pairing.State `json:"state"`
	}
	wantOK(t, c.call(protocol.MethodPairingDecide, map[string]any{
		"id": 7, "decision": "accept", "library_id": lib.UUID,
	}), &decided)
	if want := pairing.PairingInProgress("Family"); decided.State != want {
		t.Fatalf("after accept: %s, want %s", decided.State, want)
	}

	wantCode(t, c.call(protocol.MethodPairingSync, map[string]any{"id": 7, "action": "progress", "percent": 150}), protocol.ErrInvalidProgress)
	wantOK(t, c.call(protocol.MethodPairingSync, map[string]any{"id": 7, "action": "progress", "percent": 60}), &sp)
	if want := pairing.InitialSyncProgress(60); sp.State != want {
		t.Fatalf("after progress: %s, want %s", sp.State, want)
	}
	wantCode(t, c.call(protocol.MethodPairingSync, map[string]any{"id": 7, "action": "complete"}), protocol.ErrInvalidTransition)
	wantOK(t, c.call(protocol.MethodPairingSync, map[string]any{"id": 7, "action": "progress", "percent": 100}), nil)
	wantOK(t, c.call(protocol.MethodPairingSync, map[string]any{"id": 7, "action": "complete"}), &sp)
	if sp.State.Kind != pairing.KindPairingComplete {
		t.Fatalf("after complete: %s", sp.State)
	}

	var last pairing.State
	var seq int64
	for {
		ev := c.nextEvent()
		if ev.Event != protocol.EventPairingStatus {
			t.Fatalf("event = %s", ev.Event)
		}
		if ev.Seq <= seq {
			t.Errorf("seq %d after %d", ev.Seq, seq)
		}
		seq = ev.Seq
		var p protocol.PairingStatusPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if err := json.Unmarshal(p.State, &last); err != nil {
			t.Fatalf("decode state: %v", err)
		}
		if p.Final {
			break
		}
	}
	if last.Kind != pairing.KindPairingComplete {
		t.Errorf("final event state = %s, want PairingComplete", last)
	}

	wantCode(t, c.call(protocol.MethodPairingStatus, map[string]any{"id": 7}), protocol.ErrUnknownPairingID)

	ok, err := f.store.ContainsLibrary(context.Background(), lib.UUID, origin)
	if err != nil || !ok {
		t.Errorf("ContainsLibrary = %v, %v; want true", ok, err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		var hist struct {
			Records []store.PairingRecord `json:"records"`
		}
		wantOK(t, c.call(protocol.MethodPairingHistory, map[string]any{"limit": 10}), &hist)
		if len(hist.Records) == 1 {
			if hist.Records[0].PairingID != 7 || hist.Records[0].Outcome != string(pairing.KindPairingComplete) {
				t.Errorf("history record = %+v", hist.Records[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("history records = %d, want 1", len(hist.Records))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestOriginatorCreateAndCancel(t *testing.T) {
	f := newFixture(t)
	c := f.client
	c.connect()

	wantCode(t, c.call(protocol.MethodPairingCreate, map[string]any{"role": "observer", "peer": map[string]any{"name": "x"}}), protocol.ErrInvalidRequest)
	wantCode(t, c.call(protocol.MethodPairingCreate, map[string]any{"role": "originator"}), protocol.ErrInvalidRequest)

	var view pairing.View
	wantOK(t, c.call(protocol.MethodPairingCreate, map[string]any{
		"role":         "originator",
		"peer":         map[string]any{"name": "laptop"},
		"send_request": true,
	}), &view)
	if view.ID == 0 {
		t.Fatal("allocated id = 0")
	}
	if view.State.Kind != pairing.KindPairingRequested {
		t.Fatalf("state = %s, want PairingRequested", view.State)
	}

	var status pairing.View
	wantOK(t, c.call(protocol.MethodPairingStatus, map[string]any{"id": view.ID}), &status)
	if status.Role != pairing.RoleOriginator || status.Peer.Name != "laptop" {
		t.Errorf("status = %+v", status)
	}

	var sp statePayload
	wantOK(t, c.call(protocol.MethodPairingCancel, map[string]any{"id": view.ID}), &sp)
	if want := pairing.PairingRejected(pairing.CauseCancelled); sp.State != want {
		t.Errorf("after cancel: %s, want %s", sp.State, want)
	}
	wantCode(t, c.call(protocol.MethodPairingCancel, map[string]any{"id": view.ID}), protocol.ErrUnknownPairingID)
}

func TestUnsubscribe(t *testing.T) {
	f := newFixture(t)
	c := f.client
	c.connect()

	if _, err := f.reg.Create(context.Background(), 3, pairing.RoleResponder, pairing.Peer{Name: "tab"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	var sub struct {
		Subscribed bool `json:"subscribed"`
	}
	wantOK(t, c.call(protocol.MethodPairingSubscribe, map[string]any{"id": 3}), &sub)
	if !sub.Subscribed {
		t.Fatal("first subscribe: subscribed = false")
	}
	wantOK(t, c.call(protocol.MethodPairingSubscribe, map[string]any{"id": 3}), &sub)
	if sub.Subscribed {
		t.Error("second subscribe: subscribed = true")
	}

	var un struct {
		Removed bool `json:"removed"`
	}
	wantOK(t, c.call(protocol.MethodPairingUnsubscribe, map[string]any{"id": 3}), &un)
	if !un.Removed {
		t.Error("removed = false")
	}
	wantOK(t, c.call(protocol.MethodPairingUnsubscribe, map[string]any{"id": 3}), &un)
	if un.Removed {
		t.Error("second unsubscribe: removed = true")
	}
	wantCode(t, c.call(protocol.MethodPairingSubscribe, map[string]any{"id": 99}), protocol.ErrUnknownPairingID)
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{pairing.ErrDuplicateID, protocol.ErrDuplicateID},
		{pairing.ErrUnknownPairingID, protocol.ErrUnknownPairingID},
		{pairing.ErrInvalidTransition, protocol.ErrInvalidTransition},
		{pairing.ErrLibraryNotFound, protocol.ErrLibraryNotFound},
		{pairing.ErrInvalidProgress, protocol.ErrInvalidProgress},
		{pairing.ErrRegistryClosed, protocol.ErrUnavailable},
		{context.DeadlineExceeded, protocol.ErrInternal},
	}
	for _, tt := range tests {
		if got := errorCode(tt.err); got != tt.want {
			t.Errorf("errorCode(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
