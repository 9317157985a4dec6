package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"

	"github.com/nextlevelbuilder/pairlink/pkg/protocol"
)

// MethodHandler processes a single RPC method request.
type MethodHandler func(ctx context.Context, client *Client, req *protocol.RequestFrame)

// MethodRouter maps method names to handlers.
type MethodRouter struct {
	handlers map[string]MethodHandler
	server   *Server
}

func NewMethodRouter(server *Server) *MethodRouter {
	r := &MethodRouter{
		handlers: make(map[string]MethodHandler),
		server:   server,
	}
	r.registerDefaults()
	return r
}

// Register adds a method handler.
func (r *MethodRouter) Register(method string, handler MethodHandler) {
	r.handlers[method] = handler
}

// Handle dispatches a request to the appropriate handler.
func (r *MethodRouter) Handle(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	handler, ok := r.handlers[req.Method]
	if !ok {
		slog.Warn("unknown method", "method", req.Method, "client", client.id)
		client.SendResponse(protocol.NewErrorResponse(
			req.ID,
			protocol.ErrInvalidRequest,
			"unknown method: "+req.Method,
		))
		return
	}

	if rl := r.server.rateLimiter; rl != nil && !rl.Allow(client.remote) {
		resp := protocol.NewErrorResponse(req.ID, protocol.ErrResourceExhausted, "rate limit exceeded")
		resp.Error.Retryable = true
		resp.Error.RetryAfterMs = 1000
		client.SendResponse(resp)
		return
	}

	slog.Debug("handling method", "method", req.Method, "client", client.id, "req_id", req.ID)
	handler(ctx, client, req)
}

// registerDefaults registers the connection-level handlers.
func (r *MethodRouter) registerDefaults() {
	r.Register(protocol.MethodConnect, r.handleConnect)
	r.Register(protocol.MethodHealth, r.handleHealth)
}

// --- Built-in handlers ---

func (r *MethodRouter) handleConnect(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	var params protocol.ConnectParams
	if req.Params != nil {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "invalid connect params"))
			return
		}
	}

	if params.Protocol != 0 && params.Protocol != protocol.ProtocolVersion {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "unsupported protocol version"))
		return
	}

	// No token configured: every local client is trusted.
	configToken := r.server.cfg.Token
	if configToken != "" && subtle.ConstantTimeCompare([]byte(params.Token), []byte(configToken)) != 1 {
		slog.Warn("security.connect_rejected", "client", client.id, "remote", client.remote)
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrUnauthorized, "invalid token"))
		return
	}

	client.name = params.Client
	client.authenticated.Store(true)
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{
		"protocol":  protocol.ProtocolVersion,
		"client_id": client.id,
		"server": map[string]any{
			"name":    "pairlink",
			"version": r.server.version,
		},
	}))
}

func (r *MethodRouter) handleHealth(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{
		"status":  "ok",
		"clients": r.server.ClientCount(),
	}))
}
