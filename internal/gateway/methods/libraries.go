package methods

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/pairlink/internal/gateway"
	"github.com/nextlevelbuilder/pairlink/internal/pairing"
	"github.com/nextlevelbuilder/pairlink/internal/store"
	"github.com/nextlevelbuilder/pairlink/pkg/protocol"
)

// LibrariesMethods handles libraries.list and libraries.add.
type LibrariesMethods struct {
	decision *pairing.DecisionGateway
	libs     store.LibraryStore
}

func NewLibrariesMethods(decision *pairing.DecisionGateway, libs store.LibraryStore) *LibrariesMethods {
	return &LibrariesMethods{decision: decision, libs: libs}
}

func (m *LibrariesMethods) Register(router *gateway.MethodRouter) {
	router.Register(protocol.MethodLibrariesList, m.handleList)
	router.Register(protocol.MethodLibrariesAdd, m.handleAdd)
}

func (m *LibrariesMethods) handleList(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	libs, err := m.decision.Candidates(ctx)
	if err != nil {
		sendErr(client, req, err)
		return
	}
	if libs == nil {
		libs = []store.LibraryDescriptor{}
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{"libraries": libs}))
}

func (m *LibrariesMethods) handleAdd(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		UUID        uuid.UUID `json:"uuid,omitempty"`
		DisplayName string    `json:"display_name"`
	}
	if !decodeParams(client, req, &params) {
		return
	}
	if params.UUID == uuid.Nil {
		params.UUID = uuid.New()
	}
	lib := store.LibraryDescriptor{UUID: params.UUID, DisplayName: strings.TrimSpace(params.DisplayName)}
	if err := store.ValidateLibrary(lib); err != nil {
		badRequest(client, req, err.Error())
		return
	}
	if m.libs == nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrUnavailable, "library store is not configured"))
		return
	}
	if err := m.libs.PutLibrary(ctx, lib); err != nil {
		sendErr(client, req, err)
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, lib))
}
