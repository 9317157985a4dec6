// Package methods registers the pairlink RPC handlers on the gateway router.
package methods

import (
	"encoding/json"
	"errors"

	"github.com/nextlevelbuilder/pairlink/internal/gateway"
	"github.com/nextlevelbuilder/pairlink/internal/pairing"
	"github.com/nextlevelbuilder/pairlink/pkg/protocol"
)

// errorCode maps a pairing error to its protocol code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, pairing.ErrDuplicateID):
		return protocol.ErrDuplicateID
	case errors.Is(err, pairing.ErrUnknownPairingID):
		return protocol.ErrUnknownPairingID
	case errors.Is(err, pairing.ErrInvalidTransition):
		return protocol.ErrInvalidTransition
	case errors.Is(err, pairing.ErrLibraryNotFound):
		return protocol.ErrLibraryNotFound
	case errors.Is(err, pairing.ErrInvalidProgress):
		return protocol.ErrInvalidProgress
	case errors.Is(err, pairing.ErrRegistryClosed):
		return protocol.ErrUnavailable
	}
	return protocol.ErrInternal
}

func sendErr(client *gateway.Client, req *protocol.RequestFrame, err error) {
	client.SendResponse(protocol.NewErrorResponse(req.ID, errorCode(err), err.Error()))
}

func badRequest(client *gateway.Client, req *protocol.RequestFrame, msg string) {
	client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, msg))
}

// decodeParams unmarshals req.Params into v, replying INVALID_REQUEST on
// failure. Missing params leave v untouched.
func decodeParams(client *gateway.Client, req *protocol.RequestFrame, v any) bool {
	if len(req.Params) == 0 {
		return true
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		badRequest(client, req, "invalid params: "+err.Error())
		return false
	}
	return true
}
