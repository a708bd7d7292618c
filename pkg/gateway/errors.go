package gateway

import (
	"errors"
	"net/http"

	"github.com/harun/turbogenius/pkg/engine"
	"github.com/harun/turbogenius/pkg/prompt"
	"github.com/harun/turbogenius/pkg/session"
	"github.com/harun/turbogenius/pkg/title"
)

// httpStatus maps a domain error to the HTTP status reported to clients
func httpStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrBusy), errors.Is(err, title.ErrEmptyTranscript):
		return http.StatusConflict
	case errors.Is(err, engine.ErrEngine):
		return http.StatusBadGateway
	case errors.Is(err, prompt.ErrContextBudget):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// rpcError maps a domain error to a JSON-RPC error
func rpcError(err error) *RPCError {
	code := InternalError
	switch {
	case errors.Is(err, session.ErrNotFound):
		code = SessionNotFound
	case errors.Is(err, session.ErrBusy), errors.Is(err, title.ErrEmptyTranscript):
		code = SessionConflict
	case errors.Is(err, engine.ErrEngine):
		code = EngineFailure
	}
	return &RPCError{Code: code, Message: err.Error()}
}
