package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/harun/turbogenius/internal/tracing"
	"github.com/harun/turbogenius/pkg/session"
)

const maxRPCBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := httpStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Int("status", status).Msg("Request failed")
	}
	_ = writeJSON(w, status, map[string]string{"error": err.Error()})
}

// pathID parses the {id} path value, answering 400 when it is malformed
func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (session.ID, bool) {
	id, err := session.ParseID(r.PathValue("id"))
	if err != nil {
		_ = writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return 0, false
	}
	return id, true
}

// handleCreateSession answers with the new session's id as a bare JSON number
func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	sess := s.store.Create()
	_ = writeJSON(w, http.StatusOK, sess.ID())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	sess, err := s.store.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	_ = writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	s.store.Remove(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	_ = writeJSON(w, http.StatusOK, s.store.List())
}

// handleTitle returns the session title as plain text, generating it on
// first request
func (s *Server) handleTitle(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	ctx := tracing.WithSessionKey(s.requestContext(r), id.String())
	t, err := s.titleFor(ctx, id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, t)
}

func (s *Server) titleFor(ctx context.Context, id session.ID) (string, error) {
	sess, err := s.store.Get(id)
	if err != nil {
		return "", err
	}
	return s.titles.Ensure(ctx, sess)
}

// handleRPC handles single-shot HTTP JSON-RPC requests
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRPCBodyBytes))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	req, err := s.router.ParseRequest(body)
	if err != nil {
		rpcErr, ok := err.(*RPCError)
		if !ok {
			rpcErr = &RPCError{Code: ParseError, Message: err.Error()}
		}
		_ = writeJSON(w, http.StatusBadRequest, RPCResponse{
			ID:      "",
			JSONRPC: "2.0",
			Error:   rpcErr,
		})
		return
	}

	ctx := s.requestContext(r)
	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Debug().
		Str("request_id", req.ID).
		Str("method", req.Method).
		Msg("Gateway received RPC request")

	resp := s.router.RouteRequest(ctx, req)
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		logger.Error().Err(err).Msg("Failed to encode RPC response")
	}
}
