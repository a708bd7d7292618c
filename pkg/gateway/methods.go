package gateway

import (
	"context"

	"github.com/harun/turbogenius/internal/tracing"
	"github.com/harun/turbogenius/pkg/session"
)

// registerBuiltinMethods registers all built-in RPC methods
func (s *Server) registerBuiltinMethods() {
	_ = s.RegisterMethod("session.create", s.handleSessionCreate)
	_ = s.RegisterMethod("session.get", s.handleSessionGet)
	_ = s.RegisterMethod("session.list", s.handleSessionList)
	_ = s.RegisterMethod("session.delete", s.handleSessionDelete)
	_ = s.RegisterMethod("session.title", s.handleSessionTitle)
	_ = s.RegisterMethod("gateway.clients", s.handleGatewayClients)
}

// idParam reads the "id" parameter, accepted as a JSON number or a string
func idParam(params map[string]interface{}) (session.ID, error) {
	invalid := &RPCError{Code: InvalidParams, Message: "id parameter is required and must be a positive integer"}

	switch v := params["id"].(type) {
	case float64:
		if v != float64(int64(v)) || v <= 0 {
			return 0, invalid
		}
		return session.ID(v), nil
	case string:
		id, err := session.ParseID(v)
		if err != nil {
			return 0, invalid
		}
		return id, nil
	default:
		return 0, invalid
	}
}

// handleSessionCreate handles session.create RPC method
func (s *Server) handleSessionCreate(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	sess := s.store.Create()
	return map[string]interface{}{
		"id":    sess.ID(),
		"title": sess.Title(),
	}, nil
}

// handleSessionGet handles session.get RPC method
func (s *Server) handleSessionGet(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	id, err := idParam(params)
	if err != nil {
		return nil, err
	}

	sess, err := s.store.Get(id)
	if err != nil {
		return nil, rpcError(err)
	}
	return sess.Snapshot(), nil
}

// handleSessionList handles session.list RPC method
func (s *Server) handleSessionList(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{
		"sessions": s.store.List(),
	}, nil
}

// handleSessionDelete handles session.delete RPC method
func (s *Server) handleSessionDelete(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	id, err := idParam(params)
	if err != nil {
		return nil, err
	}

	s.store.Remove(id)
	return map[string]interface{}{
		"success": true,
	}, nil
}

// handleSessionTitle handles session.title RPC method
func (s *Server) handleSessionTitle(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	id, err := idParam(params)
	if err != nil {
		return nil, err
	}

	reqCtx := tracing.WithSessionKey(ctx, id.String())
	t, err := s.titleFor(reqCtx, id)
	if err != nil {
		return nil, rpcError(err)
	}
	return map[string]interface{}{
		"id":    id,
		"title": t,
	}, nil
}

// handleGatewayClients handles gateway.clients RPC method
func (s *Server) handleGatewayClients(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	clients := s.GetConnectedClients()
	return map[string]interface{}{
		"count":   len(clients),
		"clients": clients,
	}, nil
}
