package gateway

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/turbogenius/pkg/session"
)

// RPCRequest represents a JSON-RPC 2.0 request
type RPCRequest struct {
	ID             string                 `json:"id"`
	Method         string                 `json:"method"`
	Params         map[string]interface{} `json:"params,omitempty"`
	JSONRPC        string                 `json:"jsonrpc"`
	IdempotencyKey string                 `json:"idempotencyKey,omitempty"`
}

// RPCResponse represents a JSON-RPC 2.0 response
type RPCResponse struct {
	ID      string      `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
	JSONRPC string      `json:"jsonrpc"`
}

// RPCError represents a JSON-RPC 2.0 error
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface
func (e *RPCError) Error() string {
	return e.Message
}

// ClientInfo describes a connected stream client
type ClientInfo struct {
	ID           string     `json:"id"`
	SessionID    session.ID `json:"sessionId"`
	ConnectedAt  time.Time  `json:"connectedAt"`
	LastActivity time.Time  `json:"lastActivity"`
	IPAddress    string     `json:"ipAddress"`
	State        string     `json:"state"`
}

// ClientState represents the state of a client connection
type ClientState int

const (
	StateConnected ClientState = iota
	StateStreaming
	StateDisconnected
)

func (s ClientState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateStreaming:
		return "streaming"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// RequestHandler is a function that handles RPC requests
type RequestHandler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// RPC error codes
const (
	ParseError      = -32700
	InvalidRequest  = -32600
	MethodNotFound  = -32601
	InvalidParams   = -32602
	InternalError   = -32603
	EngineFailure   = -32002
	SessionNotFound = -32004
	SessionConflict = -32009
)

// Client is one open stream connection
type Client struct {
	ID           string
	Conn         *websocket.Conn
	SessionID    session.ID
	ConnectedAt  time.Time
	LastActivity time.Time
	IPAddress    string
	State        ClientState
}
