package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/turbogenius/pkg/stream"
)

const (
	writeWait = 10 * time.Second
	closeWait = time.Second
)

// wsConn carries one stream exchange over a websocket
type wsConn struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

func newWSConn(conn *websocket.Conn, maxPromptBytes int64) *wsConn {
	if maxPromptBytes > 0 {
		conn.SetReadLimit(maxPromptBytes)
	}
	return &wsConn{conn: conn}
}

// ReadPrompt returns the next text or binary frame as a prompt. The context
// is only checked up front: a blocked read is released by Close.
func (c *wsConn) ReadPrompt(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	_, data, err := c.conn.ReadMessage()
	if errors.Is(err, websocket.ErrReadLimit) {
		return "", fmt.Errorf("%w: %w", stream.ErrPromptTooLarge, err)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *wsConn) WriteFragment(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// Close sends a close frame with code and reason, then drops the connection
func (c *wsConn) Close(code stream.CloseCode, reason string) error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(int(code), reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
