package stream

import (
	"context"
	"errors"
)

// CloseCode is the reason code sent when a stream connection is closed.
// Values follow websocket close codes; 4xxx are application codes.
type CloseCode int

const (
	CloseNormal   CloseCode = 1000
	ClosePolicy   CloseCode = 1008
	CloseTooLarge CloseCode = 1009
	CloseInternal CloseCode = 1011
	CloseNotFound CloseCode = 4404
	CloseBusy     CloseCode = 4409
)

// Close reasons sent to the client
const (
	ReasonEmptyPrompt   = "empty prompt"
	ReasonNotFound      = "session not found"
	ReasonBusy          = "session busy"
	ReasonGeneration    = "generation failed"
	ReasonContextBudget = "context budget exceeded"
	ReasonPromptBuild   = "prompt build failed"
	ReasonTooLarge      = "prompt too large"
)

// ErrPromptTooLarge is returned by ReadPrompt when the client's prompt frame
// exceeds the transport's size limit
var ErrPromptTooLarge = errors.New("prompt too large")

// Conn is one client connection carrying a single exchange: one prompt
// frame in, fragment frames out, then a close.
//
// ReadPrompt is never called concurrently with itself. WriteFragment and
// Close are called from one goroutine. Close must unblock a pending
// ReadPrompt.
type Conn interface {
	ReadPrompt(ctx context.Context) (string, error)
	WriteFragment(ctx context.Context, text string) error
	Close(code CloseCode, reason string) error
}
