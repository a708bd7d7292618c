package prompt

import (
	"fmt"
	"strings"

	"github.com/harun/turbogenius/pkg/session"
)

// Template renders a transcript into the text form an engine expects.
// The rendering ends with the header that opens the assistant's turn.
type Template interface {
	Name() string
	Render(messages []session.Message) string
}

// Llama3 is the Meta-Llama-3 Instruct chat format
type Llama3 struct{}

func (Llama3) Name() string { return "llama3" }

func (Llama3) Render(messages []session.Message) string {
	var b strings.Builder
	b.WriteString("<|begin_of_text|>")
	for _, msg := range messages {
		b.WriteString("<|start_header_id|>")
		b.WriteString(string(msg.Role))
		b.WriteString("<|end_header_id|>\n\n")
		b.WriteString(msg.Content)
		b.WriteString("<|eot_id|>")
	}
	b.WriteString("<|start_header_id|>assistant<|end_header_id|>\n\n")
	return b.String()
}

// ChatML is the <|im_start|>/<|im_end|> chat format
type ChatML struct{}

func (ChatML) Name() string { return "chatml" }

func (ChatML) Render(messages []session.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		b.WriteString("<|im_start|>")
		b.WriteString(string(msg.Role))
		b.WriteString("\n")
		b.WriteString(msg.Content)
		b.WriteString("<|im_end|>\n")
	}
	b.WriteString("<|im_start|>assistant\n")
	return b.String()
}

// TemplateByName returns the template registered under name
func TemplateByName(name string) (Template, error) {
	switch strings.ToLower(name) {
	case "", "llama3":
		return Llama3{}, nil
	case "chatml":
		return ChatML{}, nil
	default:
		return nil, fmt.Errorf("unknown prompt template: %s", name)
	}
}
