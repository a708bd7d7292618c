package prompt

import "context"

// Tokenizer measures text in the generation engine's token units
type Tokenizer interface {
	Tokenize(ctx context.Context, text string) ([]int, error)
}

// ByteTokenizer treats every byte as one token. No BPE vocabulary produces
// more tokens than bytes, so it never underestimates a prompt.
type ByteTokenizer struct{}

func (ByteTokenizer) Tokenize(_ context.Context, text string) ([]int, error) {
	tokens := make([]int, len(text))
	for i := 0; i < len(text); i++ {
		tokens[i] = int(text[i])
	}
	return tokens, nil
}

// TokenizerFunc adapts a function to Tokenizer
type TokenizerFunc func(ctx context.Context, text string) ([]int, error)

func (f TokenizerFunc) Tokenize(ctx context.Context, text string) ([]int, error) {
	return f(ctx, text)
}
