package domain

import "context"

// Completer is the shared language-model completion contract. Both the query
// expansion and reranking stages go through the same transport and retry chain.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error)
}
