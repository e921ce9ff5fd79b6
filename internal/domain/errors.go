package domain

import "errors"

var (
	// ErrCorpusUnavailable signals the chunk corpus cannot be reached.
	ErrCorpusUnavailable = errors.New("corpus unavailable")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrCompletionProviderError signals a completion provider failure.
	ErrCompletionProviderError = errors.New("completion provider error")
	// ErrInvalidQuery signals a malformed retrieval request.
	ErrInvalidQuery = errors.New("invalid query")
)
