package retrieval

import (
	"context"

	"github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/domain"
	"github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/domain/chunk"
)

// Corpus reads the chunk corpus. Paper type is the only constraint the store
// evaluates; everything else is filtered application-side.
type Corpus interface {
	GetAll(ctx context.Context, paperType string) ([]chunk.Chunk, error)
	QueryByVector(ctx context.Context, vector []float32, k int, paperType string) ([]chunk.Scored, error)
}

// Embedder vectorizes the query and any chunks stored without a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

// Options holds the pipeline knobs, resolved once at construction.
type Options struct {
	// TopK is the default result count when the request does not set one.
	TopK int
	// NCandidates is how many chunks the hybrid scorer (and the KNN fast
	// path) keeps before reranking. Must be >= TopK.
	NCandidates int
	// Alpha weights the vector score in the hybrid fusion; 1-Alpha weights
	// the lexical score.
	Alpha float64
	// EnableQueryExpansion toggles the LLM expansion stage.
	EnableQueryExpansion bool
	// EnableReranking toggles the LLM rerank stage.
	EnableReranking bool
	// PreviewChars truncates chunk text in the rerank prompt.
	PreviewChars int
	// MaxTokens and Temperature apply to both LLM stages.
	MaxTokens   int
	Temperature float32
}

// DefaultOptions matches the shipped configuration defaults.
func DefaultOptions() Options {
	return Options{
		TopK:                 5,
		NCandidates:          15,
		Alpha:                0.5,
		EnableQueryExpansion: true,
		EnableReranking:      true,
		PreviewChars:         300,
		MaxTokens:            256,
		Temperature:          0.3,
	}
}
