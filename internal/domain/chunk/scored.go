package chunk

// Scored is a Chunk plus transient per-query relevance scores. The fields
// exist only for the duration of one query and are never persisted.
type Scored struct {
	Chunk

	// VectorScore is the raw cosine similarity against the query vector.
	VectorScore float64
	// LexicalScore is the raw BM25 score against the query tokens.
	LexicalScore float64
	// HybridScore is the fused score the final ranking is sorted by.
	HybridScore float64
}
