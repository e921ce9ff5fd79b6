package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/domain/chunk"
)

// scoreHybrid ranks the candidates against the (possibly expanded) search
// text: cosine similarity on embeddings, BM25 on tokens, both min-max
// normalized and fused with the configured alpha. Returns at most k results,
// stably sorted by fused score descending.
func (s *Service) scoreHybrid(
	ctx context.Context, searchText string, candidates []chunk.Chunk, k int,
) ([]chunk.Scored, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	queryEmb, err := s.embedder.Embed(ctx, searchText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	if err = s.fillMissingVectors(ctx, candidates); err != nil {
		return nil, err
	}

	vecScores := make([]float64, len(candidates))
	for i := range candidates {
		vecScores[i] = cosineSimilarity(queryEmb.Embedding, candidates[i].Vector())
	}

	docs := make([][]string, len(candidates))
	for i := range candidates {
		docs[i] = tokenize(candidates[i].Text())
	}
	lexScores := newBM25Index(docs).Scores(tokenize(searchText))

	vecNorm := minMaxNormalize(vecScores)
	lexNorm := minMaxNormalize(lexScores)

	scored := make([]chunk.Scored, len(candidates))
	for i := range candidates {
		scored[i] = chunk.Scored{
			Chunk:        candidates[i],
			VectorScore:  vecScores[i],
			LexicalScore: lexScores[i],
			HybridScore:  s.opts.Alpha*vecNorm[i] + (1-s.opts.Alpha)*lexNorm[i],
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].HybridScore > scored[j].HybridScore
	})

	// A zero fused score means the chunk ranked last on both channels:
	// noise relative to this query, not a result. When every candidate ties
	// at zero there is no ranking signal at all and the set is kept.
	if scored[0].HybridScore > 0 {
		for len(scored) > 0 && scored[len(scored)-1].HybridScore == 0 {
			scored = scored[:len(scored)-1]
		}
	}

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// fillMissingVectors batch-embeds any candidates stored without a vector.
// One API call regardless of how many are missing.
func (s *Service) fillMissingVectors(ctx context.Context, candidates []chunk.Chunk) error {
	var missing []int
	for i := range candidates {
		if len(candidates[i].Vector()) == 0 {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	texts := make([]string, len(missing))
	for j, i := range missing {
		texts[j] = candidates[i].Text()
	}

	res, err := s.embedder.BatchEmbed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed %d unvectorized chunks: %w", len(missing), err)
	}
	if len(res.Embeddings) != len(missing) {
		return fmt.Errorf("embedding count mismatch: got %d, want %d", len(res.Embeddings), len(missing))
	}

	for j, i := range missing {
		candidates[i] = candidates[i].WithVector(res.Embeddings[j])
	}

	s.logger.Debug("embedded unvectorized chunks", zap.Int("count", len(missing)))
	return nil
}

// cosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either vector is empty or zero-length.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// minMaxNormalize rescales scores to [0,1]. When every score is equal there
// is no ordering signal, so the whole channel collapses to 0 and the other
// channel decides the ranking alone.
func minMaxNormalize(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}

	lo, hi := scores[0], scores[0]
	for _, v := range scores[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	out := make([]float64, len(scores))
	if hi == lo {
		return out
	}
	for i, v := range scores {
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}
