package retrieval

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/domain/chunk"
)

const rerankPromptTemplate = `You rank passages from battery research papers by relevance to a question.

Question: %s

Passages:
%s
Reply with the numbers of the %d most relevant passages, comma-separated,
most relevant first. Numbers only.`

// rerank asks the model to reorder the candidates against the original
// question. Every failure mode degrades gracefully: unparseable or
// out-of-range indices are skipped, short responses are backfilled from the
// hybrid order, and a total API failure returns the first topK unchanged.
// The result always has min(topK, len(candidates)) entries. The second
// return value reports whether the model's ranking was actually applied.
func (s *Service) rerank(
	ctx context.Context, question string, candidates []chunk.Scored, topK int,
) ([]chunk.Scored, bool) {
	want := topK
	if len(candidates) < want {
		want = len(candidates)
	}

	prompt := fmt.Sprintf(rerankPromptTemplate, question, numberedPreviews(candidates, s.opts.PreviewChars), want)

	resp, err := s.completer.Complete(ctx, prompt, s.opts.MaxTokens, s.opts.Temperature)
	if err != nil {
		s.logger.Warn("reranking failed, keeping hybrid order", zap.Error(err))
		return candidates[:want], false
	}

	order := parseRankedIndices(resp, len(candidates), want)
	if len(order) == 0 {
		s.logger.Warn("reranker returned no usable indices, keeping hybrid order",
			zap.String("response", firstLine(resp)))
		return candidates[:want], false
	}

	picked := make([]chunk.Scored, 0, want)
	used := make(map[int]bool, want)
	for _, i := range order {
		picked = append(picked, candidates[i])
		used[i] = true
	}

	// Backfill short responses from the hybrid order.
	for i := 0; len(picked) < want; i++ {
		if !used[i] {
			picked = append(picked, candidates[i])
		}
	}

	return picked, true
}

// numberedPreviews renders candidates as a 1-based numbered list with text
// truncated to previewChars runes.
func numberedPreviews(candidates []chunk.Scored, previewChars int) string {
	var b strings.Builder
	for i := range candidates {
		preview := candidates[i].Text()
		if r := []rune(preview); previewChars > 0 && len(r) > previewChars {
			preview = string(r[:previewChars])
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, preview)
	}
	return b.String()
}

// parseRankedIndices extracts up to want zero-based candidate indices from a
// comma-separated 1-based list. Invalid tokens, duplicates, and out-of-range
// numbers are skipped rather than failing the whole response.
func parseRankedIndices(resp string, n, want int) []int {
	var out []int
	seen := make(map[int]bool)

	for _, tok := range strings.Split(firstLine(resp), ",") {
		tok = strings.TrimSpace(tok)
		tok = strings.TrimSuffix(tok, ".")
		num, err := strconv.Atoi(tok)
		if err != nil || num < 1 || num > n || seen[num] {
			continue
		}
		seen[num] = true
		out = append(out, num-1)
		if len(out) == want {
			break
		}
	}

	return out
}
