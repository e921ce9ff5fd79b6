package retrieval

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const expandPromptTemplate = `You help search a library of battery research papers.
Given a question, reply with ONE line of additional search terms: synonyms,
common abbreviations, and closely related technical vocabulary. Terms only,
space-separated, no explanations.

Question: %s
Terms:`

// expandQuery asks the model for related terms and appends them to the
// original question. The expanded text seeds retrieval only; reranking always
// judges against the original question. Any failure degrades to the original.
func (s *Service) expandQuery(ctx context.Context, question string) (string, bool) {
	prompt := fmt.Sprintf(expandPromptTemplate, question)

	resp, err := s.completer.Complete(ctx, prompt, s.opts.MaxTokens, s.opts.Temperature)
	if err != nil {
		s.logger.Warn("query expansion failed, using original question", zap.Error(err))
		return question, false
	}

	terms := firstLine(resp)
	if terms == "" {
		s.logger.Warn("query expansion returned no terms, using original question")
		return question, false
	}

	return question + " " + terms, true
}

// firstLine returns the first non-blank line of an LLM response, trimmed.
// Models occasionally prepend blank lines or append commentary.
func firstLine(resp string) string {
	for _, line := range strings.Split(resp, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
