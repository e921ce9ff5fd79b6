package query

import "fmt"

// Mode selects the retrieval strategy.
type Mode string

const (
	// ModeSimple is the single-stage KNN fast path: no lexical scoring,
	// no expansion, no reranking.
	ModeSimple Mode = "simple"
	// ModeHybrid is the full pipeline: expansion, hybrid scoring over the
	// filtered snapshot, and LLM reranking.
	ModeHybrid Mode = "hybrid"
)

// ParseMode parses a mode string; empty defaults to hybrid.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeHybrid, nil
	case ModeSimple, ModeHybrid:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown retrieval mode %q", s)
	}
}
