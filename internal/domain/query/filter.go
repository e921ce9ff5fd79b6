package query

import (
	"strings"

	"github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/domain/chunk"
)

// Filter is the optional set of metadata constraints supplied by the caller.
// All supplied constraints are conjunctive; zero values impose no constraint.
// PaperType is the only constraint the store can evaluate as an equality
// predicate; the rest are applied application-side via Matches.
type Filter struct {
	// Chemistry requires an exact tag match in the chunk's chemistry set.
	Chemistry string
	// Topic requires a case-normalized tag match in the chunk's topic set.
	Topic string
	// PaperType requires an exact paper type match.
	PaperType string
	// Collection restricts results to chunks whose source document id
	// belongs to the given set.
	Collection []string
}

// IsEmpty reports whether no constraint is set.
func (f *Filter) IsEmpty() bool {
	return f.Chemistry == "" && f.Topic == "" && f.PaperType == "" && len(f.Collection) == 0
}

// Matches applies every supplied constraint to the chunk.
func (f *Filter) Matches(c *chunk.Chunk) bool {
	if f.Chemistry != "" && !containsExact(c.Chemistries(), f.Chemistry) {
		return false
	}
	if f.Topic != "" && !containsFold(c.Topics(), f.Topic) {
		return false
	}
	if f.PaperType != "" && c.PaperType() != f.PaperType {
		return false
	}
	if len(f.Collection) > 0 && !containsExact(f.Collection, c.Source()) {
		return false
	}
	return true
}

func containsExact(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}

func containsFold(tags []string, want string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, want) {
			return true
		}
	}
	return false
}
