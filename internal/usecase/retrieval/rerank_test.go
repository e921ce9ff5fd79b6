package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/domain/chunk"
)

func scoredFixture(n int) []chunk.Scored {
	out := make([]chunk.Scored, n)
	for i := range out {
		out[i] = chunk.Scored{
			Chunk:       mkChunk(fmt.Sprintf("doc%d.pdf", i), 1, 0, fmt.Sprintf("passage number %d text", i), "", nil, nil),
			HybridScore: float64(n - i),
		}
	}
	return out
}

func TestParseRankedIndices(t *testing.T) {
	tests := []struct {
		name string
		resp string
		n    int
		want []int
	}{
		{"clean", "3, 1, 2", 3, []int{2, 0, 1}},
		{"trailing period", "2., 1.", 3, []int{1, 0}},
		{"out of range skipped", "9, 2, 0, 1", 3, []int{1, 0}},
		{"duplicates skipped", "1, 1, 2", 3, []int{0, 1}},
		{"garbage tokens skipped", "first, 2, banana, 3", 3, []int{1, 2}},
		{"all garbage", "the most relevant passage is clearly", 3, nil},
		{"commentary after first line", "2, 1\nThese passages discuss fade.", 3, []int{1, 0}},
		{"empty", "", 3, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseRankedIndices(tt.resp, tt.n, tt.n)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestParseRankedIndices_StopsAtWant(t *testing.T) {
	got := parseRankedIndices("5, 4, 3, 2, 1", 5, 2)
	if len(got) != 2 || got[0] != 4 || got[1] != 3 {
		t.Errorf("got %v, want [4 3]", got)
	}
}

func TestNumberedPreviews_TruncatesAndNumbersFromOne(t *testing.T) {
	cands := []chunk.Scored{
		{Chunk: mkChunk("a.pdf", 1, 0, strings.Repeat("x", 50), "", nil, nil)},
		{Chunk: mkChunk("b.pdf", 1, 0, "short", "", nil, nil)},
	}

	got := numberedPreviews(cands, 10)
	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines", len(lines))
	}
	if lines[0] != "1. "+strings.Repeat("x", 10) {
		t.Errorf("line 1 = %q", lines[0])
	}
	if lines[1] != "2. short" {
		t.Errorf("line 2 = %q", lines[1])
	}
}

func TestRerank_AppliesModelOrder(t *testing.T) {
	cands := scoredFixture(4)
	cp := &mockCompleter{respond: func(string) (string, error) { return "3, 1", nil }}
	svc := newTestService(&mockCorpus{}, &mockEmbedder{}, cp, DefaultOptions())

	got, ranked := svc.rerank(context.Background(), "q", cands, 2)
	if !ranked {
		t.Fatal("expected model ranking to apply")
	}
	if len(got) != 2 || got[0].Source() != "doc2.pdf" || got[1].Source() != "doc0.pdf" {
		t.Errorf("unexpected order: %s, %s", got[0].Source(), got[1].Source())
	}
}

func TestRerank_BackfillsShortResponse(t *testing.T) {
	cands := scoredFixture(4)
	cp := &mockCompleter{respond: func(string) (string, error) { return "4", nil }}
	svc := newTestService(&mockCorpus{}, &mockEmbedder{}, cp, DefaultOptions())

	got, ranked := svc.rerank(context.Background(), "q", cands, 3)
	if !ranked {
		t.Fatal("expected model ranking to apply")
	}
	// Model picked 4; positions 2 and 3 backfill from hybrid order.
	want := []string{"doc3.pdf", "doc0.pdf", "doc1.pdf"}
	for i, w := range want {
		if got[i].Source() != w {
			t.Errorf("position %d = %s, want %s", i, got[i].Source(), w)
		}
	}
}

func TestRerank_GarbageFallsBackToHybridOrder(t *testing.T) {
	cands := scoredFixture(4)
	cp := &mockCompleter{respond: func(string) (string, error) { return "no idea, sorry", nil }}
	svc := newTestService(&mockCorpus{}, &mockEmbedder{}, cp, DefaultOptions())

	got, ranked := svc.rerank(context.Background(), "q", cands, 2)
	if ranked {
		t.Error("garbage output must not count as ranked")
	}
	if got[0].Source() != "doc0.pdf" || got[1].Source() != "doc1.pdf" {
		t.Errorf("expected hybrid order fallback, got %s, %s", got[0].Source(), got[1].Source())
	}
}

func TestRerank_APIErrorFallsBackToHybridOrder(t *testing.T) {
	cands := scoredFixture(4)
	cp := &mockCompleter{respond: func(string) (string, error) { return "", errors.New("rate limited") }}
	svc := newTestService(&mockCorpus{}, &mockEmbedder{}, cp, DefaultOptions())

	got, ranked := svc.rerank(context.Background(), "q", cands, 2)
	if ranked {
		t.Error("API failure must not count as ranked")
	}
	if len(got) != 2 || got[0].Source() != "doc0.pdf" {
		t.Errorf("expected first topK in hybrid order")
	}
}

func TestRerank_JudgesAgainstOriginalQuestion(t *testing.T) {
	cands := scoredFixture(3)
	cp := &mockCompleter{respond: func(string) (string, error) { return "1, 2", nil }}
	svc := newTestService(&mockCorpus{}, &mockEmbedder{}, cp, DefaultOptions())

	svc.rerank(context.Background(), "why does LFP fade", cands, 2)
	if len(cp.prompts) != 1 || !strings.Contains(cp.prompts[0], "why does LFP fade") {
		t.Error("rerank prompt must contain the original question")
	}
}
