package retrieval

import (
	"math"
	"strings"
)

// BM25 parameters (Okapi variant). The idf floor replaces negative idf values
// with idfFloorEps times the mean idf, so terms present in most documents
// still contribute a small positive weight.
const (
	bm25K1      = 1.5
	bm25B       = 0.75
	idfFloorEps = 0.25
)

// tokenize lowercases and splits on whitespace. Deliberately simple: the
// corpus is scientific prose and the index is rebuilt per query anyway.
func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// bm25Index is a per-query lexical index over the candidate set. Built fresh
// for every query; at personal-library scale the O(corpus) rebuild is cheaper
// than maintaining an incremental index across out-of-process corpus writes.
type bm25Index struct {
	termFreqs []map[string]int
	docLens   []int
	avgDocLen float64
	idf       map[string]float64
}

// newBM25Index builds the index from pre-tokenized documents.
func newBM25Index(docs [][]string) *bm25Index {
	idx := &bm25Index{
		termFreqs: make([]map[string]int, len(docs)),
		docLens:   make([]int, len(docs)),
		idf:       make(map[string]float64),
	}

	docFreq := make(map[string]int)
	totalLen := 0

	for i, tokens := range docs {
		tf := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}
		idx.termFreqs[i] = tf
		idx.docLens[i] = len(tokens)
		totalLen += len(tokens)

		for t := range tf {
			docFreq[t]++
		}
	}

	if len(docs) > 0 {
		idx.avgDocLen = float64(totalLen) / float64(len(docs))
	}

	// Standard Okapi idf can go negative for terms in more than half the
	// documents; those get floored to a fraction of the mean idf instead.
	n := float64(len(docs))
	var idfSum float64
	var negative []string

	for t, df := range docFreq {
		v := math.Log((n - float64(df) + 0.5) / (float64(df) + 0.5))
		idx.idf[t] = v
		idfSum += v
		if v < 0 {
			negative = append(negative, t)
		}
	}

	if len(docFreq) > 0 {
		floor := idfFloorEps * (idfSum / float64(len(docFreq)))
		for _, t := range negative {
			idx.idf[t] = floor
		}
	}

	return idx
}

// Scores returns one BM25 score per indexed document, aligned to the input
// order, for the given query tokens.
func (idx *bm25Index) Scores(queryTokens []string) []float64 {
	scores := make([]float64, len(idx.termFreqs))

	for i, tf := range idx.termFreqs {
		lenNorm := bm25K1
		if idx.avgDocLen > 0 {
			lenNorm = bm25K1 * (1 - bm25B + bm25B*float64(idx.docLens[i])/idx.avgDocLen)
		}
		var score float64
		for _, t := range queryTokens {
			f := float64(tf[t])
			if f == 0 {
				continue
			}
			score += idx.idf[t] * f * (bm25K1 + 1) / (f + lenNorm)
		}
		scores[i] = score
	}

	return scores
}
