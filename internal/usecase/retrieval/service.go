// Package retrieval implements the query pipeline: optional LLM query
// expansion, hybrid vector+BM25 scoring over the filtered corpus snapshot,
// and optional LLM reranking. The expansion and rerank stages soft-fail;
// only corpus and embedding failures surface to the caller.
package retrieval

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/domain"
	"github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/domain/chunk"
	"github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/domain/query"
	"github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/metrics"
)

// Service orchestrates the retrieval pipeline.
type Service struct {
	corpus    Corpus
	embedder  Embedder
	completer domain.Completer
	opts      Options
	logger    *zap.Logger
}

// New creates a retrieval service. completer may be nil, in which case the
// expansion and rerank stages are skipped regardless of the options.
func New(corpus Corpus, embedder Embedder, completer domain.Completer, opts Options, logger *zap.Logger) *Service {
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}
	if opts.NCandidates < opts.TopK {
		opts.NCandidates = opts.TopK
	}
	return &Service{
		corpus:    corpus,
		embedder:  embedder,
		completer: completer,
		opts:      opts,
		logger:    logger,
	}
}

// Retrieve answers the request with an ordered list of relevant chunks.
// An empty result is a valid answer, not an error.
func (s *Service) Retrieve(ctx context.Context, req *query.Request) ([]chunk.Scored, error) {
	start := time.Now()
	defer func() {
		metrics.RetrievalDuration.WithLabelValues(string(req.Mode())).Observe(time.Since(start).Seconds())
	}()

	topK := req.TopK()
	if topK <= 0 {
		topK = s.opts.TopK
	}

	switch req.Mode() {
	case query.ModeSimple:
		return s.retrieveSimple(ctx, req, topK)
	case query.ModeHybrid:
		return s.retrieveHybrid(ctx, req, topK)
	default:
		return nil, fmt.Errorf("%w: unsupported mode %q", domain.ErrInvalidQuery, req.Mode())
	}
}

// retrieveSimple is the single-stage KNN fast path: embed the question, let
// the store rank by vector similarity, then apply the remaining filters
// application-side.
func (s *Service) retrieveSimple(ctx context.Context, req *query.Request, topK int) ([]chunk.Scored, error) {
	emb, err := s.embedder.Embed(ctx, req.Question())
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	f := req.Filter()
	results, err := s.corpus.QueryByVector(ctx, emb.Embedding, s.opts.NCandidates, f.PaperType)
	if err != nil {
		return nil, err
	}

	if !f.IsEmpty() {
		kept := results[:0]
		for i := range results {
			if f.Matches(&results[i].Chunk) {
				kept = append(kept, results[i])
			}
		}
		results = kept
	}

	if len(results) > topK {
		results = results[:topK]
	}

	s.logger.Info("retrieval complete",
		zap.String("mode", string(query.ModeSimple)),
		zap.Int("results", len(results)),
	)
	return results, nil
}

// retrieveHybrid runs the full pipeline over a fresh corpus snapshot:
// filter, expand, hybrid-score, rerank, truncate.
func (s *Service) retrieveHybrid(ctx context.Context, req *query.Request, topK int) ([]chunk.Scored, error) {
	all, err := s.corpus.GetAll(ctx, req.Filter().PaperType)
	if err != nil {
		return nil, err
	}

	f := req.Filter()
	candidates := all[:0]
	for i := range all {
		if f.Matches(&all[i]) {
			candidates = append(candidates, all[i])
		}
	}

	if len(candidates) == 0 {
		s.logger.Info("no chunks match the filters", zap.Int("corpus_size", len(all)))
		return nil, nil
	}

	searchText := req.Question()
	switch {
	case !s.opts.EnableQueryExpansion || s.completer == nil:
		metrics.RetrievalStageTotal.WithLabelValues("expand", "skipped").Inc()
	default:
		expanded, ok := s.expandQuery(ctx, req.Question())
		searchText = expanded
		if ok {
			metrics.RetrievalStageTotal.WithLabelValues("expand", "ok").Inc()
		} else {
			metrics.RetrievalStageTotal.WithLabelValues("expand", "fallback").Inc()
		}
	}

	scored, err := s.scoreHybrid(ctx, searchText, candidates, s.opts.NCandidates)
	if err != nil {
		return nil, err
	}

	switch {
	case !s.opts.EnableReranking || s.completer == nil || len(scored) <= topK:
		metrics.RetrievalStageTotal.WithLabelValues("rerank", "skipped").Inc()
		if len(scored) > topK {
			scored = scored[:topK]
		}
	default:
		var ranked bool
		scored, ranked = s.rerank(ctx, req.Question(), scored, topK)
		if ranked {
			metrics.RetrievalStageTotal.WithLabelValues("rerank", "ok").Inc()
		} else {
			metrics.RetrievalStageTotal.WithLabelValues("rerank", "fallback").Inc()
		}
	}

	s.logger.Info("retrieval complete",
		zap.String("mode", string(query.ModeHybrid)),
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(scored)),
	)
	return scored, nil
}
