// Package chi is the HTTP boundary: one query endpoint, the cache-bust hook
// for the out-of-process ingestion writer, and the health probe.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/domain"
	"github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/domain/chunk"
	"github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/domain/query"
	healthuc "github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/usecase/health"
)

// Retriever answers validated retrieval requests.
type Retriever interface {
	Retrieve(ctx context.Context, req *query.Request) ([]chunk.Scored, error)
}

// Invalidator drops the cached corpus-store handle after out-of-process writes.
type Invalidator interface {
	Invalidate()
}

// Server implements the HTTP API.
type Server struct {
	retrieval Retriever
	corpus    Invalidator
	health    *healthuc.Service
	logger    *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(retrieval Retriever, corpus Invalidator, health *healthuc.Service, logger *zap.Logger) *Server {
	return &Server{
		retrieval: retrieval,
		corpus:    corpus,
		health:    health,
		logger:    logger,
	}
}

// RegisterRoutes mounts the API on the given router.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Post("/v1/query", s.handleQuery)
	r.Post("/v1/corpus/invalidate", s.handleInvalidate)
	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
}

// QueryRequest is the POST /v1/query body.
type QueryRequest struct {
	Question string        `json:"question"`
	TopK     int           `json:"top_k,omitempty"`
	Mode     string        `json:"mode,omitempty"`
	Filters  *QueryFilters `json:"filters,omitempty"`
}

// QueryFilters mirrors query.Filter on the wire.
type QueryFilters struct {
	Chemistry  string   `json:"chemistry,omitempty"`
	Topic      string   `json:"topic,omitempty"`
	PaperType  string   `json:"paper_type,omitempty"`
	Collection []string `json:"collection,omitempty"`
}

// QueryResultItem is one ranked chunk in the response.
type QueryResultItem struct {
	Source       string   `json:"source"`
	Page         int      `json:"page"`
	ChunkIndex   int      `json:"chunk_index"`
	Section      string   `json:"section"`
	Text         string   `json:"text"`
	Chemistries  []string `json:"chemistries,omitempty"`
	Topics       []string `json:"topics,omitempty"`
	PaperType    string   `json:"paper_type,omitempty"`
	Score        float64  `json:"score"`
	VectorScore  float64  `json:"vector_score"`
	LexicalScore float64  `json:"lexical_score"`
}

// QueryResponse is the POST /v1/query response.
type QueryResponse struct {
	Items []QueryResultItem `json:"items"`
	Total int               `json:"total"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	m, err := query.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	var f query.Filter
	if req.Filters != nil {
		f = query.Filter{
			Chemistry:  req.Filters.Chemistry,
			Topic:      req.Filters.Topic,
			PaperType:  req.Filters.PaperType,
			Collection: req.Filters.Collection,
		}
	}

	q, err := query.New(req.Question, req.TopK, m, f)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, safeMessage(err))
		return
	}

	results, err := s.retrieval.Retrieve(r.Context(), &q)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]QueryResultItem, len(results))
	for i := range results {
		items[i] = resultToItem(&results[i])
	}

	writeJSON(w, http.StatusOK, QueryResponse{Items: items, Total: len(items)})
}

func (s *Server) handleInvalidate(w http.ResponseWriter, _ *http.Request) {
	s.corpus.Invalidate()
	s.logger.Info("corpus handle invalidated")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": string(report.Status),
		"checks": checks,
	})
}

func resultToItem(r *chunk.Scored) QueryResultItem {
	return QueryResultItem{
		Source:       r.Source(),
		Page:         r.Page(),
		ChunkIndex:   r.Index(),
		Section:      r.Section(),
		Text:         r.Text(),
		Chemistries:  r.Chemistries(),
		Topics:       r.Topics(),
		PaperType:    r.PaperType(),
		Score:        r.HybridScore,
		VectorScore:  r.VectorScore,
		LexicalScore: r.LexicalScore,
	}
}

// Error codes on the wire.
const (
	codeBadRequest        = "bad_request"
	codeValidationFailed  = "validation_failed"
	codeCorpusUnavailable = "corpus_unavailable"
	codeProviderError     = "provider_error"
	codeInternalError     = "internal_error"
)

// ErrorResponse is the error body for every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// safeMessage returns a sentinel error message for the client without
// exposing internals.
func safeMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidQuery,
		domain.ErrCorpusUnavailable,
		domain.ErrEmbeddingProviderError,
		domain.ErrCompletionProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	msg := safeMessage(err)

	switch {
	case errors.Is(err, domain.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, codeValidationFailed, msg)
	case errors.Is(err, domain.ErrCorpusUnavailable):
		s.logger.Warn("corpus unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, codeCorpusUnavailable, msg)
	case errors.Is(err, domain.ErrEmbeddingProviderError),
		errors.Is(err, domain.ErrCompletionProviderError):
		s.logger.Warn("provider error", zap.Error(err))
		writeError(w, http.StatusBadGateway, codeProviderError, msg)
	default:
		s.logger.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}
