package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/domain"
	"github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/domain/chunk"
	"github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/domain/query"
	healthuc "github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/usecase/health"
)

type mockRetriever struct {
	results []chunk.Scored
	err     error
	lastReq *query.Request
}

func (m *mockRetriever) Retrieve(_ context.Context, req *query.Request) ([]chunk.Scored, error) {
	m.lastReq = req
	return m.results, m.err
}

type mockInvalidator struct {
	calls int
}

func (m *mockInvalidator) Invalidate() { m.calls++ }

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

func newTestRouter(ret *mockRetriever, inv *mockInvalidator, pinger *mockPinger) chirouter.Router {
	if pinger == nil {
		pinger = &mockPinger{}
	}
	srv := NewServer(ret, inv, healthuc.New(pinger, nil), zap.NewNop())
	r := chirouter.NewRouter()
	srv.RegisterRoutes(r)
	return r
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHandleQuery_OK(t *testing.T) {
	ret := &mockRetriever{results: []chunk.Scored{
		{
			Chunk: chunk.Reconstruct("fade.pdf", 3, 1, "capacity fade text", "Results",
				[]string{"LFP"}, []string{"Degradation"}, "experimental", nil),
			VectorScore:  0.91,
			LexicalScore: 4.2,
			HybridScore:  0.87,
		},
	}}
	inv := &mockInvalidator{}
	router := newTestRouter(ret, inv, nil)

	rr := postJSON(t, router, "/v1/query", QueryRequest{
		Question: "why does LFP capacity fade",
		TopK:     3,
		Filters:  &QueryFilters{Chemistry: "LFP"},
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rr.Code, rr.Body.String())
	}

	var resp QueryResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 1 || len(resp.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", resp.Total)
	}
	item := resp.Items[0]
	if item.Source != "fade.pdf" || item.Page != 3 || item.ChunkIndex != 1 {
		t.Errorf("unexpected identity: %+v", item)
	}
	if item.Score != 0.87 || item.VectorScore != 0.91 {
		t.Errorf("unexpected scores: %+v", item)
	}

	// Empty mode on the wire defaults to hybrid.
	if ret.lastReq.Mode() != query.ModeHybrid {
		t.Errorf("mode = %q, want hybrid", ret.lastReq.Mode())
	}
	if ret.lastReq.Filter().Chemistry != "LFP" {
		t.Errorf("filter not forwarded")
	}
}

func TestHandleQuery_BlankQuestion_400(t *testing.T) {
	router := newTestRouter(&mockRetriever{}, &mockInvalidator{}, nil)

	rr := postJSON(t, router, "/v1/query", QueryRequest{Question: "   "})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("got %d, want 400", rr.Code)
	}

	var errResp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if errResp.Code != codeValidationFailed {
		t.Errorf("code = %s", errResp.Code)
	}
}

func TestHandleQuery_UnknownMode_400(t *testing.T) {
	router := newTestRouter(&mockRetriever{}, &mockInvalidator{}, nil)

	rr := postJSON(t, router, "/v1/query", QueryRequest{Question: "q", Mode: "fuzzy"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("got %d, want 400", rr.Code)
	}
}

func TestHandleQuery_MalformedBody_400(t *testing.T) {
	router := newTestRouter(&mockRetriever{}, &mockInvalidator{}, nil)

	req := httptest.NewRequest("POST", "/v1/query", bytes.NewReader([]byte("{not json")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("got %d, want 400", rr.Code)
	}
}

func TestHandleQuery_CorpusUnavailable_503(t *testing.T) {
	ret := &mockRetriever{err: domain.ErrCorpusUnavailable}
	router := newTestRouter(ret, &mockInvalidator{}, nil)

	rr := postJSON(t, router, "/v1/query", QueryRequest{Question: "q"})
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("got %d, want 503", rr.Code)
	}
}

func TestHandleQuery_EmbeddingProviderError_502(t *testing.T) {
	ret := &mockRetriever{err: domain.ErrEmbeddingProviderError}
	router := newTestRouter(ret, &mockInvalidator{}, nil)

	rr := postJSON(t, router, "/v1/query", QueryRequest{Question: "q"})
	if rr.Code != http.StatusBadGateway {
		t.Errorf("got %d, want 502", rr.Code)
	}
}

func TestHandleQuery_EmptyResultIsOK(t *testing.T) {
	router := newTestRouter(&mockRetriever{}, &mockInvalidator{}, nil)

	rr := postJSON(t, router, "/v1/query", QueryRequest{Question: "nothing matches"})
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rr.Code)
	}
	var resp QueryResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 0 {
		t.Errorf("expected empty result, got %d", resp.Total)
	}
}

func TestHandleInvalidate_204(t *testing.T) {
	inv := &mockInvalidator{}
	router := newTestRouter(&mockRetriever{}, inv, nil)

	req := httptest.NewRequest("POST", "/v1/corpus/invalidate", http.NoBody)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("got %d, want 204", rr.Code)
	}
	if inv.calls != 1 {
		t.Errorf("invalidate calls = %d", inv.calls)
	}
}

func TestHandleHealth(t *testing.T) {
	router := newTestRouter(&mockRetriever{}, &mockInvalidator{}, &mockPinger{})

	req := httptest.NewRequest("GET", "/healthz", http.NoBody)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("healthy: got %d, want 200", rr.Code)
	}

	router = newTestRouter(&mockRetriever{}, &mockInvalidator{},
		&mockPinger{err: domain.ErrCorpusUnavailable})

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("degraded: got %d, want 503", rr.Code)
	}
}
