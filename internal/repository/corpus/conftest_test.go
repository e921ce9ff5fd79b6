package corpus

import (
	"context"
	"encoding/binary"
	"math"
	"strconv"
	"testing"

	"github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/db"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	pingErr      error
	scanKeys     []string
	scanErr      error
	hashes       []map[string]string
	hashErr      error
	knnResult    *db.SearchResult
	knnErr       error
	lastKNNQuery *db.KNNQuery
	indexExists  bool
	existsCalls  int
	createdIndex *db.IndexDefinition
}

func (m *mockStore) Ping(_ context.Context) error { return m.pingErr }

func (m *mockStore) Scan(_ context.Context, _ string) ([]string, error) {
	return m.scanKeys, m.scanErr
}

func (m *mockStore) HGetAllMulti(_ context.Context, _ []string) ([]map[string]string, error) {
	return m.hashes, m.hashErr
}

func (m *mockStore) SearchKNN(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	m.lastKNNQuery = q
	if m.knnResult == nil {
		return &db.SearchResult{}, m.knnErr
	}
	return m.knnResult, m.knnErr
}

func (m *mockStore) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	m.createdIndex = def
	return nil
}

func (m *mockStore) IndexExists(_ context.Context, _ string) (bool, error) {
	m.existsCalls++
	return m.indexExists, nil
}

func newTestRepo(t *testing.T, ms *mockStore) (*Repo, *int) {
	t.Helper()
	acquires := 0
	repo := New(func(_ context.Context) (Store, error) {
		acquires++
		return ms, nil
	}, "paperdex:", 4)
	return repo, &acquires
}

func chunkFields(source string, page, index int, text string) map[string]string {
	return map[string]string{
		fieldSource:     source,
		fieldPage:       strconv.Itoa(page),
		fieldChunkIndex: strconv.Itoa(index),
		fieldContent:    text,
	}
}

func encodeVector(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
