package corpus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/db"
	"github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/domain"
	"github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/domain/chunk"
)

// Store is the consumer interface for corpus operations (ISP).
type Store interface {
	Ping(ctx context.Context) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// AcquireFunc obtains a store handle. Called lazily on first use and again
// after Invalidate, so out-of-scope writers (the ingestion process) can force
// the next query onto a fresh handle.
type AcquireFunc func(ctx context.Context) (Store, error)

// HNSWConfig holds index construction parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Repo is the handle to the durable chunk corpus. The handle persists across
// queries; chunk data is always read fresh per query.
type Repo struct {
	acquire AcquireFunc
	prefix  string
	dim     int
	hnsw    HNSWConfig

	mu  sync.Mutex
	cur Store
}

// New creates a corpus repository over a lazily-acquired store.
func New(acquire AcquireFunc, keyPrefix string, vectorDim int) *Repo {
	if keyPrefix == "" {
		keyPrefix = domain.KeyPrefix
	}
	if vectorDim <= 0 {
		vectorDim = domain.DefaultVectorConfig().Dimensions
	}
	return &Repo{acquire: acquire, prefix: keyPrefix, dim: vectorDim}
}

// WithHNSW sets index construction parameters.
func (r *Repo) WithHNSW(cfg HNSWConfig) *Repo {
	r.hnsw = cfg
	return r
}

// Invalidate drops the current store handle; the next call re-acquires.
func (r *Repo) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cur = nil
}

func (r *Repo) handle(ctx context.Context) (Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cur != nil {
		return r.cur, nil
	}

	s, err := r.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: acquire store: %w", domain.ErrCorpusUnavailable, err)
	}
	if err := s.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCorpusUnavailable, err)
	}

	r.cur = s
	return s, nil
}

// Ping probes the store, acquiring a handle first if needed.
func (r *Repo) Ping(ctx context.Context) error {
	s, err := r.handle(ctx)
	if err != nil {
		return err
	}
	return s.Ping(ctx)
}

func (r *Repo) chunkPattern() string { return r.prefix + "chunks:*" }
func (r *Repo) indexName() string    { return r.prefix + "chunks:idx" }

// GetAll reads a full corpus snapshot (text, metadata, stored vectors).
// paperType, if non-empty, is the one equality predicate applied at this
// layer; all other filters are set/substring constraints and belong to the
// caller. Chunks are returned in deterministic corpus order.
func (r *Repo) GetAll(ctx context.Context, paperType string) ([]chunk.Chunk, error) {
	s, err := r.handle(ctx)
	if err != nil {
		return nil, err
	}

	keys, err := s.Scan(ctx, r.chunkPattern())
	if err != nil {
		return nil, fmt.Errorf("%w: scan chunks: %w", domain.ErrCorpusUnavailable, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	hashes, err := s.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("%w: read chunks: %w", domain.ErrCorpusUnavailable, err)
	}

	chunks := make([]chunk.Chunk, 0, len(hashes))
	for _, fields := range hashes {
		c, ok := chunkFromFields(fields)
		if !ok {
			continue
		}
		if paperType != "" && c.PaperType() != paperType {
			continue
		}
		chunks = append(chunks, c)
	}

	// SCAN order is not stable; fix corpus order so downstream tie-breaks
	// are reproducible.
	sort.Slice(chunks, func(i, j int) bool {
		a, b := &chunks[i], &chunks[j]
		if a.Source() != b.Source() {
			return a.Source() < b.Source()
		}
		if a.Page() != b.Page() {
			return a.Page() < b.Page()
		}
		return a.Index() < b.Index()
	})

	return chunks, nil
}

// QueryByVector runs the store-side KNN fast path with an optional paper-type
// equality pre-filter. Results come back ranked by similarity.
func (r *Repo) QueryByVector(
	ctx context.Context, vector []float32, k int, paperType string,
) ([]chunk.Scored, error) {
	s, err := r.handle(ctx)
	if err != nil {
		return nil, err
	}

	q := &db.KNNQuery{
		IndexName:    r.indexName(),
		Vector:       vector,
		K:            k,
		ReturnFields: returnFields,
	}
	if paperType != "" {
		q.TagFilters = map[string]string{fieldPaperType: paperType}
	}

	sr, err := s.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: knn search: %w", domain.ErrCorpusUnavailable, err)
	}

	results := make([]chunk.Scored, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		c, ok := chunkFromFields(entry.Fields)
		if !ok {
			continue
		}
		results = append(results, chunk.Scored{
			Chunk:       c,
			VectorScore: entry.Score,
			HybridScore: entry.Score,
		})
	}

	return results, nil
}

// EnsureIndex creates the KNN index if it does not exist yet. Safe to call on
// every startup.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	s, err := r.handle(ctx)
	if err != nil {
		return err
	}

	exists, err := s.IndexExists(ctx, r.indexName())
	if err != nil {
		return fmt.Errorf("probe index: %w", err)
	}
	if exists {
		return nil
	}

	def := &db.IndexDefinition{
		Name:        r.indexName(),
		StorageType: db.StorageHash,
		Prefixes:    []string{r.prefix + "chunks:"},
		Fields: []db.IndexField{
			{Name: fieldPaperType, Type: db.IndexFieldTag},
			{Name: fieldChemistries, Type: db.IndexFieldTag, TagSeparator: tagSeparator},
			{Name: fieldTopics, Type: db.IndexFieldTag, TagSeparator: tagSeparator},
			{
				Name:              fieldVector,
				Type:              db.IndexFieldVector,
				VectorDim:         r.dim,
				VectorAlgo:        db.VectorHNSW,
				VectorDistance:    db.DistanceCosine,
				VectorM:           r.hnsw.M,
				VectorEFConstruct: r.hnsw.EFConstruct,
			},
		},
	}

	if err := s.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}
