package vectorsearch

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel/attribute"

	"dbxagent/internal/logging"
	"dbxagent/internal/observability"
)

// LocalConfig configures a chromem-backed store.
type LocalConfig struct {
	// Path is the directory collections persist to; empty keeps them in memory.
	Path     string
	Embedder Embedder
	Logger   logging.Logger
	Metrics  SearchRecorder
}

// LocalStore holds one chromem collection per index name.
type LocalStore struct {
	db      *chromem.DB
	embed   chromem.EmbeddingFunc
	logger  logging.Logger
	metrics SearchRecorder

	mu      sync.Mutex
	indexes map[string]*LocalIndex
}

// NewLocalStore opens (or creates) the store described by cfg.
func NewLocalStore(cfg LocalConfig) (*LocalStore, error) {
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("local vector store requires an embedder")
	}

	var db *chromem.DB
	if cfg.Path != "" {
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, false)
		if err != nil {
			return nil, fmt.Errorf("open persistent store: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	embedder := cfg.Embedder
	return &LocalStore{
		db: db,
		embed: func(ctx context.Context, text string) ([]float32, error) {
			return embedder.Embed(ctx, text)
		},
		logger:  logging.OrNop(cfg.Logger),
		metrics: cfg.Metrics,
		indexes: make(map[string]*LocalIndex),
	}, nil
}

// Open implements Opener. Local collections are keyed by index name only.
func (s *LocalStore) Open(_ string, index string) (Index, error) {
	return s.OpenIndex(index)
}

// OpenIndex returns the collection named index, creating it when absent.
func (s *LocalStore) OpenIndex(index string) (*LocalIndex, error) {
	if index == "" {
		return nil, fmt.Errorf("index name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.indexes[index]; ok {
		return idx, nil
	}
	collection, err := s.db.GetOrCreateCollection(index, nil, s.embed)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", index, err)
	}
	idx := &LocalIndex{name: index, collection: collection, logger: s.logger, metrics: s.metrics}
	s.indexes[index] = idx
	return idx, nil
}

// IndexedDocument is a passage stored in a local index.
type IndexedDocument struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// LocalIndex is one chromem collection.
type LocalIndex struct {
	name       string
	collection *chromem.Collection
	logger     logging.Logger
	metrics    SearchRecorder
}

func (l *LocalIndex) Name() string {
	return l.name
}

// Count returns the number of stored documents.
func (l *LocalIndex) Count() int {
	return l.collection.Count()
}

// Add embeds and stores docs. Documents with an existing ID are replaced.
func (l *LocalIndex) Add(ctx context.Context, docs []IndexedDocument) error {
	if len(docs) == 0 {
		return nil
	}
	batch := make([]chromem.Document, 0, len(docs))
	for _, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("document id is required")
		}
		batch = append(batch, chromem.Document{ID: doc.ID, Content: doc.Content, Metadata: doc.Metadata})
	}
	if err := l.collection.AddDocuments(ctx, batch, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add documents to %s: %w", l.name, err)
	}
	l.logger.Debug("Indexed %d documents into %s", len(docs), l.name)
	return nil
}

// Delete removes documents by id.
func (l *LocalIndex) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return l.collection.Delete(ctx, nil, nil, ids...)
}

// Search ranks every document by similarity, then applies q.Filter to the
// document id, text and metadata before keeping the top NumResults.
func (l *LocalIndex) Search(ctx context.Context, q Query) (rows []map[string]any, err error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanVectorSearch,
		attribute.String(observability.AttrIndex, l.name))
	defer func() { observability.EndSpan(span, err) }()

	start := time.Now()
	defer func() {
		if l.metrics == nil {
			return
		}
		status := "success"
		if err != nil {
			status = "error"
		}
		l.metrics.RecordVectorSearch(ctx, l.name, status, time.Since(start))
	}()

	if q.Filter != nil {
		if err := q.Filter.Validate(); err != nil {
			return nil, fmt.Errorf("invalid filter: %w", err)
		}
	}
	count := l.collection.Count()
	if count == 0 {
		return []map[string]any{}, nil
	}
	k := q.NumResults
	if k <= 0 {
		k = DefaultNumResults
	}
	n := min(k, count)
	if q.Filter != nil {
		n = count
	}

	results, err := l.collection.Query(ctx, q.Text, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", l.name, err)
	}

	rows = make([]map[string]any, 0, min(k, len(results)))
	for _, hit := range results {
		attrs := make(map[string]any, len(hit.Metadata)+3)
		for key, value := range hit.Metadata {
			attrs[key] = value
		}
		attrs["id"] = hit.ID
		attrs[DefaultTextColumn] = hit.Content
		if q.Filter != nil && !q.Filter.Match(attrs) {
			continue
		}
		attrs[ScoreColumn] = float64(hit.Similarity)
		rows = append(rows, project(attrs, q.Columns))
		if len(rows) == k {
			break
		}
	}
	return rows, nil
}

func project(attrs map[string]any, columns []string) map[string]any {
	if len(columns) == 0 {
		return attrs
	}
	row := make(map[string]any, len(columns)+1)
	for _, col := range columns {
		if value, ok := attrs[col]; ok {
			row[col] = value
		}
	}
	row[ScoreColumn] = attrs[ScoreColumn]
	return row
}
