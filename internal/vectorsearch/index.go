// Package vectorsearch queries document indexes by similarity, either on a
// Databricks Vector Search endpoint or in a local chromem collection, and
// turns the hits into retrieval documents.
package vectorsearch

import (
	"context"
	"time"
)

// ScoreColumn is appended to every projection so hits carry their similarity.
const ScoreColumn = "score"

// Query is one similarity search.
type Query struct {
	Text       string
	Columns    []string
	NumResults int
	Filter     Filter
}

// Index answers similarity searches with rows of column values.
type Index interface {
	Name() string
	Search(ctx context.Context, q Query) ([]map[string]any, error)
}

// Opener resolves an index by endpoint and name.
type Opener interface {
	Open(endpoint, index string) (Index, error)
}

// SearchRecorder receives one record per search.
type SearchRecorder interface {
	RecordVectorSearch(ctx context.Context, index, status string, latency time.Duration)
}

func withScore(columns []string) []string {
	out := make([]string, 0, len(columns)+1)
	for _, col := range columns {
		if col == ScoreColumn {
			continue
		}
		out = append(out, col)
	}
	return append(out, ScoreColumn)
}
