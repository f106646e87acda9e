package vectorsearch

import (
	"context"
	"fmt"
	"strings"
)

const (
	DefaultTextColumn = "text"
	DefaultNumResults = 5
)

// Document is one retrieved passage.
type Document struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score"`
}

// Source returns the "source" metadata value, or "Unknown".
func (d Document) Source() string {
	if src, ok := d.Metadata["source"]; ok && src != nil {
		if s := fmt.Sprint(src); s != "" {
			return s
		}
	}
	return "Unknown"
}

// DocumentRetriever returns passages relevant to a question.
type DocumentRetriever interface {
	Retrieve(ctx context.Context, query string) ([]Document, error)
}

// Retriever runs plain similarity searches against an index.
type Retriever struct {
	Index      Index
	TextColumn string
	Columns    []string
	NumResults int
	Filter     Filter
}

// NewRetriever returns a retriever with the default text column and count.
func NewRetriever(index Index) *Retriever {
	return &Retriever{
		Index:      index,
		TextColumn: DefaultTextColumn,
		NumResults: DefaultNumResults,
	}
}

// Retrieve searches for query with the configured filter and count.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]Document, error) {
	return r.search(ctx, query, r.NumResults, r.Filter)
}

func (r *Retriever) search(ctx context.Context, query string, k int, filter Filter) ([]Document, error) {
	if r.Index == nil {
		return nil, fmt.Errorf("retriever has no index")
	}
	textColumn := r.TextColumn
	if textColumn == "" {
		textColumn = DefaultTextColumn
	}
	if k <= 0 {
		k = DefaultNumResults
	}
	columns := r.Columns
	if len(columns) == 0 {
		columns = []string{textColumn}
	}

	rows, err := r.Index.Search(ctx, Query{
		Text:       query,
		Columns:    withScore(columns),
		NumResults: k,
		Filter:     filter,
	})
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		doc := Document{Metadata: make(map[string]any, len(row))}
		for key, value := range row {
			if key == textColumn {
				if value != nil {
					doc.Content = fmt.Sprint(value)
				}
				continue
			}
			doc.Metadata[key] = value
		}
		if score, ok := toFloat(row[ScoreColumn]); ok {
			doc.Score = score
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// FormatDocuments renders hits as numbered, scored result blocks.
func FormatDocuments(docs []Document) string {
	if len(docs) == 0 {
		return "No relevant documents found."
	}
	parts := make([]string, 0, len(docs))
	for i, doc := range docs {
		parts = append(parts, fmt.Sprintf("**Result %d** (score: %.3f, source: %s):\n%s", i+1, doc.Score, doc.Source(), doc.Content))
	}
	return strings.Join(parts, "\n\n")
}
