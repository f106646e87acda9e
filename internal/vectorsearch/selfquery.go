package vectorsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"dbxagent/internal/llm"
	"dbxagent/internal/logging"
)

// AttributeInfo describes a filterable metadata field to the query
// constructor.
type AttributeInfo struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Type        string `json:"type" yaml:"type"`
}

// SelfQueryRetriever asks a model to split a question into a search string
// and a metadata filter before searching. Any failure of that step degrades
// to a plain search of the original question.
type SelfQueryRetriever struct {
	Base               *Retriever
	Model              llm.Client
	ContentDescription string
	Attributes         []AttributeInfo
	// EnableLimit lets the model choose the result count.
	EnableLimit bool
	Logger      logging.Logger
}

// StructuredQuery is the decoded model answer.
type StructuredQuery struct {
	Query  string
	Filter Filter
	Limit  int
}

// Retrieve implements DocumentRetriever.
func (s *SelfQueryRetriever) Retrieve(ctx context.Context, query string) ([]Document, error) {
	if s.Base == nil {
		return nil, fmt.Errorf("self-query retriever has no base retriever")
	}
	logger := logging.FromContext(ctx, logging.OrNop(s.Logger))

	structured, err := s.Construct(ctx, query)
	if err != nil {
		logger.Warn("Self-query construction failed, using plain search: %v", err)
		return s.Base.search(ctx, query, s.Base.NumResults, s.Base.Filter)
	}

	k := s.Base.NumResults
	if s.EnableLimit && structured.Limit > 0 {
		k = structured.Limit
	}
	search := structured.Query
	if strings.TrimSpace(search) == "" {
		search = query
	}
	logger.Debug("Self-query search=%q filter_attrs=%v k=%d", search, Attributes(structured.Filter), k)

	docs, err := s.Base.search(ctx, search, k, structured.Filter)
	if err != nil {
		logger.Warn("Filtered search failed, using plain search: %v", err)
		return s.Base.search(ctx, query, s.Base.NumResults, s.Base.Filter)
	}
	return docs, nil
}

// Construct asks the model for a structured query.
func (s *SelfQueryRetriever) Construct(ctx context.Context, query string) (*StructuredQuery, error) {
	if s.Model == nil {
		return nil, fmt.Errorf("no model configured")
	}
	resp, err := s.Model.Complete(ctx, llm.Prompt(s.prompt(query), 0))
	if err != nil {
		return nil, fmt.Errorf("query constructor: %w", err)
	}
	return ParseStructuredQuery(resp.Content, s.Attributes)
}

// ParseStructuredQuery decodes a model answer, repairing malformed JSON and
// rejecting filters on attributes outside allowed (when allowed is non-empty).
func ParseStructuredQuery(text string, allowed []AttributeInfo) (*StructuredQuery, error) {
	payload := stripCodeFence(text)
	if payload == "" {
		return nil, fmt.Errorf("empty structured query")
	}
	repaired, err := jsonrepair.JSONRepair(payload)
	if err != nil {
		return nil, fmt.Errorf("repair structured query: %w", err)
	}

	var raw struct {
		Query  string `json:"query"`
		Filter any    `json:"filter"`
		Limit  int    `json:"limit"`
	}
	if err := json.Unmarshal([]byte(repaired), &raw); err != nil {
		return nil, fmt.Errorf("decode structured query: %w", err)
	}

	// "NO_FILTER" is how the constructor prompt spells an absent filter.
	if s, ok := raw.Filter.(string); ok && (s == "" || strings.EqualFold(s, "NO_FILTER")) {
		raw.Filter = nil
	}
	filter, err := ParseFilter(raw.Filter)
	if err != nil {
		return nil, err
	}
	if filter != nil && len(allowed) > 0 {
		known := make(map[string]struct{}, len(allowed))
		for _, attr := range allowed {
			known[attr.Name] = struct{}{}
		}
		for _, name := range Attributes(filter) {
			if _, ok := known[name]; !ok {
				return nil, fmt.Errorf("filter references unknown attribute %q", name)
			}
		}
	}
	return &StructuredQuery{Query: strings.TrimSpace(raw.Query), Filter: filter, Limit: raw.Limit}, nil
}

func (s *SelfQueryRetriever) prompt(query string) string {
	var sb strings.Builder
	sb.WriteString("Your goal is to structure the user's query to match the request schema below.\n\n")
	sb.WriteString("Respond with a single JSON object with the keys:\n")
	sb.WriteString(`- "query": text to compare to document contents, without the filter conditions` + "\n")
	sb.WriteString(`- "filter": a logical condition over the metadata attributes, or "NO_FILTER"` + "\n")
	if s.EnableLimit {
		sb.WriteString(`- "limit": the number of documents to retrieve, if the user asked for one` + "\n")
	}
	sb.WriteString("\nA comparison is {\"comparator\": C, \"attribute\": A, \"value\": V} where C is one of ")
	sb.WriteString("eq, ne, gt, gte, lt, lte, in, nin, like, contain.\n")
	sb.WriteString("A logical operation is {\"operator\": O, \"arguments\": [...]} where O is one of and, or, not.\n")
	sb.WriteString("Only use the attributes listed below.\n\n")
	if s.ContentDescription != "" {
		sb.WriteString("Document contents: ")
		sb.WriteString(s.ContentDescription)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Attributes:\n")
	for _, attr := range s.Attributes {
		fmt.Fprintf(&sb, "- %s (%s): %s\n", attr.Name, attr.Type, attr.Description)
	}
	sb.WriteString("\nUser query: ")
	sb.WriteString(query)
	sb.WriteString("\n\nStructured request:")
	return sb.String()
}

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if start := strings.Index(text, "```"); start >= 0 {
		rest := text[start+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		return strings.TrimSpace(rest)
	}
	if start := strings.IndexByte(text, '{'); start > 0 {
		text = text[start:]
	}
	return text
}
