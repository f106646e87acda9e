package vectorsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	dbxerrors "dbxagent/internal/errors"
	"dbxagent/internal/httpclient"
	"dbxagent/internal/logging"
	"dbxagent/internal/observability"
)

// APIError is a non-2xx answer from the vector search API.
type APIError struct {
	Index      string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("vector search %s: status %d: %s", e.Index, e.StatusCode, body)
}

func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// ClientConfig configures the REST client.
type ClientConfig struct {
	Host        string
	Token       string
	HTTPTimeout time.Duration
	HTTPClient  *http.Client
	Logger      logging.Logger
	Metrics     SearchRecorder
}

// Client queries indexes served by a Databricks Vector Search endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     logging.Logger
	metrics    SearchRecorder
}

// NewClient returns a REST client for the workspace at cfg.Host.
func NewClient(cfg ClientConfig) (*Client, error) {
	host := strings.TrimRight(strings.TrimSpace(cfg.Host), "/")
	if host == "" {
		return nil, fmt.Errorf("databricks host is required")
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	logger := logging.OrNop(cfg.Logger)
	client := cfg.HTTPClient
	if client == nil {
		client = httpclient.New(httpclient.Options{
			Timeout: cfg.HTTPTimeout,
			Token:   cfg.Token,
			Breaker: "vector-search",
			Logger:  logger,
		})
	}
	return &Client{
		baseURL:    host + "/api/2.0/vector-search/indexes",
		httpClient: client,
		logger:     logger,
		metrics:    cfg.Metrics,
	}, nil
}

// Open returns a handle on index. The endpoint is informational: the REST API
// addresses indexes by their full name.
func (c *Client) Open(endpoint, index string) (Index, error) {
	if strings.TrimSpace(index) == "" {
		return nil, fmt.Errorf("index name is required")
	}
	return &remoteIndex{client: c, endpoint: endpoint, name: index}, nil
}

type remoteIndex struct {
	client   *Client
	endpoint string
	name     string
}

func (r *remoteIndex) Name() string {
	return r.name
}

type queryRequest struct {
	QueryText   string   `json:"query_text"`
	Columns     []string `json:"columns"`
	NumResults  int      `json:"num_results"`
	FiltersJSON string   `json:"filters_json,omitempty"`
}

func (r *remoteIndex) Search(ctx context.Context, q Query) (rows []map[string]any, err error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanVectorSearch,
		attribute.String(observability.AttrIndex, r.name))
	defer func() { observability.EndSpan(span, err) }()

	start := time.Now()
	defer func() {
		if r.client.metrics == nil {
			return
		}
		status := "success"
		if err != nil {
			status = "error"
		}
		r.client.metrics.RecordVectorSearch(ctx, r.name, status, time.Since(start))
	}()

	req := queryRequest{
		QueryText:  q.Text,
		Columns:    q.Columns,
		NumResults: q.NumResults,
	}
	if q.Filter != nil {
		if err := q.Filter.Validate(); err != nil {
			return nil, fmt.Errorf("invalid filter: %w", err)
		}
		encoded, err := json.Marshal(q.Filter.Encode())
		if err != nil {
			return nil, fmt.Errorf("encode filter: %w", err)
		}
		req.FiltersJSON = string(encoded)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	endpoint := r.client.baseURL + "/" + url.PathEscape(r.name) + "/query"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	logging.FromContext(ctx, r.client.logger).Debug("Vector search index=%s k=%d filtered=%t", r.name, q.NumResults, q.Filter != nil)
	resp, err := r.client.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("vector search %s: %w", r.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := httpclient.ReadAllWithLimit(resp.Body, httpclient.MaxResponseBytes)
	if err != nil {
		return nil, fmt.Errorf("read vector search response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Index: r.name, StatusCode: resp.StatusCode, Body: string(data)}
		return nil, dbxerrors.ClassifyHTTPStatus(resp.StatusCode, apiErr)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("decode vector search response: %w", err)
	}
	return ExtractRows(decoded), nil
}
