package vectorsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	dbxerrors "dbxagent/internal/errors"
	"dbxagent/internal/httpclient"
	"dbxagent/internal/logging"
)

// Embedder turns text into embedding vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedderConfig configures an OpenAI-compatible embeddings client. A
// Databricks workspace serves the same API under {host}/serving-endpoints.
type EmbedderConfig struct {
	BaseURL    string
	Model      string
	APIKey     string
	CacheSize  int
	Retry      dbxerrors.RetryConfig
	HTTPClient *http.Client
	Logger     logging.Logger
}

const maxEmbedBatch = 100

type httpEmbedder struct {
	baseURL    string
	model      string
	retry      dbxerrors.RetryConfig
	httpClient *http.Client
	cache      *lru.Cache[string, []float32]
	logger     logging.Logger
}

// NewEmbedder returns an embedder whose results are cached per input text.
func NewEmbedder(cfg EmbedderConfig) (Embedder, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("embedding base url is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	retry := cfg.Retry
	if retry.MaxAttempts == 0 && retry.BaseDelay == 0 {
		retry = dbxerrors.DefaultRetryConfig()
	}
	logger := logging.OrNop(cfg.Logger)
	client := cfg.HTTPClient
	if client == nil {
		client = httpclient.New(httpclient.Options{Timeout: 60 * time.Second, Token: cfg.APIKey, Logger: logger})
	}
	return &httpEmbedder{
		baseURL:    baseURL,
		model:      cfg.Model,
		retry:      retry,
		httpClient: client,
		cache:      cache,
		logger:     logger,
	}, nil
}

func (e *httpEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *httpEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}
	if len(texts) > maxEmbedBatch {
		return nil, fmt.Errorf("batch size exceeds limit: %d > %d", len(texts), maxEmbedBatch)
	}

	results := make([][]float32, len(texts))
	var missing []int
	var pending []string
	for i, text := range texts {
		if cached, ok := e.cache.Get(text); ok {
			results[i] = cached
			continue
		}
		missing = append(missing, i)
		pending = append(pending, text)
	}
	if len(pending) == 0 {
		return results, nil
	}

	vectors, err := dbxerrors.RetryWithResult(ctx, e.retry, func(ctx context.Context) ([][]float32, error) {
		return e.call(ctx, pending)
	}, e.logger)
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}

	for i, idx := range missing {
		e.cache.Add(texts[idx], vectors[i])
		results[idx] = vectors[i]
	}
	return results, nil
}

func (e *httpEmbedder) call(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(map[string]any{"model": e.model, "input": texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, dbxerrors.NewTransientError(err, "")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := httpclient.ReadAllWithLimit(resp.Body, httpclient.MaxResponseBytes)
	if err != nil {
		return nil, fmt.Errorf("read embeddings response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, dbxerrors.ClassifyHTTPStatus(resp.StatusCode,
			fmt.Errorf("embeddings API error %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
	}

	var decoded struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("decode embeddings response: %w", err)
	}

	vectors := make([][]float32, len(texts))
	for _, item := range decoded.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, fmt.Errorf("invalid embedding index: %d", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	for i, vec := range vectors {
		if len(vec) == 0 {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}
	return vectors, nil
}
