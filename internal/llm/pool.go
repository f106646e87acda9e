package llm

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Factory builds a client for a model name.
type Factory func(model string) (Client, error)

// Pool caches one client per model. Agents naming the same model share it,
// and with it the model's circuit breaker.
type Pool struct {
	factory Factory

	mu    sync.Mutex
	cache *lru.Cache[string, Client]
}

// NewPool returns a pool holding at most size clients.
func NewPool(size int, factory Factory) (*Pool, error) {
	if factory == nil {
		return nil, fmt.Errorf("llm pool requires a factory")
	}
	if size <= 0 {
		size = 16
	}
	cache, err := lru.New[string, Client](size)
	if err != nil {
		return nil, fmt.Errorf("create client cache: %w", err)
	}
	return &Pool{factory: factory, cache: cache}, nil
}

// Get returns the cached client for model, building it on first use.
func (p *Pool) Get(model string) (Client, error) {
	if model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if client, ok := p.cache.Get(model); ok {
		return client, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if client, ok := p.cache.Get(model); ok {
		return client, nil
	}
	client, err := p.factory(model)
	if err != nil {
		return nil, fmt.Errorf("create client for %s: %w", model, err)
	}
	p.cache.Add(model, client)
	return client, nil
}

// Len reports the number of cached clients.
func (p *Pool) Len() int {
	return p.cache.Len()
}
