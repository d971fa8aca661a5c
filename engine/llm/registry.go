package llm

import (
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// Registry caches model clients by identifier. Entries are created once per
// unique identifier and never mutated afterwards, so concurrent readers only
// need the read lock.
type Registry struct {
	mu      sync.RWMutex
	models  map[string]llms.Model
	factory func(ModelConfig) (llms.Model, error)
}

// NewRegistry builds a registry backed by NewModel. A custom factory can be
// supplied for testing.
func NewRegistry(factory func(ModelConfig) (llms.Model, error)) *Registry {
	if factory == nil {
		factory = NewModel
	}
	return &Registry{models: make(map[string]llms.Model), factory: factory}
}

// Get returns the cached client for the configuration, constructing it on
// first use.
func (r *Registry) Get(cfg ModelConfig) (llms.Model, error) {
	key := cfg.Identifier()
	r.mu.RLock()
	model, ok := r.models[key]
	r.mu.RUnlock()
	if ok {
		return model, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if model, ok := r.models[key]; ok {
		return model, nil
	}
	model, err := r.factory(cfg)
	if err != nil {
		return nil, err
	}
	r.models[key] = model
	return model, nil
}
