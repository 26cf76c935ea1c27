package usecase

import (
	"fmt"
	"sync"

	"github.com/alfanzaky/socialtx/internal/domain"
)

// ProcessorRegistry is a thread-safe map from queue kind to its processor
type ProcessorRegistry struct {
	mu         sync.RWMutex
	processors map[domain.QueueKind]domain.QueueProcessor
}

// NewProcessorRegistry creates a registry pre-populated with processors
func NewProcessorRegistry(processors ...domain.QueueProcessor) *ProcessorRegistry {
	r := &ProcessorRegistry{
		processors: make(map[domain.QueueKind]domain.QueueProcessor),
	}
	for _, p := range processors {
		r.Register(p)
	}
	return r
}

// Register adds or replaces the processor for its kind
func (r *ProcessorRegistry) Register(p domain.QueueProcessor) {
	if p == nil || !p.Kind().IsValid() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[p.Kind()] = p
}

// Get returns the processor registered for kind
func (r *ProcessorRegistry) Get(kind domain.QueueKind) (domain.QueueProcessor, error) {
	r.mu.RLock()
	p, ok := r.processors[kind]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProcessorNotFound, kind)
	}
	return p, nil
}

// Kinds lists the registered kinds
func (r *ProcessorRegistry) Kinds() []domain.QueueKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]domain.QueueKind, 0, len(r.processors))
	for k := range r.processors {
		kinds = append(kinds, k)
	}
	return kinds
}
