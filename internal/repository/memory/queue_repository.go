// Package memory holds a process-local queue store for development and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/alfanzaky/socialtx/internal/domain"
)

// QueueRepository keeps items in a map. Items are deep-copied on the way in
// and out so callers never share memory with the store.
type QueueRepository struct {
	mu    sync.RWMutex
	items map[string][]byte
}

var _ domain.QueueStore = (*QueueRepository)(nil)

// NewQueueRepository creates an empty store
func NewQueueRepository() *QueueRepository {
	return &QueueRepository{items: make(map[string][]byte)}
}

func (r *QueueRepository) Put(_ context.Context, item *domain.QueueItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal queue item: %w", err)
	}
	r.mu.Lock()
	r.items[item.ID] = data
	r.mu.Unlock()
	return nil
}

func (r *QueueRepository) Get(_ context.Context, id string) (*domain.QueueItem, error) {
	r.mu.RLock()
	data, ok := r.items[id]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrQueueItemNotFound
	}
	return decode(data)
}

func (r *QueueRepository) ListPending(ctx context.Context) ([]*domain.QueueItem, error) {
	return r.list(func(item *domain.QueueItem) bool { return item.IsPending() })
}

func (r *QueueRepository) List(ctx context.Context) ([]*domain.QueueItem, error) {
	return r.list(nil)
}

func (r *QueueRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return domain.ErrQueueItemNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *QueueRepository) list(keep func(*domain.QueueItem) bool) ([]*domain.QueueItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.QueueItem, 0, len(r.items))
	for _, data := range r.items {
		item, err := decode(data)
		if err != nil {
			return nil, err
		}
		if keep == nil || keep(item) {
			out = append(out, item)
		}
	}
	return out, nil
}

func decode(data []byte) (*domain.QueueItem, error) {
	var item domain.QueueItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue item: %w", err)
	}
	return &item, nil
}
