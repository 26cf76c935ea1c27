package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/alfanzaky/socialtx/internal/domain"
	"github.com/alfanzaky/socialtx/pkg/logger"
	"github.com/alfanzaky/socialtx/pkg/metrics"
)

// Queue keys
const (
	queueItemKey    = "queue:item:"
	queueIndexKey   = "queue:index"
	queuePendingKey = "queue:pending"
)

type queueRepository struct {
	client *redis.Client
	prefix string
}

var _ domain.QueueStore = (*queueRepository)(nil)

// NewQueueRepository creates a Redis backed queue store. Every item is a
// JSON document; two sets index all ids and pending ids.
func NewQueueRepository(client *redis.Client, prefix string) *queueRepository {
	return &queueRepository{client: client, prefix: prefix}
}

func (r *queueRepository) key(suffix string) string {
	if r.prefix == "" {
		return suffix
	}
	return r.prefix + ":" + suffix
}

// Put writes an item and keeps both indexes in step within one transaction
func (r *queueRepository) Put(ctx context.Context, item *domain.QueueItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal queue item: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(queueItemKey+item.ID), data, 0)
		pipe.SAdd(ctx, r.key(queueIndexKey), item.ID)
		if item.IsPending() {
			pipe.SAdd(ctx, r.key(queuePendingKey), item.ID)
		} else {
			pipe.SRem(ctx, r.key(queuePendingKey), item.ID)
		}
		return nil
	})
	if err != nil {
		metrics.RecordRedisOperation("queue_put", "error")
		logger.Error("Failed to store queue item", logger.ItemID(item.ID), logger.ErrorField(err))
		return fmt.Errorf("failed to store queue item: %w", err)
	}

	metrics.RecordRedisOperation("queue_put", "ok")
	return nil
}

// Get returns one item or domain.ErrQueueItemNotFound
func (r *queueRepository) Get(ctx context.Context, id string) (*domain.QueueItem, error) {
	data, err := r.client.Get(ctx, r.key(queueItemKey+id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			metrics.RecordRedisOperation("queue_get", "miss")
			return nil, domain.ErrQueueItemNotFound
		}
		metrics.RecordRedisOperation("queue_get", "error")
		return nil, fmt.Errorf("failed to get queue item: %w", err)
	}

	var item domain.QueueItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue item: %w", err)
	}

	metrics.RecordRedisOperation("queue_get", "ok")
	return &item, nil
}

// ListPending returns every pending item
func (r *queueRepository) ListPending(ctx context.Context) ([]*domain.QueueItem, error) {
	return r.listFrom(ctx, queuePendingKey)
}

// List returns every stored item
func (r *queueRepository) List(ctx context.Context) ([]*domain.QueueItem, error) {
	return r.listFrom(ctx, queueIndexKey)
}

func (r *queueRepository) listFrom(ctx context.Context, index string) ([]*domain.QueueItem, error) {
	ids, err := r.client.SMembers(ctx, r.key(index)).Result()
	if err != nil {
		metrics.RecordRedisOperation("queue_list", "error")
		return nil, fmt.Errorf("failed to list queue ids: %w", err)
	}
	if len(ids) == 0 {
		return []*domain.QueueItem{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(queueItemKey + id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		metrics.RecordRedisOperation("queue_list", "error")
		return nil, fmt.Errorf("failed to load queue items: %w", err)
	}

	items := make([]*domain.QueueItem, 0, len(values))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			// index entry without a document, left behind by an interrupted delete
			logger.Warn("Dangling queue index entry", logger.ItemID(ids[i]))
			continue
		}
		var item domain.QueueItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			logger.Error("Skipping unreadable queue item", logger.ItemID(ids[i]), logger.ErrorField(err))
			continue
		}
		items = append(items, &item)
	}

	metrics.RecordRedisOperation("queue_list", "ok")
	return items, nil
}

// Delete removes an item and its index entries
func (r *queueRepository) Delete(ctx context.Context, id string) error {
	var deleted *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, r.key(queueItemKey+id))
		pipe.SRem(ctx, r.key(queueIndexKey), id)
		pipe.SRem(ctx, r.key(queuePendingKey), id)
		return nil
	})
	if err != nil {
		metrics.RecordRedisOperation("queue_delete", "error")
		return fmt.Errorf("failed to delete queue item: %w", err)
	}
	if deleted.Val() == 0 {
		metrics.RecordRedisOperation("queue_delete", "miss")
		return domain.ErrQueueItemNotFound
	}

	metrics.RecordRedisOperation("queue_delete", "ok")
	return nil
}

// Ping checks the connection
func (r *queueRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
