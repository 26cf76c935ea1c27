package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/alfanzaky/socialtx/internal/domain"
	"github.com/alfanzaky/socialtx/pkg/logger"
	"github.com/alfanzaky/socialtx/pkg/metrics"
)

type cacheRepository struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

var _ domain.UploadURLCache = (*cacheRepository)(nil)

// Cache keys
const (
	UploadTicketKeyPrefix = "upload:"

	// TTL durations
	DefaultUploadTicketTTL = 10 * time.Minute
)

// NewCacheRepository creates a new Redis cache repository
func NewCacheRepository(client *redis.Client, prefix string, ttl time.Duration) *cacheRepository {
	if ttl <= 0 {
		ttl = DefaultUploadTicketTTL
	}
	return &cacheRepository{client: client, prefix: prefix, ttl: ttl, now: time.Now}
}

func (r *cacheRepository) ticketKey(itemID string) string {
	if r.prefix == "" {
		return UploadTicketKeyPrefix + itemID
	}
	return r.prefix + ":" + UploadTicketKeyPrefix + itemID
}

// SetUploadTicket caches a ticket until it expires, bounded by the configured TTL
func (r *cacheRepository) SetUploadTicket(ctx context.Context, itemID string, ticket *domain.UploadTicket) error {
	data, err := json.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("failed to marshal upload ticket: %w", err)
	}

	ttl := r.ttl
	if !ticket.ExpiresAt.IsZero() {
		if remaining := ticket.ExpiresAt.Sub(r.now()); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl <= 0 {
		return nil
	}

	if err := r.client.Set(ctx, r.ticketKey(itemID), data, ttl).Err(); err != nil {
		metrics.RecordRedisOperation("upload_ticket_set", "error")
		logger.Error("Failed to cache upload ticket", logger.ItemID(itemID), logger.ErrorField(err))
		return fmt.Errorf("failed to cache upload ticket: %w", err)
	}

	metrics.RecordRedisOperation("upload_ticket_set", "ok")
	logger.Debug("Upload ticket cached", logger.ItemID(itemID), logger.Duration("ttl", ttl))
	return nil
}

// GetUploadTicket returns the cached ticket or domain.ErrUploadURLNotFound
func (r *cacheRepository) GetUploadTicket(ctx context.Context, itemID string) (*domain.UploadTicket, error) {
	data, err := r.client.Get(ctx, r.ticketKey(itemID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			metrics.RecordRedisOperation("upload_ticket_get", "miss")
			return nil, domain.ErrUploadURLNotFound
		}
		metrics.RecordRedisOperation("upload_ticket_get", "error")
		return nil, fmt.Errorf("failed to get upload ticket: %w", err)
	}

	var ticket domain.UploadTicket
	if err := json.Unmarshal(data, &ticket); err != nil {
		return nil, fmt.Errorf("failed to unmarshal upload ticket: %w", err)
	}

	metrics.RecordRedisOperation("upload_ticket_get", "hit")
	return &ticket, nil
}

// DeleteUploadTicket drops a cached ticket
func (r *cacheRepository) DeleteUploadTicket(ctx context.Context, itemID string) error {
	if err := r.client.Del(ctx, r.ticketKey(itemID)).Err(); err != nil {
		metrics.RecordRedisOperation("upload_ticket_delete", "error")
		return fmt.Errorf("failed to delete upload ticket: %w", err)
	}
	metrics.RecordRedisOperation("upload_ticket_delete", "ok")
	return nil
}

// Ping checks the connection
func (r *cacheRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
