package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alfanzaky/socialtx/internal/domain"
	"github.com/alfanzaky/socialtx/pkg/logger"
	"github.com/alfanzaky/socialtx/pkg/metrics"
	"github.com/alfanzaky/socialtx/pkg/utils"
)

// DispatchInterrupted means the engine was shut down mid-attempt; the item
// went back to pending without consuming an attempt.
const DispatchInterrupted domain.DispatchStatus = "interrupted"

// QueueStats counts items per kind and status
type QueueStats map[domain.QueueKind]map[domain.QueueStatus]int

// QueueEngine owns every mutation of queued items. Processors execute items
// but only the engine records outcomes.
type QueueEngine struct {
	store    domain.QueueStore
	registry *ProcessorRegistry
	policies map[domain.QueueKind]RetryPolicy

	// mu makes select-and-claim atomic; inFlight is the single-execution guard
	mu       sync.Mutex
	inFlight map[string]struct{}
	lastSeq  int64

	now func() time.Time
}

// NewQueueEngine creates a new queue engine. Kinds without a policy use DefaultRetryPolicy.
func NewQueueEngine(store domain.QueueStore, registry *ProcessorRegistry, policies map[domain.QueueKind]RetryPolicy) *QueueEngine {
	merged := map[domain.QueueKind]RetryPolicy{
		domain.KindBlockchainTransaction: DefaultRetryPolicy(domain.KindBlockchainTransaction),
		domain.KindMediaUpload:           DefaultRetryPolicy(domain.KindMediaUpload),
	}
	for kind, p := range policies {
		if p.MaxAttempts <= 0 {
			p.MaxAttempts = kind.DefaultMaxAttempts()
		}
		merged[kind] = p
	}

	return &QueueEngine{
		store:    store,
		registry: registry,
		policies: merged,
		inFlight: make(map[string]struct{}),
		now:      time.Now,
	}
}

// SetClock replaces the engine clock
func (e *QueueEngine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

func (e *QueueEngine) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now()
}

// Enqueue validates and persists a new pending item, returning its id
func (e *QueueEngine) Enqueue(ctx context.Context, kind domain.QueueKind, payload domain.QueuePayload, priority int) (string, error) {
	if !kind.IsValid() {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidQueueKind, kind)
	}
	if err := payload.Validate(kind); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	e.mu.Lock()
	now := e.now()
	seq := now.UnixNano()
	if seq <= e.lastSeq {
		seq = e.lastSeq + 1
	}
	e.lastSeq = seq
	e.mu.Unlock()

	item := &domain.QueueItem{
		ID:            utils.GenerateUUID(),
		Kind:          kind,
		Priority:      utils.ClampInt(priority, domain.MinQueuePriority, domain.MaxQueuePriority),
		Sequence:      seq,
		Payload:       payload,
		MaxAttempts:   e.policy(kind).MaxAttempts,
		Status:        domain.QueueStatusPending,
		CreatedAt:     now,
		NextAttemptAt: now,
	}

	if err := e.store.Put(ctx, item); err != nil {
		return "", fmt.Errorf("failed to persist queue item: %w", err)
	}

	logger.Info("Queue item enqueued",
		logger.ItemID(item.ID),
		logger.Kind(string(kind)),
		logger.Int("priority", item.Priority),
	)
	return item.ID, nil
}

func (e *QueueEngine) policy(kind domain.QueueKind) RetryPolicy {
	if p, ok := e.policies[kind]; ok {
		return p
	}
	return DefaultRetryPolicy(kind)
}

// DispatchNext runs one cycle over all kinds
func (e *QueueEngine) DispatchNext(ctx context.Context) domain.DispatchOutcome {
	return e.DispatchNextKind(ctx, "")
}

// DispatchNextKind runs one cycle restricted to kind ("" means any). It never
// panics and never returns processor errors other than inside the outcome.
func (e *QueueEngine) DispatchNextKind(ctx context.Context, kind domain.QueueKind) domain.DispatchOutcome {
	item, err := e.claim(ctx, kind)
	if err != nil {
		logger.Error("Failed to claim queue item", logger.Kind(string(kind)), logger.ErrorField(err))
		return domain.DispatchOutcome{Status: domain.DispatchIdle, Kind: kind, Err: err}
	}
	if item == nil {
		return domain.DispatchOutcome{Status: domain.DispatchIdle, Kind: kind}
	}
	defer e.release(item.ID)

	start := time.Now()
	outcome := e.execute(ctx, item)
	outcome.Duration = time.Since(start)

	metrics.RecordQueueOutcome(string(item.Kind), string(outcome.Status))
	metrics.ObserveDispatchDuration(string(item.Kind), outcome.Duration)
	return outcome
}

// claim selects the highest-priority eligible item and marks it in flight.
// Listing and marking happen under one lock so two cycles never pick the same item.
func (e *QueueEngine) claim(ctx context.Context, kind domain.QueueKind) (*domain.QueueItem, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pending, err := e.store.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending items: %w", err)
	}

	now := e.now()
	var best *domain.QueueItem
	for _, item := range pending {
		if kind != "" && item.Kind != kind {
			continue
		}
		if _, busy := e.inFlight[item.ID]; busy {
			continue
		}
		if !item.IsEligible(now) {
			continue
		}
		if best == nil || item.Priority > best.Priority ||
			(item.Priority == best.Priority && item.Sequence < best.Sequence) {
			best = item
		}
	}
	if best == nil {
		return nil, nil
	}

	claimed := *best
	claimed.Status = domain.QueueStatusInFlight
	attemptAt := now
	claimed.LastAttemptAt = &attemptAt
	if err := e.store.Put(ctx, &claimed); err != nil {
		return nil, fmt.Errorf("failed to mark item in flight: %w", err)
	}

	e.inFlight[claimed.ID] = struct{}{}
	return &claimed, nil
}

func (e *QueueEngine) release(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, id)
}

func (e *QueueEngine) execute(ctx context.Context, item *domain.QueueItem) domain.DispatchOutcome {
	outcome := domain.DispatchOutcome{ItemID: item.ID, Kind: item.Kind, Attempt: item.Attempt + 1}
	writeCtx := context.WithoutCancel(ctx)

	processor, err := e.registry.Get(item.Kind)
	if err != nil {
		e.markTerminal(writeCtx, item, err, domain.ErrorKindInvalidRequest)
		outcome.Status = domain.DispatchFailedTerminal
		outcome.Err = err
		return outcome
	}

	logger.Debug("Dispatching queue item",
		logger.ItemID(item.ID),
		logger.Kind(string(item.Kind)),
		logger.Attempt(item.Attempt+1),
	)

	snapshot := *item
	execErr := e.runProcessor(ctx, processor, &snapshot)
	if execErr == nil {
		if err := e.store.Delete(writeCtx, item.ID); err != nil {
			logger.Error("Failed to delete completed queue item", logger.ItemID(item.ID), logger.ErrorField(err))
		}
		logger.Info("Queue item completed", logger.ItemID(item.ID), logger.Kind(string(item.Kind)))
		outcome.Status = domain.DispatchSuccess
		return outcome
	}
	outcome.Err = execErr

	var cp *domain.CheckpointError
	if errors.As(execErr, &cp) {
		item.Checkpoint = cp.Checkpoint
	}

	if ctx.Err() != nil {
		// shutdown mid-attempt: hand the item back untouched
		item.Status = domain.QueueStatusPending
		if err := e.store.Put(writeCtx, item); err != nil {
			logger.Error("Failed to return interrupted item", logger.ItemID(item.ID), logger.ErrorField(err))
		}
		outcome.Status = DispatchInterrupted
		outcome.Attempt = item.Attempt
		return outcome
	}

	retryable := e.isRetryable(processor, &snapshot, execErr)
	item.Attempt++

	if !retryable || item.Attempt >= item.MaxAttempts {
		e.markTerminal(writeCtx, item, execErr, DetectKind(execErr))
		outcome.Status = domain.DispatchFailedTerminal
		return outcome
	}

	delay := e.policy(item.Kind).Delay(item.Attempt - 1)
	item.Status = domain.QueueStatusPending
	item.NextAttemptAt = e.clock().Add(delay)
	if err := e.store.Put(writeCtx, item); err != nil {
		logger.Error("Failed to reschedule queue item", logger.ItemID(item.ID), logger.ErrorField(err))
	}

	logger.Warn("Queue item failed, rescheduled",
		logger.ItemID(item.ID),
		logger.Kind(string(item.Kind)),
		logger.Attempt(item.Attempt),
		logger.Duration("backoff", delay),
		logger.String("error_kind", string(DetectKind(execErr))),
		logger.ErrorField(execErr),
	)
	outcome.Status = domain.DispatchFailedRetryable
	outcome.NextAttemptAt = item.NextAttemptAt
	return outcome
}

func (e *QueueEngine) runProcessor(ctx context.Context, p domain.QueueProcessor, item *domain.QueueItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
			logger.Error("Queue processor panicked", logger.ItemID(item.ID), logger.Any("panic", r))
		}
	}()
	return p.Execute(ctx, item)
}

func (e *QueueEngine) isRetryable(p domain.QueueProcessor, item *domain.QueueItem, err error) (retryable bool) {
	defer func() {
		if r := recover(); r != nil {
			retryable = IsRetryable(err)
		}
	}()
	return p.IsRetryable(item, err)
}

func (e *QueueEngine) markTerminal(ctx context.Context, item *domain.QueueItem, err error, kind domain.ErrorKind) {
	item.Status = domain.QueueStatusTerminal
	item.TerminalError = err.Error()
	item.TerminalKind = kind
	if putErr := e.store.Put(ctx, item); putErr != nil {
		logger.Error("Failed to mark queue item terminal", logger.ItemID(item.ID), logger.ErrorField(putErr))
	}

	logger.Warn("Queue item terminal",
		logger.ItemID(item.ID),
		logger.Kind(string(item.Kind)),
		logger.Attempt(item.Attempt),
		logger.String("error_kind", string(kind)),
		logger.ErrorField(err),
	)
}

// List returns items matching filter in dispatch order
func (e *QueueEngine) List(ctx context.Context, filter domain.QueueFilter) ([]*domain.QueueItem, error) {
	items, err := e.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue items: %w", err)
	}

	out := make([]*domain.QueueItem, 0, len(items))
	for _, item := range items {
		if filter.Matches(item) {
			out = append(out, item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out, nil
}

// Get returns one item
func (e *QueueEngine) Get(ctx context.Context, id string) (*domain.QueueItem, error) {
	return e.store.Get(ctx, id)
}

// Discard removes a terminal item
func (e *QueueEngine) Discard(ctx context.Context, id string) error {
	item, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !item.IsTerminal() {
		return domain.ErrQueueItemNotTerminal
	}
	if err := e.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to discard queue item: %w", err)
	}

	logger.Info("Queue item discarded", logger.ItemID(id), logger.Kind(string(item.Kind)))
	return nil
}

// Recover returns items left in flight by a crashed process to pending
func (e *QueueEngine) Recover(ctx context.Context) (int, error) {
	items, err := e.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list queue items: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	recovered := 0
	for _, item := range items {
		if item.Status != domain.QueueStatusInFlight {
			continue
		}
		if _, busy := e.inFlight[item.ID]; busy {
			continue
		}
		item.Status = domain.QueueStatusPending
		if err := e.store.Put(ctx, item); err != nil {
			return recovered, fmt.Errorf("failed to recover item %s: %w", item.ID, err)
		}
		recovered++
	}

	if recovered > 0 {
		logger.Info("Recovered in-flight queue items", logger.Int("count", recovered))
	}
	return recovered, nil
}

// Stats counts items by kind and status
func (e *QueueEngine) Stats(ctx context.Context) (QueueStats, error) {
	items, err := e.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue items: %w", err)
	}

	stats := QueueStats{
		domain.KindBlockchainTransaction: {},
		domain.KindMediaUpload:           {},
	}
	for _, item := range items {
		if stats[item.Kind] == nil {
			stats[item.Kind] = map[domain.QueueStatus]int{}
		}
		stats[item.Kind][item.Status]++
	}
	return stats, nil
}
