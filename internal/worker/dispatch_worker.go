package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alfanzaky/socialtx/internal/domain"
	"github.com/alfanzaky/socialtx/internal/usecase"
	"github.com/alfanzaky/socialtx/pkg/logger"
	"github.com/alfanzaky/socialtx/pkg/metrics"
)

// Dispatcher is the queue engine surface the worker drives
type Dispatcher interface {
	DispatchNextKind(ctx context.Context, kind domain.QueueKind) domain.DispatchOutcome
	Recover(ctx context.Context) (int, error)
	Stats(ctx context.Context) (usecase.QueueStats, error)
}

// DispatchWorker runs one dispatch loop per queue kind so a slow media upload
// never holds back blockchain items. Callers manage the lifecycle through the
// context passed to Start.
type DispatchWorker struct {
	engine        Dispatcher
	kinds         []domain.QueueKind
	interval      time.Duration
	depthInterval time.Duration
}

// DispatchWorkerConfig defines runtime options for the worker.
type DispatchWorkerConfig struct {
	Kinds           []domain.QueueKind
	PollingInterval time.Duration
	DepthInterval   time.Duration
}

// NewDispatchWorker builds a new dispatch worker instance.
func NewDispatchWorker(engine Dispatcher, cfg DispatchWorkerConfig) *DispatchWorker {
	interval := cfg.PollingInterval
	if interval <= 0 {
		interval = time.Second
	}
	depth := cfg.DepthInterval
	if depth <= 0 {
		depth = 15 * time.Second
	}
	kinds := cfg.Kinds
	if len(kinds) == 0 {
		kinds = []domain.QueueKind{domain.KindBlockchainTransaction, domain.KindMediaUpload}
	}

	return &DispatchWorker{
		engine:        engine,
		kinds:         kinds,
		interval:      interval,
		depthInterval: depth,
	}
}

// Start recovers items orphaned by a previous process and launches the loops.
// It blocks until every loop has returned after context cancellation.
func (w *DispatchWorker) Start(ctx context.Context) {
	if n, err := w.engine.Recover(ctx); err != nil {
		logger.Error("Failed to recover queue items", logger.ErrorField(err))
	} else if n > 0 {
		logger.Info("Queue items recovered at startup", logger.Int("count", n))
	}

	logger.Info("Dispatch worker started",
		logger.Int("kinds", len(w.kinds)),
		logger.Duration("interval", w.interval),
	)

	var wg sync.WaitGroup
	for _, kind := range w.kinds {
		wg.Add(1)
		go func(kind domain.QueueKind) {
			defer wg.Done()
			w.loop(ctx, kind)
		}(kind)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.collectDepth(ctx)
	}()

	wg.Wait()
	logger.Info("Dispatch worker stopped")
}

func (w *DispatchWorker) loop(ctx context.Context, kind domain.QueueKind) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	log := logger.WithFields(logger.Kind(string(kind)))
	for {
		select {
		case <-ctx.Done():
			log.Info("Dispatch loop stopping", logger.ErrorField(ctx.Err()))
			return
		case <-ticker.C:
			w.drain(ctx, kind, log)
		}
	}
}

// drain dispatches until the kind has nothing eligible left
func (w *DispatchWorker) drain(ctx context.Context, kind domain.QueueKind, log *zap.Logger) {
	for ctx.Err() == nil {
		outcome := w.engine.DispatchNextKind(ctx, kind)
		switch outcome.Status {
		case domain.DispatchIdle:
			if outcome.Err != nil {
				log.Warn("Dispatch cycle could not claim an item", logger.ErrorField(outcome.Err))
			}
			return
		case usecase.DispatchInterrupted:
			return
		}

		log.Debug("Dispatch cycle finished",
			logger.ItemID(outcome.ItemID),
			logger.String("status", string(outcome.Status)),
			logger.Attempt(outcome.Attempt),
			logger.Duration("duration", outcome.Duration),
		)
	}
}

func (w *DispatchWorker) collectDepth(ctx context.Context) {
	ticker := time.NewTicker(w.depthInterval)
	defer ticker.Stop()

	w.reportDepth(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.reportDepth(ctx)
		}
	}
}

func (w *DispatchWorker) reportDepth(ctx context.Context) {
	stats, err := w.engine.Stats(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("Failed to collect queue depth", logger.ErrorField(err))
		}
		return
	}

	statuses := []domain.QueueStatus{domain.QueueStatusPending, domain.QueueStatusInFlight, domain.QueueStatusTerminal}
	for kind, counts := range stats {
		for _, status := range statuses {
			metrics.SetQueueSize(string(kind), string(status), float64(counts[status]))
		}
	}
}
