package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/alfanzaky/socialtx/internal/domain"
	"github.com/alfanzaky/socialtx/internal/usecase"
	"github.com/alfanzaky/socialtx/pkg/logger"
)

type fakeDispatcher struct {
	mu        sync.Mutex
	remaining map[domain.QueueKind]int
	calls     map[domain.QueueKind]int
	recovered bool
	statsRuns int
}

func newFakeDispatcher(remaining map[domain.QueueKind]int) *fakeDispatcher {
	return &fakeDispatcher{remaining: remaining, calls: map[domain.QueueKind]int{}}
}

func (f *fakeDispatcher) DispatchNextKind(_ context.Context, kind domain.QueueKind) domain.DispatchOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[kind]++
	if f.remaining[kind] == 0 {
		return domain.DispatchOutcome{Status: domain.DispatchIdle, Kind: kind}
	}
	f.remaining[kind]--
	return domain.DispatchOutcome{Status: domain.DispatchSuccess, Kind: kind, ItemID: "x", Attempt: 1}
}

func (f *fakeDispatcher) Recover(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recovered = true
	return 1, nil
}

func (f *fakeDispatcher) Stats(context.Context) (usecase.QueueStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statsRuns++
	return usecase.QueueStats{
		domain.KindMediaUpload: {domain.QueueStatusPending: f.remaining[domain.KindMediaUpload]},
	}, nil
}

func (f *fakeDispatcher) left(kind domain.QueueKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remaining[kind]
}

func TestDispatchWorker_DrainsEveryKind(t *testing.T) {
	prev := logger.GetLogger()
	logger.Replace(zaptest.NewLogger(t))
	t.Cleanup(func() { logger.Replace(prev) })

	fake := newFakeDispatcher(map[domain.QueueKind]int{
		domain.KindBlockchainTransaction: 3,
		domain.KindMediaUpload:           2,
	})
	w := NewDispatchWorker(fake, DispatchWorkerConfig{
		PollingInterval: 5 * time.Millisecond,
		DepthInterval:   5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fake.left(domain.KindBlockchainTransaction) == 0 && fake.left(domain.KindMediaUpload) == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}

	if fake.left(domain.KindBlockchainTransaction) != 0 || fake.left(domain.KindMediaUpload) != 0 {
		t.Errorf("Expected both kinds drained, left %v", fake.remaining)
	}
	if !fake.recovered {
		t.Error("Expected Recover to run at startup")
	}
	if fake.statsRuns == 0 {
		t.Error("Expected queue depth to be collected")
	}
}

func TestDispatchWorker_Defaults(t *testing.T) {
	w := NewDispatchWorker(newFakeDispatcher(nil), DispatchWorkerConfig{})
	if w.interval != time.Second || w.depthInterval != 15*time.Second {
		t.Errorf("unexpected defaults %v %v", w.interval, w.depthInterval)
	}
	if len(w.kinds) != 2 {
		t.Errorf("Expected both kinds by default, got %v", w.kinds)
	}
}
