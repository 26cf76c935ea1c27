package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/alfanzaky/socialtx/internal/domain"
)

func TestQueueRepository(t *testing.T) {
	repo := NewQueueRepository()
	ctx := context.Background()

	item := &domain.QueueItem{ID: "a", Kind: domain.KindMediaUpload, Status: domain.QueueStatusPending}
	if err := repo.Put(ctx, item); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	repo.Put(ctx, &domain.QueueItem{ID: "b", Kind: domain.KindMediaUpload, Status: domain.QueueStatusTerminal})

	// mutations after Put must not leak into the store
	item.Priority = 9
	got, err := repo.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Priority != 0 {
		t.Errorf("Expected stored copy to be isolated, got priority %d", got.Priority)
	}

	pending, _ := repo.ListPending(ctx)
	if len(pending) != 1 || pending[0].ID != "a" {
		t.Errorf("Expected only a pending, got %v", pending)
	}

	all, _ := repo.List(ctx)
	if len(all) != 2 {
		t.Errorf("Expected 2 items, got %d", len(all))
	}

	if err := repo.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := repo.Get(ctx, "a"); !errors.Is(err, domain.ErrQueueItemNotFound) {
		t.Errorf("Expected ErrQueueItemNotFound, got %v", err)
	}
	if err := repo.Delete(ctx, "a"); !errors.Is(err, domain.ErrQueueItemNotFound) {
		t.Errorf("Expected ErrQueueItemNotFound on second delete, got %v", err)
	}
}
