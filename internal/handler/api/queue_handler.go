package api

import (
	"context"
	"errors"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/alfanzaky/socialtx/internal/domain"
	"github.com/alfanzaky/socialtx/internal/usecase"
	"github.com/alfanzaky/socialtx/pkg/logger"
	"github.com/alfanzaky/socialtx/pkg/xresponse"
)

// QueueService is the queue engine surface exposed over HTTP
type QueueService interface {
	Enqueue(ctx context.Context, kind domain.QueueKind, payload domain.QueuePayload, priority int) (string, error)
	DispatchNext(ctx context.Context) domain.DispatchOutcome
	List(ctx context.Context, filter domain.QueueFilter) ([]*domain.QueueItem, error)
	Get(ctx context.Context, id string) (*domain.QueueItem, error)
	Discard(ctx context.Context, id string) error
	Stats(ctx context.Context) (usecase.QueueStats, error)
}

// QueueHandler handles offline queue HTTP requests
type QueueHandler struct {
	queue     QueueService
	roleGuard *RoleGuard
}

// NewQueueHandler creates a new queue handler
func NewQueueHandler(queue QueueService) *QueueHandler {
	return &QueueHandler{queue: queue, roleGuard: NewRoleGuard()}
}

// EnqueueTransactionRequest defers either an intent or a pre-built transaction
type EnqueueTransactionRequest struct {
	Priority    *int                      `json:"priority,omitempty"`
	Intent      *domain.TransactionIntent `json:"intent,omitempty"`
	Transaction []byte                    `json:"transaction,omitempty"`
	FeePayer    string                    `json:"fee_payer,omitempty"`
	Description string                    `json:"description,omitempty"`
}

// EnqueueMediaRequest defers an upload of a local file
type EnqueueMediaRequest struct {
	FilePath   string `json:"file_path" binding:"required"`
	MimeType   string `json:"mime_type,omitempty"`
	Size       int64  `json:"size,omitempty"`
	EntityType string `json:"entity_type,omitempty"`
	EntityID   string `json:"entity_id,omitempty"`
	Field      string `json:"field,omitempty"`
}

// EnqueueTransaction queues a blockchain action for later dispatch
func (h *QueueHandler) EnqueueTransaction(c *gin.Context) {
	var req EnqueueTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		xresponse.BadRequest(c, "Invalid request format")
		return
	}

	priority := domain.DefaultQueuePriority
	if req.Priority != nil {
		priority = *req.Priority
	}

	payload := domain.QueuePayload{Blockchain: &domain.BlockchainPayload{
		Intent:      req.Intent,
		Transaction: req.Transaction,
		FeePayer:    req.FeePayer,
		Description: req.Description,
	}}

	h.enqueue(c, domain.KindBlockchainTransaction, payload, priority)
}

// EnqueueMedia queues a media upload; priority follows MIME type and size
func (h *QueueHandler) EnqueueMedia(c *gin.Context) {
	var req EnqueueMediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		xresponse.BadRequest(c, "Invalid request format")
		return
	}

	media := &domain.MediaPayload{
		FilePath:   req.FilePath,
		MimeType:   req.MimeType,
		Size:       req.Size,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Field:      req.Field,
	}
	fillMediaDetails(media)

	priority := usecase.MediaPriority(media.MimeType, media.Size)
	h.enqueue(c, domain.KindMediaUpload, domain.QueuePayload{Media: media}, priority)
}

// fillMediaDetails fills size and type from the file when the caller left them
// out. A file that cannot be read is left for the processor to reject.
func fillMediaDetails(media *domain.MediaPayload) {
	if media.Size == 0 {
		if info, err := os.Stat(media.FilePath); err == nil && !info.IsDir() {
			media.Size = info.Size()
		}
	}
	if media.MimeType == "" {
		if detected, err := mimetype.DetectFile(media.FilePath); err == nil {
			media.MimeType = detected.String()
		}
	}
}

func (h *QueueHandler) enqueue(c *gin.Context, kind domain.QueueKind, payload domain.QueuePayload, priority int) {
	id, err := h.queue.Enqueue(c.Request.Context(), kind, payload, priority)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidQueueKind) || errors.Is(err, domain.ErrInvalidPayload) {
			xresponse.ValidationError(c, gin.H{"payload": err.Error()})
			return
		}
		logger.Error("Failed to enqueue item", logger.Kind(string(kind)), logger.ErrorField(err))
		xresponse.InternalServerError(c, "Failed to enqueue item")
		return
	}

	h.roleGuard.LogAccess(c, "enqueue", string(kind))
	xresponse.Created(c, "Item queued", gin.H{"id": id, "kind": kind})
}

// ListQueue lists items, optionally filtered by status and kind
func (h *QueueHandler) ListQueue(c *gin.Context) {
	filter := domain.QueueFilter{
		Kind:   domain.QueueKind(c.Query("kind")),
		Status: domain.QueueStatus(c.Query("status")),
	}
	if filter.Kind != "" && !filter.Kind.IsValid() {
		xresponse.BadRequest(c, "Unknown queue kind")
		return
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		xresponse.BadRequest(c, "Unknown queue status")
		return
	}

	items, err := h.queue.List(c.Request.Context(), filter)
	if err != nil {
		logger.Error("Failed to list queue", logger.ErrorField(err))
		xresponse.InternalServerError(c, "Failed to list queue")
		return
	}

	xresponse.Success(c, "Queue retrieved", gin.H{
		"items": items,
		"count": len(items),
	})
}

// GetQueueItem returns one item
func (h *QueueHandler) GetQueueItem(c *gin.Context) {
	item, err := h.queue.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrQueueItemNotFound) {
			xresponse.NotFound(c, "Queue item not found")
			return
		}
		xresponse.InternalServerError(c, "Failed to get queue item")
		return
	}
	xresponse.Success(c, "Queue item retrieved", item)
}

// DiscardQueueItem removes a terminal item
func (h *QueueHandler) DiscardQueueItem(c *gin.Context) {
	id := c.Param("id")
	if err := h.queue.Discard(c.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, domain.ErrQueueItemNotFound):
			xresponse.NotFound(c, "Queue item not found")
		case errors.Is(err, domain.ErrQueueItemNotTerminal):
			xresponse.Conflict(c, "Only failed items can be discarded")
		default:
			xresponse.InternalServerError(c, "Failed to discard queue item")
		}
		return
	}

	h.roleGuard.LogAccess(c, "discard", id)
	xresponse.Success(c, "Queue item discarded", gin.H{"id": id})
}

// Dispatch runs a single manual dispatch cycle
func (h *QueueHandler) Dispatch(c *gin.Context) {
	outcome := h.queue.DispatchNext(c.Request.Context())

	data := gin.H{
		"status":  outcome.Status,
		"item_id": outcome.ItemID,
		"kind":    outcome.Kind,
		"attempt": outcome.Attempt,
	}
	if outcome.Err != nil {
		data["error"] = outcome.Err.Error()
		data["error_kind"] = usecase.DetectKind(outcome.Err)
	}
	if !outcome.NextAttemptAt.IsZero() {
		data["next_attempt_at"] = outcome.NextAttemptAt
	}

	h.roleGuard.LogAccess(c, "dispatch", outcome.ItemID)
	xresponse.Success(c, "Dispatch cycle completed", data)
}

// QueueStats returns item counts per kind and status
func (h *QueueHandler) QueueStats(c *gin.Context) {
	stats, err := h.queue.Stats(c.Request.Context())
	if err != nil {
		xresponse.InternalServerError(c, "Failed to collect queue stats")
		return
	}
	xresponse.Success(c, "Queue stats retrieved", stats)
}
