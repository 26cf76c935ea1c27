package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/alfanzaky/socialtx/internal/domain"
	"github.com/alfanzaky/socialtx/pkg/logger"
	"github.com/alfanzaky/socialtx/pkg/metrics"
	"github.com/alfanzaky/socialtx/pkg/utils"
)

const (
	smallMediaThreshold = 1 << 20  // 1 MiB
	largeMediaThreshold = 10 << 20 // 10 MiB

	DefaultMaxMediaSize = 50 << 20
)

// MediaPriority derives queue priority from MIME type and size: base 5, +1
// image, -1 video, +1 under 1 MiB, -1 over 10 MiB, clamped to [1, 10].
func MediaPriority(mimeType string, size int64) int {
	priority := domain.DefaultQueuePriority

	mt := strings.ToLower(mimeType)
	switch {
	case strings.HasPrefix(mt, "image/"):
		priority++
	case strings.HasPrefix(mt, "video/"):
		priority--
	}

	switch {
	case size < smallMediaThreshold:
		priority++
	case size > largeMediaThreshold:
		priority--
	}

	return utils.ClampInt(priority, domain.MinQueuePriority, domain.MaxQueuePriority)
}

// MediaProcessorConfig limits what the media processor accepts
type MediaProcessorConfig struct {
	MaxFileSize         int64
	AllowedMimePrefixes []string
}

// MediaProcessor uploads queued local files and attaches them to their entity
type MediaProcessor struct {
	backend domain.MediaBackend
	cache   domain.UploadURLCache
	cfg     MediaProcessorConfig
	now     func() time.Time
}

// NewMediaProcessor creates a new media processor. cache may be nil.
func NewMediaProcessor(backend domain.MediaBackend, cache domain.UploadURLCache, cfg MediaProcessorConfig) *MediaProcessor {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxMediaSize
	}
	if len(cfg.AllowedMimePrefixes) == 0 {
		cfg.AllowedMimePrefixes = []string{"image/", "video/"}
	}
	return &MediaProcessor{
		backend: backend,
		cache:   cache,
		cfg:     cfg,
		now:     time.Now,
	}
}

var _ domain.QueueProcessor = (*MediaProcessor)(nil)

func (p *MediaProcessor) Kind() domain.QueueKind {
	return domain.KindMediaUpload
}

// Execute validates the file, uploads it and attaches the resulting URL
func (p *MediaProcessor) Execute(ctx context.Context, item *domain.QueueItem) error {
	payload := item.Payload.Media
	if payload == nil {
		return domain.NewFailure(domain.ErrorKindInvalidRequest, "queue item has no media payload", nil)
	}

	size, mimeType, err := p.inspect(payload)
	if err != nil {
		return err
	}

	ticket, err := p.uploadTicket(ctx, item.ID, mimeType, size)
	if err != nil {
		return err
	}

	file, err := os.Open(payload.FilePath)
	if err != nil {
		return domain.NewFailure(domain.ErrorKindFileMissing, "file is no longer readable", err)
	}
	defer file.Close()

	if err := p.backend.Upload(ctx, ticket, mimeType, size, file); err != nil {
		if DetectKind(err) == domain.ErrorKindStaleReference {
			// expired upload URL, request a new one next attempt
			p.forgetTicket(ctx, item.ID)
		}
		return fmt.Errorf("upload failed: %w", err)
	}
	metrics.AddMediaUploadBytes(mimeCategory(mimeType), size)

	if payload.EntityID != "" {
		if err := p.backend.AttachMedia(ctx, payload.EntityType, payload.EntityID, payload.Field, ticket.MediaURL); err != nil {
			return fmt.Errorf("failed to attach media to %s %s: %w", payload.EntityType, payload.EntityID, err)
		}
	}

	p.forgetTicket(ctx, item.ID)
	logger.Info("Media uploaded",
		logger.ItemID(item.ID),
		logger.String("mime_type", mimeType),
		logger.Int64("size", size),
		logger.String("media_url", ticket.MediaURL),
	)
	return nil
}

// inspect re-validates the file on every attempt since it may have changed
func (p *MediaProcessor) inspect(payload *domain.MediaPayload) (int64, string, error) {
	info, err := os.Stat(payload.FilePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, "", domain.NewFailure(domain.ErrorKindFileMissing, "file no longer exists: "+payload.FilePath, err)
		}
		return 0, "", fmt.Errorf("failed to stat media file: %w", err)
	}
	if info.IsDir() {
		return 0, "", domain.NewFailure(domain.ErrorKindFileMissing, "path is a directory: "+payload.FilePath, nil)
	}

	size := info.Size()
	if size > p.cfg.MaxFileSize {
		return 0, "", domain.NewFailure(domain.ErrorKindFileTooLarge,
			fmt.Sprintf("file is %d bytes, limit is %d", size, p.cfg.MaxFileSize), nil)
	}

	mimeType := payload.MimeType
	if mimeType == "" {
		detected, err := mimetype.DetectFile(payload.FilePath)
		if err != nil {
			return 0, "", fmt.Errorf("failed to detect media type: %w", err)
		}
		mimeType = detected.String()
	}
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	if !utils.HasAnyPrefix(mimeType, p.cfg.AllowedMimePrefixes) {
		return 0, "", domain.NewFailure(domain.ErrorKindUnsupportedMedia, "unsupported media type "+mimeType, nil)
	}
	return size, mimeType, nil
}

// uploadTicket reuses a cached, unexpired ticket for this item or requests a new one
func (p *MediaProcessor) uploadTicket(ctx context.Context, itemID, mimeType string, size int64) (*domain.UploadTicket, error) {
	if p.cache != nil {
		ticket, err := p.cache.GetUploadTicket(ctx, itemID)
		switch {
		case err == nil && !ticket.IsExpired(p.now()):
			logger.Debug("Reusing upload url", logger.ItemID(itemID))
			return ticket, nil
		case err != nil && !errors.Is(err, domain.ErrUploadURLNotFound):
			logger.Warn("Upload url cache unavailable", logger.ItemID(itemID), logger.ErrorField(err))
		}
	}

	ticket, err := p.backend.RequestUploadURL(ctx, mimeType, size)
	if err != nil {
		return nil, fmt.Errorf("failed to request upload url: %w", err)
	}

	if p.cache != nil {
		if err := p.cache.SetUploadTicket(ctx, itemID, ticket); err != nil {
			logger.Warn("Failed to cache upload url", logger.ItemID(itemID), logger.ErrorField(err))
		}
	}
	return ticket, nil
}

func (p *MediaProcessor) forgetTicket(ctx context.Context, itemID string) {
	if p.cache == nil {
		return
	}
	if err := p.cache.DeleteUploadTicket(context.WithoutCancel(ctx), itemID); err != nil {
		logger.Warn("Failed to drop cached upload url", logger.ItemID(itemID), logger.ErrorField(err))
	}
}

// IsRetryable defers to the shared classifier; missing, oversized and
// unsupported files are terminal there.
func (p *MediaProcessor) IsRetryable(_ *domain.QueueItem, err error) bool {
	return IsRetryable(err)
}

func mimeCategory(mimeType string) string {
	if i := strings.Index(mimeType, "/"); i > 0 {
		return mimeType[:i]
	}
	return "other"
}
