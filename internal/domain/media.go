package domain

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// MediaPayload describes a deferred upload of a local file
type MediaPayload struct {
	FilePath   string `json:"file_path"`
	MimeType   string `json:"mime_type,omitempty"`
	Size       int64  `json:"size"`
	EntityType string `json:"entity_type,omitempty"`
	EntityID   string `json:"entity_id,omitempty"`
	Field      string `json:"field,omitempty"`
}

// Validate checks the media payload variant
func (p *MediaPayload) Validate() error {
	if strings.TrimSpace(p.FilePath) == "" {
		return fmt.Errorf("file path is required")
	}
	if p.Size < 0 {
		return fmt.Errorf("file size cannot be negative")
	}
	if p.EntityID != "" && p.EntityType == "" {
		return fmt.Errorf("entity type is required when entity id is set")
	}
	return nil
}

// IsImage reports whether the payload MIME type is an image
func (p *MediaPayload) IsImage() bool {
	return strings.HasPrefix(p.MimeType, "image/")
}

// IsVideo reports whether the payload MIME type is a video
func (p *MediaPayload) IsVideo() bool {
	return strings.HasPrefix(p.MimeType, "video/")
}

// UploadTicket is a presigned destination for one upload
type UploadTicket struct {
	UploadURL string    `json:"upload_url"`
	MediaURL  string    `json:"media_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired reports whether the ticket can no longer be used
func (t *UploadTicket) IsExpired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// MediaBackend is the storage service behind media uploads
type MediaBackend interface {
	RequestUploadURL(ctx context.Context, mimeType string, size int64) (*UploadTicket, error)
	Upload(ctx context.Context, ticket *UploadTicket, mimeType string, size int64, body io.Reader) error
	AttachMedia(ctx context.Context, entityType, entityID, field, mediaURL string) error
}

// UploadURLCache reuses upload tickets across attempts of the same queue item
type UploadURLCache interface {
	GetUploadTicket(ctx context.Context, itemID string) (*UploadTicket, error)
	SetUploadTicket(ctx context.Context, itemID string, ticket *UploadTicket) error
	DeleteUploadTicket(ctx context.Context, itemID string) error
}
