package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alfanzaky/socialtx/config"
	"github.com/alfanzaky/socialtx/internal/domain"
	"github.com/alfanzaky/socialtx/pkg/metrics"
)

const (
	uploadURLEndpoint = "/media/upload-url"
	attachEndpoint    = "/media/attach"
)

// Adapter implements domain.MediaBackend: presigned URL issue, direct upload
// and attaching the stored URL to an entity.
type Adapter struct {
	cfg        config.MediaConfig
	httpClient *http.Client
}

var _ domain.MediaBackend = (*Adapter)(nil)

// NewAdapter creates a new media adapter instance
func NewAdapter(cfg config.MediaConfig, client *http.Client) *Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Adapter{cfg: cfg, httpClient: client}
}

// RequestUploadURL asks the backend for a presigned upload destination
func (a *Adapter) RequestUploadURL(ctx context.Context, mimeType string, size int64) (*domain.UploadTicket, error) {
	payload := map[string]interface{}{"mime_type": mimeType, "size": size}

	var ticket domain.UploadTicket
	if err := a.doJSON(ctx, "upload_url", uploadURLEndpoint, payload, &ticket); err != nil {
		return nil, err
	}
	if ticket.UploadURL == "" || ticket.MediaURL == "" {
		return nil, domain.NewFailure(domain.ErrorKindRelayUnavailable, "backend returned an incomplete upload ticket", nil)
	}
	if ticket.ExpiresAt.IsZero() && a.cfg.UploadURLTTL > 0 {
		ticket.ExpiresAt = time.Now().Add(a.cfg.UploadURLTTL)
	}
	return &ticket, nil
}

// Upload streams the file body to the presigned URL
func (a *Adapter) Upload(ctx context.Context, ticket *domain.UploadTicket, mimeType string, size int64, body io.Reader) error {
	start := time.Now()
	status := "error"
	defer func() { metrics.RecordRelayRequest("media_upload", status, time.Since(start)) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, ticket.UploadURL, body)
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("Content-Length", strconv.FormatInt(size, 10))

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return domain.NewFailure(domain.ErrorKindNetwork, "upload request failed", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusForbidden:
		// presigned URLs answer 403 once their signature expired
		status = "4xx"
		return &domain.FailureError{Kind: domain.ErrorKindStaleReference, StatusCode: resp.StatusCode, Message: "upload url expired"}
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		status = "4xx"
		return &domain.FailureError{Kind: domain.ErrorKindFileTooLarge, StatusCode: resp.StatusCode, Message: "file rejected by storage as too large"}
	case resp.StatusCode >= http.StatusBadRequest:
		status = fmt.Sprintf("%dxx", resp.StatusCode/100)
		return &domain.FailureError{StatusCode: resp.StatusCode, Message: "upload failed: " + http.StatusText(resp.StatusCode)}
	}

	status = "ok"
	return nil
}

// AttachMedia links an uploaded media URL to a field of an entity
func (a *Adapter) AttachMedia(ctx context.Context, entityType, entityID, field, mediaURL string) error {
	payload := map[string]string{
		"entity_type": entityType,
		"entity_id":   entityID,
		"field":       field,
		"media_url":   mediaURL,
	}
	return a.doJSON(ctx, "attach", attachEndpoint, payload, nil)
}

func (a *Adapter) doJSON(ctx context.Context, operation, path string, payload, target interface{}) error {
	start := time.Now()
	status := "error"
	defer func() { metrics.RecordRelayRequest("media_"+operation, status, time.Since(start)) }()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request payload: %w", err)
	}

	url := strings.TrimRight(a.cfg.BackendURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return domain.NewFailure(domain.ErrorKindNetwork, "media backend request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		status = fmt.Sprintf("%dxx", resp.StatusCode/100)
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var errBody struct {
			Error string `json:"error"`
		}
		message := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &errBody) == nil && errBody.Error != "" {
			message = errBody.Error
		}
		return &domain.FailureError{StatusCode: resp.StatusCode, Message: message}
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return domain.NewFailure(domain.ErrorKindRelayUnavailable, "failed to decode media response", err)
		}
	}

	status = "ok"
	return nil
}
