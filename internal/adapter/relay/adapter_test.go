package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alfanzaky/socialtx/config"
	"github.com/alfanzaky/socialtx/internal/domain"
	"github.com/alfanzaky/socialtx/pkg/observability"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewAdapter(config.RelayConfig{
		BaseURL:     server.URL,
		BearerToken: "relay-token",
		Timeout:     5 * time.Second,
	}, server.Client())
}

func TestBuildUnsigned(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != buildEndpoint || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer relay-token" {
			t.Errorf("Expected bearer token, got %q", got)
		}

		var req domain.BuildRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Type != domain.IntentCreatePost || req.Wallet != "wallet-1" {
			t.Errorf("unexpected build request %+v", req)
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"transactions": []map[string]interface{}{
				{"transaction": []byte{1, 2, 3}, "description": "create account"},
				{"transaction": []byte{4, 5, 6}, "description": "create post"},
			},
			"estimated_fee": 10000,
		})
	})

	set, err := adapter.BuildUnsigned(context.Background(), &domain.BuildRequest{
		Type:   domain.IntentCreatePost,
		Wallet: "wallet-1",
	})
	if err != nil {
		t.Fatalf("BuildUnsigned failed: %v", err)
	}
	if len(set.Transactions) != 2 {
		t.Fatalf("Expected 2 transactions, got %d", len(set.Transactions))
	}
	if set.Transactions[0].Role != domain.TxRoleSetup || set.Transactions[1].Role != domain.TxRolePrimary {
		t.Errorf("unexpected roles %s, %s", set.Transactions[0].Role, set.Transactions[1].Role)
	}
	if set.EstimatedFee != 10000 {
		t.Errorf("Expected estimated fee 10000, got %d", set.EstimatedFee)
	}
}

func TestSubmitAndPoll(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case submitEndpoint:
			var req submitRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.MaxRetries != 3 {
				t.Errorf("Expected max_retries 3, got %d", req.MaxRetries)
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"signature": "sig-1", "fee": 5000})
		case "/transactions/sig-1/status":
			json.NewEncoder(w).Encode(map[string]interface{}{"status": "finalized", "fee": 5000})
		default:
			http.NotFound(w, r)
		}
	})

	receipt, err := adapter.Submit(context.Background(), &domain.SignedTransaction{Payload: []byte{1}}, domain.SendOptions{MaxRetries: 3, Timeout: time.Second})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if receipt.Signature != "sig-1" || receipt.Fee != 5000 {
		t.Errorf("unexpected receipt %+v", receipt)
	}

	status, err := adapter.PollStatus(context.Background(), "sig-1")
	if err != nil {
		t.Fatalf("PollStatus failed: %v", err)
	}
	if status.Status != domain.SubmissionConfirmed {
		t.Errorf("Expected confirmed, got %s", status.Status)
	}
	if status.Fee == nil || *status.Fee != 5000 {
		t.Errorf("Expected fee 5000, got %v", status.Fee)
	}
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantKind   domain.ErrorKind
		wantStatus int
	}{
		{
			name:       "structured code",
			status:     http.StatusBadRequest,
			body:       `{"error":"Blockhash not found","code":"stale_reference"}`,
			wantKind:   domain.ErrorKindStaleReference,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown code keeps status",
			status:     http.StatusServiceUnavailable,
			body:       `{"message":"maintenance"}`,
			wantKind:   domain.ErrorKindUnknown,
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "plain text body",
			status:     http.StatusTooManyRequests,
			body:       "slow down",
			wantKind:   domain.ErrorKindUnknown,
			wantStatus: http.StatusTooManyRequests,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := adapter.LatestReference(context.Background())
			var failure *domain.FailureError
			if !errors.As(err, &failure) {
				t.Fatalf("Expected FailureError, got %v", err)
			}
			if failure.Kind != tt.wantKind {
				t.Errorf("Expected kind %s, got %s", tt.wantKind, failure.Kind)
			}
			if failure.StatusCode != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, failure.StatusCode)
			}
			if failure.Message == "" {
				t.Error("Expected a message")
			}
		})
	}
}

func TestTransportFailureIsNetwork(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	adapter := NewAdapter(config.RelayConfig{BaseURL: url, Timeout: time.Second}, nil)
	_, err := adapter.LatestReference(context.Background())

	var failure *domain.FailureError
	if !errors.As(err, &failure) || failure.Kind != domain.ErrorKindNetwork {
		t.Fatalf("Expected network failure, got %v", err)
	}
}

func TestLatestReference(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get(observability.TraceIDHeader); got != "trace-123" {
			t.Errorf("Expected trace id to be forwarded, got %q", got)
		}
		json.NewEncoder(w).Encode(map[string]string{"reference": "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N"})
	})

	ref, err := adapter.LatestReference(observability.WithTraceID(context.Background(), "trace-123"))
	if err != nil {
		t.Fatalf("LatestReference failed: %v", err)
	}
	if ref != "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N" {
		t.Errorf("unexpected reference %q", ref)
	}
}
