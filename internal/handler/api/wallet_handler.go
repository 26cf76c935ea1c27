package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/alfanzaky/socialtx/internal/domain"
	"github.com/alfanzaky/socialtx/internal/usecase"
	"github.com/alfanzaky/socialtx/pkg/logger"
	"github.com/alfanzaky/socialtx/pkg/xresponse"
)

// WalletConnector manages the wallet session used for signing
type WalletConnector interface {
	Authorize(ctx context.Context) (*domain.WalletAuthorization, error)
	Deauthorize(ctx context.Context) error
}

// WalletHandler handles wallet session requests
type WalletHandler struct {
	wallet    WalletConnector
	roleGuard *RoleGuard
}

// NewWalletHandler creates a new wallet handler
func NewWalletHandler(wallet WalletConnector) *WalletHandler {
	return &WalletHandler{wallet: wallet, roleGuard: NewRoleGuard()}
}

// Authorize connects the wallet. The token stays server side.
func (h *WalletHandler) Authorize(c *gin.Context) {
	auth, err := h.wallet.Authorize(c.Request.Context())
	if err != nil {
		kind := usecase.DetectKind(err)
		if kind == domain.ErrorKindUserRejected {
			xresponse.Informational(c, xresponse.StatusCancelled, "Wallet connection was declined", nil)
			return
		}
		logger.Warn("Wallet authorize failed", logger.String("kind", string(kind)), logger.ErrorField(err))
		xresponse.ErrorWithDetails(c, http.StatusBadGateway, xresponse.ErrCodeSigningFailed, "Failed to connect wallet", gin.H{"kind": kind})
		return
	}

	h.roleGuard.LogAccess(c, "wallet_authorize", "wallet")
	xresponse.Success(c, "Wallet connected", gin.H{"accounts": auth.Accounts})
}

// Deauthorize disconnects the wallet and forgets the session
func (h *WalletHandler) Deauthorize(c *gin.Context) {
	if err := h.wallet.Deauthorize(c.Request.Context()); err != nil {
		logger.Warn("Wallet deauthorize failed", logger.ErrorField(err))
		xresponse.InternalServerError(c, "Failed to disconnect wallet")
		return
	}

	h.roleGuard.LogAccess(c, "wallet_deauthorize", "wallet")
	xresponse.Success(c, "Wallet disconnected", nil)
}
