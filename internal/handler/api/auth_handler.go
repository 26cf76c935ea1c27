package api

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/alfanzaky/socialtx/internal/domain"
	"github.com/alfanzaky/socialtx/pkg/logger"
	"github.com/alfanzaky/socialtx/pkg/xresponse"
)

type AuthHandler struct {
	authService domain.AuthService
	roleGuard   *RoleGuard
}

func NewAuthHandler(authService domain.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService, roleGuard: NewRoleGuard()}
}

type issueTokenRequest struct {
	Subject string `json:"subject" binding:"required"`
	Role    string `json:"role"`
}

// IssueToken lets an operator mint a bearer token for an app client or another operator
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req issueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		xresponse.BadRequest(c, "Invalid payload: "+err.Error())
		return
	}

	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		xresponse.BadRequest(c, "Subject is required")
		return
	}
	role := domain.NormalizeRole(req.Role)

	token, err := h.authService.GenerateAccessToken(subject, role)
	if err != nil {
		logger.Error("Failed to issue access token", logger.String("subject", subject), logger.ErrorField(err))
		xresponse.InternalServerError(c, "Failed to issue token")
		return
	}

	h.roleGuard.LogAccess(c, "issue_token", subject)
	xresponse.Created(c, "Token issued", gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"subject":      subject,
		"role":         role,
	})
}
