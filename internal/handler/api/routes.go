package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/alfanzaky/socialtx/internal/domain"
	authpkg "github.com/alfanzaky/socialtx/pkg/auth"
	"github.com/alfanzaky/socialtx/pkg/logger"
	"github.com/alfanzaky/socialtx/pkg/observability"
	"github.com/alfanzaky/socialtx/pkg/xresponse"
)

// Handlers groups the HTTP handlers mounted under /api/v1. Wallet may be nil
// when signing is unavailable.
type Handlers struct {
	Transactions *TransactionHandler
	Queue        *QueueHandler
	Wallet       *WalletHandler
	Auth         *AuthHandler
}

// RouteOptions tunes the middleware stack
type RouteOptions struct {
	// RequestsPerSecond limits API requests per client IP; zero disables limiting
	RequestsPerSecond float64
	Burst             int
}

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, handlers Handlers, authService domain.AuthService, opts RouteOptions) {
	router.Use(recoveryMiddleware(), corsMiddleware())

	v1 := router.Group("/api/v1")
	v1.Use(authMiddleware(authService))
	if opts.RequestsPerSecond > 0 {
		v1.Use(rateLimitMiddleware(opts.RequestsPerSecond, opts.Burst))
	}
	{
		configureTransactionRoutes(v1, handlers.Transactions)
		configureQueueRoutes(v1, handlers.Queue)
		configureWalletRoutes(v1, handlers.Wallet)
		configureAuthRoutes(v1, handlers.Auth)
	}

	public := router.Group("/api/v1/public")
	public.GET("/ping", func(c *gin.Context) {
		xresponse.Success(c, "pong", nil)
	})

	logger.Info("API routes configured successfully")
}

func configureTransactionRoutes(group *gin.RouterGroup, handler *TransactionHandler) {
	if handler == nil {
		return
	}
	routes := group.Group("/transactions")
	routes.POST("", handler.CreateTransaction)

	// the submission ledger only exists when Postgres is configured
	if handler.submissions != nil {
		routes.GET("", handler.ListSubmissions)
		routes.GET("/:signature", handler.GetSubmission)
	}
}

func configureQueueRoutes(group *gin.RouterGroup, handler *QueueHandler) {
	if handler == nil {
		return
	}
	routes := group.Group("/queue")
	{
		routes.POST("/transactions", handler.EnqueueTransaction)
		routes.POST("/media", handler.EnqueueMedia)
		routes.GET("", handler.ListQueue)
		routes.GET("/stats", handler.QueueStats)
		routes.GET("/:id", handler.GetQueueItem)
		routes.DELETE("/:id", handler.DiscardQueueItem)
		routes.POST("/dispatch", handler.roleGuard.RequireAdmin(), handler.Dispatch)
	}
}

func configureWalletRoutes(group *gin.RouterGroup, handler *WalletHandler) {
	if handler == nil {
		return
	}
	routes := group.Group("/wallet")
	{
		routes.POST("/authorize", handler.Authorize)
		routes.POST("/deauthorize", handler.Deauthorize)
	}
}

func configureAuthRoutes(group *gin.RouterGroup, handler *AuthHandler) {
	if handler == nil {
		return
	}
	group.POST("/auth/tokens", handler.roleGuard.RequireAdmin(), handler.IssueToken)
}

// authMiddleware validates the bearer token and sets caller context
func authMiddleware(authService domain.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authService == nil {
			xresponse.InternalServerError(c, "Auth service not available")
			c.Abort()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			xresponse.Unauthorized(c, "Authorization header with Bearer token required")
			c.Abort()
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			xresponse.Unauthorized(c, "Token is empty")
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			switch {
			case errors.Is(err, authpkg.ErrExpiredToken):
				xresponse.Unauthorized(c, "Token expired")
			case errors.Is(err, authpkg.ErrInvalidToken):
				xresponse.Unauthorized(c, "Invalid token")
			default:
				xresponse.InternalServerError(c, "Failed to validate token")
			}
			c.Abort()
			return
		}

		subject := strings.TrimSpace(claims.Subject)
		if subject == "" {
			xresponse.Unauthorized(c, "Invalid token payload")
			c.Abort()
			return
		}

		role := domain.NormalizeRole(claims.Role)
		c.Set(callerSubjectKey, subject)
		c.Set(observability.CallerRoleKey, role)

		logger.Debug("Caller authenticated",
			logger.String("subject", subject),
			logger.String("role", role),
			logger.String("token_ttl", time.Until(claims.ExpiresAt).String()),
		)

		c.Next()
	}
}

// corsMiddleware handles CORS
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, "+observability.TraceIDHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// rateLimitMiddleware keeps one token bucket per client IP
func rateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	if burst < 1 {
		burst = 1
	}
	limiters := newLimiterSet(rate.Limit(rps), burst)

	return func(c *gin.Context) {
		if !limiters.get(c.ClientIP()).Allow() {
			logger.Warn("Rate limit exceeded",
				logger.String("ip", c.ClientIP()),
				logger.String("path", c.Request.URL.Path),
			)
			xresponse.Error(c, http.StatusTooManyRequests, xresponse.ErrCodeRateLimited, "Too many requests")
			c.Abort()
			return
		}
		c.Next()
	}
}

// recoveryMiddleware handles panics
func recoveryMiddleware() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Error("Panic recovered",
			logger.String("error", fmt.Sprintf("%v", recovered)),
			logger.String("path", c.Request.URL.Path),
			logger.String("method", c.Request.Method),
		)

		xresponse.InternalServerError(c, "Internal server error")
		c.Abort()
	})
}
