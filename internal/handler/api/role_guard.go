package api

import (
	"github.com/gin-gonic/gin"

	"github.com/alfanzaky/socialtx/internal/domain"
	"github.com/alfanzaky/socialtx/pkg/logger"
	"github.com/alfanzaky/socialtx/pkg/observability"
	"github.com/alfanzaky/socialtx/pkg/xresponse"
)

const callerSubjectKey = "caller_subject"

// RoleGuard provides helper functions for role-based access control in handlers
type RoleGuard struct{}

// NewRoleGuard creates a new role guard instance
func NewRoleGuard() *RoleGuard {
	return &RoleGuard{}
}

// GetCaller extracts the authenticated caller from context
func (rg *RoleGuard) GetCaller(c *gin.Context) (subject, role string, exists bool) {
	subject = c.GetString(callerSubjectKey)
	role = c.GetString(observability.CallerRoleKey)
	if subject == "" || role == "" {
		return "", "", false
	}
	return subject, role, true
}

// RequireRole checks if the caller has the required role
func (rg *RoleGuard) RequireRole(requiredRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, role, exists := rg.GetCaller(c)
		if !exists {
			xresponse.Unauthorized(c, "Authentication required")
			c.Abort()
			return
		}

		if role != requiredRole {
			logger.Warn("Access denied - insufficient role",
				logger.String("caller_role", role),
				logger.String("required_role", requiredRole),
				logger.String("ip", c.ClientIP()),
			)
			xresponse.Forbidden(c, "Insufficient permissions")
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireAdmin checks if the caller is an operator
func (rg *RoleGuard) RequireAdmin() gin.HandlerFunc {
	return rg.RequireRole(domain.RoleAdmin)
}

// LogAccess logs an action with caller information
func (rg *RoleGuard) LogAccess(c *gin.Context, action string, resource string) {
	subject, role, exists := rg.GetCaller(c)
	if !exists {
		return
	}
	observability.LogWithFields(c, "Caller action",
		logger.String("subject", subject),
		logger.String("role", role),
		logger.String("action", action),
		logger.String("resource", resource),
	)
}
