package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"prescreen-backend/internal/shared/auth"
	"prescreen-backend/internal/shared/server/respond"
)

const (
	tenantIDKey  = "tenantId"
	operatorKey  = "operatorId"
	userEmailKey = "userEmail"
)

// Auth validates operator JWTs and stores identity in context. Public paths
// (consent links, provider webhooks, health) carry their own authentication
// and are skipped here.
func Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		path := c.Request.URL.Path
		if isPublicPath(path) {
			c.Next()
			return
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
		if token == "" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}

		claims, err := auth.VerifyJWT(token)
		if err != nil {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}

		c.Set(operatorKey, claims.Sub)
		c.Set(tenantIDKey, claims.TenantID)
		if claims.Email != "" {
			c.Set(userEmailKey, claims.Email)
		}
		c.Next()
	}
}

func isPublicPath(path string) bool {
	switch {
	case strings.HasPrefix(path, "/api/v1/consent/"):
		return true
	case strings.HasPrefix(path, "/api/v1/webhooks/"):
		return true
	case path == "/api/v1/health", path == "/metrics":
		return true
	}
	return false
}

// TenantIDFromContext fetches the tenant ID set by the auth middleware.
func TenantIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(tenantIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}

// OperatorIDFromContext fetches the operator ID set by the auth middleware.
func OperatorIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(operatorKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}
