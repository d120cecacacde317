package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"prescreen-backend/internal/calls"
	"prescreen-backend/internal/consent"
	"prescreen-backend/internal/interviews"
	"prescreen-backend/internal/shared/config"
	"prescreen-backend/internal/shared/metrics"
	"prescreen-backend/internal/shared/server/middleware"
	"prescreen-backend/internal/shared/server/respond"
)

// RouterDeps carries the handlers the router mounts. Handlers are built in
// bootstrap so the worker can share the same services without a router.
type RouterDeps struct {
	Config           config.Config
	InterviewHandler *interviews.Handler
	ConsentHandler   *consent.Handler
	WebhookHandler   *calls.WebhookHandler
}

const consentRateGroup = "CONSENT"

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.Auth(),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})

	if deps.InterviewHandler != nil {
		deps.InterviewHandler.RegisterRoutes(api)
	}
	if deps.WebhookHandler != nil {
		deps.WebhookHandler.RegisterRoutes(api)
	}
	if deps.ConsentHandler != nil {
		// Consent links are public and candidate-facing; brute-force guessing
		// of tokens is throttled per client IP.
		consentGroup := api.Group("")
		consentGroup.Use(middleware.RateLimit(middleware.RateLimitConfig{
			Rules: map[string]middleware.RateLimitRule{
				consentRateGroup: {Rate: 1, Burst: 10},
			},
			DefaultGroup: consentRateGroup,
		}))
		deps.ConsentHandler.RegisterRoutes(consentGroup)
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
