// Package httpapi exposes the map screen actions over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pilgrimsafe/tracker/internal/dispatcher"
	"github.com/pilgrimsafe/tracker/pkg/core"
)

// DefaultRequestTimeout bounds how long a handler waits for the owner loop.
const DefaultRequestTimeout = 5 * time.Second

// Requester runs an event on the owner loop and returns its result.
type Requester interface {
	Request(ctx context.Context, e dispatcher.Event) (any, error)
}

// HintPublisher queues center hints for the map screen.
type HintPublisher interface {
	Publish(h core.CenterHint) (core.CenterHint, error)
}

// StatusSetter records a member's reported safety status.
type StatusSetter interface {
	SetStatus(id string, status core.MemberStatus) error
}

// Deps holds everything the handlers call into.
type Deps struct {
	Loop             Requester
	Hints            HintPublisher
	Members          StatusSetter // optional
	HelpCenters      []core.HelpCenter
	EmergencyNumbers []core.EmergencyNumber
	Logger           *slog.Logger
	RequestTimeout   time.Duration
	// HintRateLimit caps hints per client per minute; zero disables it.
	HintRateLimit int
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(deps Deps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = DefaultRequestTimeout
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(deps.Logger))

	h := &handler{deps: deps}

	r.GET("/healthz", h.health)
	r.GET("/status", h.status)

	hints := r.Group("/hints")
	if deps.HintRateLimit > 0 {
		hints.Use(RateLimit(NewRateLimiter(deps.HintRateLimit, time.Minute)))
	}
	hints.POST("", h.postHint)

	actions := r.Group("/actions")
	actions.POST("/recenter", h.action(commandRecenter))
	actions.POST("/focus-group", h.action(commandFocusGroup))
	actions.POST("/nearest-help", h.action(commandNearestHelp))
	actions.POST("/groups", h.action(commandGroups))
	actions.POST("/helpdesk/:id", h.helpdeskTarget)

	r.POST("/members/:id/select", h.selectMember)
	r.PUT("/members/:id/status", h.setMemberStatus)
	r.DELETE("/selection", h.deselect)

	return r
}

// requestLogger logs one line per request at debug level, errors at warn.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		level := slog.LevelDebug
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
