package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tagflow/internal/dispatch"
	"tagflow/internal/library"
	"tagflow/internal/logging"
	"tagflow/internal/queue"
	"tagflow/internal/services"
	"tagflow/internal/session"
)

// Dispatcher submits work to the lanes.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (dispatch.Handle, error)
	EnqueueAnalyze(ctx context.Context, itemIDs []int64, bpm, key bool, extra map[string]any) (*queue.Job, error)
	EnqueueDeleteItems(ctx context.Context, taskIDs []string, deleteFiles bool) (*queue.Job, error)
}

// JobReader exposes read access to the job queue.
type JobReader interface {
	GetByID(ctx context.Context, id string) (*queue.Job, error)
	List(ctx context.Context, filter queue.ListFilter) ([]*queue.Job, error)
}

// SessionReader lists stored session revisions.
type SessionReader interface {
	ListRevisions(ctx context.Context, hash string) ([]*session.Record, error)
}

// ItemReader looks up library items.
type ItemReader interface {
	GetItem(ctx context.Context, id int64) (*library.Item, error)
}

// MetadataReader reads the embedded tags of an audio file.
type MetadataReader func(ctx context.Context, path string) (Metadata, error)

// StatusFunc reports daemon status for GET /api/status.
type StatusFunc func(ctx context.Context) any

// Deps holds everything the router serves from. Nil readers disable the
// routes that need them.
type Deps struct {
	Dispatcher Dispatcher
	Jobs       JobReader
	Sessions   SessionReader
	Items      ItemReader
	Metadata   MetadataReader
	Status     StatusFunc
	Stream     http.Handler
	Token      string
	Logger     *slog.Logger
}

type handler struct {
	deps   Deps
	logger *slog.Logger
}

// NewRouter builds the gin engine for deps.
func NewRouter(deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "api")
	h := &handler{deps: deps, logger: logger}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger), bearerAuth(deps.Token))

	api := router.Group("/api")
	if deps.Dispatcher != nil {
		api.POST("/enqueue", h.enqueue)
		api.POST("/analyze", h.analyze)
		api.POST("/items/delete", h.deleteItems)
	}
	if deps.Items != nil {
		api.GET("/items/:id/metadata", h.itemMetadata)
	}
	if deps.Jobs != nil {
		api.GET("/jobs", h.listJobs)
		api.GET("/jobs/:id", h.getJob)
	}
	if deps.Sessions != nil {
		api.GET("/sessions/:hash", h.listRevisions)
	}
	api.GET("/status", h.status)
	if deps.Stream != nil {
		router.GET("/ws", gin.WrapH(deps.Stream))
	}
	return router
}

// bearerAuth requires "Authorization: Bearer <token>" when token is set.
func bearerAuth(token string) gin.HandlerFunc {
	token = strings.TrimSpace(token)
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
			JSONError(c, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
			return
		}
		c.Next()
	}
}

// requestLogger tags each request with a request id and logs its outcome.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)
		c.Request = c.Request.WithContext(services.WithRequestID(c.Request.Context(), requestID))

		started := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := logging.Args(
			logging.String("method", c.Request.Method),
			logging.String("path", c.FullPath()),
			logging.Int("status", status),
			logging.Duration("elapsed", time.Since(started)),
		)
		reqLogger := logging.WithContext(c.Request.Context(), logger)
		switch {
		case status >= http.StatusInternalServerError:
			reqLogger.Error("request failed", append(attrs, logging.String("errors", c.Errors.String()))...)
		case status >= http.StatusBadRequest:
			reqLogger.Info("request rejected", attrs...)
		default:
			reqLogger.Debug("request served", attrs...)
		}
	}
}

func (h *handler) status(c *gin.Context) {
	if h.deps.Status == nil {
		c.JSON(http.StatusOK, gin.H{"running": true})
		return
	}
	c.JSON(http.StatusOK, h.deps.Status(c.Request.Context()))
}
