// Package rest serves the sync engine over HTTP/JSON with gin.
package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/logging"
	"github.com/dmitrijs2005/vaultsync/internal/server/models"
	"github.com/dmitrijs2005/vaultsync/internal/server/ratelimit"
	"github.com/dmitrijs2005/vaultsync/internal/server/services"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 5 * time.Second

// SyncEngine is the part of services.SyncService the handlers need.
type SyncEngine interface {
	Pull(ctx context.Context, owner string, q models.PullQuery) (*models.PullPage, error)
	Push(ctx context.Context, owner string, items []models.PushItem) []models.PushResult
}

// AttachmentPresigner issues attachment URLs for live records.
type AttachmentPresigner interface {
	PresignUpload(ctx context.Context, owner, id string) (*services.PresignedURL, error)
	PresignDownload(ctx context.Context, owner, id string) (*services.PresignedURL, error)
}

type HTTPServer struct {
	address     string
	sync        SyncEngine
	attachments AttachmentPresigner
	limiter     *ratelimit.Registry
	logger      logging.Logger
	jwtSecret   []byte
	corsOrigins []string
	now         func() time.Time
}

type Options struct {
	Address     string
	SecretKey   string
	CORSOrigins []string
}

func NewHTTPServer(opts Options, l logging.Logger, engine SyncEngine, attachments AttachmentPresigner, limiter *ratelimit.Registry) *HTTPServer {
	return &HTTPServer{
		address:     opts.Address,
		sync:        engine,
		attachments: attachments,
		limiter:     limiter,
		logger:      l.With("module", "http_server"),
		jwtSecret:   []byte(opts.SecretKey),
		corsOrigins: opts.CORSOrigins,
		now:         time.Now,
	}
}

// Router builds the gin engine with all routes and middleware.
func (s *HTTPServer) Router() *gin.Engine {
	r := gin.New()
	r.Use(s.recovery(), s.requestLogger(), corsMiddleware(s.corsOrigins))

	r.GET("/health", s.health)

	v1 := r.Group("/api/v1", s.authMiddleware(), s.rateLimitMiddleware())
	v1.GET("/sync", s.pull)
	v1.POST("/sync", s.push)
	v1.POST("/records/:id/attachment", s.presignUpload)
	v1.GET("/records/:id/attachment", s.presignDownload)

	return r
}

// Run serves HTTP until ctx is done, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Starting HTTP server", "address", s.address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info(ctx, "Stopping HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
