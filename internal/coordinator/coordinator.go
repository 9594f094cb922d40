// Package coordinator is the HTTP surface (component E): it validates
// and persists uploads and queries, enqueues the corresponding job, and
// serves status/result polling. It never blocks on job execution.
package coordinator

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lakeforge/lakeforge/internal/bus"
	"github.com/lakeforge/lakeforge/internal/catalog"
	"github.com/lakeforge/lakeforge/internal/jobstore"
	"github.com/lakeforge/lakeforge/internal/objectstore"
)

// Config is the coordinator's own slice of the application configuration.
type Config struct {
	APIPort         int
	FileMaxSize     int64
	UploadsBucket   string
	WarehouseBucket string
	RateLimitPerSec float64
	RateLimitBurst  int
	AuditLogPath    string
	AuditMaxSizeMB  int
	AuditBackups    int
	ShutdownTimeout time.Duration
}

// Server is the coordinator's HTTP server.
type Server struct {
	cfg     Config
	store   *jobstore.Store
	bus     *bus.Bus
	objects *objectstore.Store
	cat     *catalog.Catalog
	log     *zap.Logger
	audit   *AuditLogger
	http    *http.Server
}

func New(cfg Config, store *jobstore.Store, b *bus.Bus, objects *objectstore.Store, cat *catalog.Catalog, log *zap.Logger) (*Server, error) {
	audit, err := NewAuditLogger(cfg.AuditLogPath, cfg.AuditMaxSizeMB, cfg.AuditBackups)
	if err != nil {
		return nil, err
	}

	s := &Server{cfg: cfg, store: store, bus: b, objects: objects, cat: cat, log: log, audit: audit}

	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{id}", s.handleGetJob).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}/status", s.handleUpdateStatus).Methods(http.MethodPost)
	api.HandleFunc("/query", s.handleSubmitQuery).Methods(http.MethodPost)
	api.HandleFunc("/query/{id}", s.handleGetQuery).Methods(http.MethodGet)
	api.HandleFunc("/schema/{project}/{table}", s.handleGetSchema).Methods(http.MethodGet)
	api.HandleFunc("/queue/stats", s.handleQueueStats).Methods(http.MethodGet)

	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)
	handler := applyMiddleware(router, log, audit, limiter)

	s.http = &http.Server{Addr: portAddr(cfg.APIPort), Handler: handler}
	return s, nil
}

func portAddr(port int) string {
	return ":" + itoa(port)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Run starts the server and blocks until ctx is canceled, then performs
// a graceful shutdown bounded by cfg.ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
