package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"finanzas/internal/advisor"
	"finanzas/internal/cache"
	"finanzas/internal/core"
	"finanzas/internal/importer"
	"finanzas/internal/log"
	"finanzas/internal/middleware/ratelimit"
	"finanzas/internal/middleware/security"
	"finanzas/internal/middleware/trace"
	"finanzas/internal/store"
)

// Collection is the part of the Store the API reads and writes.
type Collection interface {
	Ready() bool
	Snapshot() []core.Transaction
	FindByID(id string) (core.Transaction, bool)
	Create(ctx context.Context, t core.Transaction) (string, error)
	BulkCreate(ctx context.Context, txs []core.Transaction) ([]string, error)
	Update(ctx context.Context, id string, p store.Patch) error
	Delete(ctx context.Context, id string) error
}

// Advisor answers the AI endpoints. *advisor.Service implements it.
type Advisor interface {
	Insights(ctx context.Context, txs []core.Transaction) (string, error)
	Suggest(ctx context.Context, description string) (advisor.Suggestion, error)
}

type Options struct {
	// Location interprets dates without a zone and buckets months and days.
	Location *time.Location

	ImportMaxBytes   int64
	ImportSessionTTL time.Duration
	ImportPolicy     importer.CategoryPolicy
	// MaxImportSessions bounds the number of files held for mapping.
	MaxImportSessions int

	RateLimitPerMinute int
	TrustedProxies     []string

	// Advisor may be nil; the AI endpoints then answer 503.
	Advisor Advisor
	Logger  *log.Logger
	Now     func() time.Time
}

func (o *Options) setDefaults() {
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.ImportMaxBytes <= 0 {
		o.ImportMaxBytes = 10 << 20
	}
	if o.ImportSessionTTL <= 0 {
		o.ImportSessionTTL = 30 * time.Minute
	}
	if o.MaxImportSessions <= 0 {
		o.MaxImportSessions = 50
	}
	if o.RateLimitPerMinute <= 0 {
		o.RateLimitPerMinute = 60
	}
	if o.Logger == nil {
		o.Logger = log.FromContext(context.Background())
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Server is the JSON API. It embeds http.Server so callers can
// ListenAndServe it directly.
type Server struct {
	http.Server

	store   Collection
	advisor Advisor
	opts    Options
	logger  *log.Logger

	imports *cache.LRUCache[*session]
	caches  *cache.Manager
	limiter *ratelimit.Limiter
	tracer  *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware and starts the background
// cache and rate limiter cleanups. Call Shutdown to stop them.
func NewServer(addr string, collection Collection, opts Options) (*Server, error) {
	opts.setDefaults()

	resolver, err := security.NewClientIPResolver(opts.TrustedProxies...)
	if err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	logger := opts.Logger.WithComponent(log.ComponentHTTP)
	s := &Server{
		store:   collection,
		advisor: opts.Advisor,
		opts:    opts,
		logger:  logger,
		caches:  cache.NewManager(),
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
			Now:               opts.Now,
		}),
		tracer: trace.NewMiddleware(logger, resolver.ClientIP),
	}
	s.imports = cache.NewLRUCache(opts.MaxImportSessions, opts.ImportSessionTTL,
		cache.WithClock[*session](opts.Now),
		cache.WithEvictHook(func(id string, sess *session) {
			sess.pipeline.Cancel()
			logger.Debug("Import session discarded", log.FieldSession, id)
		}))
	s.caches.Register("import_sessions", s.imports)
	s.caches.StartCleanup(context.Background(), time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("GET /api/transactions/{id}", s.handleGetTransaction)
	mux.HandleFunc("PUT /api/transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)

	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/months", s.handleMonths)
	mux.HandleFunc("GET /api/categories", handleCategories)

	mux.HandleFunc("POST /api/imports", s.handleStartImport)
	mux.HandleFunc("GET /api/imports/{id}", s.handleGetImport)
	mux.HandleFunc("PUT /api/imports/{id}/mapping", s.handleSetMapping)
	mux.HandleFunc("POST /api/imports/{id}", s.handleRunImport)
	mux.HandleFunc("DELETE /api/imports/{id}", s.handleCancelImport)
	mux.HandleFunc("GET /api/export", s.handleExport)

	mux.HandleFunc("POST /api/insights", s.handleInsights)
	mux.HandleFunc("POST /api/categorize", s.handleCategorize)

	limited := s.limiter.Middleware(resolver.ClientIP, isMutating, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "Demasiadas peticiones. Inténtalo más tarde.").Write(w)
	})

	var handler http.Handler = mux
	handler = limited(handler)
	handler = s.tracer.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func isMutating(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// Shutdown stops accepting requests, then stops the cleanup goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		shutdownErr = s.Server.Shutdown(ctx)
		s.caches.Stop()
		s.limiter.Stop()
	})
	return shutdownErr
}

// ListenAndServe treats a graceful shutdown as success.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening", "addr", s.Addr)
	if err := s.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	resp := ErrorFor(err)
	logger := log.FromContext(r.Context())
	fields := log.NewFields().WithOperation(op).WithError(err).ToSlice()
	switch {
	case resp.StatusCode() >= 500:
		logger.ErrorContext(r.Context(), "Request failed", fields...)
	case resp.StatusCode() != http.StatusNotFound:
		logger.InfoContext(r.Context(), "Request rejected", fields...)
	}
	resp.Write(w)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

// handleReady answers 503 until the Store has applied its first snapshot.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.store.Ready() {
		ErrorResponse(http.StatusServiceUnavailable, "Cargando transacciones").Write(w)
		return
	}
	NewJSONResponse().Body(map[string]string{"status": "ready"}).Write(w)
}
