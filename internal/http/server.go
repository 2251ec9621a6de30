// Package http is the web shell of the ledger: a JSON API, one server-rendered
// page, and health endpoints.
package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"paga/internal/core"
	"paga/internal/ledger"
	"paga/internal/log"
	"paga/internal/middleware/ratelimit"
	"paga/internal/middleware/security"
	"paga/internal/middleware/trace"
	appweb "paga/web"
)

// LedgerService is the part of *ledger.Ledger the web shell drives.
type LedgerService interface {
	Snapshot() ledger.State
	Refresh(ctx context.Context)
	Location() *time.Location
	SetDailyWage(ctx context.Context, amount core.Money, policy ledger.CreditPolicy) (bool, error)
	RecordExpense(ctx context.Context, amount core.Money) error
	SetBalance(ctx context.Context, balance core.Money) error
	ResetAll(ctx context.Context) error
}

var _ LedgerService = (*ledger.Ledger)(nil)

type Options struct {
	Addr               string
	RateLimitPerMinute int
	// Ready backs /readyz, usually the storage backend ping. Nil means always ready.
	Ready  func(ctx context.Context) error
	Logger *log.Logger
}

type Server struct {
	http.Server
	templates *template.Template
	ledger    LedgerService
	ready     func(ctx context.Context) error
	limiter   *ratelimit.Limiter
	logger    *log.Logger
	started   time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run server.
func NewServer(svc LedgerService, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	httpLogger := logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		ledger:  svc,
		ready:   opts.Ready,
		logger:  httpLogger,
		started: time.Now(),
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
			Logger:            logger,
		}),
	}

	t, err := template.New("").Funcs(template.FuncMap{"euros": formatEuros}).
		ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.WithComponent(log.ComponentTemplate).Warn("Failed parsing templates", log.FieldError, err)
	} else {
		s.templates = t
	}

	mux := http.NewServeMux()
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		httpLogger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/wage", s.handleSetWage)
	mux.HandleFunc("/api/expenses", s.handleRecordExpense)
	mux.HandleFunc("/api/balance", s.handleSetBalance)
	mux.HandleFunc("/api/reset", s.handleReset)

	detector := security.NewDetector(logger)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(httpLogger, detector.ClientIP)

	var h http.Handler = mux
	h = s.limiter.Middleware(detector.ClientIP)(h)
	h = headers.Middleware(h)
	h = tracer.Middleware(h)
	h = detector.Middleware(h)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops accepting requests and releases the rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
