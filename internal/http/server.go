package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"conti/internal/auth"
	"conti/internal/bills"
	"conti/internal/categories"
	"conti/internal/core"
	"conti/internal/ledger"
	"conti/internal/log"
	"conti/internal/middleware/ratelimit"
	"conti/internal/middleware/security"
	"conti/internal/middleware/trace"

	"github.com/gorilla/mux"
)

// Deps are the services the API is served from.
type Deps struct {
	Ledger     *ledger.Coordinator
	Bills      *bills.Service
	Categories *categories.Service
	Auth       *auth.Authenticator
	Logger     *log.Logger

	// RateLimitPerMinute bounds authenticated requests per user.
	RateLimitPerMinute int
	// Ready reports whether the backing stores can serve traffic. Nil means
	// always ready.
	Ready func(context.Context) error
}

// Server is the API http.Server with its middleware state.
type Server struct {
	http.Server

	ledger     *ledger.Coordinator
	bills      *bills.Service
	categories *categories.Service
	logger     *log.StructuredLogger
	ready      func(context.Context) error

	tracer       *trace.Middleware
	limiter      *ratelimit.Limiter
	detector     *security.Detector
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		ledger:     d.Ledger,
		bills:      d.Bills,
		categories: d.Categories,
		logger:     log.NewStructuredLogger(logger),
		ready:      d.Ready,
		detector:   security.NewDetector(),
		limiter:    ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: d.RateLimitPerMinute}),
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, logger)

	r := mux.NewRouter()
	r.Use(
		s.tracer.Middleware,
		log.Middleware(logger.WithComponent(log.ComponentHTTP)),
		log.RequestIDMiddleware(trace.RequestID),
		security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware,
		s.detector.Middleware,
	)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorBody{Error: "no such route", Type: log.ErrorTypeNotFound})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorBody{Error: "method not allowed", Type: log.ErrorTypeValidation})
	})

	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	api := r.PathPrefix("/").Subrouter()
	api.Use(
		d.Auth.Middleware(writeError),
		s.limiter.Middleware(s.rateLimitKey, nil),
	)

	api.HandleFunc("/accounts", s.handleCreateAccount).Methods(http.MethodPost)
	api.HandleFunc("/accounts", s.handleListAccounts).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}", s.handleGetAccount).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}/balance-check", s.handleBalanceCheck).Methods(http.MethodGet)

	api.HandleFunc("/categories", s.handleCreateCategory).Methods(http.MethodPost)
	api.HandleFunc("/categories", s.handleListCategories).Methods(http.MethodGet)
	api.HandleFunc("/categories/{id}", s.handleGetCategory).Methods(http.MethodGet)

	// fixed segments before {id}
	api.HandleFunc("/transactions/summary", s.handleSummary).Methods(http.MethodGet)
	api.HandleFunc("/transactions/transfer", s.handleCreateTransfer).Methods(http.MethodPost)
	api.HandleFunc("/transactions/transfer/{id}", s.handleUpdateTransfer).Methods(http.MethodPatch)
	api.HandleFunc("/transactions/transfer/{id}", s.handleDeleteTransfer).Methods(http.MethodDelete)
	api.HandleFunc("/transactions", s.handleCreateTransaction).Methods(http.MethodPost)
	api.HandleFunc("/transactions", s.handleListTransactions).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{id}", s.handleGetTransaction).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{id}", s.handleUpdateTransaction).Methods(http.MethodPatch)
	api.HandleFunc("/transactions/{id}", s.handleDeleteTransaction).Methods(http.MethodDelete)

	api.HandleFunc("/bills", s.handleCreateBill).Methods(http.MethodPost)
	api.HandleFunc("/bills", s.handleListInstances).Methods(http.MethodGet)
	api.HandleFunc("/bills/{id}", s.handleGetBill).Methods(http.MethodGet)
	api.HandleFunc("/bills/{id}", s.handleDeleteBill).Methods(http.MethodDelete)
	api.HandleFunc("/bills/{id}/{targetDate}", s.handleGetInstance).Methods(http.MethodGet)
	api.HandleFunc("/bills/{id}/{targetDate}", s.handleEditInstance).Methods(http.MethodPatch)
	api.HandleFunc("/bills/{id}/{targetDate}", s.handleDeleteInstance).Methods(http.MethodDelete)
	api.HandleFunc("/bills/{id}/{targetDate}/pay", s.handlePay).Methods(http.MethodPost)
	api.HandleFunc("/bills/{id}/{targetDate}/unpay", s.handleUnpay).Methods(http.MethodPost)

	s.Handler = r
	return s
}

// rateLimitKey limits per user, falling back to the client address.
func (s *Server) rateLimitKey(r *http.Request) string {
	if scope, ok := auth.ScopeFrom(r.Context()); ok {
		return "u:" + scope.UserID
	}
	return "ip:" + s.detector.ExtractClientIP(r)
}

// scope returns the authenticated scope. Routes behind the auth middleware
// always carry one.
func scope(r *http.Request) core.Scope {
	sc, _ := auth.ScopeFrom(r.Context())
	return sc
}

// Metrics returns the request counters of the trace middleware.
func (s *Server) Metrics() trace.Metrics {
	return s.tracer.GetMetrics()
}

// Shutdown stops the limiter cleanup and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
