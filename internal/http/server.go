package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"famfinance/internal/attachments"
	"famfinance/internal/auth"
	"famfinance/internal/log"
	"famfinance/internal/middleware/ratelimit"
	"famfinance/internal/middleware/security"
	"famfinance/internal/middleware/trace"
	"famfinance/internal/services"
)

// Store is the database handle the API runs against.
type Store interface {
	services.Store
	Ping(ctx context.Context) error
}

// RateTable exposes the converter's current rates.
type RateTable interface {
	Base() string
	Rates() map[string]decimal.Decimal
	UpdatedAt() time.Time
}

// Deps wires the services behind the API.
type Deps struct {
	Store  Store
	Rates  RateTable
	Tokens *auth.TokenManager

	Auth      *services.AuthService
	Ledger    *services.LedgerService
	Debts     *services.DebtService
	Goals     *services.GoalService
	Recurring *services.RecurringService
	Budgets   *services.BudgetService
	Settings  *services.SettingsService
	// Categories is optional; without it the list is read from Store.
	Categories *services.CategoryCatalog

	// Attachments is optional; without it uploads answer 400.
	Attachments attachments.Store
	// AttachmentsDir is served under AttachmentsPath when both are set.
	AttachmentsDir  string
	AttachmentsPath string

	RateLimitPerMinute int
	Logger             *log.Logger
}

type Server struct {
	http.Server
	deps Deps

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	logger   *log.Logger

	startedAt    time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.FromSlog(nil, log.ComponentHTTP)
	}

	s := &Server{
		deps:      deps,
		detector:  security.NewDetector(),
		limiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimitPerMinute}),
		logger:    logger,
		startedAt: time.Now(),
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, logger.WithComponent(log.ComponentTrace))

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(s.tracer.Middleware)
	r.Use(log.Middleware(s.logger))
	r.Use(log.RequestIDMiddleware(trace.RequestIDFromRequest))
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.detector.Middleware(func(w http.ResponseWriter, r *http.Request) {
		BadRequestError("request rejected").Write(w)
	}))
	r.Use(s.limiter.Middleware(s.rateLimitKey, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded, try again later").Write(w)
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusNotFound, CodeNotFound, "route not found").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed").Write(w)
	})

	r.Get("/health", s.handleHealth)
	r.Get("/health/ready", s.handleReady)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(log.ComponentMiddleware(log.ComponentAuth))
			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)
			r.Group(func(r chi.Router) {
				r.Use(auth.Middleware(s.deps.Tokens))
				r.Get("/me", s.handleMe)
				r.Patch("/me", s.handleUpdateMe)
				r.Post("/refresh", s.handleRefresh)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(s.deps.Tokens))

			r.Get("/currencies", s.handleCurrencies)
			r.Get("/categories", s.handleCategories)

			r.Route("/transactions", func(r chi.Router) {
				r.Use(log.ComponentMiddleware(log.ComponentLedger))
				r.Get("/", s.handleListTransactions)
				r.Post("/", s.handleCreateTransaction)
				r.Get("/{id}", s.handleGetTransaction)
				r.Patch("/{id}", s.handleUpdateTransaction)
				r.Delete("/{id}", s.handleDeleteTransaction)
				r.Post("/{id}/attachment", s.handleUploadAttachment)
			})

			r.Route("/stats", func(r chi.Router) {
				r.Use(log.ComponentMiddleware(log.ComponentLedger))
				r.Get("/summary", s.handleSummary)
				r.Get("/comparison", s.handleComparison)
				r.Get("/members", s.handleMemberSummary)
				r.Get("/dashboard", s.handleDashboard)
			})

			r.Route("/debts", func(r chi.Router) {
				r.Use(log.ComponentMiddleware(log.ComponentDebts))
				r.Get("/", s.handleListDebts)
				r.Post("/", s.handleCreateDebt)
				r.Get("/summary", s.handleDebtSummary)
				r.Get("/{id}", s.handleGetDebt)
				r.Patch("/{id}", s.handleUpdateDebt)
				r.Delete("/{id}", s.handleDeleteDebt)
				r.Get("/{id}/payments", s.handleListPayments)
				r.Post("/{id}/payments", s.handleAddPayment)
				r.Post("/{id}/adjustments", s.handleAdjustment)
			})

			r.Route("/goals", func(r chi.Router) {
				r.Use(log.ComponentMiddleware(log.ComponentGoals))
				r.Get("/", s.handleListGoals)
				r.Post("/", s.handleCreateGoal)
				r.Get("/savings", s.handleGoalSavings)
				r.Get("/{id}", s.handleGetGoal)
				r.Patch("/{id}", s.handleUpdateGoal)
				r.Delete("/{id}", s.handleDeleteGoal)
				r.Get("/{id}/contributions", s.handleListContributions)
				r.Post("/{id}/contributions", s.handleAddContribution)
			})

			r.Route("/recurring", func(r chi.Router) {
				r.Use(log.ComponentMiddleware(log.ComponentRecurring))
				r.Get("/", s.handleListRecurring)
				r.Post("/", s.handleCreateRecurring)
				r.Get("/due", s.handleDueRecurring)
				r.Post("/auto-execute", s.handleAutoExecute)
				r.Post("/convert-overdue", s.handleConvertOverdue)
				r.Get("/{id}", s.handleGetRecurring)
				r.Patch("/{id}", s.handleUpdateRecurring)
				r.Delete("/{id}", s.handleDeleteRecurring)
				r.Post("/{id}/execute", s.handleExecuteRecurring)
			})

			r.Route("/budgets", func(r chi.Router) {
				r.Use(log.ComponentMiddleware(log.ComponentBudgets))
				r.Get("/", s.handleListBudgets)
				r.Post("/", s.handleCreateBudget)
				r.Get("/status", s.handleAllBudgetStatuses)
				r.Get("/{id}", s.handleGetBudget)
				r.Patch("/{id}", s.handleUpdateBudget)
				r.Delete("/{id}", s.handleDeleteBudget)
				r.Get("/{id}/status", s.handleBudgetStatus)
			})

			r.Route("/settings", func(r chi.Router) {
				r.Get("/family", s.handleFamilySettings)
				r.Patch("/family", s.handleUpdateFamilySettings)
				r.Get("/user", s.handleUserSettings)
				r.Put("/user", s.handleUpdateUserSettings)
				r.Get("/members", s.handleMembers)
				r.Get("/family/members", s.handleMembers)
				r.Post("/family/invite", s.handleInviteMember)
				r.Delete("/family/members/{id}", s.handleRemoveMember)
			})
		})
	})

	if s.deps.AttachmentsDir != "" && strings.HasPrefix(s.deps.AttachmentsPath, "/") {
		prefix := strings.TrimRight(s.deps.AttachmentsPath, "/")
		r.With(auth.Middleware(s.deps.Tokens), security.AttachmentCacheMiddleware(86400)).
			Get(prefix+"/*", s.handleAttachmentFile(prefix))
	}

	return r
}

// rateLimitKey buckets callers by bearer subject when the token parses,
// by client IP otherwise.
func (s *Server) rateLimitKey(r *http.Request) string {
	if tok := auth.TokenFromRequest(r); tok != "" && s.deps.Tokens != nil {
		if id, err := s.deps.Tokens.Parse(tok); err == nil {
			return "user:" + id.UserID
		}
	}
	return "ip:" + s.detector.ExtractClientIP(r)
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// identity returns the caller set by auth.Middleware. Routes without it are
// a wiring bug, answered as 401.
func identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		ErrorResponse(http.StatusUnauthorized, CodeAuth, "authentication required").
			Header("WWW-Authenticate", "Bearer").
			Write(w)
	}
	return id, ok
}

func pathID(r *http.Request) string {
	return chi.URLParam(r, "id")
}
