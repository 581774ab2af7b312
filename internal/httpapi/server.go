// Package httpapi wires the HTTP surface of the ledger service. Handlers
// stay thin and delegate every rule to the service layer; this package only
// translates between JSON and the core types.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/ledgertree/ledgertree/internal/config"
	"github.com/ledgertree/ledgertree/internal/ledger"
	"github.com/ledgertree/ledgertree/internal/service/account"
	"github.com/ledgertree/ledgertree/internal/service/balance"
	"github.com/ledgertree/ledgertree/internal/service/journal"
)

// IdempotencyStore resolves and records Idempotency-Key headers so a client
// retrying a commit after a transport fault cannot double-post.
type IdempotencyStore interface {
	TransactionByIdempotencyKey(ctx context.Context, key string) (ledger.Transaction, bool, error)
	SaveIdempotencyKey(ctx context.Context, key string, txID uuid.UUID) error
}

// Store is the combined storage dependency of the HTTP layer.
type Store interface {
	account.Repo
	account.Writer
	journal.Repo
	journal.Writer
	balance.Repo
	IdempotencyStore
}

// Server wires handlers and middleware using chi.
type Server struct {
	accountSvc account.Service
	journalSvc journal.Service
	balanceSvc balance.Service
	idem       IdempotencyStore
	store      Store
	log        *slog.Logger
	rt         *chi.Mux
}

// New constructs the HTTP server with routes and middleware.
func New(store Store, cfg config.Config, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger(logger))
	r.Use(recoverer(logger))
	r.Use(metricsMiddleware)

	s := &Server{
		accountSvc: account.New(store, store),
		journalSvc: journal.New(cfg, store, store),
		balanceSvc: balance.New(store),
		idem:       store,
		store:      store,
		log:        logger,
		rt:         r,
	}
	s.routes()
	return s
}

// Handler exposes the configured http.Handler.
func (s *Server) Handler() http.Handler { return s.rt }

// routes declares the public HTTP API endpoints.
func (s *Server) routes() {
	// Accounts
	s.rt.Post("/v1/accounts", s.postAccount)
	s.rt.Get("/v1/accounts", s.listAccounts)
	s.rt.Get("/v1/accounts/{id}", s.getAccount)
	s.rt.Delete("/v1/accounts/{id}", s.deleteAccount)
	s.rt.Post("/v1/accounts/{id}/move", s.moveAccount)
	s.rt.Get("/v1/accounts/{id}/subtree", s.getSubtree)
	s.rt.Get("/v1/accounts/{id}/balance", s.getBalance)
	s.rt.Get("/v1/accounts/{id}/income", s.getIncome)
	s.rt.Get("/v1/accounts/{id}/ledger", s.getLedger)
	// Transactions
	s.rt.Post("/v1/transactions", s.postTransaction)
	s.rt.Get("/v1/transactions", s.listTransactions)
	s.rt.Get("/v1/transactions/{id}", s.getTransaction)
	s.rt.Post("/v1/transactions/{id}/reverse", s.reverseTransaction)
	// Ops
	s.rt.Get("/healthz", s.healthz)
	s.rt.Get("/readyz", s.readyz)
	s.rt.Method(http.MethodGet, "/metrics", metricsHandler())
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	type readyIf interface{ Ready(context.Context) error }
	ctx, cancel := context.WithTimeout(r.Context(), 800*time.Millisecond)
	defer cancel()
	if rc, ok := any(s.store).(readyIf); ok {
		if err := rc.Ready(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}
