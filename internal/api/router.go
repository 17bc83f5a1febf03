package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/asgard/ledger/internal/lifecycle"
)

// NewRouter creates the Chi router with all transaction routes mounted.
func NewRouter(engine *lifecycle.Service) http.Handler {
	h := &Handlers{engine: engine}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	// Unmatched routes and wrong methods still answer in JSON.
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/transactions", func(r chi.Router) {
		r.Post("/", h.CreateTransaction)
		r.Get("/", h.ListTransactions)
		r.Get("/{id}", h.GetTransaction)
		r.Patch("/{id}", h.UpdateTransactionStatus)
		r.Delete("/{id}", h.DeleteTransaction)
	})

	return r
}
