package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/asgard/ledger/internal/domain"
	"github.com/asgard/ledger/internal/lifecycle"
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	engine *lifecycle.Service
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps tagged business errors to status codes via a
// fixed table. Anything untagged is an internal failure: logged with
// context, reported as an opaque 500.
func writeEngineError(w http.ResponseWriter, err error) {
	if appErr, ok := domain.AsError(err); ok {
		switch appErr.Kind {
		case domain.KindValidation:
			writeError(w, http.StatusBadRequest, appErr.Message)
			return
		case domain.KindNotFound:
			writeError(w, http.StatusNotFound, appErr.Message)
			return
		}
	}
	log.Printf("[api] internal error: %v", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// --- CreateTransaction ---

func (h *Handlers) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	result, err := h.engine.Create(req)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if result.IsDuplicate {
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "transaction already exists",
			"id":      result.ID,
			"status":  result.Status,
		})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "transaction created successfully",
		"id":      result.ID,
		"status":  result.Status,
	})
}

// --- ListTransactions ---

func (h *Handlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.List()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- GetTransaction ---

func (h *Handlers) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	txn, err := h.engine.Get(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

// --- UpdateTransactionStatus ---

type updateStatusRequest struct {
	Status *string `json:"status"`
}

func (h *Handlers) UpdateTransactionStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Status == nil {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	result, err := h.engine.UpdateStatus(id, domain.TransactionStatus(*req.Status))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- DeleteTransaction ---

func (h *Handlers) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, err := h.engine.Delete(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
