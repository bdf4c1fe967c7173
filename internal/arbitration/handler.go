package arbitration

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/kindredhq/backend/internal/exchange"
	"github.com/kindredhq/backend/internal/middleware"
)

type ResolveRequest struct {
	Outcome string `json:"outcome"` // creator | partner | split
}

type Handler struct {
	svc *Service
	log *slog.Logger
}

func NewHandler(svc *Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

func (h *Handler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	caller := middleware.AccountIDFromCtx(r.Context())
	if caller == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid task id", http.StatusBadRequest)
		return
	}
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	role := middleware.RoleFromCtx(r.Context())
	t, err := h.svc.ResolveDispute(r.Context(), id, caller, role, req.Outcome)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnauthorized):
			http.Error(w, err.Error(), http.StatusForbidden)
		case errors.Is(err, ErrBadOutcome):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, exchange.ErrTaskNotFound):
			http.Error(w, "task not found", http.StatusNotFound)
		case errors.Is(err, exchange.ErrPrecondition):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.log.Error("resolve dispute failed", "error", err)
			http.Error(w, "resolve dispute failed", http.StatusInternalServerError)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(t)
}
