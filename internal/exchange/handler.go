package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/kindredhq/backend/internal/ledger"
	"github.com/kindredhq/backend/internal/middleware"
	"github.com/kindredhq/backend/internal/models"
)

type CreateTaskRequest struct {
	City         string   `json:"city"`
	DeliveryInfo string   `json:"delivery_info"`
	WishList     []string `json:"wish_list"`
}

type EnterDeliveryRequest struct {
	TrackingRef string `json:"tracking_ref"`
}

type Handler struct {
	svc  *Service
	repo *Repository
	log  *slog.Logger
}

func NewHandler(svc *Service, repo *Repository, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, repo: repo, log: log}
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	caller := middleware.AccountIDFromCtx(r.Context())
	if caller == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.City == "" || req.DeliveryInfo == "" || len(req.WishList) == 0 {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}
	t, err := h.svc.CreateTask(r.Context(), caller, req.City, req.DeliveryInfo, req.WishList)
	if err != nil {
		h.writeError(w, "create task", err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	caller := middleware.AccountIDFromCtx(r.Context())
	if caller == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var (
		list []*models.ExchangeTask
		err  error
	)
	if city := r.URL.Query().Get("city"); city != "" {
		list, err = h.repo.ListOpen(r.Context(), city)
	} else {
		list, err = h.repo.ListByParty(r.Context(), caller)
	}
	if err != nil {
		h.log.Error("list exchange tasks failed", "error", err)
		http.Error(w, "list tasks failed", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.ExchangeTask{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	t, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, "get task", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) RequestMatch(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "request match", h.svc.RequestMatch)
}

func (h *Handler) ApproveMatch(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "approve match", h.svc.ApproveMatch)
}

func (h *Handler) EnterDelivery(w http.ResponseWriter, r *http.Request) {
	caller := middleware.AccountIDFromCtx(r.Context())
	if caller == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	var req EnterDeliveryRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req) // tracking ref is optional
	}
	t, err := h.svc.EnterDelivery(r.Context(), id, caller, req.TrackingRef)
	if err != nil {
		h.writeError(w, "enter delivery", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) ConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "confirm delivery", h.svc.ConfirmDelivery)
}

func (h *Handler) CancelTask(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "cancel task", h.svc.CancelTask)
}

func (h *Handler) CheckPendingExpiry(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "check expiry", h.svc.CheckPendingExpiry)
}

func (h *Handler) DisputeTask(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "dispute task", h.svc.DisputeTask)
}

type transitionFunc func(ctx context.Context, id int64, caller uuid.UUID) (*models.ExchangeTask, error)

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, name string, fn transitionFunc) {
	caller := middleware.AccountIDFromCtx(r.Context())
	if caller == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	t, err := fn(r.Context(), id, caller)
	if err != nil {
		h.writeError(w, name, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrTaskNotFound):
		http.Error(w, "task not found", http.StatusNotFound)
	case errors.Is(err, ErrUnauthorized):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrPrecondition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ledger.ErrInsufficientFunds):
		http.Error(w, "insufficient funds", http.StatusPaymentRequired)
	default:
		h.log.Error(op+" failed", "error", err)
		http.Error(w, op+" failed", http.StatusInternalServerError)
	}
}

func taskID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid task id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
