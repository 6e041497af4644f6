package orders

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/warewave/warewave/internal/picking/shared"
	"github.com/warewave/warewave/internal/platform/httpx"
	internalShared "github.com/warewave/warewave/internal/shared"
)

// Handler wires HTTP endpoints for orders.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs orders handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Get("/{id}/estimate", h.handleEstimate)
	r.Post("/{id}/start", h.handleStart)
	r.Post("/{id}/cancel", h.handleCancel)
	r.Post("/{id}/recompute", h.handleRecompute)
}

type createRequest struct {
	Number    string     `json:"number" validate:"required"`
	WaveID    int64      `json:"wave_id" validate:"required,gt=0"`
	Requester string     `json:"requester,omitempty"`
	Priority  string     `json:"priority,omitempty" validate:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`
	Deadline  *time.Time `json:"deadline,omitempty"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	order, err := h.service.Create(r.Context(), CreateInput{
		Number:    req.Number,
		WaveID:    req.WaveID,
		Requester: req.Requester,
		Priority:  shared.Priority(req.Priority),
		Deadline:  req.Deadline,
		Actor:     internalShared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.logger.Warn("create order", slog.Any("error", err), slog.String("number", req.Number))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		WaveID:     queryInt64(r, "wave_id"),
		State:      shared.Status(r.URL.Query().Get("state")),
		OperatorID: queryInt64(r, "operator_id"),
		Pagination: internalShared.Pagination{
			Page:    int(queryInt64(r, "page")),
			PerPage: int(queryInt64(r, "per_page")),
		},
	}
	items, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Get(r.Context(), pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleEstimate(w http.ResponseWriter, r *http.Request) {
	est, err := h.service.Estimate(r.Context(), pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, est)
}

type startRequest struct {
	OperatorID int64 `json:"operator_id,omitempty"`
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	order, err := h.service.Start(r.Context(), pathID(r), req.OperatorID, internalShared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	order, err := h.service.Cancel(r.Context(), pathID(r), req.Reason, internalShared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleRecompute(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.RecomputeProgress(r.Context(), pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}

func queryInt64(r *http.Request, name string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return v
}
