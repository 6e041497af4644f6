package tasks

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/warewave/warewave/internal/picking/shared"
	"github.com/warewave/warewave/internal/platform/httpx"
	internalShared "github.com/warewave/warewave/internal/shared"
)

// Handler wires HTTP endpoints for pick tasks.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs tasks handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers task routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Get("/{id}/availability", h.handleAvailability)
	r.Post("/{id}/start", h.handleStart)
	r.Post("/{id}/picked", h.handlePicked)
	r.Post("/{id}/complete", h.handleComplete)
	r.Post("/{id}/cancel", h.handleCancel)
}

type createRequest struct {
	OrderID      int64   `json:"order_id" validate:"required,gt=0"`
	ProductID    int64   `json:"product_id" validate:"required,gt=0"`
	LotID        int64   `json:"lot_id,omitempty"`
	SerialID     int64   `json:"serial_id,omitempty"`
	LocationID   int64   `json:"location_id" validate:"required,gt=0"`
	RequestedQty float64 `json:"requested_qty" validate:"required,gt=0"`
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
	task, err := h.service.Create(r.Context(), CreateInput{
		OrderID:      req.OrderID,
		ProductID:    req.ProductID,
		LotID:        req.LotID,
		SerialID:     req.SerialID,
		LocationID:   req.LocationID,
		RequestedQty: req.RequestedQty,
		Actor:        internalShared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.logger.Warn("create task", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, task)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		OrderID:    queryInt64(r, "order_id"),
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
		h.logger.Error("list tasks", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	task, err := h.service.Get(r.Context(), pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	ok, err := h.service.CheckAvailability(r.Context(), pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"available": ok})
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
	task, err := h.service.Start(r.Context(), pathID(r), req.OperatorID, internalShared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}

type pickedRequest struct {
	Quantity float64 `json:"quantity" validate:"gte=0"`
}

func (h *Handler) handlePicked(w http.ResponseWriter, r *http.Request) {
	var req pickedRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	task, err := h.service.RecordPicked(r.Context(), pathID(r), req.Quantity, internalShared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}

type completeRequest struct {
	ConfirmedQty float64 `json:"confirmed_qty" validate:"required,gt=0"`
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	task, err := h.service.Complete(r.Context(), pathID(r), req.ConfirmedQty, internalShared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Warn("complete task", slog.Any("error", err), slog.Int64("task_id", pathID(r)))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, task)
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
	task, err := h.service.Cancel(r.Context(), pathID(r), req.Reason, internalShared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}

func queryInt64(r *http.Request, name string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return v
}
