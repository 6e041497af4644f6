package routing

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/warewave/warewave/internal/platform/httpx"
	internalShared "github.com/warewave/warewave/internal/shared"
)

// Handler wires HTTP endpoints for routes.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs routing handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers routing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleRoute)
	r.Post("/generate", h.handleGenerate)
	r.Post("/{id}/complete", h.handleComplete)
	r.Post("/{id}/cancel", h.handleCancel)
}

type generateRequest struct {
	WaveID         int64  `json:"wave_id" validate:"required,gt=0"`
	OperatorID     int64  `json:"operator_id" validate:"required,gt=0"`
	IdempotencyKey string `json:"idempotency_key,omitempty" validate:"omitempty,uuid4"`
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entries, err := h.service.Generate(r.Context(), GenerateInput{
		WaveID:         req.WaveID,
		OperatorID:     req.OperatorID,
		IdempotencyKey: req.IdempotencyKey,
		Actor:          internalShared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.logger.Warn("generate route", slog.Any("error", err), slog.Int64("wave_id", req.WaveID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entries)
}

func (h *Handler) handleRoute(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Route(r.Context(), queryInt64(r, "wave_id"), queryInt64(r, "operator_id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.CompleteEntry(r.Context(), pathID(r), internalShared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.CancelEntry(r.Context(), pathID(r), internalShared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}

func queryInt64(r *http.Request, name string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return v
}
