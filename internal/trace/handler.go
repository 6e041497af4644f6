package trace

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/warewave/warewave/internal/platform/httpx"
	"github.com/warewave/warewave/internal/shared"
)

// Handler wires HTTP endpoints for the traceability log.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs trace handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers trace routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/events", h.handleTimeline)
	r.Post("/inspections", h.handleInspection)
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filter := Filter{
		ProductID: queryInt64(r, "product_id"),
		LotID:     queryInt64(r, "lot_id"),
		SerialID:  queryInt64(r, "serial_id"),
		Kind:      EventKind(r.URL.Query().Get("kind")),
		Limit:     int(queryInt64(r, "limit")),
	}
	if from := r.URL.Query().Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from date")
			return
		}
		filter.From = t
	}
	if to := r.URL.Query().Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to date")
			return
		}
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	events, err := h.service.Timeline(r.Context(), filter)
	if err != nil {
		h.logger.Error("trace timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, events)
}

type inspectionRequest struct {
	ProductID  int64          `json:"product_id" validate:"required,gt=0"`
	LotID      int64          `json:"lot_id,omitempty"`
	SerialID   int64          `json:"serial_id,omitempty"`
	LocationID int64          `json:"location_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

func (h *Handler) handleInspection(w http.ResponseWriter, r *http.Request) {
	var req inspectionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	event, err := h.service.Record(r.Context(), RecordInput{
		ProductID:      req.ProductID,
		LotID:          req.LotID,
		SerialID:       req.SerialID,
		Kind:           EventInspection,
		OriginLocation: req.LocationID,
		Actor:          shared.ActorFromContext(r.Context()),
		Payload:        req.Payload,
	})
	if err != nil {
		h.logger.Warn("record inspection", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, event)
}

func queryInt64(r *http.Request, name string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return v
}
