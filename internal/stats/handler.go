package stats

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warewave/warewave/internal/platform/httpx"
	internalShared "github.com/warewave/warewave/internal/shared"
)

// Handler wires HTTP endpoints for performance snapshots.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs stats handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers stats routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/operators/{operatorID}", h.handleGet)
	r.Post("/operators/{operatorID}/refresh", h.handleRefresh)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	win, err := windowFromRequest(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	snap, err := h.service.Get(r.Context(), win)
	if err != nil {
		h.logger.Warn("get snapshot", slog.Any("error", err), slog.Int64("operator_id", win.OperatorID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	win, err := windowFromRequest(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	snap, err := h.service.Refresh(r.Context(), win)
	if err != nil {
		h.logger.Warn("refresh snapshot", slog.Any("error", err), slog.Int64("operator_id", win.OperatorID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}

func windowFromRequest(r *http.Request) (Window, error) {
	operatorID, _ := strconv.ParseInt(chi.URLParam(r, "operatorID"), 10, 64)
	win := Window{OperatorID: operatorID}

	day := r.URL.Query().Get("day")
	if day == "" {
		win.Day = time.Now().UTC()
	} else {
		parsed, err := time.Parse("2006-01-02", day)
		if err != nil {
			return Window{}, fmt.Errorf("stats: %w: day must be YYYY-MM-DD", internalShared.ErrValidation)
		}
		win.Day = parsed
	}
	win.WaveID, _ = strconv.ParseInt(r.URL.Query().Get("wave_id"), 10, 64)
	return win, win.Validate()
}
