package lots

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

// Handler wires HTTP endpoints for lots and serial units.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs lots handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers lot and serial routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/lots", h.handleList)
	r.Post("/lots", h.handleCreate)
	r.Get("/lots/expiring", h.handleExpiring)
	r.Get("/lots/{id}", h.handleGet)
	r.Post("/lots/{id}/reserve", h.handleReserve)
	r.Post("/lots/{id}/release", h.handleRelease)
	r.Post("/lots/{id}/adjust", h.handleAdjust)
	r.Post("/lots/{id}/withdraw", h.handleWithdraw)

	r.Post("/serials", h.handleRegisterSerial)
	r.Get("/serials/{id}", h.handleGetSerial)
	r.Post("/serials/{id}/state", h.handleSerialState)
	r.Post("/serials/{id}/move", h.handleSerialMove)
}

type createLotRequest struct {
	Code            string     `json:"code" validate:"required"`
	ProductID       int64      `json:"product_id" validate:"required,gt=0"`
	LocationID      int64      `json:"location_id" validate:"required,gt=0"`
	ManufactureDate *time.Time `json:"manufacture_date,omitempty"`
	ExpiryDate      *time.Time `json:"expiry_date,omitempty"`
	Supplier        string     `json:"supplier,omitempty"`
	InitialQty      float64    `json:"initial_qty" validate:"required,gt=0"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createLotRequest
	if !h.decode(w, r, &req) {
		return
	}
	lot, err := h.service.CreateLot(r.Context(), CreateLotInput{
		Code:            req.Code,
		ProductID:       req.ProductID,
		LocationID:      req.LocationID,
		ManufactureDate: req.ManufactureDate,
		ExpiryDate:      req.ExpiryDate,
		Supplier:        req.Supplier,
		InitialQty:      req.InitialQty,
		Actor:           shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.logger.Warn("create lot", slog.Any("error", err), slog.String("code", req.Code))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, lot)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		ProductID:  queryInt64(r, "product_id"),
		LocationID: queryInt64(r, "location_id"),
		State:      LotState(r.URL.Query().Get("state")),
		ActiveOnly: r.URL.Query().Get("active") == "true",
		Page:       int(queryInt64(r, "page")),
		PerPage:    int(queryInt64(r, "per_page")),
	}
	result, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list lots", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"lots":       result,
		"pagination": shared.NewPagination(filter.Page, filter.PerPage, total),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	lot, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lot)
}

func (h *Handler) handleExpiring(w http.ResponseWriter, r *http.Request) {
	withinDays := int(queryInt64(r, "within_days"))
	result, err := h.service.ListExpiring(r.Context(), withinDays)
	if err != nil {
		h.logger.Error("list expiring lots", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type quantityRequest struct {
	Quantity float64 `json:"quantity" validate:"required,gt=0"`
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if !h.decode(w, r, &req) {
		return
	}
	lot, err := h.service.Reserve(r.Context(), pathID(r), req.Quantity, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Warn("reserve lot", slog.Any("error", err), slog.Int64("lot_id", pathID(r)))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lot)
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if !h.decode(w, r, &req) {
		return
	}
	lot, err := h.service.Release(r.Context(), pathID(r), req.Quantity, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Warn("release lot", slog.Any("error", err), slog.Int64("lot_id", pathID(r)))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lot)
}

type adjustRequest struct {
	Delta  float64 `json:"delta" validate:"required"`
	Reason string  `json:"reason" validate:"required"`
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if !h.decode(w, r, &req) {
		return
	}
	lot, err := h.service.Adjust(r.Context(), pathID(r), req.Delta, req.Reason, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Warn("adjust lot", slog.Any("error", err), slog.Int64("lot_id", pathID(r)))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lot)
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if !h.decode(w, r, &req) {
		return
	}
	lot, err := h.service.Withdraw(r.Context(), pathID(r), req.Reason, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Warn("withdraw lot", slog.Any("error", err), slog.Int64("lot_id", pathID(r)))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lot)
}

type registerSerialRequest struct {
	Serial     string `json:"serial" validate:"required"`
	ProductID  int64  `json:"product_id" validate:"required,gt=0"`
	LotID      int64  `json:"lot_id,omitempty"`
	LocationID int64  `json:"location_id" validate:"required,gt=0"`
}

func (h *Handler) handleRegisterSerial(w http.ResponseWriter, r *http.Request) {
	var req registerSerialRequest
	if !h.decode(w, r, &req) {
		return
	}
	unit, err := h.service.RegisterSerial(r.Context(), RegisterSerialInput{
		Serial:     req.Serial,
		ProductID:  req.ProductID,
		LotID:      req.LotID,
		LocationID: req.LocationID,
		Actor:      shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.logger.Warn("register serial", slog.Any("error", err), slog.String("serial", req.Serial))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, unit)
}

func (h *Handler) handleGetSerial(w http.ResponseWriter, r *http.Request) {
	unit, err := h.service.GetSerialUnit(r.Context(), pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, unit)
}

type serialStateRequest struct {
	State string `json:"state" validate:"required"`
}

func (h *Handler) handleSerialState(w http.ResponseWriter, r *http.Request) {
	var req serialStateRequest
	if !h.decode(w, r, &req) {
		return
	}
	unit, err := h.service.SetSerialState(r.Context(), pathID(r), SerialState(req.State), shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Warn("serial state", slog.Any("error", err), slog.Int64("serial_id", pathID(r)))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, unit)
}

type serialMoveRequest struct {
	LocationID int64 `json:"location_id" validate:"required,gt=0"`
}

func (h *Handler) handleSerialMove(w http.ResponseWriter, r *http.Request) {
	var req serialMoveRequest
	if !h.decode(w, r, &req) {
		return
	}
	unit, err := h.service.MoveSerial(r.Context(), pathID(r), req.LocationID, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Warn("serial move", slog.Any("error", err), slog.Int64("serial_id", pathID(r)))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, unit)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}

func queryInt64(r *http.Request, name string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return v
}
