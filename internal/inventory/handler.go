package inventory

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

// Handler wires HTTP endpoints for the inventory ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ledger", h.handleLedger)
	r.Get("/availability", h.handleAvailability)
	r.Get("/replay", h.handleReplay)
	r.Post("/movements", h.handleMovement)
	r.Post("/transfers", h.handleTransfer)
}

type movementRequest struct {
	Kind           string  `json:"kind" validate:"required"`
	ProductID      int64   `json:"product_id" validate:"required,gt=0"`
	LocationID     int64   `json:"location_id" validate:"required,gt=0"`
	LotID          int64   `json:"lot_id,omitempty"`
	SerialID       int64   `json:"serial_id,omitempty"`
	Quantity       float64 `json:"quantity" validate:"required"`
	Reason         string  `json:"reason,omitempty"`
	RefDoc         string  `json:"ref_doc,omitempty"`
	IdempotencyKey string  `json:"idempotency_key,omitempty" validate:"omitempty,uuid4"`
}

type transferRequest struct {
	ProductID   int64   `json:"product_id" validate:"required,gt=0"`
	LotID       int64   `json:"lot_id,omitempty"`
	SerialID    int64   `json:"serial_id,omitempty"`
	SrcLocation int64   `json:"src_location_id" validate:"required,gt=0"`
	DstLocation int64   `json:"dst_location_id" validate:"required,gt=0"`
	Quantity    float64 `json:"quantity" validate:"required,gt=0"`
	Reason      string  `json:"reason,omitempty"`
	RefDoc      string  `json:"ref_doc,omitempty"`
}

func (h *Handler) handleMovement(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entry, err := h.service.Post(r.Context(), MovementInput{
		Kind:           MovementKind(req.Kind),
		ProductID:      req.ProductID,
		LocationID:     req.LocationID,
		LotID:          req.LotID,
		SerialID:       req.SerialID,
		Quantity:       req.Quantity,
		Reason:         req.Reason,
		RefDoc:         req.RefDoc,
		Actor:          shared.ActorFromContext(r.Context()),
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.logger.Warn("post movement", slog.Any("error", err), slog.String("kind", req.Kind))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	out, in, err := h.service.Transfer(r.Context(), TransferInput{
		ProductID:   req.ProductID,
		LotID:       req.LotID,
		SerialID:    req.SerialID,
		SrcLocation: req.SrcLocation,
		DstLocation: req.DstLocation,
		Quantity:    req.Quantity,
		Reason:      req.Reason,
		RefDoc:      req.RefDoc,
		Actor:       shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.logger.Warn("post transfer", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"out": out, "in": in})
}

func (h *Handler) handleLedger(w http.ResponseWriter, r *http.Request) {
	filter := LedgerFilter{
		ProductID:  queryInt64(r, "product_id"),
		LocationID: queryInt64(r, "location_id"),
		LotID:      queryInt64(r, "lot_id"),
		SerialID:   queryInt64(r, "serial_id"),
		Limit:      int(queryInt64(r, "limit")),
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
	entries, err := h.service.Ledger(r.Context(), filter)
	if err != nil {
		h.logger.Error("list ledger", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	q := AvailabilityQuery{
		ProductID:  queryInt64(r, "product_id"),
		LocationID: queryInt64(r, "location_id"),
		LotID:      queryInt64(r, "lot_id"),
		SerialID:   queryInt64(r, "serial_id"),
	}
	if q.ProductID == 0 || q.LocationID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product_id and location_id required")
		return
	}
	onHand, err := h.service.Availability(r.Context(), q)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]float64{"on_hand": onHand})
}

func (h *Handler) handleReplay(w http.ResponseWriter, r *http.Request) {
	q := AvailabilityQuery{
		ProductID:  queryInt64(r, "product_id"),
		LocationID: queryInt64(r, "location_id"),
		LotID:      queryInt64(r, "lot_id"),
		SerialID:   queryInt64(r, "serial_id"),
	}
	if q.ProductID == 0 || q.LocationID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product_id and location_id required")
		return
	}
	result, err := h.service.Replay(r.Context(), q)
	if err != nil {
		h.logger.Error("replay position", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func queryInt64(r *http.Request, name string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return v
}
