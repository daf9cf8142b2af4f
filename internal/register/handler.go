package register

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

// StatusMappings reports register errors with their HTTP status.
var StatusMappings = []httpx.StatusMapping{
	httpx.Map(ErrInvalidMovement, http.StatusBadRequest),
	httpx.Map(ErrInvalidName, http.StatusBadRequest),
	httpx.Map(ErrRegisterNotFound, http.StatusNotFound),
	httpx.Map(ErrAlreadyOpen, http.StatusConflict),
	httpx.Map(ErrNotOpen, http.StatusConflict),
}

// Handler wires HTTP endpoints for cash drawers.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs register handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers register routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Route("/{registerID}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Post("/open", h.open)
		r.Post("/cash-in", h.cashIn)
		r.Post("/cash-out", h.cashOut)
		r.Post("/close", h.close)
		r.Get("/movements", h.movements)
	})
}

type createRequest struct {
	Name string `json:"name" validate:"required,max=80"`
}

type openRequest struct {
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

type movementRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"required,max=255"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		h.fail(w, err)
		return
	}
	reg, err := h.service.Create(r.Context(), req.Name)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, reg)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "registerID")
	if err != nil {
		h.fail(w, err)
		return
	}
	reg, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, reg)
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "registerID")
	if err != nil {
		h.fail(w, err)
		return
	}
	var req openRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		h.fail(w, err)
		return
	}
	reg, err := h.service.Open(r.Context(), id, req.OpeningBalance, httpx.ActorID(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.logger.Info("register opened", slog.Int64("register_id", id), slog.String("opening_balance", reg.OpeningBalance.String()))
	httpx.JSON(w, http.StatusOK, reg)
}

func (h *Handler) cashIn(w http.ResponseWriter, r *http.Request) {
	h.handleMovement(w, r, h.service.CashIn)
}

func (h *Handler) cashOut(w http.ResponseWriter, r *http.Request) {
	h.handleMovement(w, r, h.service.CashOut)
}

func (h *Handler) handleMovement(w http.ResponseWriter, r *http.Request, post func(ctx context.Context, id int64, amount decimal.Decimal, description string, author int64) (Movement, error)) {
	id, err := httpx.PathInt64(r, "registerID")
	if err != nil {
		h.fail(w, err)
		return
	}
	var req movementRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		h.fail(w, err)
		return
	}
	m, err := post(r.Context(), id, req.Amount, req.Description, httpx.ActorID(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, m)
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "registerID")
	if err != nil {
		h.fail(w, err)
		return
	}
	rec, err := h.service.Close(r.Context(), id, httpx.ActorID(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	if !rec.Balanced() {
		h.logger.Warn("register closed out of balance",
			slog.Int64("register_id", id),
			slog.String("expected", rec.Expected.String()),
			slog.String("closing", rec.Closing.String()))
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) movements(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "registerID")
	if err != nil {
		h.fail(w, err)
		return
	}
	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		since, err = time.Parse(time.RFC3339, v)
		if err != nil {
			h.fail(w, httpx.ErrValidation)
			return
		}
	}
	movements, err := h.service.ListMovements(r.Context(), id, since)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, movements)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	httpx.RespondError(w, h.logger, err, StatusMappings...)
}
