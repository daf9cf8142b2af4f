package checkout

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/cart"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/register"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// StatusMappings reports checkout errors, including those raised by the
// stock and register ledgers, with their HTTP status.
var StatusMappings = slices.Concat([]httpx.StatusMapping{
	httpx.Map(ErrEmptyCart, http.StatusBadRequest),
	httpx.Map(ErrInvalidTender, http.StatusBadRequest),
	httpx.Map(ErrOrderNotFound, http.StatusNotFound),
	httpx.Map(ErrDuplicateCheckout, http.StatusConflict),
	httpx.Map(shared.ErrIdempotencyConflict, http.StatusConflict),
}, inventory.StatusMappings, register.StatusMappings)

// Handler exposes checkout and order lookup.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	carts     cart.SessionStore
	validator *validator.Validate
}

// NewHandler constructs the checkout handler.
func NewHandler(logger *slog.Logger, service *Service, carts cart.SessionStore) *Handler {
	return &Handler{logger: logger, service: service, carts: carts, validator: validator.New()}
}

// MountRoutes registers checkout routes under /pos.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/checkout", h.checkout)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Get("/orders/{orderID}/receipt", h.receipt)
}

type checkoutRequest struct {
	RegisterID int64           `json:"register_id" validate:"required,gt=0"`
	Tendered   decimal.Decimal `json:"tendered"`
	CustomerID *int64          `json:"customer_id" validate:"omitempty,gt=0"`
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	session, err := httpx.SessionID(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	var req checkoutRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		h.fail(w, err)
		return
	}
	c, err := h.carts.Load(r.Context(), session)
	if err != nil {
		h.fail(w, err)
		return
	}
	result, err := h.service.Checkout(r.Context(), Input{
		Cart:           c,
		RegisterID:     req.RegisterID,
		Tendered:       req.Tendered,
		CustomerID:     req.CustomerID,
		CashierID:      httpx.ActorID(r),
		IdempotencyKey: r.Header.Get(httpx.HeaderIdempotency),
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	if err := h.carts.Delete(r.Context(), session); err != nil {
		h.logger.Warn("clear cart after checkout", slog.String("session", session), slog.Any("error", err))
	}
	h.logger.Info("checkout completed",
		slog.String("order", result.Order.Number),
		slog.Int64("register_id", result.Order.RegisterID),
		slog.String("grand_total", result.Order.Totals.GrandTotal.StringFixed(2)),
		slog.String("payment_status", string(result.Order.PaymentStatus)))
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "orderID")
	if err != nil {
		h.fail(w, err)
		return
	}
	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) receipt(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "orderID")
	if err != nil {
		h.fail(w, err)
		return
	}
	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(h.service.Receipt(order)))
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	httpx.RespondError(w, h.logger, err, StatusMappings...)
}
