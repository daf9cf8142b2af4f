package cart

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/money"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

// SessionStore persists carts per POS session.
type SessionStore interface {
	Load(ctx context.Context, session string) (*Cart, error)
	Save(ctx context.Context, session string, c *Cart) error
	Delete(ctx context.Context, session string) error
	Hold(ctx context.Context, session, label string) (HeldCart, error)
	ListHeld(ctx context.Context, session string) ([]HeldCart, error)
	Resume(ctx context.Context, session string, heldID uuid.UUID) (*Cart, error)
}

// CouponFinder looks coupons up for the cart endpoints.
type CouponFinder interface {
	FindByCode(ctx context.Context, code string) (Coupon, error)
	List(ctx context.Context, filter CouponFilter) ([]Coupon, error)
}

// StatusMappings reports cart errors with their HTTP status.
var StatusMappings = []httpx.StatusMapping{
	httpx.Map(ErrInvalidQuantity, http.StatusBadRequest),
	httpx.Map(ErrInvalidPrice, http.StatusBadRequest),
	httpx.Map(ErrInvalidDiscount, http.StatusBadRequest),
	httpx.Map(money.ErrUnknownType, http.StatusBadRequest),
	httpx.Map(ErrLineNotFound, http.StatusNotFound),
	httpx.Map(ErrCouponNotFound, http.StatusNotFound),
	httpx.Map(ErrCouponNotApplied, http.StatusNotFound),
	httpx.Map(ErrHeldCartNotFound, http.StatusNotFound),
	httpx.Map(ErrProductNotFound, http.StatusNotFound),
	httpx.Map(ErrCouponAlreadyApplied, http.StatusConflict),
	httpx.Map(ErrCartNotEmpty, http.StatusConflict),
	httpx.Map(ErrEmptyCart, http.StatusBadRequest),
	httpx.Map(ErrMinimumNotMet, http.StatusUnprocessableEntity),
	httpx.Map(ErrCouponInactive, http.StatusUnprocessableEntity),
}

// Handler exposes the session cart over JSON.
type Handler struct {
	logger    *slog.Logger
	store     SessionStore
	catalog   Catalog
	coupons   CouponFinder
	validator *validator.Validate
}

// NewHandler constructs the cart handler.
func NewHandler(logger *slog.Logger, store SessionStore, catalog Catalog, coupons CouponFinder) *Handler {
	return &Handler{
		logger:    logger,
		store:     store,
		catalog:   catalog,
		coupons:   coupons,
		validator: validator.New(),
	}
}

// MountRoutes registers cart routes under /pos.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/coupons", h.listCoupons)
	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.show)
		r.Delete("/", h.clear)
		r.Post("/lines", h.addLine)
		r.Patch("/lines/{lineID}", h.updateLine)
		r.Delete("/lines/{lineID}", h.removeLine)
		r.Post("/lines/{lineID}/discount", h.lineDiscount)
		r.Post("/discount", h.cartDiscount)
		r.Delete("/discount", h.clearCartDiscount)
		r.Post("/coupons", h.applyCoupon)
		r.Delete("/coupons/{couponID}", h.removeCoupon)
		r.Post("/hold", h.hold)
		r.Get("/held", h.listHeld)
		r.Post("/held/{heldID}/resume", h.resume)
	})
}

// View is the cart as returned to the till.
type View struct {
	Lines    []LineView      `json:"lines"`
	Discount *Adjustment     `json:"discount,omitempty"`
	Coupons  []AppliedCoupon `json:"coupons"`
	TaxType  money.TaxType   `json:"tax_type"`
	Totals   Totals          `json:"totals"`
}

// LineView adds the computed line total.
type LineView struct {
	Line
	Total decimal.Decimal `json:"total"`
}

// NewView renders c for clients.
func NewView(c *Cart) View {
	lines := make([]LineView, 0, len(c.Lines))
	for _, l := range c.Lines {
		lines = append(lines, LineView{Line: l, Total: l.Total(c.TaxType)})
	}
	coupons := c.Coupons
	if coupons == nil {
		coupons = []AppliedCoupon{}
	}
	return View{Lines: lines, Discount: c.Discount, Coupons: coupons, TaxType: c.TaxType, Totals: c.Totals()}
}

type addLineRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	UnitID    int64 `json:"unit_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,min=1"`
}

type quantityRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1"`
}

type discountRequest struct {
	Type  string          `json:"type" validate:"required,oneof=flat percentage"`
	Value decimal.Decimal `json:"value"`
}

type couponRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

type holdRequest struct {
	Label string `json:"label" validate:"max=120"`
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	h.withCart(w, r, false, func(*Cart) (int, error) { return http.StatusOK, nil })
}

func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	session, err := httpx.SessionID(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	if err := h.store.Delete(r.Context(), session); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addLine(w http.ResponseWriter, r *http.Request) {
	var req addLineRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		h.fail(w, err)
		return
	}
	h.withCart(w, r, true, func(c *Cart) (int, error) {
		product, err := h.catalog.FindProduct(r.Context(), req.ProductID, req.UnitID)
		if err != nil {
			return 0, err
		}
		_, err = c.AddLine(product, req.Quantity)
		return http.StatusCreated, err
	})
}

func (h *Handler) updateLine(w http.ResponseWriter, r *http.Request) {
	lineID, err := httpx.PathUUID(r, "lineID")
	if err != nil {
		h.fail(w, err)
		return
	}
	var req quantityRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		h.fail(w, err)
		return
	}
	h.withCart(w, r, true, func(c *Cart) (int, error) {
		_, err := c.UpdateQuantity(lineID, req.Quantity)
		return http.StatusOK, err
	})
}

func (h *Handler) removeLine(w http.ResponseWriter, r *http.Request) {
	lineID, err := httpx.PathUUID(r, "lineID")
	if err != nil {
		h.fail(w, err)
		return
	}
	h.withCart(w, r, true, func(c *Cart) (int, error) {
		return http.StatusOK, c.RemoveLine(lineID)
	})
}

func (h *Handler) lineDiscount(w http.ResponseWriter, r *http.Request) {
	lineID, err := httpx.PathUUID(r, "lineID")
	if err != nil {
		h.fail(w, err)
		return
	}
	var req discountRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		h.fail(w, err)
		return
	}
	t, err := money.ParseDiscountType(req.Type)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.withCart(w, r, true, func(c *Cart) (int, error) {
		_, err := c.ApplyLineDiscount(lineID, t, req.Value)
		return http.StatusOK, err
	})
}

func (h *Handler) cartDiscount(w http.ResponseWriter, r *http.Request) {
	var req discountRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		h.fail(w, err)
		return
	}
	t, err := money.ParseDiscountType(req.Type)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.withCart(w, r, true, func(c *Cart) (int, error) {
		_, err := c.ApplyCartDiscount(t, req.Value)
		return http.StatusOK, err
	})
}

func (h *Handler) clearCartDiscount(w http.ResponseWriter, r *http.Request) {
	h.withCart(w, r, true, func(c *Cart) (int, error) {
		c.ClearCartDiscount()
		return http.StatusOK, nil
	})
}

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		h.fail(w, err)
		return
	}
	h.withCart(w, r, true, func(c *Cart) (int, error) {
		coupon, err := h.coupons.FindByCode(r.Context(), req.Code)
		if err != nil {
			return 0, err
		}
		_, err = c.ApplyCoupon(coupon)
		return http.StatusOK, err
	})
}

func (h *Handler) removeCoupon(w http.ResponseWriter, r *http.Request) {
	couponID, err := httpx.PathInt64(r, "couponID")
	if err != nil {
		h.fail(w, err)
		return
	}
	h.withCart(w, r, true, func(c *Cart) (int, error) {
		return http.StatusOK, c.RemoveCoupon(couponID)
	})
}

func (h *Handler) hold(w http.ResponseWriter, r *http.Request) {
	session, err := httpx.SessionID(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	var req holdRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		h.fail(w, err)
		return
	}
	held, err := h.store.Hold(r.Context(), session, strings.TrimSpace(req.Label))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.logger.Info("cart held", slog.String("session", session), slog.String("held_id", held.ID.String()))
	httpx.JSON(w, http.StatusCreated, held)
}

func (h *Handler) listHeld(w http.ResponseWriter, r *http.Request) {
	session, err := httpx.SessionID(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	held, err := h.store.ListHeld(r.Context(), session)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, held)
}

func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	session, err := httpx.SessionID(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	heldID, err := httpx.PathUUID(r, "heldID")
	if err != nil {
		h.fail(w, err)
		return
	}
	c, err := h.store.Resume(r.Context(), session, heldID)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewView(c))
}

func (h *Handler) listCoupons(w http.ResponseWriter, r *http.Request) {
	filter := CouponFilter{Search: r.URL.Query().Get("q")}
	if v := r.URL.Query().Get("active"); v != "" {
		active := v == "true" || v == "1"
		filter.Active = &active
	}
	coupons, err := h.coupons.List(r.Context(), filter)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, coupons)
}

// withCart loads the session cart, applies fn and saves it when persist is set
// and fn succeeded. A failed fn leaves the stored cart untouched.
func (h *Handler) withCart(w http.ResponseWriter, r *http.Request, persist bool, fn func(*Cart) (int, error)) {
	session, err := httpx.SessionID(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	c, err := h.store.Load(r.Context(), session)
	if err != nil {
		h.fail(w, err)
		return
	}
	status, err := fn(c)
	if err != nil {
		h.fail(w, err)
		return
	}
	if persist {
		if err := h.store.Save(r.Context(), session, c); err != nil {
			h.fail(w, err)
			return
		}
	}
	httpx.JSON(w, status, NewView(c))
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	httpx.RespondError(w, h.logger, err, StatusMappings...)
}
