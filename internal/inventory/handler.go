package inventory

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

// StatusMappings reports inventory errors with their HTTP status.
var StatusMappings = []httpx.StatusMapping{
	httpx.Map(ErrInvalidQuantity, http.StatusBadRequest),
	httpx.Map(ErrInvalidBatch, http.StatusBadRequest),
	httpx.Map(ErrInvalidDays, http.StatusBadRequest),
	httpx.Map(ErrQuantityOutOfRange, http.StatusBadRequest),
	httpx.Map(ErrBatchNotFound, http.StatusNotFound),
	httpx.Map(ErrInsufficientStock, http.StatusConflict),
}

// Handler wires HTTP endpoints for the batch ledger.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	validator   *validator.Validate
	defaultDays int
}

// NewHandler constructs inventory handler. defaultDays is the expiry
// look-ahead used when the request names none.
func NewHandler(logger *slog.Logger, service *Service, defaultDays int) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), defaultDays: defaultDays}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/batches", h.listBatches)
	r.Post("/batches", h.receiveBatch)
	r.Patch("/batches/{batchID}", h.adjustBatch)
	r.Delete("/batches/{batchID}", h.deleteBatch)
	r.Post("/deduct", h.deduct)
	r.Get("/stock/{productID}/{unitID}", h.stock)
	r.Post("/stock/{productID}/{unitID}/sync", h.sync)
	r.Get("/expiring", h.expiring)
}

type receiveBatchRequest struct {
	ProductID     int64            `json:"product_id" validate:"required,gt=0"`
	UnitID        int64            `json:"unit_id" validate:"required,gt=0"`
	BatchNumber   string           `json:"batch_number" validate:"required,max=64"`
	ExpiryDate    string           `json:"expiry_date" validate:"omitempty,datetime=2006-01-02"`
	Quantity      int64            `json:"quantity" validate:"required,gt=0"`
	PurchasePrice *decimal.Decimal `json:"purchase_price"`
}

type adjustBatchRequest struct {
	Quantity *int64 `json:"quantity" validate:"required"`
	Reason   string `json:"reason" validate:"required,max=255"`
}

type deductRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	UnitID    int64 `json:"unit_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

type stockResponse struct {
	ProductID int64               `json:"product_id"`
	UnitID    int64               `json:"unit_id"`
	Total     int64               `json:"total"`
	Aggregate ProductUnitQuantity `json:"aggregate"`
}

func (h *Handler) listBatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	productID, err1 := strconv.ParseInt(q.Get("product_id"), 10, 64)
	unitID, err2 := strconv.ParseInt(q.Get("unit_id"), 10, 64)
	if err1 != nil || err2 != nil {
		h.fail(w, httpx.ErrValidation)
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	batches, err := h.service.ListBatches(r.Context(), BatchFilter{
		ProductID:    productID,
		UnitID:       unitID,
		IncludeEmpty: q.Get("include_empty") == "true",
		Limit:        limit,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batches)
}

func (h *Handler) receiveBatch(w http.ResponseWriter, r *http.Request) {
	var req receiveBatchRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		h.fail(w, err)
		return
	}
	input := ReceiveBatchInput{
		ProductID:     req.ProductID,
		UnitID:        req.UnitID,
		BatchNumber:   req.BatchNumber,
		Quantity:      req.Quantity,
		PurchasePrice: req.PurchasePrice,
	}
	if req.ExpiryDate != "" {
		expiry, err := time.Parse("2006-01-02", req.ExpiryDate)
		if err != nil {
			h.fail(w, httpx.ErrValidation)
			return
		}
		input.ExpiryDate = &expiry
	}
	batch, err := h.service.ReceiveBatch(r.Context(), input)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.logger.Info("batch received",
		slog.Int64("batch_id", batch.ID),
		slog.Int64("product_id", batch.ProductID),
		slog.Int64("quantity", batch.Quantity))
	httpx.JSON(w, http.StatusCreated, batch)
}

func (h *Handler) adjustBatch(w http.ResponseWriter, r *http.Request) {
	batchID, err := httpx.PathInt64(r, "batchID")
	if err != nil {
		h.fail(w, err)
		return
	}
	var req adjustBatchRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		h.fail(w, err)
		return
	}
	batch, err := h.service.AdjustBatchQuantity(r.Context(), AdjustBatchInput{BatchID: batchID, Quantity: *req.Quantity, Reason: req.Reason})
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batch)
}

func (h *Handler) deleteBatch(w http.ResponseWriter, r *http.Request) {
	batchID, err := httpx.PathInt64(r, "batchID")
	if err != nil {
		h.fail(w, err)
		return
	}
	if err := h.service.DeleteBatch(r.Context(), batchID); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deduct(w http.ResponseWriter, r *http.Request) {
	var req deductRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		h.fail(w, err)
		return
	}
	deductions, err := h.service.DeductStockFEFO(r.Context(), req.ProductID, req.UnitID, req.Quantity)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, deductions)
}

func (h *Handler) stock(w http.ResponseWriter, r *http.Request) {
	productID, unitID, err := pathUnit(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	total, err := h.service.GetTotalStock(r.Context(), productID, unitID)
	if err != nil {
		h.fail(w, err)
		return
	}
	agg, err := h.service.GetAggregate(r.Context(), productID, unitID)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stockResponse{ProductID: productID, UnitID: unitID, Total: total, Aggregate: agg})
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	productID, unitID, err := pathUnit(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	agg, err := h.service.SyncProductUnitQuantity(r.Context(), productID, unitID)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, agg)
}

func (h *Handler) expiring(w http.ResponseWriter, r *http.Request) {
	days := h.defaultDays
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			h.fail(w, httpx.ErrValidation)
			return
		}
		days = parsed
	}
	batches, err := h.service.GetExpiringSoon(r.Context(), days)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batches)
}

func pathUnit(r *http.Request) (int64, int64, error) {
	productID, err := httpx.PathInt64(r, "productID")
	if err != nil {
		return 0, 0, err
	}
	unitID, err := httpx.PathInt64(r, "unitID")
	if err != nil {
		return 0, 0, err
	}
	return productID, unitID, nil
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	httpx.RespondError(w, h.logger, err, StatusMappings...)
}
