package loyalty

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

// Handler exposes point balances to the till.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the loyalty handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers loyalty routes under /pos.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/customers/{customerID}/loyalty", h.balance)
}

type balanceResponse struct {
	CustomerID int64 `json:"customer_id"`
	Points     int64 `json:"points"`
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "customerID")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	points, err := h.service.Balance(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err, httpx.Map(ErrCustomerNotFound, http.StatusNotFound))
		return
	}
	httpx.JSON(w, http.StatusOK, balanceResponse{CustomerID: id, Points: points})
}
