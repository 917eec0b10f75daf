package api

import (
	"context"
	"net/http"

	"github.com/example/stock-reservation/internal/api/middleware"
	"github.com/example/stock-reservation/internal/auth"
	"github.com/example/stock-reservation/internal/domain/order"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type OrderService interface {
	Place(ctx context.Context, customerID string, lines []order.LineRequest, createdBy string) (*order.Order, error)
	Get(ctx context.Context, id string) (*order.Order, error)
	AddLines(ctx context.Context, orderID string, lines []order.LineRequest, performedBy string) (*order.Order, error)
	RemoveLine(ctx context.Context, orderID, lineID, performedBy string) (*order.Order, error)
	Pay(ctx context.Context, orderID, performedBy string) (*order.Order, error)
	Cancel(ctx context.Context, orderID, reason, performedBy string) (*order.Order, error)
}

type OrderHandler struct {
	baseHandler
	orders OrderService
}

func NewOrderHandler(orders OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		baseHandler: baseHandler{logger: logger.Named("http"), validate: validator.New()},
		orders:      orders,
	}
}

type orderLineRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

type orderLinesRequest struct {
	Lines []orderLineRequest `json:"lines" validate:"required,min=1,max=100,dive"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (req orderLinesRequest) toDomain() []order.LineRequest {
	lines := make([]order.LineRequest, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = order.LineRequest{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	return lines
}

// loadOwned returns the order only when the caller owns it or is an admin.
// Other callers see the same error as for a missing order.
func (h *OrderHandler) loadOwned(r *http.Request, id string) (*order.Order, error) {
	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok || (claims.Role != auth.RoleAdmin && claims.UserID != o.CustomerID) {
		return nil, order.ErrOrderNotFound
	}
	return o, nil
}

func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req orderLinesRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	userID := middleware.GetUserID(r.Context())
	o, err := h.orders.Place(r.Context(), userID, req.toDomain(), userID)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, o)
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.loadOwned(r, chi.URLParam(r, "id"))
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) AddLines(w http.ResponseWriter, r *http.Request) {
	var req orderLinesRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := h.loadOwned(r, id); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	o, err := h.orders.AddLines(r.Context(), id, req.toDomain(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.loadOwned(r, id); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	o, err := h.orders.RemoveLine(r.Context(), id, chi.URLParam(r, "lineId"), middleware.GetUserID(r.Context()))
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) PayOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.loadOwned(r, id); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	o, err := h.orders.Pay(r.Context(), id, middleware.GetUserID(r.Context()))
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelOrderRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := h.loadOwned(r, id); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	o, err := h.orders.Cancel(r.Context(), id, req.Reason, middleware.GetUserID(r.Context()))
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}
