package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/stock-reservation/internal/api/middleware"
	"github.com/example/stock-reservation/internal/domain/inventory"
	"github.com/example/stock-reservation/internal/domain/product"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductCatalog is implemented by product.Service and its cached decorator.
type ProductCatalog interface {
	Create(ctx context.Context, name string, price decimal.Decimal, quantity int, createdBy string) (*product.Product, error)
	Get(ctx context.Context, id string) (*product.Product, error)
	List(ctx context.Context, filter product.ListFilter) (*product.Page, error)
	GetProductPrice(ctx context.Context, id string) (decimal.Decimal, error)
	ChangePrice(ctx context.Context, id string, price decimal.Decimal, performedBy string) (*product.Product, error)
	AdjustStock(ctx context.Context, id string, delta int, performedBy string) (*product.Product, error)
	Delete(ctx context.Context, id string) error
}

type Reservations interface {
	Available(ctx context.Context, productID string) (int, error)
	CreateReservation(ctx context.Context, productID string, quantity int, ttl time.Duration) (*inventory.Reservation, error)
	ConfirmReservations(ctx context.Context, ids []string) error
}

type baseHandler struct {
	logger   *zap.Logger
	validate *validator.Validate
}

type InventoryHandler struct {
	baseHandler
	products     ProductCatalog
	reservations Reservations
}

func NewInventoryHandler(products ProductCatalog, reservations Reservations, logger *zap.Logger) *InventoryHandler {
	return &InventoryHandler{
		baseHandler:  baseHandler{logger: logger.Named("http"), validate: validator.New()},
		products:     products,
		reservations: reservations,
	}
}

type createProductRequest struct {
	Name     string          `json:"name" validate:"required,max=200"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity" validate:"gte=0"`
}

type changePriceRequest struct {
	Price decimal.Decimal `json:"price"`
}

type adjustStockRequest struct {
	Delta int `json:"delta"`
}

type createReservationRequest struct {
	ProductID  string `json:"product_id" validate:"required"`
	Quantity   int    `json:"quantity" validate:"gt=0"`
	TTLSeconds int64  `json:"ttl_seconds" validate:"gte=0,lte=86400"`
}

type reservationResponse struct {
	ReservationID string    `json:"reservation_id"`
	ExpiresAt     time.Time `json:"expires_at"`
}

type confirmReservationsRequest struct {
	ReservationIDs []string `json:"reservation_ids" validate:"max=500"`
}

type priceResponse struct {
	ProductID string          `json:"product_id"`
	Price     decimal.Decimal `json:"price"`
}

type availabilityResponse struct {
	ProductID string `json:"product_id"`
	Available int    `json:"available"`
}

// Product Handlers

func (h *InventoryHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))

	result, err := h.products.List(r.Context(), product.ListFilter{
		Search:   q.Get("search"),
		Page:     page,
		PageSize: pageSize,
		SortBy:   product.SortField(q.Get("sort_by")),
		Desc:     strings.EqualFold(q.Get("order"), "desc"),
	})
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *InventoryHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *InventoryHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	price, err := h.products.GetProductPrice(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, priceResponse{ProductID: id, Price: price})
}

func (h *InventoryHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	available, err := h.reservations.Available(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, availabilityResponse{ProductID: id, Available: available})
}

func (h *InventoryHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	p, err := h.products.Create(r.Context(), req.Name, req.Price, req.Quantity, middleware.GetUserID(r.Context()))
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (h *InventoryHandler) ChangePrice(w http.ResponseWriter, r *http.Request) {
	var req changePriceRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	p, err := h.products.ChangePrice(r.Context(), chi.URLParam(r, "id"), req.Price, middleware.GetUserID(r.Context()))
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *InventoryHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var req adjustStockRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	p, err := h.products.AdjustStock(r.Context(), chi.URLParam(r, "id"), req.Delta, middleware.GetUserID(r.Context()))
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *InventoryHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.products.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reservation Handlers

func (h *InventoryHandler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req createReservationRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	ttl := time.Duration(req.TTLSeconds) * time.Second
	res, err := h.reservations.CreateReservation(r.Context(), req.ProductID, req.Quantity, ttl)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, reservationResponse{ReservationID: res.ID, ExpiresAt: res.ExpiresAt})
}

func (h *InventoryHandler) ConfirmReservations(w http.ResponseWriter, r *http.Request) {
	var req confirmReservationsRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	if err := h.reservations.ConfirmReservations(r.Context(), req.ReservationIDs); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
