package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/example/stock-reservation/internal/domain/aggregate"
	"github.com/example/stock-reservation/internal/domain/inventory"
	"github.com/example/stock-reservation/internal/domain/order"
	"github.com/example/stock-reservation/internal/domain/product"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

const (
	ReasonInvalidArgument = "invalid_argument"
	ReasonNotFound        = "not_found"
	ReasonConflict        = "conflict"
	ReasonExhausted       = "exhausted"
	ReasonInvariant       = "invariant_violation"
	ReasonInternal        = "internal"
)

type reasonEntry struct {
	err    error
	reason string
	status int
}

// reasons is ordered most specific first; the kind fallbacks come last.
var reasons = []reasonEntry{
	{product.ErrProductNotFound, "product_not_found", http.StatusNotFound},
	{inventory.ErrReservationNotFound, "reservation_not_found", http.StatusNotFound},
	{order.ErrOrderNotFound, "order_not_found", http.StatusNotFound},
	{order.ErrLineNotFound, "line_not_found", http.StatusNotFound},

	{product.ErrInvalidID, "invalid_product_id", http.StatusBadRequest},
	{inventory.ErrInvalidID, "invalid_reservation_id", http.StatusBadRequest},
	{inventory.ErrInvalidQuantity, "invalid_quantity", http.StatusBadRequest},
	{inventory.ErrInvalidTTL, "invalid_ttl", http.StatusBadRequest},

	{inventory.ErrInsufficientStock, "insufficient_stock", http.StatusConflict},
	{product.ErrStockUnderflow, "stock_underflow", http.StatusConflict},
	{product.ErrProductInUse, "product_in_use", http.StatusConflict},
	{inventory.ErrReservationExpired, "reservation_expired", http.StatusConflict},
	{inventory.ErrAlreadyConfirmed, "reservation_already_confirmed", http.StatusConflict},
	{aggregate.ErrVersionConflict, "version_conflict", http.StatusConflict},
	{order.ErrOrderNotModifiable, "order_not_modifiable", http.StatusConflict},
	{order.ErrOrderAlreadyPaid, "order_already_paid", http.StatusConflict},
	{order.ErrOrderCancelled, "order_cancelled", http.StatusConflict},

	{order.ErrInventoryUnavailable, "inventory_unavailable", http.StatusServiceUnavailable},

	{aggregate.ErrValidation, ReasonInvalidArgument, http.StatusBadRequest},
	{aggregate.ErrNotFound, ReasonNotFound, http.StatusNotFound},
	{aggregate.ErrExhausted, ReasonExhausted, http.StatusConflict},
	{aggregate.ErrConflict, ReasonConflict, http.StatusConflict},
	{aggregate.ErrInvariant, ReasonInvariant, http.StatusConflict},

	{order.ErrInventoryRefused, "inventory_refused", http.StatusBadGateway},
}

// ErrorReason maps an error to its HTTP status and machine-readable reason.
func ErrorReason(err error) (int, string) {
	for _, e := range reasons {
		if errors.Is(err, e.err) {
			return e.status, e.reason
		}
	}
	return http.StatusInternalServerError, ReasonInternal
}

// ReasonError is the inverse of ErrorReason: it returns the error a remote
// caller should wrap for reason, or nil when the reason is unknown.
func ReasonError(reason string) error {
	for _, e := range reasons {
		if e.reason == reason {
			return e.err
		}
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, reason, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Reason: reason})
}

// respondDomainError hides internal error text from clients.
func (h *baseHandler) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, reason := ErrorReason(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		msg = "internal server error"
	}
	respondError(w, status, reason, msg)
}

// decodeAndValidate reads a JSON body into dst and runs its validate tags.
func (h *baseHandler) decodeAndValidate(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid request body: %v", aggregate.ErrValidation, err)
	}
	if err := h.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s", aggregate.ErrValidation, formatValidationError(err))
	}
	return nil
}

func formatValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "gt":
			msgs = append(msgs, fmt.Sprintf("%s must be greater than %s", field, fe.Param()))
		case "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must have at least %s items", field, fe.Param()))
		case "lte":
			msgs = append(msgs, fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", field, fe.Param()))
		case "uuid":
			msgs = append(msgs, fmt.Sprintf("%s must be a UUID", field))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
		}
	}
	return strings.Join(msgs, "; ")
}
