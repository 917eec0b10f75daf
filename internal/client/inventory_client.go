package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/stock-reservation/internal/api"
	"github.com/example/stock-reservation/internal/domain/aggregate"
	"github.com/example/stock-reservation/internal/domain/order"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// TokenFunc returns the bearer token sent with every call.
type TokenFunc func() (string, error)

// RemoteError is a non-2xx answer from the inventory service. It unwraps to
// the domain error named by its reason so callers can use errors.Is. Every
// 4xx answer also unwraps to order.ErrInventoryRefused.
type RemoteError struct {
	StatusCode int
	Reason     string
	Message    string
	err        error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("inventory: %s (%d %s)", e.Message, e.StatusCode, e.Reason)
}

func (e *RemoteError) Unwrap() []error {
	var errs []error
	if e.err != nil {
		errs = append(errs, e.err)
	}
	if e.StatusCode < http.StatusInternalServerError {
		errs = append(errs, order.ErrInventoryRefused)
	}
	return errs
}

// InventoryClient implements order.Inventory over the inventory HTTP API.
type InventoryClient struct {
	baseURL string
	http    *http.Client
	token   TokenFunc
	cb      *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

var _ order.Inventory = (*InventoryClient)(nil)

func NewInventoryClient(baseURL string, timeout time.Duration, token TokenFunc, logger *zap.Logger) *InventoryClient {
	logger = logger.Named("inventory-client")
	settings := gobreaker.Settings{
		Name:        "InventoryService",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		// A refused reservation is a healthy answer.
		IsSuccessful: func(err error) bool {
			var remote *RemoteError
			return err == nil || (errors.As(err, &remote) && remote.StatusCode < http.StatusInternalServerError)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn(
				"Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &InventoryClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		token:   token,
		cb:      gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

func (c *InventoryClient) GetProductPrice(ctx context.Context, productID string) (decimal.Decimal, error) {
	var resp struct {
		Price decimal.Decimal `json:"price"`
	}
	path := "/products/" + url.PathEscape(productID) + "/price"
	if err := c.call(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return decimal.Zero, err
	}
	return resp.Price, nil
}

func (c *InventoryClient) CreateReservation(ctx context.Context, productID string, quantity int, ttl time.Duration) (order.Reservation, error) {
	req := map[string]any{
		"product_id":  productID,
		"quantity":    quantity,
		"ttl_seconds": int(ttl / time.Second),
	}
	var res order.Reservation
	if err := c.call(ctx, http.MethodPost, "/reservations", req, &res); err != nil {
		return order.Reservation{}, err
	}
	return res, nil
}

func (c *InventoryClient) ConfirmReservations(ctx context.Context, reservationIDs []string) error {
	req := map[string][]string{"reservation_ids": reservationIDs}
	return c.call(ctx, http.MethodPost, "/reservations/confirm", req, nil)
}

func (c *InventoryClient) call(ctx context.Context, method, path string, body, out any) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, method, path, body, out)
	})

	var remote *RemoteError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &remote) && remote.StatusCode < http.StatusInternalServerError:
		return err
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: %v", order.ErrInventoryUnavailable, err)
	default:
		c.logger.Warn("inventory call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", order.ErrInventoryUnavailable, err)
	}
}

func (c *InventoryClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		token, err := c.token()
		if err != nil {
			return fmt.Errorf("issue service token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeRemoteError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeRemoteError(resp *http.Response) error {
	remote := &RemoteError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	var body api.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		remote.Reason = body.Reason
		if body.Error != "" {
			remote.Message = body.Error
		}
	}

	remote.err = api.ReasonError(remote.Reason)
	if remote.err == nil {
		switch resp.StatusCode {
		case http.StatusBadRequest:
			remote.err = aggregate.ErrValidation
		case http.StatusNotFound:
			remote.err = aggregate.ErrNotFound
		case http.StatusConflict:
			remote.err = aggregate.ErrConflict
		}
	}
	return remote
}
