package api

import (
	"net/http"

	"github.com/example/stock-reservation/internal/api/middleware"
	"github.com/example/stock-reservation/internal/auth"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func newRouter(logger *zap.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

// NewInventoryRouter serves the product catalogue and the reservation
// protocol. Catalogue reads are public; writes need an admin and the
// reservation endpoints need a service or admin token.
func NewInventoryRouter(h *InventoryHandler, jwtService *auth.JWTService, logger *zap.Logger) http.Handler {
	r := newRouter(logger)
	authn := middleware.AuthMiddleware(jwtService)

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Get("/{id}", h.GetProduct)
		r.Get("/{id}/price", h.GetPrice)
		r.Get("/{id}/availability", h.GetAvailability)

		r.Group(func(r chi.Router) {
			r.Use(authn, middleware.RequireRole(auth.RoleAdmin))
			r.Post("/", h.CreateProduct)
			r.Put("/{id}/price", h.ChangePrice)
			r.Post("/{id}/stock", h.AdjustStock)
			r.Delete("/{id}", h.DeleteProduct)
		})
	})

	r.Route("/reservations", func(r chi.Router) {
		r.Use(authn, middleware.RequireRole(auth.RoleService, auth.RoleAdmin))
		r.Post("/", h.CreateReservation)
		r.Post("/confirm", h.ConfirmReservations)
	})

	return r
}

func NewOrderRouter(h *OrderHandler, jwtService *auth.JWTService, logger *zap.Logger) http.Handler {
	r := newRouter(logger)

	r.Route("/orders", func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(jwtService))
		r.Post("/", h.PlaceOrder)
		r.Get("/{id}", h.GetOrder)
		r.Post("/{id}/lines", h.AddLines)
		r.Delete("/{id}/lines/{lineId}", h.RemoveLine)
		r.Post("/{id}/pay", h.PayOrder)
		r.Post("/{id}/cancel", h.CancelOrder)
	})

	return r
}
