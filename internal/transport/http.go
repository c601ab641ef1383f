package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/vasiliy-maslov/storefront/internal/handler"
	"github.com/vasiliy-maslov/storefront/internal/identity"
)

type Handlers struct {
	Catalog *handler.CatalogHandler
	Cart    *handler.CartHandler
	Orders  *handler.OrderHandler
	Admin   *handler.AdminHandler
}

// NewRouter serves the catalog publicly and everything else under /api
// to authenticated callers, with the back office restricted to admins.
func NewRouter(h Handlers, verifier *identity.Verifier) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/api", func(api chi.Router) {
		h.Catalog.RegisterRoutes(api)

		api.Group(func(authed chi.Router) {
			authed.Use(identity.Authenticate(verifier))
			h.Cart.RegisterRoutes(authed)
			h.Orders.RegisterRoutes(authed)

			authed.Group(func(admin chi.Router) {
				admin.Use(identity.RequireRole(identity.RoleAdmin))
				h.Admin.RegisterRoutes(admin)
			})
		})
	})

	return r
}
