package handler_test

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/vasiliy-maslov/storefront/internal/cart"
	"github.com/vasiliy-maslov/storefront/internal/catalog"
	"github.com/vasiliy-maslov/storefront/internal/identity"
	"github.com/vasiliy-maslov/storefront/internal/order"
)

var (
	customer = identity.Principal{UserID: "user-1", Email: "anna@example.com", UserName: "anna"}
	admin    = identity.Principal{UserID: "admin-1", Email: "boss@example.com", UserName: "boss", Roles: []string{identity.RoleAdmin}}
)

// newRouter mounts h behind a middleware that authenticates every request as p.
func newRouter(p identity.Principal, register func(chi.Router)) chi.Router {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(identity.WithPrincipal(req.Context(), p)))
		})
	})
	register(r)
	return r
}

type MockCatalogService struct {
	mock.Mock
}

func (m *MockCatalogService) ListProducts(ctx context.Context, q catalog.ProductQuery) (*catalog.ProductPage, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.ProductPage), args.Error(1)
}

func (m *MockCatalogService) GetProduct(ctx context.Context, id int64) (*catalog.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Product), args.Error(1)
}

func (m *MockCatalogService) ListCategories(ctx context.Context) ([]catalog.Category, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]catalog.Category), args.Error(1)
}

type MockCartService struct {
	mock.Mock
}

func (m *MockCartService) AddOrIncrement(ctx context.Context, userID string, productID int64, qty int) (int, error) {
	args := m.Called(ctx, userID, productID, qty)
	return args.Int(0), args.Error(1)
}

func (m *MockCartService) UpdateQuantities(ctx context.Context, userID string, updates map[uuid.UUID]int) cart.UpdateSummary {
	args := m.Called(ctx, userID, updates)
	return args.Get(0).(cart.UpdateSummary)
}

func (m *MockCartService) Remove(ctx context.Context, userID string, lineID uuid.UUID) error {
	args := m.Called(ctx, userID, lineID)
	return args.Error(0)
}

func (m *MockCartService) Snapshot(ctx context.Context, userID string) (*cart.Snapshot, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Snapshot), args.Error(1)
}

func (m *MockCartService) ItemCount(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) Checkout(ctx context.Context, p identity.Principal, info order.ShippingInfo) (*order.Order, error) {
	args := m.Called(ctx, p, info)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) ListForUser(ctx context.Context, p identity.Principal, status *order.Status) ([]order.Order, error) {
	args := m.Called(ctx, p, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockOrderService) GetForUser(ctx context.Context, p identity.Principal, id uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, p, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) UserCancel(ctx context.Context, p identity.Principal, id uuid.UUID) (order.Result, error) {
	args := m.Called(ctx, p, id)
	return args.Get(0).(order.Result), args.Error(1)
}

func (m *MockOrderService) AdminSetStatus(ctx context.Context, p identity.Principal, id uuid.UUID, upd order.StatusUpdate) (order.Result, error) {
	args := m.Called(ctx, p, id, upd)
	return args.Get(0).(order.Result), args.Error(1)
}

func (m *MockOrderService) AddManualTrackingEvent(ctx context.Context, p identity.Principal, id uuid.UUID, ev order.ManualTrackingEvent) (order.Result, error) {
	args := m.Called(ctx, p, id, ev)
	return args.Get(0).(order.Result), args.Error(1)
}

func (m *MockOrderService) DeleteOrder(ctx context.Context, p identity.Principal, id uuid.UUID) (order.Result, error) {
	args := m.Called(ctx, p, id)
	return args.Get(0).(order.Result), args.Error(1)
}

func (m *MockOrderService) ListAll(ctx context.Context, p identity.Principal, q order.AdminOrderQuery) ([]order.Order, error) {
	args := m.Called(ctx, p, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockOrderService) ListByStatus(ctx context.Context, p identity.Principal, status order.Status) ([]order.Order, error) {
	args := m.Called(ctx, p, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockOrderService) GetOrder(ctx context.Context, p identity.Principal, id uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, p, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) TrackingHistory(ctx context.Context, p identity.Principal, id uuid.UUID) ([]order.TrackingEvent, error) {
	args := m.Called(ctx, p, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.TrackingEvent), args.Error(1)
}

func (m *MockOrderService) Drain(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
