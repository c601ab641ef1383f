package order_test

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/vasiliy-maslov/storefront/internal/cart"
	"github.com/vasiliy-maslov/storefront/internal/order"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, o *order.Order) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

func (m *MockRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockRepository) GetForUser(ctx context.Context, id uuid.UUID, userID string) (*order.Order, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) Update(ctx context.Context, o *order.Order) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

func (m *MockRepository) AppendTrackingEvent(ctx context.Context, e *order.TrackingEvent) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockRepository) TrackingHistory(ctx context.Context, orderID uuid.UUID) ([]order.TrackingEvent, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.TrackingEvent), args.Error(1)
}

func (m *MockRepository) ListForUser(ctx context.Context, userID string, status *order.Status) ([]order.Order, error) {
	args := m.Called(ctx, userID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockRepository) ListAll(ctx context.Context, q order.AdminOrderQuery) ([]order.Order, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockRepository) DeleteTrackingEvents(ctx context.Context, orderID uuid.UUID) (int64, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) DeleteLines(ctx context.Context, orderID uuid.UUID) (int64, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) Delete(ctx context.Context, orderID uuid.UUID) (bool, error) {
	args := m.Called(ctx, orderID)
	return args.Bool(0), args.Error(1)
}

type MockCartStore struct {
	mock.Mock
}

func (m *MockCartStore) LockWithPrices(ctx context.Context, userID string) ([]cart.Line, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]cart.Line), args.Error(1)
}

func (m *MockCartStore) DeleteLines(ctx context.Context, userID string, lineIDs []uuid.UUID) (int64, error) {
	args := m.Called(ctx, userID, lineIDs)
	return args.Get(0).(int64), args.Error(1)
}

// fakeUnitOfWork runs fn directly; rollback is the repository mocks' concern.
type fakeUnitOfWork struct {
	calls int
}

func (u *fakeUnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	u.calls++
	return fn(ctx)
}

type notification struct {
	kind       order.NotificationKind
	order      order.Order
	transition order.Transition
}

type fakeNotifier struct {
	mu     sync.Mutex
	result map[order.NotificationKind]bool
	sent   []notification
	done   chan notification

	// delay simulates a slow mail server; hold blocks until closed.
	delay time.Duration
	hold  chan struct{}
}

func newFakeNotifier(result map[order.NotificationKind]bool) *fakeNotifier {
	return &fakeNotifier{result: result, done: make(chan notification, 8)}
}

func (n *fakeNotifier) Notify(_ context.Context, kind order.NotificationKind, o *order.Order, t order.Transition) bool {
	if n.delay > 0 {
		time.Sleep(n.delay)
	}
	if n.hold != nil {
		<-n.hold
	}
	rec := notification{kind: kind, order: *o, transition: t}
	n.mu.Lock()
	n.sent = append(n.sent, rec)
	n.mu.Unlock()
	n.done <- rec
	return n.result[kind]
}

func (n *fakeNotifier) kinds() []order.NotificationKind {
	var kinds []order.NotificationKind
	for _, c := range n.calls() {
		kinds = append(kinds, c.kind)
	}
	return kinds
}

func (n *fakeNotifier) calls() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.sent...)
}

type publishedEvent struct {
	eventType string
	payload   any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, eventType string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{eventType: eventType, payload: payload})
	return p.err
}
