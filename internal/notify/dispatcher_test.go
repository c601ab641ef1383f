package notify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/storefront/internal/config"
	"github.com/vasiliy-maslov/storefront/internal/identity"
	"github.com/vasiliy-maslov/storefront/internal/notify"
	"github.com/vasiliy-maslov/storefront/internal/order"
)

type sentMail struct {
	to, subject, body string
	hasDeadline       bool
}

type fakeMailer struct {
	err  error
	sent []sentMail
}

func (m *fakeMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	_, ok := ctx.Deadline()
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: htmlBody, hasDeadline: ok})
	return m.err
}

type fakeUsers map[string]*identity.User

func (u fakeUsers) LookupUser(_ context.Context, userID string) (*identity.User, error) {
	if user, ok := u[userID]; ok {
		return user, nil
	}
	return nil, identity.ErrUserNotFound
}

var users = fakeUsers{
	"user-1": {ID: "user-1", Email: "arta@example.com", UserName: "arta"},
}

func sampleOrder() *order.Order {
	return &order.Order{
		ID:              uuid.Must(uuid.NewV4()),
		Number:          42,
		UserID:          "user-1",
		CreatedAt:       time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC),
		TotalAmount:     decimal.RequireFromString("20.00"),
		ShippingAddress: "Rr X",
		City:            "Prishtinë",
		Phone:           "044123456",
		Status:          order.StatusShipped,
		TrackingNumber:  "TRK1",
		Carrier:         "DHL",
		Lines: []order.Line{
			{ProductID: 7, ProductName: "Walnut side table", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
		},
	}
}

func newDispatcher(t *testing.T, mailer notify.Mailer) *notify.Dispatcher {
	t.Helper()
	d, err := notify.NewDispatcher(mailer, users, notify.Options{AdminEmail: "admin@example.com", Timeout: time.Second})
	require.NoError(t, err)
	return d
}

func TestDispatcher_OrderConfirmation(t *testing.T) {
	mailer := &fakeMailer{}
	d := newDispatcher(t, mailer)

	sent := d.Notify(context.Background(), order.OrderConfirmation, sampleOrder(), order.Transition{To: order.StatusReceived})
	require.True(t, sent)
	require.Len(t, mailer.sent, 1)

	msg := mailer.sent[0]
	assert.Equal(t, "arta@example.com", msg.to)
	assert.Equal(t, "Order Confirmation - #ORD000042", msg.subject)
	assert.Contains(t, msg.body, "Dear arta")
	assert.Contains(t, msg.body, "Walnut side table")
	assert.Contains(t, msg.body, "€20.00")
	assert.True(t, msg.hasDeadline)
}

func TestDispatcher_CustomerStatusUpdate(t *testing.T) {
	tests := []struct {
		name         string
		to           order.Status
		tracking     string
		wantTracking bool
		wantMeaning  string
	}{
		{name: "shipped_with_tracking", to: order.StatusShipped, tracking: "TRK1", wantTracking: true, wantMeaning: "Your order has been shipped"},
		{name: "shipped_without_tracking", to: order.StatusShipped, tracking: "", wantTracking: false, wantMeaning: "Your order has been shipped"},
		{name: "completed", to: order.StatusCompleted, tracking: "TRK1", wantTracking: false, wantMeaning: "Your order has been completed"},
		{name: "cancelled", to: order.StatusCancelled, tracking: "N/A", wantTracking: false, wantMeaning: "Your order has been cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mailer := &fakeMailer{}
			d := newDispatcher(t, mailer)
			o := sampleOrder()
			o.TrackingNumber = tt.tracking

			sent := d.Notify(context.Background(), order.CustomerStatusUpdate, o, order.Transition{From: order.StatusProcessing, To: tt.to})
			require.True(t, sent)
			require.Len(t, mailer.sent, 1)

			msg := mailer.sent[0]
			assert.Equal(t, "Order Status Update - Order #ORD000042", msg.subject)
			assert.Contains(t, msg.body, tt.wantMeaning)
			if tt.wantTracking {
				assert.Contains(t, msg.body, "Tracking Number:</strong> TRK1")
			} else {
				assert.NotContains(t, msg.body, "Shipping Information")
			}
		})
	}
}

func TestDispatcher_AdminStatusUpdate(t *testing.T) {
	mailer := &fakeMailer{}
	d := newDispatcher(t, mailer)

	sent := d.Notify(context.Background(), order.AdminStatusUpdate, sampleOrder(), order.Transition{From: order.StatusReceived, To: order.StatusShipped})
	require.True(t, sent)
	assert.Equal(t, "admin@example.com", mailer.sent[0].to)
	assert.Equal(t, "[Admin] Order #ORD000042: Received → Shipped", mailer.sent[0].subject)
	assert.Contains(t, mailer.sent[0].body, "arta@example.com")
}

func TestDispatcher_FailuresReportFalse(t *testing.T) {
	t.Run("transport_error", func(t *testing.T) {
		d := newDispatcher(t, &fakeMailer{err: errors.New("535 authentication failed")})
		assert.False(t, d.Notify(context.Background(), order.OrderConfirmation, sampleOrder(), order.Transition{}))
	})

	t.Run("unknown_customer", func(t *testing.T) {
		mailer := &fakeMailer{}
		d := newDispatcher(t, mailer)
		o := sampleOrder()
		o.UserID = "ghost"
		assert.False(t, d.Notify(context.Background(), order.CustomerStatusUpdate, o, order.Transition{To: order.StatusShipped}))
		assert.Empty(t, mailer.sent)
	})

	t.Run("no_admin_address", func(t *testing.T) {
		mailer := &fakeMailer{}
		d, err := notify.NewDispatcher(mailer, users, notify.Options{})
		require.NoError(t, err)
		assert.False(t, d.Notify(context.Background(), order.AdminStatusUpdate, sampleOrder(), order.Transition{To: order.StatusShipped}))
		assert.Empty(t, mailer.sent)
	})

	t.Run("mail_not_configured", func(t *testing.T) {
		d := newDispatcher(t, notify.NewMailer(config.MailConfig{}))
		assert.False(t, d.Notify(context.Background(), order.OrderConfirmation, sampleOrder(), order.Transition{}))
	})
}

type hangingUsers struct{}

func (hangingUsers) LookupUser(ctx context.Context, _ string) (*identity.User, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestDispatcher_LookupBoundedByTimeout(t *testing.T) {
	mailer := &fakeMailer{}
	d, err := notify.NewDispatcher(mailer, hangingUsers{}, notify.Options{Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	sent := d.Notify(context.Background(), order.CustomerStatusUpdate, sampleOrder(), order.Transition{To: order.StatusShipped})

	assert.False(t, sent)
	assert.Less(t, time.Since(start), time.Second)
	assert.Empty(t, mailer.sent)
}
