package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/cart"
	"github.com/vasiliy-maslov/storefront/internal/identity"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/vasiliy-maslov/storefront/internal/order")

const (
	EventOrderPlaced        = "order.placed"
	EventOrderStatusChanged = "order.status_changed"
)

const (
	msgOrderNotFound      = "Order not found."
	msgAlreadyShipped     = "Cannot cancel order that has already been shipped."
	msgAlreadyCancelled   = "Order is already cancelled."
	msgCancelled          = "Order cancelled successfully."
	msgStatusNotified     = "Order status updated successfully and email notification sent."
	msgStatusNotNotified  = "Order status updated but failed to send email notification."
	msgTrackingEventAdded = "Tracking event added successfully."
	msgOrderDeleted       = "Order deleted successfully."
)

// UnitOfWork runs fn in one transaction; repositories called with the ctx
// passed to fn take part in it.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CartStore is the part of the cart ledger consumed by checkout.
type CartStore interface {
	LockWithPrices(ctx context.Context, userID string) ([]cart.Line, error)
	DeleteLines(ctx context.Context, userID string, lineIDs []uuid.UUID) (int64, error)
}

type NotificationKind int

const (
	OrderConfirmation NotificationKind = iota + 1
	CustomerStatusUpdate
	AdminStatusUpdate
)

func (k NotificationKind) String() string {
	switch k {
	case OrderConfirmation:
		return "order_confirmation"
	case CustomerStatusUpdate:
		return "customer_status_update"
	case AdminStatusUpdate:
		return "admin_status_update"
	}
	return "unknown"
}

// Notifier delivers order emails. It reports whether the message went out and
// never returns delivery errors.
type Notifier interface {
	Notify(ctx context.Context, kind NotificationKind, o *Order, t Transition) bool
}

type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

type Service interface {
	Checkout(ctx context.Context, p identity.Principal, info ShippingInfo) (*Order, error)
	ListForUser(ctx context.Context, p identity.Principal, status *Status) ([]Order, error)
	GetForUser(ctx context.Context, p identity.Principal, id uuid.UUID) (*Order, error)
	UserCancel(ctx context.Context, p identity.Principal, id uuid.UUID) (Result, error)

	AdminSetStatus(ctx context.Context, admin identity.Principal, id uuid.UUID, upd StatusUpdate) (Result, error)
	AddManualTrackingEvent(ctx context.Context, admin identity.Principal, id uuid.UUID, ev ManualTrackingEvent) (Result, error)
	DeleteOrder(ctx context.Context, admin identity.Principal, id uuid.UUID) (Result, error)
	ListAll(ctx context.Context, admin identity.Principal, q AdminOrderQuery) ([]Order, error)
	ListByStatus(ctx context.Context, admin identity.Principal, status Status) ([]Order, error)
	GetOrder(ctx context.Context, admin identity.Principal, id uuid.UUID) (*Order, error)
	TrackingHistory(ctx context.Context, admin identity.Principal, id uuid.UUID) ([]TrackingEvent, error)

	// Drain waits for background notifications started by Checkout.
	Drain(ctx context.Context) error
}

// Deps wires the order service. Notifier, Publisher, Policy and Now are optional.
type Deps struct {
	Repo       Repository
	Carts      CartStore
	UnitOfWork UnitOfWork
	Notifier   Notifier
	Publisher  EventPublisher
	Policy     TransitionPolicy
	Now        func() time.Time
}

type service struct {
	background sync.WaitGroup

	repo      Repository
	carts     CartStore
	uow       UnitOfWork
	notifier  Notifier
	publisher EventPublisher
	policy    TransitionPolicy
	now       func() time.Time
}

func NewService(deps Deps) Service {
	s := &service{
		repo:      deps.Repo,
		carts:     deps.Carts,
		uow:       deps.UnitOfWork,
		notifier:  deps.Notifier,
		publisher: deps.Publisher,
		policy:    deps.Policy,
		now:       deps.Now,
	}
	if s.notifier == nil {
		s.notifier = silentNotifier{}
	}
	if s.publisher == nil {
		s.publisher = discardPublisher{}
	}
	if s.policy == nil {
		s.policy = AllowAnyTransition
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

func (s *service) Checkout(ctx context.Context, p identity.Principal, info ShippingInfo) (*Order, error) {
	ctx, span := tracer.Start(ctx, "order.Checkout", trace.WithAttributes(attribute.String("user.id", p.UserID)))
	defer span.End()

	info, err := info.normalize()
	if err != nil {
		return nil, err
	}

	var created *Order
	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		lines, err := s.carts.LockWithPrices(ctx, p.UserID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return ErrEmptyCart
		}

		now := s.now()
		o := &Order{
			UserID:          p.UserID,
			CreatedAt:       now,
			UpdatedAt:       now,
			TotalAmount:     cart.Total(lines),
			ShippingAddress: info.ShippingAddress,
			City:            info.City,
			Phone:           info.Phone,
			Comment:         info.Comment,
			Status:          StatusReceived,
			TrackingNumber:  initialTrackingNumber,
			Carrier:         DefaultCarrier,
			AdminNotes:      initialAdminNotes,
			Lines:           make([]Line, 0, len(lines)),
		}

		converted := make([]uuid.UUID, 0, len(lines))
		for _, l := range lines {
			o.Lines = append(o.Lines, Line{
				ProductID:   l.ProductID,
				ProductName: l.ProductName,
				Quantity:    l.Quantity,
				UnitPrice:   l.UnitPrice,
			})
			converted = append(converted, l.ID)
		}

		if err := s.repo.Create(ctx, o); err != nil {
			return err
		}
		if _, err := s.carts.DeleteLines(ctx, p.UserID, converted); err != nil {
			return err
		}

		created = o
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrEmptyCart) {
			log.Info().Str("user_id", p.UserID).Msg("service: checkout refused, cart is empty")
			return nil, ErrEmptyCart
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkout failed")
		log.Error().Err(err).Str("user_id", p.UserID).Msg("service: checkout failed")
		return nil, fmt.Errorf("service: checkout failed: %w: %w", ErrPersistence, err)
	}

	span.SetAttributes(attribute.String("order.id", created.ID.String()))
	log.Info().Stringer("order_id", created.ID).Str("user_id", p.UserID).Str("total", created.TotalAmount.StringFixed(2)).Msg("Service: Order created successfully")

	snapshot := *created
	s.background.Add(1)
	go func(ctx context.Context) {
		defer s.background.Done()
		if !s.notifier.Notify(ctx, OrderConfirmation, &snapshot, Transition{To: StatusReceived}) {
			log.Warn().Stringer("order_id", snapshot.ID).Msg("service: order confirmation email was not sent")
		}
	}(context.WithoutCancel(ctx))

	s.publish(ctx, EventOrderPlaced, newOrderEvent(created, 0))

	return created, nil
}

func (s *service) ListForUser(ctx context.Context, p identity.Principal, status *Status) ([]Order, error) {
	orders, err := s.repo.ListForUser(ctx, p.UserID, status)
	if err != nil {
		log.Error().Err(err).Str("user_id", p.UserID).Msg("service: failed to fetch user orders in repository")
		return nil, fmt.Errorf("service: failed to fetch user orders: %w", err)
	}
	return orders, nil
}

func (s *service) GetForUser(ctx context.Context, p identity.Principal, id uuid.UUID) (*Order, error) {
	o, err := s.repo.GetForUser(ctx, id, p.UserID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Stringer("order_id", id).Str("user_id", p.UserID).Msg("service: order not found for user")
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to fetch order for user")
		return nil, fmt.Errorf("service: failed to fetch order: %w", err)
	}

	if o.TrackingEvents, err = s.repo.TrackingHistory(ctx, id); err != nil {
		return nil, fmt.Errorf("service: failed to fetch tracking history: %w", err)
	}
	return o, nil
}

// UserCancel cancels one of the caller's own orders. Orders owned by someone
// else are reported as not found.
func (s *service) UserCancel(ctx context.Context, p identity.Principal, id uuid.UUID) (Result, error) {
	ctx, span := tracer.Start(ctx, "order.UserCancel", trace.WithAttributes(attribute.String("order.id", id.String())))
	defer span.End()

	var (
		cancelled *Order
		from      Status
	)
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if o.UserID != p.UserID {
			return ErrOrderNotFound
		}
		if o.Status == StatusCancelled {
			return ErrAlreadyCancelled
		}
		if o.Status >= StatusShipped {
			return ErrAlreadyShipped
		}

		from = o.Status
		now := s.now()
		o.Status = StatusCancelled
		o.stampStatus(StatusCancelled, now)
		o.UpdatedAt = now
		if err := s.repo.Update(ctx, o); err != nil {
			return err
		}
		cancelled = o
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrOrderNotFound):
		log.Warn().Stringer("order_id", id).Str("user_id", p.UserID).Msg("service: cancel requested for unknown order")
		return Result{Message: msgOrderNotFound}, ErrOrderNotFound
	case errors.Is(err, ErrAlreadyCancelled):
		return Result{Message: msgAlreadyCancelled}, err
	case errors.Is(err, ErrAlreadyShipped):
		log.Info().Stringer("order_id", id).Msg("service: cancel refused, order already shipped")
		return Result{Message: msgAlreadyShipped}, err
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "cancel failed")
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to cancel order")
		return Result{}, fmt.Errorf("service: failed to cancel order: %w: %w", ErrPersistence, err)
	}

	log.Info().Stringer("order_id", id).Str("user_id", p.UserID).Msg("Service: Order cancelled by customer")
	s.publish(ctx, EventOrderStatusChanged, newOrderEvent(cancelled, from))

	return Result{Success: true, Message: msgCancelled}, nil
}

// AdminSetStatus applies any status the transition policy allows, stamps the
// matching timestamp and appends the automated tracking event in the same
// transaction. Email delivery only changes the returned message.
func (s *service) AdminSetStatus(ctx context.Context, admin identity.Principal, id uuid.UUID, upd StatusUpdate) (Result, error) {
	if !admin.IsAdmin() {
		return Result{}, ErrForbidden
	}
	if !upd.Status.Valid() {
		return Result{}, fmt.Errorf("%w: unknown status %d", ErrValidation, int(upd.Status))
	}

	ctx, span := tracer.Start(ctx, "order.AdminSetStatus", trace.WithAttributes(
		attribute.String("order.id", id.String()),
		attribute.String("order.new_status", upd.Status.String()),
	))
	defer span.End()

	var (
		updated *Order
		from    Status
	)
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.policy(o.Status, upd.Status); err != nil {
			return err
		}

		from = o.Status
		now := s.now()
		o.Status = upd.Status
		o.TrackingNumber = upd.TrackingNumber
		o.AdminNotes = upd.AdminNotes
		o.Carrier = upd.Carrier
		if upd.EstimatedDelivery != nil {
			o.EstimatedDelivery = upd.EstimatedDelivery
		}
		o.stampStatus(upd.Status, now)
		o.UpdatedAt = now

		if err := s.repo.Update(ctx, o); err != nil {
			return err
		}

		event := &TrackingEvent{
			OrderID:     o.ID,
			OccurredAt:  now,
			Location:    automatedLocation,
			Status:      upd.Status.String(),
			Description: upd.Status.TrackingMessage(),
			IsMilestone: true,
		}
		if err := s.repo.AppendTrackingEvent(ctx, event); err != nil {
			return err
		}

		updated = o
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrOrderNotFound):
		log.Warn().Stringer("order_id", id).Stringer("new_status", upd.Status).Msg("service: order not found, cannot update status")
		return Result{Message: msgOrderNotFound}, ErrOrderNotFound
	case errors.Is(err, ErrInvalidStatusTransition):
		log.Warn().Err(err).Stringer("order_id", id).Msg("service: status transition rejected by policy")
		return Result{Message: err.Error()}, err
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "status update failed")
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to update order status")
		return Result{}, fmt.Errorf("service: failed to update order status: %w: %w", ErrPersistence, err)
	}

	log.Info().Stringer("order_id", id).Stringer("old_status", from).Stringer("new_status", upd.Status).Msg("Service: Order status updated")

	customerSent, adminSent := s.notifyStatusChange(context.WithoutCancel(ctx), updated, Transition{From: from, To: upd.Status})
	span.SetAttributes(attribute.Bool("notify.customer_sent", customerSent), attribute.Bool("notify.admin_sent", adminSent))

	s.publish(ctx, EventOrderStatusChanged, newOrderEvent(updated, from))

	if customerSent && adminSent {
		return Result{Success: true, Message: msgStatusNotified}, nil
	}
	log.Warn().Stringer("order_id", id).Bool("customer_sent", customerSent).Bool("admin_sent", adminSent).Msg("service: status notification not delivered")
	return Result{Success: true, Message: msgStatusNotNotified}, nil
}

// notifyStatusChange sends the customer and admin emails concurrently, so the
// caller waits for at most one mail timeout.
func (s *service) notifyStatusChange(ctx context.Context, o *Order, t Transition) (customerSent, adminSent bool) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		customerSent = s.notifier.Notify(ctx, CustomerStatusUpdate, o, t)
	}()
	go func() {
		defer wg.Done()
		adminSent = s.notifier.Notify(ctx, AdminStatusUpdate, o, t)
	}()
	wg.Wait()
	return customerSent, adminSent
}

func (s *service) AddManualTrackingEvent(ctx context.Context, admin identity.Principal, id uuid.UUID, ev ManualTrackingEvent) (Result, error) {
	if !admin.IsAdmin() {
		return Result{}, ErrForbidden
	}
	ev.Location = strings.TrimSpace(ev.Location)
	ev.Status = strings.TrimSpace(ev.Status)
	if ev.Location == "" || ev.Status == "" {
		return Result{}, fmt.Errorf("%w: location and status are required", ErrValidation)
	}

	exists, err := s.repo.Exists(ctx, id)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to check order before tracking event")
		return Result{}, fmt.Errorf("service: failed to add tracking event: %w", err)
	}
	if !exists {
		return Result{Message: msgOrderNotFound}, ErrOrderNotFound
	}

	event := &TrackingEvent{
		OrderID:     id,
		OccurredAt:  s.now(),
		Location:    ev.Location,
		Status:      ev.Status,
		Description: strings.TrimSpace(ev.Description),
		IsMilestone: ev.IsMilestone,
	}
	if err := s.repo.AppendTrackingEvent(ctx, event); err != nil {
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to add tracking event")
		return Result{}, fmt.Errorf("service: failed to add tracking event: %w", err)
	}

	return Result{Success: true, Message: msgTrackingEventAdded}, nil
}

// DeleteOrder removes tracking events, then lines, then the order, in one
// transaction. A missing order yields an unsuccessful Result, not an error.
func (s *service) DeleteOrder(ctx context.Context, admin identity.Principal, id uuid.UUID) (Result, error) {
	if !admin.IsAdmin() {
		return Result{}, ErrForbidden
	}

	ctx, span := tracer.Start(ctx, "order.DeleteOrder", trace.WithAttributes(attribute.String("order.id", id.String())))
	defer span.End()

	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.DeleteTrackingEvents(ctx, id); err != nil {
			return err
		}
		if _, err := s.repo.DeleteLines(ctx, id); err != nil {
			return err
		}
		deleted, err := s.repo.Delete(ctx, id)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrOrderNotFound
		}
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrOrderNotFound):
		log.Warn().Stringer("order_id", id).Msg("service: delete requested for unknown order")
		return Result{Message: msgOrderNotFound}, nil
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to delete order")
		return Result{}, fmt.Errorf("service: failed to delete order: %w: %w", ErrPersistence, err)
	}

	log.Info().Stringer("order_id", id).Str("admin_id", admin.UserID).Msg("Service: Order deleted")
	return Result{Success: true, Message: msgOrderDeleted}, nil
}

func (s *service) ListAll(ctx context.Context, admin identity.Principal, q AdminOrderQuery) ([]Order, error) {
	if !admin.IsAdmin() {
		return nil, ErrForbidden
	}
	orders, err := s.repo.ListAll(ctx, q)
	if err != nil {
		log.Error().Err(err).Str("search", q.Search).Msg("service: failed to list orders")
		return nil, fmt.Errorf("service: failed to list orders: %w", err)
	}
	return orders, nil
}

func (s *service) ListByStatus(ctx context.Context, admin identity.Principal, status Status) ([]Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %d", ErrValidation, int(status))
	}
	return s.ListAll(ctx, admin, AdminOrderQuery{Status: &status})
}

func (s *service) GetOrder(ctx context.Context, admin identity.Principal, id uuid.UUID) (*Order, error) {
	if !admin.IsAdmin() {
		return nil, ErrForbidden
	}
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to fetch order by id in repository")
		return nil, fmt.Errorf("service: failed to fetch order by id: %w", err)
	}

	if o.TrackingEvents, err = s.repo.TrackingHistory(ctx, id); err != nil {
		return nil, fmt.Errorf("service: failed to fetch tracking history: %w", err)
	}
	return o, nil
}

func (s *service) TrackingHistory(ctx context.Context, admin identity.Principal, id uuid.UUID) ([]TrackingEvent, error) {
	if !admin.IsAdmin() {
		return nil, ErrForbidden
	}
	exists, err := s.repo.Exists(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service: failed to fetch tracking history: %w", err)
	}
	if !exists {
		return nil, ErrOrderNotFound
	}

	events, err := s.repo.TrackingHistory(ctx, id)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to fetch tracking history")
		return nil, fmt.Errorf("service: failed to fetch tracking history: %w", err)
	}
	return events, nil
}

func (s *service) publish(ctx context.Context, eventType string, payload any) {
	if err := s.publisher.Publish(context.WithoutCancel(ctx), eventType, payload); err != nil {
		log.Warn().Err(err).Str("event", eventType).Msg("service: failed to publish order event")
	}
}

// OrderEvent is the payload published for order.placed and order.status_changed.
type OrderEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	Number      string    `json:"number"`
	UserID      string    `json:"user_id"`
	Status      Status    `json:"status"`
	OldStatus   *Status   `json:"old_status,omitempty"`
	TotalAmount string    `json:"total_amount"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func newOrderEvent(o *Order, from Status) OrderEvent {
	e := OrderEvent{
		OrderID:     o.ID,
		Number:      o.DisplayNumber(),
		UserID:      o.UserID,
		Status:      o.Status,
		TotalAmount: o.TotalAmount.StringFixed(2),
		OccurredAt:  o.UpdatedAt,
	}
	if from.Valid() {
		e.OldStatus = &from
	}
	return e
}

type silentNotifier struct{}

func (silentNotifier) Notify(context.Context, NotificationKind, *Order, Transition) bool { return false }

type discardPublisher struct{}

func (discardPublisher) Publish(context.Context, string, any) error { return nil }

func (s *service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("service: notifications still in flight: %w", ctx.Err())
	}
}
