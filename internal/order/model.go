package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

const (
	DefaultCarrier        = "Standard Shipping"
	initialTrackingNumber = "N/A"
	initialAdminNotes     = "Order created"
	automatedLocation     = "Warehouse"
)

type Line struct {
	ID          uuid.UUID       `json:"id"`
	OrderID     uuid.UUID       `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type TrackingEvent struct {
	ID          uuid.UUID `json:"id"`
	OrderID     uuid.UUID `json:"order_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Location    string    `json:"location"`
	Status      string    `json:"status"`
	Description string    `json:"description"`
	IsMilestone bool      `json:"is_milestone"`
}

// Order is a priced snapshot of a cart. TotalAmount is fixed at checkout and
// never recomputed from Lines.
type Order struct {
	ID                uuid.UUID       `json:"id"`
	Number            int64           `json:"number"`
	UserID            string          `json:"user_id"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	ShippingAddress   string          `json:"shipping_address"`
	City              string          `json:"city"`
	Phone             string          `json:"phone"`
	Comment           string          `json:"comment,omitempty"`
	Status            Status          `json:"status"`
	TrackingNumber    string          `json:"tracking_number"`
	Carrier           string          `json:"carrier"`
	AdminNotes        string          `json:"admin_notes,omitempty"`
	EstimatedDelivery *time.Time      `json:"estimated_delivery,omitempty"`
	VerifiedAt        *time.Time      `json:"verified_at,omitempty"`
	ProcessingAt      *time.Time      `json:"processing_at,omitempty"`
	ShippedAt         *time.Time      `json:"shipped_at,omitempty"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	CancelledAt       *time.Time      `json:"cancelled_at,omitempty"`

	CustomerEmail string `json:"customer_email,omitempty"`
	CustomerName  string `json:"customer_name,omitempty"`

	Lines          []Line          `json:"lines"`
	TrackingEvents []TrackingEvent `json:"tracking_events,omitempty"`
}

// DisplayNumber renders the human order number, e.g. #ORD000042.
func (o *Order) DisplayNumber() string {
	return FormatNumber(o.Number)
}

func FormatNumber(n int64) string {
	return fmt.Sprintf("#ORD%06d", n)
}

// stampStatus sets the timestamp belonging to status, replacing any earlier value.
// Received has no timestamp of its own.
func (o *Order) stampStatus(status Status, now time.Time) {
	t := now
	switch status {
	case StatusVerified:
		o.VerifiedAt = &t
	case StatusProcessing:
		o.ProcessingAt = &t
	case StatusShipped:
		o.ShippedAt = &t
	case StatusCompleted:
		o.CompletedAt = &t
	case StatusCancelled:
		o.CancelledAt = &t
	}
}

// StatusTime returns the timestamp recorded for status, or nil.
func (o *Order) StatusTime(status Status) *time.Time {
	switch status {
	case StatusReceived:
		return &o.CreatedAt
	case StatusVerified:
		return o.VerifiedAt
	case StatusProcessing:
		return o.ProcessingAt
	case StatusShipped:
		return o.ShippedAt
	case StatusCompleted:
		return o.CompletedAt
	case StatusCancelled:
		return o.CancelledAt
	}
	return nil
}

type ShippingInfo struct {
	ShippingAddress string
	City            string
	Phone           string
	Comment         string
}

func (s ShippingInfo) normalize() (ShippingInfo, error) {
	s.ShippingAddress = strings.TrimSpace(s.ShippingAddress)
	s.City = strings.TrimSpace(s.City)
	s.Phone = strings.TrimSpace(s.Phone)
	s.Comment = strings.TrimSpace(s.Comment)

	var missing []string
	if s.ShippingAddress == "" {
		missing = append(missing, "shipping address")
	}
	if s.City == "" {
		missing = append(missing, "city")
	}
	if s.Phone == "" {
		missing = append(missing, "phone")
	}
	if len(missing) > 0 {
		return s, fmt.Errorf("%w: %s required", ErrValidation, strings.Join(missing, ", "))
	}
	return s, nil
}

// StatusUpdate is an administrator's status change. TrackingNumber, AdminNotes
// and Carrier replace the stored values; omitted ones are stored as "".
type StatusUpdate struct {
	Status            Status
	TrackingNumber    string
	AdminNotes        string
	Carrier           string
	EstimatedDelivery *time.Time
}

type ManualTrackingEvent struct {
	Location    string
	Status      string
	Description string
	IsMilestone bool
}

// Result is the success/failure payload shown to the caller.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// AdminOrderQuery filters the back-office listing. Search matches the order
// number (exact or substring of #ORD000042) or id, the customer's name or
// email, the shipping address and phone. LIKE wildcards in Search are literal.
type AdminOrderQuery struct {
	Status *Status
	Search string
}

// Transition is the context handed to the notifier for status emails.
type Transition struct {
	From Status
	To   Status
}
