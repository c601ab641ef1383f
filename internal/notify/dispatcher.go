package notify

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/storefront/internal/identity"
	"github.com/vasiliy-maslov/storefront/internal/order"
)

//go:embed templates/*.html
var templateFS embed.FS

var errNoRecipient = errors.New("notify: no recipient address")

// Mailer hands a rendered HTML message to an outbound transport.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// UserLookup resolves the customer's address for an order.
type UserLookup interface {
	LookupUser(ctx context.Context, userID string) (*identity.User, error)
}

var statusMeaning = map[order.Status]string{
	order.StatusVerified:   "Your order has been verified and is now being processed. We'll prepare your items for shipment.",
	order.StatusProcessing: "Your order is currently being processed. Our team is preparing your items for shipment.",
	order.StatusShipped:    "Great news! Your order has been shipped. You should receive it within the estimated delivery time.",
	order.StatusCompleted:  "Your order has been completed! Thank you for shopping with us. We hope you enjoy your purchase!",
	order.StatusCancelled:  "Your order has been cancelled. If this was unexpected or you have any questions, please contact our support team.",
}

type Dispatcher struct {
	mailer     Mailer
	users      UserLookup
	shopName   string
	adminEmail string
	timeout    time.Duration
	templates  *template.Template
}

type Options struct {
	ShopName   string
	AdminEmail string
	Timeout    time.Duration
}

func NewDispatcher(mailer Mailer, users UserLookup, opts Options) (*Dispatcher, error) {
	tmpl, err := template.New("notify").
		Funcs(template.FuncMap{"money": func(d decimal.Decimal) string { return d.StringFixed(2) }}).
		ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("notify: failed to parse templates: %w", err)
	}

	if opts.ShopName == "" {
		opts.ShopName = "FurniCraft"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	return &Dispatcher{
		mailer:     mailer,
		users:      users,
		shopName:   opts.ShopName,
		adminEmail: opts.AdminEmail,
		timeout:    opts.Timeout,
		templates:  tmpl,
	}, nil
}

type emailData struct {
	ShopName      string
	Heading       string
	CustomerName  string
	CustomerEmail string
	Order         *order.Order
	From          order.Status
	To            order.Status
	ShowTracking  bool
	Meaning       string
}

// Notify renders and sends one message. Every failure is logged and reported
// as false.
func (d *Dispatcher) Notify(ctx context.Context, kind order.NotificationKind, o *order.Order, t order.Transition) bool {
	logger := log.With().Stringer("order_id", o.ID).Stringer("kind", kind).Logger()

	// the recipient lookup counts against the same budget as the send
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	to, subject, body, err := d.compose(sendCtx, kind, o, t)
	if err != nil {
		logger.Warn().Err(err).Msg("Notification not composed")
		return false
	}

	if err := d.mailer.Send(sendCtx, to, subject, body); err != nil {
		logger.Error().Err(err).Str("to", to).Msg("Failed to send notification email")
		return false
	}

	logger.Info().Str("to", to).Str("subject", subject).Msg("Notification email sent")
	return true
}

func (d *Dispatcher) compose(ctx context.Context, kind order.NotificationKind, o *order.Order, t order.Transition) (to, subject, body string, err error) {
	data := emailData{
		ShopName:     d.shopName,
		CustomerName: "Valued Customer",
		Order:        o,
		From:         t.From,
		To:           t.To,
	}

	customer, lookupErr := d.users.LookupUser(ctx, o.UserID)
	if lookupErr == nil {
		data.CustomerEmail = customer.Email
		if customer.UserName != "" {
			data.CustomerName = customer.UserName
		}
	}

	var name string
	switch kind {
	case order.OrderConfirmation:
		if lookupErr != nil {
			return "", "", "", fmt.Errorf("notify: customer lookup: %w", lookupErr)
		}
		to = customer.Email
		subject = "Order Confirmation - " + o.DisplayNumber()
		data.Heading = "Order Confirmation"
		name = "order_confirmation.html"
	case order.CustomerStatusUpdate:
		if lookupErr != nil {
			return "", "", "", fmt.Errorf("notify: customer lookup: %w", lookupErr)
		}
		to = customer.Email
		subject = "Order Status Update - Order " + o.DisplayNumber()
		data.Heading = "Order Status Update"
		data.ShowTracking = t.To == order.StatusShipped && o.TrackingNumber != ""
		data.Meaning = statusMeaning[t.To]
		name = "status_update.html"
	case order.AdminStatusUpdate:
		to = d.adminEmail
		subject = fmt.Sprintf("[Admin] Order %s: %s → %s", o.DisplayNumber(), t.From, t.To)
		data.Heading = "Order Status Changed"
		name = "admin_status_update.html"
	default:
		return "", "", "", fmt.Errorf("notify: unknown notification kind %d", kind)
	}

	if to == "" {
		return "", "", "", errNoRecipient
	}

	var buf bytes.Buffer
	if err := d.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", "", "", fmt.Errorf("notify: failed to render %s: %w", name, err)
	}
	return to, subject, buf.String(), nil
}
