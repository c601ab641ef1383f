package order

import (
	"fmt"
	"strconv"
	"strings"
)

// Status codes are persisted as-is and must keep their values.
type Status int

const (
	StatusReceived   Status = 1
	StatusVerified   Status = 2
	StatusProcessing Status = 3
	StatusShipped    Status = 4
	StatusCompleted  Status = 5
	StatusCancelled  Status = 6
)

var statusLabels = map[Status]string{
	StatusReceived:   "Received",
	StatusVerified:   "Verified",
	StatusProcessing: "Processing",
	StatusShipped:    "Shipped",
	StatusCompleted:  "Completed",
	StatusCancelled:  "Cancelled",
}

// trackingMessages describe each status in automated tracking events.
var trackingMessages = map[Status]string{
	StatusReceived:   "Order received and being processed",
	StatusVerified:   "Order verified and payment confirmed",
	StatusProcessing: "Order is being prepared for shipment",
	StatusShipped:    "Order has been shipped",
	StatusCompleted:  "Order delivered successfully",
	StatusCancelled:  "Order has been cancelled",
}

// AllStatuses lists statuses in lifecycle order.
var AllStatuses = []Status{
	StatusReceived,
	StatusVerified,
	StatusProcessing,
	StatusShipped,
	StatusCompleted,
	StatusCancelled,
}

func (s Status) String() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return "Status(" + strconv.Itoa(int(s)) + ")"
}

func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// TrackingMessage is the description used for the automated tracking event.
func (s Status) TrackingMessage() string {
	return trackingMessages[s]
}

// ParseStatus accepts a label ("Shipped", any case) or a numeric code ("4").
func ParseStatus(raw string) (Status, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil {
		s := Status(n)
		if !s.Valid() {
			return 0, fmt.Errorf("%w: unknown status code %d", ErrValidation, n)
		}
		return s, nil
	}
	for s, label := range statusLabels {
		if strings.EqualFold(label, raw) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown status %q", ErrValidation, raw)
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("order: cannot marshal invalid status %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
