package cart

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

// Line is one product entry in a user's cart, joined with the product's current price.
type Line struct {
	ID          uuid.UUID       `json:"id"`
	UserID      string          `json:"-"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Snapshot struct {
	Lines   []Line          `json:"lines"`
	Total   decimal.Decimal `json:"total"`
	IsEmpty bool            `json:"is_empty"`
}

// Total sums quantity times unit price over lines.
func Total(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// UpdateSummary reports how a bulk quantity update was applied.
// Lines that do not exist or belong to someone else are counted as Ignored.
type UpdateSummary struct {
	Updated int         `json:"updated"`
	Removed int         `json:"removed"`
	Ignored int         `json:"ignored"`
	Failed  []uuid.UUID `json:"failed,omitempty"`
}
