package order

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vasiliy-maslov/storefront/internal/db"
)

type Repository interface {
	// Create inserts the order and its lines, filling in generated IDs and Number.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	// GetForUpdate loads the order row without lines and locks it until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Order, error)
	GetForUser(ctx context.Context, id uuid.UUID, userID string) (*Order, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Update(ctx context.Context, o *Order) error
	AppendTrackingEvent(ctx context.Context, e *TrackingEvent) error
	TrackingHistory(ctx context.Context, orderID uuid.UUID) ([]TrackingEvent, error)
	ListForUser(ctx context.Context, userID string, status *Status) ([]Order, error)
	ListAll(ctx context.Context, q AdminOrderQuery) ([]Order, error)
	DeleteTrackingEvents(ctx context.Context, orderID uuid.UUID) (int64, error)
	DeleteLines(ctx context.Context, orderID uuid.UUID) (int64, error)
	Delete(ctx context.Context, orderID uuid.UUID) (bool, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

const orderColumns = `
	o.id, o.number, o.user_id, o.created_at, o.updated_at, o.total_amount,
	o.shipping_address, o.city, o.phone, o.comment, o.status,
	o.tracking_number, o.carrier, o.admin_notes, o.estimated_delivery,
	o.verified_at, o.processing_at, o.shipped_at, o.completed_at, o.cancelled_at
`

func scanOrder(row pgx.Row, extra ...any) (*Order, error) {
	var (
		o      Order
		total  pgtype.Numeric
		status int16
	)
	dest := []any{
		&o.ID, &o.Number, &o.UserID, &o.CreatedAt, &o.UpdatedAt, &total,
		&o.ShippingAddress, &o.City, &o.Phone, &o.Comment, &status,
		&o.TrackingNumber, &o.Carrier, &o.AdminNotes, &o.EstimatedDelivery,
		&o.VerifiedAt, &o.ProcessingAt, &o.ShippedAt, &o.CompletedAt, &o.CancelledAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	o.TotalAmount = db.Decimal(total)
	o.Status = Status(status)
	o.Lines = make([]Line, 0)
	return &o, nil
}

func (r *postgresRepository) Create(ctx context.Context, o *Order) error {
	orderID, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("repository: failed to generate order ID: %w", err)
	}
	o.ID = orderID

	conn := db.Conn(ctx, r.pool)

	queryOrder := `
		INSERT INTO orders (
			id, user_id, created_at, updated_at, total_amount,
			shipping_address, city, phone, comment, status,
			tracking_number, carrier, admin_notes, estimated_delivery
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING number
	`
	err = conn.QueryRow(ctx, queryOrder,
		o.ID,
		o.UserID,
		o.CreatedAt,
		o.UpdatedAt,
		db.Numeric(o.TotalAmount),
		o.ShippingAddress,
		o.City,
		o.Phone,
		o.Comment,
		int16(o.Status),
		o.TrackingNumber,
		o.Carrier,
		o.AdminNotes,
		o.EstimatedDelivery,
	).Scan(&o.Number)
	if err != nil {
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}

	queryLine := `
		INSERT INTO order_lines (id, order_id, product_id, product_name, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for i := range o.Lines {
		line := &o.Lines[i]

		lineID, genErr := uuid.NewV4()
		if genErr != nil {
			return fmt.Errorf("repository: failed to generate order line ID: %w", genErr)
		}
		line.ID = lineID
		line.OrderID = o.ID

		_, err = conn.Exec(ctx, queryLine,
			line.ID,
			line.OrderID,
			line.ProductID,
			line.ProductName,
			line.Quantity,
			db.Numeric(line.UnitPrice),
		)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order line for order %s: %w", o.ID, err)
		}
	}

	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id = $1`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", id, err)
	}

	if err := r.attachLines(ctx, []*Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *postgresRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*Order, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id = $1 FOR UPDATE`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to lock order %s: %w", id, err)
	}
	return o, nil
}

func (r *postgresRepository) GetForUser(ctx context.Context, id uuid.UUID, userID string) (*Order, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders o WHERE o.id = $1 AND o.user_id = $2`, id, userID)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order %s for user: %w", id, err)
	}

	if err := r.attachLines(ctx, []*Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *postgresRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("repository: failed to check order %s: %w", id, err)
	}
	return exists, nil
}

func (r *postgresRepository) Update(ctx context.Context, o *Order) error {
	query := `
		UPDATE orders
		SET status = $1, tracking_number = $2, carrier = $3, admin_notes = $4,
		    estimated_delivery = $5, verified_at = $6, processing_at = $7,
		    shipped_at = $8, completed_at = $9, cancelled_at = $10, updated_at = $11
		WHERE id = $12
	`
	cmdTag, err := db.Conn(ctx, r.pool).Exec(ctx, query,
		int16(o.Status),
		o.TrackingNumber,
		o.Carrier,
		o.AdminNotes,
		o.EstimatedDelivery,
		o.VerifiedAt,
		o.ProcessingAt,
		o.ShippedAt,
		o.CompletedAt,
		o.CancelledAt,
		o.UpdatedAt,
		o.ID,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to update order %s: %w", o.ID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *postgresRepository) AppendTrackingEvent(ctx context.Context, e *TrackingEvent) error {
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("repository: failed to generate tracking event ID: %w", err)
	}
	e.ID = id

	_, err = db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO tracking_events (id, order_id, occurred_at, location, status, description, is_milestone)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.OrderID, e.OccurredAt, e.Location, e.Status, e.Description, e.IsMilestone)
	if err != nil {
		return fmt.Errorf("repository: failed to insert tracking event for order %s: %w", e.OrderID, err)
	}
	return nil
}

func (r *postgresRepository) TrackingHistory(ctx context.Context, orderID uuid.UUID) ([]TrackingEvent, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, order_id, occurred_at, location, status, description, is_milestone
		FROM tracking_events
		WHERE order_id = $1
		ORDER BY occurred_at DESC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query tracking events for order %s: %w", orderID, err)
	}
	defer rows.Close()

	events := make([]TrackingEvent, 0)
	for rows.Next() {
		var e TrackingEvent
		if err := rows.Scan(&e.ID, &e.OrderID, &e.OccurredAt, &e.Location, &e.Status, &e.Description, &e.IsMilestone); err != nil {
			return nil, fmt.Errorf("repository: failed to scan tracking event for order %s: %w", orderID, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating tracking events for order %s: %w", orderID, err)
	}
	return events, nil
}

func (r *postgresRepository) ListForUser(ctx context.Context, userID string, status *Status) ([]Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders o
		WHERE o.user_id = $1 AND ($2::smallint = 0 OR o.status = $2)
		ORDER BY o.created_at DESC
	`
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, userID, statusFilter(status))
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders for user id %s: %w", userID, err)
	}
	defer rows.Close()

	orders := make([]*Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed scan order for user id %s: %w", userID, err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating orders for user id %s: %w", userID, err)
	}

	if err := r.attachLines(ctx, orders); err != nil {
		return nil, err
	}
	return deref(orders), nil
}

var (
	orderNumberPattern = regexp.MustCompile(`(?i)^#?(?:ORD)?0*(\d+)$`)
	likeEscaper        = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
)

// containsPattern turns free text into an ILIKE substring pattern with the
// wildcards escaped.
func containsPattern(search string) string {
	return "%" + likeEscaper.Replace(search) + "%"
}

func (r *postgresRepository) ListAll(ctx context.Context, q AdminOrderQuery) ([]Order, error) {
	search := strings.TrimSpace(q.Search)

	var number int64
	if m := orderNumberPattern.FindStringSubmatch(search); m != nil {
		number, _ = strconv.ParseInt(m[1], 10, 64)
	}

	query := `
		SELECT ` + orderColumns + `, COALESCE(u.email, ''), COALESCE(u.user_name, '')
		FROM orders o
		LEFT JOIN users u ON u.id = o.user_id
		WHERE ($1::smallint = 0 OR o.status = $1)
		  AND (
			$2::text = ''
			OR o.number = $3
			OR o.id::text ILIKE $4
			OR ('#ORD' || CASE WHEN o.number < 1000000 THEN lpad(o.number::text, 6, '0') ELSE o.number::text END) ILIKE $4
			OR u.email ILIKE $4
			OR u.user_name ILIKE $4
			OR o.shipping_address ILIKE $4
			OR o.phone ILIKE $4
		  )
		ORDER BY o.created_at DESC
	`
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, statusFilter(q.Status), search, number, containsPattern(search))
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*Order, 0)
	for rows.Next() {
		var email, name string
		o, err := scanOrder(rows, &email, &name)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		o.CustomerEmail = email
		o.CustomerName = name
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating orders: %w", err)
	}

	if err := r.attachLines(ctx, orders); err != nil {
		return nil, err
	}
	return deref(orders), nil
}

func (r *postgresRepository) DeleteTrackingEvents(ctx context.Context, orderID uuid.UUID) (int64, error) {
	cmdTag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM tracking_events WHERE order_id = $1`, orderID)
	if err != nil {
		return 0, fmt.Errorf("repository: failed to delete tracking events for order %s: %w", orderID, err)
	}
	return cmdTag.RowsAffected(), nil
}

func (r *postgresRepository) DeleteLines(ctx context.Context, orderID uuid.UUID) (int64, error) {
	cmdTag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM order_lines WHERE order_id = $1`, orderID)
	if err != nil {
		return 0, fmt.Errorf("repository: failed to delete order lines for order %s: %w", orderID, err)
	}
	return cmdTag.RowsAffected(), nil
}

func (r *postgresRepository) Delete(ctx context.Context, orderID uuid.UUID) (bool, error) {
	cmdTag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return false, fmt.Errorf("repository: failed to delete order %s: %w", orderID, err)
	}
	return cmdTag.RowsAffected() > 0, nil
}

// attachLines loads the lines of all given orders with one query.
func (r *postgresRepository) attachLines(ctx context.Context, orders []*Order) error {
	if len(orders) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*Order, len(orders))
	ids := make([]uuid.UUID, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, unit_price
		FROM order_lines
		WHERE order_id = ANY($1)
		ORDER BY product_id
	`, ids)
	if err != nil {
		return fmt.Errorf("repository: failed to query order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			line  Line
			price pgtype.Numeric
		)
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ProductID, &line.ProductName, &line.Quantity, &price); err != nil {
			return fmt.Errorf("repository: failed to scan order line: %w", err)
		}
		line.UnitPrice = db.Decimal(price)
		if o, ok := byID[line.OrderID]; ok {
			o.Lines = append(o.Lines, line)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("repository: error iterating order lines: %w", err)
	}
	return nil
}

func statusFilter(status *Status) int16 {
	if status == nil {
		return 0
	}
	return int16(*status)
}

func deref(orders []*Order) []Order {
	result := make([]Order, 0, len(orders))
	for _, o := range orders {
		result = append(result, *o)
	}
	return result
}
