package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vasiliy-maslov/storefront/internal/catalog"
	"github.com/vasiliy-maslov/storefront/internal/db"
)

var ErrLineNotFound = errors.New("cart line not found")

type Repository interface {
	// Upsert adds qty to the (userID, productID) line, creating it when absent.
	Upsert(ctx context.Context, userID string, productID int64, qty int) error
	CountItems(ctx context.Context, userID string) (int, error)
	ListWithPrices(ctx context.Context, userID string) ([]Line, error)
	// LockWithPrices is ListWithPrices with the user's cart rows locked until the
	// surrounding transaction ends.
	LockWithPrices(ctx context.Context, userID string) ([]Line, error)
	SetQuantity(ctx context.Context, userID string, lineID uuid.UUID, qty int) error
	DeleteLine(ctx context.Context, userID string, lineID uuid.UUID) (bool, error)
	DeleteLines(ctx context.Context, userID string, lineIDs []uuid.UUID) (int64, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) Upsert(ctx context.Context, userID string, productID int64, qty int) error {
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("repository: failed to generate cart line ID: %w", err)
	}

	query := `
		INSERT INTO cart_lines (id, user_id, product_id, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (user_id, product_id) DO UPDATE
		SET quantity = cart_lines.quantity + EXCLUDED.quantity,
		    updated_at = EXCLUDED.updated_at
		WHERE cart_lines.quantity + EXCLUDED.quantity <= $6
	`
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, query, id, userID, productID, qty, time.Now().UTC(), MaxLineQuantity)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.ForeignKeyViolation:
				return catalog.ErrProductNotFound
			case pgerrcode.NumericValueOutOfRange:
				return ErrQuantityTooLarge
			}
		}
		return fmt.Errorf("repository: failed to upsert cart line for product %d: %w", productID, err)
	}
	// the conflict branch skips the update when the sum would pass the cap
	if tag.RowsAffected() == 0 {
		return ErrQuantityTooLarge
	}
	return nil
}

func (r *postgresRepository) CountItems(ctx context.Context, userID string) (int, error) {
	var count int
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM cart_lines WHERE user_id = $1`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("repository: failed to count cart items: %w", err)
	}
	return count, nil
}

const linesWithPrices = `
	SELECT c.id, c.user_id, c.product_id, p.name, p.price, c.quantity, c.created_at, c.updated_at
	FROM cart_lines c
	JOIN products p ON p.id = c.product_id
	WHERE c.user_id = $1
	ORDER BY c.created_at, c.id
`

func (r *postgresRepository) ListWithPrices(ctx context.Context, userID string) ([]Line, error) {
	return r.queryLines(ctx, linesWithPrices, userID)
}

func (r *postgresRepository) LockWithPrices(ctx context.Context, userID string) ([]Line, error) {
	return r.queryLines(ctx, linesWithPrices+` FOR UPDATE OF c`, userID)
}

func (r *postgresRepository) queryLines(ctx context.Context, query, userID string) ([]Line, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query cart lines: %w", err)
	}
	defer rows.Close()

	lines := make([]Line, 0)
	for rows.Next() {
		var (
			l     Line
			price pgtype.Numeric
		)
		if err := rows.Scan(&l.ID, &l.UserID, &l.ProductID, &l.ProductName, &price, &l.Quantity, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan cart line: %w", err)
		}
		l.UnitPrice = db.Decimal(price)
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating cart lines: %w", err)
	}
	return lines, nil
}

func (r *postgresRepository) SetQuantity(ctx context.Context, userID string, lineID uuid.UUID, qty int) error {
	cmdTag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE cart_lines
		SET quantity = $1, updated_at = $2
		WHERE id = $3 AND user_id = $4
	`, qty, time.Now().UTC(), lineID, userID)
	if err != nil {
		return fmt.Errorf("repository: failed to update cart line %s: %w", lineID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (r *postgresRepository) DeleteLine(ctx context.Context, userID string, lineID uuid.UUID) (bool, error) {
	cmdTag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`DELETE FROM cart_lines WHERE id = $1 AND user_id = $2`, lineID, userID)
	if err != nil {
		return false, fmt.Errorf("repository: failed to delete cart line %s: %w", lineID, err)
	}
	return cmdTag.RowsAffected() > 0, nil
}

func (r *postgresRepository) DeleteLines(ctx context.Context, userID string, lineIDs []uuid.UUID) (int64, error) {
	if len(lineIDs) == 0 {
		return 0, nil
	}
	cmdTag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`DELETE FROM cart_lines WHERE user_id = $1 AND id = ANY($2)`, userID, lineIDs)
	if err != nil {
		return 0, fmt.Errorf("repository: failed to clear cart lines: %w", err)
	}
	return cmdTag.RowsAffected(), nil
}
