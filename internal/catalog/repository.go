package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vasiliy-maslov/storefront/internal/db"
)

var ErrProductNotFound = errors.New("product not found")

type Repository interface {
	CountProducts(ctx context.Context, q ProductQuery) (int, error)
	ListProducts(ctx context.Context, q ProductQuery, limit, offset int) ([]Product, error)
	GetProduct(ctx context.Context, id int64) (*Product, error)
	ListCategories(ctx context.Context) ([]Category, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

const productFilter = `
	WHERE ($1::bigint = 0 OR category_id = $1)
	  AND ($2::text = '' OR name = $2)
`

func (r *postgresRepository) CountProducts(ctx context.Context, q ProductQuery) (int, error) {
	var count int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT count(*) FROM products`+productFilter, q.CategoryID, q.Name).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("repository: failed to count products: %w", err)
	}
	return count, nil
}

func (r *postgresRepository) ListProducts(ctx context.Context, q ProductQuery, limit, offset int) ([]Product, error) {
	query := `
		SELECT id, category_id, name, description, image_url, price
		FROM products` + productFilter + `
		ORDER BY id
		LIMIT $3 OFFSET $4
	`
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, q.CategoryID, q.Name, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating products: %w", err)
	}
	return products, nil
}

func (r *postgresRepository) GetProduct(ctx context.Context, id int64) (*Product, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, category_id, name, description, image_url, price
		FROM products
		WHERE id = $1
	`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("repository: failed to select product %d: %w", id, err)
	}
	return &p, nil
}

func (r *postgresRepository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := make([]Category, 0)
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("repository: failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating categories: %w", err)
	}
	return categories, nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p     Product
		price pgtype.Numeric
	)
	if err := row.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Description, &p.ImageURL, &price); err != nil {
		return Product{}, err
	}
	p.Price = db.Decimal(price)
	return p, nil
}
