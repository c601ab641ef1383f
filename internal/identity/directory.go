package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrUserNotFound = errors.New("user not found")

// User is the read-only view of an account owned by the identity provider.
type User struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	UserName string   `json:"user_name"`
	Roles    []string `json:"roles"`
}

type Directory interface {
	LookupUser(ctx context.Context, userID string) (*User, error)
}

type postgresDirectory struct {
	pool *pgxpool.Pool
}

func NewDirectory(pool *pgxpool.Pool) Directory {
	return &postgresDirectory{pool: pool}
}

func (d *postgresDirectory) LookupUser(ctx context.Context, userID string) (*User, error) {
	var u User
	err := d.pool.QueryRow(ctx, `
		SELECT id, email, user_name, roles
		FROM users
		WHERE id = $1
	`, userID).Scan(&u.ID, &u.Email, &u.UserName, &u.Roles)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("repository: failed to select user %s: %w", userID, err)
	}
	return &u, nil
}
