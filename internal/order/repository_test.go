package order_test

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/storefront/internal/cart"
	"github.com/vasiliy-maslov/storefront/internal/catalog"
	"github.com/vasiliy-maslov/storefront/internal/db"
	"github.com/vasiliy-maslov/storefront/internal/order"
)

// testDB is nil unless TEST_DATABASE_URL points at a disposable Postgres.
var testDB *pgxpool.Pool

func TestMain(m *testing.M) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn != "" {
		migrateURL := "pgx5://" + strings.TrimPrefix(strings.TrimPrefix(dsn, "postgres://"), "postgresql://")
		if err := db.MigrateURL("file://../../migrations", migrateURL); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate test database")
		}

		var err error
		testDB, err = pgxpool.New(context.Background(), dsn)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to test database")
		}
	}

	exitCode := m.Run()

	if testDB != nil {
		testDB.Close()
	}
	os.Exit(exitCode)
}

func setupDB(t *testing.T) (order.Repository, cart.Repository, *db.TxManager) {
	t.Helper()
	if testDB == nil {
		t.Skip("TEST_DATABASE_URL not set")
	}

	truncate := func() {
		_, err := testDB.Exec(context.Background(),
			"TRUNCATE TABLE tracking_events, order_lines, orders, cart_lines, products, categories, users RESTART IDENTITY CASCADE")
		require.NoError(t, err, "Failed to truncate tables")
	}
	truncate()
	t.Cleanup(truncate)

	_, err := testDB.Exec(context.Background(), `
		INSERT INTO users (id, email, user_name, roles) VALUES ('user-1', 'arta@example.com', 'arta', '{}');
		INSERT INTO categories (id, name) VALUES (1, 'Tables');
		INSERT INTO products (id, category_id, name, price) VALUES (7, 1, 'Walnut side table', 10.00), (8, 1, 'Oak desk', 249.50);
	`)
	require.NoError(t, err)

	return order.NewRepository(testDB), cart.NewRepository(testDB), db.NewTxManager(testDB)
}

func TestPostgres_CheckoutLifecycle(t *testing.T) {
	orders, carts, tx := setupDB(t)
	ctx := context.Background()

	require.NoError(t, carts.Upsert(ctx, customer.UserID, 7, 1))
	require.NoError(t, carts.Upsert(ctx, customer.UserID, 7, 1))
	count, err := carts.CountItems(ctx, customer.UserID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	svc := order.NewService(order.Deps{Repo: orders, Carts: carts, UnitOfWork: tx})

	created, err := svc.Checkout(ctx, customer, order.ShippingInfo{ShippingAddress: "Rr X", City: "Prishtinë", Phone: "044123456"})
	require.NoError(t, err)
	assert.Equal(t, "20.00", created.TotalAmount.StringFixed(2))
	assert.Equal(t, "#ORD000001", created.DisplayNumber())

	remaining, err := carts.ListWithPrices(ctx, customer.UserID)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	// catalog price changes do not touch the stored order
	_, err = testDB.Exec(ctx, `UPDATE products SET price = 99.00 WHERE id = 7`)
	require.NoError(t, err)

	stored, err := orders.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, stored.Lines, 1)
	assert.Equal(t, 2, stored.Lines[0].Quantity)
	assert.True(t, decimal.RequireFromString("10.00").Equal(stored.Lines[0].UnitPrice))
	assert.True(t, decimal.RequireFromString("20.00").Equal(stored.TotalAmount))
	assert.Equal(t, order.StatusReceived, stored.Status)
	assert.Equal(t, "N/A", stored.TrackingNumber)

	res, err := svc.AdminSetStatus(ctx, admin, created.ID, order.StatusUpdate{Status: order.StatusShipped, TrackingNumber: "TRK1"})
	require.NoError(t, err)
	assert.True(t, res.Success)

	shipped, err := orders.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, shipped.Status)
	assert.Equal(t, "TRK1", shipped.TrackingNumber)
	require.NotNil(t, shipped.ShippedAt)
	assert.False(t, shipped.ShippedAt.Before(shipped.CreatedAt))

	history, err := orders.TrackingHistory(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Shipped", history[0].Status)
	assert.True(t, history[0].IsMilestone)

	found, err := orders.ListAll(ctx, order.AdminOrderQuery{Search: "#ORD000001"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "arta@example.com", found[0].CustomerEmail)

	byEmail, err := orders.ListAll(ctx, order.AdminOrderQuery{Search: "ARTA@"})
	require.NoError(t, err)
	assert.Len(t, byEmail, 1)

	_, err = svc.UserCancel(ctx, customer, created.ID)
	assert.ErrorIs(t, err, order.ErrAlreadyShipped)

	del, err := svc.DeleteOrder(ctx, admin, created.ID)
	require.NoError(t, err)
	assert.True(t, del.Success)

	var orphans int
	require.NoError(t, testDB.QueryRow(ctx,
		`SELECT (SELECT count(*) FROM order_lines WHERE order_id = $1) + (SELECT count(*) FROM tracking_events WHERE order_id = $1)`,
		created.ID).Scan(&orphans))
	assert.Zero(t, orphans)

	again, err := svc.DeleteOrder(ctx, admin, created.ID)
	require.NoError(t, err)
	assert.False(t, again.Success)
}

func TestPostgres_CheckoutEmptyCartCreatesNothing(t *testing.T) {
	orders, carts, tx := setupDB(t)
	ctx := context.Background()
	svc := order.NewService(order.Deps{Repo: orders, Carts: carts, UnitOfWork: tx})

	_, err := svc.Checkout(ctx, customer, order.ShippingInfo{ShippingAddress: "Rr X", City: "Prishtinë", Phone: "044"})
	assert.ErrorIs(t, err, order.ErrEmptyCart)

	list, err := orders.ListForUser(ctx, customer.UserID, nil)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPostgres_CartUpsertUnknownProduct(t *testing.T) {
	_, carts, _ := setupDB(t)

	err := carts.Upsert(context.Background(), customer.UserID, 404, 1)
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestPostgres_CartUpsertConcurrentSameProduct(t *testing.T) {
	_, carts, _ := setupDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(qty int) {
			defer wg.Done()
			assert.NoError(t, carts.Upsert(ctx, customer.UserID, 7, qty))
		}(i)
	}
	wg.Wait()

	lines, err := carts.ListWithPrices(ctx, customer.UserID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 55, lines[0].Quantity)
}

func TestPostgres_CartUpsertQuantityCap(t *testing.T) {
	_, carts, _ := setupDB(t)
	ctx := context.Background()

	require.NoError(t, carts.Upsert(ctx, customer.UserID, 7, cart.MaxLineQuantity))
	err := carts.Upsert(ctx, customer.UserID, 7, 1)
	assert.ErrorIs(t, err, cart.ErrQuantityTooLarge)

	count, err := carts.CountItems(ctx, customer.UserID)
	require.NoError(t, err)
	assert.Equal(t, cart.MaxLineQuantity, count)
}

func TestPostgres_ListAllSearch(t *testing.T) {
	orders, carts, tx := setupDB(t)
	ctx := context.Background()
	svc := order.NewService(order.Deps{Repo: orders, Carts: carts, UnitOfWork: tx})

	require.NoError(t, carts.Upsert(ctx, customer.UserID, 8, 1))
	created, err := svc.Checkout(ctx, customer, order.ShippingInfo{ShippingAddress: "Rr X", City: "Prishtinë", Phone: "044123456"})
	require.NoError(t, err)

	tests := []struct {
		search string
		want   int
	}{
		{search: "ORD0000", want: 1},
		{search: "ord000001", want: 1},
		{search: "1", want: 1},
		{search: created.ID.String()[:8], want: 1},
		{search: "%", want: 0},
		{search: "_", want: 0},
		{search: "ORD9", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.search, func(t *testing.T) {
			found, err := orders.ListAll(ctx, order.AdminOrderQuery{Search: tt.search})
			require.NoError(t, err)
			assert.Len(t, found, tt.want)
		})
	}
}

func TestPostgres_CartLinesAreOwnerScoped(t *testing.T) {
	_, carts, _ := setupDB(t)
	ctx := context.Background()

	require.NoError(t, carts.Upsert(ctx, "user-2", 8, 1))
	lines, err := carts.ListWithPrices(ctx, "user-2")
	require.NoError(t, err)
	require.Len(t, lines, 1)

	err = carts.SetQuantity(ctx, customer.UserID, lines[0].ID, 5)
	assert.ErrorIs(t, err, cart.ErrLineNotFound)

	deleted, err := carts.DeleteLine(ctx, customer.UserID, lines[0].ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = carts.DeleteLines(ctx, customer.UserID, []uuid.UUID{lines[0].ID})
	require.NoError(t, err)

	still, err := carts.ListWithPrices(ctx, "user-2")
	require.NoError(t, err)
	assert.Len(t, still, 1)
}
