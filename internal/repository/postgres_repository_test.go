package repository

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) (*Repository, func()) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)

	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	creds := &Credentials{
		Host:              host,
		Port:              port.Int(),
		User:              "testuser",
		Password:          "testpass",
		DBName:            "testdb",
		MigrationsDirPath: "./migrations",
	}

	repo, err := NewRepository(creds)
	require.NoError(t, err)

	err = repo.RunMigrations(creds)
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return repo, cleanup
}

// seedCustomer creates a user, its customer row and one product.
func seedCustomer(t *testing.T, repo *Repository, email string, stock int) (*domain.Customer, *domain.Product) {
	ctx := context.Background()
	var customer *domain.Customer
	var product *domain.Product

	err := RunInTx(ctx, repo, func(tx Tx) error {
		user := &domain.User{Email: email, PasswordHash: "hash", FullName: "Test", Active: true}
		if err := tx.Identity().CreateUser(ctx, user); err != nil {
			return err
		}
		customer = &domain.Customer{UserID: user.ID, Email: email, FullName: "Test"}
		if err := tx.Identity().CreateCustomer(ctx, customer); err != nil {
			return err
		}
		product = &domain.Product{
			SKU:    "SKU-" + uuid.NewString()[:8],
			Name:   "Widget",
			Price:  domain.MustMoney("9.99"),
			Stock:  stock,
			Active: true,
		}
		return tx.Products().Create(ctx, product)
	})
	require.NoError(t, err)
	return customer, product
}

func TestCreateActive_IsIdempotent(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	customer, _ := seedCustomer(t, repo, "a@example.com", 5)

	var first, second *domain.Cart
	require.NoError(t, RunInTx(ctx, repo, func(tx Tx) error {
		var err error
		first, err = tx.Carts().CreateActive(ctx, customer.ID)
		return err
	}))
	require.NoError(t, RunInTx(ctx, repo, func(tx Tx) error {
		var err error
		second, err = tx.Carts().CreateActive(ctx, customer.ID)
		return err
	}))

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, domain.CartStatusActive, second.Status)
	assert.True(t, second.TotalPrice.IsZero())
	assert.Empty(t, second.Items)
}

func TestCartItems_UniquePerProduct(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	customer, product := seedCustomer(t, repo, "b@example.com", 5)

	err := RunInTx(ctx, repo, func(tx Tx) error {
		cart, err := tx.Carts().CreateActive(ctx, customer.ID)
		if err != nil {
			return err
		}
		if err := tx.Carts().InsertItem(ctx, &domain.CartItem{CartID: cart.ID, ProductID: product.ID, Quantity: 1, UnitPrice: product.Price}); err != nil {
			return err
		}
		return tx.Carts().InsertItem(ctx, &domain.CartItem{CartID: cart.ID, ProductID: product.ID, Quantity: 1, UnitPrice: product.Price})
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestCartUpdate_VersionConflict(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	customer, _ := seedCustomer(t, repo, "c@example.com", 5)

	var cart *domain.Cart
	require.NoError(t, RunInTx(ctx, repo, func(tx Tx) error {
		var err error
		cart, err = tx.Carts().CreateActive(ctx, customer.ID)
		return err
	}))

	stale := *cart
	require.NoError(t, RunInTx(ctx, repo, func(tx Tx) error {
		return tx.Carts().Update(ctx, cart)
	}))
	assert.Equal(t, stale.Version+1, cart.Version)

	err := RunInTx(ctx, repo, func(tx Tx) error {
		return tx.Carts().Update(ctx, &stale)
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestDecrementStock_Conditional(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	_, product := seedCustomer(t, repo, "d@example.com", 3)

	require.NoError(t, RunInTx(ctx, repo, func(tx Tx) error {
		return tx.Products().DecrementStock(ctx, product.ID, 3)
	}))

	err := RunInTx(ctx, repo, func(tx Tx) error {
		return tx.Products().DecrementStock(ctx, product.ID, 1)
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	require.NoError(t, RunInTx(ctx, repo, func(tx Tx) error {
		p, err := tx.Products().GetByID(ctx, product.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, 0, p.Stock)
		return nil
	}))
}

func TestDecrementStock_ConcurrentBuyersNeverOversell(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	_, product := seedCustomer(t, repo, "e@example.com", 5)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := RunInTx(ctx, repo, func(tx Tx) error {
				return tx.Products().DecrementStock(ctx, product.ID, 1)
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
}

func TestOrderCreate_DuplicateNumberReportsFalse(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	customer, product := seedCustomer(t, repo, "f@example.com", 5)

	newOrder := func() *domain.Order {
		return &domain.Order{
			CustomerID:  customer.ID,
			OrderNumber: "ORD20240101000000000001",
			Status:      domain.OrderStatusPending,
			TotalAmount: domain.MustMoney("9.99"),
			Items: []domain.OrderItem{{
				ProductID:   product.ID,
				ProductName: product.Name,
				Quantity:    1,
				UnitPrice:   product.Price,
				Subtotal:    product.Price,
			}},
		}
	}

	first := newOrder()
	require.NoError(t, RunInTx(ctx, repo, func(tx Tx) error {
		inserted, err := tx.Orders().Create(ctx, first)
		assert.True(t, inserted)
		return err
	}))

	require.NoError(t, RunInTx(ctx, repo, func(tx Tx) error {
		inserted, err := tx.Orders().Create(ctx, newOrder())
		assert.False(t, inserted)
		return err
	}))

	require.NoError(t, RunInTx(ctx, repo, func(tx Tx) error {
		got, err := tx.Orders().GetByID(ctx, first.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, first.OrderNumber, got.OrderNumber)
		require.Len(t, got.Items, 1)
		assert.Equal(t, "Widget", got.Items[0].ProductName)
		assert.True(t, got.TotalAmount.Equal(domain.MustMoney("9.99")))

		purchased, err := tx.Orders().HasPurchased(ctx, customer.ID, product.ID)
		assert.True(t, purchased)
		return err
	}))
}

func TestListOrders_FiltersByCustomerAndStatus(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	customer, product := seedCustomer(t, repo, "g@example.com", 5)

	require.NoError(t, RunInTx(ctx, repo, func(tx Tx) error {
		for i, number := range []string{"ORD1", "ORD2"} {
			order := &domain.Order{
				CustomerID:  customer.ID,
				OrderNumber: number,
				Status:      domain.OrderStatusPending,
				TotalAmount: domain.MustMoney("9.99"),
				Items: []domain.OrderItem{{
					ProductID: product.ID, ProductName: "Widget", Quantity: i + 1,
					UnitPrice: product.Price, Subtotal: product.Price,
				}},
			}
			if _, err := tx.Orders().Create(ctx, order); err != nil {
				return err
			}
			if i == 1 {
				if err := tx.Orders().UpdateStatus(ctx, order.ID, domain.OrderStatusConfirmed); err != nil {
					return err
				}
			}
		}
		return nil
	}))

	require.NoError(t, RunInTx(ctx, repo, func(tx Tx) error {
		confirmed := domain.OrderStatusConfirmed
		orders, err := tx.Orders().List(ctx, OrderFilter{CustomerID: &customer.ID, Status: &confirmed})
		require.NoError(t, err)
		require.Len(t, orders, 1)
		assert.Equal(t, "ORD2", orders[0].OrderNumber)
		assert.Len(t, orders[0].Items, 1)

		counts, err := tx.Orders().CountByStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), counts[domain.OrderStatusPending])
		assert.Equal(t, int64(1), counts[domain.OrderStatusConfirmed])
		return nil
	}))
}

func TestListOrders_QueryIsLiteralPrefix(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	customer, product := seedCustomer(t, repo, "prefix@example.com", 5)

	require.NoError(t, RunInTx(ctx, repo, func(tx Tx) error {
		for _, number := range []string{"ORD100", "ORD101", "ORD200"} {
			order := &domain.Order{
				CustomerID:  customer.ID,
				OrderNumber: number,
				Status:      domain.OrderStatusPending,
				TotalAmount: product.Price,
				Items: []domain.OrderItem{{
					ProductID: product.ID, ProductName: "Widget", Quantity: 1,
					UnitPrice: product.Price, Subtotal: product.Price,
				}},
			}
			if _, err := tx.Orders().Create(ctx, order); err != nil {
				return err
			}
		}
		return nil
	}))

	numbers := func(query string) []string {
		var out []string
		require.NoError(t, RunInTx(ctx, repo, func(tx Tx) error {
			orders, err := tx.Orders().List(ctx, OrderFilter{Query: query})
			if err != nil {
				return err
			}
			for _, o := range orders {
				out = append(out, o.OrderNumber)
			}
			return nil
		}))
		return out
	}

	assert.ElementsMatch(t, []string{"ORD100", "ORD101"}, numbers("ORD1"))
	assert.Len(t, numbers(""), 3)

	// wildcard characters match only themselves
	assert.Empty(t, numbers("%"))
	assert.Empty(t, numbers("ORD_0"))
	assert.Empty(t, numbers("%1"))
}

func TestOutbox_InsertListMark(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	event := &domain.OutboxEvent{
		ID:            uuid.NewString(),
		AggregateType: domain.AggregateOrder,
		AggregateID:   "42",
		EventType:     domain.EventTypeOrderCreated,
		Payload:       json.RawMessage(`{"order_id":42}`),
	}
	require.NoError(t, RunInTx(ctx, repo, func(tx Tx) error {
		return tx.Outbox().Insert(ctx, event)
	}))

	require.NoError(t, RunInTx(ctx, repo, func(tx Tx) error {
		events, err := tx.Outbox().ListUnpublished(ctx, 10)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, event.ID, events[0].ID)
		assert.JSONEq(t, `{"order_id":42}`, string(events[0].Payload))
		return tx.Outbox().MarkPublished(ctx, event.ID)
	}))

	require.NoError(t, RunInTx(ctx, repo, func(tx Tx) error {
		events, err := tx.Outbox().ListUnpublished(ctx, 10)
		assert.Empty(t, events)
		return err
	}))
}

func TestIdentity_RolesAreASet(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	customer, _ := seedCustomer(t, repo, "h@example.com", 1)

	require.NoError(t, RunInTx(ctx, repo, func(tx Tx) error {
		role, err := tx.Identity().GetRoleByCode(ctx, domain.RoleAdmin)
		require.NoError(t, err)
		require.NoError(t, tx.Identity().AssignRole(ctx, customer.UserID, role.ID))
		require.NoError(t, tx.Identity().AssignRole(ctx, customer.UserID, role.ID))

		roles, err := tx.Identity().RolesForUser(ctx, customer.UserID)
		require.NoError(t, err)
		assert.Equal(t, []string{domain.RoleAdmin}, domain.RoleCodes(roles))

		require.NoError(t, tx.Identity().RevokeRole(ctx, customer.UserID, role.ID))
		roles, err = tx.Identity().RolesForUser(ctx, customer.UserID)
		assert.Empty(t, roles)
		return err
	}))
}

func TestRollback_DiscardsWrites(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	customer, _ := seedCustomer(t, repo, "i@example.com", 1)

	err := RunInTx(ctx, repo, func(tx Tx) error {
		if _, err := tx.Carts().CreateActive(ctx, customer.ID); err != nil {
			return err
		}
		return domain.ErrConflict
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	require.NoError(t, RunInTx(ctx, repo, func(tx Tx) error {
		_, err := tx.Carts().GetActive(ctx, customer.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		return nil
	}))
}

func TestProducts_SearchAndSKU(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, RunInTx(ctx, repo, func(tx Tx) error {
		for _, p := range []*domain.Product{
			{SKU: "MUG-1", Name: "Coffee Mug", Price: domain.MustMoney("5.00"), Stock: 1, Active: true},
			{SKU: "POT-1", Name: "Tea Pot", Description: "100% matches any mug", Price: domain.MustMoney("15.00"), Stock: 1, Active: true},
			{SKU: "MUG-2", Name: "Retired Mug", Price: domain.MustMoney("1.00")},
		} {
			if err := tx.Products().Create(ctx, p); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, RunInTx(ctx, repo, func(tx Tx) error {
		found, err := tx.Products().List(ctx, ProductFilter{Query: "MUG"})
		require.NoError(t, err)
		require.Len(t, found, 2)
		assert.Equal(t, "MUG-1", found[0].SKU)
		assert.Equal(t, "POT-1", found[1].SKU)

		// the query is matched literally, not as a LIKE pattern
		found, err = tx.Products().List(ctx, ProductFilter{Query: "100%"})
		require.NoError(t, err)
		require.Len(t, found, 1)
		found, err = tx.Products().List(ctx, ProductFilter{Query: "T_a"})
		require.NoError(t, err)
		assert.Empty(t, found)

		p, err := tx.Products().GetBySKU(ctx, "MUG-2")
		require.NoError(t, err)
		assert.False(t, p.Active)

		_, err = tx.Products().GetBySKU(ctx, "NOPE")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		return nil
	}))
}

func TestIdentity_UpdateAndListUsers(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	customer, _ := seedCustomer(t, repo, "edit@example.com", 1)

	require.NoError(t, RunInTx(ctx, repo, func(tx Tx) error {
		user, err := tx.Identity().GetUserByID(ctx, customer.UserID)
		require.NoError(t, err)
		user.FullName = "Edited"
		user.Active = false
		require.NoError(t, tx.Identity().UpdateUser(ctx, user))

		customer.FullName = "Edited"
		customer.Phone = "555-0100"
		require.NoError(t, tx.Identity().UpdateCustomer(ctx, customer))

		assert.ErrorIs(t, tx.Identity().UpdateUser(ctx, &domain.User{ID: 9999}), domain.ErrNotFound)
		assert.ErrorIs(t, tx.Identity().UpdateCustomer(ctx, &domain.Customer{ID: 9999}), domain.ErrNotFound)
		return nil
	}))

	require.NoError(t, RunInTx(ctx, repo, func(tx Tx) error {
		users, err := tx.Identity().ListUsers(ctx, 10, 0)
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, "Edited", users[0].FullName)
		assert.False(t, users[0].Active)

		c, err := tx.Identity().GetCustomerByID(ctx, customer.ID)
		require.NoError(t, err)
		assert.Equal(t, "555-0100", c.Phone)
		return nil
	}))
}
