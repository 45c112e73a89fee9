package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/fjod/go_cart/storefront-service/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgresUoW runs the service against a real database so that row
// locks take part, which the single-writer memory store cannot show.
func setupPostgresUoW(t *testing.T) *repository.Repository {
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
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	creds := &repository.Credentials{
		Host:              host,
		Port:              port.Int(),
		User:              "testuser",
		Password:          "testpass",
		DBName:            "testdb",
		MigrationsDirPath: "../repository/migrations",
	}
	repo, err := repository.NewRepository(creds)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	require.NoError(t, repo.RunMigrations(creds))

	return repo
}

func TestAddItem_ConcurrentAddsOnPostgresAreNotLost(t *testing.T) {
	uow := setupPostgresUoW(t)
	c := newMockCache()
	svc := NewCartService(uow, c)
	customer := seedCustomer(t, uow, "race@example.com")
	p := seedProduct(t, uow, "SKU-RACE", "4.25", 100)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddItem(ctx, customer, p.ID, 1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	cart, err := svc.GetCart(ctx, customer)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, workers, cart.Items[0].Quantity)
	assert.Equal(t, workers, cart.TotalQuantity)
	want := domain.MustMoney("4.25").Mul(decimal.NewFromInt(workers))
	assert.Equal(t, domain.FormatMoney(want), domain.FormatMoney(cart.TotalPrice))
	assert.Equal(t, "85.00", domain.FormatMoney(cart.TotalPrice))

	stored, err := svc.GetOrCreateActiveCart(ctx, customer)
	require.NoError(t, err)
	assert.Equal(t, workers, stored.TotalQuantity)
}
