package repository

import (
	"context"
	"fmt"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// UnitOfWork opens transactions. Every repository reachable from a Tx sees
// the same transaction.
type UnitOfWork interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is a single transaction. Rollback after Commit is a no-op.
type Tx interface {
	Carts() CartRepository
	Products() ProductRepository
	Orders() OrderRepository
	Outbox() OutboxRepository
	Identity() IdentityRepository
	Commit() error
	Rollback() error
}

type CartRepository interface {
	// GetActive returns the active cart with its items, or domain.ErrNotFound.
	GetActive(ctx context.Context, customerID int64) (*domain.Cart, error)
	// LockActive is GetActive holding a row lock until the transaction ends.
	LockActive(ctx context.Context, customerID int64) (*domain.Cart, error)
	// CreateActive inserts an empty active cart unless one already exists and
	// returns whichever cart is active afterwards.
	CreateActive(ctx context.Context, customerID int64) (*domain.Cart, error)
	GetByID(ctx context.Context, cartID int64) (*domain.Cart, error)
	LockByID(ctx context.Context, cartID int64) (*domain.Cart, error)
	// FindItem looks a line item up by id regardless of its cart.
	FindItem(ctx context.Context, itemID int64) (*domain.CartItem, error)
	InsertItem(ctx context.Context, item *domain.CartItem) error
	UpdateItemQuantity(ctx context.Context, itemID int64, quantity int) error
	DeleteItem(ctx context.Context, itemID int64) error
	DeleteItems(ctx context.Context, cartID int64) error
	ListItems(ctx context.Context, cartID int64) ([]domain.CartItem, error)
	// Update persists status and totals if cart.Version still matches,
	// otherwise it returns domain.ErrConflict. On success Version is bumped.
	Update(ctx context.Context, cart *domain.Cart) error
}

type ProductFilter struct {
	CategoryID      *int64
	IncludeInactive bool
	// Query matches name or description, case-insensitively.
	Query  string
	Limit  int
	Offset int
}

type ProductRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Product, error)
	GetBySKU(ctx context.Context, sku string) (*domain.Product, error)
	List(ctx context.Context, filter ProductFilter) ([]domain.Product, error)
	Create(ctx context.Context, p *domain.Product) error
	Update(ctx context.Context, p *domain.Product) error
	// DecrementStock subtracts qty only while enough stock remains, otherwise
	// it returns domain.ErrInsufficientStock and changes nothing.
	DecrementStock(ctx context.Context, id int64, qty int) error
	IncrementStock(ctx context.Context, id int64, qty int) error
	ListCategories(ctx context.Context) ([]domain.Category, error)
}

type OrderFilter struct {
	CustomerID *int64
	Status     *domain.OrderStatus
	// Query matches order numbers by prefix.
	Query  string
	Limit  int
	Offset int
}

type OrderRepository interface {
	// Create inserts the order and its items. It reports false without error
	// when the order number is already taken.
	Create(ctx context.Context, order *domain.Order) (bool, error)
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	LockByID(ctx context.Context, id int64) (*domain.Order, error)
	List(ctx context.Context, filter OrderFilter) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus) error
	CountByStatus(ctx context.Context) (map[domain.OrderStatus]int64, error)
	HasPurchased(ctx context.Context, customerID, productID int64) (bool, error)
}

type OutboxRepository interface {
	Insert(ctx context.Context, event *domain.OutboxEvent) error
	ListUnpublished(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string) error
}

type IdentityRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	// UpdateUser persists FullName and Active.
	UpdateUser(ctx context.Context, user *domain.User) error
	ListUsers(ctx context.Context, limit, offset int) ([]domain.User, error)
	GetRoleByCode(ctx context.Context, code string) (*domain.Role, error)
	AssignRole(ctx context.Context, userID, roleID int64) error
	RevokeRole(ctx context.Context, userID, roleID int64) error
	RolesForUser(ctx context.Context, userID int64) ([]domain.Role, error)
	CreateCustomer(ctx context.Context, customer *domain.Customer) error
	GetCustomerByID(ctx context.Context, id int64) (*domain.Customer, error)
	GetCustomerByUserID(ctx context.Context, userID int64) (*domain.Customer, error)
	// UpdateCustomer persists FullName and Phone.
	UpdateCustomer(ctx context.Context, customer *domain.Customer) error
}

type ReviewRepository interface {
	Create(ctx context.Context, review *domain.Review) error
	GetByID(ctx context.Context, id string) (*domain.Review, error)
	ListByProduct(ctx context.Context, productID int64, limit, offset int) ([]domain.Review, error)
	ListByCustomer(ctx context.Context, customerID int64, limit, offset int) ([]domain.Review, error)
	Summary(ctx context.Context, productID int64) (*domain.ReviewSummary, error)
	Delete(ctx context.Context, id string) error
}

// RunInTx runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back on every other path, panics included.
func RunInTx(ctx context.Context, uow UnitOfWork, fn func(tx Tx) error) error {
	tx, err := uow.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
