package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/fjod/go_cart/storefront-service/internal/repository"
)

var ErrTxDone = errors.New("transaction already committed or rolled back")

// MemoryStore implements repository.UnitOfWork in memory. Transactions are
// serialized: Begin blocks until the previous transaction has finished, then
// works on a private copy of the state which Commit publishes.
type MemoryStore struct {
	sem   chan struct{}
	state *state
}

type state struct {
	nextID     int64
	products   map[int64]domain.Product
	categories map[int64]domain.Category
	carts      map[int64]domain.Cart
	cartItems  map[int64]domain.CartItem
	orders     map[int64]domain.Order
	outbox     map[string]domain.OutboxEvent
	users      map[int64]domain.User
	roles      map[int64]domain.Role
	userRoles  map[int64]map[int64]struct{} // userID -> roleIDs
	customers  map[int64]domain.Customer
}

// NewMemoryStore returns a store seeded like the SQL migrations: the CUSTOMER
// and ADMIN roles plus one default category.
func NewMemoryStore() *MemoryStore {
	st := &state{
		products:   make(map[int64]domain.Product),
		categories: make(map[int64]domain.Category),
		carts:      make(map[int64]domain.Cart),
		cartItems:  make(map[int64]domain.CartItem),
		orders:     make(map[int64]domain.Order),
		outbox:     make(map[string]domain.OutboxEvent),
		users:      make(map[int64]domain.User),
		roles:      make(map[int64]domain.Role),
		userRoles:  make(map[int64]map[int64]struct{}),
		customers:  make(map[int64]domain.Customer),
	}
	for _, r := range []domain.Role{
		{Code: domain.RoleCustomer, Name: "Customer", Active: true},
		{Code: domain.RoleAdmin, Name: "Administrator", Active: true},
	} {
		r.ID = st.id()
		st.roles[r.ID] = r
	}
	general := domain.Category{ID: st.id(), Name: "General", Description: "Uncategorised products"}
	st.categories[general.ID] = general

	return &MemoryStore{sem: make(chan struct{}, 1), state: st}
}

func (s *MemoryStore) Begin(ctx context.Context) (repository.Tx, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &memTx{store: s, st: s.state.clone(), ctx: ctx}, nil
}

func (st *state) id() int64 {
	st.nextID++
	return st.nextID
}

func (st *state) clone() *state {
	c := &state{
		nextID:     st.nextID,
		products:   make(map[int64]domain.Product, len(st.products)),
		categories: make(map[int64]domain.Category, len(st.categories)),
		carts:      make(map[int64]domain.Cart, len(st.carts)),
		cartItems:  make(map[int64]domain.CartItem, len(st.cartItems)),
		orders:     make(map[int64]domain.Order, len(st.orders)),
		outbox:     make(map[string]domain.OutboxEvent, len(st.outbox)),
		users:      make(map[int64]domain.User, len(st.users)),
		roles:      make(map[int64]domain.Role, len(st.roles)),
		userRoles:  make(map[int64]map[int64]struct{}, len(st.userRoles)),
		customers:  make(map[int64]domain.Customer, len(st.customers)),
	}
	for k, v := range st.products {
		c.products[k] = v
	}
	for k, v := range st.categories {
		c.categories[k] = v
	}
	for k, v := range st.carts {
		c.carts[k] = v
	}
	for k, v := range st.cartItems {
		c.cartItems[k] = v
	}
	for k, v := range st.orders {
		v.Items = append([]domain.OrderItem(nil), v.Items...)
		c.orders[k] = v
	}
	for k, v := range st.outbox {
		c.outbox[k] = v
	}
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.roles {
		c.roles[k] = v
	}
	for k, set := range st.userRoles {
		cp := make(map[int64]struct{}, len(set))
		for roleID := range set {
			cp[roleID] = struct{}{}
		}
		c.userRoles[k] = cp
	}
	for k, v := range st.customers {
		c.customers[k] = v
	}
	return c
}

type memTx struct {
	store *MemoryStore
	st    *state
	ctx   context.Context
	done  bool
}

func (t *memTx) Carts() repository.CartRepository        { return memCarts{t} }
func (t *memTx) Products() repository.ProductRepository  { return memProducts{t} }
func (t *memTx) Orders() repository.OrderRepository      { return memOrders{t} }
func (t *memTx) Outbox() repository.OutboxRepository     { return memOutbox{t} }
func (t *memTx) Identity() repository.IdentityRepository { return memIdentity{t} }

func (t *memTx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	defer func() { <-t.store.sem }()
	// a transaction whose context expired must not publish its writes
	if err := t.ctx.Err(); err != nil {
		return err
	}
	t.store.state = t.st
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	<-t.store.sem
	return nil
}

func now() time.Time {
	return time.Now().UTC()
}

// carts

type memCarts struct{ tx *memTx }

func (r memCarts) cartWithItems(cart domain.Cart) *domain.Cart {
	items, _ := r.ListItems(context.Background(), cart.ID)
	cart.Items = items
	return &cart
}

func (r memCarts) GetActive(_ context.Context, customerID int64) (*domain.Cart, error) {
	for _, cart := range r.tx.st.carts {
		if cart.CustomerID == customerID && cart.Status == domain.CartStatusActive {
			return r.cartWithItems(cart), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r memCarts) LockActive(ctx context.Context, customerID int64) (*domain.Cart, error) {
	return r.GetActive(ctx, customerID)
}

func (r memCarts) CreateActive(ctx context.Context, customerID int64) (*domain.Cart, error) {
	if cart, err := r.GetActive(ctx, customerID); err == nil {
		return cart, nil
	}
	ts := now()
	cart := domain.Cart{
		ID:         r.tx.st.id(),
		CustomerID: customerID,
		Status:     domain.CartStatusActive,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
	r.tx.st.carts[cart.ID] = cart
	return r.cartWithItems(cart), nil
}

func (r memCarts) GetByID(_ context.Context, cartID int64) (*domain.Cart, error) {
	cart, ok := r.tx.st.carts[cartID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.cartWithItems(cart), nil
}

func (r memCarts) LockByID(ctx context.Context, cartID int64) (*domain.Cart, error) {
	return r.GetByID(ctx, cartID)
}

func (r memCarts) FindItem(_ context.Context, itemID int64) (*domain.CartItem, error) {
	item, ok := r.tx.st.cartItems[itemID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &item, nil
}

func (r memCarts) InsertItem(_ context.Context, item *domain.CartItem) error {
	if _, ok := r.tx.st.carts[item.CartID]; !ok {
		return domain.ErrNotFound
	}
	for _, existing := range r.tx.st.cartItems {
		if existing.CartID == item.CartID && existing.ProductID == item.ProductID {
			return domain.ErrConflict
		}
	}
	ts := now()
	item.ID = r.tx.st.id()
	item.CreatedAt = ts
	item.UpdatedAt = ts
	r.tx.st.cartItems[item.ID] = *item
	return nil
}

func (r memCarts) UpdateItemQuantity(_ context.Context, itemID int64, quantity int) error {
	item, ok := r.tx.st.cartItems[itemID]
	if !ok {
		return domain.ErrNotFound
	}
	item.Quantity = quantity
	item.UpdatedAt = now()
	r.tx.st.cartItems[itemID] = item
	return nil
}

func (r memCarts) DeleteItem(_ context.Context, itemID int64) error {
	if _, ok := r.tx.st.cartItems[itemID]; !ok {
		return domain.ErrNotFound
	}
	delete(r.tx.st.cartItems, itemID)
	return nil
}

func (r memCarts) DeleteItems(_ context.Context, cartID int64) error {
	for id, item := range r.tx.st.cartItems {
		if item.CartID == cartID {
			delete(r.tx.st.cartItems, id)
		}
	}
	return nil
}

func (r memCarts) ListItems(_ context.Context, cartID int64) ([]domain.CartItem, error) {
	items := make([]domain.CartItem, 0)
	for _, item := range r.tx.st.cartItems {
		if item.CartID == cartID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (r memCarts) Update(_ context.Context, cart *domain.Cart) error {
	stored, ok := r.tx.st.carts[cart.ID]
	if !ok || stored.Version != cart.Version {
		return domain.ErrConflict
	}
	if cart.Status == domain.CartStatusActive && stored.Status != domain.CartStatusActive {
		for _, other := range r.tx.st.carts {
			if other.ID != cart.ID && other.CustomerID == cart.CustomerID && other.Status == domain.CartStatusActive {
				return domain.ErrConflict
			}
		}
	}
	cart.Version++
	cart.UpdatedAt = now()
	stored.Status = cart.Status
	stored.TotalPrice = cart.TotalPrice
	stored.TotalQuantity = cart.TotalQuantity
	stored.Version = cart.Version
	stored.UpdatedAt = cart.UpdatedAt
	r.tx.st.carts[cart.ID] = stored
	return nil
}

// products

type memProducts struct{ tx *memTx }

func (r memProducts) GetByID(_ context.Context, id int64) (*domain.Product, error) {
	p, ok := r.tx.st.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (r memProducts) GetBySKU(_ context.Context, sku string) (*domain.Product, error) {
	for _, p := range r.tx.st.products {
		if p.SKU == sku {
			return &p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r memProducts) List(_ context.Context, filter repository.ProductFilter) ([]domain.Product, error) {
	query := strings.ToLower(filter.Query)
	products := make([]domain.Product, 0)
	for _, p := range r.tx.st.products {
		if query != "" &&
			!strings.Contains(strings.ToLower(p.Name), query) &&
			!strings.Contains(strings.ToLower(p.Description), query) {
			continue
		}
		if !filter.IncludeInactive && !p.Active {
			continue
		}
		if filter.CategoryID != nil && (p.CategoryID == nil || *p.CategoryID != *filter.CategoryID) {
			continue
		}
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return page(products, filter.Limit, filter.Offset), nil
}

func (r memProducts) skuTaken(sku string, exceptID int64) bool {
	for _, p := range r.tx.st.products {
		if p.SKU == sku && p.ID != exceptID {
			return true
		}
	}
	return false
}

func (r memProducts) Create(_ context.Context, p *domain.Product) error {
	if r.skuTaken(p.SKU, 0) {
		return domain.ErrConflict
	}
	ts := now()
	p.ID = r.tx.st.id()
	p.CreatedAt = ts
	p.UpdatedAt = ts
	r.tx.st.products[p.ID] = *p
	return nil
}

func (r memProducts) Update(_ context.Context, p *domain.Product) error {
	stored, ok := r.tx.st.products[p.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if r.skuTaken(p.SKU, p.ID) {
		return domain.ErrConflict
	}
	p.CreatedAt = stored.CreatedAt
	p.UpdatedAt = now()
	r.tx.st.products[p.ID] = *p
	return nil
}

func (r memProducts) DecrementStock(_ context.Context, id int64, qty int) error {
	p, ok := r.tx.st.products[id]
	if !ok || !p.Active || p.Stock < qty {
		return domain.ErrInsufficientStock
	}
	p.Stock -= qty
	p.UpdatedAt = now()
	r.tx.st.products[id] = p
	return nil
}

func (r memProducts) IncrementStock(_ context.Context, id int64, qty int) error {
	p, ok := r.tx.st.products[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Stock += qty
	p.UpdatedAt = now()
	r.tx.st.products[id] = p
	return nil
}

func (r memProducts) ListCategories(_ context.Context) ([]domain.Category, error) {
	categories := make([]domain.Category, 0, len(r.tx.st.categories))
	for _, c := range r.tx.st.categories {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })
	return categories, nil
}

// orders

type memOrders struct{ tx *memTx }

func (r memOrders) Create(_ context.Context, order *domain.Order) (bool, error) {
	for _, existing := range r.tx.st.orders {
		if existing.OrderNumber == order.OrderNumber {
			return false, nil
		}
	}
	ts := now()
	order.ID = r.tx.st.id()
	order.CreatedAt = ts
	order.UpdatedAt = ts
	for i := range order.Items {
		order.Items[i].ID = r.tx.st.id()
		order.Items[i].OrderID = order.ID
	}
	stored := *order
	stored.Items = append([]domain.OrderItem(nil), order.Items...)
	r.tx.st.orders[order.ID] = stored
	return true, nil
}

func (r memOrders) GetByID(_ context.Context, id int64) (*domain.Order, error) {
	order, ok := r.tx.st.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	order.Items = append([]domain.OrderItem(nil), order.Items...)
	return &order, nil
}

func (r memOrders) LockByID(ctx context.Context, id int64) (*domain.Order, error) {
	return r.GetByID(ctx, id)
}

func (r memOrders) List(_ context.Context, filter repository.OrderFilter) ([]domain.Order, error) {
	orders := make([]domain.Order, 0)
	for _, o := range r.tx.st.orders {
		if filter.CustomerID != nil && o.CustomerID != *filter.CustomerID {
			continue
		}
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		if filter.Query != "" && !strings.HasPrefix(o.OrderNumber, filter.Query) {
			continue
		}
		o.Items = append([]domain.OrderItem(nil), o.Items...)
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID > orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return page(orders, filter.Limit, filter.Offset), nil
}

func (r memOrders) UpdateStatus(_ context.Context, id int64, status domain.OrderStatus) error {
	order, ok := r.tx.st.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	order.Status = status
	order.UpdatedAt = now()
	r.tx.st.orders[id] = order
	return nil
}

func (r memOrders) CountByStatus(_ context.Context) (map[domain.OrderStatus]int64, error) {
	counts := make(map[domain.OrderStatus]int64)
	for _, o := range r.tx.st.orders {
		counts[o.Status]++
	}
	return counts, nil
}

func (r memOrders) HasPurchased(_ context.Context, customerID, productID int64) (bool, error) {
	for _, o := range r.tx.st.orders {
		if o.CustomerID == customerID && o.Status != domain.OrderStatusCancelled && o.Contains(productID) {
			return true, nil
		}
	}
	return false, nil
}

// outbox

type memOutbox struct{ tx *memTx }

func (r memOutbox) Insert(_ context.Context, event *domain.OutboxEvent) error {
	if _, ok := r.tx.st.outbox[event.ID]; ok {
		return domain.ErrConflict
	}
	event.CreatedAt = now()
	r.tx.st.outbox[event.ID] = *event
	return nil
}

func (r memOutbox) ListUnpublished(_ context.Context, limit int) ([]domain.OutboxEvent, error) {
	events := make([]domain.OutboxEvent, 0)
	for _, e := range r.tx.st.outbox {
		if e.PublishedAt == nil {
			events = append(events, e)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].CreatedAt.Before(events[j].CreatedAt) })
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (r memOutbox) MarkPublished(_ context.Context, id string) error {
	e, ok := r.tx.st.outbox[id]
	if !ok || e.PublishedAt != nil {
		return domain.ErrNotFound
	}
	ts := now()
	e.PublishedAt = &ts
	r.tx.st.outbox[id] = e
	return nil
}

// identity

type memIdentity struct{ tx *memTx }

func (r memIdentity) CreateUser(_ context.Context, user *domain.User) error {
	for _, u := range r.tx.st.users {
		if strings.EqualFold(u.Email, user.Email) {
			return domain.ErrConflict
		}
	}
	user.ID = r.tx.st.id()
	user.CreatedAt = now()
	r.tx.st.users[user.ID] = *user
	return nil
}

func (r memIdentity) GetUserByID(_ context.Context, id int64) (*domain.User, error) {
	u, ok := r.tx.st.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (r memIdentity) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range r.tx.st.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r memIdentity) UpdateUser(_ context.Context, user *domain.User) error {
	stored, ok := r.tx.st.users[user.ID]
	if !ok {
		return domain.ErrNotFound
	}
	stored.FullName = user.FullName
	stored.Active = user.Active
	r.tx.st.users[user.ID] = stored
	return nil
}

func (r memIdentity) ListUsers(_ context.Context, limit, offset int) ([]domain.User, error) {
	users := make([]domain.User, 0, len(r.tx.st.users))
	for _, u := range r.tx.st.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return page(users, limit, offset), nil
}

func (r memIdentity) GetRoleByCode(_ context.Context, code string) (*domain.Role, error) {
	for _, role := range r.tx.st.roles {
		if role.Code == code {
			return &role, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r memIdentity) AssignRole(_ context.Context, userID, roleID int64) error {
	if _, ok := r.tx.st.users[userID]; !ok {
		return domain.ErrNotFound
	}
	if _, ok := r.tx.st.roles[roleID]; !ok {
		return domain.ErrNotFound
	}
	set, ok := r.tx.st.userRoles[userID]
	if !ok {
		set = make(map[int64]struct{})
		r.tx.st.userRoles[userID] = set
	}
	set[roleID] = struct{}{}
	return nil
}

func (r memIdentity) RevokeRole(_ context.Context, userID, roleID int64) error {
	delete(r.tx.st.userRoles[userID], roleID)
	return nil
}

func (r memIdentity) RolesForUser(_ context.Context, userID int64) ([]domain.Role, error) {
	roles := make([]domain.Role, 0)
	for roleID := range r.tx.st.userRoles[userID] {
		if role, ok := r.tx.st.roles[roleID]; ok && role.Active {
			roles = append(roles, role)
		}
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Code < roles[j].Code })
	return roles, nil
}

func (r memIdentity) CreateCustomer(_ context.Context, c *domain.Customer) error {
	for _, existing := range r.tx.st.customers {
		if existing.UserID == c.UserID {
			return domain.ErrConflict
		}
	}
	c.ID = r.tx.st.id()
	c.CreatedAt = now()
	r.tx.st.customers[c.ID] = *c
	return nil
}

func (r memIdentity) GetCustomerByID(_ context.Context, id int64) (*domain.Customer, error) {
	c, ok := r.tx.st.customers[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (r memIdentity) GetCustomerByUserID(_ context.Context, userID int64) (*domain.Customer, error) {
	for _, c := range r.tx.st.customers {
		if c.UserID == userID {
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r memIdentity) UpdateCustomer(_ context.Context, c *domain.Customer) error {
	stored, ok := r.tx.st.customers[c.ID]
	if !ok {
		return domain.ErrNotFound
	}
	stored.FullName = c.FullName
	stored.Phone = c.Phone
	r.tx.st.customers[c.ID] = stored
	return nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return items[:0]
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
