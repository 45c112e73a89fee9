package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
)

const userColumns = `id, email, password_hash, full_name, active, created_at`

type pgIdentityRepository struct {
	q querier
}

func (r *pgIdentityRepository) CreateUser(ctx context.Context, user *domain.User) error {
	query := `INSERT INTO users (email, password_hash, full_name, active, created_at)
	          VALUES ($1, $2, $3, $4, NOW())
	          RETURNING id, created_at`

	err := r.q.QueryRowContext(ctx, query, user.Email, user.PasswordHash, user.FullName, user.Active).
		Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("email %q already registered: %w", user.Email, domain.ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *pgIdentityRepository) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.loadUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *pgIdentityRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.loadUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *pgIdentityRepository) loadUser(ctx context.Context, query string, arg any) (*domain.User, error) {
	var u domain.User
	err := r.q.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Active, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

func (r *pgIdentityRepository) UpdateUser(ctx context.Context, user *domain.User) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET full_name = $1, active = $2 WHERE id = $3`, user.FullName, user.Active, user.ID)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return expectOneRow(res, "user")
}

func (r *pgIdentityRepository) ListUsers(ctx context.Context, limit, offset int) ([]domain.User, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY id LIMIT $1 OFFSET $2`, limitOrDefault(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Active, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return users, nil
}

func (r *pgIdentityRepository) GetRoleByCode(ctx context.Context, code string) (*domain.Role, error) {
	var role domain.Role
	err := r.q.QueryRowContext(ctx, `SELECT id, code, name, active FROM roles WHERE code = $1`, code).
		Scan(&role.ID, &role.Code, &role.Name, &role.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("role %q: %w", code, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query role: %w", err)
	}
	return &role, nil
}

func (r *pgIdentityRepository) AssignRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, roleID)
	if err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	return nil
}

func (r *pgIdentityRepository) RevokeRole(ctx context.Context, userID, roleID int64) error {
	if _, err := r.q.ExecContext(ctx,
		`DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID); err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}
	return nil
}

func (r *pgIdentityRepository) RolesForUser(ctx context.Context, userID int64) ([]domain.Role, error) {
	query := `SELECT r.id, r.code, r.name, r.active
	          FROM roles r JOIN user_roles ur ON ur.role_id = r.id
	          WHERE ur.user_id = $1 AND r.active
	          ORDER BY r.code`

	rows, err := r.q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query user roles: %w", err)
	}
	defer rows.Close()

	roles := make([]domain.Role, 0)
	for rows.Next() {
		var role domain.Role
		if err := rows.Scan(&role.ID, &role.Code, &role.Name, &role.Active); err != nil {
			return nil, fmt.Errorf("scan role row: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return roles, nil
}

func (r *pgIdentityRepository) CreateCustomer(ctx context.Context, c *domain.Customer) error {
	query := `INSERT INTO customers (user_id, email, full_name, phone, created_at)
	          VALUES ($1, $2, $3, $4, NOW())
	          RETURNING id, created_at`

	err := r.q.QueryRowContext(ctx, query, c.UserID, c.Email, c.FullName, c.Phone).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("customer for user %d exists: %w", c.UserID, domain.ErrConflict)
		}
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}

func (r *pgIdentityRepository) GetCustomerByID(ctx context.Context, id int64) (*domain.Customer, error) {
	return r.loadCustomer(ctx, `SELECT id, user_id, email, full_name, phone, created_at FROM customers WHERE id = $1`, id)
}

func (r *pgIdentityRepository) GetCustomerByUserID(ctx context.Context, userID int64) (*domain.Customer, error) {
	return r.loadCustomer(ctx, `SELECT id, user_id, email, full_name, phone, created_at FROM customers WHERE user_id = $1`, userID)
}

func (r *pgIdentityRepository) loadCustomer(ctx context.Context, query string, arg int64) (*domain.Customer, error) {
	var c domain.Customer
	err := r.q.QueryRowContext(ctx, query, arg).Scan(&c.ID, &c.UserID, &c.Email, &c.FullName, &c.Phone, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("customer: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query customer: %w", err)
	}
	return &c, nil
}

func (r *pgIdentityRepository) UpdateCustomer(ctx context.Context, c *domain.Customer) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE customers SET full_name = $1, phone = $2 WHERE id = $3`, c.FullName, c.Phone, c.ID)
	if err != nil {
		return fmt.Errorf("update customer: %w", err)
	}
	return expectOneRow(res, "customer")
}
