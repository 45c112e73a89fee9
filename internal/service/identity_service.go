package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/fjod/go_cart/storefront-service/internal/auth"
	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/fjod/go_cart/storefront-service/internal/repository"
)

const (
	minPasswordLength = 8
	maxPhoneLength    = 32
)

type IdentityService struct {
	uow    repository.UnitOfWork
	tokens *auth.TokenIssuer
}

func NewIdentityService(uow repository.UnitOfWork, tokens *auth.TokenIssuer) *IdentityService {
	return &IdentityService{uow: uow, tokens: tokens}
}

type RegisterInput struct {
	Email    string
	Password string
	FullName string
	Phone    string
}

// Register creates the user, grants the CUSTOMER role and creates the
// customer profile in one transaction.
func (s *IdentityService) Register(ctx context.Context, in RegisterInput) (*domain.Customer, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", domain.ErrInvalidArgument)
	}
	if len(in.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidArgument, minPasswordLength)
	}
	fullName := strings.TrimSpace(in.FullName)
	if fullName == "" {
		return nil, fmt.Errorf("%w: full name is required", domain.ErrInvalidArgument)
	}
	phone := strings.TrimSpace(in.Phone)
	if err := validatePhone(phone); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	customer := &domain.Customer{Email: email, FullName: fullName, Phone: phone}
	err = repository.RunInTx(ctx, s.uow, func(tx repository.Tx) error {
		user := &domain.User{Email: email, PasswordHash: hash, FullName: fullName, Active: true}
		if err := tx.Identity().CreateUser(ctx, user); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return fmt.Errorf("%w: email already registered", domain.ErrConflict)
			}
			return err
		}
		role, err := tx.Identity().GetRoleByCode(ctx, domain.RoleCustomer)
		if err != nil {
			return err
		}
		if err := tx.Identity().AssignRole(ctx, user.ID, role.ID); err != nil {
			return err
		}
		customer.UserID = user.ID
		return tx.Identity().CreateCustomer(ctx, customer)
	})
	if err != nil {
		logUnexpected(ctx, "register failed", err)
		return nil, err
	}
	return customer, nil
}

type LoginResult struct {
	Token string
	User  *domain.User
	Roles []string
}

// Login never reveals whether the email exists.
func (s *IdentityService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	invalid := fmt.Errorf("%w: invalid email or password", domain.ErrUnauthenticated)

	var (
		user  *domain.User
		roles []domain.Role
	)
	err := repository.RunInTx(ctx, s.uow, func(tx repository.Tx) error {
		var err error
		user, err = tx.Identity().GetUserByEmail(ctx, email)
		if errors.Is(err, domain.ErrNotFound) {
			return invalid
		}
		if err != nil {
			return err
		}
		roles, err = tx.Identity().RolesForUser(ctx, user.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	ok, err := auth.VerifyPassword(user.PasswordHash, password)
	if err != nil {
		logUnexpected(ctx, "verify password failed", err, "user_id", user.ID)
		return nil, invalid
	}
	if !ok || !user.Active {
		return nil, invalid
	}

	codes := domain.RoleCodes(roles)
	token, err := s.tokens.Issue(user.ID, codes)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, User: user, Roles: codes}, nil
}

// Authenticate validates a bearer token.
func (s *IdentityService) Authenticate(token string) (*auth.Claims, error) {
	return s.tokens.Parse(token)
}

// ResolveCustomerID maps an authenticated user to their customer profile.
func (s *IdentityService) ResolveCustomerID(ctx context.Context, userID int64) (int64, error) {
	var customerID int64
	err := repository.RunInTx(ctx, s.uow, func(tx repository.Tx) error {
		c, err := tx.Identity().GetCustomerByUserID(ctx, userID)
		if err != nil {
			return err
		}
		customerID = c.ID
		return nil
	})
	if err != nil {
		return 0, err
	}
	return customerID, nil
}

func (s *IdentityService) GetCustomer(ctx context.Context, customerID int64) (*domain.Customer, error) {
	var customer *domain.Customer
	err := repository.RunInTx(ctx, s.uow, func(tx repository.Tx) error {
		var err error
		customer, err = tx.Identity().GetCustomerByID(ctx, customerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return customer, nil
}

// AssignRole grants roleCode to a user. Granting a role twice is a no-op.
func (s *IdentityService) AssignRole(ctx context.Context, userID int64, roleCode string) ([]string, error) {
	return s.changeRole(ctx, userID, roleCode, func(tx repository.Tx, roleID int64) error {
		return tx.Identity().AssignRole(ctx, userID, roleID)
	})
}

func (s *IdentityService) RevokeRole(ctx context.Context, userID int64, roleCode string) ([]string, error) {
	return s.changeRole(ctx, userID, roleCode, func(tx repository.Tx, roleID int64) error {
		return tx.Identity().RevokeRole(ctx, userID, roleID)
	})
}

func (s *IdentityService) changeRole(ctx context.Context, userID int64, roleCode string, apply func(tx repository.Tx, roleID int64) error) ([]string, error) {
	roleCode = strings.ToUpper(strings.TrimSpace(roleCode))
	if roleCode == "" {
		return nil, fmt.Errorf("%w: role is required", domain.ErrInvalidArgument)
	}

	var roles []domain.Role
	err := repository.RunInTx(ctx, s.uow, func(tx repository.Tx) error {
		if _, err := tx.Identity().GetUserByID(ctx, userID); err != nil {
			return err
		}
		role, err := tx.Identity().GetRoleByCode(ctx, roleCode)
		if err != nil {
			return err
		}
		if err := apply(tx, role.ID); err != nil {
			return err
		}
		roles, err = tx.Identity().RolesForUser(ctx, userID)
		return err
	})
	if err != nil {
		logUnexpected(ctx, "change role failed", err, "user_id", userID, "role", roleCode)
		return nil, err
	}
	return domain.RoleCodes(roles), nil
}

// UserUpdate carries the editable account fields. Nil fields are left as
// they are. Active is honoured only on the admin path.
type UserUpdate struct {
	FullName *string
	Phone    *string
	Active   *bool
}

func (s *IdentityService) GetProfile(ctx context.Context, userID int64) (*domain.Profile, error) {
	var profile *domain.Profile
	err := repository.RunInTx(ctx, s.uow, func(tx repository.Tx) error {
		user, err := tx.Identity().GetUserByID(ctx, userID)
		if err != nil {
			return err
		}
		profile, err = loadProfile(ctx, tx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// UpdateProfile lets a user change their own name and phone.
func (s *IdentityService) UpdateProfile(ctx context.Context, userID int64, in UserUpdate) (*domain.Profile, error) {
	in.Active = nil
	return s.UpdateUser(ctx, userID, in)
}

// UpdateUser is the admin edit: name, phone and the active flag. An inactive
// user can no longer log in.
func (s *IdentityService) UpdateUser(ctx context.Context, userID int64, in UserUpdate) (*domain.Profile, error) {
	var fullName, phone string
	if in.FullName != nil {
		fullName = strings.TrimSpace(*in.FullName)
		if fullName == "" {
			return nil, fmt.Errorf("%w: full name must not be empty", domain.ErrInvalidArgument)
		}
	}
	if in.Phone != nil {
		phone = strings.TrimSpace(*in.Phone)
		if err := validatePhone(phone); err != nil {
			return nil, err
		}
	}

	var profile *domain.Profile
	err := repository.RunInTx(ctx, s.uow, func(tx repository.Tx) error {
		user, err := tx.Identity().GetUserByID(ctx, userID)
		if err != nil {
			return err
		}
		if in.FullName != nil {
			user.FullName = fullName
		}
		if in.Active != nil {
			user.Active = *in.Active
		}
		if err := tx.Identity().UpdateUser(ctx, user); err != nil {
			return err
		}

		customer, err := tx.Identity().GetCustomerByUserID(ctx, userID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			if in.Phone != nil {
				return fmt.Errorf("%w: user %d has no customer profile for a phone number", domain.ErrInvalidArgument, userID)
			}
		case err != nil:
			return err
		default:
			if in.FullName != nil {
				customer.FullName = fullName
			}
			if in.Phone != nil {
				customer.Phone = phone
			}
			if err := tx.Identity().UpdateCustomer(ctx, customer); err != nil {
				return err
			}
		}

		profile, err = loadProfile(ctx, tx, user)
		return err
	})
	if err != nil {
		logUnexpected(ctx, "update user failed", err, "user_id", userID)
		return nil, err
	}
	return profile, nil
}

func (s *IdentityService) ListUsers(ctx context.Context, limit, offset int) ([]domain.Profile, error) {
	if limit < 0 || offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", domain.ErrInvalidArgument)
	}
	var profiles []domain.Profile
	err := repository.RunInTx(ctx, s.uow, func(tx repository.Tx) error {
		users, err := tx.Identity().ListUsers(ctx, limit, offset)
		if err != nil {
			return err
		}
		profiles = make([]domain.Profile, 0, len(users))
		for i := range users {
			p, err := loadProfile(ctx, tx, &users[i])
			if err != nil {
				return err
			}
			profiles = append(profiles, *p)
		}
		return nil
	})
	if err != nil {
		logUnexpected(ctx, "list users failed", err)
		return nil, err
	}
	return profiles, nil
}

func loadProfile(ctx context.Context, tx repository.Tx, user *domain.User) (*domain.Profile, error) {
	roles, err := tx.Identity().RolesForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	profile := &domain.Profile{
		UserID:    user.ID,
		Email:     user.Email,
		FullName:  user.FullName,
		Active:    user.Active,
		Roles:     domain.RoleCodes(roles),
		CreatedAt: user.CreatedAt,
	}

	customer, err := tx.Identity().GetCustomerByUserID(ctx, user.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return profile, nil
	}
	if err != nil {
		return nil, err
	}
	profile.CustomerID = customer.ID
	profile.Phone = customer.Phone
	return profile, nil
}

func validatePhone(phone string) error {
	if len(phone) > maxPhoneLength {
		return fmt.Errorf("%w: phone must be at most %d characters", domain.ErrInvalidArgument, maxPhoneLength)
	}
	return nil
}
