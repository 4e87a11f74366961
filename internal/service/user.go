package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/servizo/api/internal/database"
	"github.com/servizo/api/internal/enum"
)

// ErrDuplicateUser is returned when the username or email is taken.
var ErrDuplicateUser = fmt.Errorf("%w: username or email already exists", ErrConflict)

// UserStore defines the DB methods needed for role changes.
// Satisfied by *database.Queries; narrow interface for testability.
type UserStore interface {
	CreateUser(ctx context.Context, arg database.CreateUserParams) (database.User, error)
	GetUserByIDForUpdate(ctx context.Context, id uuid.UUID) (database.User, error)
	UpdateUserRole(ctx context.Context, arg database.UpdateUserRoleParams) (database.User, error)
	CreateWaiter(ctx context.Context, userID uuid.UUID) error
	DeleteWaiter(ctx context.Context, userID uuid.UUID) error
}

// NewUserStore creates a UserStore from a DBTX (pool or tx).
type NewUserStore func(db database.DBTX) UserStore

// UserService keeps the waiter profile in step with the user's role: a
// waiters row exists exactly while the role is waiter.
type UserService struct {
	pool     DB
	newStore NewUserStore
}

// NewUserService creates a new UserService.
func NewUserService(pool DB, newStore NewUserStore) *UserService {
	return &UserService{pool: pool, newStore: newStore}
}

// Create stores a user with the given role and, for waiters, its profile.
func (s *UserService) Create(ctx context.Context, arg database.CreateUserParams) (database.User, error) {
	if !IsValidRole(arg.Role) {
		return database.User{}, ErrInvalidRole
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.User{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	user, err := store.CreateUser(ctx, arg)
	if err != nil {
		if isUniqueViolation(err, "") {
			return database.User{}, ErrDuplicateUser
		}
		return database.User{}, fmt.Errorf("create user: %w", err)
	}
	if err := syncWaiter(ctx, store, user.ID, user.Role); err != nil {
		return database.User{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return database.User{}, fmt.Errorf("commit tx: %w", err)
	}
	return user, nil
}

// SetRole changes a user's role and creates or removes the waiter profile
// to match.
func (s *UserService) SetRole(ctx context.Context, id uuid.UUID, role string) (database.User, error) {
	if !IsValidRole(role) {
		return database.User{}, ErrInvalidRole
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.User{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	current, err := store.GetUserByIDForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.User{}, ErrUserNotFound
		}
		return database.User{}, fmt.Errorf("get user: %w", err)
	}
	if current.Role == role {
		return current, nil
	}

	user, err := store.UpdateUserRole(ctx, database.UpdateUserRoleParams{ID: id, Role: role})
	if err != nil {
		return database.User{}, fmt.Errorf("update user role: %w", err)
	}
	if err := syncWaiter(ctx, store, id, role); err != nil {
		return database.User{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return database.User{}, fmt.Errorf("commit tx: %w", err)
	}
	return user, nil
}

func syncWaiter(ctx context.Context, store UserStore, userID uuid.UUID, role string) error {
	if role == enum.UserRoleWaiter {
		if err := store.CreateWaiter(ctx, userID); err != nil {
			return fmt.Errorf("create waiter profile: %w", err)
		}
		return nil
	}
	if err := store.DeleteWaiter(ctx, userID); err != nil {
		return fmt.Errorf("delete waiter profile: %w", err)
	}
	return nil
}

// IsValidRole reports whether role is one of the known user roles.
func IsValidRole(role string) bool {
	switch role {
	case enum.UserRoleAdmin, enum.UserRoleManager, enum.UserRoleWaiter, enum.UserRoleCustomer:
		return true
	}
	return false
}
