package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/keyxmakerx/tabletop/internal/apperror"
	"github.com/keyxmakerx/tabletop/internal/docstore"
)

// UserRepository defines persistence for accounts.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	UpdateLastLogin(ctx context.Context, id string) error
	List(ctx context.Context) ([]User, error)
	Count(ctx context.Context) (int, error)
}

// userRepository stores users as documents in the users collection.
type userRepository struct {
	docs *docstore.Repository[User]
}

// NewUserRepository creates a user repository over store.
func NewUserRepository(store docstore.Store) UserRepository {
	return &userRepository{docs: docstore.NewRepository[User](store, docstore.CollectionUsers)}
}

// Create persists a new user.
func (r *userRepository) Create(ctx context.Context, user *User) error {
	return r.docs.Save(ctx, user.ID, user)
}

// FindByID retrieves a user by id.
func (r *userRepository) FindByID(ctx context.Context, id string) (*User, error) {
	u, err := r.docs.Get(ctx, id)
	if errors.Is(err, docstore.ErrNotFound) || errors.Is(err, docstore.ErrInvalidKey) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("finding user: %w", err)
	}
	return u, nil
}

// FindByUsername retrieves a user by case-insensitive username. The users
// collection is small (one table's worth of players), so this scans.
func (r *userRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	users, err := r.docs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	for i := range users {
		if strings.EqualFold(users[i].Username, username) {
			return &users[i], nil
		}
	}
	return nil, apperror.NewNotFound("user not found")
}

// UsernameExists reports whether an account with username exists.
func (r *userRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	_, err := r.FindByUsername(ctx, username)
	if apperror.Is(err, http.StatusNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpdateLastLogin stamps the user's last login time.
func (r *userRepository) UpdateLastLogin(ctx context.Context, id string) error {
	u, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	u.LastLoginAt = &now
	return r.docs.Save(ctx, id, u)
}

// List returns every user ordered by username.
func (r *userRepository) List(ctx context.Context) ([]User, error) {
	users, err := r.docs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	sort.Slice(users, func(i, j int) bool {
		return strings.ToLower(users[i].Username) < strings.ToLower(users[j].Username)
	})
	return users, nil
}

// Count returns the number of accounts.
func (r *userRepository) Count(ctx context.Context) (int, error) {
	users, err := r.docs.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return len(users), nil
}
