package services

import (
	"context"
	"errors"
	"strings"

	"github.com/taskdeck/apiserver/internal/notify"
	"github.com/taskdeck/apiserver/internal/store"
	"github.com/taskdeck/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials covers both "no such user" and "wrong password".
// Keeping them indistinguishable prevents account enumeration.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrMissingFields is returned when a signup lacks required fields.
var ErrMissingFields = errors.New("missing required fields")

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	Delete(ctx context.Context, id int) error
}

// UserUpdate is the typed allow-list for PATCH /users/me. A nil field
// is left untouched; a set Password is rehashed before persisting.
type UserUpdate struct {
	Name     *string
	Email    *string
	Password *string
	Age      *int
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo     UserRepository
	notifier notify.Notifier
}

func NewUserService(repo UserRepository, notifier notify.Notifier) *UserService {
	return &UserService{repo: repo, notifier: notifier}
}

// Register creates an account with a bcrypt-hashed password and emits a
// welcome notification. The plaintext password is never persisted.
func (s *UserService) Register(ctx context.Context, name, email, password string, age int) (types.User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		return types.User{}, ErrMissingFields
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, err
	}

	user, err := s.repo.Create(ctx, types.User{
		Name:         name,
		Email:        email,
		Age:          age,
		PasswordHash: string(hashed),
	})
	if err != nil {
		return types.User{}, err
	}

	s.notifier.UserRegistered(ctx, user.Email, user.Name)
	return user, nil
}

// Authenticate verifies credentials. Every failure mode maps to the
// same ErrInvalidCredentials.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (types.User, error) {
	user, err := s.repo.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

// ApplyUpdate applies an allow-listed partial update and persists the
// result. Nothing is written when hashing fails, so a bad update never
// partially applies.
func (s *UserService) ApplyUpdate(ctx context.Context, user types.User, update UserUpdate) (types.User, error) {
	if update.Name != nil {
		user.Name = strings.TrimSpace(*update.Name)
	}
	if update.Email != nil {
		user.Email = strings.TrimSpace(*update.Email)
	}
	if update.Age != nil {
		user.Age = *update.Age
	}
	if update.Password != nil {
		hashed, err := bcrypt.GenerateFromPassword([]byte(*update.Password), bcrypt.DefaultCost)
		if err != nil {
			return types.User{}, err
		}
		user.PasswordHash = string(hashed)
	}
	return s.repo.Update(ctx, user)
}

// Delete removes the account. Tasks and tokens cascade at the database
// level; a goodbye notification is emitted once the row is gone.
func (s *UserService) Delete(ctx context.Context, user types.User) error {
	if err := s.repo.Delete(ctx, user.ID); err != nil {
		return err
	}
	s.notifier.UserDeleted(ctx, user.Email, user.Name)
	return nil
}
