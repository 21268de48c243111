package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Strob0t/LabCore/internal/domain"
	"github.com/Strob0t/LabCore/internal/domain/user"
	"github.com/Strob0t/LabCore/internal/port/database"
)

// UserService manages system-scoped user identities.
type UserService struct {
	store database.Store
}

// NewUserService creates a new UserService.
func NewUserService(store database.Store) *UserService {
	return &UserService{store: store}
}

// Register validates and creates a user.
func (s *UserService) Register(ctx context.Context, req user.RegisterRequest) (*user.User, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return s.store.CreateUser(ctx, req)
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*user.User, error) {
	return s.store.GetUser(ctx, id)
}

// GetByEmail returns a user by email address, compared case-insensitively.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
}

// GetByExternalAuthID returns the user linked to an identity provider subject.
func (s *UserService) GetByExternalAuthID(ctx context.Context, externalID string) (*user.User, error) {
	return s.store.GetUserByExternalAuthID(ctx, externalID)
}
