package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/labrental/instrument-marketplace-api/internal/domain"
	"github.com/labrental/instrument-marketplace-api/internal/repository"
)

var (
	ErrInvalidStatus = errors.New("status must be active, inactive or suspended")
	ErrInvalidRole   = errors.New("role must be msme, institute or admin")
)

// AccountAdminService holds the operator-only account operations.
type AccountAdminService struct {
	users  repository.UserRepository
	tokens *TokenService
}

func NewAccountAdminService(users repository.UserRepository, tokens *TokenService) *AccountAdminService {
	return &AccountAdminService{users: users, tokens: tokens}
}

func (s *AccountAdminService) RevokeByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Revoke(ctx, u.ID); err != nil {
		return nil, fmt.Errorf("revoke sessions for user %d: %w", u.ID, err)
	}
	u.RefreshTokenFingerprint = ""
	return u, nil
}

// SetStatusByEmail changes the account status. The repository clears the
// refresh fingerprint in the same update.
func (s *AccountAdminService) SetStatusByEmail(ctx context.Context, email, status string) (*domain.User, error) {
	if !validStatus(status) {
		return nil, ErrInvalidStatus
	}
	u, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdateStatus(ctx, u.ID, status); err != nil {
		return nil, err
	}
	u.Status = status
	u.RefreshTokenFingerprint = ""
	return u, nil
}

// List pages through accounts, optionally narrowed by status and role.
func (s *AccountAdminService) List(ctx context.Context, status, role string, page repository.PageRequest) (repository.PageResult[domain.User], error) {
	if status != "" && !validStatus(status) {
		return repository.PageResult[domain.User]{}, ErrInvalidStatus
	}
	if role != "" && !domain.Role(role).Valid() {
		return repository.PageResult[domain.User]{}, ErrInvalidRole
	}
	return s.users.List(ctx, repository.UserFilter{Status: status, Role: domain.Role(role)}, page)
}

func validStatus(status string) bool {
	switch status {
	case domain.StatusActive, domain.StatusInactive, domain.StatusSuspended:
		return true
	default:
		return false
	}
}
