package service

import (
	"context"

	"github.com/labrental/instrument-marketplace-api/internal/domain"
	"github.com/labrental/instrument-marketplace-api/internal/repository"
)

type AuthServiceInterface interface {
	RequestRegistrationOTP(ctx context.Context, email string) (OTPDispatch, error)
	VerifyRegistrationOTP(ctx context.Context, email, code string) error
	Register(ctx context.Context, in RegisterInput, ua, ip string) (*LoginResult, error)
	Login(ctx context.Context, email, password, ua, ip string) (*LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*LoginResult, error)
	Logout(ctx context.Context, userID uint) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	RequestPasswordChangeOTP(ctx context.Context, userID uint) (OTPDispatch, error)
	ChangePasswordWithOTP(ctx context.Context, userID uint, code, newPassword, ua, ip string) (*LoginResult, error)
	VerifyEmailByLink(ctx context.Context, token string) error
	RequestEmailOTP(ctx context.Context, email string) (OTPDispatch, error)
	VerifyEmailOTP(ctx context.Context, email, code string) error
	ResendVerification(ctx context.Context, email string) error
	CurrentUser(ctx context.Context, userID uint) (*domain.User, error)
}

// SessionAdmin backs the operator CLI.
type SessionAdmin interface {
	RevokeByEmail(ctx context.Context, email string) (*domain.User, error)
	SetStatusByEmail(ctx context.Context, email, status string) (*domain.User, error)
	List(ctx context.Context, status, role string, page repository.PageRequest) (repository.PageResult[domain.User], error)
}

var (
	_ AuthServiceInterface = (*AuthService)(nil)
	_ SessionAdmin         = (*AccountAdminService)(nil)
)
