package handler

//go:generate mockgen -destination=../../mocks/mock_handler_services.go -package=mocks github.com/securesteps/auth-service/internal/auth/handler AccountService,SessionManager

import (
	"context"

	"github.com/securesteps/auth-service/internal/auth/domain"
	"github.com/securesteps/auth-service/internal/auth/dto"
	"github.com/securesteps/auth-service/internal/auth/service"
)

// AccountService is implemented by service.UserService.
type AccountService interface {
	Register(ctx context.Context, input dto.RegisterInput) (*dto.RegisterOutput, error)
	VerifyOTP(ctx context.Context, input dto.VerifyOTPInput) error
	ResendOTP(ctx context.Context, input dto.ResendOTPInput) error
	ForgotPassword(ctx context.Context, input dto.ForgotPasswordInput) (*dto.ForgotPasswordOutput, error)
	ResetPassword(ctx context.Context, input dto.ResetPasswordInput) error
	GetUser(ctx context.Context, userID string) (*domain.User, error)
}

// SessionManager is implemented by service.SessionService.
type SessionManager interface {
	Login(ctx context.Context, input dto.LoginInput) (*service.AuthResult, error)
	Refresh(ctx context.Context, input dto.RefreshInput) (*service.AuthResult, error)
	Logout(ctx context.Context, accessToken string) error
	Validate(ctx context.Context, accessToken string) (*service.JWTCustomClaims, error)
	ListSessions(ctx context.Context, userID string) ([]domain.Session, error)
	RevokeAllSessions(ctx context.Context, userID string) error
}
