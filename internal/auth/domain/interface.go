package domain

//go:generate mockgen -destination=../../mocks/mock_user_repository.go -package=mocks github.com/securesteps/auth-service/internal/auth/domain UserRepository,Notifier,EventPublisher,LoginLimiter

import (
	"context"
	"time"

	"github.com/securesteps/auth-service/internal/events"
)

// UserRepository is the credential store: users, OTP records and sessions.
// Getters return (nil, nil) when nothing matches.
type UserRepository interface {
	// WithTx runs fn against a repository bound to one transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(repo UserRepository) error) error

	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByIdentifier(ctx context.Context, identifier string) (*User, error)
	ExistsByEmailOrUsername(ctx context.Context, email, username string) (bool, error)
	Create(ctx context.Context, user *User) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	MarkEmailVerified(ctx context.Context, userID string) error
	// IncrementOTPRetry bumps the retry counter. Once it reaches maxAttempts the
	// counter resets and otp_blocked_until becomes blockUntil. The stored
	// blocked-until value is returned.
	IncrementOTPRetry(ctx context.Context, userID string, maxAttempts int, blockUntil time.Time) (*time.Time, error)
	ResetOTPCounters(ctx context.Context, userID string) error

	CreateOTP(ctx context.Context, otp *OTP) error
	GetLatestOTP(ctx context.Context, userID string, purpose OTPPurpose) (*OTP, error)
	MarkOTPVerified(ctx context.Context, otpID string, at time.Time) (bool, error)

	CreateSession(ctx context.Context, session *Session) error
	// DeleteActiveSession removes the session only if it has not expired at now
	// and returns the removed row.
	DeleteActiveSession(ctx context.Context, sessionID string, now time.Time) (*Session, error)
	DeleteSession(ctx context.Context, sessionID string) (bool, error)
	ListSessionsByUserID(ctx context.Context, userID string) ([]Session, error)
	DeleteSessionsByUserID(ctx context.Context, userID string) (int64, error)
}

// Notifier delivers OTP codes to the user.
type Notifier interface {
	SendOTP(ctx context.Context, to, code string, purpose OTPPurpose, ttl time.Duration) error
}

// EventPublisher announces committed changes to the real-time layer.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// LoginLimiter throttles failed logins per identifier and IP.
type LoginLimiter interface {
	Check(ctx context.Context, identifier, ip string) error
	RecordFailure(ctx context.Context, identifier, ip string) error
	Reset(ctx context.Context, identifier, ip string) error
}
