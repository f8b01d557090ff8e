package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/securesteps/auth-service/internal/auth/domain"
	"github.com/securesteps/auth-service/internal/auth/dto"
	autherror "github.com/securesteps/auth-service/internal/errors"
	"github.com/securesteps/auth-service/internal/events"
	"golang.org/x/crypto/bcrypt"
)

// UserService covers registration, OTP verification and password recovery.
type UserService struct {
	repo      domain.UserRepository
	otp       *OTPService
	notifier  domain.Notifier
	publisher domain.EventPublisher
	metrics   *Metrics
	hashCost  int
	now       func() time.Time
}

func NewUserService(
	repo domain.UserRepository,
	otp *OTPService,
	notifier domain.Notifier,
	publisher domain.EventPublisher,
	metrics *Metrics,
) *UserService {
	if metrics == nil {
		metrics = NoopMetrics()
	}
	return &UserService{
		repo:      repo,
		otp:       otp,
		notifier:  notifier,
		publisher: publisher,
		metrics:   metrics,
		hashCost:  bcrypt.DefaultCost,
		now:       time.Now,
	}
}

// SetHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (s *UserService) SetHashCost(cost int) {
	s.hashCost = cost
}

func (s *UserService) SetClock(now func() time.Time) {
	s.now = now
}

// Register creates an unverified user and mails a signup code. User, OTP and
// delivery share one transaction: if the mail cannot be sent nothing is kept
// and the client can register again.
func (s *UserService) Register(ctx context.Context, input dto.RegisterInput) (*dto.RegisterOutput, error) {
	role := domain.Role(input.Role)
	if role == "" {
		role = domain.RoleStudent
	}
	if !role.Valid() || role == domain.RoleAdmin {
		return nil, fmt.Errorf("%w: role %q cannot be self-registered", autherror.ErrValidation, input.Role)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        normalizeIdentifier(input.Email),
		Username:     strings.TrimSpace(input.Username),
		PasswordHash: string(hashedPassword),
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.repo.WithTx(ctx, func(repo domain.UserRepository) error {
		exists, err := repo.ExistsByEmailOrUsername(ctx, user.Email, user.Username)
		if err != nil {
			return fmt.Errorf("check uniqueness: %w", err)
		}
		if exists {
			return autherror.ErrUserExists
		}
		if err := repo.Create(ctx, user); err != nil {
			return err
		}
		return s.issueAndSend(ctx, repo, user, domain.PurposeSignupVerification)
	})
	if err != nil {
		return nil, err
	}

	return &dto.RegisterOutput{UserID: user.ID, Email: user.Email, OTPSent: true}, nil
}

// VerifyOTP consumes a signup or login code. Password reset codes are only
// checked here; ResetPassword consumes them.
func (s *UserService) VerifyOTP(ctx context.Context, input dto.VerifyOTPInput) (err error) {
	purpose := domain.OTPPurpose(input.Purpose)
	defer func() { s.metrics.otpCheck(ctx, string(purpose), err) }()

	if !purpose.Valid() {
		return autherror.ErrPurposeMismatch
	}

	user, err := s.mustGetUser(ctx, input.UserID)
	if err != nil {
		return err
	}

	record, err := s.otp.Check(ctx, user, input.OTPCode, purpose)
	if err != nil {
		return err
	}
	if purpose == domain.PurposePasswordReset {
		return nil
	}

	err = s.repo.WithTx(ctx, func(repo domain.UserRepository) error {
		if err := s.otp.Consume(ctx, repo, record); err != nil {
			return err
		}
		if purpose == domain.PurposeSignupVerification && !user.IsEmailVerified {
			if err := repo.MarkEmailVerified(ctx, user.ID); err != nil {
				return fmt.Errorf("mark email verified: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if purpose == domain.PurposeSignupVerification {
		s.publish(ctx, events.New(events.TypeUserVerified, user.ID, ""))
	}
	return nil
}

// ResendOTP issues a fresh code. Older codes stay in the store but only the
// newest one is checked.
func (s *UserService) ResendOTP(ctx context.Context, input dto.ResendOTPInput) error {
	purpose := domain.OTPPurpose(input.Purpose)
	if !purpose.Valid() {
		return autherror.ErrPurposeMismatch
	}

	user, err := s.repo.GetByEmail(ctx, normalizeIdentifier(input.Email))
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		return autherror.ErrUserNotFound
	}
	if purpose == domain.PurposeSignupVerification && user.IsEmailVerified {
		return fmt.Errorf("%w: email already verified", autherror.ErrValidation)
	}
	if err := s.otp.CheckNotBlocked(user); err != nil {
		return err
	}

	return s.repo.WithTx(ctx, func(repo domain.UserRepository) error {
		return s.issueAndSend(ctx, repo, user, purpose)
	})
}

// ForgotPassword mails a password reset code. Unknown emails are reported as
// ErrUserNotFound.
func (s *UserService) ForgotPassword(ctx context.Context, input dto.ForgotPasswordInput) (*dto.ForgotPasswordOutput, error) {
	user, err := s.repo.GetByEmail(ctx, normalizeIdentifier(input.Email))
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		return nil, autherror.ErrUserNotFound
	}
	if err := s.otp.CheckNotBlocked(user); err != nil {
		return nil, err
	}

	err = s.repo.WithTx(ctx, func(repo domain.UserRepository) error {
		return s.issueAndSend(ctx, repo, user, domain.PurposePasswordReset)
	})
	if err != nil {
		return nil, err
	}

	return &dto.ForgotPasswordOutput{UserID: user.ID, OTPSent: true}, nil
}

// ResetPassword replaces the password after a valid reset code. Every session
// of the user is revoked with it. On any OTP failure the password is untouched.
func (s *UserService) ResetPassword(ctx context.Context, input dto.ResetPasswordInput) (err error) {
	defer func() { s.metrics.otpCheck(ctx, string(domain.PurposePasswordReset), err) }()

	// Only a password reset code can change the password.
	if domain.OTPPurpose(input.Purpose) != domain.PurposePasswordReset {
		return autherror.ErrInvalidOrExpiredOTP
	}

	user, err := s.mustGetUser(ctx, input.UserID)
	if err != nil {
		return err
	}

	record, err := s.otp.Check(ctx, user, input.OTPCode, domain.PurposePasswordReset)
	if err != nil {
		return err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.hashCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	err = s.repo.WithTx(ctx, func(repo domain.UserRepository) error {
		if err := s.otp.Consume(ctx, repo, record); err != nil {
			return err
		}
		if err := repo.UpdatePassword(ctx, user.ID, string(hashedPassword)); err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		if _, err := repo.DeleteSessionsByUserID(ctx, user.ID); err != nil {
			return fmt.Errorf("revoke sessions: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(ctx, events.New(events.TypeSessionRevoked, user.ID, ""))
	return nil
}

func (s *UserService) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	return s.mustGetUser(ctx, userID)
}

func (s *UserService) mustGetUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		return nil, autherror.ErrUserNotFound
	}
	return user, nil
}

func (s *UserService) issueAndSend(ctx context.Context, repo domain.UserRepository, user *domain.User, purpose domain.OTPPurpose) error {
	otp, err := s.otp.Issue(ctx, repo, user.ID, purpose)
	if err != nil {
		return err
	}
	if err := s.notifier.SendOTP(ctx, user.Email, otp.Code, purpose, s.otp.ExpiryFor(purpose)); err != nil {
		return fmt.Errorf("dispatch otp: %w", err)
	}
	return nil
}

func (s *UserService) publish(ctx context.Context, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Printf("warn: failed to publish %s for user %s: %v", event.Type, event.ActorID, err)
	}
}
