package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/securesteps/auth-service/config"
	"github.com/securesteps/auth-service/internal/auth/domain"
	autherror "github.com/securesteps/auth-service/internal/errors"
)

const (
	minOTPLength = 1
	maxOTPLength = 10
)

// OTPService generates one-time codes and does the per-user attempt bookkeeping.
type OTPService struct {
	repo         domain.UserRepository
	length       int
	maxAttempts  int
	blockFor     time.Duration
	expiryByKind map[domain.OTPPurpose]time.Duration
	now          func() time.Time
}

func NewOTPService(repo domain.UserRepository, cfg *config.Config) *OTPService {
	length := cfg.OTPLength
	if length == 0 {
		length = config.DefaultOTPLength
	}
	maxAttempts := cfg.OTPMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = config.DefaultOTPMaxAttempts
	}
	blockMinutes := cfg.OTPBlockMinutes
	if blockMinutes <= 0 {
		blockMinutes = config.DefaultOTPBlockMinutes
	}
	signup := minutesOr(cfg.SignupOTPExpiryMin, config.DefaultSignupOTPExpiryMin)
	reset := minutesOr(cfg.ResetOTPExpiryMin, config.DefaultResetOTPExpiryMin)

	return &OTPService{
		repo:        repo,
		length:      length,
		maxAttempts: maxAttempts,
		blockFor:    time.Duration(blockMinutes) * time.Minute,
		expiryByKind: map[domain.OTPPurpose]time.Duration{
			domain.PurposeSignupVerification: signup,
			domain.PurposeLoginVerification:  signup,
			domain.PurposePasswordReset:      reset,
		},
		now: time.Now,
	}
}

func minutesOr(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Minute
}

func (s *OTPService) SetClock(now func() time.Time) {
	s.now = now
}

// Generate returns a zero-padded decimal code of the given length.
func Generate(length int) (string, error) {
	if length < minOTPLength || length > maxOTPLength {
		return "", autherror.ErrOTPConfiguration
	}

	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}

	code := n.String()
	if pad := length - len(code); pad > 0 {
		code = strings.Repeat("0", pad) + code
	}
	return code, nil
}

// ExpiryFor is how long a code for purpose stays valid.
func (s *OTPService) ExpiryFor(purpose domain.OTPPurpose) time.Duration {
	return s.expiryByKind[purpose]
}

// Issue generates and stores a new code for the user.
func (s *OTPService) Issue(ctx context.Context, repo domain.UserRepository, userID string, purpose domain.OTPPurpose) (*domain.OTP, error) {
	code, err := Generate(s.length)
	if err != nil {
		return nil, err
	}

	now := s.now()
	otp := &domain.OTP{
		ID:        uuid.NewString(),
		UserID:    userID,
		Code:      code,
		Purpose:   purpose,
		Type:      domain.OTPChannelEmail,
		ExpiresAt: now.Add(s.ExpiryFor(purpose)),
		CreatedAt: now,
	}
	if err := repo.CreateOTP(ctx, otp); err != nil {
		return nil, fmt.Errorf("store otp: %w", err)
	}
	return otp, nil
}

// RecordAttempt counts a failed verification. When the user reaches the
// maximum, verification is blocked and ErrOTPMaxAttempts is returned.
func (s *OTPService) RecordAttempt(ctx context.Context, userID string) error {
	now := s.now()
	blockedUntil, err := s.repo.IncrementOTPRetry(ctx, userID, s.maxAttempts, now.Add(s.blockFor))
	if err != nil {
		return fmt.Errorf("record otp attempt: %w", err)
	}
	if blockedUntil != nil && blockedUntil.After(now) {
		return autherror.ErrOTPMaxAttempts
	}
	return nil
}

func (s *OTPService) CheckNotBlocked(user *domain.User) error {
	if user.OTPBlocked(s.now()) {
		return autherror.ErrOTPBlocked
	}
	return nil
}

// Verify succeeds only for an unconsumed record of the expected purpose whose
// code matches and whose expiry is still ahead of now. It never mutates state.
func Verify(code string, record *domain.OTP, purpose domain.OTPPurpose, now time.Time) error {
	if record == nil || record.IsVerified {
		return autherror.ErrInvalidOrExpiredOTP
	}
	if record.Purpose != purpose {
		return autherror.ErrInvalidOrExpiredOTP
	}
	if !record.ExpiresAt.After(now) {
		return autherror.ErrInvalidOrExpiredOTP
	}
	if subtle.ConstantTimeCompare([]byte(record.Code), []byte(code)) != 1 {
		return autherror.ErrInvalidOrExpiredOTP
	}
	return nil
}

// Check runs the full verification against the latest record for the user and
// purpose, counting the failure if there is one. The record is returned on
// success so the caller can consume it inside its own transaction.
func (s *OTPService) Check(ctx context.Context, user *domain.User, code string, purpose domain.OTPPurpose) (*domain.OTP, error) {
	if err := s.CheckNotBlocked(user); err != nil {
		return nil, err
	}

	record, err := s.repo.GetLatestOTP(ctx, user.ID, purpose)
	if err != nil {
		return nil, fmt.Errorf("load otp: %w", err)
	}

	if err := Verify(code, record, purpose, s.now()); err != nil {
		if attemptErr := s.RecordAttempt(ctx, user.ID); attemptErr != nil {
			return nil, attemptErr
		}
		return nil, err
	}
	return record, nil
}

// Consume marks the record verified and clears the user's abuse counters.
// A record consumed concurrently by another request yields ErrInvalidOrExpiredOTP.
func (s *OTPService) Consume(ctx context.Context, repo domain.UserRepository, record *domain.OTP) error {
	ok, err := repo.MarkOTPVerified(ctx, record.ID, s.now())
	if err != nil {
		return fmt.Errorf("mark otp verified: %w", err)
	}
	if !ok {
		return autherror.ErrInvalidOrExpiredOTP
	}
	if err := repo.ResetOTPCounters(ctx, record.UserID); err != nil {
		return fmt.Errorf("reset otp counters: %w", err)
	}
	return nil
}
