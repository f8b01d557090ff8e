package service_test

import (
	"context"
	"testing"

	"github.com/securesteps/auth-service/config"
	"github.com/securesteps/auth-service/internal/auth/domain"
	"github.com/securesteps/auth-service/internal/auth/dto"
	"github.com/securesteps/auth-service/internal/auth/service"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type harness struct {
	repo      *memRepo
	clock     *testClock
	notifier  *captureNotifier
	publisher *recordingPublisher
	tokens    *service.TokenService
	otp       *service.OTPService
	users     *service.UserService
	sessions  *service.SessionService
}

func testConfig() *config.Config {
	return &config.Config{
		OTPLength:          6,
		OTPMaxAttempts:     3,
		OTPBlockMinutes:    15,
		SignupOTPExpiryMin: 5,
		ResetOTPExpiryMin:  15,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		repo:      newMemRepo(),
		clock:     newTestClock(),
		notifier:  newCaptureNotifier(),
		publisher: &recordingPublisher{},
	}

	h.tokens = service.NewTokenService("access-secret", "refresh-secret", 24*60, 7*24*60)
	h.tokens.SetClock(h.clock.Now)

	h.otp = service.NewOTPService(h.repo, testConfig())
	h.otp.SetClock(h.clock.Now)

	h.users = service.NewUserService(h.repo, h.otp, h.notifier, h.publisher, nil)
	h.users.SetHashCost(bcrypt.MinCost)
	h.users.SetClock(h.clock.Now)

	h.sessions = service.NewSessionService(h.repo, h.tokens, noLimit{}, h.publisher, nil)
	h.sessions.SetClock(h.clock.Now)

	return h
}

func (h *harness) register(t *testing.T, email, username, password string) string {
	t.Helper()
	out, err := h.users.Register(context.Background(), dto.RegisterInput{
		Email:    email,
		Username: username,
		Password: password,
	})
	require.NoError(t, err)
	return out.UserID
}

func (h *harness) registerVerified(t *testing.T, email, username, password string) string {
	t.Helper()
	userID := h.register(t, email, username, password)
	err := h.users.VerifyOTP(context.Background(), dto.VerifyOTPInput{
		UserID:  userID,
		OTPCode: h.notifier.last(email),
		Purpose: string(domain.PurposeSignupVerification),
	})
	require.NoError(t, err)
	return userID
}

func (h *harness) login(t *testing.T, identifier, password string) *service.AuthResult {
	t.Helper()
	res, err := h.sessions.Login(context.Background(), dto.LoginInput{
		Identifier: identifier,
		Password:   password,
		IPAddress:  "10.0.0.1",
		UserAgent:  "test-agent",
	})
	require.NoError(t, err)
	return res
}
