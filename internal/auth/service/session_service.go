package service

import (
	"context"
	"errors"
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

// AuthResult is what a successful login or refresh hands to the transport.
type AuthResult struct {
	User      *domain.User
	Tokens    *TokenPair
	SessionID string
}

// SessionService issues, rotates and retires sessions.
type SessionService struct {
	repo         domain.UserRepository
	tokenService TokenGenerator
	limiter      domain.LoginLimiter
	publisher    domain.EventPublisher
	metrics      *Metrics
	now          func() time.Time
}

func NewSessionService(
	repo domain.UserRepository,
	tokenService TokenGenerator,
	limiter domain.LoginLimiter,
	publisher domain.EventPublisher,
	metrics *Metrics,
) *SessionService {
	if metrics == nil {
		metrics = NoopMetrics()
	}
	return &SessionService{
		repo:         repo,
		tokenService: tokenService,
		limiter:      limiter,
		publisher:    publisher,
		metrics:      metrics,
		now:          time.Now,
	}
}

func (s *SessionService) SetClock(now func() time.Time) {
	s.now = now
}

func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// Login checks the password and opens a new session. Unknown identities and
// wrong passwords are reported the same way.
func (s *SessionService) Login(ctx context.Context, input dto.LoginInput) (result *AuthResult, err error) {
	defer func() { s.metrics.login(ctx, err) }()

	identifier := normalizeIdentifier(input.LoginIdentifier())

	if err := s.limiter.Check(ctx, identifier, input.IPAddress); err != nil {
		if errors.Is(err, autherror.ErrTooManyLoginAttempts) {
			return nil, err
		}
		log.Printf("warn: login limiter check failed, allowing attempt: %v", err)
	}

	user, err := s.repo.GetByIdentifier(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)) != nil {
		if err := s.limiter.RecordFailure(ctx, identifier, input.IPAddress); err != nil && !errors.Is(err, autherror.ErrTooManyLoginAttempts) {
			log.Printf("warn: failed to record login failure: %v", err)
		}
		return nil, autherror.ErrInvalidCredentials
	}

	if !user.IsEmailVerified {
		return nil, autherror.ErrAccountUnverified
	}

	if err := s.limiter.Reset(ctx, identifier, input.IPAddress); err != nil {
		log.Printf("warn: failed to reset login limiter for user %s: %v", user.ID, err)
	}

	result, err = s.openSession(ctx, s.repo, user, input.UserAgent, input.IPAddress)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.New(events.TypeSessionCreated, user.ID, ""))
	return result, nil
}

// Refresh retires the session behind the refresh token and opens a new one in
// the same transaction. A token whose session is gone, expired or was already
// rotated yields ErrRefreshInvalid; when two requests race, the first delete
// wins.
func (s *SessionService) Refresh(ctx context.Context, input dto.RefreshInput) (result *AuthResult, err error) {
	defer func() { s.metrics.refresh(ctx, err) }()

	if input.RefreshToken == "" {
		return nil, autherror.ErrRefreshInvalid
	}

	claims, err := s.tokenService.VerifyRefreshToken(input.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", autherror.ErrRefreshInvalid, err)
	}

	err = s.repo.WithTx(ctx, func(repo domain.UserRepository) error {
		old, err := repo.DeleteActiveSession(ctx, claims.SessionID, s.now())
		if err != nil {
			return fmt.Errorf("retire session: %w", err)
		}
		if old == nil || old.UserID != claims.UserID {
			return autherror.ErrRefreshInvalid
		}

		// Role and verification state may have changed since the old pair.
		user, err := repo.GetByID(ctx, old.UserID)
		if err != nil {
			return fmt.Errorf("reload user: %w", err)
		}
		if user == nil {
			return autherror.ErrRefreshInvalid
		}

		userAgent, ip := input.UserAgent, input.IPAddress
		if userAgent == "" {
			userAgent = old.UserAgent
		}
		if ip == "" {
			ip = old.IPAddress
		}

		result, err = s.openSession(ctx, repo, user, userAgent, ip)
		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Logout deletes the session behind the access token. An expired token can
// still end its session.
func (s *SessionService) Logout(ctx context.Context, accessToken string) error {
	claims, err := s.tokenService.ParseAccessTokenUnverifiedExpiry(accessToken)
	if err != nil {
		return err
	}

	deleted, err := s.repo.DeleteSession(ctx, claims.SessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if !deleted {
		return autherror.ErrSessionNotFound
	}

	s.publish(ctx, events.New(events.TypeSessionRevoked, claims.UserID, ""))
	return nil
}

// Validate checks signature and expiry only. ErrTokenExpired means the caller
// may try a refresh; ErrTokenInvalid means it must log in again.
func (s *SessionService) Validate(_ context.Context, accessToken string) (*JWTCustomClaims, error) {
	if accessToken == "" {
		return nil, autherror.ErrAuthenticationRequired
	}
	claims, err := s.tokenService.VerifyAccessToken(accessToken)
	if err != nil {
		if errors.Is(err, autherror.ErrTokenExpired) {
			return nil, autherror.ErrTokenExpired
		}
		if errors.Is(err, autherror.ErrTokenInvalid) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", autherror.ErrTokenInvalid, err)
	}
	return claims, nil
}

func (s *SessionService) ListSessions(ctx context.Context, userID string) ([]domain.Session, error) {
	sessions, err := s.repo.ListSessionsByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// RevokeAllSessions logs the user out everywhere.
func (s *SessionService) RevokeAllSessions(ctx context.Context, userID string) error {
	if _, err := s.repo.DeleteSessionsByUserID(ctx, userID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	s.publish(ctx, events.New(events.TypeSessionRevoked, userID, ""))
	return nil
}

func (s *SessionService) openSession(ctx context.Context, repo domain.UserRepository, user *domain.User, userAgent, ip string) (*AuthResult, error) {
	sessionID := uuid.NewString()

	tokens, err := s.tokenService.Generate(TokenIdentity{
		UserID:          user.ID,
		Role:            user.Role,
		IsEmailVerified: user.IsEmailVerified,
		SessionID:       sessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	session := &domain.Session{
		ID:        sessionID,
		UserID:    user.ID,
		UserAgent: userAgent,
		IPAddress: ip,
		CreatedAt: s.now(),
		ExpiresAt: tokens.RefreshExpiresAt,
	}
	if err := repo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	return &AuthResult{User: user, Tokens: tokens, SessionID: sessionID}, nil
}

func (s *SessionService) publish(ctx context.Context, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Printf("warn: failed to publish %s for user %s: %v", event.Type, event.ActorID, err)
	}
}
