package service

//go:generate mockgen -destination=../../mocks/mock_token_generator.go -package=mocks github.com/securesteps/auth-service/internal/auth/service TokenGenerator

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/securesteps/auth-service/internal/auth/domain"
	autherror "github.com/securesteps/auth-service/internal/errors"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

type TokenGenerator interface {
	Generate(identity TokenIdentity) (*TokenPair, error)
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	VerifyAccessToken(tokenString string) (*JWTCustomClaims, error)
	VerifyRefreshToken(tokenString string) (*JWTCustomClaims, error)
	// ParseAccessTokenUnverifiedExpiry checks the signature but accepts expired
	// tokens. Logout uses it so a stale cookie can still end its session.
	ParseAccessTokenUnverifiedExpiry(tokenString string) (*JWTCustomClaims, error)
}

// TokenIdentity is what both tokens of a pair embed.
type TokenIdentity struct {
	UserID          string
	Role            domain.Role
	IsEmailVerified bool
	SessionID       string
}

type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

type TokenService struct {
	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration

	now func() time.Time
}

type JWTCustomClaims struct {
	jwt.RegisteredClaims
	UserID          string      `json:"user_id"`
	Role            domain.Role `json:"role"`
	IsEmailVerified bool        `json:"is_email_verified"`
	SessionID       string      `json:"sid"`
	TokenType       string      `json:"typ"`
}

func NewTokenService(accessSecret, refreshSecret string, accessMinutes, refreshMinutes int) *TokenService {
	return &TokenService{
		AccessTokenSecret:  accessSecret,
		RefreshTokenSecret: refreshSecret,
		AccessTokenExpiry:  time.Duration(accessMinutes) * time.Minute,
		RefreshTokenExpiry: time.Duration(refreshMinutes) * time.Minute,
		now:                time.Now,
	}
}

// SetClock replaces the time source used for issuing and verifying tokens.
func (ts *TokenService) SetClock(now func() time.Time) {
	ts.now = now
}

func (ts *TokenService) Generate(identity TokenIdentity) (*TokenPair, error) {
	now := ts.now()

	accessToken, accessExp, err := ts.IssueAccessToken(identity, now)
	if err != nil {
		return nil, err
	}
	refreshToken, refreshExp, err := ts.IssueRefreshToken(identity, now)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (ts *TokenService) IssueAccessToken(identity TokenIdentity, now time.Time) (string, time.Time, error) {
	return ts.issue(identity, TokenTypeAccess, ts.AccessTokenSecret, now, ts.AccessTokenExpiry)
}

func (ts *TokenService) IssueRefreshToken(identity TokenIdentity, now time.Time) (string, time.Time, error) {
	return ts.issue(identity, TokenTypeRefresh, ts.RefreshTokenSecret, now, ts.RefreshTokenExpiry)
}

func (ts *TokenService) issue(identity TokenIdentity, typ, secret string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	expiresAt := now.Add(ttl)
	claims := JWTCustomClaims{
		UserID:          identity.UserID,
		Role:            identity.Role,
		IsEmailVerified: identity.IsEmailVerified,
		SessionID:       identity.SessionID,
		TokenType:       typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, expiresAt, nil
}

func (ts *TokenService) GetAccessTokenExpiry() time.Duration {
	return ts.AccessTokenExpiry
}

func (ts *TokenService) GetRefreshTokenExpiry() time.Duration {
	return ts.RefreshTokenExpiry
}

// VerifyAccessToken parses and validates the given access token string.
func (ts *TokenService) VerifyAccessToken(tokenString string) (*JWTCustomClaims, error) {
	return ts.verify(tokenString, TokenTypeAccess, ts.AccessTokenSecret, true)
}

// VerifyRefreshToken parses and validates the given refresh token string.
func (ts *TokenService) VerifyRefreshToken(tokenString string) (*JWTCustomClaims, error) {
	return ts.verify(tokenString, TokenTypeRefresh, ts.RefreshTokenSecret, true)
}

func (ts *TokenService) ParseAccessTokenUnverifiedExpiry(tokenString string) (*JWTCustomClaims, error) {
	return ts.verify(tokenString, TokenTypeAccess, ts.AccessTokenSecret, false)
}

func (ts *TokenService) verify(tokenString, typ, secret string, checkExpiry bool) (*JWTCustomClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(ts.now),
		jwt.WithIssuedAt(),
	}
	if checkExpiry {
		opts = append(opts, jwt.WithExpirationRequired())
	} else {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	claims := &JWTCustomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Ensure the token's signing method is HMAC.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, classifyJWTError(err)
	}

	if !token.Valid {
		return nil, autherror.ErrTokenInvalid
	}
	if claims.TokenType != typ || claims.UserID == "" || claims.SessionID == "" {
		return nil, autherror.ErrTokenInvalid
	}

	return claims, nil
}

func classifyJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return autherror.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return autherror.ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return autherror.ErrTokenSignatureInvalid
	default:
		return fmt.Errorf("%w: %v", autherror.ErrTokenInvalid, err)
	}
}
