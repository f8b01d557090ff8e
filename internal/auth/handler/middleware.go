package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/securesteps/auth-service/internal/auth/domain"
	"github.com/securesteps/auth-service/internal/auth/dto"
	"github.com/securesteps/auth-service/internal/auth/service"
	autherror "github.com/securesteps/auth-service/internal/errors"
)

const claimsLocalsKey = "auth.claims"

type Middleware struct {
	sessions SessionManager
	cookies  CookieConfig
}

func NewMiddleware(sessions SessionManager, cookies CookieConfig) *Middleware {
	return &Middleware{sessions: sessions, cookies: cookies}
}

// RequireAuth admits requests with a valid access token. An expired access
// token is renewed silently when a refresh cookie is present; the rotated
// cookies go out with the response.
func (m *Middleware) RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		claims, err := m.sessions.Validate(ctx, extractAccessToken(c))

		if errors.Is(err, autherror.ErrTokenExpired) {
			if refreshToken := c.Cookies(RefreshTokenCookie); refreshToken != "" {
				var result *service.AuthResult
				result, err = m.sessions.Refresh(ctx, dto.RefreshInput{
					RefreshToken: refreshToken,
					IPAddress:    c.IP(),
					UserAgent:    string(c.Request().Header.UserAgent()),
				})
				if err == nil {
					m.cookies.setAuthCookies(c, result.Tokens)
					claims, err = m.sessions.Validate(ctx, result.Tokens.AccessToken)
				}
			}
		}

		if err != nil {
			if autherror.IsSessionInvalidating(err) {
				m.cookies.clearAuthCookies(c)
			}
			return err
		}

		c.Locals(claimsLocalsKey, claims)
		return c.Next()
	}
}

// RequireRole must run after RequireAuth.
func (m *Middleware) RequireRole(roles ...domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := ClaimsFrom(c)
		if claims == nil {
			return autherror.ErrAuthenticationRequired
		}
		for _, role := range roles {
			if claims.Role == role {
				return c.Next()
			}
		}
		return autherror.ErrForbidden
	}
}

// ClaimsFrom returns the claims RequireAuth stored on the request, or nil.
func ClaimsFrom(c *fiber.Ctx) *service.JWTCustomClaims {
	claims, _ := c.Locals(claimsLocalsKey).(*service.JWTCustomClaims)
	return claims
}
