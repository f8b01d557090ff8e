package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/securesteps/auth-service/internal/auth/service"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

// CookieConfig controls how the token pair travels as cookies.
type CookieConfig struct {
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (cc CookieConfig) cookie(name, value string, ttl time.Duration) *fiber.Cookie {
	return &fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HTTPOnly: true,
		Secure:   cc.Secure,
		SameSite: fiber.CookieSameSiteStrictMode,
	}
}

func (cc CookieConfig) setAuthCookies(c *fiber.Ctx, tokens *service.TokenPair) {
	c.Cookie(cc.cookie(AccessTokenCookie, tokens.AccessToken, cc.AccessTTL))
	c.Cookie(cc.cookie(RefreshTokenCookie, tokens.RefreshToken, cc.RefreshTTL))
}

// clearAuthCookies expires both cookies. fasthttp drops a non-positive
// max-age, so the expiry date does the work.
func (cc CookieConfig) clearAuthCookies(c *fiber.Ctx) {
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie} {
		ck := cc.cookie(name, "", 0)
		ck.Expires = time.Unix(0, 0)
		c.Cookie(ck)
	}
}
