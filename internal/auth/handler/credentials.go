package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

type credentialSource func(c *fiber.Ctx) string

// accessTokenSources are tried in order; the first non-empty value wins.
var accessTokenSources = []credentialSource{
	fromCookie(AccessTokenCookie),
	fromBearerHeader,
}

func fromCookie(name string) credentialSource {
	return func(c *fiber.Ctx) string {
		return c.Cookies(name)
	}
}

func fromBearerHeader(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func extractAccessToken(c *fiber.Ctx) string {
	for _, source := range accessTokenSources {
		if token := source(c); token != "" {
			return token
		}
	}
	return ""
}
