package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/securesteps/auth-service/internal/auth/domain"
)

// RegisterRoutes mounts the auth API under /api/v1 and returns that group so
// other packages can add their routes next to it.
func RegisterRoutes(app *fiber.App, h *AuthHandler, mw *Middleware, stream *StreamHandler) fiber.Router {
	api := app.Group("/api/v1")

	api.Post("/register", h.Register)
	api.Post("/otp/verify", h.VerifyOTP)
	api.Post("/otp/resend", h.ResendOTP)
	api.Post("/password/forgot", h.ForgotPassword)
	api.Post("/password/reset", h.ResetPassword)
	api.Post("/login", h.Login)
	api.Post("/refresh", h.Refresh)
	api.Delete("/session", h.Logout)

	auth := mw.RequireAuth()
	api.Get("/me", auth, h.Me)
	api.Get("/sessions", auth, h.Sessions)
	api.Get("/events/stream", auth, stream.Stream)

	// Admin-only endpoints
	admin := api.Group("/admin", auth, mw.RequireRole(domain.RoleAdmin))
	admin.Delete("/user/:id/sessions", h.ForceLogout)
	admin.Get("/user/:id/sessions", h.GetUserSessions)

	return api
}
