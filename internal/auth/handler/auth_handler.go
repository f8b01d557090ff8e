package handler

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/securesteps/auth-service/internal/auth/dto"
	"github.com/securesteps/auth-service/internal/auth/service"
	autherror "github.com/securesteps/auth-service/internal/errors"
)

type AuthHandler struct {
	accounts AccountService
	sessions SessionManager
	cookies  CookieConfig
}

func NewAuthHandler(accounts AccountService, sessions SessionManager, cookies CookieConfig) *AuthHandler {
	return &AuthHandler{accounts: accounts, sessions: sessions, cookies: cookies}
}

func ok(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(dto.Response{Success: true, Message: message, Data: data})
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var input dto.RegisterInput
	if err := ParseBody(c, &input); err != nil {
		return err
	}

	out, err := h.accounts.Register(c.UserContext(), input)
	if err != nil {
		return err
	}

	return ok(c, fiber.StatusCreated, "registration successful, check your email for the verification code", out)
}

func (h *AuthHandler) VerifyOTP(c *fiber.Ctx) error {
	var input dto.VerifyOTPInput
	if err := ParseBody(c, &input); err != nil {
		return err
	}

	if err := h.accounts.VerifyOTP(c.UserContext(), input); err != nil {
		return err
	}

	return ok(c, fiber.StatusOK, "otp verified", nil)
}

func (h *AuthHandler) ResendOTP(c *fiber.Ctx) error {
	var input dto.ResendOTPInput
	if err := ParseBody(c, &input); err != nil {
		return err
	}

	if err := h.accounts.ResendOTP(c.UserContext(), input); err != nil {
		return err
	}

	return ok(c, fiber.StatusOK, "a new code has been sent", nil)
}

func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var input dto.ForgotPasswordInput
	if err := ParseBody(c, &input); err != nil {
		return err
	}

	out, err := h.accounts.ForgotPassword(c.UserContext(), input)
	if err != nil {
		return err
	}

	return ok(c, fiber.StatusOK, "password reset code sent", out)
}

// ResetPassword also drops the caller's cookies: every session of the user
// is revoked with the old password.
func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var input dto.ResetPasswordInput
	if err := ParseBody(c, &input); err != nil {
		return err
	}

	if err := h.accounts.ResetPassword(c.UserContext(), input); err != nil {
		return err
	}

	h.cookies.clearAuthCookies(c)
	return ok(c, fiber.StatusOK, "password has been reset, please log in again", nil)
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var input dto.LoginInput
	if err := ParseBody(c, &input); err != nil {
		return err
	}

	// Capture metadata
	input.IPAddress = c.IP()
	input.UserAgent = string(c.Request().Header.UserAgent())

	result, err := h.sessions.Login(c.UserContext(), input)
	if err != nil {
		return err
	}

	h.cookies.setAuthCookies(c, result.Tokens)
	return ok(c, fiber.StatusOK, "login successful", authOutput(result))
}

// Refresh reads the refresh token from its cookie, falling back to the JSON
// body for clients that do not keep cookies.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	input := dto.RefreshInput{RefreshToken: c.Cookies(RefreshTokenCookie)}
	if input.RefreshToken == "" && len(c.Body()) > 0 {
		if err := c.BodyParser(&input); err != nil {
			return &ValidationError{Details: []string{"body: must be a valid JSON object"}}
		}
	}
	input.IPAddress = c.IP()
	input.UserAgent = string(c.Request().Header.UserAgent())

	result, err := h.sessions.Refresh(c.UserContext(), input)
	if err != nil {
		if autherror.IsSessionInvalidating(err) {
			h.cookies.clearAuthCookies(c)
		}
		return err
	}

	h.cookies.setAuthCookies(c, result.Tokens)
	return ok(c, fiber.StatusOK, "token refreshed", authOutput(result))
}

// Logout always succeeds from the client's point of view: cookies are cleared
// whether or not a session was found.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if token := extractAccessToken(c); token != "" {
		err := h.sessions.Logout(c.UserContext(), token)
		if err != nil && autherror.KindOf(err) == autherror.KindInternal {
			log.Printf("warn: logout failed: %v", err)
		}
	}

	h.cookies.clearAuthCookies(c)
	return ok(c, fiber.StatusOK, "logged out", nil)
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	claims := ClaimsFrom(c)
	if claims == nil {
		return autherror.ErrAuthenticationRequired
	}

	user, err := h.accounts.GetUser(c.UserContext(), claims.UserID)
	if err != nil {
		return err
	}

	return ok(c, fiber.StatusOK, "", dto.NewUserOutput(user))
}

func (h *AuthHandler) Sessions(c *fiber.Ctx) error {
	claims := ClaimsFrom(c)
	if claims == nil {
		return autherror.ErrAuthenticationRequired
	}
	return h.listSessions(c, claims.UserID)
}

// ForceLogout revokes every session of the user in the path. Admin only.
func (h *AuthHandler) ForceLogout(c *fiber.Ctx) error {
	userID, err := PathUserID(c)
	if err != nil {
		return err
	}

	if err := h.sessions.RevokeAllSessions(c.UserContext(), userID); err != nil {
		return err
	}

	return ok(c, fiber.StatusOK, "all sessions revoked", nil)
}

func (h *AuthHandler) GetUserSessions(c *fiber.Ctx) error {
	userID, err := PathUserID(c)
	if err != nil {
		return err
	}
	return h.listSessions(c, userID)
}

func (h *AuthHandler) listSessions(c *fiber.Ctx, userID string) error {
	sessions, err := h.sessions.ListSessions(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, "", dto.NewSessionOutputs(sessions))
}

// PathUserID reads and checks the :id route parameter.
func PathUserID(c *fiber.Ctx) (string, error) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", &ValidationError{Details: []string{"id: must be a UUID"}}
	}
	return id, nil
}

func authOutput(result *service.AuthResult) dto.AuthOutput {
	return dto.AuthOutput{
		User:             dto.NewUserOutput(result.User),
		AccessToken:      result.Tokens.AccessToken,
		RefreshToken:     result.Tokens.RefreshToken,
		AccessExpiresAt:  result.Tokens.AccessExpiresAt,
		RefreshExpiresAt: result.Tokens.RefreshExpiresAt,
	}
}
