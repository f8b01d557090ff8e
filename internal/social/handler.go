package social

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/securesteps/auth-service/internal/auth/dto"
	"github.com/securesteps/auth-service/internal/auth/handler"
	autherror "github.com/securesteps/auth-service/internal/errors"
)

type FollowService interface {
	Follow(ctx context.Context, followerID, followingID string) error
	Unfollow(ctx context.Context, followerID, followingID string) error
	Followers(ctx context.Context, userID string, limit, offset int) ([]Connection, error)
	Following(ctx context.Context, userID string, limit, offset int) ([]Connection, error)
}

type Handler struct {
	follows FollowService
}

func NewHandler(follows FollowService) *Handler {
	return &Handler{follows: follows}
}

type pageQuery struct {
	Limit  int `query:"limit"`
	Offset int `query:"offset"`
}

func (h *Handler) Follow(c *fiber.Ctx) error {
	followerID, targetID, err := actorAndTarget(c)
	if err != nil {
		return err
	}
	if err := h.follows.Follow(c.UserContext(), followerID, targetID); err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(dto.Response{Success: true, Message: "followed"})
}

func (h *Handler) Unfollow(c *fiber.Ctx) error {
	followerID, targetID, err := actorAndTarget(c)
	if err != nil {
		return err
	}
	if err := h.follows.Unfollow(c.UserContext(), followerID, targetID); err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(dto.Response{Success: true, Message: "unfollowed"})
}

func (h *Handler) Followers(c *fiber.Ctx) error {
	return h.list(c, h.follows.Followers)
}

func (h *Handler) Following(c *fiber.Ctx) error {
	return h.list(c, h.follows.Following)
}

func (h *Handler) list(c *fiber.Ctx, fetch func(context.Context, string, int, int) ([]Connection, error)) error {
	userID, err := handler.PathUserID(c)
	if err != nil {
		return err
	}

	var page pageQuery
	if err := c.QueryParser(&page); err != nil {
		return &handler.ValidationError{Details: []string{"limit, offset: must be integers"}}
	}

	conns, err := fetch(c.UserContext(), userID, page.Limit, page.Offset)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(dto.Response{Success: true, Data: conns})
}

func actorAndTarget(c *fiber.Ctx) (string, string, error) {
	claims := handler.ClaimsFrom(c)
	if claims == nil {
		return "", "", autherror.ErrAuthenticationRequired
	}
	targetID, err := handler.PathUserID(c)
	if err != nil {
		return "", "", err
	}
	return claims.UserID, targetID, nil
}

// RegisterRoutes mounts the follow endpoints on the API group. auth must
// authenticate the caller.
func RegisterRoutes(api fiber.Router, h *Handler, auth fiber.Handler) {
	users := api.Group("/users", auth)
	users.Post("/:id/follow", h.Follow)
	users.Delete("/:id/follow", h.Unfollow)
	users.Get("/:id/followers", h.Followers)
	users.Get("/:id/following", h.Following)
}
