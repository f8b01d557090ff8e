package dto

import (
	"time"

	"github.com/securesteps/auth-service/internal/auth/domain"
)

type UserOutput struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	Username        string    `json:"username"`
	Role            string    `json:"role"`
	IsEmailVerified bool      `json:"isEmailVerified"`
	FollowersCount  int       `json:"followersCount"`
	FollowingCount  int       `json:"followingCount"`
	CreatedAt       time.Time `json:"createdAt"`
}

func NewUserOutput(u *domain.User) UserOutput {
	return UserOutput{
		ID:              u.ID,
		Email:           u.Email,
		Username:        u.Username,
		Role:            string(u.Role),
		IsEmailVerified: u.IsEmailVerified,
		FollowersCount:  u.FollowersCount,
		FollowingCount:  u.FollowingCount,
		CreatedAt:       u.CreatedAt,
	}
}

type SessionOutput struct {
	ID        string    `json:"id"`
	IPAddress string    `json:"ipAddress"`
	UserAgent string    `json:"userAgent"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func NewSessionOutputs(sessions []domain.Session) []SessionOutput {
	out := make([]SessionOutput, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionOutput{
			ID:        s.ID,
			IPAddress: s.IPAddress,
			UserAgent: s.UserAgent,
			CreatedAt: s.CreatedAt,
			ExpiresAt: s.ExpiresAt,
		})
	}
	return out
}
