package domain

import "time"

type Role string

const (
	RoleStudent Role = "student"
	RoleAgent   Role = "agent"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleAgent, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID              string
	Email           string
	Username        string
	PasswordHash    string
	Role            Role
	IsEmailVerified bool
	IsPhoneVerified bool
	OTPRetryCount   int
	OTPBlockedUntil *time.Time
	FollowersCount  int
	FollowingCount  int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OTPBlocked reports whether OTP verification is locked for the user at now.
func (u *User) OTPBlocked(now time.Time) bool {
	return u.OTPBlockedUntil != nil && u.OTPBlockedUntil.After(now)
}

type Session struct {
	ID        string
	UserID    string
	UserAgent string
	IPAddress string
	CreatedAt time.Time
	ExpiresAt time.Time
}
