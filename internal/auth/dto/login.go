package dto

import "time"

type LoginInput struct {
	// Identifier is an email address or a username. Email is accepted for
	// clients that still post {email, password}.
	Identifier string `json:"identifier" validate:"required_without=Email,max=254"`
	Email      string `json:"email" validate:"omitempty,email"`
	Password   string `json:"password" validate:"required"`
	IPAddress  string `json:"-"`
	UserAgent  string `json:"-"`
}

func (in LoginInput) LoginIdentifier() string {
	if in.Identifier != "" {
		return in.Identifier
	}
	return in.Email
}

// AuthOutput is returned by login and refresh. The same tokens are also set
// as HttpOnly cookies.
type AuthOutput struct {
	User             UserOutput `json:"user"`
	AccessToken      string     `json:"accessToken"`
	RefreshToken     string     `json:"refreshToken"`
	AccessExpiresAt  time.Time  `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time  `json:"refreshExpiresAt"`
}
