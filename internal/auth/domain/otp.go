package domain

import "time"

type OTPPurpose string

const (
	PurposeSignupVerification OTPPurpose = "signup_verification"
	PurposeLoginVerification  OTPPurpose = "login_verification"
	PurposePasswordReset      OTPPurpose = "password_reset"
)

func (p OTPPurpose) Valid() bool {
	switch p {
	case PurposeSignupVerification, PurposeLoginVerification, PurposePasswordReset:
		return true
	}
	return false
}

type OTPChannel string

const OTPChannelEmail OTPChannel = "email"

type OTP struct {
	ID         string
	UserID     string
	Code       string
	Purpose    OTPPurpose
	Type       OTPChannel
	ExpiresAt  time.Time
	IsVerified bool
	VerifiedAt *time.Time
	CreatedAt  time.Time
}
