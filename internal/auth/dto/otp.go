package dto

type VerifyOTPInput struct {
	UserID  string `json:"userId" validate:"required,uuid"`
	OTPCode string `json:"otpCode" validate:"required,numeric,min=1,max=10"`
	Purpose string `json:"purpose" validate:"required,oneof=signup_verification login_verification password_reset"`
}

type ResendOTPInput struct {
	Email   string `json:"email" validate:"required,email"`
	Purpose string `json:"purpose" validate:"required,oneof=signup_verification login_verification password_reset"`
}

type ForgotPasswordInput struct {
	Email string `json:"email" validate:"required,email"`
}

type ForgotPasswordOutput struct {
	UserID  string `json:"userId"`
	OTPSent bool   `json:"otpSent"`
}

type ResetPasswordInput struct {
	UserID   string `json:"userId" validate:"required,uuid"`
	OTPCode  string `json:"otpCode" validate:"required,numeric,min=1,max=10"`
	Purpose  string `json:"purpose" validate:"required,eq=password_reset"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}
