package dto

type RegisterInput struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Username string `json:"username" validate:"required,min=3,max=32"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	// Admins are never self-registered.
	Role string `json:"role" validate:"omitempty,oneof=student agent"`
}

type RegisterOutput struct {
	UserID  string `json:"userId"`
	Email   string `json:"email"`
	OTPSent bool   `json:"otpSent"`
}
