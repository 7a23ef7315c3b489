package dto

type RegisterRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	RecoveryEmail string `json:"recoveryEmail,omitempty"`
}

type RegisterResponse struct {
	UserID                    string `json:"userId"`
	RequiresEmailVerification bool   `json:"requiresEmailVerification"`
}

type VerifyEmailRequest struct {
	Token string `json:"token"`
}

type ResendVerificationRequest struct {
	Email string `json:"email"`
}
