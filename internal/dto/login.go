package dto

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries exactly one of: Tokens (full success),
// RequiresVerification (unverified account, fresh token mailed), or
// RequiresTwoFactor (password accepted, second factor pending).
type LoginResponse struct {
	Tokens               *TokenResponse `json:"tokens,omitempty"`
	RequiresVerification bool           `json:"requiresVerification,omitempty"`
	RequiresTwoFactor    bool           `json:"requiresTwoFactor,omitempty"`
	UserID               string         `json:"userId,omitempty"`
	TwoFactorMethod      string         `json:"twoFactorMethod,omitempty"`
}

type TwoFactorLoginRequest struct {
	UserID string `json:"userId"`
	Code   string `json:"code"`
}
