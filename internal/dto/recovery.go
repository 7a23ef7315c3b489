package dto

type RecoveryRequest struct {
	RecoveryEmail string `json:"recoveryEmail"`
}

// UpdateRecoveryEmailRequest sets the account's recovery address. An empty
// value clears it.
type UpdateRecoveryEmailRequest struct {
	RecoveryEmail string `json:"recoveryEmail"`
}

type RecoveryConfirmRequest struct {
	Token    string `json:"token"`
	NewEmail string `json:"newEmail"`
}

type RecoveryConfirmResponse struct {
	RequiresEmailVerification bool `json:"requiresEmailVerification"`
}
