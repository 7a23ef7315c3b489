package dto

type TwoFactorSetupRequest struct {
	Method string `json:"method"` // "totp" (default) or "email"
}

type TwoFactorSetupResponse struct {
	Method       string   `json:"method"`
	SecretBase32 string   `json:"secret,omitempty"`
	OtpauthURI   string   `json:"otpauthUri,omitempty"`
	BackupCodes  []string `json:"backupCodes,omitempty"`
}

type TwoFactorEnableRequest struct {
	Method string `json:"method,omitempty"` // defaults to "totp"
	Code   string `json:"code"`
}

type TwoFactorDisableRequest struct {
	Password string `json:"password,omitempty"`
	Code     string `json:"code,omitempty"`
}

type TwoFactorValidation struct {
	IsValid      bool `json:"isValid"`
	IsBackupCode bool `json:"isBackupCode"`
}
