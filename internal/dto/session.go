package dto

import "time"

type SessionInfo struct {
	ID           string    `json:"id"`
	DeviceType   string    `json:"deviceType"`
	Browser      string    `json:"browser"`
	OS           string    `json:"os"`
	IP           string    `json:"ip"`
	Location     string    `json:"location"`
	IsCurrent    bool      `json:"isCurrent"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	CreatedAt    time.Time `json:"createdAt"`
}

type SessionListResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}

// BroadcastLogoutRequest is the admin trigger for a platform-wide logout
// event pushed to every connected socket.
type BroadcastLogoutRequest struct {
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// SetUserDisabledRequest flips the admin kill switch for one account.
type SetUserDisabledRequest struct {
	Disabled bool `json:"disabled"`
}
