package models

import "time"

// Session backs one issued refresh token. Only the token digest is stored.
type Session struct {
	ID               string
	AccountID        string
	RefreshTokenHash string
	ExpiresAt        time.Time
	CreatedAt        time.Time
}

// Device is a registry row tying a client install to an account.
type Device struct {
	ID         string
	DeviceID   string
	AccountID  string
	Platform   string
	PushToken  *string
	AppVersion *string
	LastSeenAt time.Time
}

// DeviceInfo is what a client reports about itself on login.
type DeviceInfo struct {
	DeviceID   string  `json:"deviceId"`
	Platform   string  `json:"platform"`
	PushToken  *string `json:"pushToken,omitempty"`
	AppVersion *string `json:"appVersion,omitempty"`
}
