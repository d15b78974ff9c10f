// file: model/request.go

package model

import "time"

// LoginRequest defines the payload for user authentication.
// Identifier is a username or an email address.
type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required,max=255"`
	Password   string `json:"password" validate:"required,min=8,max=128"`
}

// RefreshRequest carries the refresh token being exchanged.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// LogoutRequest names what should be revoked. Every field is optional.
type LogoutRequest struct {
	AccessToken  string `json:"-"`
	RefreshToken string `json:"refresh_token"`
	RevokeAll    bool   `json:"revoke_all"`
}

// IntrospectRequest asks for the state of an arbitrary token.
type IntrospectRequest struct {
	Token string `json:"token" validate:"required"`
}

// RevokeDeviceRequest revokes every token bound to one of the caller's devices.
type RevokeDeviceRequest struct {
	DeviceID string `json:"device_id" validate:"required,max=255"`
	Reason   string `json:"reason" validate:"omitempty,max=64"`
}

// CleanupRequest drives the maintenance endpoint. Zero values mean "now" and "default retention".
type CleanupRequest struct {
	Before      *time.Time `json:"before"`
	RevokedDays int        `json:"revoked_days" validate:"gte=0"`
}

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}
