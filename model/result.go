package model

import "time"

// LoginResult is returned by a successful login.
type LoginResult struct {
	User   UserIdentity `json:"user"`
	Tokens TokenPair    `json:"tokens"`
}

// RefreshResult is returned by a successful token refresh.
type RefreshResult struct {
	Tokens TokenPair `json:"tokens"`
}

// TokenStats summarises a user's refresh token records.
type TokenStats struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Expired int `json:"expired"`
	Revoked int `json:"revoked"`
	Used    int `json:"used"`
}

// TokenInfo is the introspection view of a token. Inactive tokens only carry Active=false.
type TokenInfo struct {
	Active           bool      `json:"active"`
	TokenType        TokenKind `json:"token_type,omitempty"`
	Subject          string    `json:"sub,omitempty"`
	JTI              string    `json:"jti,omitempty"`
	DeviceID         string    `json:"device_id,omitempty"`
	IssuedAt         time.Time `json:"iat,omitzero"`
	ExpiresAt        time.Time `json:"exp,omitzero"`
	RemainingSeconds int64     `json:"remaining_seconds,omitempty"`
}
