package model

import "time"

// BlacklistEntry marks a token id as revoked until the token would have expired anyway.
type BlacklistEntry struct {
	JTI           string    `json:"jti"`
	TokenType     TokenKind `json:"token_type"`
	ExpiresAt     time.Time `json:"expires_at"`
	BlacklistedAt time.Time `json:"blacklisted_at"`
	Reason        string    `json:"reason"`
	UserID        string    `json:"user_id"`
}

// Revocation reasons recorded on blacklist entries and refresh token records.
const (
	ReasonLogout            = "logout"
	ReasonLogoutAll         = "logout_all"
	ReasonMaxTokensExceeded = "max_tokens_exceeded"
	ReasonTokenReuse        = "refresh_token_reuse"
	ReasonDeviceRevoked     = "device_revoked"
	ReasonAdmin             = "admin_revoked"
)

// KindFamily tags the blacklist entry that marks a whole token family as revoked.
const KindFamily TokenKind = "family"

// FamilyMarkerJTI is the blacklist key of a revoked token family.
func FamilyMarkerJTI(familyID string) string {
	return "family:" + familyID
}
