package model

import "time"

// TokenKind separates access tokens from refresh tokens via the "type" claim.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// Custom claim names shared by the codec and the services.
const (
	ClaimType        = "type"
	ClaimDeviceID    = "device_id"
	ClaimRole        = "role"
	ClaimPermissions = "permissions"
	ClaimEmail       = "email"
)

// Payload is the decoded claim set of a verified token.
type Payload struct {
	JTI       string
	Subject   string
	Issuer    string
	Audience  []string
	IssuedAt  time.Time
	ExpiresAt time.Time
	NotBefore *time.Time
	Custom    map[string]any
}

func (p *Payload) stringClaim(name string) string {
	if p == nil || p.Custom == nil {
		return ""
	}
	s, _ := p.Custom[name].(string)
	return s
}

func (p *Payload) Type() TokenKind  { return TokenKind(p.stringClaim(ClaimType)) }
func (p *Payload) DeviceID() string { return p.stringClaim(ClaimDeviceID) }
func (p *Payload) Role() string     { return p.stringClaim(ClaimRole) }
func (p *Payload) Email() string    { return p.stringClaim(ClaimEmail) }

// Permissions accepts both []string (freshly encoded) and []any (decoded from JSON).
func (p *Payload) Permissions() []string {
	if p == nil || p.Custom == nil {
		return nil
	}
	switch v := p.Custom[ClaimPermissions].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// HasAudience reports whether aud is one of the token audiences.
func (p *Payload) HasAudience(aud string) bool {
	for _, a := range p.Audience {
		if a == aud {
			return true
		}
	}
	return false
}

// RemainingAt returns the lifetime left at now, never negative.
func (p *Payload) RemainingAt(now time.Time) time.Duration {
	left := p.ExpiresAt.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}
