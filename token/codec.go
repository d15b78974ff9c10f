// Package token maps between signed token strings, raw claim sets and model.Payload.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"go-token-auth/common"
	"go-token-auth/model"

	"github.com/golang-jwt/jwt/v5"
)

// Registered claim names. Custom claims may not reuse them.
const (
	claimJTI      = "jti"
	claimSubject  = "sub"
	claimIssuer   = "iss"
	claimAudience = "aud"
	claimIssued   = "iat"
	claimExpires  = "exp"
	claimNotBef   = "nbf"
)

var reservedClaims = map[string]struct{}{
	claimJTI: {}, claimSubject: {}, claimIssuer: {}, claimAudience: {},
	claimIssued: {}, claimExpires: {}, claimNotBef: {},
	model.ClaimType: {}, model.ClaimDeviceID: {},
}

// Codec assembles and parses claim sets. It never signs anything.
type Codec struct {
	issuer   string
	audience []string
}

// NewCodec creates a codec stamping every claim set with issuer and audience.
func NewCodec(issuer string, audience ...string) *Codec {
	return &Codec{issuer: issuer, audience: audience}
}

// Issuer returns the configured iss value.
func (c *Codec) Issuer() string { return c.issuer }

// Audience returns the configured aud values.
func (c *Codec) Audience() []string { return c.audience }

// EncodeClaims builds the claim set for a token of the given kind. A fresh jti is
// generated on every call. Custom claims colliding with registered names are dropped.
func (c *Codec) EncodeClaims(subject string, device *model.DeviceFingerprint, kind model.TokenKind, custom map[string]any, issuedAt time.Time, ttl time.Duration) (jwt.MapClaims, error) {
	if subject == "" {
		return nil, &common.MalformedClaimsError{Claim: claimSubject, Detail: "empty subject"}
	}
	if ttl <= 0 {
		return nil, &common.MalformedClaimsError{Claim: claimExpires, Detail: "non-positive ttl"}
	}
	if kind != model.KindAccess && kind != model.KindRefresh {
		return nil, &common.MalformedClaimsError{Claim: model.ClaimType, Detail: fmt.Sprintf("unknown token kind %q", kind)}
	}

	jti, err := NewJTI()
	if err != nil {
		return nil, err
	}

	claims := jwt.MapClaims{}
	for k, v := range custom {
		if _, reserved := reservedClaims[k]; reserved {
			continue
		}
		claims[k] = v
	}

	iat := issuedAt.Unix()
	claims[claimJTI] = jti
	claims[claimSubject] = subject
	claims[claimIssuer] = c.issuer
	claims[claimAudience] = append([]string(nil), c.audience...)
	claims[claimIssued] = iat
	claims[claimNotBef] = iat
	claims[claimExpires] = issuedAt.Add(ttl).Unix()
	claims[model.ClaimType] = string(kind)
	if device != nil && device.DeviceID != "" {
		claims[model.ClaimDeviceID] = device.DeviceID
	}

	return claims, nil
}

// DecodeClaims converts a verified claim set into a Payload. It does not check
// issuer, audience or time windows; that is policy for the caller.
func (c *Codec) DecodeClaims(claims map[string]any) (*model.Payload, error) {
	jti, err := requiredString(claims, claimJTI)
	if err != nil {
		return nil, err
	}
	sub, err := requiredString(claims, claimSubject)
	if err != nil {
		return nil, err
	}
	iss, err := requiredString(claims, claimIssuer)
	if err != nil {
		return nil, err
	}
	aud, err := audience(claims)
	if err != nil {
		return nil, err
	}
	iat, err := timestamp(claims, claimIssued, true)
	if err != nil {
		return nil, err
	}
	exp, err := timestamp(claims, claimExpires, true)
	if err != nil {
		return nil, err
	}
	if !exp.After(*iat) {
		return nil, &common.InvalidTimestampError{Claim: claimExpires, Value: claims[claimExpires]}
	}
	nbf, err := timestamp(claims, claimNotBef, false)
	if err != nil {
		return nil, err
	}

	custom := make(map[string]any, len(claims))
	for k, v := range claims {
		switch k {
		case claimJTI, claimSubject, claimIssuer, claimAudience, claimIssued, claimExpires, claimNotBef:
			continue
		}
		custom[k] = v
	}

	return &model.Payload{
		JTI:       jti,
		Subject:   sub,
		Issuer:    iss,
		Audience:  aud,
		IssuedAt:  *iat,
		ExpiresAt: *exp,
		NotBefore: nbf,
		Custom:    custom,
	}, nil
}

// NewJTI returns 128 random bits, hex encoded.
func NewJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate jti: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func requiredString(claims map[string]any, name string) (string, error) {
	raw, ok := claims[name]
	if !ok || raw == nil {
		return "", &common.MalformedClaimsError{Claim: name, Detail: "missing"}
	}
	s, ok := raw.(string)
	if !ok {
		return "", &common.MalformedClaimsError{Claim: name, Detail: fmt.Sprintf("expected string, got %T", raw)}
	}
	if s == "" {
		return "", &common.MalformedClaimsError{Claim: name, Detail: "empty"}
	}
	return s, nil
}

func audience(claims map[string]any) ([]string, error) {
	raw, ok := claims[claimAudience]
	if !ok || raw == nil {
		return nil, &common.MalformedClaimsError{Claim: claimAudience, Detail: "missing"}
	}

	var out []string
	switch v := raw.(type) {
	case string:
		out = []string{v}
	case []string:
		out = append(out, v...)
	case jwt.ClaimStrings:
		out = append(out, v...)
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, &common.MalformedClaimsError{Claim: claimAudience, Detail: fmt.Sprintf("expected string entry, got %T", item)}
			}
			out = append(out, s)
		}
	default:
		return nil, &common.MalformedClaimsError{Claim: claimAudience, Detail: fmt.Sprintf("expected string or list, got %T", raw)}
	}

	if len(out) == 0 {
		return nil, &common.MalformedClaimsError{Claim: claimAudience, Detail: "empty"}
	}
	return out, nil
}

// timestamp reads an epoch-seconds claim. A missing required claim is a shape error;
// a present but unparsable value is a timestamp error.
func timestamp(claims map[string]any, name string, required bool) (*time.Time, error) {
	raw, ok := claims[name]
	if !ok || raw == nil {
		if required {
			return nil, &common.MalformedClaimsError{Claim: name, Detail: "missing"}
		}
		return nil, nil
	}

	var secs float64
	switch v := raw.(type) {
	case float64:
		secs = v
	case float32:
		secs = float64(v)
	case int:
		secs = float64(v)
	case int64:
		secs = float64(v)
	case int32:
		secs = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, &common.InvalidTimestampError{Claim: name, Value: raw}
		}
		secs = f
	case *jwt.NumericDate:
		if v == nil {
			return nil, &common.InvalidTimestampError{Claim: name, Value: raw}
		}
		t := v.Time
		return &t, nil
	default:
		return nil, &common.InvalidTimestampError{Claim: name, Value: raw}
	}

	if math.IsNaN(secs) || math.IsInf(secs, 0) || secs < 0 {
		return nil, &common.InvalidTimestampError{Claim: name, Value: raw}
	}

	whole, frac := math.Modf(secs)
	t := time.Unix(int64(whole), int64(frac*1e9))
	return &t, nil
}
