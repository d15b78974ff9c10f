package common

import (
	"errors"
	"fmt"
	"time"
)

// Reason is a machine-readable code attached to authentication and token errors.
type Reason string

// InvalidTokenError reasons.
const (
	ReasonMalformed         Reason = "malformed"
	ReasonSignatureInvalid  Reason = "signature_invalid"
	ReasonAlgorithmMismatch Reason = "algorithm_mismatch"
	ReasonIssuerInvalid     Reason = "issuer_invalid"
	ReasonAudienceInvalid   Reason = "audience_invalid"
	ReasonSubjectMissing    Reason = "subject_missing"
	ReasonClaimsInvalid     Reason = "claims_invalid"
	ReasonBlacklisted       Reason = "blacklisted"
	ReasonNotBefore         Reason = "not_before"
)

// RefreshTokenError reasons.
const (
	ReasonNotFound       Reason = "not_found"
	ReasonRevoked        Reason = "revoked"
	ReasonAlreadyUsed    Reason = "already_used"
	ReasonDeviceMismatch Reason = "device_mismatch"
	ReasonUserMismatch   Reason = "user_mismatch"
	ReasonStorageFailed  Reason = "storage_failed"
	ReasonRotationFailed Reason = "rotation_failed"
	ReasonLimitExceeded  Reason = "limit_exceeded"
)

// AuthenticationError reasons.
const (
	ReasonInvalidCredentials  Reason = "invalid_credentials"
	ReasonAccountDisabled     Reason = "account_disabled"
	ReasonInvalidRequest      Reason = "invalid_request"
	ReasonInvalidRefreshToken Reason = "invalid_refresh_token"
	ReasonTokenRefreshFailed  Reason = "token_refresh_failed"
	ReasonTokenInvalid        Reason = "token_invalid"
)

// AuthenticationError reports a failed use case: bad credentials, a disabled account
// or a refresh that could not be completed.
type AuthenticationError struct {
	Reason Reason
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// InvalidTokenError is returned when a token fails verification or is no longer acceptable.
type InvalidTokenError struct {
	Reason Reason
	Err    error
}

func (e *InvalidTokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid token: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid token: %s", e.Reason)
}

func (e *InvalidTokenError) Unwrap() error { return e.Err }

// TokenExpiredError is returned for a correctly signed token past its exp claim.
type TokenExpiredError struct {
	ExpiredAt time.Time
}

func (e *TokenExpiredError) Error() string {
	return fmt.Sprintf("token expired at %s", e.ExpiredAt.UTC().Format(time.RFC3339))
}

// RefreshTokenError reports store-level refresh token failures.
type RefreshTokenError struct {
	Reason Reason
	Err    error
}

func (e *RefreshTokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("refresh token error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("refresh token error: %s", e.Reason)
}

func (e *RefreshTokenError) Unwrap() error { return e.Err }

// TokenGenerationError wraps any failure while building, signing or persisting a token pair.
type TokenGenerationError struct {
	Op  string
	Err error
}

func (e *TokenGenerationError) Error() string {
	return fmt.Sprintf("token generation failed during %s: %v", e.Op, e.Err)
}

func (e *TokenGenerationError) Unwrap() error { return e.Err }

// MalformedClaimsError is returned when a required claim is missing or has the wrong shape.
type MalformedClaimsError struct {
	Claim  string
	Detail string
}

func (e *MalformedClaimsError) Error() string {
	return fmt.Sprintf("malformed claim %q: %s", e.Claim, e.Detail)
}

// InvalidTimestampError is returned when iat, exp or nbf is not a valid epoch-seconds value.
type InvalidTimestampError struct {
	Claim string
	Value any
}

func (e *InvalidTimestampError) Error() string {
	return fmt.Sprintf("invalid timestamp in claim %q: %v", e.Claim, e.Value)
}

// InvalidTokenReason extracts the reason of an InvalidTokenError anywhere in err's chain.
func InvalidTokenReason(err error) (Reason, bool) {
	var ite *InvalidTokenError
	if errors.As(err, &ite) {
		return ite.Reason, true
	}
	return "", false
}

// IsTokenRejection reports whether err means "the presented token is not acceptable",
// as opposed to an internal failure.
func IsTokenRejection(err error) bool {
	var (
		ite *InvalidTokenError
		tee *TokenExpiredError
		rte *RefreshTokenError
	)
	if errors.As(err, &rte) {
		return rte.Reason != ReasonStorageFailed
	}
	return errors.As(err, &ite) || errors.As(err, &tee)
}
