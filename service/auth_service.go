package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-token-auth/common"
	"go-token-auth/model"
	"go-token-auth/repository"

	"github.com/sirupsen/logrus"
)

// CredentialChecker verifies a login. It returns nil, nil when the credentials do not match.
type CredentialChecker interface {
	Validate(ctx context.Context, identifier, secret string) (*model.UserIdentity, error)
}

// UserDirectory resolves token subjects to identities. Unknown subjects give nil, nil.
type UserDirectory interface {
	FindByID(ctx context.Context, userID string) (*model.UserIdentity, error)
}

// DefaultMaxActiveTokens is the per-user ceiling of concurrently active refresh tokens.
const DefaultMaxActiveTokens = 50

// AuthService runs the login, refresh and logout flows on top of the TokenService
// together with the administrative token operations.
type AuthService struct {
	tokens          *TokenService
	credentials     CredentialChecker
	users           UserDirectory
	store           repository.RefreshTokenStore
	blacklist       repository.TokenBlacklist
	maxActiveTokens int
	log             logrus.FieldLogger
	now             func() time.Time
}

func NewAuthService(tokens *TokenService, credentials CredentialChecker, users UserDirectory,
	store repository.RefreshTokenStore, blacklist repository.TokenBlacklist, maxActiveTokens int, log logrus.FieldLogger) *AuthService {
	if maxActiveTokens <= 0 {
		maxActiveTokens = DefaultMaxActiveTokens
	}
	return &AuthService{
		tokens:          tokens,
		credentials:     credentials,
		users:           users,
		store:           store,
		blacklist:       blacklist,
		maxActiveTokens: maxActiveTokens,
		log:             log,
		now:             time.Now,
	}
}

// Login checks credentials, applies the admission policy and issues a new pair.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest, device model.DeviceFingerprint) (*model.LoginResult, error) {
	log := s.log.WithFields(logrus.Fields{
		"device_id":  device.DeviceID,
		"ip_address": device.IPAddress,
	})

	if err := common.ValidateStruct(req); err != nil {
		return nil, &common.AuthenticationError{Reason: common.ReasonInvalidRequest, Err: err}
	}

	identity, err := s.credentials.Validate(ctx, req.Identifier, req.Password)
	if err != nil {
		if errors.Is(err, ErrAccountDisabled) {
			log.WithFields(logrus.Fields{"event": "login_failed", "reason": common.ReasonAccountDisabled}).Warn("Login rejected")
			return nil, &common.AuthenticationError{Reason: common.ReasonAccountDisabled, Err: err}
		}
		log.WithError(err).Error("Credential check failed")
		return nil, fmt.Errorf("credential check failed: %w", err)
	}
	if identity == nil {
		log.WithFields(logrus.Fields{"event": "login_failed", "reason": common.ReasonInvalidCredentials}).Warn("Login rejected")
		return nil, &common.AuthenticationError{Reason: common.ReasonInvalidCredentials}
	}
	if !identity.Active {
		log.WithFields(logrus.Fields{"event": "login_failed", "reason": common.ReasonAccountDisabled, "user_id": identity.ID}).Warn("Login rejected")
		return nil, &common.AuthenticationError{Reason: common.ReasonAccountDisabled}
	}

	log = log.WithField("user_id", identity.ID)
	if err := s.admit(ctx, identity.ID, log); err != nil {
		return nil, err
	}

	pair, err := s.tokens.IssueTokenPair(ctx, identity.ID, device, IdentityClaims(identity))
	if err != nil {
		log.WithError(err).Error("Failed to issue token pair")
		return nil, err
	}

	log.WithField("event", "login_succeeded").Info("User logged in")
	return &model.LoginResult{User: *identity, Tokens: *pair}, nil
}

// admit purges the user's expired records and evicts the oldest active sessions so that
// the new one fits under the ceiling.
func (s *AuthService) admit(ctx context.Context, userID string, log logrus.FieldLogger) error {
	now := s.now()
	if _, err := s.store.DeleteExpiredByUserID(ctx, userID, now); err != nil {
		log.WithError(err).Warn("Failed to purge expired refresh tokens")
	}

	records, err := s.store.FindByUserID(ctx, userID, false)
	if err != nil {
		log.WithError(err).Error("Failed to count active refresh tokens")
		return &common.RefreshTokenError{Reason: common.ReasonStorageFailed, Err: err}
	}
	active := records[:0]
	for _, rec := range records {
		if rec.IsActive(now) {
			active = append(active, rec)
		}
	}

	excess := len(active) - s.maxActiveTokens + 1
	for i := 0; i < excess; i++ {
		rec := active[i]
		if err := s.tokens.RevokeRecord(ctx, rec, model.ReasonMaxTokensExceeded); err != nil {
			log.WithError(err).WithField("jti", rec.JTI).Error("Failed to evict oldest session")
			continue
		}
		log.WithFields(logrus.Fields{
			"event":      "session_evicted",
			"jti":        rec.JTI,
			"device_id":  rec.Device.DeviceID,
			"created_at": rec.CreatedAt,
		}).Info("Oldest session evicted")
	}
	return nil
}

// Refresh rotates a refresh token. Token rejections become invalid_refresh_token,
// anything else token_refresh_failed.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, device model.DeviceFingerprint) (*model.RefreshResult, error) {
	if refreshToken == "" {
		return nil, &common.AuthenticationError{Reason: common.ReasonInvalidRequest, Err: errors.New("refresh token is required")}
	}

	pair, err := s.tokens.RefreshTokens(ctx, refreshToken, device)
	if err != nil {
		reason := common.ReasonTokenRefreshFailed
		switch {
		case errors.Is(err, ErrAccountDisabled):
			reason = common.ReasonAccountDisabled
		case common.IsTokenRejection(err):
			reason = common.ReasonInvalidRefreshToken
		}
		entry := s.log.WithFields(logrus.Fields{
			"event":     "refresh_rejected",
			"reason":    reason,
			"device_id": device.DeviceID,
		}).WithError(err)
		if reason == common.ReasonTokenRefreshFailed {
			entry.Error("Token refresh failed")
		} else {
			entry.Warn("Token refresh rejected")
		}
		return nil, &common.AuthenticationError{Reason: reason, Err: err}
	}
	return &model.RefreshResult{Tokens: *pair}, nil
}

// Logout revokes what the caller names and always reports success.
func (s *AuthService) Logout(ctx context.Context, req model.LogoutRequest) (ok bool) {
	log := s.log.WithField("event", "logout")
	defer func() {
		if p := recover(); p != nil {
			log.WithField("panic", p).Error("Recovered from panic during logout")
		}
		ok = true
	}()

	var userID string
	if sub, valid := s.tokens.Subject(req.AccessToken); valid {
		userID = sub
	} else if sub, valid := s.tokens.Subject(req.RefreshToken); valid {
		userID = sub
	}
	log = log.WithField("user_id", userID)

	// ending every session needs a token that is still accepted, not just a valid signature
	var sessionUser string
	if req.RevokeAll {
		if p, err := s.tokens.ValidateAccessToken(ctx, req.AccessToken); err == nil {
			sessionUser = p.Subject
		} else if p, err := s.tokens.ValidateRefreshToken(ctx, req.RefreshToken); err == nil {
			sessionUser = p.Subject
		} else {
			log.Warn("Revoke-all logout without a live token, revoking the presented tokens only")
		}
	}

	switch {
	case sessionUser != "":
		log = log.WithField("revoked", s.tokens.RevokeAllUserTokens(ctx, sessionUser, model.ReasonLogoutAll))
	case req.RefreshToken != "":
		if req.AccessToken != "" && userID != "" && !s.tokens.IsTokenOwnedBy(req.RefreshToken, userID) {
			log.Warn("Refresh token presented at logout belongs to another user")
			break
		}
		s.tokens.RevokeToken(ctx, req.RefreshToken, model.ReasonLogout)
	}

	if req.AccessToken != "" {
		s.tokens.RevokeToken(ctx, req.AccessToken, model.ReasonLogout)
	}

	log.Info("User logged out")
	return true
}

func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (*model.Payload, error) {
	return s.tokens.ValidateAccessToken(ctx, accessToken)
}

func (s *AuthService) ValidateRefreshToken(ctx context.Context, refreshToken string) (*model.Payload, error) {
	return s.tokens.ValidateRefreshToken(ctx, refreshToken)
}

// RevokeRefreshToken revokes a single refresh token. It reports false on any failure.
func (s *AuthService) RevokeRefreshToken(ctx context.Context, refreshToken, reason string) bool {
	if reason == "" {
		reason = model.ReasonLogout
	}
	return s.tokens.RevokeToken(ctx, refreshToken, reason)
}

func (s *AuthService) RevokeAllUserTokens(ctx context.Context, userID, reason string) int {
	if reason == "" {
		reason = model.ReasonLogoutAll
	}
	return s.tokens.RevokeAllUserTokens(ctx, userID, reason)
}

func (s *AuthService) RevokeDeviceTokens(ctx context.Context, userID, deviceID, reason string) int {
	if deviceID == "" {
		return 0
	}
	if reason == "" {
		reason = model.ReasonDeviceRevoked
	}
	return s.tokens.RevokeDeviceTokens(ctx, userID, deviceID, reason)
}

// GetUserTokenStats tallies every stored record of a user by status.
func (s *AuthService) GetUserTokenStats(ctx context.Context, userID string) (*model.TokenStats, error) {
	records, err := s.store.FindByUserID(ctx, userID, true)
	if err != nil {
		return nil, &common.RefreshTokenError{Reason: common.ReasonStorageFailed, Err: err}
	}

	now := s.now()
	stats := &model.TokenStats{Total: len(records)}
	for _, rec := range records {
		switch rec.Status(now) {
		case model.RecordActive:
			stats.Active++
		case model.RecordExpired:
			stats.Expired++
		case model.RecordRevoked:
			stats.Revoked++
		case model.RecordUsed:
			stats.Used++
		}
	}
	return stats, nil
}

// CleanupExpiredTokens deletes records expired at or before before (now when nil) and purges
// stale blacklist entries. A cutoff in the future is clamped to now.
func (s *AuthService) CleanupExpiredTokens(ctx context.Context, before *time.Time) int {
	now := s.now()
	cutoff := now
	if before != nil && before.Before(now) {
		cutoff = *before
	}
	log := s.log.WithFields(logrus.Fields{"event": "cleanup", "before": cutoff})

	n, err := s.store.Cleanup(ctx, cutoff)
	if err != nil {
		log.WithError(err).Error("Failed to clean up expired refresh tokens")
		n = 0
	}
	purged, err := s.blacklist.Purge(ctx, now)
	if err != nil {
		log.WithError(err).Error("Failed to purge blacklist")
	}

	log.WithFields(logrus.Fields{"deleted": n, "blacklist_purged": purged}).Info("Expired tokens cleaned up")
	return n
}

// CleanupRevokedTokens deletes used and revoked records older than days days.
func (s *AuthService) CleanupRevokedTokens(ctx context.Context, days int) int {
	if days < 0 {
		days = 0
	}
	cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour)
	log := s.log.WithFields(logrus.Fields{"event": "cleanup", "before": cutoff, "days": days})

	n, err := s.store.CleanupRevoked(ctx, cutoff)
	if err != nil {
		log.WithError(err).Error("Failed to clean up revoked refresh tokens")
		return 0
	}
	log.WithField("deleted", n).Info("Revoked tokens cleaned up")
	return n
}

// GetUserFromToken validates an access token and resolves its subject.
func (s *AuthService) GetUserFromToken(ctx context.Context, accessToken string) (*model.UserIdentity, error) {
	p, err := s.tokens.ValidateAccessToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	identity, err := s.users.FindByID(ctx, p.Subject)
	if err != nil {
		return nil, fmt.Errorf("user lookup failed: %w", err)
	}
	if identity == nil {
		return nil, &common.AuthenticationError{Reason: common.ReasonTokenInvalid}
	}
	if !identity.Active {
		return nil, &common.AuthenticationError{Reason: common.ReasonAccountDisabled}
	}
	return identity, nil
}

func (s *AuthService) IntrospectToken(ctx context.Context, tokenString string) *model.TokenInfo {
	return s.tokens.Inspect(ctx, tokenString)
}
