package service

import (
	"context"
	"errors"
	"time"

	"go-token-auth/common"
	"go-token-auth/config"
	"go-token-auth/model"
	"go-token-auth/repository"
	"go-token-auth/token"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ClaimsProvider resolves the custom access-token claims (role, permissions, email) of a user.
type ClaimsProvider interface {
	ClaimsFor(ctx context.Context, userID string) (map[string]any, error)
}

// TokenConfig is the policy surface of the TokenService.
type TokenConfig struct {
	AccessTTL            time.Duration
	RefreshTTL           time.Duration
	Leeway               time.Duration
	CheckAccessBlacklist bool
	RevokeFamilyOnReuse  bool
	BindDevice           bool
}

// TokenConfigFrom copies the token policy out of the loaded configuration.
func TokenConfigFrom(cfg config.JWTConfig) TokenConfig {
	return TokenConfig{
		AccessTTL:            cfg.AccessTTL,
		RefreshTTL:           cfg.RefreshTTL,
		Leeway:               cfg.Leeway,
		CheckAccessBlacklist: cfg.CheckAccessBlacklist,
		RevokeFamilyOnReuse:  cfg.RevokeFamilyOnReuse,
		BindDevice:           cfg.BindDevice,
	}
}

// TokenService issues, validates, rotates and revokes token pairs.
//
// A refresh token is usable only while its store record is active. Rotation marks
// the record used; revocation marks it revoked. Both are terminal.
type TokenService struct {
	codec     *token.Codec
	signer    token.Signer
	store     repository.RefreshTokenStore
	blacklist repository.TokenBlacklist
	claims    ClaimsProvider
	cfg       TokenConfig
	log       logrus.FieldLogger
	now       func() time.Time
}

func NewTokenService(codec *token.Codec, signer token.Signer, store repository.RefreshTokenStore,
	blacklist repository.TokenBlacklist, claims ClaimsProvider, cfg TokenConfig, log logrus.FieldLogger) *TokenService {
	// access tokens never outlive their refresh token
	if cfg.AccessTTL > cfg.RefreshTTL {
		cfg.AccessTTL = cfg.RefreshTTL
	}
	return &TokenService{
		codec:     codec,
		signer:    signer,
		store:     store,
		blacklist: blacklist,
		claims:    claims,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// IssueTokenPair creates a new pair for userID and persists the refresh token record.
// Either both tokens are returned and the record is stored, or nothing is stored.
func (s *TokenService) IssueTokenPair(ctx context.Context, userID string, device model.DeviceFingerprint, custom map[string]any) (*model.TokenPair, error) {
	pair, _, err := s.issue(ctx, userID, device, custom, "")
	return pair, err
}

func (s *TokenService) issue(ctx context.Context, userID string, device model.DeviceFingerprint, custom map[string]any, familyID string) (*model.TokenPair, *model.RefreshTokenRecord, error) {
	// tokens carry whole seconds, so the stored record uses the same precision
	now := s.now().UTC().Truncate(time.Second)

	accessClaims, err := s.codec.EncodeClaims(userID, &device, model.KindAccess, custom, now, s.cfg.AccessTTL)
	if err != nil {
		return nil, nil, &common.TokenGenerationError{Op: "encode access claims", Err: err}
	}
	// refresh tokens carry the subject and device only
	refreshClaims, err := s.codec.EncodeClaims(userID, &device, model.KindRefresh, nil, now, s.cfg.RefreshTTL)
	if err != nil {
		return nil, nil, &common.TokenGenerationError{Op: "encode refresh claims", Err: err}
	}

	accessToken, err := s.signer.Sign(accessClaims)
	if err != nil {
		return nil, nil, &common.TokenGenerationError{Op: "sign access token", Err: err}
	}
	refreshToken, err := s.signer.Sign(refreshClaims)
	if err != nil {
		return nil, nil, &common.TokenGenerationError{Op: "sign refresh token", Err: err}
	}

	accessJTI, _ := accessClaims["jti"].(string)
	refreshJTI, _ := refreshClaims["jti"].(string)
	if accessJTI == "" || refreshJTI == "" {
		return nil, nil, &common.TokenGenerationError{Op: "extract jti", Err: errors.New("signed claims carry no jti")}
	}

	if familyID == "" {
		familyID = uuid.NewString()
	}

	accessExpiresAt := now.Add(s.cfg.AccessTTL)
	refreshExpiresAt := now.Add(s.cfg.RefreshTTL)

	record := &model.RefreshTokenRecord{
		JTI:             refreshJTI,
		UserID:          userID,
		TokenHash:       token.HashToken(refreshToken),
		FamilyID:        familyID,
		AccessJTI:       accessJTI,
		AccessExpiresAt: accessExpiresAt,
		Device:          device,
		CreatedAt:       now,
		ExpiresAt:       refreshExpiresAt,
	}
	if err := s.store.Create(ctx, record); err != nil {
		return nil, nil, &common.TokenGenerationError{Op: "persist refresh token", Err: err}
	}

	return &model.TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshExpiresAt: refreshExpiresAt,
		TokenType:        model.TokenTypeBearer,
	}, record, nil
}

// parse verifies integrity and decodes claims. Time windows are not checked here.
func (s *TokenService) parse(tokenString string) (*model.Payload, error) {
	if tokenString == "" {
		return nil, &common.InvalidTokenError{Reason: common.ReasonMalformed, Err: errors.New("empty token")}
	}

	raw, err := s.signer.Verify(tokenString)
	if err != nil {
		reason := common.ReasonSignatureInvalid
		var verr *token.VerificationError
		if errors.As(err, &verr) {
			switch verr.Kind {
			case token.VerifyMalformed:
				reason = common.ReasonMalformed
			case token.VerifyAlgorithmMismatch:
				reason = common.ReasonAlgorithmMismatch
			}
		}
		return nil, &common.InvalidTokenError{Reason: reason, Err: err}
	}

	payload, err := s.codec.DecodeClaims(raw)
	if err != nil {
		var mce *common.MalformedClaimsError
		if errors.As(err, &mce) && mce.Claim == "sub" {
			return nil, &common.InvalidTokenError{Reason: common.ReasonSubjectMissing, Err: err}
		}
		return nil, &common.InvalidTokenError{Reason: common.ReasonClaimsInvalid, Err: err}
	}
	return payload, nil
}

func (s *TokenService) checkClaims(p *model.Payload, kind model.TokenKind, now time.Time) error {
	if p.Issuer != s.codec.Issuer() {
		return &common.InvalidTokenError{Reason: common.ReasonIssuerInvalid}
	}
	audienceOK := false
	for _, aud := range s.codec.Audience() {
		if p.HasAudience(aud) {
			audienceOK = true
			break
		}
	}
	if !audienceOK {
		return &common.InvalidTokenError{Reason: common.ReasonAudienceInvalid}
	}
	if !now.Before(p.ExpiresAt.Add(s.cfg.Leeway)) {
		return &common.TokenExpiredError{ExpiredAt: p.ExpiresAt}
	}
	if p.NotBefore != nil && now.Add(s.cfg.Leeway).Before(*p.NotBefore) {
		return &common.InvalidTokenError{Reason: common.ReasonNotBefore}
	}
	if p.Type() != kind {
		return &common.InvalidTokenError{Reason: common.ReasonClaimsInvalid,
			Err: errors.New("unexpected token type " + string(p.Type()))}
	}
	return nil
}

func (s *TokenService) checkBlacklist(ctx context.Context, jti string) error {
	listed, err := s.blacklist.IsBlacklisted(ctx, jti)
	if err != nil {
		return &common.RefreshTokenError{Reason: common.ReasonStorageFailed, Err: err}
	}
	if listed {
		return &common.InvalidTokenError{Reason: common.ReasonBlacklisted}
	}
	return nil
}

// ValidateAccessToken verifies an access token. The blacklist lookup is governed by
// CheckAccessBlacklist; a lookup failure rejects the token.
func (s *TokenService) ValidateAccessToken(ctx context.Context, tokenString string) (*model.Payload, error) {
	p, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if err := s.checkClaims(p, model.KindAccess, s.now()); err != nil {
		return nil, err
	}
	if s.cfg.CheckAccessBlacklist {
		if err := s.checkBlacklist(ctx, p.JTI); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// ValidateRefreshToken verifies a refresh token and requires an active store record for it.
func (s *TokenService) ValidateRefreshToken(ctx context.Context, tokenString string) (*model.Payload, error) {
	p, _, err := s.validateRefresh(ctx, tokenString)
	return p, err
}

func (s *TokenService) validateRefresh(ctx context.Context, tokenString string) (*model.Payload, *model.RefreshTokenRecord, error) {
	p, err := s.parse(tokenString)
	if err != nil {
		return nil, nil, err
	}
	now := s.now()
	if err := s.checkClaims(p, model.KindRefresh, now); err != nil {
		return nil, nil, err
	}
	if err := s.checkBlacklist(ctx, p.JTI); err != nil {
		return nil, nil, err
	}

	rec, err := s.store.FindByJTI(ctx, p.JTI)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return nil, nil, rejectRefresh(common.ReasonClaimsInvalid, common.ReasonNotFound, err)
		}
		return nil, nil, &common.RefreshTokenError{Reason: common.ReasonStorageFailed, Err: err}
	}

	switch rec.Status(now) {
	case model.RecordRevoked:
		return nil, nil, rejectRefresh(common.ReasonBlacklisted, common.ReasonRevoked, repository.ErrRecordRevoked)
	case model.RecordUsed:
		s.handleReuse(ctx, rec)
		return nil, nil, rejectRefresh(common.ReasonClaimsInvalid, common.ReasonAlreadyUsed, repository.ErrRecordUsed)
	case model.RecordExpired:
		return nil, nil, &common.TokenExpiredError{ExpiredAt: rec.ExpiresAt}
	}
	if rec.UserID != p.Subject {
		return nil, nil, rejectRefresh(common.ReasonClaimsInvalid, common.ReasonUserMismatch, nil)
	}
	if !token.HashMatches(tokenString, rec.TokenHash) {
		return nil, nil, rejectRefresh(common.ReasonClaimsInvalid, common.ReasonNotFound, repository.ErrTokenHashMismatch)
	}
	return p, rec, nil
}

// rejectRefresh keeps the store-level reason underneath the token-level one.
func rejectRefresh(tokenReason, storeReason common.Reason, err error) error {
	return &common.InvalidTokenError{
		Reason: tokenReason,
		Err:    &common.RefreshTokenError{Reason: storeReason, Err: err},
	}
}

// handleReuse reacts to a rotated-away refresh token being presented again.
func (s *TokenService) handleReuse(ctx context.Context, rec *model.RefreshTokenRecord) {
	log := s.log.WithFields(logrus.Fields{
		"event":     "refresh_token_reuse",
		"user_id":   rec.UserID,
		"family_id": rec.FamilyID,
		"jti":       rec.JTI,
	})
	if !s.cfg.RevokeFamilyOnReuse || rec.FamilyID == "" {
		log.Warn("Rotated refresh token presented again")
		return
	}

	// The marker goes in before the family is listed, so a rotation racing with this
	// revocation either shows up in the listing or sees the marker after its Create.
	now := s.now()
	marker := &model.BlacklistEntry{
		JTI: model.FamilyMarkerJTI(rec.FamilyID), TokenType: model.KindFamily,
		ExpiresAt: s.blacklistUntil(now.Add(s.cfg.RefreshTTL)), BlacklistedAt: now,
		Reason: model.ReasonTokenReuse, UserID: rec.UserID,
	}
	if err := s.blacklist.Add(ctx, marker); err != nil {
		log.WithError(err).Error("Failed to mark token family as revoked")
	}

	records, err := s.store.FindByUserID(ctx, rec.UserID, true)
	if err != nil {
		log.WithError(err).Error("Failed to list token family before revocation")
	}
	for _, r := range records {
		if r.FamilyID == rec.FamilyID {
			s.blacklistRecord(ctx, r, model.ReasonTokenReuse, now)
		}
	}

	n, err := s.store.RevokeFamily(ctx, rec.FamilyID, model.ReasonTokenReuse)
	if err != nil {
		log.WithError(err).Error("Failed to revoke token family")
		return
	}
	log.WithField("revoked", n).Warn("Rotated refresh token presented again, token family revoked")
}

// RefreshTokens exchanges a refresh token for a new pair in the same family. The old
// record is consumed atomically, so of several concurrent calls with the same token
// exactly one succeeds.
func (s *TokenService) RefreshTokens(ctx context.Context, oldRefreshToken string, device model.DeviceFingerprint) (*model.TokenPair, error) {
	p, rec, err := s.validateRefresh(ctx, oldRefreshToken)
	if err != nil {
		return nil, err
	}
	log := s.log.WithFields(logrus.Fields{
		"user_id":   rec.UserID,
		"family_id": rec.FamilyID,
		"device_id": device.DeviceID,
	})

	if device.DeviceID == "" {
		device = rec.Device
	} else if s.cfg.BindDevice && rec.Device.DeviceID != "" && !rec.Device.SameDevice(device) {
		log.WithFields(logrus.Fields{
			"event":           "refresh_rejected",
			"bound_device_id": rec.Device.DeviceID,
		}).Warn("Refresh token presented from a different device")
		return nil, &common.RefreshTokenError{Reason: common.ReasonDeviceMismatch}
	}

	var custom map[string]any
	if s.claims != nil {
		custom, err = s.claims.ClaimsFor(ctx, p.Subject)
		if err != nil {
			return nil, &common.RefreshTokenError{Reason: common.ReasonRotationFailed, Err: err}
		}
	}

	consumed, err := s.store.Consume(ctx, rec.JTI, token.HashToken(oldRefreshToken), s.now())
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrRecordUsed):
		if consumed != nil {
			s.handleReuse(ctx, consumed)
		}
		return nil, rejectRefresh(common.ReasonClaimsInvalid, common.ReasonAlreadyUsed, err)
	case errors.Is(err, repository.ErrRecordRevoked):
		return nil, rejectRefresh(common.ReasonBlacklisted, common.ReasonRevoked, err)
	case errors.Is(err, repository.ErrRecordExpired):
		return nil, &common.TokenExpiredError{ExpiredAt: rec.ExpiresAt}
	case errors.Is(err, repository.ErrRecordNotFound), errors.Is(err, repository.ErrTokenHashMismatch):
		return nil, rejectRefresh(common.ReasonClaimsInvalid, common.ReasonNotFound, err)
	default:
		return nil, &common.RefreshTokenError{Reason: common.ReasonStorageFailed, Err: err}
	}

	pair, created, err := s.issue(ctx, consumed.UserID, device, custom, consumed.FamilyID)
	if err != nil {
		log.WithError(err).Error("Failed to issue rotated token pair")
		return nil, err
	}
	if err := s.checkFamilyAfterRotation(ctx, created); err != nil {
		log.WithError(err).WithField("event", "refresh_rejected").Warn("Token family revoked during rotation")
		return nil, err
	}

	log.WithField("event", "token_refreshed").Info("Refresh token rotated")
	return pair, nil
}

// checkFamilyAfterRotation revokes a freshly created record when its family was revoked
// for reuse while the rotation was in flight. A failed lookup also revokes it.
func (s *TokenService) checkFamilyAfterRotation(ctx context.Context, rec *model.RefreshTokenRecord) error {
	if !s.cfg.RevokeFamilyOnReuse {
		return nil
	}
	revoked, err := s.blacklist.IsBlacklisted(ctx, model.FamilyMarkerJTI(rec.FamilyID))
	if err == nil && !revoked {
		return nil
	}
	if rerr := s.RevokeRecord(ctx, rec, model.ReasonTokenReuse); rerr != nil {
		s.log.WithError(rerr).WithField("jti", rec.JTI).Error("Failed to revoke record issued into a revoked family")
	}
	if err != nil {
		return &common.RefreshTokenError{Reason: common.ReasonStorageFailed, Err: err}
	}
	return rejectRefresh(common.ReasonBlacklisted, common.ReasonRevoked, repository.ErrRecordRevoked)
}

// blacklistUntil is how long a blacklist entry must outlive exp: validation accepts
// a token up to Leeway past its expiry.
func (s *TokenService) blacklistUntil(exp time.Time) time.Time {
	return exp.Add(s.cfg.Leeway)
}

// blacklistRecord denylists a record's refresh jti and, while it is still accepted, the
// access token issued alongside it. Failures are logged only.
func (s *TokenService) blacklistRecord(ctx context.Context, rec *model.RefreshTokenRecord, reason string, now time.Time) {
	entries := make([]*model.BlacklistEntry, 0, 2)
	if s.blacklistUntil(rec.ExpiresAt).After(now) && rec.RevokedAt == nil && rec.UsedAt == nil {
		entries = append(entries, &model.BlacklistEntry{
			JTI: rec.JTI, TokenType: model.KindRefresh, ExpiresAt: s.blacklistUntil(rec.ExpiresAt),
			BlacklistedAt: now, Reason: reason, UserID: rec.UserID,
		})
	}
	if rec.AccessJTI != "" && s.blacklistUntil(rec.AccessExpiresAt).After(now) {
		entries = append(entries, &model.BlacklistEntry{
			JTI: rec.AccessJTI, TokenType: model.KindAccess, ExpiresAt: s.blacklistUntil(rec.AccessExpiresAt),
			BlacklistedAt: now, Reason: reason, UserID: rec.UserID,
		})
	}
	for _, e := range entries {
		if err := s.blacklist.Add(ctx, e); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"jti":        e.JTI,
				"token_type": e.TokenType,
			}).Error("Failed to blacklist token")
		}
	}
}

// RevokeToken blacklists a correctly signed token, expired or not, and revokes its store
// record when it is a refresh token. It reports false instead of failing.
func (s *TokenService) RevokeToken(ctx context.Context, tokenString, reason string) bool {
	p, err := s.parse(tokenString)
	if err != nil {
		s.log.WithError(err).Debug("Refusing to revoke an unverifiable token")
		return false
	}
	now := s.now()
	log := s.log.WithFields(logrus.Fields{
		"event":      "token_revoked",
		"user_id":    p.Subject,
		"jti":        p.JTI,
		"token_type": p.Type(),
		"reason":     reason,
	})

	if until := s.blacklistUntil(p.ExpiresAt); until.After(now) {
		entry := &model.BlacklistEntry{
			JTI: p.JTI, TokenType: p.Type(), ExpiresAt: until,
			BlacklistedAt: now, Reason: reason, UserID: p.Subject,
		}
		if err := s.blacklist.Add(ctx, entry); err != nil {
			log.WithError(err).Error("Failed to blacklist token")
			return false
		}
	}

	if p.Type() == model.KindRefresh {
		if err := s.store.Revoke(ctx, p.JTI, reason); err != nil {
			log.WithError(err).Error("Failed to revoke refresh token record")
			return false
		}
	}

	log.Info("Token revoked")
	return true
}

// RevokeRecord revokes one stored refresh token and blacklists its live tokens.
func (s *TokenService) RevokeRecord(ctx context.Context, rec *model.RefreshTokenRecord, reason string) error {
	s.blacklistRecord(ctx, rec, reason, s.now())
	if err := s.store.Revoke(ctx, rec.JTI, reason); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"event":   "token_revoked",
		"user_id": rec.UserID,
		"jti":     rec.JTI,
		"reason":  reason,
	}).Info("Refresh token record revoked")
	return nil
}

// RevokeAllUserTokens revokes every active refresh token of a user and blacklists the
// access tokens still live from any of the user's sessions. It returns the number of
// revoked records, 0 on failure.
func (s *TokenService) RevokeAllUserTokens(ctx context.Context, userID, reason string) int {
	return s.revokeMatching(ctx, userID, reason, "", func(ctx context.Context) (int, error) {
		return s.store.RevokeAllByUserID(ctx, userID, reason, "")
	})
}

// RevokeDeviceTokens is RevokeAllUserTokens restricted to one device.
func (s *TokenService) RevokeDeviceTokens(ctx context.Context, userID, deviceID, reason string) int {
	return s.revokeMatching(ctx, userID, reason, deviceID, func(ctx context.Context) (int, error) {
		return s.store.RevokeAllByDevice(ctx, userID, deviceID, reason)
	})
}

func (s *TokenService) revokeMatching(ctx context.Context, userID, reason, deviceID string, revoke func(context.Context) (int, error)) int {
	log := s.log.WithFields(logrus.Fields{
		"event":   "tokens_revoked",
		"user_id": userID,
		"reason":  reason,
	})
	if deviceID != "" {
		log = log.WithField("device_id", deviceID)
	}

	records, err := s.store.FindByUserID(ctx, userID, true)
	if err != nil {
		log.WithError(err).Error("Failed to list refresh tokens for revocation")
		return 0
	}
	now := s.now()
	for _, rec := range records {
		if deviceID != "" && rec.Device.DeviceID != deviceID {
			continue
		}
		s.blacklistRecord(ctx, rec, reason, now)
	}

	n, err := revoke(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to revoke refresh tokens")
		return 0
	}
	log.WithField("revoked", n).Info("Refresh tokens revoked")
	return n
}

// IsTokenRevoked reports whether a token may no longer be used. Tokens that cannot be
// verified, or whose state cannot be read, count as revoked.
func (s *TokenService) IsTokenRevoked(ctx context.Context, tokenString string) bool {
	p, err := s.parse(tokenString)
	if err != nil {
		return true
	}
	listed, err := s.blacklist.IsBlacklisted(ctx, p.JTI)
	if err != nil || listed {
		return true
	}
	if p.Type() != model.KindRefresh {
		return false
	}
	rec, err := s.store.FindByJTI(ctx, p.JTI)
	if err != nil {
		return true
	}
	return rec.RevokedAt != nil || rec.UsedAt != nil
}

// GetTokenRemainingTime returns the whole seconds left before the token expires,
// or 0 for expired and unverifiable tokens.
func (s *TokenService) GetTokenRemainingTime(tokenString string) time.Duration {
	p, err := s.parse(tokenString)
	if err != nil {
		return 0
	}
	return p.RemainingAt(s.now()).Truncate(time.Second)
}

// IsTokenNearExpiry reports whether at most threshold is left. Unverifiable tokens are near expiry.
func (s *TokenService) IsTokenNearExpiry(tokenString string, threshold time.Duration) bool {
	p, err := s.parse(tokenString)
	if err != nil {
		return true
	}
	return p.RemainingAt(s.now()) <= threshold
}

func (s *TokenService) IsTokenOwnedBy(tokenString, userID string) bool {
	p, err := s.parse(tokenString)
	return err == nil && userID != "" && p.Subject == userID
}

func (s *TokenService) IsTokenFromDevice(tokenString string, device model.DeviceFingerprint) bool {
	p, err := s.parse(tokenString)
	return err == nil && p.DeviceID() != "" && p.DeviceID() == device.DeviceID
}

// Subject returns the verified subject of a token regardless of its expiry.
func (s *TokenService) Subject(tokenString string) (string, bool) {
	p, err := s.parse(tokenString)
	if err != nil {
		return "", false
	}
	return p.Subject, true
}

// Inspect runs full validation for whichever kind the token claims to be.
func (s *TokenService) Inspect(ctx context.Context, tokenString string) *model.TokenInfo {
	p, err := s.parse(tokenString)
	if err != nil {
		return &model.TokenInfo{Active: false}
	}

	switch p.Type() {
	case model.KindAccess:
		p, err = s.ValidateAccessToken(ctx, tokenString)
	case model.KindRefresh:
		p, err = s.ValidateRefreshToken(ctx, tokenString)
	default:
		return &model.TokenInfo{Active: false}
	}
	if err != nil {
		return &model.TokenInfo{Active: false}
	}

	return &model.TokenInfo{
		Active:           true,
		TokenType:        p.Type(),
		Subject:          p.Subject,
		JTI:              p.JTI,
		DeviceID:         p.DeviceID(),
		IssuedAt:         p.IssuedAt,
		ExpiresAt:        p.ExpiresAt,
		RemainingSeconds: int64(p.RemainingAt(s.now()) / time.Second),
	}
}
