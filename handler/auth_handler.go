package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go-token-auth/common"
	"go-token-auth/logger"
	"go-token-auth/model"

	"github.com/sirupsen/logrus"
)

// Authenticator is the orchestrator surface exposed over HTTP.
type Authenticator interface {
	AccessTokenValidator
	Login(ctx context.Context, req model.LoginRequest, device model.DeviceFingerprint) (*model.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string, device model.DeviceFingerprint) (*model.RefreshResult, error)
	Logout(ctx context.Context, req model.LogoutRequest) bool
	RevokeAllUserTokens(ctx context.Context, userID, reason string) int
	RevokeDeviceTokens(ctx context.Context, userID, deviceID, reason string) int
	GetUserTokenStats(ctx context.Context, userID string) (*model.TokenStats, error)
	CleanupExpiredTokens(ctx context.Context, before *time.Time) int
	CleanupRevokedTokens(ctx context.Context, days int) int
	GetUserFromToken(ctx context.Context, accessToken string) (*model.UserIdentity, error)
	IntrospectToken(ctx context.Context, tokenString string) *model.TokenInfo
}

type AuthHandler struct {
	auth                 Authenticator
	revokedRetentionDays int
}

func NewAuthHandler(auth Authenticator, revokedRetentionDays int) *AuthHandler {
	return &AuthHandler{auth: auth, revokedRetentionDays: revokedRetentionDays}
}

// deviceFromRequest builds the fingerprint from the X-Device-* headers, the user agent and the client IP.
func deviceFromRequest(r *http.Request) model.DeviceFingerprint {
	return model.NewDeviceFingerprint(
		r.Header.Get("X-Device-ID"),
		r.Header.Get("X-Device-Name"),
		clientIP(r),
		r.UserAgent(),
		r.Header.Get("X-Platform"),
	)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) *common.AppError {
	var req model.LoginRequest
	if !common.ValidateAndDecode(w, r, &req) {
		return nil
	}

	result, err := h.auth.Login(r.Context(), req, deviceFromRequest(r))
	if err != nil {
		return common.FromAuthError(err)
	}

	writeJSON(w, http.StatusOK, result)
	return nil
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) *common.AppError {
	var req model.RefreshRequest
	if !common.ValidateAndDecode(w, r, &req) {
		return nil
	}

	result, err := h.auth.Refresh(r.Context(), req.RefreshToken, deviceFromRequest(r))
	if err != nil {
		return common.FromAuthError(err)
	}

	writeJSON(w, http.StatusOK, result)
	return nil
}

// Logout accepts an optional bearer token and an optional body. It never fails.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) *common.AppError {
	var req model.LogoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		logger.Log.WithError(err).Debug("Ignoring unreadable logout body")
	}
	if tok, appErr := bearerToken(r); appErr == nil {
		req.AccessToken = tok
	}

	h.auth.Logout(r.Context(), req)
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *AuthHandler) Introspect(w http.ResponseWriter, r *http.Request) *common.AppError {
	var req model.IntrospectRequest
	if !common.ValidateAndDecode(w, r, &req) {
		return nil
	}

	writeJSON(w, http.StatusOK, h.auth.IntrospectToken(r.Context(), req.Token))
	return nil
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) *common.AppError {
	identity, err := h.auth.GetUserFromToken(r.Context(), accessTokenFrom(r.Context()))
	if err != nil {
		return common.FromAuthError(err)
	}

	writeJSON(w, http.StatusOK, identity)
	return nil
}

func (h *AuthHandler) TokenStats(w http.ResponseWriter, r *http.Request) *common.AppError {
	payload, ok := PayloadFrom(r.Context())
	if !ok {
		return common.NewAppError(http.StatusUnauthorized, common.MsgLoginAgain, nil)
	}

	stats, err := h.auth.GetUserTokenStats(r.Context(), payload.Subject)
	if err != nil {
		return common.NewAppError(http.StatusInternalServerError, "Could not load token statistics", err)
	}

	writeJSON(w, http.StatusOK, stats)
	return nil
}

func (h *AuthHandler) RevokeAll(w http.ResponseWriter, r *http.Request) *common.AppError {
	payload, ok := PayloadFrom(r.Context())
	if !ok {
		return common.NewAppError(http.StatusUnauthorized, common.MsgLoginAgain, nil)
	}

	revoked := h.auth.RevokeAllUserTokens(r.Context(), payload.Subject, model.ReasonLogoutAll)
	logger.Log.WithFields(logrus.Fields{
		"user_id": payload.Subject,
		"revoked": revoked,
	}).Info("Revoke-all request served")

	writeJSON(w, http.StatusOK, map[string]int{"revoked": revoked})
	return nil
}

func (h *AuthHandler) RevokeDevice(w http.ResponseWriter, r *http.Request) *common.AppError {
	payload, ok := PayloadFrom(r.Context())
	if !ok {
		return common.NewAppError(http.StatusUnauthorized, common.MsgLoginAgain, nil)
	}

	var req model.RevokeDeviceRequest
	if !common.ValidateAndDecode(w, r, &req) {
		return nil
	}

	revoked := h.auth.RevokeDeviceTokens(r.Context(), payload.Subject, req.DeviceID, req.Reason)
	writeJSON(w, http.StatusOK, map[string]int{"revoked": revoked})
	return nil
}

// Cleanup runs both maintenance passes. An empty body uses "now" and the configured retention.
func (h *AuthHandler) Cleanup(w http.ResponseWriter, r *http.Request) *common.AppError {
	req := model.CleanupRequest{RevokedDays: h.revokedRetentionDays}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return common.NewAppError(http.StatusBadRequest, "Invalid request body", nil)
	}
	if err := common.ValidateStruct(req); err != nil {
		return common.NewAppError(http.StatusBadRequest, err.Error(), nil)
	}

	expired := h.auth.CleanupExpiredTokens(r.Context(), req.Before)
	revoked := h.auth.CleanupRevokedTokens(r.Context(), req.RevokedDays)
	writeJSON(w, http.StatusOK, map[string]int{
		"expired_deleted": expired,
		"revoked_deleted": revoked,
	})
	return nil
}
