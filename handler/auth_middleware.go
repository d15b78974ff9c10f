package handler

import (
	"context"
	"net/http"
	"strings"

	"go-token-auth/common"
	"go-token-auth/logger"
	"go-token-auth/model"

	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	PayloadKey     contextKey = "payload"
	AccessTokenKey contextKey = "accessToken"
)

// AccessTokenValidator is the slice of the auth service the middleware needs.
type AccessTokenValidator interface {
	ValidateAccessToken(ctx context.Context, accessToken string) (*model.Payload, error)
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header.
func bearerToken(r *http.Request) (string, *common.AppError) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", common.NewAppError(http.StatusUnauthorized, "Authorization header is required", nil)
	}

	headerParts := strings.Fields(authHeader)
	if len(headerParts) != 2 || !strings.EqualFold(headerParts[0], "bearer") {
		return "", common.NewAppError(http.StatusUnauthorized, "Invalid authorization header format", nil)
	}
	return headerParts[1], nil
}

// AuthMiddleware validates the bearer access token and stores its payload in the request context.
func AuthMiddleware(validator AccessTokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, appErr := bearerToken(r)
			if appErr != nil {
				appErr.Send(w)
				return
			}

			payload, err := validator.ValidateAccessToken(r.Context(), tokenString)
			if err != nil {
				reason, _ := common.InvalidTokenReason(err)
				logger.Log.WithFields(logrus.Fields{
					"path":   r.URL.Path,
					"reason": reason,
				}).Debug("Access token rejected")
				common.FromAuthError(err).Send(w)
				return
			}

			ctx := context.WithValue(r.Context(), PayloadKey, payload)
			ctx = context.WithValue(ctx, AccessTokenKey, tokenString)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminMiddleware must run after AuthMiddleware.
func AdminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, ok := PayloadFrom(r.Context())
		if !ok || payload.Role() != string(model.RoleAdmin) {
			err := common.NewAppError(http.StatusForbidden, "Access denied. Admin privileges required.", nil)
			err.Send(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// PayloadFrom returns the validated access-token payload stored by AuthMiddleware.
func PayloadFrom(ctx context.Context) (*model.Payload, bool) {
	payload, ok := ctx.Value(PayloadKey).(*model.Payload)
	return payload, ok && payload != nil
}

func accessTokenFrom(ctx context.Context) string {
	tok, _ := ctx.Value(AccessTokenKey).(string)
	return tok
}
