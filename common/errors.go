package common

import (
	"encoding/json"
	"errors"
	"go-token-auth/logger"
	"net/http"

	"github.com/sirupsen/logrus"
)

// MsgLoginAgain is the single message shown for every rejected token, so clients
// cannot tell an expired token from a revoked one.
const MsgLoginAgain = "Please log in again"

type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	return e.Message
}

func NewAppError(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// FromAuthError maps the authentication error taxonomy onto HTTP responses.
// The reason code is kept in Err for logging and never reaches the body.
func FromAuthError(err error) *AppError {
	var authErr *AuthenticationError
	if errors.As(err, &authErr) {
		switch authErr.Reason {
		case ReasonInvalidCredentials:
			return NewAppError(http.StatusUnauthorized, "Invalid credentials", err)
		case ReasonAccountDisabled:
			return NewAppError(http.StatusForbidden, "Account is disabled", err)
		case ReasonInvalidRequest:
			return NewAppError(http.StatusBadRequest, "Invalid request", err)
		case ReasonTokenRefreshFailed:
			return NewAppError(http.StatusInternalServerError, "Could not refresh tokens", err)
		default:
			return NewAppError(http.StatusUnauthorized, MsgLoginAgain, err)
		}
	}
	if IsTokenRejection(err) {
		return NewAppError(http.StatusUnauthorized, MsgLoginAgain, err)
	}
	return NewAppError(http.StatusInternalServerError, "Internal server error", err)
}

func (e *AppError) Send(w http.ResponseWriter) {
	if e.Err != nil {
		logger.Log.WithFields(logrus.Fields{
			"status_code":    e.Code,
			"internal_error": e.Err.Error(),
		}).Error(e.Message)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(e.Code)
	json.NewEncoder(w).Encode(e)
}
