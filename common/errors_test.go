package common

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromAuthError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"bad credentials", &AuthenticationError{Reason: ReasonInvalidCredentials}, http.StatusUnauthorized, "Invalid credentials"},
		{"disabled", &AuthenticationError{Reason: ReasonAccountDisabled}, http.StatusForbidden, "Account is disabled"},
		{"refresh rejected", &AuthenticationError{Reason: ReasonInvalidRefreshToken}, http.StatusUnauthorized, MsgLoginAgain},
		{"refresh failed", &AuthenticationError{Reason: ReasonTokenRefreshFailed}, http.StatusInternalServerError, "Could not refresh tokens"},
		{"blacklisted", &InvalidTokenError{Reason: ReasonBlacklisted}, http.StatusUnauthorized, MsgLoginAgain},
		{"expired", &TokenExpiredError{}, http.StatusUnauthorized, MsgLoginAgain},
		{"internal", errors.New("boom"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			appErr := FromAuthError(tc.err)
			assert.Equal(t, tc.code, appErr.Code)
			assert.Equal(t, tc.msg, appErr.Message)
		})
	}
}

func TestAppError_SendHidesInternalError(t *testing.T) {
	rr := httptest.NewRecorder()
	NewAppError(http.StatusUnauthorized, MsgLoginAgain, &InvalidTokenError{Reason: ReasonBlacklisted}).Send(rr)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.NotContains(t, rr.Body.String(), "blacklisted")

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, MsgLoginAgain, body["message"])
}

func TestValidateAndDecode(t *testing.T) {
	type payload struct {
		Name string `json:"name" validate:"required"`
	}

	t.Run("valid", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}`))
		var p payload
		assert.True(t, ValidateAndDecode(rr, req, &p))
		assert.Equal(t, "a", p.Name)
	})

	t.Run("missing field", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
		var p payload
		assert.False(t, ValidateAndDecode(rr, req, &p))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("broken json", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
		var p payload
		assert.False(t, ValidateAndDecode(rr, req, &p))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
