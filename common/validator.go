package common

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateStruct runs the `validate` tags of payload.
func ValidateStruct(payload interface{}) error {
	return validate.Struct(payload)
}

// ValidateAndDecode decodes the JSON body into payload and validates it, writing a 400
// response and returning false when either step fails.
func ValidateAndDecode(w http.ResponseWriter, r *http.Request, payload interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(payload); err != nil {
		NewAppError(http.StatusBadRequest, "Invalid request body", nil).Send(w)
		return false
	}

	if err := ValidateStruct(payload); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			NewAppError(http.StatusBadRequest, validationErrors.Error(), nil).Send(w)
			return false
		}
		NewAppError(http.StatusBadRequest, "Invalid request body", err).Send(w)
		return false
	}

	return true
}
