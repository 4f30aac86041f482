package services

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "api-backend/pkg/errors"
)

var validate = validator.New()

// violation ranks a field error and gives the message reported for it.
// Lower ranks are checked first.
type violation func(fe validator.FieldError) (rank int, message string)

// validateInput validates s and reports only the highest-priority violation,
// so callers see the same message whichever fields are wrong at once.
func validateInput(s interface{}, rank violation) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.NewInternalError("failed to validate input", err)
	}

	best, message := -1, ""
	for _, fe := range fieldErrs {
		r, m := rank(fe)
		if best < 0 || r < best {
			best, message = r, m
		}
	}
	return apperrors.NewValidationError(message)
}

// isPresenceFailure reports whether fe means the field is absent. Empty
// strings count as absent.
func isPresenceFailure(fe validator.FieldError) bool {
	return fe.Tag() == "required" || fe.Tag() == "min"
}

func fallbackMessage(fe validator.FieldError) string {
	return strings.ToLower(fe.Field()) + " is invalid"
}
