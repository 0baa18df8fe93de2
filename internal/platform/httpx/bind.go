package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Bind decodes the JSON body into target and runs struct validation.
func Bind(r *http.Request, v *validator.Validate, target any) error {
	if err := DecodeJSON(r, target); err != nil {
		return fmt.Errorf("%w: malformed body: %v", ErrValidation, err)
	}
	if v == nil {
		return nil
	}
	if err := v.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			parts := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				parts = append(parts, strings.ToLower(fe.Field())+" "+fe.Tag())
			}
			return fmt.Errorf("%w: %s", ErrValidation, strings.Join(parts, ", "))
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
