package handlers

import (
	"errors"
	"reflect"
	"strings"

	"github.com/deve1070/cmms-sub000/internal/apperrors"
	"github.com/go-playground/validator/v10"
)

// CustomValidator adapts validator/v10 to echo.Validator. Failures come back
// as apperrors validation errors named after the JSON field.
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a validator that names fields by their json tag.
func NewValidator() *CustomValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &CustomValidator{validator: v}
}

// Validate checks i and reports the first failing field as a validation error.
func (cv *CustomValidator) Validate(i interface{}) error {
	err := cv.validator.Struct(i)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		field := strings.SplitN(fe.Namespace(), ".", 2)
		name := fe.Field()
		if len(field) == 2 {
			name = field[1]
		}
		if fe.Param() != "" {
			return apperrors.Validation(name, "failed %s=%s", fe.Tag(), fe.Param())
		}
		return apperrors.Validation(name, "failed %s", fe.Tag())
	}
	return apperrors.Validation("", "%v", err)
}
