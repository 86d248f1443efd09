package utils

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/fathima-sithara/realtime-chat/internal/apperrors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func init() {
	// report json field names instead of Go field names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
}

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message,omitempty"`
}

// InvalidInput carries per-field messages and matches apperrors.ErrInvalidInput.
type InvalidInput struct {
	Fields []ValidationError
}

func (e *InvalidInput) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return apperrors.ErrInvalidInput.Error() + ": " + strings.Join(msgs, "; ")
}

func (e *InvalidInput) Unwrap() error { return apperrors.ErrInvalidInput }

// Validate checks s against its `validate` tags.
func Validate(s any) error {
	if err := validate.Struct(s); err != nil {
		if fields := FormatValidationErrors(err); fields != nil {
			return &InvalidInput{Fields: fields}
		}
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	return nil
}

// FormatValidationErrors converts validator.ValidationErrors into a slice of ValidationError
func FormatValidationErrors(err error) []ValidationError {
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil
	}
	out := make([]ValidationError, len(ve))
	for i, fe := range ve {
		out[i] = ValidationError{
			Field: fe.Field(),
			Tag:   fe.Tag(),
		}
		if fe.Field() != "password" {
			out[i].Value = fmt.Sprintf("%v", fe.Value())
		}
		switch fe.Tag() {
		case "required", "notblank":
			out[i].Message = fmt.Sprintf("%s is required", fe.Field())
		case "email":
			out[i].Message = fmt.Sprintf("%s must be a valid email address", fe.Field())
		case "min":
			out[i].Message = fmt.Sprintf("%s must be at least %s characters long", fe.Field(), fe.Param())
		case "max":
			out[i].Message = fmt.Sprintf("%s must be at most %s characters long", fe.Field(), fe.Param())
		default:
			out[i].Message = fmt.Sprintf("validation failed on field '%s' for tag '%s'", fe.Field(), fe.Tag())
		}
	}
	return out
}
