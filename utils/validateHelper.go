package utils

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/pos_backend/apperr"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateStruct runs the `validate` tags of input and returns the first
// failure as an *apperr.ValidationError.
func ValidateStruct(input any) error {
	err := getValidator().Struct(input)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	fields := ProcessValidationErrors(validationErrors)
	ve := validationErrors[0]
	return &apperr.ValidationError{
		Field:   ve.Field(),
		Message: fmt.Sprintf("failed on %s (%d invalid field(s))", fields[ve.Field()], len(fields)),
	}
}

// ProcessValidationErrors flattens validator errors to field -> tag.
func ProcessValidationErrors(validationErrors validator.ValidationErrors) map[string]string {
	errorResponse := make(map[string]string, len(validationErrors))
	for _, ve := range validationErrors {
		if ve.Param() != "" {
			errorResponse[ve.Field()] = ve.Tag() + "=" + ve.Param()
		} else {
			errorResponse[ve.Field()] = ve.Tag()
		}
	}
	return errorResponse
}

// NormalizeNote trims note and enforces maxLen (in runes). Empty stays empty.
func NormalizeNote(note string, maxLen int) (string, error) {
	note = strings.TrimSpace(note)
	if maxLen > 0 && len([]rune(note)) > maxLen {
		return "", apperr.NewValidation("note", "must be at most %d characters", maxLen)
	}
	return note, nil
}
