package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Tag     string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	// Generate custom message based on tag
	switch e.Tag {
	case "required":
		return fmt.Sprintf("%s is required", e.Field)
	case "min", "gte", "gt":
		return fmt.Sprintf("%s is below its minimum", e.Field)
	case "max", "lte", "lt":
		return fmt.Sprintf("%s is above its maximum", e.Field)
	case "oneof":
		return fmt.Sprintf("%s must be one of the allowed values", e.Field)
	case "gtefield":
		return fmt.Sprintf("%s must not be below its paired field", e.Field)
	default:
		return fmt.Sprintf("%s failed validation", e.Field)
	}
}

// ValidationErrors represents multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var messages []string
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// Validator provides configuration validation.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new configuration validator.
func NewValidator() (*Validator, error) {
	return &Validator{validate: validator.New()}, nil
}

// ValidateConfig validates a configuration struct.
func (v *Validator) ValidateConfig(config *Config) error {
	if config == nil {
		return ValidationErrors{{Field: "config", Message: "config cannot be nil"}}
	}

	err := v.validate.Struct(config)
	if err == nil {
		return nil
	}

	invalidErr, ok := err.(*validator.InvalidValidationError)
	if ok {
		return ValidationErrors{{Field: "config", Message: invalidErr.Error()}}
	}

	var result ValidationErrors
	for _, fieldErr := range err.(validator.ValidationErrors) {
		result = append(result, ValidationError{
			Field: fieldErr.Namespace(),
			Tag:   fieldErr.Tag(),
			Value: fieldErr.Value(),
		})
	}
	return result
}
