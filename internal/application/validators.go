package application

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/imgverdict/infrastructure/source"
)

// RegisterConfigValidators registers custom validation functions with
// the validator instance for use in run configuration validation.
// RegisterConfigValidators adds sourcetype and envname validators
// that can be referenced in struct tags for automated validation.
// RegisterConfigValidators returns an error if any validator registration
// fails.
func RegisterConfigValidators(v *validator.Validate) error {
	// Register source type validator backed by the provider registry.
	if err := v.RegisterValidation("sourcetype", validateSourceType); err != nil {
		return fmt.Errorf("failed to register sourcetype validator: %w", err)
	}

	// Register environment variable name validator.
	if err := v.RegisterValidation("envname", validateEnvName); err != nil {
		return fmt.Errorf("failed to register envname validator: %w", err)
	}

	return nil
}

// validateSourceType validates that a source type names a provider with a
// registered factory, so typos fail at load time rather than mid-batch.
func validateSourceType(fl validator.FieldLevel) bool {
	_, ok := source.GetProviderFactory(fl.Field().String())
	return ok
}

// validateEnvName validates that a string is a portable environment
// variable name: ^[A-Za-z_][A-Za-z0-9_]*$
func validateEnvName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if name == "" {
		return false
	}

	for i, ch := range name {
		switch {
		case ch == '_', ch >= 'A' && ch <= 'Z', ch >= 'a' && ch <= 'z':
		case ch >= '0' && ch <= '9':
			if i == 0 {
				return false // cannot start with a digit
			}
		default:
			return false
		}
	}

	return true
}
