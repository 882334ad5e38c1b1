package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for rules that cannot
// be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	mmap := cfg.Vault.Mmap
	if mmap.AsLimit > 0 && mmap.WindowSize > mmap.AsLimit {
		return fmt.Errorf("vault.mmap: window_size %d exceeds as_limit %d", mmap.WindowSize, mmap.AsLimit)
	}

	sweep := cfg.Vault.Sweep
	if sweep.Interval > 0 && sweep.MaxIdle == 0 {
		return fmt.Errorf("vault.sweep: max_idle must be set when sweeping is enabled")
	}

	if cfg.Content.Type == "filesystem" {
		if _, err := decodeFilesystemOptions(cfg.Content.Filesystem); err != nil {
			return fmt.Errorf("content.filesystem: %w", err)
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		// Return the first validation error with context
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
