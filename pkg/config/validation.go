package config

import (
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
// Struct tags cover field-level constraints. validateCustomRules handles the
// rules that span several fields.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
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
	if !cfg.Adapters.File.Enabled {
		return fmt.Errorf("adapters: the file adapter must be enabled")
	}

	file, m := cfg.Adapters.File, cfg.Adapters.Metrics
	if m.Enabled && file.Port != 0 && file.Port == m.Port {
		return fmt.Errorf("adapters: file and metrics adapters both use port %d", file.Port)
	}

	if cfg.Adapters.File.Timeouts.Shutdown <= 0 {
		return fmt.Errorf("adapters.file.timeouts.shutdown: must be greater than zero")
	}

	switch cfg.Store.Type {
	case "filesystem":
		if s, _ := cfg.Store.Filesystem["path"].(string); s == "" {
			return fmt.Errorf("store.filesystem.path: required when store.type is filesystem")
		}
	case "s3":
		if s, _ := cfg.Store.S3["bucket"].(string); s == "" {
			return fmt.Errorf("store.s3.bucket: required when store.type is s3")
		}
	case "badger":
		path, _ := cfg.Store.Badger["db_path"].(string)
		inMemory, _ := cfg.Store.Badger["in_memory"].(bool)
		if path == "" && !inMemory {
			return fmt.Errorf("store.badger.db_path: required when store.type is badger")
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
