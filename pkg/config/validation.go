package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Uses go-playground/validator for declarative validation via struct
// tags, with additional custom validation for rules that cannot be
// expressed in tags.
//
// Note: log level normalization is handled in ApplyDefaults, not here.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	return validateCustomRules(cfg)
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	// At least one adapter must be enabled
	if !cfg.Adapters.HTTP.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}

	// Protected prefixes without a user table would lock content out
	// with no way to authenticate
	if len(cfg.Auth.ProtectedPrefixes) > 0 && len(cfg.Auth.Users) == 0 {
		return fmt.Errorf("auth: protected_prefixes configured but no users defined")
	}

	for i, prefix := range cfg.Auth.ProtectedPrefixes {
		if !strings.HasPrefix(prefix, "/") {
			return fmt.Errorf("auth: protected_prefixes[%d] %q must start with /", i, prefix)
		}
	}

	// A secure adapter needs a complete TLS identity
	if cfg.Adapters.HTTP.Secure {
		if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
			return fmt.Errorf("tls: secure adapter requires both cert_file and key_file")
		}
	}

	// cert_file and key_file only make sense as a pair
	if (cfg.TLS.CertFile == "") != (cfg.TLS.KeyFile == "") {
		return fmt.Errorf("tls: cert_file and key_file must be configured together")
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
