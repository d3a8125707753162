package types

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// KeyValidationConfig contains configuration for cache key validation.
type KeyValidationConfig struct {
	ReservedPatterns  []string
	MaxKeyLength      int
	AllowEmpty        bool
	AllowControlChars bool
	AllowWhitespace   bool
}

// DefaultKeyValidationConfig returns a KeyValidationConfig with default values.
func DefaultKeyValidationConfig() KeyValidationConfig {
	return KeyValidationConfig{
		MaxKeyLength:      1024,
		AllowEmpty:        false,
		AllowControlChars: false,
		AllowWhitespace:   true,
		ReservedPatterns:  nil,
	}
}

// KeyValidator validates logical keys before they are prefixed.
type KeyValidator struct {
	config KeyValidationConfig
}

func NewKeyValidator(config KeyValidationConfig) *KeyValidator {
	return &KeyValidator{config: config}
}

// Validate checks key against the configured rules.
func (v *KeyValidator) Validate(key string) error {
	if v == nil {
		return nil
	}

	if key == "" {
		if !v.config.AllowEmpty {
			return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
		}
		return nil
	}

	if v.config.MaxKeyLength > 0 && len(key) > v.config.MaxKeyLength {
		return fmt.Errorf("%w: key length %d exceeds maximum %d bytes",
			ErrInvalidKey, len(key), v.config.MaxKeyLength)
	}

	if !utf8.ValidString(key) {
		return fmt.Errorf("%w: key contains invalid UTF-8", ErrInvalidKey)
	}

	for i, r := range key {
		// ASCII 0-31 and DEL
		if !v.config.AllowControlChars && (r < 32 || r == 127) {
			return fmt.Errorf("%w: key contains control character at position %d", ErrInvalidKey, i)
		}

		if !v.config.AllowWhitespace && unicode.IsSpace(r) {
			return fmt.Errorf("%w: key contains whitespace at position %d", ErrInvalidKey, i)
		}
	}

	for _, pattern := range v.config.ReservedPatterns {
		if pattern != "" && strings.Contains(key, pattern) {
			return fmt.Errorf("%w: key contains reserved pattern %q", ErrInvalidKey, pattern)
		}
	}

	return nil
}

// ValidateAll validates every key and reports the first failure.
func (v *KeyValidator) ValidateAll(keys []string) error {
	if v == nil {
		return nil
	}
	for _, key := range keys {
		if err := v.Validate(key); err != nil {
			return err
		}
	}
	return nil
}

// ValidateNamespace rejects namespaces whose prefixed keys could not be split
// back into namespace and key.
func ValidateNamespace(namespace, separator string) error {
	if namespace == "" || separator == "" {
		return nil
	}
	if strings.Contains(namespace, separator) {
		return fmt.Errorf("%w: namespace %q contains separator %q", ErrInvalidNamespace, namespace, separator)
	}
	if !utf8.ValidString(namespace) {
		return fmt.Errorf("%w: namespace contains invalid UTF-8", ErrInvalidNamespace)
	}
	return nil
}

// ValidateKey validates a key using the default validator.
func ValidateKey(key string) error {
	return DefaultKeyValidator.Validate(key)
}

// DefaultKeyValidator is the default key validator instance.
var DefaultKeyValidator = NewKeyValidator(DefaultKeyValidationConfig())

func IsInvalidKey(err error) bool {
	return errors.Is(err, ErrInvalidKey)
}

func IsInvalidNamespace(err error) bool {
	return errors.Is(err, ErrInvalidNamespace)
}
