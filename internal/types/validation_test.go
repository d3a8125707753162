package types

import (
	"errors"
	"strings"
	"testing"
)

func TestKeyValidator_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*KeyValidationConfig)
		key     string
		wantErr bool
	}{
		{name: "simple key", key: "user:123"},
		{name: "key containing generic separator", key: "a::b"},
		{name: "max length", key: strings.Repeat("a", 1024)},
		{name: "too long", key: strings.Repeat("a", 1025), wantErr: true},
		{name: "length check disabled", key: strings.Repeat("a", 5000), mutate: func(c *KeyValidationConfig) { c.MaxKeyLength = 0 }},
		{name: "empty rejected", key: "", wantErr: true},
		{name: "empty allowed", key: "", mutate: func(c *KeyValidationConfig) { c.AllowEmpty = true }},
		{name: "invalid utf8", key: string([]byte{0xff, 0xfe}), wantErr: true},
		{name: "null byte", key: "key\x00value", wantErr: true},
		{name: "DEL", key: "key\x7fvalue", wantErr: true},
		{name: "control allowed", key: "key\tvalue", mutate: func(c *KeyValidationConfig) { c.AllowControlChars = true }},
		{name: "spaces allowed by default", key: "key with spaces"},
		{name: "spaces rejected", key: "key with spaces", wantErr: true, mutate: func(c *KeyValidationConfig) { c.AllowWhitespace = false }},
		{name: "reserved pattern", key: "tenant::x", wantErr: true, mutate: func(c *KeyValidationConfig) { c.ReservedPatterns = []string{"::"} }},
		{name: "empty reserved pattern ignored", key: "x", mutate: func(c *KeyValidationConfig) { c.ReservedPatterns = []string{""} }},
		{name: "unicode", key: "ключ:значение"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultKeyValidationConfig()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			err := NewKeyValidator(cfg).Validate(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidKey) {
				t.Errorf("error should wrap ErrInvalidKey, got: %v", err)
			}
		})
	}
}

func TestKeyValidator_NilAndBatch(t *testing.T) {
	var v *KeyValidator
	if err := v.Validate(""); err != nil {
		t.Errorf("nil validator Validate = %v, want nil", err)
	}
	if err := v.ValidateAll([]string{"", "\x00"}); err != nil {
		t.Errorf("nil validator ValidateAll = %v, want nil", err)
	}

	err := DefaultKeyValidator.ValidateAll([]string{"ok", "", "also-ok"})
	if !IsInvalidKey(err) {
		t.Errorf("ValidateAll = %v, want ErrInvalidKey", err)
	}
}

func TestValidateNamespace(t *testing.T) {
	tests := []struct {
		namespace string
		separator string
		wantErr   bool
	}{
		{"", "::", false},
		{"users", "::", false},
		{"users:v1", "::", false},
		{"users::v1", "::", true},
		{"users:v1", ":", true},
		{"anything", "", false},
		{string([]byte{0xff}), "::", true},
	}

	for _, tt := range tests {
		t.Run(tt.namespace+"|"+tt.separator, func(t *testing.T) {
			err := ValidateNamespace(tt.namespace, tt.separator)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateNamespace(%q, %q) = %v, wantErr %v", tt.namespace, tt.separator, err, tt.wantErr)
			}
			if err != nil && !IsInvalidNamespace(err) {
				t.Errorf("error should wrap ErrInvalidNamespace, got %v", err)
			}
		})
	}
}

func BenchmarkKeyValidator_Validate(b *testing.B) {
	v := NewKeyValidator(DefaultKeyValidationConfig())
	key := "user:123:profile:data"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = v.Validate(key)
	}
}
