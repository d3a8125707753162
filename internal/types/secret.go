package types

import "encoding/json"

const redacted = "[REDACTED]"

// SecretString holds a credential (Redis password, database URL) and never
// prints it. Configuration loaders fill it through UnmarshalText.
type SecretString struct {
	value string
}

func NewSecretString(value string) SecretString {
	return SecretString{value: value}
}

func (s SecretString) Value() string {
	return s.value
}

func (s SecretString) String() string {
	if s.value == "" {
		return ""
	}
	return redacted
}

func (s SecretString) GoString() string {
	return s.String()
}

func (s SecretString) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *SecretString) UnmarshalJSON(data []byte) error {
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	s.value = value
	return nil
}

func (s SecretString) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SecretString) UnmarshalText(text []byte) error {
	s.value = string(text)
	return nil
}

func (s SecretString) IsEmpty() bool {
	return s.value == ""
}
