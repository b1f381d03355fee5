package dashboard

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// MarshalYAML renders cfg for the YAML editor.
func MarshalYAML(cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg.normalize()); err != nil {
		return nil, fmt.Errorf("encoding config as yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding config as yaml: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseYAML reads a config edited in the YAML editor. Unknown keys are
// rejected so typos are not silently dropped.
func ParseYAML(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg.normalize(), nil
}

// ParseJSON decodes a config document submitted for storage and validates it.
func ParseJSON(data []byte) (Config, error) {
	cfg, err := DecodeJSON(data)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DecodeJSON decodes a stored config document as written, without
// validating it. Documents from the browser frontend are accepted in any
// shape that decodes.
func DecodeJSON(data []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg.normalize(), nil
}
