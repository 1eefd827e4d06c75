package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.yaml.in/yaml/v3"
)

const schemaURL = "localgen.v1.schema.json"

//go:embed localgen.v1.schema.json
var embeddedSchema string

// ErrInvalid wraps every schema or decoding failure.
var ErrInvalid = errors.New("invalid config")

// LoadAndValidate loads the YAML file at path, validates it against the schema
// and fills defaults. An empty schemaPath selects the embedded schema.
func LoadAndValidate(path, schemaPath string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	return Parse(data, schemaPath)
}

// LoadOrDefault behaves like LoadAndValidate but returns Default when the
// file does not exist. Environment overrides are applied in both cases.
func LoadOrDefault(path, schemaPath string) (*Config, error) {
	cfg, err := LoadAndValidate(path, schemaPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		err = nil
	}
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// Parse validates and decodes raw YAML.
func Parse(data []byte, schemaPath string) (*Config, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: %w: invalid YAML: %v", ErrInvalid, err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	schema, err := compileSchema(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("config: failed to compile schema: %w", err)
	}

	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("config: %w: %v", ErrInvalid, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w: failed to decode: %v", ErrInvalid, err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

func compileSchema(schemaPath string) (*jsonschema.Schema, error) {
	if schemaPath != "" {
		return jsonschema.Compile(schemaPath)
	}
	return jsonschema.CompileString(schemaURL, embeddedSchema)
}
