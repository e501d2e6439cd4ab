// Package config loads process configuration from the environment and from
// YAML documents.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ParseYAML decodes a YAML (or JSON) document into target.
func ParseYAML(data []byte, target any) error {
	if len(strings.TrimSpace(string(data))) == 0 {
		return fmt.Errorf("parse yaml: document is empty")
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

// ParseYAMLFile reads path and decodes it with ParseYAML.
func ParseYAMLFile(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	return ParseYAML(data, target)
}
