package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/assetscore/assetscore/internal/rules"
	"github.com/assetscore/assetscore/pkg/types"
)

// Policy file formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// LoadPolicy reads the scoring policy at path. The format is chosen by file
// extension: .json, or .yaml / .yml.
func LoadPolicy(path string) (*types.ScoringConfig, error) {
	format, err := formatFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read policy: %w", err)
	}
	return ParsePolicy(data, format)
}

// ParsePolicy decodes a scoring policy document in the given format.
// A policy without an events table gets rules.LegacyRules; an explicit empty
// table means no event rules.
func ParsePolicy(data []byte, format string) (*types.ScoringConfig, error) {
	var cfg types.ScoringConfig
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse policy json: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse policy yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("config: unknown policy format %q", format)
	}
	if cfg.Events == nil {
		cfg.Events = rules.LegacyRules()
	}
	return &cfg, nil
}

func formatFor(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("config: policy %q: want a .json, .yaml or .yml file", path)
	}
}
