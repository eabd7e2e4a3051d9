package core

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of an optional YAML config file, used
// to seed defaults before environment-variable Options override them
// (cmd/leadscorer's -config flag). Every field mirrors a Config item
// named in spec.md 6.
type FileConfig struct {
	ChunkSize        int    `yaml:"chunkSize"`
	ModelTimeoutMS   int    `yaml:"modelTimeoutMs"`
	MaxOutputTokens  int    `yaml:"maxOutputTokens"`
	Verbose          bool   `yaml:"verbose"`
	VerboseErrors    bool   `yaml:"verboseErrors"`
	MaxVerboseErrors int    `yaml:"maxVerboseErrors"`
	ModelID          string `yaml:"modelId"`
	ModelProject     string `yaml:"modelProject"`
	ModelLocation    string `yaml:"modelLocation"`
	AdminAlertHook   string `yaml:"adminAlertHook"`
}

// LoadFileOptions reads path as YAML and returns the Options it sets;
// zero-valued fields are left to DefaultConfig (or a later Option) to
// supply, so a partial file is valid.
func LoadFileOptions(path string) ([]Option, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	var opts []Option
	if fc.ChunkSize > 0 {
		opts = append(opts, WithChunkSize(fc.ChunkSize))
	}
	if fc.ModelTimeoutMS > 0 {
		opts = append(opts, WithModelTimeout(time.Duration(fc.ModelTimeoutMS)*time.Millisecond))
	}
	if fc.MaxOutputTokens > 0 {
		opts = append(opts, func(c *Config) { c.MaxOutputTokens = fc.MaxOutputTokens })
	}
	if fc.Verbose || fc.VerboseErrors || fc.MaxVerboseErrors > 0 {
		opts = append(opts, WithVerbose(fc.Verbose, fc.VerboseErrors, fc.MaxVerboseErrors))
	}
	if fc.ModelID != "" || fc.ModelProject != "" || fc.ModelLocation != "" {
		opts = append(opts, WithModel(fc.ModelID, fc.ModelProject, fc.ModelLocation))
	}
	if fc.AdminAlertHook != "" {
		opts = append(opts, WithAdminAlertHook(fc.AdminAlertHook))
	}
	return opts, nil
}
