package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// File schema
// ---------------------------------------------------------------------------

// File is the .resumetl.yaml / .resumetl.toml structure. Every field is
// optional; unset fields keep the value from the previous layer.
type File struct {
	// DataFile is the content document path relative to the root.
	DataFile string `yaml:"data_file,omitempty" toml:"data_file,omitempty"`
	// BackupDir is the backup directory relative to the root.
	BackupDir string `yaml:"backup_dir,omitempty" toml:"backup_dir,omitempty"`
	// PromptsDir is the prompt override directory relative to the root.
	PromptsDir string `yaml:"prompts_dir,omitempty" toml:"prompts_dir,omitempty"`
	// SourceLang is the source language key (default "zh-TW").
	SourceLang string `yaml:"source_lang,omitempty" toml:"source_lang,omitempty"`
	// Languages is the target language list.
	Languages []string `yaml:"languages,omitempty" toml:"languages,omitempty"`

	Model   string `yaml:"model,omitempty" toml:"model,omitempty"`
	BaseURL string `yaml:"base_url,omitempty" toml:"base_url,omitempty"`
	Proxy   string `yaml:"proxy,omitempty" toml:"proxy,omitempty"`
	// Timeout is a Go duration string such as "90s" or "2m".
	Timeout string `yaml:"timeout,omitempty" toml:"timeout,omitempty"`

	Temperature     *float64 `yaml:"temperature,omitempty" toml:"temperature,omitempty"`
	TopP            *float64 `yaml:"top_p,omitempty" toml:"top_p,omitempty"`
	MaxOutputTokens *int     `yaml:"max_output_tokens,omitempty" toml:"max_output_tokens,omitempty"`
}

// FileNames are the config file names looked up in the project root, in
// order of preference.
var FileNames = []string{".resumetl.yaml", ".resumetl.yml", ".resumetl.toml"}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// FindFile returns the first existing config file in rootDir, or "".
func FindFile(rootDir string) string {
	for _, name := range FileNames {
		path := filepath.Join(rootDir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// LoadFile reads and decodes a config file. The format is chosen by
// extension: .toml is TOML, anything else YAML. Unknown keys are rejected.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var f File
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		return &f, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &f, nil
}

// Apply copies every set field onto cfg.
func (f *File) Apply(cfg *Config) error {
	if f.DataFile != "" {
		cfg.DataFile = f.DataFile
	}
	if f.BackupDir != "" {
		cfg.BackupDir = f.BackupDir
	}
	if f.PromptsDir != "" {
		cfg.PromptsDir = f.PromptsDir
	}
	if f.SourceLang != "" {
		cfg.SourceLang = f.SourceLang
	}
	if len(f.Languages) > 0 {
		cfg.Languages = append([]string(nil), f.Languages...)
	}
	if f.Model != "" {
		cfg.Model = f.Model
	}
	if f.BaseURL != "" {
		cfg.BaseURL = f.BaseURL
	}
	if f.Proxy != "" {
		cfg.Proxy = f.Proxy
	}
	if f.Timeout != "" {
		d, err := time.ParseDuration(f.Timeout)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if f.Temperature != nil {
		cfg.Temperature = *f.Temperature
	}
	if f.TopP != nil {
		cfg.TopP = *f.TopP
	}
	if f.MaxOutputTokens != nil {
		cfg.MaxOutputTokens = *f.MaxOutputTokens
	}
	return nil
}
