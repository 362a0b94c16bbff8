// Package config builds the run configuration for resumetl.
//
// Settings are layered: built-in defaults, then an optional .resumetl.yaml
// (or .resumetl.toml) in the project root, then a .env file and the process
// environment, and finally command-line flags applied by the caller. The
// result is built once at start-up and treated as read-only afterwards.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/cruz-resume/resumetl/langmeta"
	"github.com/cruz-resume/resumetl/translate"
)

// Defaults for the content layout.
const (
	DefaultDataFile   = "data.json"
	DefaultBackupDir  = "data/backups"
	DefaultPromptsDir = "scripts/prompts"
	DefaultSourceLang = "zh-TW"
)

// DefaultLanguages is the target language list used when none is configured.
var DefaultLanguages = []string{"en", "ja", "ko", "ar"}

// Config holds the resolved settings for one run.
type Config struct {
	// Root is the absolute project root. Relative paths below are resolved
	// against it.
	Root string
	// DataFile is the content document path.
	DataFile string
	// BackupDir is the directory that receives timestamped backups.
	BackupDir string
	// PromptsDir holds per-language instruction overrides (<lang>.txt).
	PromptsDir string
	// SourceLang is the authoritative language key.
	SourceLang string
	// Languages are the target languages, in processing order.
	Languages []string

	// APIKey is the Gemini API key.
	APIKey string
	// Model is the Gemini model identifier.
	Model string
	// BaseURL is the Gemini API base URL.
	BaseURL string
	// Proxy is an optional HTTP/HTTPS proxy URL.
	Proxy string
	// Timeout bounds a single provider request.
	Timeout time.Duration

	Temperature     float64
	TopP            float64
	MaxOutputTokens int

	// ConfigFile is the config file that was applied, if any.
	ConfigFile string
}

// Default returns the built-in configuration rooted at ".".
func Default() *Config {
	gen := translate.DefaultGenerationConfig()
	return &Config{
		Root:            ".",
		DataFile:        DefaultDataFile,
		BackupDir:       DefaultBackupDir,
		PromptsDir:      DefaultPromptsDir,
		SourceLang:      DefaultSourceLang,
		Languages:       append([]string(nil), DefaultLanguages...),
		Model:           translate.DefaultModel,
		BaseURL:         translate.DefaultBaseURL,
		Timeout:         translate.DefaultTimeout,
		Temperature:     gen.Temperature,
		TopP:            gen.TopP,
		MaxOutputTokens: gen.MaxOutputTokens,
	}
}

// Load builds the configuration for the project at root. configFile, when
// non-empty, names the config file explicitly and must exist; otherwise the
// root is searched for one of FileNames.
func Load(root, configFile string) (*Config, error) {
	cfg := Default()

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root %s: %w", root, err)
	}
	cfg.Root = absRoot

	path := configFile
	if path == "" {
		path = FindFile(absRoot)
	}
	if path != "" {
		f, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		if err := f.Apply(cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		cfg.ConfigFile = path
	}

	if err := LoadDotEnv(absRoot); err != nil {
		return nil, err
	}
	e, err := ReadEnv()
	if err != nil {
		return nil, err
	}
	e.Apply(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and canonicalizes language codes in place.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataFile) == "" {
		return fmt.Errorf("data file must not be empty")
	}
	if strings.TrimSpace(c.BackupDir) == "" {
		return fmt.Errorf("backup directory must not be empty")
	}

	src, err := NormalizeLanguage(c.SourceLang)
	if err != nil {
		return fmt.Errorf("source language: %w", err)
	}
	c.SourceLang = src

	langs, err := NormalizeLanguages(c.Languages)
	if err != nil {
		return err
	}
	if len(langs) == 0 {
		return fmt.Errorf("no target languages configured")
	}
	c.Languages = langs

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be within [0, 2], got %g", c.Temperature)
	}
	if c.TopP < 0 || c.TopP > 1 {
		return fmt.Errorf("top_p must be within [0, 1], got %g", c.TopP)
	}
	if c.MaxOutputTokens <= 0 {
		return fmt.Errorf("max_output_tokens must be positive, got %d", c.MaxOutputTokens)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Languages
// ---------------------------------------------------------------------------

// NormalizeLanguage canonicalizes a language code (zh_tw -> zh-TW) and
// rejects codes that are not well-formed BCP 47 tags.
func NormalizeLanguage(lang string) (string, error) {
	code := langmeta.Canonical(lang)
	if code == "" {
		return "", fmt.Errorf("empty language code")
	}
	if _, err := language.Parse(code); err != nil {
		return "", fmt.Errorf("invalid language code %q: %w", lang, err)
	}
	return code, nil
}

// NormalizeLanguages applies NormalizeLanguage to every entry, keeping
// order and duplicates. Empty entries are dropped.
func NormalizeLanguages(langs []string) ([]string, error) {
	out := make([]string, 0, len(langs))
	for _, l := range langs {
		if strings.TrimSpace(l) == "" {
			continue
		}
		code, err := NormalizeLanguage(l)
		if err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, nil
}

// ParseLanguageList splits a comma- or space-separated language list.
func ParseLanguageList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
}

// ---------------------------------------------------------------------------
// Derived values
// ---------------------------------------------------------------------------

// DataPath returns the absolute content document path.
func (c *Config) DataPath() string {
	return c.abs(c.DataFile)
}

// BackupPath returns the absolute backup directory.
func (c *Config) BackupPath() string {
	return c.abs(c.BackupDir)
}

// PromptsPath returns the absolute prompt override directory.
func (c *Config) PromptsPath() string {
	return c.abs(c.PromptsDir)
}

func (c *Config) abs(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// Provider returns the Gemini connection settings.
func (c *Config) Provider() translate.Provider {
	return translate.Provider{
		BaseURL: c.BaseURL,
		APIKey:  c.APIKey,
		Model:   c.Model,
		Proxy:   c.Proxy,
		Timeout: c.Timeout,
	}
}

// Generation returns the decoding parameters.
func (c *Config) Generation() translate.GenerationConfig {
	return translate.GenerationConfig{
		Temperature:     c.Temperature,
		TopP:            c.TopP,
		MaxOutputTokens: c.MaxOutputTokens,
	}
}
