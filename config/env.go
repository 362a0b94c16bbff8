package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DotEnvFile is the dotenv file read from the project root.
const DotEnvFile = ".env"

// Env is the environment layer.
type Env struct {
	APIKey    string        `env:"GEMINI_API_KEY"`
	Model     string        `env:"RESUMETL_MODEL"`
	BaseURL   string        `env:"RESUMETL_BASE_URL"`
	Proxy     string        `env:"RESUMETL_PROXY"`
	Timeout   time.Duration `env:"RESUMETL_TIMEOUT"`
	Languages []string      `env:"RESUMETL_LANGUAGES" envSeparator:","`
}

// LoadDotEnv loads <rootDir>/.env into the process environment if it exists.
// Variables that are already set are left alone.
func LoadDotEnv(rootDir string) error {
	path := filepath.Join(rootDir, DotEnvFile)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("checking %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// ReadEnv binds the environment variables into an Env.
func ReadEnv() (Env, error) {
	e, err := env.ParseAs[Env]()
	if err != nil {
		return Env{}, fmt.Errorf("reading environment: %w", err)
	}
	return e, nil
}

// Apply copies every set variable onto cfg.
func (e Env) Apply(cfg *Config) {
	if e.APIKey != "" {
		cfg.APIKey = e.APIKey
	}
	if e.Model != "" {
		cfg.Model = e.Model
	}
	if e.BaseURL != "" {
		cfg.BaseURL = e.BaseURL
	}
	if e.Proxy != "" {
		cfg.Proxy = e.Proxy
	}
	if e.Timeout > 0 {
		cfg.Timeout = e.Timeout
	}
	var langs []string
	for _, l := range e.Languages {
		langs = append(langs, ParseLanguageList(l)...)
	}
	if len(langs) > 0 {
		cfg.Languages = langs
	}
}
