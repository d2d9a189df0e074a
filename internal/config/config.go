package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/chadmichel/chadchat/internal/storage"
)

// Config holds client-side settings. Resolution order for each field:
// config file, then cached override, then environment variable.
type Config struct {
	ServiceURL string `yaml:"service_url"`
	Code       string `yaml:"code"`
}

// DefaultPath returns the config file location under the user config dir.
func DefaultPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "chadchat", "config.yml")
}

// Load reads the config file at path (missing file is fine), applies cached
// serviceUrl/code overrides, then environment variables.
func Load(path string, cache *storage.Cache) (Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, err
			}
		}
	}

	if cache != nil {
		var cached string
		if ok, _ := cache.Get(storage.KeyServiceURL, &cached); ok && cached != "" {
			cfg.ServiceURL = cached
		}
		cached = ""
		if ok, _ := cache.Get(storage.KeyCode, &cached); ok && cached != "" {
			cfg.Code = cached
		}
	}

	if v := os.Getenv("CHAT_SERVICE_URL"); v != "" {
		cfg.ServiceURL = v
	}
	if v := os.Getenv("CHAT_CODE"); v != "" {
		cfg.Code = v
	}
	return cfg, nil
}

// Save writes the config file, creating its directory if needed.
func Save(cfg Config, path string) error {
	if path == "" {
		return errors.New("no path provided for config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
