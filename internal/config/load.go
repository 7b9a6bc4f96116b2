package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// envConfig names a config file when -config is not given.
const envConfig = "MESHQUERY_CONFIG"

// Load builds the effective configuration: defaults, then the first config
// file found, then command-line flags.
func Load() (*Config, error) {
	cfg := Default()

	if path := locate(); path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", path, err)
		}
	}

	applyFlags(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// locate returns the config file to read, or "" to run on defaults. An
// explicit path is returned even when missing so the read reports it.
func locate() string {
	if p := ConfigPath(); p != "" {
		return p
	}
	if p := os.Getenv(envConfig); p != "" {
		return p
	}
	for _, p := range searchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func searchPaths() []string {
	return []string{
		"meshquery.yaml",
		filepath.Join(ConfigDir(), "config.yaml"),
	}
}

// ConfigDir returns the per-user config directory.
func ConfigDir() string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "meshquery")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "meshquery")
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "meshquery")
	}
	return filepath.Join(home, ".config", "meshquery")
}

// loadFromFile decodes path over the values already in cfg.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing yaml: %w", err)
	}
	return nil
}
