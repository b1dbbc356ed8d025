package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadOptions represents options for loading configuration.
type LoadOptions struct {
	Path string
}

// Load loads configuration from a file (if given) and then environment
// variables, and validates the result.
func Load(opts ...LoadOptions) (*Config, error) {
	cfg := Default()

	var options LoadOptions
	if len(opts) > 0 {
		options = opts[0]
	}

	if options.Path != "" {
		if err := loadFromFile(cfg, options.Path); err != nil {
			return nil, err
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}

	return nil
}

func loadFromEnv(cfg *Config) {
	if host := os.Getenv("CONCORD_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("CONCORD_SERVER_PORT"); port != "" {
		if p, err := strconvAtoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if kind := os.Getenv("CONCORD_STATE_KIND"); kind != "" {
		cfg.State.Kind = kind
	}
	if addr := os.Getenv("CONCORD_STATE_ADDR"); addr != "" {
		cfg.State.Addr = addr
	}
	if pw := os.Getenv("CONCORD_STATE_PASSWORD"); pw != "" {
		cfg.State.Password = pw
	}

	if level := os.Getenv("CONCORD_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("CONCORD_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}
}

func strconvAtoi(s string) (int, error) {
	var i int
	_, err := fmt.Sscanf(s, "%d", &i)
	return i, err
}
