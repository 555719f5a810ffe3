/*
Package configs is responsible for loading and parsing the application's configuration.

Settings come from an optional YAML file (chatlink.yaml, or the path named by
CHATLINK_CONFIG) overridden by environment variables. The one value every
deployment must provide is the base address of the backing service.
*/
package configs

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the config file looked up in the working directory when
// CHATLINK_CONFIG is not set.
const DefaultConfigFile = "chatlink.yaml"

// AppConfig contains all configuration parameters for the client and the stub backend.
type AppConfig struct {
	// General Settings
	Environment string `yaml:"environment"`

	// Client Settings
	APIBaseURL  string `yaml:"api_base_url"`
	SessionFile string `yaml:"session_file"`

	// Stub Backend Settings
	Port           int      `yaml:"port"`
	JWTSecret      string   `yaml:"jwt_secret"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LoadConfig reads the optional config file, applies environment variable
// overrides, fills defaults, and validates the result.
func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}

	if err := loadFile(cfg); err != nil {
		return nil, err
	}

	applyEnv(cfg)

	// Defaults
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.SessionFile == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("cannot determine user config dir for session file: %w", err)
		}
		cfg.SessionFile = filepath.Join(dir, "chatlink", "session.json")
	}
	if cfg.JWTSecret == "" {
		if cfg.Environment != "development" {
			return nil, fmt.Errorf("CHATLINK_JWT_SECRET is required in %s environment", cfg.Environment)
		}
		cfg.JWTSecret = "insecure_development_secret_change_me"
	}

	// Validation
	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("CHATLINK_API_URL (or api_base_url) is required: base address of the backing service")
	}
	u, err := url.Parse(cfg.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid api_base_url %q: must be an http(s) URL", cfg.APIBaseURL)
	}
	if cfg.Port < 1024 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the allowed range (1024-65535)", cfg.Port)
	}

	return cfg, nil
}

// SocketURL derives the websocket endpoint of the backing service from the
// configured base URL.
func (c *AppConfig) SocketURL() string {
	ws := strings.Replace(c.APIBaseURL, "http", "ws", 1)
	return strings.TrimRight(ws, "/") + "/ws"
}

func loadFile(cfg *AppConfig) error {
	path := os.Getenv("CHATLINK_CONFIG")
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

func applyEnv(cfg *AppConfig) {
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("CHATLINK_API_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("CHATLINK_SESSION_FILE"); v != "" {
		cfg.SessionFile = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("CHATLINK_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = cfg.AllowedOrigins[:0]
		for _, origin := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
			}
		}
	}
}
