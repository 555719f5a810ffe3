package configs

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()

	for _, key := range []string{"ENVIRONMENT", "CHATLINK_API_URL", "CHATLINK_SESSION_FILE", "PORT", "CHATLINK_JWT_SECRET", "ALLOWED_ORIGINS"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Setenv("CHATLINK_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	os.Unsetenv("CHATLINK_CONFIG")
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults fill in around the required base URL", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CHATLINK_API_URL", "http://localhost:8080")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if cfg.Environment != "development" {
			t.Errorf("expected development default, got %s", cfg.Environment)
		}
		if cfg.Port != 8080 {
			t.Errorf("expected default port, got %d", cfg.Port)
		}
		if cfg.SessionFile == "" {
			t.Error("expected a default session file path")
		}
	})

	t.Run("missing base URL fails", func(t *testing.T) {
		clearEnv(t)

		if _, err := LoadConfig(); err == nil {
			t.Fatal("expected an error without api_base_url")
		}
	})

	t.Run("non-http base URL fails", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CHATLINK_API_URL", "ftp://example.com")

		if _, err := LoadConfig(); err == nil {
			t.Fatal("expected scheme rejection")
		}
	})

	t.Run("production demands a secret", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CHATLINK_API_URL", "http://localhost:8080")
		t.Setenv("ENVIRONMENT", "production")

		if _, err := LoadConfig(); err == nil {
			t.Fatal("expected missing secret rejection outside development")
		}
	})

	t.Run("port range is validated", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CHATLINK_API_URL", "http://localhost:8080")
		t.Setenv("PORT", "80")

		if _, err := LoadConfig(); err == nil {
			t.Fatal("expected port range rejection")
		}
	})

	t.Run("yaml file is read and env overrides it", func(t *testing.T) {
		clearEnv(t)

		path := filepath.Join(t.TempDir(), "chatlink.yaml")
		content := "api_base_url: http://from-file:9000\nport: 9000\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		t.Setenv("CHATLINK_CONFIG", path)
		t.Setenv("PORT", "9100")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if cfg.APIBaseURL != "http://from-file:9000" {
			t.Errorf("expected file value, got %s", cfg.APIBaseURL)
		}
		if cfg.Port != 9100 {
			t.Errorf("expected env override, got %d", cfg.Port)
		}
	})
}

func TestSocketURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"http://localhost:8080", "ws://localhost:8080/ws"},
		{"https://chat.example.com/", "wss://chat.example.com/ws"},
	}

	for _, tc := range cases {
		cfg := &AppConfig{APIBaseURL: tc.base}
		if got := cfg.SocketURL(); got != tc.want {
			t.Errorf("SocketURL(%s) = %s, want %s", tc.base, got, tc.want)
		}
	}
}
