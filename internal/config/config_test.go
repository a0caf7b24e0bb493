package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Upstream.HasCredential() {
		t.Fatal("default config must not carry a credential")
	}
	if got := cfg.Upstream.EffectiveModel(); got != DefaultModel {
		t.Fatalf("expected default model %q, got %q", DefaultModel, got)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		EnvAPIKey:   "sk-test",
		EnvModel:    "  openai/gpt-4o-mini ",
		EnvSiteURL:  "https://example.org",
		EnvPort:     "9000",
		EnvLogLevel: "DEBUG",
	}))
	if err != nil {
		t.Fatalf("apply env: %v", err)
	}

	if cfg.Upstream.APIKey != "sk-test" {
		t.Errorf("api key not applied, got %q", cfg.Upstream.APIKey)
	}
	if got := cfg.Upstream.EffectiveModel(); got != "openai/gpt-4o-mini" {
		t.Errorf("expected model override, got %q", got)
	}
	if cfg.Upstream.SiteURL != "https://example.org" {
		t.Errorf("site url not applied, got %q", cfg.Upstream.SiteURL)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port not applied, got %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level not lowered, got %q", cfg.Log.Level)
	}
}

func TestApplyEnvIgnoresBlankValues(t *testing.T) {
	cfg := Default()
	if err := cfg.ApplyEnv(envMap(map[string]string{EnvAPIKey: "   ", EnvModel: ""})); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.Upstream.HasCredential() {
		t.Error("blank credential must be treated as missing")
	}
	if got := cfg.Upstream.EffectiveModel(); got != DefaultModel {
		t.Errorf("expected default model, got %q", got)
	}
}

func TestApplyEnvRejectsBadPort(t *testing.T) {
	cfg := Default()
	if err := cfg.ApplyEnv(envMap(map[string]string{EnvPort: "eighty"})); err == nil {
		t.Fatal("expected error for non-numeric port")
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	t.Setenv(EnvModel, "")
	t.Setenv(EnvBaseURL, "")
	t.Setenv(EnvSiteURL, "")
	t.Setenv(EnvPort, "")
	t.Setenv(EnvLogLevel, "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  port: 8081
upstream:
  api_key: sk-file
  base_url: https://gateway.example.com/api/v1/
  model: meta/llama
  timeout: 15s
  headers:
    X-Extra: yes
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 8081 {
		t.Errorf("expected port 8081, got %d", cfg.Server.Port)
	}
	if cfg.Upstream.BaseURL != "https://gateway.example.com/api/v1" {
		t.Errorf("expected trailing slash trimmed, got %q", cfg.Upstream.BaseURL)
	}
	if cfg.Upstream.Timeout != 15*time.Second {
		t.Errorf("expected 15s timeout, got %s", cfg.Upstream.Timeout)
	}
	if cfg.Upstream.Title != DefaultAppTitle {
		t.Errorf("expected default title, got %q", cfg.Upstream.Title)
	}
	if cfg.Upstream.Headers["X-Extra"] != "yes" {
		t.Errorf("extra header missing: %#v", cfg.Upstream.Headers)
	}
	if cfg.Server.MetricsPath != DefaultMetricsPath {
		t.Errorf("expected default metrics path, got %q", cfg.Server.MetricsPath)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv(EnvAPIKey, "sk-env")
	t.Setenv(EnvModel, "")
	t.Setenv(EnvBaseURL, "")
	t.Setenv(EnvSiteURL, "")
	t.Setenv(EnvPort, "")
	t.Setenv(EnvLogLevel, "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("upstream:\n  api_key: sk-file\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Upstream.APIKey != "sk-env" {
		t.Fatalf("expected env credential to win, got %q", cfg.Upstream.APIKey)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server.port",
		},
		{
			name:    "relative metrics path",
			mutate:  func(c *Config) { c.Server.MetricsPath = "metrics" },
			wantErr: "metrics_path",
		},
		{
			name:    "unsupported scheme",
			mutate:  func(c *Config) { c.Upstream.BaseURL = "ftp://openrouter.ai" },
			wantErr: "http or https",
		},
		{
			name:    "missing host",
			mutate:  func(c *Config) { c.Upstream.BaseURL = "https://" },
			wantErr: "host",
		},
		{
			name:    "bad header",
			mutate:  func(c *Config) { c.Upstream.Headers = Headers{"X Bad": "v"} },
			wantErr: "canonical",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: "log.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
