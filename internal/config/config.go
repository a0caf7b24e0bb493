package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort        = 8888
	DefaultBaseURL     = "https://openrouter.ai/api/v1"
	DefaultModel       = "deepseek/deepseek-chat:free"
	DefaultSiteURL     = "https://your-netlify-site.netlify.app"
	DefaultAppTitle    = "My AI Assistant"
	DefaultTimeout     = 60 * time.Second
	DefaultMetricsPath = "/metrics"
	DefaultLogLevel    = "info"
)

// Environment variables consulted by ApplyEnv.
const (
	EnvAPIKey   = "OPENROUTER_API_KEY"
	EnvModel    = "OPENROUTER_MODEL"
	EnvBaseURL  = "OPENROUTER_BASE_URL"
	EnvSiteURL  = "URL"
	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"
)

// Config represents the application configuration parsed from YAML and the environment.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port        int    `yaml:"port"`
	MetricsPath string `yaml:"metrics_path"`
}

// UpstreamConfig captures authentication and attribution info for the gateway.
type UpstreamConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	SiteURL string        `yaml:"site_url"`
	Title   string        `yaml:"title"`
	Timeout time.Duration `yaml:"timeout"`
	Headers Headers       `yaml:"headers"`
}

// Headers contains additional HTTP headers to send with an upstream request.
type Headers map[string]string

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a configuration with every optional field populated.
// The credential is left empty.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:        DefaultPort,
			MetricsPath: DefaultMetricsPath,
		},
		Upstream: UpstreamConfig{
			BaseURL: DefaultBaseURL,
			SiteURL: DefaultSiteURL,
			Title:   DefaultAppTitle,
			Timeout: DefaultTimeout,
		},
		Log: LogConfig{Level: DefaultLogLevel},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// process environment, in that order of precedence, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return Config{}, fmt.Errorf("resolve config path: %w", err)
		}

		data, err := os.ReadFile(absPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	cfg.fillDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields with values from the environment. lookup has the
// signature of os.LookupEnv so tests can inject their own environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookupNonEmpty(lookup, EnvAPIKey); ok {
		c.Upstream.APIKey = v
	}
	if v, ok := lookupNonEmpty(lookup, EnvModel); ok {
		c.Upstream.Model = v
	}
	if v, ok := lookupNonEmpty(lookup, EnvBaseURL); ok {
		c.Upstream.BaseURL = v
	}
	if v, ok := lookupNonEmpty(lookup, EnvSiteURL); ok {
		c.Upstream.SiteURL = v
	}
	if v, ok := lookupNonEmpty(lookup, EnvLogLevel); ok {
		c.Log.Level = strings.ToLower(v)
	}
	if v, ok := lookupNonEmpty(lookup, EnvPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvPort, err)
		}
		c.Server.Port = port
	}
	return nil
}

// EffectiveModel returns the configured model override, or the default model.
func (u UpstreamConfig) EffectiveModel() string {
	if model := strings.TrimSpace(u.Model); model != "" {
		return model
	}
	return DefaultModel
}

// HasCredential reports whether an upstream API key is configured.
func (u UpstreamConfig) HasCredential() bool {
	return strings.TrimSpace(u.APIKey) != ""
}

// Validate performs strict sanity checks on the configuration. A missing API
// key is not an error here; it is reported per request.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}
	if !strings.HasPrefix(c.Server.MetricsPath, "/") {
		return fmt.Errorf("server.metrics_path %q must start with /", c.Server.MetricsPath)
	}

	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil {
		return fmt.Errorf("upstream.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("upstream.base_url %q must use http or https", c.Upstream.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("upstream.base_url %q must include a host", c.Upstream.BaseURL)
	}
	if c.Upstream.Timeout < 0 {
		return fmt.Errorf("upstream.timeout must not be negative, got %s", c.Upstream.Timeout)
	}

	for headerKey := range c.Upstream.Headers {
		if !isCanonicalHTTPHeader(headerKey) {
			return fmt.Errorf("upstream: header %q is not a valid canonical HTTP header", headerKey)
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q must be one of debug, info, warn, error", c.Log.Level)
	}

	return nil
}

func (c *Config) fillDefaults() {
	def := Default()
	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Server.MetricsPath == "" {
		c.Server.MetricsPath = def.Server.MetricsPath
	}
	if strings.TrimSpace(c.Upstream.BaseURL) == "" {
		c.Upstream.BaseURL = def.Upstream.BaseURL
	}
	c.Upstream.BaseURL = strings.TrimRight(c.Upstream.BaseURL, "/")
	if strings.TrimSpace(c.Upstream.SiteURL) == "" {
		c.Upstream.SiteURL = def.Upstream.SiteURL
	}
	if strings.TrimSpace(c.Upstream.Title) == "" {
		c.Upstream.Title = def.Upstream.Title
	}
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = def.Upstream.Timeout
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}

func lookupNonEmpty(lookup func(string) (string, bool), key string) (string, bool) {
	v, ok := lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func isCanonicalHTTPHeader(header string) bool {
	if header == "" {
		return false
	}

	for _, r := range header {
		if !(r == '-' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')) {
			return false
		}
	}
	return true
}
