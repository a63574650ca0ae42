package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/gateway/broker/bridge"
)

// Config is the complete gateway configuration
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	Upstream   UpstreamConfig   `json:"upstream" yaml:"upstream"`
	Store      StoreConfig      `json:"store" yaml:"store"`
	Log        LogConfig        `json:"log" yaml:"log"`
	Translator TranslatorConfig `json:"translator" yaml:"translator"`
}

// ServerConfig contains the HTTP listener settings
type ServerConfig struct {
	Listen          string   `json:"listen" yaml:"listen"`
	CORSOrigins     []string `json:"cors_origins,omitempty" yaml:"cors_origins,omitempty"`
	ShutdownTimeout string   `json:"shutdown_timeout" yaml:"shutdown_timeout"` // e.g. "10s"
}

// UpstreamConfig describes the broker trade bridge
type UpstreamConfig struct {
	BaseURL          string       `json:"base_url" yaml:"base_url"`
	Paths            bridge.Paths `json:"paths" yaml:"paths"`
	CloseTimeoutMS   int          `json:"close_timeout_ms" yaml:"close_timeout_ms"`
	ModifyTimeoutMS  int          `json:"modify_timeout_ms" yaml:"modify_timeout_ms"`
	RequestTimeoutMS int          `json:"request_timeout_ms" yaml:"request_timeout_ms"`

	// CloseAllConcurrency bounds parallel closes in close-all; 0 uses the default.
	CloseAllConcurrency int `json:"close_all_concurrency,omitempty" yaml:"close_all_concurrency,omitempty"`
}

// StoreConfig locates the SQLite database holding accounts and the journal
type StoreConfig struct {
	DBPath string `json:"db_path" yaml:"db_path"`
}

// LogConfig contains logging parameters
type LogConfig struct {
	Level      string `json:"level" yaml:"level"`
	Format     string `json:"format" yaml:"format"` // "text" or "json"
	File       string `json:"file,omitempty" yaml:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" yaml:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty" yaml:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty" yaml:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty" yaml:"compress,omitempty"`
}

// TranslatorConfig tunes order translation
type TranslatorConfig struct {
	CryptoTickers []string `json:"crypto_tickers,omitempty" yaml:"crypto_tickers,omitempty"`
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// BridgeOptions converts the upstream section into bridge client options.
func (c *Config) BridgeOptions(log logrus.FieldLogger) bridge.Options {
	return bridge.Options{
		BaseURL:        c.Upstream.BaseURL,
		Paths:          c.Upstream.Paths,
		CloseTimeout:   ms(c.Upstream.CloseTimeoutMS),
		ModifyTimeout:  ms(c.Upstream.ModifyTimeoutMS),
		RequestTimeout: ms(c.Upstream.RequestTimeoutMS),
		CryptoTickers:  c.Translator.CryptoTickers,
		Logger:         log,

		CloseAllConcurrency: c.Upstream.CloseAllConcurrency,
	}
}

// ShutdownGrace parses server.shutdown_timeout, defaulting to 10s.
func (s ServerConfig) ShutdownGrace() (time.Duration, error) {
	if s.ShutdownTimeout == "" {
		return 10 * time.Second, nil
	}
	return time.ParseDuration(s.ShutdownTimeout)
}

// LoadFromFile loads configuration from a YAML or JSON file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}
	cfg.Upstream.Paths = cfg.Upstream.Paths.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Load reads the config file when path is set, otherwise starts from
// Default, then applies environment overrides. envFile, when set, is loaded
// into the environment first; variables already set win.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}

	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from GATEWAY_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("GATEWAY_LISTEN", &c.Server.Listen)
	str("GATEWAY_UPSTREAM_BASE_URL", &c.Upstream.BaseURL)
	str("GATEWAY_UPSTREAM_LOGIN_PATH", &c.Upstream.Paths.Login)
	str("GATEWAY_DB", &c.Store.DBPath)
	str("GATEWAY_LOG_LEVEL", &c.Log.Level)
	str("GATEWAY_LOG_FILE", &c.Log.File)
	if v, ok := lookup("GATEWAY_CORS_ORIGINS"); ok && strings.TrimSpace(v) != "" {
		c.Server.CORSOrigins = splitList(v)
	}
	if v, ok := lookup("GATEWAY_CRYPTO_TICKERS"); ok && strings.TrimSpace(v) != "" {
		c.Translator.CryptoTickers = splitList(v)
	}
	if err := num("GATEWAY_CLOSE_TIMEOUT_MS", &c.Upstream.CloseTimeoutMS); err != nil {
		return err
	}
	if err := num("GATEWAY_MODIFY_TIMEOUT_MS", &c.Upstream.ModifyTimeoutMS); err != nil {
		return err
	}
	return num("GATEWAY_REQUEST_TIMEOUT_MS", &c.Upstream.RequestTimeoutMS)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// SaveToFile writes YAML for .yaml/.yml paths and indented JSON otherwise
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is usable
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if _, err := c.Server.ShutdownGrace(); err != nil {
		return fmt.Errorf("server.shutdown_timeout: %w", err)
	}
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("upstream.base_url must be an absolute http(s) URL")
	}
	if c.Upstream.CloseTimeoutMS < 0 || c.Upstream.ModifyTimeoutMS < 0 || c.Upstream.RequestTimeoutMS < 0 {
		return fmt.Errorf("upstream timeouts must not be negative")
	}
	if c.Upstream.CloseAllConcurrency < 0 {
		return fmt.Errorf("upstream.close_all_concurrency must not be negative")
	}
	if c.Store.DBPath == "" {
		return fmt.Errorf("store.db_path is required")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be 'text' or 'json'")
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          ":8080",
			ShutdownTimeout: "10s",
		},
		Upstream: UpstreamConfig{
			BaseURL:          "http://localhost:5000/api",
			Paths:            bridge.DefaultPaths(),
			CloseTimeoutMS:   int(bridge.DefaultCloseTimeout / time.Millisecond),
			ModifyTimeoutMS:  int(bridge.DefaultModifyTimeout / time.Millisecond),
			RequestTimeoutMS: int(bridge.DefaultRequestTimeout / time.Millisecond),
		},
		Store: StoreConfig{
			DBPath: "./gateway.sqlite",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Translator: TranslatorConfig{
			CryptoTickers: append([]string(nil), bridge.DefaultCryptoTickers...),
		},
	}
}
