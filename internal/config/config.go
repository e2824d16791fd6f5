// Package config loads proxy settings from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adeilh/animeproxy/jikan"
)

// Environment overrides, applied after the file.
const (
	EnvConfig   = "ANIMEPROXY_CONFIG"
	EnvAddr     = "ANIMEPROXY_ADDR"
	EnvPort     = "PORT"
	EnvUpstream = "ANIMEPROXY_UPSTREAM"
	EnvCache    = "ANIMEPROXY_CACHE"
	EnvLog      = "ANIMEPROXY_LOG"
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Server   Server   `yaml:"server"`
	Upstream Upstream `yaml:"upstream"`
	Cache    Cache    `yaml:"cache"`
	Log      Log      `yaml:"log"`
}

type Server struct {
	Address         string   `yaml:"address"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string `yaml:"cors_origins"`
}

type Upstream struct {
	BaseURL string   `yaml:"base_url"`
	Timeout Duration `yaml:"timeout"`
	// UserAgent and Headers are sent only when set; requests are plain GETs
	// otherwise.
	UserAgent   string            `yaml:"user_agent"`
	Headers     map[string]string `yaml:"headers"`
	MaxAttempts int               `yaml:"max_attempts"`
	Backoff     Duration          `yaml:"backoff"`
	// RateLimit is in requests per second; zero disables client-side limiting.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
	Coalesce  bool    `yaml:"coalesce"`
}

type Cache struct {
	Enabled  bool     `yaml:"enabled"`
	TTL      Duration `yaml:"ttl"`
	Capacity int      `yaml:"capacity"`
	Sweep    bool     `yaml:"sweep"`
}

type Log struct {
	Level string `yaml:"level"`
}

func Default() Config {
	return Config{
		Server: Server{
			Address:         ":5000",
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(5 * time.Second),
		},
		Upstream: Upstream{
			BaseURL:     jikan.DefaultBaseURL,
			Timeout:     Duration(10 * time.Second),
			MaxAttempts: 3,
			Backoff:     Duration(time.Second),
			RateLimit:   3,
			Burst:       1,
		},
		Cache: Cache{
			Enabled: true,
			TTL:     Duration(5 * time.Minute),
		},
		Log: Log{Level: "info"},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path falls back to $ANIMEPROXY_CONFIG; when neither is set only
// defaults and environment are used.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if port, ok := lookup(EnvPort); ok && port != "" {
		c.Server.Address = ":" + strings.TrimPrefix(port, ":")
	}
	if addr, ok := lookup(EnvAddr); ok && addr != "" {
		c.Server.Address = addr
	}
	if base, ok := lookup(EnvUpstream); ok && base != "" {
		c.Upstream.BaseURL = base
	}
	if v, ok := lookup(EnvCache); ok && (v == "0" || strings.EqualFold(v, "false")) {
		c.Cache.Enabled = false
	}
	if lvl, ok := lookup(EnvLog); ok && lvl != "" {
		c.Log.Level = lvl
	}
}

// Validate reports every problem at once, each wrapped in ErrInvalid.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Address) == "" {
		errs = append(errs, fmt.Errorf("%w: server.address is empty", ErrInvalid))
	}
	if strings.TrimSpace(c.Upstream.BaseURL) == "" {
		errs = append(errs, fmt.Errorf("%w: upstream.base_url is empty", ErrInvalid))
	}
	if c.Upstream.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("%w: upstream.max_attempts must be at least 1", ErrInvalid))
	}
	if c.Upstream.Backoff < 0 {
		errs = append(errs, fmt.Errorf("%w: upstream.backoff is negative", ErrInvalid))
	}
	if c.Upstream.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("%w: upstream.rate_limit is negative", ErrInvalid))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("%w: cache.ttl must be positive", ErrInvalid))
	}
	if c.Cache.Capacity < 0 {
		errs = append(errs, fmt.Errorf("%w: cache.capacity is negative", ErrInvalid))
	}
	return errors.Join(errs...)
}

// Duration is a time.Duration written as "5m" or "1500ms" in YAML.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }
