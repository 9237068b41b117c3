package utils

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override, e.g. MANGARELAY_SERVER_PORT.
const EnvPrefix = "MANGARELAY_"

// ConfigPathEnv overrides the config file location.
const ConfigPathEnv = EnvPrefix + "CONFIG"

// DefaultConfigPaths are tried in order when no path is given.
var DefaultConfigPaths = []string{"config.yaml", "config.yml", "/etc/mangarelay/config.yaml"}

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	GRPC       GRPCConfig       `koanf:"grpc"`
	Upstream   UpstreamConfig   `koanf:"upstream"`
	Relay      RelayConfig      `koanf:"relay"`
	Aggregator AggregatorConfig `koanf:"aggregator"`
	Logging    LoggingConfig    `koanf:"logging"`
}

type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port" validate:"min=1,max=65535"`
	BasePath          string        `koanf:"base_path" validate:"omitempty,startswith=/"`
	RequestTimeout    time.Duration `koanf:"request_timeout" validate:"gte=0"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	// RateLimitRequests per RateLimitWindow per client IP; 0 disables.
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
}

// Addr is the listen address of the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type GRPCConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr" validate:"required_if=Enabled true"`
}

type BreakerConfig struct {
	MaxRequests  uint32        `koanf:"max_requests"`
	Interval     time.Duration `koanf:"interval" validate:"gte=0"`
	Timeout      time.Duration `koanf:"timeout" validate:"gt=0"`
	MinRequests  uint32        `koanf:"min_requests" validate:"gt=0"`
	FailureRatio float64       `koanf:"failure_ratio" validate:"gt=0,lte=1"`
}

type UpstreamConfig struct {
	BaseURL             string        `koanf:"base_url" validate:"required,url"`
	CoverBaseURL        string        `koanf:"cover_base_url" validate:"required,url"`
	UserAgent           string        `koanf:"user_agent" validate:"required"`
	Timeout             time.Duration `koanf:"timeout" validate:"gt=0"`
	RequestsPerSecond   float64       `koanf:"requests_per_second" validate:"gte=0"`
	Burst               int           `koanf:"burst" validate:"gte=1"`
	Locales             []string      `koanf:"locales" validate:"min=1,dive,required"`
	TranslatedLanguages []string      `koanf:"translated_languages" validate:"dive,required"`
	Breaker             BreakerConfig `koanf:"breaker"`
}

type RelayConfig struct {
	UserAgent       string        `koanf:"user_agent" validate:"required"`
	CacheMaxAge     time.Duration `koanf:"cache_max_age" validate:"gt=0"`
	HeaderTimeout   time.Duration `koanf:"header_timeout" validate:"gt=0"`
	TransferTimeout time.Duration `koanf:"transfer_timeout" validate:"gte=0"`
	AllowedHosts    []string      `koanf:"allowed_hosts" validate:"dive,required"`
	BufferSize      int           `koanf:"buffer_size" validate:"gte=512"`
}

type AggregatorConfig struct {
	RecentTarget        int           `koanf:"recent_target" validate:"min=1,max=100"`
	DiscoveryPageSize   int           `koanf:"discovery_page_size" validate:"min=1,max=100"`
	DiscoveryOffsetCap  int           `koanf:"discovery_offset_cap" validate:"gtefield=DiscoveryPageSize"`
	FallbackLimit       int           `koanf:"fallback_limit" validate:"min=1,max=100"`
	PopularLimit        int           `koanf:"popular_limit" validate:"min=1,max=100"`
	FeedLimit           int           `koanf:"feed_limit" validate:"min=1,max=500"`
	SearchMinQuery      int           `koanf:"search_min_query" validate:"min=1"`
	SearchDefaultLimit  int           `koanf:"search_default_limit" validate:"min=1,ltefield=SearchMaxLimit"`
	SearchMaxLimit      int           `koanf:"search_max_limit" validate:"min=1,max=100"`
	PopularRecentWindow time.Duration `koanf:"popular_recent_window" validate:"gt=0"`
	SpeculativeFallback bool          `koanf:"speculative_fallback"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error disabled off"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			RequestTimeout:    30 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 300,
			RateLimitWindow:   time.Minute,
		},
		GRPC: GRPCConfig{
			Enabled: false,
			Addr:    ":9090",
		},
		Upstream: UpstreamConfig{
			BaseURL:             "https://api.mangadex.org",
			CoverBaseURL:        "https://uploads.mangadex.org/covers",
			UserAgent:           "mangarelay/1.0",
			Timeout:             10 * time.Second,
			RequestsPerSecond:   5,
			Burst:               5,
			Locales:             []string{"en", "en-us"},
			TranslatedLanguages: []string{"en"},
			Breaker: BreakerConfig{
				MaxRequests:  1,
				Interval:     time.Minute,
				Timeout:      30 * time.Second,
				MinRequests:  5,
				FailureRatio: 0.6,
			},
		},
		Relay: RelayConfig{
			UserAgent:       "mangarelay/1.0",
			CacheMaxAge:     24 * time.Hour,
			HeaderTimeout:   15 * time.Second,
			TransferTimeout: 2 * time.Minute,
			AllowedHosts:    []string{"mangadex.org", "mangadex.network"},
			BufferSize:      32 * 1024,
		},
		Aggregator: AggregatorConfig{
			RecentTarget:        10,
			DiscoveryPageSize:   100,
			DiscoveryOffsetCap:  500,
			FallbackLimit:       10,
			PopularLimit:        10,
			FeedLimit:           500,
			SearchMinQuery:      3,
			SearchDefaultLimit:  50,
			SearchMaxLimit:      100,
			PopularRecentWindow: 365 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// sliceConfigPaths may be given as comma-separated strings in the environment.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"upstream.locales",
	"upstream.translated_languages",
	"relay.allowed_hosts",
}

var envMappings = map[string]string{
	"server_host":                     "server.host",
	"server_port":                     "server.port",
	"server_base_path":                "server.base_path",
	"server_request_timeout":          "server.request_timeout",
	"server_read_header_timeout":      "server.read_header_timeout",
	"server_shutdown_timeout":         "server.shutdown_timeout",
	"server_cors_origins":             "server.cors_origins",
	"server_rate_limit_requests":      "server.rate_limit_requests",
	"server_rate_limit_window":        "server.rate_limit_window",
	"grpc_enabled":                    "grpc.enabled",
	"grpc_addr":                       "grpc.addr",
	"upstream_base_url":               "upstream.base_url",
	"upstream_cover_base_url":         "upstream.cover_base_url",
	"upstream_user_agent":             "upstream.user_agent",
	"upstream_timeout":                "upstream.timeout",
	"upstream_requests_per_second":    "upstream.requests_per_second",
	"upstream_burst":                  "upstream.burst",
	"upstream_locales":                "upstream.locales",
	"upstream_translated_languages":   "upstream.translated_languages",
	"upstream_breaker_timeout":        "upstream.breaker.timeout",
	"upstream_breaker_min_requests":   "upstream.breaker.min_requests",
	"upstream_breaker_failure_ratio":  "upstream.breaker.failure_ratio",
	"relay_user_agent":                "relay.user_agent",
	"relay_cache_max_age":             "relay.cache_max_age",
	"relay_header_timeout":            "relay.header_timeout",
	"relay_transfer_timeout":          "relay.transfer_timeout",
	"relay_allowed_hosts":             "relay.allowed_hosts",
	"aggregator_recent_target":        "aggregator.recent_target",
	"aggregator_speculative_fallback": "aggregator.speculative_fallback",
	"aggregator_popular_limit":        "aggregator.popular_limit",
	"logging_level":                   "logging.level",
	"logging_format":                  "logging.format",
	"logging_caller":                  "logging.caller",
}

// envTransform maps MANGARELAY_SERVER_PORT to server.port. Unknown
// variables map to "" and are skipped.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	return envMappings[key]
}

// LoadConfig layers defaults, an optional YAML file and environment
// variables, then validates the result. An empty path falls back to
// MANGARELAY_CONFIG and DefaultConfigPaths.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// findConfigFile returns MANGARELAY_CONFIG if set, else the first existing
// default path.
func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnv); p != "" {
		return p
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}
