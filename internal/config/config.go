package config

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	CORS      CORSConfig      `yaml:"cors"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Chat      ChatConfig      `yaml:"chat"`
	Policy    PolicyConfig    `yaml:"policy"`
	Routing   RoutingConfig   `yaml:"routing"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// DatabaseConfig points at the PostgreSQL credential store. An empty Host
// disables the database and leaves Redis as the only credential source.
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + strconv.Itoa(d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsPort int    `yaml:"metrics_port"`
}

// CORSConfig is the exact-match origin allow-list for the chat endpoints.
type CORSConfig struct {
	AllowedOrigins []string      `yaml:"allowed_origins"`
	AllowedMethods []string      `yaml:"allowed_methods"`
	AllowedHeaders []string      `yaml:"allowed_headers"`
	MaxAge         time.Duration `yaml:"max_age"`
}

type AuthConfig struct {
	GracePeriod time.Duration `yaml:"grace_period"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

type RateLimitConfig struct {
	Window             time.Duration `yaml:"window"`
	AuthenticatedQuota int           `yaml:"authenticated_quota"`
	AnonymousQuota     int           `yaml:"anonymous_quota"`
	// DevIdentity replaces loopback and unknown client addresses.
	DevIdentity string `yaml:"dev_identity"`
}

type ChatConfig struct {
	MaxSteps        int           `yaml:"max_steps"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	Temperature     float64       `yaml:"temperature"`
}

type PolicyConfig struct {
	Enabled           bool          `yaml:"enabled"`
	BundlePath        string        `yaml:"bundle_path"`
	EvaluationTimeout time.Duration `yaml:"evaluation_timeout"`
}

type RoutingConfig struct {
	StreamFirstChunkTimeout time.Duration        `yaml:"stream_first_chunk_timeout"`
	CircuitBreaker          CircuitBreakerConfig `yaml:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	FailureThreshold      int           `yaml:"failure_threshold"`
	RecoveryProbeInterval time.Duration `yaml:"recovery_probe_interval"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     120 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Port:            5432,
			Name:            "chat",
			User:            "chat",
			MaxOpenConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addresses: []string{"localhost:6379"},
			PoolSize:  50,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsPort: 9090,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization", "X-Username"},
			MaxAge:         24 * time.Hour,
		},
		Auth: AuthConfig{
			GracePeriod: 30 * 24 * time.Hour,
			CacheTTL:    5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Window:             5 * time.Hour,
			AuthenticatedQuota: 25,
			AnonymousQuota:     3,
			DevIdentity:        "localhost-dev",
		},
		Chat: ChatConfig{
			MaxSteps:        10,
			RequestTimeout:  80 * time.Second,
			MaxOutputTokens: 16000,
			MaxBodyBytes:    1 << 20,
			Temperature:     0.7,
		},
		Policy: PolicyConfig{
			BundlePath:        "configs/policies",
			EvaluationTimeout: 100 * time.Millisecond,
		},
		Routing: RoutingConfig{
			StreamFirstChunkTimeout: 30 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold:      5,
				RecoveryProbeInterval: 15 * time.Second,
			},
		},
	}
}

// Validate rejects configurations the gateway cannot serve safely.
func (c *Config) Validate() error {
	if len(c.CORS.AllowedOrigins) == 0 {
		return fmt.Errorf("cors.allowed_origins must not be empty")
	}
	for _, o := range c.CORS.AllowedOrigins {
		if o == "*" {
			return fmt.Errorf("cors.allowed_origins: wildcard origin is not supported")
		}
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be positive")
	}
	if c.RateLimit.AnonymousQuota < 0 || c.RateLimit.AuthenticatedQuota <= 0 {
		return fmt.Errorf("rate_limit quotas must be positive")
	}
	if c.RateLimit.AnonymousQuota > c.RateLimit.AuthenticatedQuota {
		return fmt.Errorf("rate_limit.anonymous_quota (%d) exceeds authenticated_quota (%d)",
			c.RateLimit.AnonymousQuota, c.RateLimit.AuthenticatedQuota)
	}
	if c.Chat.MaxSteps <= 0 {
		return fmt.Errorf("chat.max_steps must be positive")
	}
	if c.Chat.RequestTimeout <= 0 {
		return fmt.Errorf("chat.request_timeout must be positive")
	}
	if c.Chat.MaxOutputTokens <= 0 {
		return fmt.Errorf("chat.max_output_tokens must be positive")
	}
	if c.Auth.GracePeriod < 0 {
		return fmt.Errorf("auth.grace_period must not be negative")
	}
	return nil
}
