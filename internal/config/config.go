// Package config provides Viper-based configuration loading for the Job Wars
// session server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// HTTPConfig holds the listener and WebSocket transport settings.
type HTTPConfig struct {
	// Host is the bind address for the HTTP listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the HTTP listener. The bare PORT environment
	// variable overrides it.
	Port int `mapstructure:"port"`
	// ReadHeaderTimeout bounds how long a client may take to send request headers.
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	// ShutdownTimeout bounds graceful shutdown of in-flight requests.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// WriteWait is the deadline for a single WebSocket frame write.
	WriteWait time.Duration `mapstructure:"write_wait"`
	// PongWait is how long a WebSocket may stay silent before it is considered dead.
	PongWait time.Duration `mapstructure:"pong_wait"`
	// MaxMessageBytes caps the size of an inbound WebSocket frame.
	MaxMessageBytes int64 `mapstructure:"max_message_bytes"`
	// SendBuffer is the per-connection outbound queue length.
	SendBuffer int `mapstructure:"send_buffer"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// SessionConfig holds room, timer and anti-abuse settings.
type SessionConfig struct {
	TurnDuration    time.Duration `mapstructure:"turn_duration"`
	ReconnectGrace  time.Duration `mapstructure:"reconnect_grace"`
	RoomExpiry      time.Duration `mapstructure:"room_expiry"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	// RateWindow is the trailing lookback used to count a participant's actions.
	RateWindow time.Duration `mapstructure:"rate_window"`
	// MaxActionsPerWindow is the number of logged actions that triggers RATE_LIMIT.
	MaxActionsPerWindow int `mapstructure:"max_actions_per_window"`
	// KickThreshold is the violation count a room may exceed before the
	// offender is kicked.
	KickThreshold int `mapstructure:"kick_threshold"`
	ActionLogSize int `mapstructure:"action_log_size"`
	// ValidateActions runs the rules validator against the mirrored state
	// before relaying an action.
	ValidateActions bool `mapstructure:"validate_actions"`
	// RecordTimeout bounds a single match history write.
	RecordTimeout time.Duration `mapstructure:"record_timeout"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// RedisConfig holds the stats cache settings.
type RedisConfig struct {
	// Enabled turns the read-through cache on. When false the HTTP API reads
	// PostgreSQL directly.
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Session  SessionConfig  `mapstructure:"session"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateHTTP(c.HTTP); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateSession(c.Session); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateDatabase(c.Database); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateRedis(c.Redis); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateHTTP(h HTTPConfig) error {
	var errs []string
	if h.Port < 1 || h.Port > 65535 {
		errs = append(errs, fmt.Sprintf("http.port must be 1-65535, got %d", h.Port))
	}
	if h.WriteWait <= 0 {
		errs = append(errs, "http.write_wait must be positive")
	}
	if h.PongWait <= 0 {
		errs = append(errs, "http.pong_wait must be positive")
	}
	if h.MaxMessageBytes < 1 {
		errs = append(errs, fmt.Sprintf("http.max_message_bytes must be >= 1, got %d", h.MaxMessageBytes))
	}
	if h.SendBuffer < 1 {
		errs = append(errs, fmt.Sprintf("http.send_buffer must be >= 1, got %d", h.SendBuffer))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateSession(s SessionConfig) error {
	var errs []string
	positive := []struct {
		name string
		d    time.Duration
	}{
		{"session.turn_duration", s.TurnDuration},
		{"session.reconnect_grace", s.ReconnectGrace},
		{"session.room_expiry", s.RoomExpiry},
		{"session.cleanup_interval", s.CleanupInterval},
		{"session.ping_interval", s.PingInterval},
		{"session.rate_window", s.RateWindow},
		{"session.record_timeout", s.RecordTimeout},
	}
	for _, p := range positive {
		if p.d <= 0 {
			errs = append(errs, fmt.Sprintf("%s must be positive, got %s", p.name, p.d))
		}
	}
	if s.MaxActionsPerWindow < 1 {
		errs = append(errs, fmt.Sprintf("session.max_actions_per_window must be >= 1, got %d", s.MaxActionsPerWindow))
	}
	if s.KickThreshold < 0 {
		errs = append(errs, fmt.Sprintf("session.kick_threshold must be >= 0, got %d", s.KickThreshold))
	}
	if s.ActionLogSize < s.MaxActionsPerWindow {
		errs = append(errs, fmt.Sprintf("session.action_log_size must be >= session.max_actions_per_window, got %d", s.ActionLogSize))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateRedis(r RedisConfig) error {
	if !r.Enabled {
		return nil
	}
	var errs []string
	if r.Addr == "" {
		errs = append(errs, "redis.addr must not be empty when redis.enabled is true")
	}
	if r.DB < 0 {
		errs = append(errs, fmt.Sprintf("redis.db must be >= 0, got %d", r.DB))
	}
	if r.TTL <= 0 {
		errs = append(errs, "redis.ttl must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromViper(v)
}

// LoadDefaults builds a Config from defaults and environment variables only.
//
// Postcondition: Returns a valid Config or a non-nil error.
func LoadDefaults() (Config, error) {
	return LoadFromViper(newViper())
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()

	// Environment variable overrides with JOBWARS_ prefix
	v.SetEnvPrefix("JOBWARS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Hosting platforms hand out the listen port as bare PORT.
	_ = v.BindEnv("http.port", "JOBWARS_HTTP_PORT", "PORT")

	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 3001)
	v.SetDefault("http.read_header_timeout", "10s")
	v.SetDefault("http.shutdown_timeout", "10s")
	v.SetDefault("http.write_wait", "10s")
	v.SetDefault("http.pong_wait", "60s")
	v.SetDefault("http.max_message_bytes", 65536)
	v.SetDefault("http.send_buffer", 256)

	v.SetDefault("session.turn_duration", "90s")
	v.SetDefault("session.reconnect_grace", "120s")
	v.SetDefault("session.room_expiry", "1h")
	v.SetDefault("session.cleanup_interval", "5m")
	v.SetDefault("session.ping_interval", "30s")
	v.SetDefault("session.rate_window", "1s")
	v.SetDefault("session.max_actions_per_window", 10)
	v.SetDefault("session.kick_threshold", 5)
	v.SetDefault("session.action_log_size", 100)
	v.SetDefault("session.validate_actions", false)
	v.SetDefault("session.record_timeout", "5s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "jobwars")
	v.SetDefault("database.password", "jobwars")
	v.SetDefault("database.name", "jobwars")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "30s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
