// Package config provides configuration management for the REST API server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/vyrodovalexey/homelab-api/internal/store"
)

// Default configuration values.
const (
	DefaultServerPort         = 8080
	DefaultProbePort          = 9090
	DefaultLogLevel           = "info"
	DefaultShutdownTimeout    = 30 * time.Second
	DefaultMetricsEnabled     = true
	DefaultStoreDriver        = StoreDriverMemory
	DefaultSQLiteDSN          = store.DefaultSQLiteDSN
	DefaultSeedEnabled        = true
	DefaultCORSAllowedOrigins = "*"
	DefaultCompressionEnabled = true
	DefaultProjectName        = "Homelab API"
)

// Store drivers.
const (
	StoreDriverMemory = "memory"
	StoreDriverSQLite = "sqlite"
)

// EnvPrefix is prepended to every configuration key to form its
// environment variable name.
const EnvPrefix = "APP"

// Configuration keys. The environment variable for a key is EnvPrefix + "_" +
// upper-cased key.
const (
	KeyServerPort         = "server_port"
	KeyProbePort          = "probe_port"
	KeyLogLevel           = "log_level"
	KeyShutdownTimeout    = "shutdown_timeout"
	KeyMetricsEnabled     = "metrics_enabled"
	KeyTLSEnabled         = "tls_enabled"
	KeyTLSCertPath        = "tls_cert_path"
	KeyTLSKeyPath         = "tls_key_path"
	KeyStoreDriver        = "store_driver"
	KeySQLiteDSN          = "sqlite_dsn"
	KeySeedEnabled        = "seed_enabled"
	KeyCORSAllowedOrigins = "cors_allowed_origins"
	KeyCompressionEnabled = "compression_enabled"
	KeyProjectName        = "project_name"
)

// Environment variable names.
const (
	EnvServerPort         = "APP_SERVER_PORT"
	EnvProbePort          = "APP_PROBE_PORT"
	EnvLogLevel           = "APP_LOG_LEVEL"
	EnvShutdownTimeout    = "APP_SHUTDOWN_TIMEOUT"
	EnvMetricsEnabled     = "APP_METRICS_ENABLED"
	EnvTLSEnabled         = "APP_TLS_ENABLED"
	EnvTLSCertPath        = "APP_TLS_CERT_PATH"
	EnvTLSKeyPath         = "APP_TLS_KEY_PATH"
	EnvStoreDriver        = "APP_STORE_DRIVER"
	EnvSQLiteDSN          = "APP_SQLITE_DSN"
	EnvSeedEnabled        = "APP_SEED_ENABLED"
	EnvCORSAllowedOrigins = "APP_CORS_ALLOWED_ORIGINS"
	EnvCompressionEnabled = "APP_COMPRESSION_ENABLED"
	EnvProjectName        = "APP_PROJECT_NAME"
)

// Config holds the application configuration.
type Config struct {
	// Server settings.
	ServerPort      int
	ProbePort       int // Probe server port (0 = disabled).
	LogLevel        string
	ShutdownTimeout time.Duration
	MetricsEnabled  bool
	ProjectName     string

	// TLS settings.
	TLSEnabled  bool
	TLSCertPath string
	TLSKeyPath  string

	// Store settings.
	StoreDriver string
	SQLiteDSN   string
	SeedEnabled bool

	// HTTP settings.
	CORSAllowedOrigins []string
	CompressionEnabled bool
}

// Validation errors.
var (
	ErrInvalidServerPort      = errors.New("server port must be between 1 and 65535")
	ErrInvalidLogLevel        = errors.New("log level must be one of: debug, info, warn, error")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
	ErrInvalidTLSCertRequired = errors.New(
		"TLS cert path and key path must be set when TLS is enabled",
	)
	ErrInvalidProbePort = errors.New(
		"probe port must be between 0 and 65535",
	)
	ErrProbePortConflict = errors.New(
		"probe port must differ from server port when probe port is not 0",
	)
	ErrInvalidStoreDriver = errors.New("store driver must be one of: memory, sqlite")
	ErrInvalidSQLiteDSN   = errors.New("sqlite DSN must point to an in-memory database")
	ErrEmptyProjectName   = errors.New("project name must not be empty")
)

// NewViper returns a viper instance with the defaults registered and
// APP_* environment variables bound.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	v.SetDefault(KeyServerPort, DefaultServerPort)
	v.SetDefault(KeyProbePort, DefaultProbePort)
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyShutdownTimeout, DefaultShutdownTimeout)
	v.SetDefault(KeyMetricsEnabled, DefaultMetricsEnabled)
	v.SetDefault(KeyTLSEnabled, false)
	v.SetDefault(KeyTLSCertPath, "")
	v.SetDefault(KeyTLSKeyPath, "")
	v.SetDefault(KeyStoreDriver, DefaultStoreDriver)
	v.SetDefault(KeySQLiteDSN, DefaultSQLiteDSN)
	v.SetDefault(KeySeedEnabled, DefaultSeedEnabled)
	v.SetDefault(KeyCORSAllowedOrigins, DefaultCORSAllowedOrigins)
	v.SetDefault(KeyCompressionEnabled, DefaultCompressionEnabled)
	v.SetDefault(KeyProjectName, DefaultProjectName)

	return v
}

// Load reads configuration from environment variables with defaults.
// Environment variables have priority over default values.
func Load() (*Config, error) {
	return LoadFrom(NewViper())
}

// LoadFrom builds a Config from v and validates it. Flags bound to v take
// priority over environment variables.
func LoadFrom(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	if err := cfg.load(v); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// load decodes every key, reporting the first malformed value.
func (c *Config) load(v *viper.Viper) error {
	var err error

	if c.ServerPort, err = getInt(v, KeyServerPort); err != nil {
		return err
	}
	if c.ProbePort, err = getInt(v, KeyProbePort); err != nil {
		return err
	}
	if c.ShutdownTimeout, err = getDuration(v, KeyShutdownTimeout); err != nil {
		return err
	}
	if c.MetricsEnabled, err = getBool(v, KeyMetricsEnabled); err != nil {
		return err
	}
	if c.TLSEnabled, err = getBool(v, KeyTLSEnabled); err != nil {
		return err
	}
	if c.SeedEnabled, err = getBool(v, KeySeedEnabled); err != nil {
		return err
	}
	if c.CompressionEnabled, err = getBool(v, KeyCompressionEnabled); err != nil {
		return err
	}

	c.LogLevel = strings.ToLower(strings.TrimSpace(v.GetString(KeyLogLevel)))
	c.TLSCertPath = v.GetString(KeyTLSCertPath)
	c.TLSKeyPath = v.GetString(KeyTLSKeyPath)
	c.StoreDriver = strings.ToLower(strings.TrimSpace(v.GetString(KeyStoreDriver)))
	c.SQLiteDSN = v.GetString(KeySQLiteDSN)
	c.CORSAllowedOrigins = splitList(v.GetString(KeyCORSAllowedOrigins))
	c.ProjectName = strings.TrimSpace(v.GetString(KeyProjectName))

	return nil
}

// getInt, getDuration and getBool use cast's E variants so that malformed
// values are reported instead of silently becoming zero.
func getInt(v *viper.Viper, key string) (int, error) {
	n, err := cast.ToIntE(v.Get(key))
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", envName(key), err)
	}
	return n, nil
}

func getDuration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := cast.ToDurationE(v.Get(key))
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", envName(key), err)
	}
	return d, nil
}

func getBool(v *viper.Viper, key string) (bool, error) {
	b, err := cast.ToBoolE(v.Get(key))
	if err != nil {
		return false, fmt.Errorf("parsing %s: %w", envName(key), err)
	}
	return b, nil
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(key)
}

// splitList splits a comma separated list, dropping blank entries.
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateTLS(); err != nil {
		return err
	}

	return c.validateStore()
}

// validateServer validates server-related configuration.
func (c *Config) validateServer() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return ErrInvalidServerPort
	}

	if c.ProbePort < 0 || c.ProbePort > 65535 {
		return ErrInvalidProbePort
	}

	if c.ProbePort != 0 && c.ProbePort == c.ServerPort {
		return ErrProbePortConflict
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return ErrInvalidLogLevel
	}

	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}

	if c.ProjectName == "" {
		return ErrEmptyProjectName
	}

	return nil
}

// validateTLS validates TLS-related configuration.
func (c *Config) validateTLS() error {
	if c.TLSEnabled && (c.TLSCertPath == "" || c.TLSKeyPath == "") {
		return ErrInvalidTLSCertRequired
	}

	return nil
}

// validateStore validates the store backend selection.
func (c *Config) validateStore() error {
	switch c.StoreDriver {
	case StoreDriverMemory:
		return nil
	case StoreDriverSQLite:
		if !store.IsInMemoryDSN(c.SQLiteDSN) {
			return ErrInvalidSQLiteDSN
		}
		return nil
	default:
		return ErrInvalidStoreDriver
	}
}

// Address returns the server address in host:port format.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

// ProbeAddress returns the probe server address in host:port format.
func (c *Config) ProbeAddress() string {
	return fmt.Sprintf(":%d", c.ProbePort)
}
