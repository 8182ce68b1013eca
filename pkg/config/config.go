// Package config loads the frontend configuration from a YAML file and
// COPR_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/copr-farm/copr/pkg/cleanup"
	"github.com/copr-farm/copr/pkg/logic"
	"github.com/copr-farm/copr/pkg/models"
	"github.com/copr-farm/copr/pkg/ratelimit"
	"github.com/copr-farm/copr/pkg/store"
	"github.com/copr-farm/copr/pkg/tls"
	"github.com/copr-farm/copr/pkg/tracing"
)

// EnvPrefix prefixes every environment override, server.port is COPR_SERVER_PORT
const EnvPrefix = "COPR"

// Config is the full frontend configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Backend    BackendConfig    `mapstructure:"backend"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Builds     BuildsConfig     `mapstructure:"builds"`
	Chroots    ChrootsConfig    `mapstructure:"chroots"`
	Cleanup    CleanupConfig    `mapstructure:"cleanup"`
	Pagination PaginationConfig `mapstructure:"pagination"`
	Frontend   FrontendConfig   `mapstructure:"frontend"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TLS             TLSConfig     `mapstructure:"tls"`
}

type TLSConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	CertFile     string   `mapstructure:"cert_file"`
	KeyFile      string   `mapstructure:"key_file"`
	CAFile       string   `mapstructure:"ca_file"`
	AutoGenerate bool     `mapstructure:"auto_generate"`
	Hosts        []string `mapstructure:"hosts"`
}

type DatabaseConfig struct {
	Type            string        `mapstructure:"type"`
	DSN             string        `mapstructure:"dsn"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

type BackendConfig struct {
	Password string `mapstructure:"password"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
	// File enables file output under Dir in addition to stdout
	File          bool   `mapstructure:"file"`
	Dir           string `mapstructure:"dir"`
	RotateMaxSize int64  `mapstructure:"rotate_max_size"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	Insecure    bool   `mapstructure:"insecure"`
	Environment string `mapstructure:"environment"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
	// TrustedProxies lists addresses or CIDRs whose X-Forwarded-For is believed
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type BuildsConfig struct {
	// MaxTimeout caps build timeouts, in seconds
	MaxTimeout int `mapstructure:"max_timeout"`
}

type ChrootsConfig struct {
	PreservationDays int `mapstructure:"preservation_days"`
}

type CleanupConfig struct {
	Enabled               bool          `mapstructure:"enabled"`
	Interval              time.Duration `mapstructure:"interval"`
	InitialDelay          time.Duration `mapstructure:"initial_delay"`
	ActionRetention       time.Duration `mapstructure:"action_retention"`
	DeleteOutdatedChroots bool          `mapstructure:"delete_outdated_chroots"`
	BatchSize             int           `mapstructure:"batch_size"`
}

type PaginationConfig struct {
	PerPage int `mapstructure:"per_page"`
}

type FrontendConfig struct {
	URL        string `mapstructure:"url"`
	DistGitURL string `mapstructure:"dist_git_url"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.tls.enabled", false)
	v.SetDefault("server.tls.cert_file", "certs/frontend.crt")
	v.SetDefault("server.tls.key_file", "certs/frontend.key")
	v.SetDefault("server.tls.ca_file", "")
	v.SetDefault("server.tls.auto_generate", false)
	v.SetDefault("server.tls.hosts", []string{})

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", "copr.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.conn_max_idle_time", time.Minute)

	v.SetDefault("backend.password", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json", false)
	v.SetDefault("logging.file", false)
	v.SetDefault("logging.dir", "")
	v.SetDefault("logging.rotate_max_size", 100<<20)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.environment", "production")

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.rps", 10.0)
	v.SetDefault("ratelimit.burst", 20)
	v.SetDefault("ratelimit.trusted_proxies", []string{})

	v.SetDefault("builds.max_timeout", models.MaxBuildTimeout)
	v.SetDefault("chroots.preservation_days", 180)

	def := cleanup.DefaultConfig()
	v.SetDefault("cleanup.enabled", true)
	v.SetDefault("cleanup.interval", def.Interval)
	v.SetDefault("cleanup.initial_delay", def.InitialDelay)
	v.SetDefault("cleanup.action_retention", def.ActionRetention)
	v.SetDefault("cleanup.delete_outdated_chroots", true)
	v.SetDefault("cleanup.batch_size", def.BatchSize)

	v.SetDefault("pagination.per_page", 10)
	v.SetDefault("frontend.url", "http://localhost:8080")
	v.SetDefault("frontend.dist_git_url", "")
}

// Load reads the configuration. An empty path uses defaults and the
// environment only. Every key needs a default for viper to pick up its
// environment override when unmarshalling.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the frontend cannot start with
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Metrics.Enabled && c.Metrics.Port == c.Server.Port {
		errs = append(errs, errors.New("metrics.port must differ from server.port"))
	}
	switch c.Database.Type {
	case "sqlite":
		if c.Database.Path == "" && c.Database.DSN == "" {
			errs = append(errs, errors.New("database.path is required for sqlite"))
		}
	case "postgres", "postgresql":
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported database.type %q", c.Database.Type))
	}
	if c.RateLimit.Enabled && c.RateLimit.RPS <= 0 {
		errs = append(errs, errors.New("ratelimit.rps must be positive"))
	}
	if _, err := ratelimit.NewClientIP(c.RateLimit.TrustedProxies); err != nil {
		errs = append(errs, fmt.Errorf("ratelimit.trusted_proxies: %w", err))
	}
	if c.Builds.MaxTimeout <= 0 {
		errs = append(errs, errors.New("builds.max_timeout must be positive"))
	}
	if c.Chroots.PreservationDays <= 0 {
		errs = append(errs, errors.New("chroots.preservation_days must be positive"))
	}
	return errors.Join(errs...)
}

// StoreConfig maps the database section onto the store
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Type:            c.Database.Type,
		DSN:             c.Database.DSN,
		Path:            c.Database.Path,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		ConnMaxIdleTime: c.Database.ConnMaxIdleTime,
	}
}

// LogicConfig maps the build, chroot and pagination settings
func (c *Config) LogicConfig() logic.Config {
	return logic.Config{
		PerPage:            c.Pagination.PerPage,
		ChrootPreservation: time.Duration(c.Chroots.PreservationDays) * 24 * time.Hour,
		DistGitURL:         c.Frontend.DistGitURL,
		MaxBuildTimeout:    c.Builds.MaxTimeout,
	}
}

// CleanupConfig maps the cleanup section
func (c *Config) CleanupConfig() cleanup.Config {
	cfg := cleanup.DefaultConfig()
	cfg.Enabled = c.Cleanup.Enabled
	cfg.Interval = c.Cleanup.Interval
	cfg.InitialDelay = c.Cleanup.InitialDelay
	cfg.ActionRetention = c.Cleanup.ActionRetention
	cfg.DeleteOutdatedChroots = c.Cleanup.DeleteOutdatedChroots
	cfg.BatchSize = c.Cleanup.BatchSize
	return cfg
}

// TracingConfig maps the tracing section
func (c *Config) TracingConfig(version string) tracing.Config {
	return tracing.Config{
		ServiceName:    "copr-frontend",
		ServiceVersion: version,
		Environment:    c.Tracing.Environment,
		OTLPEndpoint:   c.Tracing.Endpoint,
		Insecure:       c.Tracing.Insecure,
		Enabled:        c.Tracing.Enabled,
	}
}

// TLSConfig maps server.tls
func (c *Config) TLSConfig() tls.ServerConfig {
	return tls.ServerConfig{
		Enabled:      c.Server.TLS.Enabled,
		CertFile:     c.Server.TLS.CertFile,
		KeyFile:      c.Server.TLS.KeyFile,
		CAFile:       c.Server.TLS.CAFile,
		AutoGenerate: c.Server.TLS.AutoGenerate,
		Hosts:        c.Server.TLS.Hosts,
	}
}
