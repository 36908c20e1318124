package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/clubdues/clubdues/pkg/observability"
	"github.com/clubdues/clubdues/pkg/storage/postgres"
)

// EnvPrefix prefixes every environment override, e.g. CLUBDUES_SERVER_PORT
const EnvPrefix = "clubdues"

// ConfigFileEnv names the config file when no --config flag is given
const ConfigFileEnv = "CLUBDUES_CONFIG"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Observability ObservabilityConfig `yaml:"observability"`
	Archive       ArchiveConfig       `yaml:"archive"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"     split_words:"true"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"    split_words:"true"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"     split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" split_words:"true"`
	MaxBodyBytes    int64         `yaml:"maxBodyBytes"    split_words:"true"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"healthPort" split_words:"true"`
}

// DatabaseConfig holds PostgreSQL connection settings. Reads may go to replicas.
type DatabaseConfig struct {
	URL                 string        `yaml:"url"`
	ReplicaURLs         []string      `yaml:"replicaUrls"         envconfig:"REPLICA_URLS"`
	MaxConns            int           `yaml:"maxConns"            split_words:"true"`
	MinConns            int           `yaml:"minConns"            split_words:"true"`
	Timeout             time.Duration `yaml:"timeout"`
	MaxLifetime         time.Duration `yaml:"maxLifetime"         split_words:"true"`
	MaxIdleTime         time.Duration `yaml:"maxIdleTime"         split_words:"true"`
	HealthCheckInterval time.Duration `yaml:"healthCheckInterval" split_words:"true"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string `yaml:"logLevel"       split_words:"true"`
	MetricsEnabled bool   `yaml:"metricsEnabled" split_words:"true"`

	OTelEnabled        bool    `yaml:"otelEnabled"        envconfig:"OTEL_ENABLED"`
	OTelEndpoint       string  `yaml:"otelEndpoint"       envconfig:"OTEL_ENDPOINT"`
	OTelServiceName    string  `yaml:"otelServiceName"    envconfig:"OTEL_SERVICE_NAME"`
	OTelServiceVersion string  `yaml:"otelServiceVersion" envconfig:"OTEL_SERVICE_VERSION"`
	OTelInsecure       bool    `yaml:"otelInsecure"       envconfig:"OTEL_INSECURE"`
	OTelSampleRatio    float64 `yaml:"otelSampleRatio"    envconfig:"OTEL_SAMPLE_RATIO"`
}

// ArchiveConfig controls the S3 copy of exported SEPA files
type ArchiveConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Bucket       string        `yaml:"bucket"`
	Region       string        `yaml:"region"`
	Endpoint     string        `yaml:"endpoint"`
	AccessKey    string        `yaml:"accessKey"    split_words:"true"`
	SecretKey    string        `yaml:"secretKey"    split_words:"true"`
	UsePathStyle bool          `yaml:"usePathStyle" split_words:"true"`
	Timeout      time.Duration `yaml:"timeout"`
}

// SchedulerConfig controls the monthly batch creation job
type SchedulerConfig struct {
	Spec          string        `yaml:"spec"`
	Organizations []string      `yaml:"organizations"`
	Workers       int           `yaml:"workers"`
	Timeout       time.Duration `yaml:"timeout"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
			HealthPort:      "9090",
		},
		Database: DatabaseConfig{
			MaxConns:            20,
			MinConns:            2,
			Timeout:             5 * time.Second,
			MaxLifetime:         time.Hour,
			MaxIdleTime:         10 * time.Minute,
			HealthCheckInterval: 30 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "clubdues",
			OTelServiceVersion: "dev",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
		},
		Archive: ArchiveConfig{
			Region:  "eu-central-1",
			Timeout: 30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Spec:    "0 3 1 * *",
			Workers: 4,
			Timeout: 2 * time.Minute,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (or $CLUBDUES_CONFIG),
// then CLUBDUES_* environment variables. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}
	if c.Server.HealthPort == "" {
		return errors.New("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return errors.New("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return errors.New("database URL is required")
	}
	if c.Database.MaxConns < 0 || c.Database.MinConns < 0 {
		return errors.New("database connection limits must not be negative")
	}
	if c.Database.MaxConns > 0 && c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database min conns (%d) exceeds max conns (%d)", c.Database.MinConns, c.Database.MaxConns)
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return errors.New("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return errors.New("OpenTelemetry service name is required when OTel is enabled")
		}
		if r := c.Observability.OTelSampleRatio; r < 0 || r > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1, got %v", r)
		}
	}

	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return errors.New("archive bucket is required when the archive is enabled")
	}

	if len(c.Scheduler.Organizations) > 0 {
		if c.Scheduler.Spec == "" {
			return errors.New("scheduler spec is required when organizations are scheduled")
		}
		if _, err := cron.ParseStandard(c.Scheduler.Spec); err != nil {
			return fmt.Errorf("invalid scheduler spec %q: %w", c.Scheduler.Spec, err)
		}
		if _, err := c.Scheduler.OrganizationIDs(); err != nil {
			return err
		}
	}

	return nil
}

// OrganizationIDs parses the scheduled organization ids
func (s SchedulerConfig) OrganizationIDs() ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(s.Organizations))
	for _, raw := range s.Organizations {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid scheduler organization id %q: %w", raw, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Level returns the parsed log level
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(o.LogLevel)
}

// OTel returns the OpenTelemetry provider settings
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// Connection returns the settings of the database connection manager
func (d DatabaseConfig) Connection() postgres.ConnectionConfig {
	return postgres.ConnectionConfig{
		PrimaryURL:  d.URL,
		ReplicaURLs: d.ReplicaURLs,
		MaxConns:    d.MaxConns,
		MinConns:    d.MinConns,
		Timeout:     d.Timeout,
		MaxLifetime: d.MaxLifetime,
		MaxIdleTime: d.MaxIdleTime,
	}
}
