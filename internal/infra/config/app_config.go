// Package config manages application configuration loading and validation.
package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/coachpo/assetproof/internal/app/ledger"
	"github.com/coachpo/assetproof/internal/app/pipeline"
	"github.com/coachpo/assetproof/internal/app/processor"
	"github.com/coachpo/assetproof/internal/logging"
)

// RecordConfig sets the identity tags stamped on every record.
type RecordConfig struct {
	Version   string `yaml:"version"`
	ProjectID string `yaml:"projectId"`
}

// AggregationConfig controls ledger categorization.
type AggregationConfig struct {
	Epsilon     float64  `yaml:"epsilon"`
	Stablecoins []string `yaml:"stablecoins"`
}

// TelemetryConfig configures the OTLP metric exporter.
type TelemetryConfig struct {
	Enabled        bool          `yaml:"enabled"`
	OTLPEndpoint   string        `yaml:"otlpEndpoint"`
	ServiceName    string        `yaml:"serviceName"`
	OTLPInsecure   bool          `yaml:"otlpInsecure"`
	MetricInterval time.Duration `yaml:"metricInterval"`
}

// DatabaseConfig controls PostgreSQL connectivity. An empty DSN disables the record store.
type DatabaseConfig struct {
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns"`
	MinConns          int32         `yaml:"minConns"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod"`
	RunMigrations     bool          `yaml:"runMigrations"`
}

// Enabled reports whether a record store should be opened.
func (c DatabaseConfig) Enabled() bool { return strings.TrimSpace(c.DSN) != "" }

func (c *DatabaseConfig) applyDefaults() {
	c.DSN = strings.TrimSpace(c.DSN)
	if c.MaxConns <= 0 {
		c.MaxConns = 8
	}
	if c.MinConns <= 0 {
		c.MinConns = 1
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
	if c.MaxConnLifetime <= 0 {
		c.MaxConnLifetime = 30 * time.Minute
	}
	if c.MaxConnIdleTime <= 0 {
		c.MaxConnIdleTime = 5 * time.Minute
	}
	if c.HealthCheckPeriod <= 0 {
		c.HealthCheckPeriod = 30 * time.Second
	}
}

func (c DatabaseConfig) validate() error {
	if c.MaxConns <= 0 {
		return fmt.Errorf("maxConns must be >0")
	}
	if c.MinConns < 0 || c.MinConns > c.MaxConns {
		return fmt.Errorf("minConns must be between 0 and maxConns")
	}
	if c.MaxConnLifetime <= 0 || c.MaxConnIdleTime <= 0 || c.HealthCheckPeriod <= 0 {
		return fmt.Errorf("connection durations must be >0")
	}
	return nil
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	RateLimit    float64       `yaml:"rateLimit"`
	RateBurst    int           `yaml:"rateBurst"`
	MaxBodyBytes int64         `yaml:"maxBodyBytes"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
}

// WatchConfig configures periodic processing of an inbox directory.
type WatchConfig struct {
	Schedule string `yaml:"schedule"`
	Inbox    string `yaml:"inbox"`
	Outbox   string `yaml:"outbox"`
	Workers  int    `yaml:"workers"`
}

// AppConfig is the assetproof application configuration sourced from YAML.
type AppConfig struct {
	Environment Environment         `yaml:"environment"`
	Record      RecordConfig        `yaml:"record"`
	Aggregation AggregationConfig   `yaml:"aggregation"`
	Endpoints   map[string][]string `yaml:"endpoints"`
	Logging     logging.Config      `yaml:"logging"`
	Telemetry   TelemetryConfig     `yaml:"telemetry"`
	Database    DatabaseConfig      `yaml:"database"`
	Server      ServerConfig        `yaml:"server"`
	Watch       WatchConfig         `yaml:"watch"`
}

// DefaultAppConfig returns the configuration used when no file is supplied.
func DefaultAppConfig() AppConfig {
	cfg := AppConfig{
		Environment: EnvDev,
		Record:      RecordConfig{Version: pipeline.DefaultVersion, ProjectID: ""},
		Aggregation: AggregationConfig{Epsilon: ledger.DefaultEpsilon, Stablecoins: ledger.DefaultStablecoins()},
		Endpoints:   map[string][]string{},
		Logging:     logging.Config{Level: "info", Format: logging.FormatJSON},
		Telemetry:   TelemetryConfig{ServiceName: "assetproof", OTLPEndpoint: "localhost:4318", MetricInterval: 30 * time.Second},
		Database:    DatabaseConfig{},
		Server:      ServerConfig{},
		Watch:       WatchConfig{},
	}
	_ = cfg.normalise()
	return cfg
}

// Load reads, normalises and validates an AppConfig from the YAML file at configPath. Environment
// overrides are applied after the file is parsed.
func Load(ctx context.Context, configPath string) (AppConfig, error) {
	_ = ctx

	reader, closer, err := openConfigFile(configPath)
	if err != nil {
		return AppConfig{}, err
	}
	defer closer()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// LoadOrDefault loads configPath, or the defaults with environment overrides when it is empty.
func LoadOrDefault(ctx context.Context, configPath string) (AppConfig, error) {
	if strings.TrimSpace(configPath) == "" {
		cfg := DefaultAppConfig()
		cfg.applyEnv()
		if err := cfg.normalise(); err != nil {
			return AppConfig{}, err
		}
		if err := cfg.Validate(); err != nil {
			return AppConfig{}, err
		}
		return cfg, nil
	}
	return Load(ctx, configPath)
}

// Parse decodes YAML bytes on top of the defaults.
func Parse(raw []byte) (AppConfig, error) {
	cfg := DefaultAppConfig()
	cfg.Aggregation.Stablecoins = nil
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Aggregation.Stablecoins == nil {
		cfg.Aggregation.Stablecoins = ledger.DefaultStablecoins()
	}
	cfg.applyEnv()
	if err := cfg.normalise(); err != nil {
		return AppConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c *AppConfig) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvVarEnvironment)); v != "" {
		c.Environment = Environment(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvVarDatabaseDSN)); v != "" {
		c.Database.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvVarProjectID)); v != "" {
		c.Record.ProjectID = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvVarOTLPEnabled)); v != "" {
		c.Telemetry.Enabled = v == "true"
	}
	if v := strings.TrimSpace(os.Getenv(EnvVarOTLPURL)); v != "" {
		c.Telemetry.OTLPEndpoint = v
	}
}

func (c *AppConfig) normalise() error {
	c.Environment = Environment(strings.ToLower(strings.TrimSpace(string(c.Environment))))
	if c.Environment == "" {
		c.Environment = EnvDev
	}
	c.Record.Version = strings.TrimSpace(c.Record.Version)
	if c.Record.Version == "" {
		c.Record.Version = pipeline.DefaultVersion
	}
	c.Record.ProjectID = strings.TrimSpace(c.Record.ProjectID)

	if c.Aggregation.Epsilon == 0 {
		c.Aggregation.Epsilon = ledger.DefaultEpsilon
	}
	if c.Aggregation.Stablecoins == nil {
		c.Aggregation.Stablecoins = ledger.DefaultStablecoins()
	}
	c.Aggregation.Stablecoins = normalizeSymbols(c.Aggregation.Stablecoins)

	endpoints := make(map[string][]string, len(c.Endpoints))
	for product, urls := range c.Endpoints {
		key := strings.TrimSpace(product)
		if _, exists := endpoints[key]; exists {
			return fmt.Errorf("duplicate endpoint override %q", key)
		}
		trimmed := make([]string, 0, len(urls))
		for _, u := range urls {
			trimmed = append(trimmed, strings.TrimSpace(u))
		}
		endpoints[key] = trimmed
	}
	c.Endpoints = endpoints

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))

	c.Telemetry.OTLPEndpoint = strings.TrimSpace(c.Telemetry.OTLPEndpoint)
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)
	if c.Telemetry.MetricInterval <= 0 {
		c.Telemetry.MetricInterval = 30 * time.Second
	}

	c.Database.applyDefaults()

	c.Server.Addr = strings.TrimSpace(c.Server.Addr)
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.RateLimit <= 0 {
		c.Server.RateLimit = 20
	}
	if c.Server.RateBurst <= 0 {
		c.Server.RateBurst = 40
	}
	if c.Server.MaxBodyBytes <= 0 {
		c.Server.MaxBodyBytes = 8 << 20
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}

	c.Watch.Schedule = strings.TrimSpace(c.Watch.Schedule)
	if c.Watch.Schedule == "" {
		c.Watch.Schedule = "@every 30m"
	}
	inbox := strings.TrimSpace(c.Watch.Inbox)
	if inbox == "" {
		inbox = "inbox"
	}
	c.Watch.Inbox = filepath.Clean(inbox)
	outbox := strings.TrimSpace(c.Watch.Outbox)
	if outbox == "" {
		outbox = "records"
	}
	c.Watch.Outbox = filepath.Clean(outbox)
	if c.Watch.Workers <= 0 {
		c.Watch.Workers = 4
	}
	return nil
}

// Validate performs semantic validation on the configuration.
func (c AppConfig) Validate() error {
	switch c.Environment {
	case EnvDev, EnvStaging, EnvProd:
	default:
		return fmt.Errorf("environment must be one of dev, staging, prod")
	}
	if c.Record.Version == "" {
		return fmt.Errorf("record version required")
	}
	if c.Aggregation.Epsilon <= 0 {
		return fmt.Errorf("aggregation epsilon must be >0")
	}

	known := make(map[string]int)
	for _, spec := range processor.DefaultSpecs() {
		known[spec.Key] = len(spec.Endpoints)
	}
	for product, urls := range c.Endpoints {
		want, ok := known[product]
		if !ok {
			return fmt.Errorf("endpoints: unknown product %q", product)
		}
		if len(urls) != want {
			return fmt.Errorf("endpoints: %s needs %d urls, got %d", product, want, len(urls))
		}
		for _, u := range urls {
			if !strings.HasPrefix(u, "https://") && !strings.HasPrefix(u, "http://") {
				return fmt.Errorf("endpoints: %s url %q must be absolute", product, u)
			}
		}
	}

	if c.Telemetry.Enabled && c.Telemetry.OTLPEndpoint == "" {
		return fmt.Errorf("telemetry otlpEndpoint required when enabled")
	}
	if strings.TrimSpace(c.Telemetry.ServiceName) == "" {
		return fmt.Errorf("telemetry serviceName required")
	}
	if err := c.Database.validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server maxBodyBytes must be >0")
	}
	if _, err := cron.ParseStandard(c.Watch.Schedule); err != nil {
		return fmt.Errorf("watch schedule %q: %w", c.Watch.Schedule, err)
	}
	if c.Watch.Inbox == c.Watch.Outbox {
		return fmt.Errorf("watch inbox and outbox must differ")
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c AppConfig) Clone() AppConfig {
	out := c
	if c.Aggregation.Stablecoins != nil {
		out.Aggregation.Stablecoins = make([]string, len(c.Aggregation.Stablecoins))
		copy(out.Aggregation.Stablecoins, c.Aggregation.Stablecoins)
	}
	out.Endpoints = make(map[string][]string, len(c.Endpoints))
	for k, v := range c.Endpoints {
		out.Endpoints[k] = append([]string(nil), v...)
	}
	return out
}

func openConfigFile(path string) (io.Reader, func(), error) {
	candidate := filepath.Clean(strings.TrimSpace(path))

	file, err := os.Open(candidate) // #nosec G304 -- path is operator controlled.
	if err != nil {
		return nil, nil, fmt.Errorf("open app config: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}
