package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/scoutear/gestor-turnos/internal/booking"
	"github.com/scoutear/gestor-turnos/internal/models"
	"github.com/scoutear/gestor-turnos/internal/schedule"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendSheets = "sheets"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Court      CourtConfig      `yaml:"court"`
	Storage    StorageConfig    `yaml:"storage"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Google     GoogleConfig     `yaml:"google"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

// CourtConfig describes the bookable court: span length, tariff and locale.
type CourtConfig struct {
	Name          string        `yaml:"name"`
	SpanSlots     int           `yaml:"span_slots"`
	Timezone      string        `yaml:"timezone"`
	UpcomingLimit int           `yaml:"upcoming_limit"`
	Pricing       PricingConfig `yaml:"pricing"`
}

// PricingConfig keeps rates as strings so they are parsed exactly.
type PricingConfig struct {
	ThresholdHour int    `yaml:"threshold_hour"`
	DayRate       string `yaml:"day_rate"`
	EveningRate   string `yaml:"evening_rate"`
}

// StorageConfig selects the sync adapter. Fallback, when set, takes over while the
// primary backend is unreachable.
type StorageConfig struct {
	Backend  string `yaml:"backend"`
	Fallback string `yaml:"fallback"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"pool_size"`
	KeyPrefix string `yaml:"key_prefix"`
}

type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	SheetName       string `yaml:"sheet_name"`
	Mirror          bool   `yaml:"mirror"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendSQLite, BackendRedis, BackendSheets:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch c.Storage.Fallback {
	case "", BackendMemory, BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("unsupported storage fallback %q", c.Storage.Fallback)
	}
	if c.Storage.Fallback == c.Storage.Backend {
		return errors.New("storage fallback must differ from the backend")
	}

	if c.uses(BackendSQLite) && c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.uses(BackendRedis) && c.Redis.Address == "" {
		return errors.New("redis address is required")
	}
	if c.uses(BackendSheets) || c.Google.Mirror {
		if c.Google.CredentialsFile == "" || c.Google.SpreadsheetID == "" {
			return errors.New("google credentials_file and spreadsheet_id are required")
		}
	}
	if c.Google.Mirror && c.Database.Path == "" {
		return errors.New("spreadsheet mirror needs database.path for its task queue")
	}

	if c.Court.SpanSlots < 1 || c.Court.SpanSlots > schedule.SlotsPerDay {
		return fmt.Errorf("court.span_slots must be between 1 and %d", schedule.SlotsPerDay)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	pricing, err := c.Pricing()
	if err != nil {
		return err
	}
	return pricing.Validate()
}

func (c *Config) uses(backend string) bool {
	return c.Storage.Backend == backend || c.Storage.Fallback == backend
}

// Pricing builds the tariff from the court section.
func (c *Config) Pricing() (schedule.Pricing, error) {
	day, err := decimal.NewFromString(strings.TrimSpace(c.Court.Pricing.DayRate))
	if err != nil {
		return schedule.Pricing{}, fmt.Errorf("court.pricing.day_rate: %w", err)
	}
	evening, err := decimal.NewFromString(strings.TrimSpace(c.Court.Pricing.EveningRate))
	if err != nil {
		return schedule.Pricing{}, fmt.Errorf("court.pricing.evening_rate: %w", err)
	}
	return schedule.Pricing{
		ThresholdHour: c.Court.Pricing.ThresholdHour,
		DayRate:       day,
		EveningRate:   evening,
	}, nil
}

func (c *Config) Location() (*time.Location, error) {
	if c.Court.Timezone == "" || c.Court.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Court.Timezone)
	if err != nil {
		return nil, fmt.Errorf("court.timezone: %w", err)
	}
	return loc, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "gestor-turnos"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendSQLite
	}
	if c.Database.Path == "" && c.uses(BackendSQLite) {
		c.Database.Path = "data/turnos.db"
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "turnos"
	}
	if c.Google.SheetName == "" {
		c.Google.SheetName = "Reservas"
	}

	if c.Court.SpanSlots == 0 {
		c.Court.SpanSlots = booking.DefaultSpanSlots
	}
	if c.Court.UpcomingLimit == 0 {
		c.Court.UpcomingLimit = models.DefaultUpcomingLimit
	}
	if c.Court.Pricing.ThresholdHour == 0 {
		c.Court.Pricing.ThresholdHour = schedule.DefaultPricing.ThresholdHour
	}
	if c.Court.Pricing.DayRate == "" {
		c.Court.Pricing.DayRate = schedule.DefaultPricing.DayRate.String()
	}
	if c.Court.Pricing.EveningRate == "" {
		c.Court.Pricing.EveningRate = schedule.DefaultPricing.EveningRate.String()
	}

	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 10
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 20
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Backup.Enabled && c.Backup.RetentionDays == 0 {
		c.Backup.RetentionDays = 7
	}
}
