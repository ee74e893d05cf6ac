package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Data     DataConfig     `yaml:"data"`
	Redis    RedisConfig    `yaml:"redis"`
	Reco     RecoConfig     `yaml:"reco"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Export   ExportConfig   `yaml:"export"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the Postgres connection settings
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// DataConfig holds the tenant data directory root for the file pipeline
type DataConfig struct {
	Dir string `yaml:"dir"`
}

// RedisConfig holds the optional Redis connection used for tenant locks
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

// RecoConfig holds recommendation run parameters
type RecoConfig struct {
	TopN              int   `yaml:"top_n"`
	SilenceWindowDays int   `yaml:"silence_window_days"`
	KMeansClusters    int   `yaml:"kmeans_clusters"`
	KMeansSeed        int64 `yaml:"kmeans_seed"`
	RunTimeoutSeconds int   `yaml:"run_timeout_seconds"`
	ClientWorkers     int   `yaml:"client_workers"`
	// Quantile overrides for budget bands; zero values use 0.33/0.66.
	BudgetQuantileLow  float64 `yaml:"budget_quantile_low"`
	BudgetQuantileHigh float64 `yaml:"budget_quantile_high"`
	// Weight overrides, keyed by tenant id (or "default") then scenario then feature.
	ScenarioWeights map[string]map[string]map[string]float64 `yaml:"scenario_weights"`
	ScoringWeights  map[string]map[string]float64            `yaml:"scoring_weights"`
}

// RunTimeout returns the per-run timeout as a duration
func (c RecoConfig) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSeconds) * time.Second
}

// DispatchConfig holds marketing dispatch settings. Dry-run is the default;
// a real SES send only happens when LiveSend is explicitly enabled.
type DispatchConfig struct {
	LiveSend     bool   `yaml:"live_send"`
	BatchMin     int    `yaml:"batch_min"`
	BatchMax     int    `yaml:"batch_max"`
	SESRegion    string `yaml:"ses_region"`
	SESAccessKey string `yaml:"ses_access_key"`
	SESSecretKey string `yaml:"ses_secret_key"`
	FromEmail    string `yaml:"from_email"`
	Channel      string `yaml:"channel"`
}

// DryRun reports whether dispatch runs without external network calls.
func (c DispatchConfig) DryRun() bool { return !c.LiveSend }

// ExportConfig holds run artifact export settings
type ExportConfig struct {
	Dir       string `yaml:"dir"`
	S3Bucket  string `yaml:"s3_bucket"`
	S3Region  string `yaml:"s3_region"`
	S3Enabled bool   `yaml:"s3_enabled"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII bool   `yaml:"redact_pii"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30
	}
	if cfg.Data.Dir == "" {
		cfg.Data.Dir = "./data"
	}
	if cfg.Reco.TopN == 0 {
		cfg.Reco.TopN = 5
	}
	if cfg.Reco.SilenceWindowDays == 0 {
		cfg.Reco.SilenceWindowDays = 7
	}
	if cfg.Reco.KMeansClusters == 0 {
		cfg.Reco.KMeansClusters = 4
	}
	if cfg.Reco.KMeansSeed == 0 {
		cfg.Reco.KMeansSeed = 42
	}
	if cfg.Reco.RunTimeoutSeconds == 0 {
		cfg.Reco.RunTimeoutSeconds = 600
	}
	if cfg.Reco.ClientWorkers == 0 {
		cfg.Reco.ClientWorkers = 4
	}
	if cfg.Reco.BudgetQuantileLow == 0 {
		cfg.Reco.BudgetQuantileLow = 0.33
	}
	if cfg.Reco.BudgetQuantileHigh == 0 {
		cfg.Reco.BudgetQuantileHigh = 0.66
	}
	if cfg.Dispatch.BatchMin == 0 {
		cfg.Dispatch.BatchMin = 200
	}
	if cfg.Dispatch.BatchMax == 0 {
		cfg.Dispatch.BatchMax = 300
	}
	if cfg.Dispatch.Channel == "" {
		cfg.Dispatch.Channel = "email"
	}
	if cfg.Dispatch.SESRegion == "" {
		cfg.Dispatch.SESRegion = "eu-west-1"
	}
	if cfg.Export.Dir == "" {
		cfg.Export.Dir = "./exports"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file (if present) is loaded first, so secrets can live in .env
// locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Data.Dir = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("EXPORT_DIR"); v != "" {
		cfg.Export.Dir = v
	}
	if v := os.Getenv("EXPORT_S3_BUCKET"); v != "" {
		cfg.Export.S3Bucket = v
		cfg.Export.S3Enabled = true
	}
	if v := os.Getenv("SES_ACCESS_KEY"); v != "" {
		cfg.Dispatch.SESAccessKey = v
	}
	if v := os.Getenv("SES_SECRET_KEY"); v != "" {
		cfg.Dispatch.SESSecretKey = v
	}
	if v := os.Getenv("DISPATCH_LIVE_SEND"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Dispatch.LiveSend = b
		}
	}
	if v := os.Getenv("KMEANS_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Reco.KMeansSeed = n
		}
	}
	if v := os.Getenv("SILENCE_WINDOW_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Reco.SilenceWindowDays = n
		}
	}

	return cfg, nil
}
