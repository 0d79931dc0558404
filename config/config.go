package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Workflow   WorkflowConfig   `yaml:"workflow"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Reference  ReferenceConfig  `yaml:"reference"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size  int `yaml:"size"`
	Queue int `yaml:"queue"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are present.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds"`
	CacheTTL        time.Duration `yaml:"-"`
	PublicURL       string        `yaml:"public_url"`
	QREndpoint      string        `yaml:"qr_endpoint"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // postgres, mysql or sqlite
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// ExtractionConfig configures the model that reads photographed production sheets.
type ExtractionConfig struct {
	APIKey         string        `yaml:"api_key"`
	Model          string        `yaml:"model"`
	BaseURL        string        `yaml:"base_url"`
	HTTPProxy      string        `yaml:"http_proxy"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Timeout        time.Duration `yaml:"-"`
}

// WorkflowConfig holds the lifetimes of the short-lived workflow state.
type WorkflowConfig struct {
	HandoffTTLSeconds int           `yaml:"handoff_ttl_seconds"`
	HandoffTTL        time.Duration `yaml:"-"`
	StagingTTLSeconds int           `yaml:"staging_ttl_seconds"`
	StagingTTL        time.Duration `yaml:"-"`
}

// ReferenceEntry is one row of a static reference list.
type ReferenceEntry struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// ReferenceConfig lists the machines and phases written by the seed command.
type ReferenceConfig struct {
	Machines []ReferenceEntry `yaml:"machines"`
	Phases   []ReferenceEntry `yaml:"phases"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML, applies environment overrides and fills defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

// applyEnv lets secrets live outside the YAML file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Extraction.APIKey = v
	} else if v := os.Getenv("API_KEY"); v != "" {
		cfg.Extraction.APIKey = v
	}
	if v := os.Getenv("VAPID_PUBLIC_KEY"); v != "" {
		cfg.Push.PublicKey = v
	}
	if v := os.Getenv("VAPID_PRIVATE_KEY"); v != "" {
		cfg.Push.PrivateKey = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}
	cfg.Server.CacheTTL = time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	if cfg.Server.QREndpoint == "" {
		cfg.Server.QREndpoint = "https://api.qrserver.com/v1/create-qr-code/"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Extraction.Model == "" {
		cfg.Extraction.Model = "gemini-2.5-flash"
	}
	if cfg.Extraction.TimeoutSeconds <= 0 {
		cfg.Extraction.TimeoutSeconds = 60
	}
	cfg.Extraction.Timeout = time.Duration(cfg.Extraction.TimeoutSeconds) * time.Second

	if cfg.Workflow.HandoffTTLSeconds <= 0 {
		cfg.Workflow.HandoffTTLSeconds = 900
	}
	cfg.Workflow.HandoffTTL = time.Duration(cfg.Workflow.HandoffTTLSeconds) * time.Second
	if cfg.Workflow.StagingTTLSeconds <= 0 {
		cfg.Workflow.StagingTTLSeconds = 1800
	}
	cfg.Workflow.StagingTTL = time.Duration(cfg.Workflow.StagingTTLSeconds) * time.Second

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	if cfg.WorkerPool.Queue <= 0 {
		cfg.WorkerPool.Queue = 64
	}
}
