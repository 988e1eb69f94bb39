package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application's configuration.
type Config struct {
	Server struct {
		Port    string `yaml:"port"`
		GinMode string `yaml:"gin_mode"`
	} `yaml:"server"`
	Database struct {
		Type string `yaml:"type"` // "postgres" or "sqlite"
		URL  string `yaml:"url"`  // PostgreSQL URL or SQLite path
	} `yaml:"database"`
	Model struct {
		ArtifactPath    string   `yaml:"artifact_path"`
		SamplesPerType  int      `yaml:"samples_per_type"`
		Epochs          int      `yaml:"epochs"`
		BatchSize       int      `yaml:"batch_size"`
		LearningRate    float64  `yaml:"learning_rate"`
		ValidationSplit *float64 `yaml:"validation_split"`
		HiddenLayers    []int    `yaml:"hidden_layers"`
		Dropout         *float64 `yaml:"dropout"`
		Seed            uint64   `yaml:"seed"`
	} `yaml:"model"`
	Refresher struct {
		PollInterval int64 `yaml:"poll_interval_seconds"` // 0 disables
	} `yaml:"refresher"`
	Auth struct {
		JWTSecret     string `yaml:"jwt_secret"`
		TokenTTLHours int    `yaml:"token_ttl_hours"`
	} `yaml:"auth"`
	Log struct {
		Mode  string `yaml:"mode"`  // "development" or "production"
		Level string `yaml:"level"` // overrides the mode's default level
	} `yaml:"log"`
}

// TokenTTL is the lifetime of issued expert tokens.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLHours) * time.Hour
}

// PollInterval is the refresher period, zero when disabled.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Refresher.PollInterval) * time.Second
}

// LoadConfig reads configuration from the specified YAML file.
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.Database.URL = os.ExpandEnv(config.Database.URL)
	config.Auth.JWTSecret = os.ExpandEnv(config.Auth.JWTSecret)
	config.setDefaults()

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) setDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.GinMode == "" {
		c.Server.GinMode = "release"
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.URL == "" && c.Database.Type == "sqlite" {
		c.Database.URL = "./data/coffee.db"
	}
	if c.Model.ArtifactPath == "" {
		c.Model.ArtifactPath = "./data/model.json"
	}
	if c.Model.SamplesPerType == 0 {
		c.Model.SamplesPerType = 10
	}
	if c.Model.Epochs == 0 {
		c.Model.Epochs = 100
	}
	if c.Model.BatchSize == 0 {
		c.Model.BatchSize = 32
	}
	if c.Model.LearningRate == 0 {
		c.Model.LearningRate = 0.001
	}
	if c.Model.ValidationSplit == nil {
		v := 0.2
		c.Model.ValidationSplit = &v
	}
	if len(c.Model.HiddenLayers) == 0 {
		c.Model.HiddenLayers = []int{64, 32}
	}
	if c.Model.Dropout == nil {
		v := 0.2
		c.Model.Dropout = &v
	}
	if c.Model.Seed == 0 {
		c.Model.Seed = 42
	}
	if c.Auth.TokenTTLHours == 0 {
		c.Auth.TokenTTLHours = 24
	}
	if c.Log.Mode == "" {
		c.Log.Mode = "production"
	}
}

func (c *Config) validate() error {
	switch c.Database.Type {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database type %q", c.Database.Type)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database url is required for %s", c.Database.Type)
	}
	switch c.Log.Mode {
	case "development", "production":
	default:
		return fmt.Errorf("unsupported log mode %q", c.Log.Mode)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Refresher.PollInterval < 0 {
		return fmt.Errorf("refresher.poll_interval_seconds must not be negative")
	}
	return nil
}
