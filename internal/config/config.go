package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for fleetwatch
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Tracker TrackerConfig `yaml:"tracker"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port        int    `yaml:"port"`
	Environment string `yaml:"environment"`
}

// TrackerConfig holds status-tracking configuration
type TrackerConfig struct {
	MinVoltage       float64       `yaml:"min_voltage"`
	OfflineThreshold time.Duration `yaml:"offline_threshold"`
	FlapWindow       time.Duration `yaml:"flap_window"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
	RetryInterval    time.Duration `yaml:"retry_interval"`
	RetryMaxAttempts int           `yaml:"retry_max_attempts"`
	RetryDrainLimit  int           `yaml:"retry_drain_limit"`
	RetryStagger     time.Duration `yaml:"retry_stagger"`
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        getEnvInt("PORT", 3007),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Tracker: TrackerConfig{
			MinVoltage:       getEnvFloat("TRACKER_MIN_VOLTAGE", 50),
			OfflineThreshold: getEnvDuration("TRACKER_OFFLINE_THRESHOLD", 5*time.Minute),
			FlapWindow:       getEnvDuration("TRACKER_FLAP_WINDOW", 2*time.Minute),
			SweepInterval:    getEnvDuration("TRACKER_SWEEP_INTERVAL", time.Minute),
			RetryInterval:    getEnvDuration("TRACKER_RETRY_INTERVAL", 30*time.Second),
			RetryMaxAttempts: getEnvInt("TRACKER_RETRY_MAX_ATTEMPTS", 3),
			RetryDrainLimit:  getEnvInt("TRACKER_RETRY_DRAIN_LIMIT", 100),
			RetryStagger:     getEnvDuration("TRACKER_RETRY_STAGGER", time.Second),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
