package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all service settings, populated from environment variables
// with the TEMPO_ prefix.
type Config struct {
	SatelliteCSV string `envconfig:"SATELLITE_CSV" default:"data/satellite_observations.csv"`
	GroundCSV    string `envconfig:"GROUND_CSV" default:"data/ground_measurements.csv"`
	OutputPath   string `envconfig:"OUTPUT_PATH" default:"validation_report.json"`

	// Oneshot exits after the run instead of keeping the HTTP endpoints up.
	Oneshot bool `envconfig:"ONESHOT" default:"false"`

	HTTPAddr        string        `envconfig:"HTTP_ADDR" default:":8080"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"json"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	// Matching parameters.
	RadiusKM          float64 `envconfig:"RADIUS_KM" default:"20"`
	WindowMinutes     float64 `envconfig:"WINDOW_MINUTES" default:"60"`
	MaxCloudFraction  float64 `envconfig:"MAX_CLOUD_FRACTION" default:"0.3"`
	MaxSolarZenithDeg float64 `envconfig:"MAX_SOLAR_ZENITH_DEG" default:"70"`

	// Statistical battery parameters.
	BootstrapIterations   int     `envconfig:"BOOTSTRAP_ITERATIONS" default:"1000"`
	PermutationIterations int     `envconfig:"PERMUTATION_ITERATIONS" default:"1000"`
	Confidence            float64 `envconfig:"CONFIDENCE" default:"0.95"`
	Seed                  int64   `envconfig:"SEED" default:"42"`
	DemingLambda          float64 `envconfig:"DEMING_LAMBDA" default:"0.05"`
	MinPairs              int     `envconfig:"MIN_PAIRS" default:"10"`
	Workers               int     `envconfig:"WORKERS" default:"0"`
	Sensitivity           bool    `envconfig:"SENSITIVITY" default:"true"`

	// Kafka report publishing, enabled when brokers are set.
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	ReportTopic  string   `envconfig:"REPORT_TOPIC" default:"validation-reports"`
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("TEMPO", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects parameter values the run could not meaningfully use.
func (c *Config) Validate() error {
	if c.SatelliteCSV == "" {
		return errors.New("SATELLITE_CSV is required")
	}
	if c.GroundCSV == "" {
		return errors.New("GROUND_CSV is required")
	}
	if c.RadiusKM <= 0 {
		return fmt.Errorf("RADIUS_KM must be positive, got %v", c.RadiusKM)
	}
	if c.WindowMinutes <= 0 {
		return fmt.Errorf("WINDOW_MINUTES must be positive, got %v", c.WindowMinutes)
	}
	if c.MaxCloudFraction < 0 || c.MaxCloudFraction > 1 {
		return fmt.Errorf("MAX_CLOUD_FRACTION must be in [0,1], got %v", c.MaxCloudFraction)
	}
	if c.MaxSolarZenithDeg <= 0 || c.MaxSolarZenithDeg > 180 {
		return fmt.Errorf("MAX_SOLAR_ZENITH_DEG must be in (0,180], got %v", c.MaxSolarZenithDeg)
	}
	if c.BootstrapIterations < 1 {
		return fmt.Errorf("BOOTSTRAP_ITERATIONS must be positive, got %d", c.BootstrapIterations)
	}
	if c.PermutationIterations < 1 {
		return fmt.Errorf("PERMUTATION_ITERATIONS must be positive, got %d", c.PermutationIterations)
	}
	if c.Confidence <= 0 || c.Confidence >= 1 {
		return fmt.Errorf("CONFIDENCE must be in (0,1), got %v", c.Confidence)
	}
	if c.DemingLambda <= 0 {
		return fmt.Errorf("DEMING_LAMBDA must be positive, got %v", c.DemingLambda)
	}
	if c.MinPairs < 3 {
		return fmt.Errorf("MIN_PAIRS must be at least 3, got %d", c.MinPairs)
	}
	if c.Workers < 0 {
		return fmt.Errorf("WORKERS must not be negative, got %d", c.Workers)
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("SHUTDOWN_TIMEOUT must be positive")
	}
	if len(c.KafkaBrokers) > 0 && c.ReportTopic == "" {
		return errors.New("REPORT_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

// PublishEnabled reports whether the run should publish its report to Kafka.
func (c *Config) PublishEnabled() bool {
	return len(c.KafkaBrokers) > 0
}
