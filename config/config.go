// Package config loads the yaml configuration shared by the CLI commands.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"winemodel/logging"
	"winemodel/ml"
)

// BuiltinSource selects the bundled wine dataset.
const BuiltinSource = "builtin:wine"

// Config mirrors the YAML configuration file.
type Config struct {
	Dataset  DatasetConfig  `yaml:"dataset"`
	Model    ModelConfig    `yaml:"model"`
	Database DatabaseConfig `yaml:"database"`
	HTTP     HTTPConfig     `yaml:"http"`
	Log      logging.Config `yaml:"log"`
}

// DatasetConfig selects the training data and how to split it.
type DatasetConfig struct {
	// Source is BuiltinSource or a CSV path/URL.
	Source         string  `yaml:"source"`
	Seed           int64   `yaml:"seed"`
	TestRatio      float64 `yaml:"test_ratio"`
	Stratify       bool    `yaml:"stratify"`
	Header         bool    `yaml:"header"`
	LabelFirst     bool    `yaml:"label_first"`
	OneBasedLabels bool    `yaml:"one_based_labels"`
	Encoding       string  `yaml:"encoding"`
}

// ModelConfig selects the ensemble and where its artifact lives.
type ModelConfig struct {
	Kind      string    `yaml:"kind"`
	Path      string    `yaml:"path"`
	Params    ml.Params `yaml:"params"`
	CacheSize int       `yaml:"cache_size"`
	// Watch reloads the served model when its file changes.
	Watch bool `yaml:"watch"`
}

// DatabaseConfig locates the sqlite log.
type DatabaseConfig struct {
	// Path of the sqlite file; empty disables persistence.
	Path string `yaml:"path"`
}

// HTTPConfig configures the serve command.
type HTTPConfig struct {
	Port           int           `yaml:"port"`
	Timeout        time.Duration `yaml:"timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
}

// Default is the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Dataset: DatasetConfig{
			Source:         BuiltinSource,
			Seed:           42,
			TestRatio:      0.2,
			Stratify:       true,
			LabelFirst:     true,
			OneBasedLabels: true,
			Encoding:       "utf-8",
		},
		Model: ModelConfig{
			Kind: ml.KindRandomForest,
			Path: "./models/wine.model",
			Params: ml.Params{
				MaxDepth:        10,
				MinSamplesSplit: 2,
				NumEstimators:   100,
				Seed:            42,
			},
			CacheSize: 4,
			Watch:     true,
		},
		Database: DatabaseConfig{Path: "./data/winemodel.db"},
		HTTP: HTTPConfig{
			Port:           8080,
			Timeout:        30 * time.Second,
			AllowedOrigins: []string{"*"},
			MaxBodyBytes:   1 << 20,
		},
		Log: logging.DefaultConfig(),
	}
}

// Load decodes the yaml file at path over the defaults. An empty path returns
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the workflow cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Dataset.Source == "" {
		errs = append(errs, errors.New("dataset.source is required"))
	}
	if c.Dataset.TestRatio <= 0 || c.Dataset.TestRatio >= 1 {
		errs = append(errs, fmt.Errorf("dataset.test_ratio must be in (0, 1), got %v", c.Dataset.TestRatio))
	}
	if !validKind(c.Model.Kind) {
		errs = append(errs, fmt.Errorf("model.kind %q is not one of %v", c.Model.Kind, ml.Kinds()))
	}
	if c.Model.Path == "" {
		errs = append(errs, errors.New("model.path is required"))
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port %d out of range", c.HTTP.Port))
	}
	if c.HTTP.Timeout < 0 {
		errs = append(errs, errors.New("http.timeout must not be negative"))
	}
	return errors.Join(errs...)
}

func validKind(kind string) bool {
	for _, k := range ml.Kinds() {
		if k == kind {
			return true
		}
	}
	return false
}
