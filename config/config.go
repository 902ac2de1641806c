// Package config loads service settings from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"powercast/logger"
	"powercast/modelstore"
)

// Environment variables read by ApplyEnv.
const (
	EnvConfigPath = "POWERCAST_CONFIG"
	EnvBucket     = "MODEL_S3_BUCKET"
)

const DefaultPath = "config.yaml"

type Config struct {
	Http struct {
		Port         int           `yaml:"port"`
		Timeout      time.Duration `yaml:"timeout"`
		RateLimit    float64       `yaml:"rate_limit"`
		RateBurst    int           `yaml:"rate_burst"`
		MaxBodyBytes int64         `yaml:"max_body_bytes"`
	} `yaml:"http"`
	Log     logger.Config `yaml:"log"`
	Models  []ModelConfig `yaml:"models"`
	Storage struct {
		Bucket       string        `yaml:"bucket"`
		Region       string        `yaml:"region"`
		Endpoint     string        `yaml:"endpoint"`
		UsePathStyle bool          `yaml:"use_path_style"`
		FetchTimeout time.Duration `yaml:"fetch_timeout"`
	} `yaml:"storage"`
	Cache struct {
		Size int `yaml:"size"`
	} `yaml:"cache"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	WatchArtifacts bool `yaml:"watch_artifacts"`
}

// ModelConfig registers one model. KeyEnv names the environment variable
// holding the remote object key; a non-empty value overrides RemoteKey.
type ModelConfig struct {
	Name      string `yaml:"name"`
	Path      string `yaml:"path"`
	RemoteKey string `yaml:"remote_key"`
	KeyEnv    string `yaml:"key_env"`
}

func Default() *Config {
	c := &Config{}
	c.Http.Port = 5000
	c.Http.Timeout = 30 * time.Second
	c.Http.RateBurst = 20
	c.Http.MaxBodyBytes = 1 << 20
	c.Log = logger.DefaultConfig()
	c.Storage.FetchTimeout = 60 * time.Second
	c.Cache.Size = 1024
	c.Models = []ModelConfig{
		{Name: "XGBoost Regressor", Path: "models/xgb_model.json", KeyEnv: "XGB_MODEL_KEY"},
		{Name: "Random Forest Regressor", Path: "models/rf_model.json", KeyEnv: "RF_MODEL_KEY"},
		{Name: "LightGBM Regressor", Path: "models/lgbm_model.json", KeyEnv: "LGBM_MODEL_KEY"},
	}
	return c
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	config := Default()
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config, nil
		}
		return nil, err
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return config, nil
}

// Path returns the config file location, honoring POWERCAST_CONFIG.
func Path(getenv func(string) string) string {
	if p := getenv(EnvConfigPath); p != "" {
		return p
	}
	return DefaultPath
}

// ApplyEnv overlays the bucket and per-model remote keys from the
// environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvBucket); v != "" {
		c.Storage.Bucket = v
	}
	for i := range c.Models {
		if c.Models[i].KeyEnv == "" {
			continue
		}
		if v := getenv(c.Models[i].KeyEnv); v != "" {
			c.Models[i].RemoteKey = v
		}
	}
}

func (c *Config) Registry() modelstore.Registry {
	registry := make(modelstore.Registry, len(c.Models))
	for i, m := range c.Models {
		registry[i] = modelstore.Entry{Name: m.Name, Path: m.Path, RemoteKey: m.RemoteKey}
	}
	return registry
}

func (c *Config) Validate() error {
	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		return fmt.Errorf("invalid http port %d", c.Http.Port)
	}
	if c.Cache.Size < 0 {
		return errors.New("cache size must not be negative")
	}
	return c.Registry().Validate()
}
