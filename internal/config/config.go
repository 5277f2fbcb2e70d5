package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Bank struct {
		Path     string `yaml:"path"`
		CacheTTL string `yaml:"cache_ttl"`
	} `yaml:"bank"`
	Exam struct {
		Duration string `yaml:"duration"`
	} `yaml:"exam"`
	Results struct {
		Driver string `yaml:"driver"` // csv, sqlite, postgres or memory
		Path   string `yaml:"path"`
	} `yaml:"results"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Bank.Path = "data/questions.csv"
	cfg.Bank.CacheTTL = "10m"
	cfg.Exam.Duration = "30m"
	cfg.Results.Driver = "csv"
	cfg.Results.Path = "data/results.csv"
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// Load reads YAML config from path on top of Default. A missing file is
// reported with os.ErrNotExist alongside the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// IsMissing reports whether err from Load only means there was no file.
func IsMissing(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
