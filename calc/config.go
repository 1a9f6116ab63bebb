// CLAUDE:SUMMARY YAML service configuration for listen address, storage paths, history bounds, CORS and logging.
package calc

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the matrixcalc configuration.
type Config struct {
	Addr         string   `yaml:"addr"`
	DBPath       string   `yaml:"db_path"`
	PagesDir     string   `yaml:"pages_dir"`
	HistoryLimit int      `yaml:"history_limit"`
	HistoryMax   int      `yaml:"history_max"`
	CORSOrigins  []string `yaml:"cors_origins"`
	SQLTrace     bool     `yaml:"sql_trace"`
	LogLevel     string   `yaml:"log_level"`
}

// Defaults fills every unset field.
func (c *Config) Defaults() {
	if c.Addr == "" {
		c.Addr = ":5000"
	}
	if c.DBPath == "" {
		c.DBPath = "matrix_history.db"
	}
	if c.PagesDir == "" {
		c.PagesDir = "saved_pages"
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 5
	}
	if c.HistoryMax <= 0 {
		c.HistoryMax = 500
	}
	if c.HistoryMax < c.HistoryLimit {
		c.HistoryMax = c.HistoryLimit
	}
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"*"}
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// LoadConfigFile reads a YAML config file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Defaults()
	return cfg, nil
}
