package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Site      Site      `yaml:"site"`
	Analytics Analytics `yaml:"analytics"`
	Scrape    Scrape    `yaml:"scrape"`
	Report    Report    `yaml:"report"`
	Writers   []Writer  `yaml:"writers"`
	Server    Server    `yaml:"server"`
	Output    Output    `yaml:"output"`
	Logging   Logging   `yaml:"logging"`
}

// Site describes the news site whose article pages get scraped.
type Site struct {
	BaseURL string `yaml:"base_url"`
	FeedURL string `yaml:"feed_url"`
	Name    string `yaml:"name"`
}

// Analytics configures the GA4 Data API connection.
type Analytics struct {
	PropertyID      string `yaml:"property_id"`
	CredentialsFile string `yaml:"credentials_file"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

// Scrape bounds the article metadata fan-out.
type Scrape struct {
	Workers        int `yaml:"workers"`
	TimeoutSeconds int `yaml:"timeout_seconds"`
	BatchSeconds   int `yaml:"batch_seconds"`
}

// Report tunes aggregation.
type Report struct {
	TopN          int      `yaml:"top_n"`
	TrendWeeks    int      `yaml:"trend_weeks"`
	CacheTTLHours int      `yaml:"cache_ttl_hours"`
	Blocklist     []string `yaml:"blocklist"`
}

// Writer maps a reporter's real name to a pen name for the pseudonym view.
type Writer struct {
	Name    string `yaml:"name"`
	PenName string `yaml:"pen_name"`
}

type Server struct {
	Port       int    `yaml:"port"`
	Passphrase string `yaml:"passphrase"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for cncreport.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "cncreport")
}

// DataDir returns the XDG data directory for cncreport.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "cncreport")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/cncreport/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'cncreport init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Site: Site{
			BaseURL: "http://www.cooknchefnews.com",
			Name:    "쿡앤셰프",
		},
		Analytics: Analytics{
			TimeoutSeconds: 20,
		},
		Scrape: Scrape{
			Workers:        12,
			TimeoutSeconds: 3,
			BatchSeconds:   60,
		},
		Report: Report{
			TopN:          10,
			TrendWeeks:    12,
			CacheTTLHours: 1,
			Blocklist:     []string{"cook&chef", "쿡앤셰프"},
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// PenNames builds the real-name -> pen-name lookup from the writers table.
func (c *Config) PenNames() map[string]string {
	m := make(map[string]string, len(c.Writers))
	for _, w := range c.Writers {
		if w.Name != "" && w.PenName != "" {
			m[w.Name] = w.PenName
		}
	}
	return m
}

// ScrapeTimeout returns the per-page fetch timeout.
func (c *Config) ScrapeTimeout() time.Duration {
	return time.Duration(c.Scrape.TimeoutSeconds) * time.Second
}

// ScrapeBatchDeadline returns the deadline covering a whole enrichment fan-out.
func (c *Config) ScrapeBatchDeadline() time.Duration {
	return time.Duration(c.Scrape.BatchSeconds) * time.Second
}

// AnalyticsTimeout returns the per-query analytics timeout.
func (c *Config) AnalyticsTimeout() time.Duration {
	return time.Duration(c.Analytics.TimeoutSeconds) * time.Second
}

// CacheTTL returns how long a computed report bundle stays fresh.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Report.CacheTTLHours) * time.Hour
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
