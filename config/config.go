package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Parse policies decide what a malformed listing costs.
const (
	// PolicyPage drops the whole page when one listing is malformed.
	PolicyPage = "page"
	// PolicyItem drops only the malformed listing.
	PolicyItem = "item"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL           string            `mapstructure:"base_url"`
	Origin            string            `mapstructure:"origin"`
	MaxPages          int               `mapstructure:"max_pages"`
	Parallelism       int               `mapstructure:"parallelism"`
	RequestsPerSecond float64           `mapstructure:"requests_per_second"`
	Timeout           time.Duration     `mapstructure:"timeout"`
	RunTimeout        time.Duration     `mapstructure:"run_timeout"`
	UserAgent         string            `mapstructure:"user_agent"`
	Headers           map[string]string `mapstructure:"headers"`
	RespectRobotsTxt  bool              `mapstructure:"respect_robots_txt"`
	ParsePolicy       string            `mapstructure:"parse_policy"`
	DedupeMaxSize     int               `mapstructure:"dedupe_max_size"`

	SpreadsheetURL   string `mapstructure:"spreadsheet_url"`
	CredentialsFile  string `mapstructure:"credentials_file"`
	SheetTitleLayout string `mapstructure:"sheet_title_layout"`
	SheetRows        int64  `mapstructure:"sheet_rows"`
	SheetCols        int64  `mapstructure:"sheet_cols"`
	DescriptionWidth int64  `mapstructure:"description_width"`

	ExportFile   string `mapstructure:"export_file"`
	ExportFormat string `mapstructure:"export_format"` // csv or json

	Interval    time.Duration `mapstructure:"interval"`
	MetricsAddr string        `mapstructure:"metrics_addr"`
	LogDir      string        `mapstructure:"log_dir"`
	Verbose     bool          `mapstructure:"verbose"`
}

// DefaultConfig returns defaults for the laptops section of the test site.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:           "https://webscraper.io/test-sites/e-commerce/static/computers/laptops?page=",
		Origin:            "https://webscraper.io",
		MaxPages:          3,
		Parallelism:       1,
		RequestsPerSecond: 0,
		Timeout:           30 * time.Second,
		RunTimeout:        0,
		UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
		Headers:           map[string]string{},
		RespectRobotsTxt:  false,
		ParsePolicy:       PolicyPage,
		DedupeMaxSize:     0,
		SheetTitleLayout:  "2006-01-02-15-04-05",
		SheetRows:         100,
		SheetCols:         20,
		DescriptionWidth:  800,
		ExportFormat:      "csv",
		Interval:          time.Hour,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if err := validateURL("base URL", c.BaseURL); err != nil {
		return err
	}
	if err := validateURL("origin", c.Origin); err != nil {
		return err
	}

	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.RunTimeout < 0 {
		return fmt.Errorf("run timeout cannot be negative")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.ParsePolicy != PolicyPage && c.ParsePolicy != PolicyItem {
		return fmt.Errorf("parse policy must be %s or %s", PolicyPage, PolicyItem)
	}
	if c.DedupeMaxSize < 0 {
		return fmt.Errorf("dedupe max size cannot be negative")
	}
	if c.SheetTitleLayout == "" {
		return fmt.Errorf("sheet title layout cannot be empty")
	}
	if c.SheetRows <= 0 || c.SheetCols < 3 {
		return fmt.Errorf("sheet grid must have positive rows and at least 3 columns")
	}
	if c.DescriptionWidth <= 0 {
		return fmt.Errorf("description width must be positive")
	}
	if c.ExportFile != "" && c.ExportFormat != "csv" && c.ExportFormat != "json" {
		return fmt.Errorf("export format must be csv or json")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}

	return nil
}

// RequireSpreadsheet checks the settings needed by the load stage.
func (c *Config) RequireSpreadsheet() error {
	if strings.TrimSpace(c.SpreadsheetURL) == "" {
		return fmt.Errorf("spreadsheet URL cannot be empty (set SHEET_URL or --spreadsheet)")
	}
	return nil
}

func validateURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	parsedURL, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}
