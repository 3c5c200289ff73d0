package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SCRAPER_MAX_PAGES.
const EnvPrefix = "SCRAPER"

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"base-url":     "base_url",
	"pages":        "max_pages",
	"parallel":     "parallelism",
	"rps":          "requests_per_second",
	"timeout":      "timeout",
	"run-timeout":  "run_timeout",
	"policy":       "parse_policy",
	"dedupe":       "dedupe_max_size",
	"spreadsheet":  "spreadsheet_url",
	"credentials":  "credentials_file",
	"export":       "export_file",
	"format":       "export_format",
	"interval":     "interval",
	"metrics-addr": "metrics_addr",
	"log-dir":      "log_dir",
	"verbose":      "verbose",
}

// RegisterFlags declares the overridable settings on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	def := DefaultConfig()
	fs.String("base-url", def.BaseURL, "Listing URL the page number is appended to")
	fs.Int("pages", def.MaxPages, "Number of catalogue pages to scrape")
	fs.Int("parallel", def.Parallelism, "Number of pages fetched concurrently")
	fs.Float64("rps", def.RequestsPerSecond, "Maximum page requests per second (0 = unlimited)")
	fs.Duration("timeout", def.Timeout, "Per-page request timeout")
	fs.Duration("run-timeout", def.RunTimeout, "Deadline for a whole run (0 = none)")
	fs.String("policy", def.ParsePolicy, "Malformed listing policy: page or item")
	fs.Int("dedupe", def.DedupeMaxSize, "Drop repeated product links, remembering up to N links (0 = off)")
	fs.String("spreadsheet", "", "Google Sheets URL or spreadsheet ID")
	fs.String("credentials", "", "Path to service account credentials JSON (or GOOGLE_SHEETS_CREDENTIALS)")
	fs.String("export", "", "Also write the table to this local file")
	fs.String("format", def.ExportFormat, "Local export format: csv or json")
	fs.Duration("interval", def.Interval, "Time between scheduled runs")
	fs.String("metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	fs.String("log-dir", "", "Directory for daily log files")
	fs.BoolP("verbose", "v", false, "Enable verbose logging")
}

// Load merges defaults, an optional config file, SCRAPER_* environment
// variables and changed flags, then validates the result.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	if err := v.BindEnv("spreadsheet_url", EnvPrefix+"_SPREADSHEET_URL", "SHEET_URL"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.ParsePolicy = strings.ToLower(strings.TrimSpace(cfg.ParsePolicy))
	cfg.ExportFormat = strings.ToLower(strings.TrimSpace(cfg.ExportFormat))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, def *Config) {
	v.SetDefault("base_url", def.BaseURL)
	v.SetDefault("origin", def.Origin)
	v.SetDefault("max_pages", def.MaxPages)
	v.SetDefault("parallelism", def.Parallelism)
	v.SetDefault("requests_per_second", def.RequestsPerSecond)
	v.SetDefault("timeout", def.Timeout)
	v.SetDefault("run_timeout", def.RunTimeout)
	v.SetDefault("user_agent", def.UserAgent)
	v.SetDefault("headers", def.Headers)
	v.SetDefault("respect_robots_txt", def.RespectRobotsTxt)
	v.SetDefault("parse_policy", def.ParsePolicy)
	v.SetDefault("dedupe_max_size", def.DedupeMaxSize)
	v.SetDefault("spreadsheet_url", def.SpreadsheetURL)
	v.SetDefault("credentials_file", def.CredentialsFile)
	v.SetDefault("sheet_title_layout", def.SheetTitleLayout)
	v.SetDefault("sheet_rows", def.SheetRows)
	v.SetDefault("sheet_cols", def.SheetCols)
	v.SetDefault("description_width", def.DescriptionWidth)
	v.SetDefault("export_file", def.ExportFile)
	v.SetDefault("export_format", def.ExportFormat)
	v.SetDefault("interval", def.Interval)
	v.SetDefault("metrics_addr", def.MetricsAddr)
	v.SetDefault("log_dir", def.LogDir)
	v.SetDefault("verbose", def.Verbose)
}
