// Package harnesscfg provides configuration management for the fixharness
// engine.
package harnesscfg

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Defaults applied by Normalize when a field is left unset.
const (
	defaultCalendarPreset  = "NYSE"
	defaultSettlementDays  = 2 // T+2
	defaultLedgerPrecision = 8 // significant figures
	defaultLedgerTolerance = 1e-4
	defaultCorrelateTimeout = 30 * time.Second
	defaultDashboardPort   = 8947

	defaultDashboardReadTimeout       = 15 * time.Second
	defaultDashboardWriteTimeout      = 15 * time.Second
	defaultDashboardIdleTimeout       = 60 * time.Second
	defaultDashboardReadHeaderTimeout = 5 * time.Second
	defaultDashboardShutdownTimeout   = 5 * time.Second
)

// Config is the complete engine configuration.
type Config struct {
	Calendar   CalendarConfig   `yaml:"calendar"`
	SynData    SynDataConfig    `yaml:"syndata"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Correlator CorrelatorConfig `yaml:"correlator"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`
}

// CalendarConfig selects a business calendar preset and any additional
// explicit holidays layered on top of it.
type CalendarConfig struct {
	Preset           string   `yaml:"preset"` // NYSE | LSE | TSE
	ExplicitHolidays []string `yaml:"explicit_holidays"` // "YYYY-MM-DD"
	SettlementDays   int      `yaml:"settlement_days"`   // 1 (T1) or 2 (T2); 0 or unset is replaced by 2 in Normalize
}

// SynDataConfig controls the synthetic data generator's determinism.
type SynDataConfig struct {
	Deterministic bool  `yaml:"deterministic"`
	Seed          int64 `yaml:"seed"`
}

// LedgerConfig tunes the reconciliation ledger's numeric comparison.
type LedgerConfig struct {
	Precision int     `yaml:"precision"`
	Tolerance float64 `yaml:"tolerance"`
}

// CorrelatorConfig tunes the request/response correlator.
type CorrelatorConfig struct {
	DefaultTimeout time.Duration `yaml:"default_timeout"`
}

// DashboardConfig controls the optional read-only status surface.
type DashboardConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Port       int      `yaml:"port"`
	AuthTokens []string `yaml:"auth_tokens"` // empty disables authentication

	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// Load reads and parses the engine configuration file at path, applying
// Normalize's defaults and then Validate's checks.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "harness.yaml"
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path is an operator-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", path, err)
	}

	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Normalize fills in default values for fields left unset in the YAML
// document.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.Calendar.Preset) == "" {
		c.Calendar.Preset = defaultCalendarPreset
	}
	if c.Calendar.SettlementDays == 0 {
		c.Calendar.SettlementDays = defaultSettlementDays
	}
	if c.Ledger.Precision == 0 {
		c.Ledger.Precision = defaultLedgerPrecision
	}
	if c.Ledger.Tolerance == 0 {
		c.Ledger.Tolerance = defaultLedgerTolerance
	}
	if c.Correlator.DefaultTimeout == 0 {
		c.Correlator.DefaultTimeout = defaultCorrelateTimeout
	}
	if c.Dashboard.Enabled && c.Dashboard.Port == 0 {
		c.Dashboard.Port = defaultDashboardPort
	}
	if c.Dashboard.ReadTimeout == 0 {
		c.Dashboard.ReadTimeout = defaultDashboardReadTimeout
	}
	if c.Dashboard.WriteTimeout == 0 {
		c.Dashboard.WriteTimeout = defaultDashboardWriteTimeout
	}
	if c.Dashboard.IdleTimeout == 0 {
		c.Dashboard.IdleTimeout = defaultDashboardIdleTimeout
	}
	if c.Dashboard.ReadHeaderTimeout == 0 {
		c.Dashboard.ReadHeaderTimeout = defaultDashboardReadHeaderTimeout
	}
	if c.Dashboard.ShutdownTimeout == 0 {
		c.Dashboard.ShutdownTimeout = defaultDashboardShutdownTimeout
	}
}

// Validate checks that the configuration's values are internally
// consistent.
func (c *Config) Validate() error {
	switch strings.ToUpper(c.Calendar.Preset) {
	case "NYSE", "LSE", "TSE":
	default:
		return fmt.Errorf("calendar.preset must be one of: NYSE, LSE, TSE")
	}
	if c.Calendar.SettlementDays < 0 || c.Calendar.SettlementDays > 2 {
		return fmt.Errorf("calendar.settlement_days must be 0, 1, or 2")
	}
	for _, d := range c.Calendar.ExplicitHolidays {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return fmt.Errorf("calendar.explicit_holidays entry %q is not YYYY-MM-DD: %w", d, err)
		}
	}

	if c.Ledger.Precision <= 0 {
		return fmt.Errorf("ledger.precision must be > 0")
	}
	if c.Ledger.Tolerance <= 0 {
		return fmt.Errorf("ledger.tolerance must be > 0")
	}

	if c.Correlator.DefaultTimeout <= 0 {
		return fmt.Errorf("correlator.default_timeout must be > 0")
	}

	if c.Dashboard.Enabled {
		if c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535 {
			return fmt.Errorf("dashboard.port must be between 1 and 65535")
		}
	}

	return nil
}
