// Package config loads jobledger service configuration.
//
// Values are resolved in three layers: DefaultConfig, then an optional YAML
// file, then environment variables (a .env file in the working directory is
// loaded first when present). Environment variables use the JOBLEDGER_
// prefix; DATABASE_URL is honoured as a fallback for the store URL.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/kdgroup/jobledger"
	"github.com/kdgroup/jobledger/internal/logger"
	"github.com/kdgroup/jobledger/invoice"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
)

// Config holds the jobledger service configuration.
type Config struct {
	// ListenAddr is the HTTP listen address (default: ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// BasePath is the URL prefix for API routes (default: "/api").
	BasePath string `yaml:"base_path"`

	// DisableMigrate prevents schema migration on start.
	DisableMigrate bool `yaml:"disable_migrate"`

	Store     StoreConfig     `yaml:"store"`
	Billing   BillingConfig   `yaml:"billing"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Reports   ReportsConfig   `yaml:"reports"`
	Log       logger.LogConfig `yaml:"log"`
}

type StoreConfig struct {
	// Driver is one of memory, postgres, sqlite or mongo.
	Driver string `yaml:"driver"`
	// URL is the connection string, or the database file path for sqlite.
	URL string `yaml:"url"`
	// Database names the mongo database.
	Database string `yaml:"database"`
}

type BillingConfig struct {
	NetTermsDays int `yaml:"net_terms_days"`
	// LeadFeePercentage is a fraction of contract value, e.g. "0.05".
	LeadFeePercentage string            `yaml:"lead_fee_percentage"`
	Currency          string            `yaml:"currency"`
	EntityNames       map[string]string `yaml:"entity_names"`
}

// ReconcileConfig drives the background settlement reconciler.
type ReconcileConfig struct {
	Interval time.Duration `yaml:"interval"`
	Workers  int           `yaml:"workers"`
}

// ReportsConfig configures report export to Google Sheets. Export is off
// while SheetURL is empty.
type ReportsConfig struct {
	SheetURL        string  `yaml:"sheet_url"`
	CredentialsFile string  `yaml:"credentials_file"`
	BatchSize       int     `yaml:"batch_size"`
	WritesPerSecond float64 `yaml:"writes_per_second"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr: ":8080",
		BasePath:   "/api",
		Store: StoreConfig{
			Driver:   DriverMemory,
			Database: "jobledger",
		},
		Billing: BillingConfig{
			NetTermsDays:      jobledger.DefaultNetTermsDays,
			LeadFeePercentage: jobledger.DefaultLeadFeePercentage.String(),
			Currency:          jobledger.DefaultCurrency,
		},
		Reconcile: ReconcileConfig{
			Interval: 15 * time.Minute,
			Workers:  4,
		},
		Reports: ReportsConfig{
			BatchSize:       500,
			WritesPerSecond: 1,
		},
		Log: logger.DefaultConfig(),
	}
}

// Load resolves the configuration. path may be empty, and a missing file
// is not an error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("config: load .env: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("JOBLEDGER_LISTEN_ADDR", &c.ListenAddr)
	str("JOBLEDGER_BASE_PATH", &c.BasePath)
	str("JOBLEDGER_STORE_DRIVER", &c.Store.Driver)
	str("DATABASE_URL", &c.Store.URL)
	str("JOBLEDGER_STORE_URL", &c.Store.URL)
	str("JOBLEDGER_MONGO_DATABASE", &c.Store.Database)
	num("JOBLEDGER_NET_TERMS_DAYS", &c.Billing.NetTermsDays)
	str("JOBLEDGER_LEAD_FEE_PERCENTAGE", &c.Billing.LeadFeePercentage)
	str("JOBLEDGER_CURRENCY", &c.Billing.Currency)
	num("JOBLEDGER_RECONCILE_WORKERS", &c.Reconcile.Workers)
	str("JOBLEDGER_REPORT_SHEET_URL", &c.Reports.SheetURL)
	str("GOOGLE_SERVICE_ACCOUNT_KEY", &c.Reports.CredentialsFile)
	num("JOBLEDGER_REPORT_BATCH_SIZE", &c.Reports.BatchSize)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("LOG_OUTPUT", &c.Log.Output)

	if v, ok := lookup("JOBLEDGER_RECONCILE_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("JOBLEDGER_RECONCILE_INTERVAL: %w", err))
		} else {
			c.Reconcile.Interval = d
		}
	}
	if v, ok := lookup("JOBLEDGER_REPORT_WRITES_PER_SECOND"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("JOBLEDGER_REPORT_WRITES_PER_SECOND: %w", err))
		} else {
			c.Reports.WritesPerSecond = f
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres, DriverSQLite, DriverMongo:
		if c.Store.URL == "" {
			errs = append(errs, fmt.Errorf("store url is required for driver %q", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	if c.Billing.NetTermsDays < 0 {
		errs = append(errs, errors.New("net_terms_days must not be negative"))
	}
	if pct, err := decimal.NewFromString(c.Billing.LeadFeePercentage); err != nil {
		errs = append(errs, fmt.Errorf("lead_fee_percentage: %w", err))
	} else if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Errorf("lead_fee_percentage %s is outside [0, 1]", pct))
	}
	for code := range c.Billing.EntityNames {
		if !invoice.EntityCode(code).IsValid() {
			errs = append(errs, fmt.Errorf("entity_names: unknown entity %q", code))
		}
	}
	if c.Reconcile.Workers < 1 {
		errs = append(errs, errors.New("reconcile workers must be at least 1"))
	}
	if c.Reports.SheetURL != "" && c.Reports.CredentialsFile == "" {
		errs = append(errs, errors.New("reports credentials_file is required when sheet_url is set"))
	}
	return errors.Join(errs...)
}

// EngineOptions translates the billing section into engine options.
func (c Config) EngineOptions() []jobledger.Option {
	opts := []jobledger.Option{
		jobledger.WithNetTermsDays(c.Billing.NetTermsDays),
		jobledger.WithCurrency(strings.ToLower(c.Billing.Currency)),
	}
	if pct, err := decimal.NewFromString(c.Billing.LeadFeePercentage); err == nil {
		opts = append(opts, jobledger.WithLeadFeePercentage(pct))
	}
	if c.DisableMigrate {
		opts = append(opts, jobledger.WithoutMigrate())
	}
	for code, name := range c.Billing.EntityNames {
		opts = append(opts, jobledger.WithEntityName(invoice.EntityCode(code), name))
	}
	return opts
}
