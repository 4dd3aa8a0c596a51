package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/fazecat/vwapsim/Internal/backtest"
	"github.com/fazecat/vwapsim/Internal/strategy/indicators"
	"github.com/fazecat/vwapsim/Internal/strategy/position"
	"github.com/fazecat/vwapsim/Internal/strategy/sessions"
	"github.com/fazecat/vwapsim/Internal/types"
)

// EnvPrefix prefixes every environment override, e.g. VWAP_BACKTEST_PRICE_PROXY.
const EnvPrefix = "VWAP"

type Config struct {
	Backtest BacktestConfig `yaml:"backtest"`

	Global struct {
		MarketHours struct {
			RegularOpen  string `yaml:"regular_open"`
			RegularClose string `yaml:"regular_close"`
			Timezone     string `yaml:"timezone"`
		} `yaml:"market_hours"`
	} `yaml:"global"`

	Symbols  []string       `yaml:"symbols"`
	Data     DataConfig     `yaml:"data"`
	Output   OutputConfig   `yaml:"output"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	API      APIConfig      `yaml:"api"`

	path string
}

type BacktestConfig struct {
	InitialCapital     float64 `yaml:"initial_capital"`
	CommissionRate     float64 `yaml:"commission_rate"`
	CommissionModel    string  `yaml:"commission_model"`
	PriceProxy         string  `yaml:"price_proxy"`
	EntryOffsetMinutes int     `yaml:"entry_offset_minutes"`
	BarCadenceMinutes  int     `yaml:"bar_cadence_minutes"`
}

type DataConfig struct {
	Source       string `yaml:"source"` // csv or alpaca
	CSVDir       string `yaml:"csv_dir"`
	CSVPattern   string `yaml:"csv_pattern"` // %s is replaced by the symbol
	LookbackDays int    `yaml:"lookback_days"`
	Feed         string `yaml:"feed"`
}

type OutputConfig struct {
	Dir     string   `yaml:"dir"`
	Formats []string `yaml:"formats"`
}

type DatabaseConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type APIConfig struct {
	Addr          string `yaml:"addr"`
	TokenTTLHours int    `yaml:"token_ttl_hours"`
}

// overrides mirrors the keys that may come from the environment. Nil
// pointers mean the variable was not set.
type overrides struct {
	InitialCapital  *float64 `envconfig:"BACKTEST_INITIAL_CAPITAL"`
	CommissionRate  *float64 `envconfig:"BACKTEST_COMMISSION_RATE"`
	CommissionModel *string  `envconfig:"BACKTEST_COMMISSION_MODEL"`
	PriceProxy      *string  `envconfig:"BACKTEST_PRICE_PROXY"`
	EntryOffset     *int     `envconfig:"BACKTEST_ENTRY_OFFSET_MINUTES"`
	Timezone        *string  `envconfig:"MARKET_TIMEZONE"`
	Symbols         []string `envconfig:"SYMBOLS"`
	DataSource      *string  `envconfig:"DATA_SOURCE"`
	CSVDir          *string  `envconfig:"DATA_CSV_DIR"`
	OutputDir       *string  `envconfig:"OUTPUT_DIR"`
	DatabaseEnabled *bool    `envconfig:"DATABASE_ENABLED"`
	LogLevel        *string  `envconfig:"LOG_LEVEL"`
	APIAddr         *string  `envconfig:"API_ADDR"`
}

func Default() *Config {
	cfg := &Config{
		Backtest: BacktestConfig{
			InitialCapital:     100000,
			CommissionRate:     0.0005,
			CommissionModel:    string(position.CommissionNotional),
			PriceProxy:         string(indicators.ProxyTypical),
			EntryOffsetMinutes: 1,
			BarCadenceMinutes:  1,
		},
		Symbols: []string{"QQQ", "TQQQ"},
		Data: DataConfig{
			Source:       "csv",
			CSVDir:       ".",
			CSVPattern:   "%s_60day_1min_data.csv",
			LookbackDays: 60,
			Feed:         "iex",
		},
		Output: OutputConfig{
			Dir:     "results",
			Formats: []string{"csv", "json"},
		},
		Logging: LoggingConfig{Level: "info"},
		API: APIConfig{
			Addr:          ":8080",
			TokenTTLHours: 24,
		},
	}
	cfg.Global.MarketHours.RegularOpen = "09:30"
	cfg.Global.MarketHours.RegularClose = "16:00"
	cfg.Global.MarketHours.Timezone = "America/New_York"
	return cfg
}

func candidatePaths() ([]string, error) {
	// Resolve path relative to this file first
	_, filePath, _, ok := runtime.Caller(0)
	var basePath string
	if ok {
		basePath = filepath.Dir(filePath)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	possiblePaths := []string{}
	if basePath != "" {
		possiblePaths = append(possiblePaths, filepath.Join(basePath, "config.yaml"))
	}
	possiblePaths = append(possiblePaths,
		filepath.Join(cwd, "Internal", "utils", "config", "config.yaml"),
		filepath.Join("Internal", "utils", "config", "config.yaml"),
		"config.yaml",
	)
	return possiblePaths, nil
}

// LoadConfig finds config.yaml in the usual places, layers it over the
// defaults and applies VWAP_* environment overrides.
func LoadConfig() (*Config, error) {
	possiblePaths, err := candidatePaths()
	if err != nil {
		return nil, err
	}
	for _, path := range possiblePaths {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadConfigFrom(path)
		}
	}
	return nil, fmt.Errorf("config.yaml not found in %s", strings.Join(possiblePaths, ", "))
}

func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.path = path

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var env overrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}
	if env.InitialCapital != nil {
		c.Backtest.InitialCapital = *env.InitialCapital
	}
	if env.CommissionRate != nil {
		c.Backtest.CommissionRate = *env.CommissionRate
	}
	if env.CommissionModel != nil {
		c.Backtest.CommissionModel = *env.CommissionModel
	}
	if env.PriceProxy != nil {
		c.Backtest.PriceProxy = *env.PriceProxy
	}
	if env.EntryOffset != nil {
		c.Backtest.EntryOffsetMinutes = *env.EntryOffset
	}
	if env.Timezone != nil {
		c.Global.MarketHours.Timezone = *env.Timezone
	}
	if len(env.Symbols) > 0 {
		c.Symbols = env.Symbols
	}
	if env.DataSource != nil {
		c.Data.Source = *env.DataSource
	}
	if env.CSVDir != nil {
		c.Data.CSVDir = *env.CSVDir
	}
	if env.OutputDir != nil {
		c.Output.Dir = *env.OutputDir
	}
	if env.DatabaseEnabled != nil {
		c.Database.Enabled = *env.DatabaseEnabled
	}
	if env.LogLevel != nil {
		c.Logging.Level = *env.LogLevel
	}
	if env.APIAddr != nil {
		c.API.Addr = *env.APIAddr
	}
	return nil
}

// Path is where the config was loaded from, empty for Default().
func (c *Config) Path() string { return c.path }

// BacktestConfig converts the file settings into a validated engine config.
func (c *Config) BacktestConfig() (backtest.Config, error) {
	out := backtest.DefaultConfig()
	b := c.Backtest

	out.InitialCapital = decimal.NewFromFloat(b.InitialCapital)
	out.CommissionRate = decimal.NewFromFloat(b.CommissionRate)
	out.CommissionModel = position.CommissionModel(b.CommissionModel)
	out.PriceProxy = indicators.PriceProxy(b.PriceProxy)
	out.EntryOffset = time.Duration(b.EntryOffsetMinutes) * time.Minute
	if b.BarCadenceMinutes != 0 {
		out.Cadence = time.Duration(b.BarCadenceMinutes) * time.Minute
	}

	mh := c.Global.MarketHours
	if mh.RegularOpen != "" || mh.RegularClose != "" {
		open, err := sessions.ParseClock(mh.RegularOpen)
		if err != nil {
			return backtest.Config{}, &types.ConfigError{Field: "global.market_hours.regular_open", Reason: err.Error()}
		}
		closing, err := sessions.ParseClock(mh.RegularClose)
		if err != nil {
			return backtest.Config{}, &types.ConfigError{Field: "global.market_hours.regular_close", Reason: err.Error()}
		}
		out.Window = sessions.Window{Open: open, Close: closing}
	}
	if mh.Timezone != "" {
		loc, err := time.LoadLocation(mh.Timezone)
		if err != nil {
			return backtest.Config{}, &types.ConfigError{Field: "global.market_hours.timezone", Reason: err.Error()}
		}
		out.Location = loc
	}

	if err := out.Validate(); err != nil {
		return backtest.Config{}, err
	}
	return out, nil
}

func SaveConfig(cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	path := cfg.path
	if path == "" {
		path = filepath.Join("Internal", "utils", "config", "config.yaml")
	}
	return os.WriteFile(path, data, 0644)
}
