package backtest

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fazecat/vwapsim/Internal/strategy"
	"github.com/fazecat/vwapsim/Internal/strategy/indicators"
	"github.com/fazecat/vwapsim/Internal/strategy/position"
	"github.com/fazecat/vwapsim/Internal/strategy/sessions"
	"github.com/fazecat/vwapsim/Internal/types"
)

// Config is everything one run needs. It is copied into every symbol's
// runner so parallel runs never share it mutably.
type Config struct {
	InitialCapital  decimal.Decimal
	CommissionRate  decimal.Decimal
	CommissionModel position.CommissionModel
	PriceProxy      indicators.PriceProxy
	EntryOffset     time.Duration
	Cadence         time.Duration
	Window          sessions.Window
	// Location converts bar timestamps to exchange-local time before they
	// are grouped into sessions. Nil keeps timestamps as supplied.
	Location *time.Location
}

func DefaultConfig() Config {
	return Config{
		InitialCapital:  decimal.NewFromInt(100000),
		CommissionRate:  decimal.RequireFromString("0.0005"),
		CommissionModel: position.CommissionNotional,
		PriceProxy:      indicators.ProxyTypical,
		EntryOffset:     time.Minute,
		Cadence:         time.Minute,
		Window:          sessions.RegularHours(),
	}
}

func (c Config) Validate() error {
	if !c.InitialCapital.IsPositive() {
		return &types.ConfigError{Field: "initial_capital", Reason: "must be positive, got " + c.InitialCapital.String()}
	}
	if c.CommissionRate.IsNegative() {
		return &types.ConfigError{Field: "commission_rate", Reason: "must not be negative, got " + c.CommissionRate.String()}
	}
	if _, err := position.ParseCommissionModel(string(c.CommissionModel)); err != nil {
		return &types.ConfigError{Field: "commission_model", Reason: err.Error()}
	}
	if _, err := indicators.ParsePriceProxy(string(c.PriceProxy)); err != nil {
		return &types.ConfigError{Field: "price_proxy", Reason: err.Error()}
	}
	if c.Window.Open >= c.Window.Close || c.Window.Close > 24*time.Hour {
		return &types.ConfigError{Field: "market_hours", Reason: "regular open must be before regular close"}
	}
	if c.EntryOffset < 0 {
		return &types.ConfigError{Field: "entry_offset", Reason: "must not be negative"}
	}
	if c.Window.Open+c.EntryOffset > c.Window.Close {
		return &types.ConfigError{Field: "entry_offset", Reason: "entry instant falls after the regular close"}
	}
	if c.Cadence <= 0 {
		return &types.ConfigError{Field: "bar_cadence", Reason: "must be positive"}
	}
	return nil
}

func (c Config) machineConfig() strategy.MachineConfig {
	return strategy.MachineConfig{
		SessionOpen: c.Window.Open,
		EntryOffset: c.EntryOffset,
		Cadence:     c.Cadence,
	}
}
