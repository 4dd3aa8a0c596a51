package backtest

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fazecat/vwapsim/Internal/types"
)

// flatBars builds one bar per minute from 09:30 with open=high=low=close so
// the typical price equals the close.
func flatBars(day int, closes ...float64) []types.Bar {
	start := time.Date(2024, 3, day, 9, 30, 0, 0, time.UTC)
	out := make([]types.Bar, len(closes))
	for i, c := range closes {
		out[i] = types.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      c, High: c, Low: c, Close: c, Volume: 1000,
		}
	}
	return out
}

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	r, err := NewRunner(DefaultConfig(), nil, nil)
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	return r
}

func fixture() []types.Bar {
	var bars []types.Bar
	bars = append(bars, flatBars(4, 100, 101, 99, 98)...) // long, stopped at 99
	bars = append(bars, flatBars(5, 100, 99, 98, 97)...)  // short, held to close
	broken := flatBars(6, 50, 51)
	broken[1].High = 40
	bars = append(bars, broken...)
	bars = append(bars, types.Bar{ // after-hours only
		Timestamp: time.Date(2024, 3, 7, 18, 0, 0, 0, time.UTC),
		Open:      10, High: 10, Low: 10, Close: 10, Volume: 5,
	})
	return bars
}

func TestRunner_Run(t *testing.T) {
	r := newTestRunner(t)
	res, err := r.Run("QQQ", fixture())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(res.Trades) != 2 {
		t.Fatalf("got %d trades, want 2", len(res.Trades))
	}
	long, short := res.Trades[0], res.Trades[1]
	if long.Direction != types.DirectionLong || long.ExitReason != types.ExitStop {
		t.Errorf("first trade = %+v, want long stop", long)
	}
	if long.Shares != 990 || !long.PnL.Equal(decimal.NewFromInt(-2079)) {
		t.Errorf("long shares=%d pnl=%s, want 990 and -2079", long.Shares, long.PnL)
	}
	if short.Direction != types.DirectionShort || short.ExitReason != types.ExitCloseOfDay || short.ExitPrice != 97 {
		t.Errorf("second trade = %+v, want short close-of-day at 97", short)
	}

	sum := decimal.Zero
	for _, tr := range res.Trades {
		sum = sum.Add(tr.PnL)
	}
	if !res.FinalEquity.Equal(res.InitialCapital.Add(sum)) {
		t.Errorf("final equity %s != initial + pnl %s", res.FinalEquity, res.InitialCapital.Add(sum))
	}

	if len(res.Sessions) != 2 {
		t.Errorf("got %d sessions, want 2", len(res.Sessions))
	}
	if got := res.TradedSessions(); got != 2 {
		t.Errorf("TradedSessions() = %d, want 2", got)
	}
	if len(res.Skipped) != 2 || res.Skipped[0].Date != "2024-03-06" || res.Skipped[1].Date != "2024-03-07" {
		t.Errorf("skipped = %+v, want 2024-03-06 and 2024-03-07", res.Skipped)
	}
	if res.Report.Summary.TradeCount != 2 || len(res.Report.EquityCurve) != 3 {
		t.Errorf("report = %+v", res.Report.Summary)
	}
	if len(res.Daily) != 2 {
		t.Errorf("daily equity = %+v, want 2 points", res.Daily)
	}
	for _, s := range res.Sessions {
		if s.FinalState.String() != "closed" {
			t.Errorf("%s final state = %v, want closed", s.Date, s.FinalState)
		}
		if s.Imbalance.Above+s.Imbalance.Below+s.Imbalance.Neutral != s.Bars-1 {
			t.Errorf("%s imbalance labels = %+v for %d bars", s.Date, s.Imbalance, s.Bars)
		}
	}
}

func TestRunner_RunIsRepeatable(t *testing.T) {
	r := newTestRunner(t)
	first, err := r.Run("QQQ", fixture())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	second, err := r.Run("QQQ", fixture())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if first.RunID == second.RunID {
		t.Errorf("run ids should differ")
	}
	if !reflect.DeepEqual(first.Trades, second.Trades) || !reflect.DeepEqual(first.Report, second.Report) {
		t.Errorf("re-running the same bars changed the results")
	}
}

func TestRunner_ZeroVolumeOpeningBar(t *testing.T) {
	bars := flatBars(4, 100, 102, 103)
	bars[0].Volume = 0
	bars[1].Low = 99 // typical 101 with a close of 102
	r := newTestRunner(t)
	res, err := r.Run("QQQ", bars)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Sessions) != 1 || len(res.Skipped) != 0 {
		t.Fatalf("sessions=%d skipped=%+v, want the session to run", len(res.Sessions), res.Skipped)
	}
	if len(res.Trades) != 1 || res.Trades[0].EntryVWAP != 101 || res.Trades[0].Direction != types.DirectionLong {
		t.Errorf("trades = %+v, want one long entry against vwap 101", res.Trades)
	}
}

func TestRunner_InsufficientCapitalIsSkipped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialCapital = decimal.NewFromInt(50)
	r, err := NewRunner(cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	res, err := r.Run("QQQ", flatBars(4, 100, 101, 99))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Trades) != 0 || len(res.Skipped) != 1 {
		t.Fatalf("trades=%d skipped=%+v, want 0 trades and one skip", len(res.Trades), res.Skipped)
	}
	if len(res.Sessions) != 1 || res.TradedSessions() != 0 {
		t.Errorf("processed=%d traded=%d, want 1 processed and 0 traded", len(res.Sessions), res.TradedSessions())
	}
	if !strings.Contains(res.Skipped[0].Reason, "insufficient capital") {
		t.Errorf("skip reason = %q", res.Skipped[0].Reason)
	}
	if !res.FinalEquity.Equal(cfg.InitialCapital) {
		t.Errorf("equity changed to %s", res.FinalEquity)
	}
}

func TestRunner_Location(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	cfg := DefaultConfig()
	cfg.Location = est
	r, err := NewRunner(cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	// 14:30 UTC is 09:30 EST.
	utc := flatBars(4, 100, 101, 99)
	for i := range utc {
		utc[i].Timestamp = utc[i].Timestamp.Add(5 * time.Hour)
	}
	res, err := r.Run("QQQ", utc)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Trades) != 1 {
		t.Errorf("got %d trades, want 1 after converting to exchange time", len(res.Trades))
	}
}

func TestRunner_RunAll(t *testing.T) {
	r := newTestRunner(t)
	input := map[string][]types.Bar{
		"TQQQ": flatBars(4, 50, 49, 48),
		"QQQ":  fixture(),
	}
	results, err := r.RunAll(context.Background(), input)
	if err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}
	if len(results) != 2 || results[0].Symbol != "QQQ" || results[1].Symbol != "TQQQ" {
		t.Fatalf("results not sorted by symbol")
	}

	solo, err := r.Run("QQQ", fixture())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !reflect.DeepEqual(solo.Trades, results[0].Trades) {
		t.Errorf("parallel run differs from a standalone run")
	}
	if got := len(Combined(results)); got != 3 {
		t.Errorf("combined ledger has %d trades, want 3", got)
	}
}

func TestRunner_RunAllCancelled(t *testing.T) {
	r := newTestRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.RunAll(ctx, map[string][]types.Bar{"QQQ": fixture()})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("RunAll() error = %v, want context.Canceled", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*Config)
		field string
	}{
		{"defaults", func(*Config) {}, ""},
		{"zero capital", func(c *Config) { c.InitialCapital = decimal.Zero }, "initial_capital"},
		{"negative commission", func(c *Config) { c.CommissionRate = decimal.NewFromFloat(-0.1) }, "commission_rate"},
		{"free trading", func(c *Config) { c.CommissionRate = decimal.Zero }, ""},
		{"unknown proxy", func(c *Config) { c.PriceProxy = "median" }, "price_proxy"},
		{"unknown model", func(c *Config) { c.CommissionModel = "tiered" }, "commission_model"},
		{"negative offset", func(c *Config) { c.EntryOffset = -time.Minute }, "entry_offset"},
		{"offset past close", func(c *Config) { c.EntryOffset = 8 * time.Hour }, "entry_offset"},
		{"zero cadence", func(c *Config) { c.Cadence = 0 }, "bar_cadence"},
		{"inverted hours", func(c *Config) { c.Window.Open, c.Window.Close = c.Window.Close, c.Window.Open }, "market_hours"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.edit(&cfg)
			err := cfg.Validate()
			if tt.field == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			var cfgErr *types.ConfigError
			if !errors.As(err, &cfgErr) || cfgErr.Field != tt.field {
				t.Errorf("Validate() error = %v, want ConfigError on %s", err, tt.field)
			}
			if !IsFatal(err) {
				t.Errorf("config errors must be fatal")
			}
		})
	}
}

func TestNewRunner_RejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialCapital = decimal.NewFromInt(-1)
	if _, err := NewRunner(cfg, nil, nil); err == nil {
		t.Errorf("NewRunner() accepted negative capital")
	}
}

func TestResult_TradedSessions(t *testing.T) {
	bars := append(flatBars(4, 100, 101, 99), flatBars(5, 100, 100, 100)...) // second day closes at vwap
	res, err := newTestRunner(t).Run("QQQ", bars)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Sessions) != 2 || res.TradedSessions() != 1 {
		t.Errorf("processed=%d traded=%d, want 2 processed and 1 traded", len(res.Sessions), res.TradedSessions())
	}
}
