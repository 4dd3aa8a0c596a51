package position

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fazecat/vwapsim/Internal/types"
)

func minuteBar(min int, close float64) types.Bar {
	return types.Bar{
		Timestamp: time.Date(2024, 3, 4, 9, 30+min, 0, 0, time.UTC),
		Open:      close, High: close, Low: close, Close: close, Volume: 1000,
	}
}

func newTestAccountant(equity string, rate string, model CommissionModel) *Accountant {
	return NewAccountant("QQQ",
		NewCapital(decimal.RequireFromString(equity)),
		decimal.RequireFromString(rate),
		model, nil)
}

func TestAccountant_SharesFor(t *testing.T) {
	tests := []struct {
		name   string
		equity string
		price  float64
		want   int64
	}{
		{"floor of fractional shares", "100000", 101, 990},
		{"exact multiple", "1000", 100, 10},
		{"equity below one share", "50", 101, 0},
		{"non-positive price", "1000", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAccountant(tt.equity, "0", CommissionNotional)
			if got := a.SharesFor(tt.price); got != tt.want {
				t.Errorf("SharesFor(%v) = %d, want %d", tt.price, got, tt.want)
			}
		})
	}
}

func TestAccountant_LongStopLoss(t *testing.T) {
	a := newTestAccountant("100000", "0.0005", CommissionNotional)

	pos, err := a.Open(types.DirectionLong, minuteBar(1, 101), 100)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if pos.Shares != 990 {
		t.Fatalf("shares = %d, want 990", pos.Shares)
	}

	trade, err := a.Close(pos, minuteBar(2, 99), 100, types.ExitStop)
	if err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// 990 * (101 + 99) * 0.0005
	wantCommission := decimal.RequireFromString("99")
	if !trade.Commission.Equal(wantCommission) {
		t.Errorf("commission = %s, want %s", trade.Commission, wantCommission)
	}
	// (99 - 101) * 990 - 99
	wantPnL := decimal.RequireFromString("-2079")
	if !trade.PnL.Equal(wantPnL) {
		t.Errorf("pnl = %s, want %s", trade.PnL, wantPnL)
	}
	if !trade.EquityAfter.Equal(decimal.RequireFromString("97921")) {
		t.Errorf("equity after = %s", trade.EquityAfter)
	}
	if trade.ExitReason != types.ExitStop || trade.Direction != types.DirectionLong {
		t.Errorf("unexpected trade %+v", trade)
	}
	if a.Capital().Updates() != 1 {
		t.Errorf("capital updated %d times, want 1", a.Capital().Updates())
	}
}

func TestAccountant_ShortProfit(t *testing.T) {
	a := newTestAccountant("10000", "0", CommissionNotional)

	pos, err := a.Open(types.DirectionShort, minuteBar(1, 50), 51)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	trade, err := a.Close(pos, minuteBar(30, 45), 47, types.ExitCloseOfDay)
	if err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	// 200 shares * (50 - 45)
	if !trade.PnL.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("pnl = %s, want 1000", trade.PnL)
	}
	if !a.Capital().Equity().Equal(decimal.NewFromInt(11000)) {
		t.Errorf("equity = %s, want 11000", a.Capital().Equity())
	}
}

func TestAccountant_PerShareCommission(t *testing.T) {
	a := newTestAccountant("1000", "0.01", CommissionPerShare)

	pos, _ := a.Open(types.DirectionLong, minuteBar(1, 10), 9)
	trade, _ := a.Close(pos, minuteBar(2, 10), 9, types.ExitCloseOfDay)

	// 100 shares * 0.01 per leg * 2 legs
	if !trade.Commission.Equal(decimal.NewFromInt(2)) {
		t.Errorf("commission = %s, want 2", trade.Commission)
	}
	if !trade.PnL.Equal(decimal.NewFromInt(-2)) {
		t.Errorf("pnl = %s, want -2", trade.PnL)
	}
}

func TestAccountant_CommissionReconciles(t *testing.T) {
	a := newTestAccountant("25000", "0.0005", CommissionNotional)
	prices := [][2]float64{{101.37, 99.81}, {98.02, 98.55}, {100.5, 103.25}}

	for i, p := range prices {
		before := a.Capital().Equity()
		pos, err := a.Open(types.DirectionLong, minuteBar(1, p[0]), p[0])
		if err != nil {
			t.Fatalf("trade %d: Open() error = %v", i, err)
		}
		trade, err := a.Close(pos, minuteBar(2, p[1]), p[1], types.ExitStop)
		if err != nil {
			t.Fatalf("trade %d: Close() error = %v", i, err)
		}

		want := decimal.NewFromInt(trade.Shares).
			Mul(decimal.NewFromFloat(p[0]).Add(decimal.NewFromFloat(p[1]))).
			Mul(decimal.RequireFromString("0.0005"))
		if !trade.Commission.Equal(want) {
			t.Errorf("trade %d: commission = %s, want %s", i, trade.Commission, want)
		}
		if delta := a.Capital().Equity().Sub(before); !delta.Equal(trade.PnL) {
			t.Errorf("trade %d: equity delta %s != pnl %s", i, delta, trade.PnL)
		}
	}
	if len(a.Ledger()) != len(prices) {
		t.Errorf("ledger has %d trades, want %d", len(a.Ledger()), len(prices))
	}
}

func TestAccountant_InsufficientCapital(t *testing.T) {
	a := newTestAccountant("50", "0", CommissionNotional)
	_, err := a.Open(types.DirectionLong, minuteBar(1, 101), 100)
	if !errors.Is(err, types.ErrInsufficientCapital) {
		t.Fatalf("Open() err = %v, want ErrInsufficientCapital", err)
	}
	if len(a.Ledger()) != 0 {
		t.Errorf("expected empty ledger")
	}
}

func TestAccountant_CloseTwiceIsStateError(t *testing.T) {
	a := newTestAccountant("1000", "0", CommissionNotional)
	pos, _ := a.Open(types.DirectionLong, minuteBar(1, 10), 9)
	if _, err := a.Close(pos, minuteBar(2, 11), 10, types.ExitStop); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}

	_, err := a.Close(pos, minuteBar(3, 12), 10, types.ExitStop)
	var stateErr *types.StateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("second Close() err = %v, want StateError", err)
	}
	if a.Capital().Updates() != 1 {
		t.Errorf("equity updated %d times, want 1", a.Capital().Updates())
	}
}

func TestParseCommissionModel(t *testing.T) {
	if m, err := ParseCommissionModel(""); err != nil || m != CommissionNotional {
		t.Errorf("default model = %v, %v", m, err)
	}
	if m, err := ParseCommissionModel("per-share"); err != nil || m != CommissionPerShare {
		t.Errorf("per-share = %v, %v", m, err)
	}
	if _, err := ParseCommissionModel("tiered"); err == nil {
		t.Errorf("expected error")
	}
}
