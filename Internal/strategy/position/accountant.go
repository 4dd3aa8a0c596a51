package position

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fazecat/vwapsim/Internal/types"
)

// CommissionModel decides how a leg's commission is charged.
type CommissionModel string

const (
	// CommissionNotional charges shares * price * rate per leg.
	CommissionNotional CommissionModel = "notional"
	// CommissionPerShare charges a flat rate per share per leg.
	CommissionPerShare CommissionModel = "per_share"
)

func ParseCommissionModel(s string) (CommissionModel, error) {
	switch CommissionModel(strings.ToLower(strings.TrimSpace(s))) {
	case "", CommissionNotional:
		return CommissionNotional, nil
	case CommissionPerShare, "per-share":
		return CommissionPerShare, nil
	}
	return "", fmt.Errorf("unknown commission model %q", s)
}

// Position is an open trade. Only the accountant mutates it.
type Position struct {
	Symbol          string
	Direction       types.Direction
	EntryTime       time.Time
	EntryPrice      float64
	EntryVWAP       float64
	Shares          int64
	EntryCommission decimal.Decimal
	Open            bool
}

// Accountant sizes positions, charges commission and appends closed trades to the ledger.
type Accountant struct {
	symbol  string
	capital *Capital
	rate    decimal.Decimal
	model   CommissionModel
	ledger  []types.Trade
	logger  *zap.Logger
}

func NewAccountant(symbol string, capital *Capital, rate decimal.Decimal, model CommissionModel, logger *zap.Logger) *Accountant {
	if logger == nil {
		logger = zap.NewNop()
	}
	if model == "" {
		model = CommissionNotional
	}
	return &Accountant{
		symbol:  symbol,
		capital: capital,
		rate:    rate,
		model:   model,
		logger:  logger,
	}
}

// Commission for one leg of shares at price.
func (a *Accountant) Commission(shares int64, price float64) decimal.Decimal {
	qty := decimal.NewFromInt(shares)
	if a.model == CommissionPerShare {
		return qty.Mul(a.rate)
	}
	return qty.Mul(decimal.NewFromFloat(price)).Mul(a.rate)
}

// SharesFor is floor(equity / price); always fully invested, never levered.
func (a *Accountant) SharesFor(price float64) int64 {
	if price <= 0 {
		return 0
	}
	equity := a.capital.Equity()
	if !equity.IsPositive() {
		return 0
	}
	q, _ := equity.QuoRem(decimal.NewFromFloat(price), 0)
	return q.IntPart()
}

// Open sizes a new position at the bar's close. ErrInsufficientCapital means
// no trade is taken for the session.
func (a *Accountant) Open(dir types.Direction, bar types.Bar, vwap float64) (*Position, error) {
	if dir != types.DirectionLong && dir != types.DirectionShort {
		return nil, &types.StateError{State: "flat", Event: "open with direction " + dir.String()}
	}
	shares := a.SharesFor(bar.Close)
	if shares <= 0 {
		return nil, fmt.Errorf("%s @ %.4f with equity %s: %w", a.symbol, bar.Close, a.capital.Equity().StringFixed(2), types.ErrInsufficientCapital)
	}

	pos := &Position{
		Symbol:          a.symbol,
		Direction:       dir,
		EntryTime:       bar.Timestamp,
		EntryPrice:      bar.Close,
		EntryVWAP:       vwap,
		Shares:          shares,
		EntryCommission: a.Commission(shares, bar.Close),
		Open:            true,
	}
	a.logger.Info("position opened",
		zap.String("symbol", a.symbol),
		zap.Stringer("direction", dir),
		zap.Int64("shares", shares),
		zap.Float64("price", bar.Close),
		zap.Float64("vwap", vwap),
		zap.Time("time", bar.Timestamp),
	)
	return pos, nil
}

// Close realizes the position at the bar's close, updates equity once and appends the trade.
func (a *Accountant) Close(pos *Position, bar types.Bar, vwap float64, reason types.ExitReason) (types.Trade, error) {
	if pos == nil || !pos.Open {
		return types.Trade{}, &types.StateError{State: "closed", Event: "close position"}
	}

	shares := decimal.NewFromInt(pos.Shares)
	entry := decimal.NewFromFloat(pos.EntryPrice)
	exit := decimal.NewFromFloat(bar.Close)

	commission := pos.EntryCommission.Add(a.Commission(pos.Shares, bar.Close))
	gross := exit.Sub(entry).Mul(shares).Mul(decimal.NewFromInt(pos.Direction.Sign()))
	pnl := gross.Sub(commission)
	equity := a.capital.apply(pnl)
	pos.Open = false

	trade := types.Trade{
		Symbol:      a.symbol,
		Direction:   pos.Direction,
		EntryTime:   pos.EntryTime,
		ExitTime:    bar.Timestamp,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   bar.Close,
		EntryVWAP:   pos.EntryVWAP,
		ExitVWAP:    vwap,
		Shares:      pos.Shares,
		Commission:  commission,
		GrossPnL:    gross,
		PnL:         pnl,
		EquityAfter: equity,
		ExitReason:  reason,
	}
	a.ledger = append(a.ledger, trade)

	a.logger.Info("position closed",
		zap.String("symbol", a.symbol),
		zap.Stringer("direction", pos.Direction),
		zap.String("reason", string(reason)),
		zap.Float64("exit", bar.Close),
		zap.String("pnl", pnl.StringFixed(2)),
		zap.String("equity", equity.StringFixed(2)),
	)
	return trade, nil
}

// Ledger returns a copy of the completed trades in close order.
func (a *Accountant) Ledger() []types.Trade {
	out := make([]types.Trade, len(a.ledger))
	copy(out, a.ledger)
	return out
}

func (a *Accountant) Capital() *Capital { return a.capital }
