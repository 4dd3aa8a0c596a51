package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one minute of trading for one symbol, stamped in the exchange's local time.
type Bar struct {
	Timestamp time.Time `json:"t"`
	Open      float64   `json:"o"`
	High      float64   `json:"h"`
	Low       float64   `json:"l"`
	Close     float64   `json:"c"`
	Volume    int64     `json:"v"`
}

type Direction int

const (
	DirectionNone  Direction = 0
	DirectionLong  Direction = 1
	DirectionShort Direction = -1
)

// Sign is +1 for long and -1 for short.
func (d Direction) Sign() int64 {
	return int64(d)
}

func (d Direction) String() string {
	switch d {
	case DirectionLong:
		return "long"
	case DirectionShort:
		return "short"
	default:
		return "none"
	}
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	switch string(b) {
	case "long", "LONG":
		*d = DirectionLong
	case "short", "SHORT":
		*d = DirectionShort
	default:
		*d = DirectionNone
	}
	return nil
}

type ExitReason string

const (
	ExitStop       ExitReason = "stop"
	ExitCloseOfDay ExitReason = "close-of-day"
)

// Trade is a completed round trip. Never mutated after the accountant appends it.
type Trade struct {
	Symbol      string          `json:"symbol"`
	Direction   Direction       `json:"direction"`
	EntryTime   time.Time       `json:"entry_time"`
	ExitTime    time.Time       `json:"exit_time"`
	EntryPrice  float64         `json:"entry_price"`
	ExitPrice   float64         `json:"exit_price"`
	EntryVWAP   float64         `json:"entry_vwap"`
	ExitVWAP    float64         `json:"exit_vwap"`
	Shares      int64           `json:"shares"`
	Commission  decimal.Decimal `json:"commission"`
	GrossPnL    decimal.Decimal `json:"gross_pnl"`
	PnL         decimal.Decimal `json:"pnl"`
	EquityAfter decimal.Decimal `json:"equity_after"`
	ExitReason  ExitReason      `json:"exit_reason"`
}

// HoldTime is the wall-clock time between entry and exit.
func (t Trade) HoldTime() time.Duration {
	return t.ExitTime.Sub(t.EntryTime)
}

// SessionDate formats the calendar date a bar belongs to.
func SessionDate(ts time.Time) string {
	return ts.Format("2006-01-02")
}
