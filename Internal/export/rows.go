package export

import (
	"github.com/fazecat/vwapsim/Internal/backtest"
)

// TradeRow is the flat DTO written by every format. Times are Unix
// milliseconds, money is rounded to cents.
type TradeRow struct {
	RunID      string  `json:"run_id" parquet:"run_id"`
	Symbol     string  `json:"symbol" parquet:"symbol"`
	Direction  string  `json:"direction" parquet:"direction"`
	EntryTime  int64   `json:"entry_time" parquet:"entry_time"`
	ExitTime   int64   `json:"exit_time" parquet:"exit_time"`
	EntryPrice float64 `json:"entry_price" parquet:"entry_price"`
	ExitPrice  float64 `json:"exit_price" parquet:"exit_price"`
	EntryVWAP  float64 `json:"entry_vwap" parquet:"entry_vwap"`
	ExitVWAP   float64 `json:"exit_vwap" parquet:"exit_vwap"`
	Shares     int64   `json:"shares" parquet:"shares"`
	Commission float64 `json:"commission" parquet:"commission"`
	GrossPnL   float64 `json:"gross_pnl" parquet:"gross_pnl"`
	PnL        float64 `json:"pnl" parquet:"pnl"`
	Equity     float64 `json:"equity_after" parquet:"equity_after"`
	HoldMins   float64 `json:"hold_minutes" parquet:"hold_minutes"`
	ExitReason string  `json:"exit_reason" parquet:"exit_reason"`
}

type EquityRow struct {
	RunID     string  `json:"run_id" parquet:"run_id"`
	Symbol    string  `json:"symbol" parquet:"symbol"`
	Timestamp int64   `json:"t" parquet:"t"`
	Equity    float64 `json:"equity" parquet:"equity"`
	Drawdown  float64 `json:"drawdown" parquet:"drawdown"`
}

func TradeRows(res *backtest.Result) []TradeRow {
	rows := make([]TradeRow, 0, len(res.Trades))
	for _, t := range res.Trades {
		rows = append(rows, TradeRow{
			RunID:      res.RunID.String(),
			Symbol:     t.Symbol,
			Direction:  t.Direction.String(),
			EntryTime:  t.EntryTime.UnixMilli(),
			ExitTime:   t.ExitTime.UnixMilli(),
			EntryPrice: t.EntryPrice,
			ExitPrice:  t.ExitPrice,
			EntryVWAP:  t.EntryVWAP,
			ExitVWAP:   t.ExitVWAP,
			Shares:     t.Shares,
			Commission: t.Commission.Round(2).InexactFloat64(),
			GrossPnL:   t.GrossPnL.Round(2).InexactFloat64(),
			PnL:        t.PnL.Round(2).InexactFloat64(),
			Equity:     t.EquityAfter.Round(2).InexactFloat64(),
			HoldMins:   t.HoldTime().Minutes(),
			ExitReason: string(t.ExitReason),
		})
	}
	return rows
}

// EquityRows joins the equity curve with its drawdown series point by point.
func EquityRows(res *backtest.Result) []EquityRow {
	curve := res.Report.EquityCurve
	rows := make([]EquityRow, 0, len(curve))
	for i, p := range curve {
		row := EquityRow{
			RunID:  res.RunID.String(),
			Symbol: res.Symbol,
			Equity: p.Equity,
		}
		if !p.Timestamp.IsZero() {
			row.Timestamp = p.Timestamp.UnixMilli()
		}
		if i < len(res.Report.Drawdowns) {
			row.Drawdown = res.Report.Drawdowns[i].Drawdown
		}
		rows = append(rows, row)
	}
	return rows
}
