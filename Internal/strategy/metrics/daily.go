package metrics

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/fazecat/vwapsim/Internal/types"
)

type DailyPoint struct {
	Date   string  `json:"date"`
	Trades int     `json:"trades"`
	PnL    float64 `json:"pnl"`
	Equity float64 `json:"equity"` // end-of-day equity
}

// DailyEquity marks equity to the close of every session date. Dates with
// no trade carry the previous equity forward, so a flat or skipped session
// still shows up. Trade exit dates missing from dates are added.
func DailyEquity(trades []types.Trade, initial decimal.Decimal, dates []string) []DailyPoint {
	pnlByDate := make(map[string]decimal.Decimal)
	countByDate := make(map[string]int)
	seen := make(map[string]bool)
	all := make([]string, 0, len(dates))
	for _, d := range dates {
		if !seen[d] {
			seen[d] = true
			all = append(all, d)
		}
	}
	for _, t := range trades {
		d := types.SessionDate(t.ExitTime)
		pnlByDate[d] = pnlByDate[d].Add(t.PnL)
		countByDate[d]++
		if !seen[d] {
			seen[d] = true
			all = append(all, d)
		}
	}
	sort.Strings(all)

	out := make([]DailyPoint, 0, len(all))
	equity := initial
	for _, d := range all {
		pnl := pnlByDate[d]
		equity = equity.Add(pnl)
		out = append(out, DailyPoint{
			Date:   d,
			Trades: countByDate[d],
			PnL:    pnl.InexactFloat64(),
			Equity: equity.InexactFloat64(),
		})
	}
	return out
}
