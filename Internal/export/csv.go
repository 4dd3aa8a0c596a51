package export

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/fazecat/vwapsim/Internal/backtest"
)

// CSVSaver writes trades, equity and skipped sessions as separate CSV files.
type CSVSaver struct{}

func (CSVSaver) Extension() string { return "csv" }

func (s CSVSaver) Save(res *backtest.Result, dir string) ([]string, error) {
	trades := filePath(dir, res, "trades", s.Extension())
	header := []string{"symbol", "direction", "entry_time", "exit_time", "entry_price", "exit_price",
		"entry_vwap", "exit_vwap", "shares", "commission", "gross_pnl", "pnl", "equity_after",
		"hold_minutes", "exit_reason"}
	var rows [][]string
	for _, t := range TradeRows(res) {
		rows = append(rows, []string{
			t.Symbol,
			t.Direction,
			strconv.FormatInt(t.EntryTime, 10),
			strconv.FormatInt(t.ExitTime, 10),
			floatStr(t.EntryPrice),
			floatStr(t.ExitPrice),
			floatStr(t.EntryVWAP),
			floatStr(t.ExitVWAP),
			strconv.FormatInt(t.Shares, 10),
			floatStr(t.Commission),
			floatStr(t.GrossPnL),
			floatStr(t.PnL),
			floatStr(t.Equity),
			floatStr(t.HoldMins),
			t.ExitReason,
		})
	}
	if err := writeCSV(trades, header, rows); err != nil {
		return nil, err
	}

	equity := filePath(dir, res, "equity", s.Extension())
	rows = rows[:0]
	for _, e := range EquityRows(res) {
		rows = append(rows, []string{strconv.FormatInt(e.Timestamp, 10), floatStr(e.Equity), floatStr(e.Drawdown)})
	}
	if err := writeCSV(equity, []string{"t", "equity", "drawdown"}, rows); err != nil {
		return nil, err
	}

	skipped := filePath(dir, res, "skipped", s.Extension())
	rows = rows[:0]
	for _, sk := range res.Skipped {
		rows = append(rows, []string{sk.Date, sk.Reason})
	}
	if err := writeCSV(skipped, []string{"date", "reason"}, rows); err != nil {
		return nil, err
	}
	return []string{trades, equity, skipped}, nil
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)

	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return w.Error()
}

func floatStr(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
