package export

import (
	"github.com/parquet-go/parquet-go"

	"github.com/fazecat/vwapsim/Internal/backtest"
)

// ParquetSaver writes trades and the equity curve as Parquet.
type ParquetSaver struct{}

func (ParquetSaver) Extension() string { return "parquet" }

func (s ParquetSaver) Save(res *backtest.Result, dir string) ([]string, error) {
	trades := filePath(dir, res, "trades", s.Extension())
	if err := parquet.WriteFile(trades, TradeRows(res)); err != nil {
		return nil, err
	}
	equity := filePath(dir, res, "equity", s.Extension())
	if err := parquet.WriteFile(equity, EquityRows(res)); err != nil {
		return nil, err
	}
	return []string{trades, equity}, nil
}
