package export

import (
	"encoding/json"
	"os"

	"github.com/fazecat/vwapsim/Internal/backtest"
)

// JSONSaver writes the whole result (ledger, sessions, skips, report) as indented JSON.
type JSONSaver struct{}

func (JSONSaver) Extension() string { return "json" }

func (s JSONSaver) Save(res *backtest.Result, dir string) ([]string, error) {
	path := filePath(dir, res, "report", s.Extension())
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return nil, err
	}
	return []string{path}, nil
}
