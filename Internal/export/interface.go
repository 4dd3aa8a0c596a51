package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fazecat/vwapsim/Internal/backtest"
)

// ResultSaver writes one run's output under dir and returns the files it wrote.
type ResultSaver interface {
	Save(res *backtest.Result, dir string) ([]string, error)
	Extension() string
}

// NewResultSaver creates implementation by format (csv, parquet, json).
// Returns nil if format not supported.
func NewResultSaver(format string) ResultSaver {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return CSVSaver{}
	case "parquet":
		return ParquetSaver{}
	case "json":
		return JSONSaver{}
	default:
		return nil
	}
}

// SaveAll writes every result in every format.
func SaveAll(results []*backtest.Result, dir string, formats []string) ([]string, error) {
	savers := make([]ResultSaver, 0, len(formats))
	for _, f := range formats {
		s := NewResultSaver(f)
		if s == nil {
			return nil, fmt.Errorf("export: unsupported format %q (use: csv, parquet, json)", f)
		}
		savers = append(savers, s)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	var written []string
	for _, res := range results {
		for _, s := range savers {
			files, err := s.Save(res, dir)
			if err != nil {
				return written, fmt.Errorf("export %s as %s: %w", res.Symbol, s.Extension(), err)
			}
			written = append(written, files...)
		}
	}
	return written, nil
}

// filePath names output files <symbol>_<run id prefix>_<kind>.<ext>.
func filePath(dir string, res *backtest.Result, kind, ext string) string {
	id := res.RunID.String()
	if len(id) > 8 {
		id = id[:8]
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%s_%s.%s", res.Symbol, id, kind, ext))
}
