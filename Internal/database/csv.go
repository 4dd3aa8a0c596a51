package datafeed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fazecat/vwapsim/Internal/types"
)

// CSVSource reads <dir>/<pattern> files, one per symbol, with a
// Datetime,Open,High,Low,Close,Volume header. Extra columns are ignored.
type CSVSource struct {
	Dir     string
	Pattern string // fmt pattern with one %s for the symbol
	// Location applies to timestamps without an offset. Nil means UTC.
	Location *time.Location
	// Logger reports malformed rows. Optional.
	Logger *zap.Logger
}

func (s CSVSource) Path(symbol string) string {
	pattern := s.Pattern
	if pattern == "" {
		pattern = "%s_60day_1min_data.csv"
	}
	return filepath.Join(s.Dir, fmt.Sprintf(pattern, symbol))
}

func (s CSVSource) Bars(ctx context.Context, symbol string) ([]Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.Path(symbol)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	bars, bad, err := ReadCSV(f, s.Location)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(bad) > 0 && s.Logger != nil {
		for _, re := range bad {
			s.Logger.Warn("malformed csv row",
				zap.String("symbol", symbol),
				zap.String("file", path),
				zap.Int("line", re.Line),
				zap.String("date", re.Date),
				zap.Error(re.Err),
			)
		}
	}
	return bars, nil
}

var csvTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
}

func parseCSVTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range csvTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime %q", s)
}

var csvColumns = []string{"datetime", "open", "high", "low", "close", "volume"}

// RowError is a data row ReadCSV could not parse. Date is empty when the
// timestamp itself was unreadable.
type RowError struct {
	Line int
	Date string
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

// ReadCSV parses bars in file order. A bad row never fails the read: if its
// timestamp parses it becomes a bar with NaN prices, which the session
// validator rejects so only that date is skipped; otherwise the row is
// dropped. Either way it is listed in the returned RowErrors. Only a missing
// header or an I/O failure is an error.
func ReadCSV(r io.Reader, loc *time.Location) ([]Bar, []RowError, error) {
	if loc == nil {
		loc = time.UTC
	}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := idx["datetime"]; !ok {
		if i, ok := idx["timestamp"]; ok {
			idx["datetime"] = i
		}
	}
	cols := make([]int, len(csvColumns))
	for i, name := range csvColumns {
		c, ok := idx[name]
		if !ok {
			return nil, nil, fmt.Errorf("missing column %q", name)
		}
		cols[i] = c
	}

	var (
		bars []Bar
		bad  []RowError
	)
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				bad = append(bad, RowError{Line: line, Err: err})
				continue
			}
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}
		bar, err := parseRecord(rec, cols, loc)
		if err != nil {
			re := RowError{Line: line, Err: err}
			if !bar.Timestamp.IsZero() {
				re.Date = types.SessionDate(bar.Timestamp)
				bars = append(bars, poisoned(bar.Timestamp))
			}
			bad = append(bad, re)
			continue
		}
		bars = append(bars, bar)
	}
	return bars, bad, nil
}

// poisoned stands in for an unreadable row so its session fails validation.
func poisoned(ts time.Time) Bar {
	nan := math.NaN()
	return Bar{Timestamp: ts, Open: nan, High: nan, Low: nan, Close: nan}
}

func parseRecord(rec []string, cols []int, loc *time.Location) (Bar, error) {
	field := func(i int) (string, error) {
		if cols[i] >= len(rec) {
			return "", fmt.Errorf("missing %s", csvColumns[i])
		}
		return strings.TrimSpace(rec[cols[i]]), nil
	}

	var bar Bar
	raw, err := field(0)
	if err != nil {
		return bar, err
	}
	ts, err := parseCSVTime(raw, loc)
	if err != nil {
		return bar, err
	}
	bar.Timestamp = ts

	prices := []*float64{&bar.Open, &bar.High, &bar.Low, &bar.Close}
	for i, dst := range prices {
		raw, err := field(i + 1)
		if err != nil {
			return bar, err
		}
		if *dst, err = strconv.ParseFloat(raw, 64); err != nil {
			return bar, fmt.Errorf("%s: %w", csvColumns[i+1], err)
		}
	}

	raw, err = field(5)
	if err != nil {
		return bar, err
	}
	vol, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return bar, fmt.Errorf("volume: %w", err)
	}
	if math.IsNaN(vol) || math.IsInf(vol, 0) {
		return bar, fmt.Errorf("volume: non-finite %q", raw)
	}
	bar.Volume = int64(vol)
	return bar, nil
}
