package sessions

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fazecat/vwapsim/Internal/types"
)

// Window is the regular trading window as offsets from local midnight.
// Bars at Open through Close inclusive are kept; the Close print is the
// closing bar and nothing after it trades.
type Window struct {
	Open  time.Duration
	Close time.Duration
}

func RegularHours() Window {
	return Window{Open: 9*time.Hour + 30*time.Minute, Close: 16 * time.Hour}
}

// ParseClock turns "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock %q, want HH:MM", s)
	}
	hh, err := strconv.Atoi(parts[0])
	if err != nil || hh < 0 || hh > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute, nil
}

func sinceMidnight(ts time.Time) time.Duration {
	y, m, d := ts.Date()
	return ts.Sub(time.Date(y, m, d, 0, 0, 0, 0, ts.Location()))
}

func (w Window) Contains(ts time.Time) bool {
	off := sinceMidnight(ts)
	return off >= w.Open && off <= w.Close
}

// Session is one calendar date of validated, ordered bars for a symbol.
type Session struct {
	Symbol string
	Date   time.Time // local midnight
	Bars   []types.Bar
}

func (s Session) Key() string { return types.SessionDate(s.Date) }

// Build groups raw bars by calendar date, drops bars outside the window,
// sorts each day and validates it. Bad days come back as DataErrors and do
// not stop the good ones. Sessions are returned in date order.
func Build(symbol string, raw []types.Bar, w Window) ([]Session, []*types.DataError) {
	byDate := make(map[string][]types.Bar)
	dates := make(map[string]time.Time)

	for _, b := range raw {
		key := types.SessionDate(b.Timestamp)
		if _, ok := dates[key]; !ok {
			y, m, d := b.Timestamp.Date()
			dates[key] = time.Date(y, m, d, 0, 0, 0, 0, b.Timestamp.Location())
			byDate[key] = nil
		}
		if w.Contains(b.Timestamp) {
			byDate[key] = append(byDate[key], b)
		}
	}

	keys := make([]string, 0, len(dates))
	for k := range dates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []Session
	var errs []*types.DataError
	for _, key := range keys {
		s := Session{Symbol: symbol, Date: dates[key], Bars: byDate[key]}
		sort.SliceStable(s.Bars, func(i, j int) bool {
			return s.Bars[i].Timestamp.Before(s.Bars[j].Timestamp)
		})
		if err := Validate(s); err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, s)
	}
	return out, errs
}

// Validate checks a sorted session: non-empty, strictly increasing
// timestamps and OHLC invariants on every bar.
func Validate(s Session) *types.DataError {
	date := s.Key()
	if len(s.Bars) == 0 {
		return &types.DataError{Symbol: s.Symbol, Date: date, Reason: "no regular-session bars"}
	}
	for i, b := range s.Bars {
		if i > 0 && !b.Timestamp.After(s.Bars[i-1].Timestamp) {
			return &types.DataError{Symbol: s.Symbol, Date: date,
				Reason: fmt.Sprintf("duplicate timestamp %s", b.Timestamp.Format("15:04:05"))}
		}
		if err := CheckBar(b); err != nil {
			return &types.DataError{Symbol: s.Symbol, Date: date,
				Reason: fmt.Sprintf("bar %s", b.Timestamp.Format("15:04")), Err: err}
		}
	}
	return nil
}

// CheckBar enforces high >= max(open, close) >= min(open, close) >= low >= 0,
// finite positive prices and non-negative volume.
func CheckBar(b types.Bar) error {
	for _, p := range [...]float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return fmt.Errorf("non-finite price o=%v h=%v l=%v c=%v", b.Open, b.High, b.Low, b.Close)
		}
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return fmt.Errorf("non-positive price o=%v h=%v l=%v c=%v", b.Open, b.High, b.Low, b.Close)
	}
	if b.Volume < 0 {
		return fmt.Errorf("negative volume %d", b.Volume)
	}
	hiBody, loBody := b.Open, b.Close
	if loBody > hiBody {
		hiBody, loBody = loBody, hiBody
	}
	if b.High < hiBody {
		return fmt.Errorf("high %v below body top %v", b.High, hiBody)
	}
	if b.Low > loBody {
		return fmt.Errorf("low %v above body bottom %v", b.Low, loBody)
	}
	return nil
}
