package datafeed

import (
	"context"
	"fmt"
	"time"

	"github.com/fazecat/vwapsim/Internal/types"
)

type Bar = types.Bar

// BarSource supplies raw minute bars for one symbol. Implementations may
// return extended-hours or unsorted bars; the session builder cleans them up.
type BarSource interface {
	Bars(ctx context.Context, symbol string) ([]Bar, error)
}

// LoadAll fetches every symbol before any backtest starts.
func LoadAll(ctx context.Context, src BarSource, symbols []string) (map[string][]Bar, error) {
	out := make(map[string][]Bar, len(symbols))
	for _, symbol := range symbols {
		bars, err := src.Bars(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", symbol, err)
		}
		if len(bars) == 0 {
			return nil, fmt.Errorf("load %s: no bars", symbol)
		}
		out[symbol] = bars
	}
	return out, nil
}

// FilterDates keeps bars whose session date, read in loc, falls within
// [from, to]. Zero bounds are open. A nil loc uses each bar's own zone.
func FilterDates(bars []Bar, from, to time.Time, loc *time.Location) []Bar {
	if from.IsZero() && to.IsZero() {
		return bars
	}
	lo, hi := types.SessionDate(from), types.SessionDate(to)
	out := make([]Bar, 0, len(bars))
	for _, b := range bars {
		ts := b.Timestamp
		if loc != nil {
			ts = ts.In(loc)
		}
		day := types.SessionDate(ts)
		if !from.IsZero() && day < lo {
			continue
		}
		if !to.IsZero() && day > hi {
			continue
		}
		out = append(out, b)
	}
	return out
}
