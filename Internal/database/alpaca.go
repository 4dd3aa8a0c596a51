package datafeed

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"go.uber.org/zap"
)

// barsClient is the slice of the Alpaca market data client we use.
type barsClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// AlpacaSource fetches 1Min bars over a lookback window ending at End.
type AlpacaSource struct {
	client   barsClient
	feed     marketdata.Feed
	lookback time.Duration
	end      time.Time
	location *time.Location
	logger   *zap.Logger
}

type AlpacaOptions struct {
	Feed         string // iex or sip
	LookbackDays int
	End          time.Time // zero means now
	Location     *time.Location
}

// NewAlpacaSource reads ALPACA_API_KEY and ALPACA_API_SECRET from the environment.
func NewAlpacaSource(opts AlpacaOptions, logger *zap.Logger) (*AlpacaSource, error) {
	apiKey := os.Getenv("ALPACA_API_KEY")
	secretKey := os.Getenv("ALPACA_API_SECRET")

	if apiKey == "" || secretKey == "" {
		return nil, fmt.Errorf("ALPACA_API_KEY or ALPACA_API_SECRET not set")
	}

	client := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: secretKey,
	})
	return newAlpacaSource(client, opts, logger), nil
}

func newAlpacaSource(client barsClient, opts AlpacaOptions, logger *zap.Logger) *AlpacaSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 60
	}
	feed := marketdata.Feed(opts.Feed)
	if feed == "" {
		feed = marketdata.IEX
	}
	return &AlpacaSource{
		client:   client,
		feed:     feed,
		lookback: time.Duration(opts.LookbackDays) * 24 * time.Hour,
		end:      opts.End,
		location: opts.Location,
		logger:   logger,
	}
}

func (s *AlpacaSource) Bars(ctx context.Context, symbol string) ([]Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	end := s.end
	if end.IsZero() {
		// free feeds reject requests for the most recent 15 minutes
		end = time.Now().UTC().Add(-15 * time.Minute)
	}
	start := end.Add(-s.lookback)

	s.logger.Info("fetching bars",
		zap.String("symbol", symbol),
		zap.Time("start", start),
		zap.Time("end", end),
		zap.String("feed", string(s.feed)),
	)
	raw, err := s.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneMin,
		Start:      start,
		End:        end,
		Feed:       s.feed,
		Adjustment: marketdata.Raw,
	})
	if err != nil {
		return nil, fmt.Errorf("alpaca bars for %s: %w", symbol, err)
	}

	bars := make([]Bar, 0, len(raw))
	for _, b := range raw {
		ts := b.Timestamp
		if s.location != nil {
			ts = ts.In(s.location)
		}
		bars = append(bars, Bar{
			Timestamp: ts,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    int64(b.Volume),
		})
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })

	s.logger.Info("received bars", zap.String("symbol", symbol), zap.Int("count", len(bars)))
	return bars, nil
}
