package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fazecat/vwapsim/Internal/strategy"
	"github.com/fazecat/vwapsim/Internal/strategy/detection"
	"github.com/fazecat/vwapsim/Internal/strategy/indicators"
	"github.com/fazecat/vwapsim/Internal/strategy/metrics"
	"github.com/fazecat/vwapsim/Internal/strategy/position"
	"github.com/fazecat/vwapsim/Internal/strategy/sessions"
	"github.com/fazecat/vwapsim/Internal/strategy/signals"
	"github.com/fazecat/vwapsim/Internal/types"
)

// Skip is a session that produced no trade because of bad data or capital.
type Skip struct {
	Symbol string `json:"symbol"`
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

type SessionResult struct {
	strategy.SessionReport
	Imbalance detection.Imbalance `json:"imbalance"`
}

type Result struct {
	RunID          uuid.UUID            `json:"run_id"`
	Symbol         string               `json:"symbol"`
	StartedAt      time.Time            `json:"started_at"`
	InitialCapital decimal.Decimal      `json:"initial_capital"`
	FinalEquity    decimal.Decimal      `json:"final_equity"`
	Trades         []types.Trade        `json:"trades"`
	Sessions       []SessionResult      `json:"sessions"`
	Skipped        []Skip               `json:"skipped"`
	Daily          []metrics.DailyPoint `json:"daily_equity"`
	Report         metrics.Report       `json:"report"`
}

// TradedSessions counts the processed sessions that produced a trade.
func (r *Result) TradedSessions() int {
	n := 0
	for _, s := range r.Sessions {
		if s.Trade != nil {
			n++
		}
	}
	return n
}

type Runner struct {
	cfg    Config
	rules  signals.Rules
	logger *zap.Logger
}

// NewRunner validates cfg up front so a bad configuration never reaches a session.
// A nil rules value runs the VWAP breakout.
func NewRunner(cfg Config, rules signals.Rules, logger *zap.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.PriceProxy, _ = indicators.ParsePriceProxy(string(cfg.PriceProxy))
	cfg.CommissionModel, _ = position.ParseCommissionModel(string(cfg.CommissionModel))
	if rules == nil {
		rules = signals.VWAPBreakout{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, rules: rules, logger: logger}, nil
}

func (r *Runner) Config() Config { return r.cfg }

// Run backtests one symbol over the supplied bars with its own capital.
// Bad sessions are skipped and listed; a StateError aborts the run.
func (r *Runner) Run(symbol string, bars []types.Bar) (*Result, error) {
	logger := r.logger.With(zap.String("symbol", symbol))
	res := &Result{
		RunID:          uuid.New(),
		Symbol:         symbol,
		StartedAt:      time.Now().UTC(),
		InitialCapital: r.cfg.InitialCapital,
	}

	if r.cfg.Location != nil {
		local := make([]types.Bar, len(bars))
		for i, b := range bars {
			b.Timestamp = b.Timestamp.In(r.cfg.Location)
			local[i] = b
		}
		bars = local
	}

	days, dataErrs := sessions.Build(symbol, bars, r.cfg.Window)
	for _, de := range dataErrs {
		logger.Warn("session skipped", zap.String("date", de.Date), zap.Error(de))
		res.Skipped = append(res.Skipped, Skip{Symbol: symbol, Date: de.Date, Reason: de.Error()})
	}

	capital := position.NewCapital(r.cfg.InitialCapital)
	acct := position.NewAccountant(symbol, capital, r.cfg.CommissionRate, r.cfg.CommissionModel, logger)
	machine := strategy.NewMachine(symbol, r.rules, acct, r.cfg.machineConfig(), logger)
	vwap := indicators.NewVWAP(r.cfg.PriceProxy)

	dates := make([]string, 0, len(days))
	for _, day := range days {
		sr, err := r.runSession(machine, vwap, day)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", symbol, day.Key(), err)
		}
		if sr.Skipped {
			res.Skipped = append(res.Skipped, Skip{Symbol: symbol, Date: sr.Date, Reason: sr.SkipReason})
		}
		res.Sessions = append(res.Sessions, sr)
		dates = append(dates, sr.Date)
	}
	sort.SliceStable(res.Skipped, func(i, j int) bool { return res.Skipped[i].Date < res.Skipped[j].Date })

	res.Trades = acct.Ledger()
	res.FinalEquity = capital.Equity()
	if err := reconcile(capital, res.Trades); err != nil {
		return nil, fmt.Errorf("%s: %w", symbol, err)
	}
	res.Report = metrics.Aggregate(res.Trades, r.cfg.InitialCapital)
	res.Daily = metrics.DailyEquity(res.Trades, r.cfg.InitialCapital, dates)

	logger.Info("backtest complete",
		zap.Stringer("run_id", res.RunID),
		zap.Int("sessions", len(res.Sessions)),
		zap.Int("trades", len(res.Trades)),
		zap.Int("skipped", len(res.Skipped)),
		zap.String("final_equity", res.FinalEquity.StringFixed(2)),
	)
	return res, nil
}

func (r *Runner) runSession(machine *strategy.Machine, vwap *indicators.VWAP, day sessions.Session) (SessionResult, error) {
	vwap.StartSession()
	if err := machine.StartSession(day.Date); err != nil {
		return SessionResult{}, err
	}

	vwaps := make([]float64, len(day.Bars))
	for i, bar := range day.Bars {
		vwaps[i] = vwap.Update(bar)
		if err := machine.OnBar(bar, vwaps[i]); err != nil {
			return SessionResult{}, err
		}
	}

	report, err := machine.EndSession()
	if err != nil {
		return SessionResult{}, err
	}
	if report.FinalState != strategy.StateFlat && report.FinalState != strategy.StateClosed {
		return SessionResult{}, &types.StateError{State: report.FinalState.String(), Event: "session ended with an open position"}
	}

	labels := detection.ClassifySession(day.Bars, vwaps)
	return SessionResult{
		SessionReport: report,
		Imbalance:     detection.SummarizeImbalance(report.Date, labels),
	}, nil
}

// reconcile checks equity moved exactly once per trade and by exactly its P&L.
func reconcile(capital *position.Capital, trades []types.Trade) error {
	if capital.Updates() != len(trades) {
		return &types.StateError{State: "reconcile", Event: fmt.Sprintf("%d equity updates for %d trades", capital.Updates(), len(trades))}
	}
	want := capital.Initial()
	for _, t := range trades {
		want = want.Add(t.PnL)
	}
	if !want.Equal(capital.Equity()) {
		return &types.StateError{State: "reconcile", Event: "equity " + capital.Equity().String() + " does not match ledger " + want.String()}
	}
	return nil
}

// RunAll backtests every symbol in parallel. Symbols share nothing but the
// immutable config; results come back sorted by symbol.
func (r *Runner) RunAll(ctx context.Context, barsBySymbol map[string][]types.Bar) ([]*Result, error) {
	g, ctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	results := make([]*Result, 0, len(barsBySymbol))

	for symbol, bars := range barsBySymbol {
		symbol, bars := symbol, bars
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := r.Run(symbol, bars)
			if err != nil {
				return err
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Symbol < results[j].Symbol })
	return results, nil
}

// Combined merges per-symbol ledgers by exit time for a cross-symbol view.
func Combined(results []*Result) []types.Trade {
	var all []types.Trade
	for _, res := range results {
		all = append(all, res.Trades...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].ExitTime.Before(all[j].ExitTime) })
	return all
}

// IsFatal reports whether err must stop the caller rather than be recorded.
func IsFatal(err error) bool {
	var stateErr *types.StateError
	var cfgErr *types.ConfigError
	return errors.As(err, &stateErr) || errors.As(err, &cfgErr)
}
