package metrics

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fazecat/vwapsim/Internal/types"
)

type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

type DrawdownPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Drawdown  float64   `json:"drawdown"` // (peak - equity) / peak
}

type Summary struct {
	TradeCount      int                      `json:"trade_count"`
	Wins            int                      `json:"wins"`
	Losses          int                      `json:"losses"`
	WinRate         float64                  `json:"win_rate"` // fraction of trades with pnl > 0
	InitialEquity   float64                  `json:"initial_equity"`
	FinalEquity     float64                  `json:"final_equity"`
	TotalReturn     float64                  `json:"total_return"` // fraction of initial equity
	GrossPnL        float64                  `json:"gross_pnl"`
	TotalCommission float64                  `json:"total_commission"`
	TotalPnL        float64                  `json:"total_pnl"`
	AvgPnL          float64                  `json:"avg_pnl"`
	AvgWinner       float64                  `json:"avg_winner"`
	AvgLoser        float64                  `json:"avg_loser"`
	BestTrade       float64                  `json:"best_trade"`
	WorstTrade      float64                  `json:"worst_trade"`
	ProfitFactor    float64                  `json:"profit_factor"` // 0 when there are no losing trades
	MaxDrawdown     float64                  `json:"max_drawdown"`
	SharpeRatio     float64                  `json:"sharpe_ratio"`
	SortinoRatio    float64                  `json:"sortino_ratio"`
	AvgHoldMinutes  float64                  `json:"avg_hold_minutes"`
	ExitReasons     map[types.ExitReason]int `json:"exit_reasons"`
}

// Report is everything derived from a ledger. It holds no state of its own,
// so aggregating the same ledger twice yields the same report.
type Report struct {
	EquityCurve []EquityPoint   `json:"equity_curve"`
	Drawdowns   []DrawdownPoint `json:"drawdowns"`
	Summary     Summary         `json:"summary"`
}

func Aggregate(trades []types.Trade, initial decimal.Decimal) Report {
	curve := EquityCurve(trades, initial)
	dd := DrawdownSeries(curve)
	return Report{
		EquityCurve: curve,
		Drawdowns:   dd,
		Summary:     Summarize(trades, initial, dd),
	}
}

// EquityCurve is the initial equity followed by one sample per trade close.
// Equity is rebuilt from realized P&L so it depends on the ledger alone.
func EquityCurve(trades []types.Trade, initial decimal.Decimal) []EquityPoint {
	curve := make([]EquityPoint, 0, len(trades)+1)
	var start time.Time
	if len(trades) > 0 {
		start = trades[0].EntryTime
	}
	curve = append(curve, EquityPoint{Timestamp: start, Equity: initial.InexactFloat64()})

	equity := initial
	for _, t := range trades {
		equity = equity.Add(t.PnL)
		curve = append(curve, EquityPoint{Timestamp: t.ExitTime, Equity: equity.InexactFloat64()})
	}
	return curve
}

func DrawdownSeries(curve []EquityPoint) []DrawdownPoint {
	out := make([]DrawdownPoint, len(curve))
	peak := math.Inf(-1)
	for i, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		dd := 0.0
		if peak > 0 {
			dd = (peak - p.Equity) / peak
		}
		out[i] = DrawdownPoint{Timestamp: p.Timestamp, Drawdown: dd}
	}
	return out
}

func MaxDrawdown(dd []DrawdownPoint) float64 {
	maxDD := 0.0
	for _, p := range dd {
		if p.Drawdown > maxDD {
			maxDD = p.Drawdown
		}
	}
	return maxDD
}

func Summarize(trades []types.Trade, initial decimal.Decimal, dd []DrawdownPoint) Summary {
	s := Summary{
		TradeCount:    len(trades),
		InitialEquity: initial.InexactFloat64(),
		FinalEquity:   initial.InexactFloat64(),
		MaxDrawdown:   MaxDrawdown(dd),
		ExitReasons:   make(map[types.ExitReason]int),
	}
	if len(trades) == 0 {
		return s
	}

	var gross, commission, net, won, lost decimal.Decimal
	best, worst := trades[0].PnL, trades[0].PnL
	var held time.Duration
	for _, t := range trades {
		gross = gross.Add(t.GrossPnL)
		commission = commission.Add(t.Commission)
		net = net.Add(t.PnL)
		switch {
		case t.PnL.IsPositive():
			s.Wins++
			won = won.Add(t.PnL)
		case t.PnL.IsNegative():
			s.Losses++
			lost = lost.Add(t.PnL.Neg())
		}
		if t.PnL.GreaterThan(best) {
			best = t.PnL
		}
		if t.PnL.LessThan(worst) {
			worst = t.PnL
		}
		held += t.HoldTime()
		s.ExitReasons[t.ExitReason]++
	}

	n := decimal.NewFromInt(int64(len(trades)))
	final := initial.Add(net)

	s.WinRate = CalculateWinRate(trades)
	s.GrossPnL = gross.InexactFloat64()
	s.TotalCommission = commission.InexactFloat64()
	s.TotalPnL = net.InexactFloat64()
	s.AvgPnL = net.Div(n).InexactFloat64()
	s.BestTrade = best.InexactFloat64()
	s.WorstTrade = worst.InexactFloat64()
	s.FinalEquity = final.InexactFloat64()
	if initial.IsPositive() {
		s.TotalReturn = net.Div(initial).InexactFloat64()
	}
	if s.Wins > 0 {
		s.AvgWinner = won.Div(decimal.NewFromInt(int64(s.Wins))).InexactFloat64()
	}
	if s.Losses > 0 {
		s.AvgLoser = lost.Neg().Div(decimal.NewFromInt(int64(s.Losses))).InexactFloat64()
		s.ProfitFactor = won.Div(lost).InexactFloat64()
	}
	s.AvgHoldMinutes = held.Minutes() / float64(len(trades))

	returns := TradeReturns(trades, initial)
	s.SharpeRatio = CalculateSharpeRatio(returns, 0)
	s.SortinoRatio = CalculateSortinoRatio(returns, 0)
	return s
}

func CalculateWinRate(trades []types.Trade) float64 {
	if len(trades) == 0 {
		return 0.0
	}
	wins := 0
	for _, trade := range trades {
		if trade.PnL.IsPositive() {
			wins++
		}
	}
	return float64(wins) / float64(len(trades))
}

// TradeReturns is each trade's P&L over the equity it was sized from.
func TradeReturns(trades []types.Trade, initial decimal.Decimal) []float64 {
	returns := make([]float64, 0, len(trades))
	equity := initial
	for _, t := range trades {
		if equity.IsPositive() {
			returns = append(returns, t.PnL.Div(equity).InexactFloat64())
		} else {
			returns = append(returns, 0)
		}
		equity = equity.Add(t.PnL)
	}
	return returns
}

func CalculateSharpeRatio(returns []float64, riskFreeRate float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}
	stdDev := calculateStandardDeviation(returns)
	if stdDev == 0 {
		return 0.0
	}
	return (average(returns) - riskFreeRate) / stdDev
}

func CalculateSortinoRatio(returns []float64, riskFreeRate float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}
	var negativeReturns []float64
	for _, r := range returns {
		if r < 0 {
			negativeReturns = append(negativeReturns, r)
		}
	}
	downsideDev := calculateStandardDeviation(negativeReturns)
	if downsideDev == 0 {
		return 0.0
	}
	return (average(returns) - riskFreeRate) / downsideDev
}

// CalculateCalmarRatio is total return over max drawdown.
func CalculateCalmarRatio(totalReturn float64, maxDrawdown float64) float64 {
	if maxDrawdown == 0 {
		return 0.0
	}
	return totalReturn / maxDrawdown
}

type SymbolStats struct {
	Symbol       string  `json:"symbol"`
	TotalTrades  int     `json:"total_trades"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	NetPnL       float64 `json:"net_pnl"`
	WinRate      float64 `json:"win_rate"`
	SharpeRatio  float64 `json:"sharpe_ratio"`
	SortinoRatio float64 `json:"sortino_ratio"`
	CalmarRatio  float64 `json:"calmar_ratio"`
}

// CalculateSymbolStats rolls a combined multi-symbol ledger up per symbol.
// Every symbol is assumed to have started from initial.
func CalculateSymbolStats(trades []types.Trade, initial decimal.Decimal) map[string]*SymbolStats {
	bySymbol := make(map[string][]types.Trade)
	for _, trade := range trades {
		bySymbol[trade.Symbol] = append(bySymbol[trade.Symbol], trade)
	}

	results := make(map[string]*SymbolStats)
	for symbol, symTrades := range bySymbol {
		sort.SliceStable(symTrades, func(i, j int) bool {
			return symTrades[i].ExitTime.Before(symTrades[j].ExitTime)
		})
		report := Aggregate(symTrades, initial)
		results[symbol] = &SymbolStats{
			Symbol:       symbol,
			TotalTrades:  report.Summary.TradeCount,
			Wins:         report.Summary.Wins,
			Losses:       report.Summary.Losses,
			NetPnL:       report.Summary.TotalPnL,
			WinRate:      report.Summary.WinRate,
			SharpeRatio:  report.Summary.SharpeRatio,
			SortinoRatio: report.Summary.SortinoRatio,
			CalmarRatio:  CalculateCalmarRatio(report.Summary.TotalReturn, report.Summary.MaxDrawdown),
		}
	}
	return results
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func calculateStandardDeviation(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	mean := average(values)
	varianceSum := 0.0
	for _, v := range values {
		varianceSum += (v - mean) * (v - mean)
	}
	variance := varianceSum / float64(len(values))
	return math.Sqrt(variance)
}
