package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fazecat/vwapsim/Internal/backtest"
	datafeed "github.com/fazecat/vwapsim/Internal/database"
	"github.com/fazecat/vwapsim/Internal/export"
	"github.com/fazecat/vwapsim/Internal/strategy/metrics"
	"github.com/fazecat/vwapsim/Internal/utils/config"
	"github.com/fazecat/vwapsim/Internal/utils/formatting"
	"github.com/fazecat/vwapsim/Internal/utils/logging"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default: search the usual locations)")
	configure := flag.Bool("configure", false, "edit the configuration interactively and exit")
	symbolsFlag := flag.String("symbols", "", "comma separated symbols, overrides the config")
	sourceFlag := flag.String("source", "", "bar source: csv or alpaca")
	outDir := flag.String("out", "", "output directory, overrides the config")
	fromFlag := flag.String("from", "", "first session date to test, e.g. 2024-03-04")
	toFlag := flag.String("to", "", "last session date to test")
	flag.Parse()

	// .env is optional; the CSV path needs no credentials
	_ = godotenv.Load()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *configure {
		if err := config.ConfigureInteractive(cfg, os.Stdin, os.Stdout); err != nil {
			log.Fatalf("Configuration aborted: %v", err)
		}
		return
	}

	if *symbolsFlag != "" {
		cfg.Symbols = splitSymbols(*symbolsFlag)
	}
	if *sourceFlag != "" {
		cfg.Data.Source = *sourceFlag
	}
	if *outDir != "" {
		cfg.Output.Dir = *outDir
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	var dates dateRange
	if dates.from, err = parseDateFlag("from", *fromFlag); err != nil {
		log.Fatal(err)
	}
	if dates.to, err = parseDateFlag("to", *toFlag); err != nil {
		log.Fatal(err)
	}
	if !dates.from.IsZero() && !dates.to.IsZero() && dates.to.Before(dates.from) {
		log.Fatalf("-to %s is before -from %s", *toFlag, *fromFlag)
	}

	if err := run(cfg, dates, logger); err != nil {
		logger.Error("backtest failed", zap.Error(err))
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadConfigFrom(path)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Warning: %v; using defaults", err)
		return config.Default(), nil
	}
	return cfg, nil
}

type dateRange struct {
	from, to time.Time
}

func parseDateFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	d := formatting.ParseDate(value)
	if d.IsZero() {
		return time.Time{}, fmt.Errorf("-%s: unrecognized date %q", name, value)
	}
	return d, nil
}

func splitSymbols(s string) []string {
	var out []string
	for _, sym := range strings.Split(s, ",") {
		if sym = strings.ToUpper(strings.TrimSpace(sym)); sym != "" {
			out = append(out, sym)
		}
	}
	return out
}

func run(cfg *config.Config, dates dateRange, logger *zap.Logger) error {
	btCfg, err := cfg.BacktestConfig()
	if err != nil {
		return err
	}
	runner, err := backtest.NewRunner(btCfg, nil, logger)
	if err != nil {
		return err
	}
	if len(cfg.Symbols) == 0 {
		return fmt.Errorf("no symbols configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var source datafeed.BarSource
	switch strings.ToLower(cfg.Data.Source) {
	case "", "csv":
		source = datafeed.CSVSource{Dir: cfg.Data.CSVDir, Pattern: cfg.Data.CSVPattern, Location: btCfg.Location, Logger: logger}
	case "alpaca":
		source, err = datafeed.NewAlpacaSource(datafeed.AlpacaOptions{
			Feed:         cfg.Data.Feed,
			LookbackDays: cfg.Data.LookbackDays,
			Location:     btCfg.Location,
		}, logger)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown data source %q", cfg.Data.Source)
	}

	fmt.Printf("📥 Loading bars for %s from %s...\n", strings.Join(cfg.Symbols, ", "), cfg.Data.Source)
	bars, err := datafeed.LoadAll(ctx, source, cfg.Symbols)
	if err != nil {
		return err
	}
	for symbol, b := range bars {
		bars[symbol] = datafeed.FilterDates(b, dates.from, dates.to, btCfg.Location)
	}

	results, err := runner.RunAll(ctx, bars)
	if err != nil {
		return err
	}
	for _, res := range results {
		printResult(res)
	}
	if len(results) > 1 {
		printSymbolStats(results, btCfg)
	}

	files, err := export.SaveAll(results, cfg.Output.Dir, cfg.Output.Formats)
	if err != nil {
		return err
	}
	fmt.Printf("\n💾 Wrote %d file(s) to %s\n", len(files), cfg.Output.Dir)

	if cfg.Database.Enabled {
		if err := datafeed.InitDatabase(ctx); err != nil {
			return err
		}
		defer datafeed.CloseDatabase()
		for _, res := range results {
			if err := datafeed.SaveRun(ctx, res); err != nil {
				return err
			}
		}
		fmt.Printf("🗄️  Stored %d run(s) in Postgres\n", len(results))
	}
	return nil
}

func printResult(res *backtest.Result) {
	s := res.Report.Summary
	fmt.Println("\n" + formatting.Separator(60))
	fmt.Printf("📊 %s  run %s\n", res.Symbol, res.RunID.String()[:8])
	fmt.Println(formatting.Separator(60))
	fmt.Printf("Sessions: %d processed, %d traded, %d skipped\n", len(res.Sessions), res.TradedSessions(), len(res.Skipped))
	fmt.Printf("Equity:   %s -> %s (%s)\n",
		formatting.Money(res.InitialCapital), formatting.Money(res.FinalEquity), formatting.Percent(s.TotalReturn))
	fmt.Printf("Trades:   %d  (%d wins / %d losses, win rate %s)\n", s.TradeCount, s.Wins, s.Losses, formatting.Percent(s.WinRate))
	fmt.Printf("Net P&L:  %s after %s commission\n", formatting.Money(decimal.NewFromFloat(s.TotalPnL)), formatting.Money(decimal.NewFromFloat(s.TotalCommission)))
	fmt.Printf("Max DD:   %s   Profit factor: %.2f   Sharpe: %.2f\n", formatting.Percent(s.MaxDrawdown), s.ProfitFactor, s.SharpeRatio)

	if len(s.ExitReasons) > 0 {
		reasons := make([]string, 0, len(s.ExitReasons))
		for reason, n := range s.ExitReasons {
			reasons = append(reasons, fmt.Sprintf("%s=%d", reason, n))
		}
		sort.Strings(reasons)
		fmt.Printf("Exits:    %s\n", strings.Join(reasons, ", "))
	}

	if n := len(res.Sessions); n > 0 {
		var above, below int
		for _, sess := range res.Sessions {
			if sess.Imbalance.Imbalance > 0 {
				above++
			} else if sess.Imbalance.Imbalance < 0 {
				below++
			}
		}
		fmt.Printf("Bias:     %d sessions above VWAP, %d below\n", above, below)
	}

	for _, sk := range res.Skipped {
		fmt.Printf("⚠️  %s skipped: %s\n", sk.Date, sk.Reason)
	}
}

func printSymbolStats(results []*backtest.Result, cfg backtest.Config) {
	stats := metrics.CalculateSymbolStats(backtest.Combined(results), cfg.InitialCapital)
	symbols := make([]string, 0, len(stats))
	for sym := range stats {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	fmt.Println("\n" + formatting.Separator(60))
	fmt.Println("🏁 By symbol")
	fmt.Println(formatting.RepeatString("-", 60))
	for _, sym := range symbols {
		st := stats[sym]
		fmt.Printf("%-6s trades=%-4d win=%-8s net=%10.2f sharpe=%.2f\n",
			sym, st.TotalTrades, formatting.Percent(st.WinRate), st.NetPnL, st.SharpeRatio)
	}
}
