package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ConfigureInteractive walks the user through the backtest settings and
// saves them once they validate.
func ConfigureInteractive(cfg *Config, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)

	for {
		fmt.Fprintln(out, "\n⚙️  Configuration Menu:")
		fmt.Fprintln(out, "1. View Current Configuration")
		fmt.Fprintln(out, "2. Configure Backtest")
		fmt.Fprintln(out, "3. Configure Market Hours")
		fmt.Fprintln(out, "4. Configure Symbols & Data")
		fmt.Fprintln(out, "5. Save & Exit")
		fmt.Fprint(out, "Select option: ")

		choice, err := reader.ReadString('\n')
		if err != nil && choice == "" {
			return err
		}
		choice = strings.TrimSpace(choice)

		switch choice {
		case "1":
			DisplayConfiguration(cfg, out)
		case "2":
			configureBacktest(cfg, reader, out)
		case "3":
			configureMarketHours(cfg, reader, out)
		case "4":
			configureSymbols(cfg, reader, out)
		case "5":
			if _, err := cfg.BacktestConfig(); err != nil {
				fmt.Fprintf(out, "❌ %v\n", err)
				continue
			}
			if err := SaveConfig(cfg); err != nil {
				fmt.Fprintf(out, "❌ Error saving config: %v\n", err)
				continue
			}
			fmt.Fprintln(out, "✅ Configuration saved successfully!")
			return nil
		default:
			fmt.Fprintln(out, "❌ Invalid option")
		}
	}
}

// DisplayConfiguration shows current configuration
func DisplayConfiguration(cfg *Config, out io.Writer) {
	b := cfg.Backtest
	fmt.Fprintln(out, "\n📋 Current Configuration:")
	fmt.Fprintln(out, "\n=== Backtest ===")
	fmt.Fprintf(out, "  • Initial Capital: %.2f\n", b.InitialCapital)
	fmt.Fprintf(out, "  • Commission: %g (%s)\n", b.CommissionRate, b.CommissionModel)
	fmt.Fprintf(out, "  • Price Proxy: %s\n", b.PriceProxy)
	fmt.Fprintf(out, "  • Entry Offset: %d min\n", b.EntryOffsetMinutes)
	fmt.Fprintf(out, "  • Bar Cadence: %d min\n", b.BarCadenceMinutes)

	fmt.Fprintln(out, "\n=== Market Hours ===")
	fmt.Fprintf(out, "Regular Open: %s\n", cfg.Global.MarketHours.RegularOpen)
	fmt.Fprintf(out, "Regular Close: %s\n", cfg.Global.MarketHours.RegularClose)
	fmt.Fprintf(out, "Timezone: %s\n", cfg.Global.MarketHours.Timezone)

	fmt.Fprintln(out, "\n=== Data ===")
	fmt.Fprintf(out, "Symbols: %s\n", strings.Join(cfg.Symbols, ", "))
	fmt.Fprintf(out, "Source: %s\n", cfg.Data.Source)
	fmt.Fprintf(out, "Output: %s (%s)\n", cfg.Output.Dir, strings.Join(cfg.Output.Formats, ", "))
	fmt.Fprintf(out, "Database: %s\n", enabledStr(cfg.Database.Enabled))
}

func prompt(reader *bufio.Reader, out io.Writer, label, current string) string {
	fmt.Fprintf(out, "Current %s: %s\n", label, current)
	fmt.Fprintf(out, "New %s: ", label)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func configureBacktest(cfg *Config, reader *bufio.Reader, out io.Writer) {
	fmt.Fprintln(out, "\n📊 Configure Backtest:")
	b := &cfg.Backtest

	if val, err := strconv.ParseFloat(prompt(reader, out, "initial capital", fmt.Sprintf("%.2f", b.InitialCapital)), 64); err == nil {
		b.InitialCapital = val
	}
	if val, err := strconv.ParseFloat(prompt(reader, out, "commission rate", fmt.Sprintf("%g", b.CommissionRate)), 64); err == nil {
		b.CommissionRate = val
	}
	if val := prompt(reader, out, "commission model (notional/per_share)", b.CommissionModel); val != "" {
		b.CommissionModel = val
	}
	if val := prompt(reader, out, "price proxy (typical/close/hlcc4)", b.PriceProxy); val != "" {
		b.PriceProxy = val
	}
	if val, err := strconv.Atoi(prompt(reader, out, "entry offset minutes", strconv.Itoa(b.EntryOffsetMinutes))); err == nil {
		b.EntryOffsetMinutes = val
	}

	if _, err := cfg.BacktestConfig(); err != nil {
		fmt.Fprintf(out, "⚠️  %v\n", err)
		return
	}
	fmt.Fprintln(out, "✅ Backtest settings updated")
}

func configureMarketHours(cfg *Config, reader *bufio.Reader, out io.Writer) {
	fmt.Fprintln(out, "\n🕘 Configure Market Hours:")
	mh := &cfg.Global.MarketHours
	if val := prompt(reader, out, "regular open (HH:MM)", mh.RegularOpen); val != "" {
		mh.RegularOpen = val
	}
	if val := prompt(reader, out, "regular close (HH:MM)", mh.RegularClose); val != "" {
		mh.RegularClose = val
	}
	if val := prompt(reader, out, "timezone", mh.Timezone); val != "" {
		mh.Timezone = val
	}
	fmt.Fprintln(out, "✅ Market hours updated")
}

func configureSymbols(cfg *Config, reader *bufio.Reader, out io.Writer) {
	fmt.Fprintln(out, "\n🚀 Configure Symbols & Data:")
	if val := prompt(reader, out, "symbols (comma separated)", strings.Join(cfg.Symbols, ",")); val != "" {
		var symbols []string
		for _, s := range strings.Split(val, ",") {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				symbols = append(symbols, s)
			}
		}
		cfg.Symbols = symbols
	}
	if val := prompt(reader, out, "data source (csv/alpaca)", cfg.Data.Source); val != "" {
		cfg.Data.Source = val
	}
	fmt.Fprintf(out, "1. Database: %s\n", enabledStr(cfg.Database.Enabled))
	fmt.Fprint(out, "Toggle database (y/N): ")
	input, _ := reader.ReadString('\n')
	if strings.EqualFold(strings.TrimSpace(input), "y") {
		cfg.Database.Enabled = !cfg.Database.Enabled
		fmt.Fprintf(out, "✅ Database: %s\n", enabledStr(cfg.Database.Enabled))
	}
}

func enabledStr(enabled bool) string {
	if enabled {
		return "✅ Enabled"
	}
	return "❌ Disabled"
}
