package datafeed

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
)

var DB *sql.DB

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func ConfigFromEnv() DatabaseConfig {
	return DatabaseConfig{
		Host:     getEnvOrDefault("DB_HOST", "localhost"),
		Port:     getEnvOrDefault("DB_PORT", "5432"),
		User:     getEnvOrDefault("DB_USER", "postgres"),
		Password: os.Getenv("DB_PASSWORD"), // Required - no default
		DBName:   getEnvOrDefault("DB_NAME", "vwapsim"),
		SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
	}
}

func (c DatabaseConfig) ConnString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// InitDatabase connects with DB_* environment settings and creates the
// backtest tables if they are missing.
func InitDatabase(ctx context.Context) error {
	var err error
	DB, err = sql.Open("postgres", ConfigFromEnv().ConnString())
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	if err = DB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if err = initializeSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// initializeSchema creates backtest tables if they don't exist
func initializeSchema(ctx context.Context) error {
	schemaSQL := `
	CREATE TABLE IF NOT EXISTS backtest_runs (
		id UUID PRIMARY KEY,
		symbol TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		initial_capital NUMERIC NOT NULL,
		final_equity NUMERIC NOT NULL,
		trade_count INTEGER NOT NULL,
		win_rate DOUBLE PRECISION NOT NULL,
		max_drawdown DOUBLE PRECISION NOT NULL,
		summary JSONB NOT NULL,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS backtest_trades (
		id SERIAL PRIMARY KEY,
		run_id UUID NOT NULL REFERENCES backtest_runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		entry_time TIMESTAMPTZ NOT NULL,
		exit_time TIMESTAMPTZ NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		exit_price DOUBLE PRECISION NOT NULL,
		entry_vwap DOUBLE PRECISION NOT NULL,
		exit_vwap DOUBLE PRECISION NOT NULL,
		shares BIGINT NOT NULL,
		commission NUMERIC NOT NULL,
		gross_pnl NUMERIC NOT NULL,
		pnl NUMERIC NOT NULL,
		equity_after NUMERIC NOT NULL,
		exit_reason TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS backtest_skips (
		id SERIAL PRIMARY KEY,
		run_id UUID NOT NULL REFERENCES backtest_runs(id) ON DELETE CASCADE,
		session_date DATE NOT NULL,
		reason TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_backtest_runs_symbol ON backtest_runs(symbol);
	CREATE INDEX IF NOT EXISTS idx_backtest_trades_run ON backtest_trades(run_id);
	`

	_, err := DB.ExecContext(ctx, schemaSQL)
	return err
}

func CloseDatabase() error {
	if DB != nil {
		return DB.Close()
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func HealthCheck(ctx context.Context) error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}
	return DB.PingContext(ctx)
}
