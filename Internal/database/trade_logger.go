package datafeed

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fazecat/vwapsim/Internal/backtest"
)

// SaveRun stores a run with its trades and skipped sessions in one
// transaction. Money columns are written as exact decimal strings.
func SaveRun(ctx context.Context, res *backtest.Result) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	summary, err := json.Marshal(res.Report.Summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO backtest_runs
			(id, symbol, started_at, initial_capital, final_equity, trade_count, win_rate, max_drawdown, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		res.RunID.String(), res.Symbol, res.StartedAt,
		res.InitialCapital.String(), res.FinalEquity.String(),
		res.Report.Summary.TradeCount, res.Report.Summary.WinRate, res.Report.Summary.MaxDrawdown,
		string(summary),
	)
	if err != nil {
		return fmt.Errorf("failed to log run: %w", err)
	}

	for i, t := range res.Trades {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO backtest_trades
				(run_id, seq, symbol, direction, entry_time, exit_time, entry_price, exit_price,
				 entry_vwap, exit_vwap, shares, commission, gross_pnl, pnl, equity_after, exit_reason)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			res.RunID.String(), i+1, t.Symbol, t.Direction.String(), t.EntryTime, t.ExitTime,
			t.EntryPrice, t.ExitPrice, t.EntryVWAP, t.ExitVWAP, t.Shares,
			t.Commission.String(), t.GrossPnL.String(), t.PnL.String(), t.EquityAfter.String(),
			string(t.ExitReason),
		)
		if err != nil {
			return fmt.Errorf("failed to log trade %d: %w", i+1, err)
		}
	}

	for _, s := range res.Skipped {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO backtest_skips (run_id, session_date, reason) VALUES ($1, $2, $3)`,
			res.RunID.String(), s.Date, s.Reason)
		if err != nil {
			return fmt.Errorf("failed to log skipped session %s: %w", s.Date, err)
		}
	}

	return tx.Commit()
}

type RunRecord struct {
	ID             uuid.UUID
	Symbol         string
	StartedAt      time.Time
	InitialCapital decimal.Decimal
	FinalEquity    decimal.Decimal
	TradeCount     int
	WinRate        float64
	MaxDrawdown    float64
}

// GetRunHistory returns the latest stored runs for symbol, newest first.
// An empty symbol lists every symbol.
func GetRunHistory(ctx context.Context, symbol string, limit int) ([]RunRecord, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	rows, err := DB.QueryContext(ctx, `
		SELECT id, symbol, started_at, initial_capital, final_equity, trade_count, win_rate, max_drawdown
		FROM backtest_runs
		WHERE $1::text = '' OR symbol = $1
		ORDER BY started_at DESC
		LIMIT $2`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch run history: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		var id, initial, final string
		if err := rows.Scan(&id, &rec.Symbol, &rec.StartedAt, &initial, &final,
			&rec.TradeCount, &rec.WinRate, &rec.MaxDrawdown); err != nil {
			return nil, err
		}
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if rec.InitialCapital, err = decimal.NewFromString(initial); err != nil {
			return nil, err
		}
		if rec.FinalEquity, err = decimal.NewFromString(final); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteRun removes a run; trades and skips cascade.
func DeleteRun(ctx context.Context, id uuid.UUID) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	res, err := DB.ExecContext(ctx, `DELETE FROM backtest_runs WHERE id = $1`, id.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
