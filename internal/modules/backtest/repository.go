package backtest

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/quangtd/vnsentry/internal/domain"
)

const runColumns = `id, created_at, start_date, end_date, initial_capital,
	final_equity, total_return, trades, wins, win_rate, avg_return,
	max_drawdown, sharpe_ratio, avg_holding_days, data_gaps, rejections`

const tradeColumns = `id, run_id, symbol, sector, quantity, entry_date,
	entry_price, exit_date, exit_price, exit_reason, cost, pnl,
	trade_return, holding_days`

// Repository stores runs and their trade logs in backtest.db.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a backtest repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "backtest").Logger(),
	}
}

// SaveRun upserts one run record.
func (r *Repository) SaveRun(run *Run) error {
	query := `INSERT OR REPLACE INTO backtest_runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.Exec(query,
		run.ID,
		run.CreatedAt.UTC().Format(time.RFC3339),
		run.Start.Format(domain.DateFormat),
		run.End.Format(domain.DateFormat),
		run.InitialCapital,
		run.FinalEquity,
		run.TotalReturn,
		run.Trades,
		run.Wins,
		run.WinRate,
		run.AvgReturn,
		run.MaxDrawdown,
		run.SharpeRatio,
		run.AvgHoldingDays,
		run.DataGaps,
		run.Rejections,
	)
	if err != nil {
		return fmt.Errorf("failed to save backtest run %s: %w", run.ID, err)
	}
	return nil
}

// SaveTrades inserts a run's trade log in one transaction.
func (r *Repository) SaveTrades(trades []Trade) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// No-op once Commit succeeds.
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO backtest_trades (` + tradeColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare trade insert: %w", err)
	}
	defer stmt.Close()

	for _, trade := range trades {
		if _, err := stmt.Exec(
			trade.ID,
			trade.RunID,
			trade.Symbol,
			trade.Sector,
			trade.Quantity,
			trade.EntryDate.Format(domain.DateFormat),
			trade.EntryPrice,
			trade.ExitDate.Format(domain.DateFormat),
			trade.ExitPrice,
			string(trade.ExitReason),
			trade.Cost,
			trade.PnL,
			trade.Return,
			trade.HoldingDays,
		); err != nil {
			return fmt.Errorf("failed to save trade %s: %w", trade.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trade batch: %w", err)
	}

	r.log.Debug().Int("count", len(trades)).Msg("Trade log saved")
	return nil
}

// GetRun returns one run by ID, nil when absent.
func (r *Repository) GetRun(id string) (*Run, error) {
	rows, err := r.db.Query(`SELECT `+runColumns+` FROM backtest_runs WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtest run: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	run, err := scanRun(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan backtest run: %w", err)
	}
	return &run, nil
}

// ListRuns returns runs newest first.
func (r *Repository) ListRuns(limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM backtest_runs ORDER BY created_at DESC, id`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtest runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backtest run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// TradesByRun returns a run's trade log in execution order.
func (r *Repository) TradesByRun(runID string) ([]Trade, error) {
	rows, err := r.db.Query(
		`SELECT `+tradeColumns+` FROM backtest_trades WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		var trade Trade
		var entryDate, exitDate, reason string
		if err := rows.Scan(
			&trade.ID,
			&trade.RunID,
			&trade.Symbol,
			&trade.Sector,
			&trade.Quantity,
			&entryDate,
			&trade.EntryPrice,
			&exitDate,
			&trade.ExitPrice,
			&reason,
			&trade.Cost,
			&trade.PnL,
			&trade.Return,
			&trade.HoldingDays,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trade.ExitReason = ExitReason(reason)
		if trade.EntryDate, err = time.Parse(domain.DateFormat, entryDate); err != nil {
			return nil, fmt.Errorf("failed to parse entry date %q: %w", entryDate, err)
		}
		if trade.ExitDate, err = time.Parse(domain.DateFormat, exitDate); err != nil {
			return nil, fmt.Errorf("failed to parse exit date %q: %w", exitDate, err)
		}
		out = append(out, trade)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its trades.
func (r *Repository) DeleteRun(id string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM backtest_trades WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete trades for run %s: %w", id, err)
	}
	if _, err := tx.Exec(`DELETE FROM backtest_runs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run deletion: %w", err)
	}

	r.log.Info().Str("run_id", id).Msg("Backtest run deleted")
	return nil
}

func scanRun(rows *sql.Rows) (Run, error) {
	var run Run
	var createdAt, start, end string
	var sharpe sql.NullFloat64

	err := rows.Scan(
		&run.ID,
		&createdAt,
		&start,
		&end,
		&run.InitialCapital,
		&run.FinalEquity,
		&run.TotalReturn,
		&run.Trades,
		&run.Wins,
		&run.WinRate,
		&run.AvgReturn,
		&run.MaxDrawdown,
		&sharpe,
		&run.AvgHoldingDays,
		&run.DataGaps,
		&run.Rejections,
	)
	if err != nil {
		return run, err
	}

	if sharpe.Valid {
		run.SharpeRatio = &sharpe.Float64
	}
	if run.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return run, fmt.Errorf("failed to parse created_at %q: %w", createdAt, err)
	}
	if run.Start, err = time.Parse(domain.DateFormat, start); err != nil {
		return run, fmt.Errorf("failed to parse start date %q: %w", start, err)
	}
	if run.End, err = time.Parse(domain.DateFormat, end); err != nil {
		return run, fmt.Errorf("failed to parse end date %q: %w", end, err)
	}
	return run, nil
}
