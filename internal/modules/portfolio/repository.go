package portfolio

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/quangtd/vnsentry/internal/domain"
)

const positionColumns = `symbol, sector, quantity, entry_price, stop_price,
	risk_amount, entry_date, entry_score, current_price, last_updated`

// PositionRepository persists the live position book in portfolio.db.
// It is a dumb store: weight and equity arithmetic live on the domain
// types, mutation ordering is the Service's job.
type PositionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPositionRepository creates a new position repository.
func NewPositionRepository(db *sql.DB, log zerolog.Logger) *PositionRepository {
	return &PositionRepository{
		db:  db,
		log: log.With().Str("repo", "positions").Logger(),
	}
}

// GetAll returns every open position keyed by symbol.
func (r *PositionRepository) GetAll() (map[string]*domain.Position, error) {
	query := fmt.Sprintf("SELECT %s FROM positions", positionColumns)

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	positions := make(map[string]*domain.Position)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions[pos.Symbol] = pos
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}

// Get returns one position, nil when the symbol is not held.
func (r *PositionRepository) Get(symbol string) (*domain.Position, error) {
	query := fmt.Sprintf("SELECT %s FROM positions WHERE symbol = ?", positionColumns)

	rows, err := r.db.Query(query, strings.ToUpper(strings.TrimSpace(symbol)))
	if err != nil {
		return nil, fmt.Errorf("failed to query position: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	pos, err := scanPosition(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan position: %w", err)
	}
	return pos, nil
}

// Upsert inserts or replaces a position row.
func (r *PositionRepository) Upsert(pos *domain.Position) error {
	query := fmt.Sprintf(`INSERT OR REPLACE INTO positions (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, positionColumns)

	_, err := r.db.Exec(query,
		strings.ToUpper(strings.TrimSpace(pos.Symbol)),
		pos.Sector,
		pos.Quantity,
		pos.EntryPrice,
		pos.StopPrice,
		pos.RiskAmount,
		pos.EntryDate.Format(domain.DateFormat),
		pos.EntryScore,
		pos.CurrentPrice,
		pos.LastUpdated.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert position: %w", err)
	}

	r.log.Debug().Str("symbol", pos.Symbol).Int64("quantity", pos.Quantity).Msg("Position upserted")
	return nil
}

// Delete removes a closed position.
func (r *PositionRepository) Delete(symbol string) error {
	result, err := r.db.Exec("DELETE FROM positions WHERE symbol = ?",
		strings.ToUpper(strings.TrimSpace(symbol)))
	if err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}

	affected, _ := result.RowsAffected()
	r.log.Debug().Str("symbol", symbol).Int64("rows_affected", affected).Msg("Position deleted")
	return nil
}

// ReplaceAll swaps the whole book in one transaction. Used when a
// restored snapshot disagrees with the table state.
func (r *PositionRepository) ReplaceAll(positions map[string]*domain.Position) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// No-op once Commit succeeds.
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM positions"); err != nil {
		return fmt.Errorf("failed to clear positions: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO positions (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, positionColumns)
	stmt, err := tx.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, pos := range positions {
		_, err := stmt.Exec(
			strings.ToUpper(strings.TrimSpace(pos.Symbol)),
			pos.Sector,
			pos.Quantity,
			pos.EntryPrice,
			pos.StopPrice,
			pos.RiskAmount,
			pos.EntryDate.Format(domain.DateFormat),
			pos.EntryScore,
			pos.CurrentPrice,
			pos.LastUpdated.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to insert position %s: %w", pos.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.log.Debug().Int("count", len(positions)).Msg("Position book replaced")
	return nil
}

// UpdatePrice marks a position to the latest close.
func (r *PositionRepository) UpdatePrice(symbol string, price float64, asOf time.Time) error {
	_, err := r.db.Exec(
		"UPDATE positions SET current_price = ?, last_updated = ? WHERE symbol = ?",
		price,
		asOf.UTC().Format(time.RFC3339),
		strings.ToUpper(strings.TrimSpace(symbol)),
	)
	if err != nil {
		return fmt.Errorf("failed to update position price: %w", err)
	}
	return nil
}

// Cash returns the stored cash balance. The second return reports
// whether a balance row exists at all (a fresh database has none).
func (r *PositionRepository) Cash() (float64, bool, error) {
	var balance float64
	err := r.db.QueryRow("SELECT balance FROM cash WHERE id = 1").Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to query cash balance: %w", err)
	}
	return balance, true, nil
}

// SetCash stores the cash balance.
func (r *PositionRepository) SetCash(balance float64) error {
	_, err := r.db.Exec(
		"INSERT OR REPLACE INTO cash (id, balance, updated_at) VALUES (1, ?, ?)",
		balance,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to store cash balance: %w", err)
	}
	return nil
}

func scanPosition(rows *sql.Rows) (*domain.Position, error) {
	var pos domain.Position
	var entryDate, lastUpdated string

	err := rows.Scan(
		&pos.Symbol,
		&pos.Sector,
		&pos.Quantity,
		&pos.EntryPrice,
		&pos.StopPrice,
		&pos.RiskAmount,
		&entryDate,
		&pos.EntryScore,
		&pos.CurrentPrice,
		&lastUpdated,
	)
	if err != nil {
		return nil, err
	}

	if pos.EntryDate, err = time.Parse(domain.DateFormat, entryDate); err != nil {
		return nil, fmt.Errorf("invalid entry_date %q: %w", entryDate, err)
	}
	if pos.LastUpdated, err = time.Parse(time.RFC3339, lastUpdated); err != nil {
		return nil, fmt.Errorf("invalid last_updated %q: %w", lastUpdated, err)
	}

	return &pos, nil
}
