package signals

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/quangtd/vnsentry/internal/domain"
)

const signalColumns = `symbol, date, sector, composite_score, classification,
	entry_price, stop_price, target_price, confidence, partial,
	volume_score, price_action_score, momentum_score, accumulation_score,
	context_multiplier`

// Repository stores and queries the daily signal stream in signals.db.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a signal repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "signals").Logger(),
	}
}

// Save upserts one signal keyed by (symbol, date).
func (r *Repository) Save(s *domain.Signal) error {
	query := `INSERT OR REPLACE INTO signals (` + signalColumns + `, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.Exec(query,
		s.Symbol,
		s.Date.Format(domain.DateFormat),
		s.Sector,
		s.CompositeScore,
		string(s.Classification),
		s.EntryPrice,
		s.StopPrice,
		s.TargetPrice,
		s.Confidence,
		boolToInt(s.Partial),
		s.Components.VolumeScore,
		s.Components.PriceActionScore,
		s.Components.MomentumScore,
		s.Components.AccumulationScore,
		s.Components.ContextMultiplier,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save signal for %s: %w", s.Symbol, err)
	}
	return nil
}

// SaveBatch upserts a signal batch in one transaction.
func (r *Repository) SaveBatch(batch []*domain.Signal) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// No-op once Commit succeeds.
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO signals (` + signalColumns + `, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare signal insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, s := range batch {
		if _, err := stmt.Exec(
			s.Symbol,
			s.Date.Format(domain.DateFormat),
			s.Sector,
			s.CompositeScore,
			string(s.Classification),
			s.EntryPrice,
			s.StopPrice,
			s.TargetPrice,
			s.Confidence,
			boolToInt(s.Partial),
			s.Components.VolumeScore,
			s.Components.PriceActionScore,
			s.Components.MomentumScore,
			s.Components.AccumulationScore,
			s.Components.ContextMultiplier,
			now,
		); err != nil {
			return fmt.Errorf("failed to save signal for %s: %w", s.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit signal batch: %w", err)
	}

	r.log.Debug().Int("count", len(batch)).Msg("Signal batch saved")
	return nil
}

// Latest returns the most recent signal per symbol, strongest first.
func (r *Repository) Latest() ([]domain.Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM signals s
		JOIN (SELECT symbol AS sym, MAX(date) AS latest FROM signals GROUP BY symbol) m
			ON s.symbol = m.sym AND s.date = m.latest
		ORDER BY s.composite_score DESC, s.symbol`
	return r.querySignals(query)
}

// BySymbol returns a symbol's signal history, newest first.
func (r *Repository) BySymbol(symbol string, limit int) ([]domain.Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM signals WHERE symbol = ? ORDER BY date DESC`
	args := []interface{}{strings.ToUpper(strings.TrimSpace(symbol))}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return r.querySignals(query, args...)
}

// ByDate returns all signals for one trading day, strongest first.
func (r *Repository) ByDate(date time.Time) ([]domain.Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM signals
		WHERE date = ? ORDER BY composite_score DESC, symbol`
	return r.querySignals(query, date.Format(domain.DateFormat))
}

// Get returns one signal by symbol and date, nil when absent.
func (r *Repository) Get(symbol string, date time.Time) (*domain.Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM signals WHERE symbol = ? AND date = ?`

	rows, err := r.db.Query(query,
		strings.ToUpper(strings.TrimSpace(symbol)), date.Format(domain.DateFormat))
	if err != nil {
		return nil, fmt.Errorf("failed to query signal: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	s, err := scanSignal(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan signal: %w", err)
	}
	return &s, nil
}

// SectorAverages returns the mean composite score per sector for one day.
func (r *Repository) SectorAverages(date time.Time) (map[string]float64, error) {
	query := `SELECT sector, AVG(composite_score) FROM signals
		WHERE date = ? AND sector != '' GROUP BY sector`

	rows, err := r.db.Query(query, date.Format(domain.DateFormat))
	if err != nil {
		return nil, fmt.Errorf("failed to query sector averages: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var sector string
		var avg float64
		if err := rows.Scan(&sector, &avg); err != nil {
			return nil, fmt.Errorf("failed to scan sector average: %w", err)
		}
		out[sector] = avg
	}
	return out, rows.Err()
}

// LatestDate returns the most recent signal date, nil when empty.
func (r *Repository) LatestDate() (*time.Time, error) {
	var raw sql.NullString
	if err := r.db.QueryRow(`SELECT MAX(date) FROM signals`).Scan(&raw); err != nil {
		return nil, fmt.Errorf("failed to query latest signal date: %w", err)
	}
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	date, err := time.Parse(domain.DateFormat, raw.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse latest signal date: %w", err)
	}
	return &date, nil
}

// DeleteBefore removes signals older than the cutoff date and returns
// the number deleted.
func (r *Repository) DeleteBefore(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM signals WHERE date < ?`, cutoff.Format(domain.DateFormat))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old signals: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted signals: %w", err)
	}
	if deleted > 0 {
		r.log.Info().Int64("deleted", deleted).Str("cutoff", cutoff.Format(domain.DateFormat)).
			Msg("Old signals pruned")
	}
	return deleted, nil
}

func (r *Repository) querySignals(query string, args ...interface{}) ([]domain.Signal, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var out []domain.Signal
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSignal(rows *sql.Rows) (domain.Signal, error) {
	var s domain.Signal
	var date, classification string
	var partial int

	err := rows.Scan(
		&s.Symbol,
		&date,
		&s.Sector,
		&s.CompositeScore,
		&classification,
		&s.EntryPrice,
		&s.StopPrice,
		&s.TargetPrice,
		&s.Confidence,
		&partial,
		&s.Components.VolumeScore,
		&s.Components.PriceActionScore,
		&s.Components.MomentumScore,
		&s.Components.AccumulationScore,
		&s.Components.ContextMultiplier,
	)
	if err != nil {
		return s, err
	}

	s.Classification = domain.Classification(classification)
	s.Partial = partial != 0
	s.Date, err = time.Parse(domain.DateFormat, date)
	if err != nil {
		return s, fmt.Errorf("failed to parse signal date %q: %w", date, err)
	}
	return s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
