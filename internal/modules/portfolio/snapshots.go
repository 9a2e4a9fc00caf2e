package portfolio

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/quangtd/vnsentry/internal/domain"
)

// SnapshotStore persists end-of-day portfolio state as msgpack blobs
// keyed by trading date. The prior day's snapshot is the only state
// carried into a new analysis cycle.
type SnapshotStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSnapshotStore creates a new snapshot store.
func NewSnapshotStore(db *sql.DB, log zerolog.Logger) *SnapshotStore {
	return &SnapshotStore{
		db:  db,
		log: log.With().Str("repo", "snapshots").Logger(),
	}
}

// Save serializes the portfolio under its AsOf date, replacing any
// earlier snapshot for the same day.
func (s *SnapshotStore) Save(p *domain.Portfolio) error {
	if p.AsOf.IsZero() {
		return fmt.Errorf("cannot snapshot portfolio without an as-of date")
	}

	data, err := msgpack.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode portfolio snapshot: %w", err)
	}

	date := p.AsOf.Format(domain.DateFormat)
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO snapshots (date, data, created_at) VALUES (?, ?, ?)",
		date,
		data,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}

	s.log.Debug().
		Str("date", date).
		Int("bytes", len(data)).
		Int("positions", len(p.Positions)).
		Msg("Portfolio snapshot stored")
	return nil
}

// Load returns the snapshot for an exact date, nil when none exists.
func (s *SnapshotStore) Load(date time.Time) (*domain.Portfolio, error) {
	var data []byte
	err := s.db.QueryRow(
		"SELECT data FROM snapshots WHERE date = ?",
		date.Format(domain.DateFormat),
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	return decodeSnapshot(data)
}

// LatestBefore returns the newest snapshot strictly before the given
// date, nil when none exists. This is the cycle-start load.
func (s *SnapshotStore) LatestBefore(date time.Time) (*domain.Portfolio, error) {
	var data []byte
	err := s.db.QueryRow(
		"SELECT data FROM snapshots WHERE date < ? ORDER BY date DESC LIMIT 1",
		date.Format(domain.DateFormat),
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	return decodeSnapshot(data)
}

// Latest returns the newest snapshot, nil when the store is empty.
func (s *SnapshotStore) Latest() (*domain.Portfolio, error) {
	var data []byte
	err := s.db.QueryRow(
		"SELECT data FROM snapshots ORDER BY date DESC LIMIT 1",
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	return decodeSnapshot(data)
}

// Dates returns snapshot dates, newest first, capped at limit when
// limit > 0.
func (s *SnapshotStore) Dates(limit int) ([]time.Time, error) {
	query := "SELECT date FROM snapshots ORDER BY date DESC"
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot date: %w", err)
		}
		date, err := time.Parse(domain.DateFormat, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid snapshot date %q: %w", raw, err)
		}
		dates = append(dates, date)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot dates: %w", err)
	}
	return dates, nil
}

// DeleteBefore prunes snapshots older than the cutoff date and returns
// the number removed.
func (s *SnapshotStore) DeleteBefore(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec(
		"DELETE FROM snapshots WHERE date < ?",
		cutoff.Format(domain.DateFormat),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned snapshots: %w", err)
	}
	if deleted > 0 {
		s.log.Info().Int64("deleted", deleted).Str("cutoff", cutoff.Format(domain.DateFormat)).Msg("Old snapshots pruned")
	}
	return deleted, nil
}

// decodeSnapshot unpacks a snapshot blob. Times come back in the local
// zone from msgpack's timestamp extension, so every time field is
// normalized to UTC to keep round-trips exact.
func decodeSnapshot(data []byte) (*domain.Portfolio, error) {
	var p domain.Portfolio
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode portfolio snapshot: %w", err)
	}

	p.AsOf = p.AsOf.UTC()
	for _, pos := range p.Positions {
		pos.EntryDate = pos.EntryDate.UTC()
		pos.LastUpdated = pos.LastUpdated.UTC()
	}
	if p.Positions == nil {
		p.Positions = make(map[string]*domain.Position)
	}
	return &p, nil
}
