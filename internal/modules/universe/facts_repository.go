package universe

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/quangtd/vnsentry/internal/domain"
	"github.com/rs/zerolog"
)

// FactsRepository handles per-symbol context facts in universe.db.
type FactsRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewFactsRepository creates a facts repository.
func NewFactsRepository(db *sql.DB, log zerolog.Logger) *FactsRepository {
	return &FactsRepository{
		db:  db,
		log: log.With().Str("repo", "facts").Logger(),
	}
}

// Get returns the facts for a symbol, nil when none are recorded.
func (r *FactsRepository) Get(symbol string) (*SecurityFacts, error) {
	rows, err := r.db.Query(`
		SELECT symbol, is_banking_leader, is_state_owned, has_foreign_interest,
		       near_foreign_limit, ex_dividend_date, updated_at
		FROM security_facts WHERE symbol = ?`, NormalizeSymbol(symbol))
	if err != nil {
		return nil, fmt.Errorf("failed to query facts for %s: %w", symbol, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	facts, err := scanFacts(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan facts for %s: %w", symbol, err)
	}
	return &facts, nil
}

// GetAll returns facts for every symbol that has them, keyed by symbol.
func (r *FactsRepository) GetAll() (map[string]SecurityFacts, error) {
	rows, err := r.db.Query(`
		SELECT symbol, is_banking_leader, is_state_owned, has_foreign_interest,
		       near_foreign_limit, ex_dividend_date, updated_at
		FROM security_facts`)
	if err != nil {
		return nil, fmt.Errorf("failed to query all facts: %w", err)
	}
	defer rows.Close()

	all := make(map[string]SecurityFacts)
	for rows.Next() {
		facts, err := scanFacts(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan facts: %w", err)
		}
		all[facts.Symbol] = facts
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating facts: %w", err)
	}
	return all, nil
}

// Upsert writes the facts row for a symbol.
func (r *FactsRepository) Upsert(facts SecurityFacts) error {
	now := time.Now().UTC().Format(time.RFC3339)

	var exDiv interface{}
	if facts.ExDividendDate != nil {
		exDiv = facts.ExDividendDate.Format(domain.DateFormat)
	}

	_, err := r.db.Exec(`
		INSERT INTO security_facts (symbol, is_banking_leader, is_state_owned,
			has_foreign_interest, near_foreign_limit, ex_dividend_date, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			is_banking_leader = excluded.is_banking_leader,
			is_state_owned = excluded.is_state_owned,
			has_foreign_interest = excluded.has_foreign_interest,
			near_foreign_limit = excluded.near_foreign_limit,
			ex_dividend_date = excluded.ex_dividend_date,
			updated_at = excluded.updated_at`,
		NormalizeSymbol(facts.Symbol), boolToInt(facts.IsBankingLeader), boolToInt(facts.IsStateOwned),
		boolToInt(facts.HasForeignInterest), boolToInt(facts.NearForeignLimit), exDiv, now)
	if err != nil {
		return fmt.Errorf("failed to upsert facts for %s: %w", facts.Symbol, err)
	}
	return nil
}

func scanFacts(rows *sql.Rows) (SecurityFacts, error) {
	var facts SecurityFacts
	var bankingLeader, stateOwned, foreignInterest, nearLimit int
	var exDiv sql.NullString
	var updatedAt string

	if err := rows.Scan(&facts.Symbol, &bankingLeader, &stateOwned, &foreignInterest,
		&nearLimit, &exDiv, &updatedAt); err != nil {
		return SecurityFacts{}, err
	}

	facts.IsBankingLeader = bankingLeader != 0
	facts.IsStateOwned = stateOwned != 0
	facts.HasForeignInterest = foreignInterest != 0
	facts.NearForeignLimit = nearLimit != 0
	facts.UpdatedAt = parseTimestamp(updatedAt)

	if exDiv.Valid && exDiv.String != "" {
		if d, err := time.Parse(domain.DateFormat, exDiv.String); err == nil {
			facts.ExDividendDate = &d
		}
	}
	return facts, nil
}
