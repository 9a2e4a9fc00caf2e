package universe

import "time"

// Security is a listed company in the coverage universe.
type Security struct {
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Sector    string    `json:"sector"`
	Exchange  string    `json:"exchange"`
	LotSize   int       `json:"lot_size"`
	Active    bool      `json:"active"`
	AddedAt   time.Time `json:"added_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SecurityFacts holds the qualitative flags the context adjuster consumes.
// Market-wide state (earnings season, policy uncertainty) lives in settings;
// these are the per-symbol facts.
type SecurityFacts struct {
	Symbol             string     `json:"symbol"`
	IsBankingLeader    bool       `json:"is_banking_leader"`
	IsStateOwned       bool       `json:"is_state_owned"`
	HasForeignInterest bool       `json:"has_foreign_interest"`
	NearForeignLimit   bool       `json:"near_foreign_limit"`
	ExDividendDate     *time.Time `json:"ex_dividend_date,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// SecurityWithFacts combines a security and its facts for API responses.
type SecurityWithFacts struct {
	Security
	Facts *SecurityFacts `json:"facts,omitempty"`
}
