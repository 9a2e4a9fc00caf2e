// Package alerts raises time-limited alerts from the signal batch and
// the portfolio risk state. An unexpired (symbol, type) pair suppresses
// re-raising; the cooldown doubles as the expiry window.
package alerts

import "time"

// Type classifies what an alert is about.
type Type string

const (
	TypeStrongSignal   Type = "strong_signal"
	TypeBreakout       Type = "breakout"
	TypeRiskWarning    Type = "risk_warning"
	TypeSectorRotation Type = "sector_rotation"
)

// Severity ranks how urgently an alert should be surfaced.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Alert is one raised alert. Symbol holds the sector name for rotation
// alerts and "portfolio" for portfolio-scoped risk warnings.
type Alert struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Type      Type      `json:"type"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
