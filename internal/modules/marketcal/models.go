package marketcal

// TradingHours holds the regular session boundaries in exchange-local time.
type TradingHours struct {
	OpenHour    int
	OpenMinute  int
	CloseHour   int
	CloseMinute int
}

// LunchBreak is the midday halt between the morning and afternoon sessions.
type LunchBreak struct {
	StartHour   int
	StartMinute int
	EndHour     int
	EndMinute   int
}

// MarketStatus describes the exchange state at a point in time.
type MarketStatus struct {
	Open      bool   `json:"open"`
	Exchange  string `json:"exchange"`
	Timezone  string `json:"timezone"`
	ClosesAt  string `json:"closes_at,omitempty"`  // When the current session ends (if open)
	OpensAt   string `json:"opens_at,omitempty"`   // When the next session starts (if closed)
	OpensDate string `json:"opens_date,omitempty"` // Date of next session (if not today)
}
