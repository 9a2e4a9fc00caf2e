package domain

import (
	"fmt"
	"time"
)

// RejectReason names why the risk manager refused a position.
type RejectReason string

const (
	RejectPositionCap   RejectReason = "position_cap"
	RejectSectorCap     RejectReason = "sector_cap"
	RejectCorrelation   RejectReason = "correlation"
	RejectVolatility    RejectReason = "volatility"
	RejectPartialSignal RejectReason = "partial_signal"
	RejectZeroQuantity  RejectReason = "zero_quantity"
	RejectNotBuySide    RejectReason = "not_buy_side"
)

// InsufficientHistoryError signals that a symbol has fewer bars than the
// scoring lookback requires. The symbol is skipped for the cycle; the
// batch continues.
type InsufficientHistoryError struct {
	Symbol string
	Date   time.Time
	Have   int
	Need   int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient history for %s on %s: have %d bars, need %d",
		e.Symbol, e.Date.Format(DateFormat), e.Have, e.Need)
}

// PositionRejectedError is the expected control-flow outcome when a
// candidate fails a risk limit. It is an error type so callers can
// surface symbol and date, but it is never treated as fatal.
type PositionRejectedError struct {
	Symbol string
	Date   time.Time
	Reason RejectReason
	Detail string
}

func (e *PositionRejectedError) Error() string {
	msg := fmt.Sprintf("position rejected for %s on %s: %s",
		e.Symbol, e.Date.Format(DateFormat), e.Reason)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// OptimizationInfeasibleError signals that the constraint set cannot be
// satisfied. No partial allocation is returned alongside it.
type OptimizationInfeasibleError struct {
	Date   time.Time
	Reason string
}

func (e *OptimizationInfeasibleError) Error() string {
	return fmt.Sprintf("optimization infeasible on %s: %s",
		e.Date.Format(DateFormat), e.Reason)
}

// DataGapError records a missing bar for an open position during a
// backtest. The position is held through the gap, never dropped.
type DataGapError struct {
	Symbol string
	Date   time.Time
}

func (e *DataGapError) Error() string {
	return fmt.Sprintf("price data gap for %s on %s", e.Symbol, e.Date.Format(DateFormat))
}
