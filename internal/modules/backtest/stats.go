package backtest

import (
	"github.com/quangtd/vnsentry/pkg/formulas"
)

// computeStats folds the trade log and equity curve into the run
// record. CreatedAt is left zero; the caller stamps it at persist time.
func (e *Engine) computeStats(input Input, capital, finalEquity float64, out *Output, rejections int) Run {
	run := Run{
		ID:             input.RunID,
		Start:          input.Start,
		End:            input.End,
		InitialCapital: capital,
		FinalEquity:    finalEquity,
		TotalReturn:    (finalEquity - capital) / capital,
		Trades:         len(out.Trades),
		DataGaps:       len(out.Gaps),
		Rejections:     rejections,
	}

	if len(out.Trades) > 0 {
		var returnSum, holdingSum float64
		for _, trade := range out.Trades {
			if trade.PnL > 0 {
				run.Wins++
			}
			returnSum += trade.Return
			holdingSum += float64(trade.HoldingDays)
		}
		run.WinRate = float64(run.Wins) / float64(len(out.Trades))
		run.AvgReturn = returnSum / float64(len(out.Trades))
		run.AvgHoldingDays = holdingSum / float64(len(out.Trades))
	}

	// The curve starts at the initial capital so a first-day loss
	// still counts as drawdown.
	values := make([]float64, 0, len(out.Curve)+1)
	values = append(values, capital)
	for _, point := range out.Curve {
		values = append(values, point.Equity)
	}
	if dd := formulas.CalculateMaxDrawdown(values); dd != nil {
		run.MaxDrawdown = *dd
	}
	run.SharpeRatio = formulas.CalculateSharpeRatio(
		dailyReturns(values), e.cfg.Optimization.RiskFreeRate, formulas.TradingDaysPerYear)

	return run
}

func dailyReturns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			continue
		}
		returns = append(returns, values[i]/values[i-1]-1)
	}
	return returns
}
