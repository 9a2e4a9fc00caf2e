// Package risk sizes positions from signals and enforces the portfolio
// limits: position and sector caps, pairwise correlation, and a target
// on projected portfolio volatility.
package risk

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/quangtd/vnsentry/internal/domain"
	"github.com/quangtd/vnsentry/pkg/formulas"
)

// minObservations is the fewest daily returns a symbol needs to enter
// the covariance matrix. Symbols below it still get pairwise
// correlations and standalone volatility from whatever tail exists.
const minObservations = 20

// Model holds the trailing return, covariance and correlation estimates
// for one analysis cycle. It is built once per cycle from price history,
// owned by the portfolio service, and read by the risk manager and the
// optimizer so both see identical numbers.
type Model struct {
	asOf    time.Time
	window  int
	returns map[string][]float64 // trailing daily returns, oldest first
	means   map[string]float64
	vols    map[string]float64 // annualized

	// Covariance matrix members: symbols with enough aligned history.
	members []string
	index   map[string]int
	cov     *mat.SymDense // daily, Ledoit-Wolf shrunk
}

// NewModel estimates trailing statistics over at most window daily
// returns per symbol. Histories shorter than two bars are ignored.
func NewModel(histories []*domain.PriceHistory, window int, asOf time.Time) *Model {
	m := &Model{
		asOf:    asOf,
		window:  window,
		returns: make(map[string][]float64),
		means:   make(map[string]float64),
		vols:    make(map[string]float64),
		index:   make(map[string]int),
	}

	for _, h := range histories {
		if h == nil || h.Len() < 2 {
			continue
		}
		closes := h.Closes()
		if len(closes) > window+1 {
			closes = closes[len(closes)-window-1:]
		}
		rets := formulas.CalculateReturns(closes)
		if len(rets) < 1 {
			continue
		}
		m.returns[h.Symbol] = rets
		m.means[h.Symbol] = formulas.Mean(rets)
		m.vols[h.Symbol] = formulas.AnnualizedVolatility(rets)
	}

	m.buildCovariance()
	return m
}

// buildCovariance assembles the shrunk daily covariance matrix over the
// symbols with at least minObservations returns, tail-aligned to the
// shortest member series.
func (m *Model) buildCovariance() {
	var members []string
	common := math.MaxInt32
	for symbol, rets := range m.returns {
		if len(rets) < minObservations {
			continue
		}
		members = append(members, symbol)
		if len(rets) < common {
			common = len(rets)
		}
	}
	if len(members) == 0 || common < 2 {
		return
	}
	sort.Strings(members)

	n, p := common, len(members)
	data := mat.NewDense(n, p, nil)
	for j, symbol := range members {
		rets := m.returns[symbol]
		tail := rets[len(rets)-n:]
		mean := formulas.Mean(tail)
		for i := 0; i < n; i++ {
			data.Set(i, j, tail[i]-mean)
		}
	}

	// Maximum-likelihood sample covariance S = X'X / n.
	sample := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			var sum float64
			for t := 0; t < n; t++ {
				sum += data.At(t, i) * data.At(t, j)
			}
			sample.SetSym(i, j, sum/float64(n))
		}
	}

	m.members = members
	for i, symbol := range members {
		m.index[symbol] = i
	}
	m.cov = shrinkCovariance(sample, data)
}

// shrinkCovariance applies the Ledoit-Wolf estimator: blends the sample
// covariance with a scaled identity target, intensity picked from the
// dispersion of the per-day outer products around the sample estimate.
func shrinkCovariance(sample *mat.SymDense, demeaned *mat.Dense) *mat.SymDense {
	n, p := demeaned.Dims()

	var trace float64
	for i := 0; i < p; i++ {
		trace += sample.At(i, i)
	}
	mu := trace / float64(p)

	var d2 float64
	for i := 0; i < p; i++ {
		for j := 0; j < p; j++ {
			diff := sample.At(i, j)
			if i == j {
				diff -= mu
			}
			d2 += diff * diff
		}
	}
	d2 /= float64(p)

	var b2 float64
	for t := 0; t < n; t++ {
		for i := 0; i < p; i++ {
			for j := 0; j < p; j++ {
				diff := demeaned.At(t, i)*demeaned.At(t, j) - sample.At(i, j)
				b2 += diff * diff
			}
		}
	}
	b2 /= float64(n) * float64(n) * float64(p)
	if b2 > d2 {
		b2 = d2
	}

	alpha := 0.0
	if d2 > 0 {
		alpha = b2 / d2
	}

	shrunk := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			v := (1 - alpha) * sample.At(i, j)
			if i == j {
				v += alpha * mu
			}
			shrunk.SetSym(i, j, v)
		}
	}
	return shrunk
}

// AsOf returns the cycle date the model was built for.
func (m *Model) AsOf() time.Time { return m.asOf }

// Window returns the trailing-return window in trading days.
func (m *Model) Window() int { return m.window }

// Has reports whether any return history exists for the symbol.
func (m *Model) Has(symbol string) bool {
	_, ok := m.returns[symbol]
	return ok
}

// Member reports whether the symbol is part of the covariance matrix.
func (m *Model) Member(symbol string) bool {
	_, ok := m.index[symbol]
	return ok
}

// Symbols returns the covariance matrix members in matrix order.
func (m *Model) Symbols() []string {
	out := make([]string, len(m.members))
	copy(out, m.members)
	return out
}

// MeanDailyReturn returns the trailing mean daily return, 0 when the
// symbol is unknown.
func (m *Model) MeanDailyReturn(symbol string) float64 {
	return m.means[symbol]
}

// Volatility returns the annualized volatility of a single symbol, 0
// when unknown.
func (m *Model) Volatility(symbol string) float64 {
	return m.vols[symbol]
}

// Correlation returns the Pearson correlation of two symbols' trailing
// returns, aligned on the shorter tail. Unknown symbols correlate 0.
func (m *Model) Correlation(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, ok := m.returns[a]
	if !ok {
		return 0
	}
	rb, ok := m.returns[b]
	if !ok {
		return 0
	}

	n := len(ra)
	if len(rb) < n {
		n = len(rb)
	}
	if n < 2 {
		return 0
	}

	corr := formulas.Correlation(ra[len(ra)-n:], rb[len(rb)-n:])
	if math.IsNaN(corr) {
		return 0
	}
	return corr
}

// CovarianceFor returns the daily covariance submatrix for the given
// symbols in the given order. Fails when a symbol is not a matrix
// member.
func (m *Model) CovarianceFor(symbols []string) (*mat.SymDense, error) {
	if m.cov == nil {
		return nil, fmt.Errorf("covariance matrix not available")
	}

	sub := mat.NewSymDense(len(symbols), nil)
	for i, a := range symbols {
		ia, ok := m.index[a]
		if !ok {
			return nil, fmt.Errorf("symbol %s not in covariance matrix", a)
		}
		for j := i; j < len(symbols); j++ {
			ib, ok := m.index[symbols[j]]
			if !ok {
				return nil, fmt.Errorf("symbol %s not in covariance matrix", symbols[j])
			}
			sub.SetSym(i, j, m.cov.At(ia, ib))
		}
	}
	return sub, nil
}

// PortfolioVolatility projects the annualized volatility of a weighted
// holding set. Matrix members contribute through the covariance matrix;
// the rest contribute as uncorrelated variance from their standalone
// estimate. Weights are fractions of equity and need not sum to 1.
func (m *Model) PortfolioVolatility(weights map[string]float64) float64 {
	var dailyVar float64

	symbols := make([]string, 0, len(weights))
	for symbol, w := range weights {
		if w == 0 {
			continue
		}
		if _, ok := m.index[symbol]; ok {
			symbols = append(symbols, symbol)
			continue
		}
		// Uncorrelated fallback from the standalone estimate.
		dailyAnn := m.vols[symbol]
		dailyVar += w * w * (dailyAnn * dailyAnn) / formulas.TradingDaysPerYear
	}
	sort.Strings(symbols)

	for _, a := range symbols {
		for _, b := range symbols {
			dailyVar += weights[a] * weights[b] * m.cov.At(m.index[a], m.index[b])
		}
	}

	if dailyVar <= 0 {
		return 0
	}
	return math.Sqrt(dailyVar * formulas.TradingDaysPerYear)
}
