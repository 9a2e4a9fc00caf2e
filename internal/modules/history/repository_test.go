package history

import (
	"database/sql"
	"testing"
	"time"

	"github.com/quangtd/vnsentry/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, InitSchema(db))
	return db
}

func day(s string) time.Time {
	t, err := time.Parse(domain.DateFormat, s)
	if err != nil {
		panic(err)
	}
	return t
}

func testBars(dates []string, closes []float64) []domain.PriceBar {
	bars := make([]domain.PriceBar, len(dates))
	for i, d := range dates {
		c := closes[i]
		bars[i] = domain.PriceBar{
			Date:   day(d),
			Open:   c * 0.99,
			High:   c * 1.01,
			Low:    c * 0.98,
			Close:  c,
			Volume: 1_000_000,
		}
	}
	return bars
}

func TestBarRepositoryUpsertAndGetHistory(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBarRepository(db, zerolog.Nop())

	bars := testBars(
		[]string{"2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"},
		[]float64{90, 91, 92, 93},
	)
	require.NoError(t, repo.UpsertBars("VCB", bars))

	hist, err := repo.GetHistory("vcb", 0)
	require.NoError(t, err)
	require.Equal(t, 4, hist.Len())
	assert.Equal(t, "VCB", hist.Symbol)
	assert.Equal(t, 90.0, hist.Bars[0].Close)
	assert.Equal(t, 93.0, hist.Bars[3].Close)

	// Limit keeps the most recent bars, still ascending.
	hist, err = repo.GetHistory("VCB", 2)
	require.NoError(t, err)
	require.Equal(t, 2, hist.Len())
	assert.Equal(t, 92.0, hist.Bars[0].Close)
	assert.Equal(t, 93.0, hist.Bars[1].Close)

	// Re-upserting the same date replaces the row.
	require.NoError(t, repo.UpsertBars("VCB", testBars([]string{"2024-01-05"}, []float64{95})))
	hist, err = repo.GetHistory("VCB", 1)
	require.NoError(t, err)
	assert.Equal(t, 95.0, hist.Bars[0].Close)
}

func TestBarRepositoryGetHistoryAsOf(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBarRepository(db, zerolog.Nop())

	require.NoError(t, repo.UpsertBars("FPT", testBars(
		[]string{"2024-01-02", "2024-01-03", "2024-01-04"},
		[]float64{100, 101, 102},
	)))

	hist, err := repo.GetHistoryAsOf("FPT", day("2024-01-03"), 0)
	require.NoError(t, err)
	require.Equal(t, 2, hist.Len())
	assert.Equal(t, 101.0, hist.Last().Close)

	// As-of before any data yields an empty series.
	hist, err = repo.GetHistoryAsOf("FPT", day("2023-12-29"), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, hist.Len())
}

func TestBarRepositoryGetRange(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBarRepository(db, zerolog.Nop())

	require.NoError(t, repo.UpsertBars("HPG", testBars(
		[]string{"2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"},
		[]float64{25, 26, 27, 28},
	)))

	hist, err := repo.GetRange("HPG", day("2024-01-03"), day("2024-01-04"))
	require.NoError(t, err)
	require.Equal(t, 2, hist.Len())
	assert.Equal(t, 26.0, hist.Bars[0].Close)
	assert.Equal(t, 27.0, hist.Bars[1].Close)
}

func TestBarRepositoryLatestDateAndCoverage(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBarRepository(db, zerolog.Nop())

	latest, err := repo.LatestDate("VCB")
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, repo.UpsertBars("VCB", testBars(
		[]string{"2024-01-02", "2024-01-03"}, []float64{90, 91})))
	require.NoError(t, repo.UpsertBars("FPT", testBars(
		[]string{"2024-01-03"}, []float64{100})))

	latest, err = repo.LatestDate("VCB")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "2024-01-03", latest.Format(domain.DateFormat))

	symbols, err := repo.Symbols()
	require.NoError(t, err)
	assert.Equal(t, []string{"FPT", "VCB"}, symbols)

	coverage, err := repo.GetCoverage()
	require.NoError(t, err)
	require.Len(t, coverage, 2)
	assert.Equal(t, Coverage{Symbol: "FPT", Bars: 1, FirstDate: "2024-01-03", LastDate: "2024-01-03"}, coverage[0])
	assert.Equal(t, Coverage{Symbol: "VCB", Bars: 2, FirstDate: "2024-01-02", LastDate: "2024-01-03"}, coverage[1])
}

func TestBarRepositoryDeleteBefore(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBarRepository(db, zerolog.Nop())

	require.NoError(t, repo.UpsertBars("VCB", testBars(
		[]string{"2020-01-02", "2024-01-03"}, []float64{60, 91})))

	deleted, err := repo.DeleteBefore(day("2022-01-01"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	hist, err := repo.GetHistory("VCB", 0)
	require.NoError(t, err)
	require.Equal(t, 1, hist.Len())
	assert.Equal(t, 91.0, hist.Bars[0].Close)
}
