package signals

import (
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quangtd/vnsentry/internal/domain"

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

func sampleSignal(symbol string, date time.Time, score float64) *domain.Signal {
	return &domain.Signal{
		Symbol:         symbol,
		Sector:         "banking",
		Date:           date,
		CompositeScore: score,
		Classification: domain.Buy,
		EntryPrice:     88_000,
		StopPrice:      84_000,
		TargetPrice:    96_000,
		Confidence:     score / 100,
		Components: domain.SignalComponents{
			VolumeScore:       70,
			PriceActionScore:  65,
			MomentumScore:     60,
			AccumulationScore: 55,
			ContextMultiplier: 1.38,
		},
	}
}

func TestRepositorySaveAndGetRoundTrip(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	want := sampleSignal("VCB", date, 74.18)
	want.Partial = true
	require.NoError(t, repo.Save(want))

	got, err := repo.Get("vcb", date)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "VCB", got.Symbol)
	assert.Equal(t, "banking", got.Sector)
	assert.True(t, got.Date.Equal(date))
	assert.InDelta(t, 74.18, got.CompositeScore, 1e-9)
	assert.Equal(t, domain.Buy, got.Classification)
	assert.InDelta(t, 88_000, got.EntryPrice, 1e-9)
	assert.InDelta(t, 84_000, got.StopPrice, 1e-9)
	assert.InDelta(t, 96_000, got.TargetPrice, 1e-9)
	assert.True(t, got.Partial)
	assert.InDelta(t, 1.38, got.Components.ContextMultiplier, 1e-9)
	assert.InDelta(t, 70, got.Components.VolumeScore, 1e-9)
}

func TestRepositoryGetMissing(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	got, err := repo.Get("VCB", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRepositorySaveReplacesSameDay(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save(sampleSignal("VCB", date, 60)))
	require.NoError(t, repo.Save(sampleSignal("VCB", date, 74.18)))

	signals, err := repo.BySymbol("VCB", 0)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.InDelta(t, 74.18, signals[0].CompositeScore, 1e-9)
}

func TestRepositoryLatestPerSymbol(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	mar7 := time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC)
	mar10 := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SaveBatch([]*domain.Signal{
		sampleSignal("VCB", mar7, 80),
		sampleSignal("VCB", mar10, 74.18),
		sampleSignal("FPT", mar10, 81),
	}))

	latest, err := repo.Latest()
	require.NoError(t, err)
	require.Len(t, latest, 2)

	// Strongest first, and only the newest row per symbol.
	assert.Equal(t, "FPT", latest[0].Symbol)
	assert.InDelta(t, 81, latest[0].CompositeScore, 1e-9)
	assert.Equal(t, "VCB", latest[1].Symbol)
	assert.True(t, latest[1].Date.Equal(mar10))
}

func TestRepositoryBySymbolNewestFirst(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	for day := 3; day <= 7; day++ {
		date := time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC)
		require.NoError(t, repo.Save(sampleSignal("HPG", date, float64(50+day))))
	}

	signals, err := repo.BySymbol("hpg", 3)
	require.NoError(t, err)
	require.Len(t, signals, 3)
	assert.Equal(t, "2025-03-07", signals[0].Date.Format(domain.DateFormat))
	assert.Equal(t, "2025-03-05", signals[2].Date.Format(domain.DateFormat))
}

func TestRepositorySectorAverages(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	bank1 := sampleSignal("VCB", date, 80)
	bank2 := sampleSignal("BID", date, 60)
	tech := sampleSignal("FPT", date, 90)
	tech.Sector = "technology"

	require.NoError(t, repo.SaveBatch([]*domain.Signal{bank1, bank2, tech}))

	averages, err := repo.SectorAverages(date)
	require.NoError(t, err)

	require.Len(t, averages, 2)
	assert.InDelta(t, 70, averages["banking"], 1e-9)
	assert.InDelta(t, 90, averages["technology"], 1e-9)
}

func TestRepositoryLatestDateAndPrune(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	latest, err := repo.LatestDate()
	require.NoError(t, err)
	assert.Nil(t, latest)

	mar7 := time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC)
	mar10 := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Save(sampleSignal("VCB", mar7, 60)))
	require.NoError(t, repo.Save(sampleSignal("VCB", mar10, 70)))

	latest, err = repo.LatestDate()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.Equal(mar10))

	deleted, err := repo.DeleteBefore(mar10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := repo.BySymbol("VCB", 0)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.True(t, remaining[0].Date.Equal(mar10))
}
