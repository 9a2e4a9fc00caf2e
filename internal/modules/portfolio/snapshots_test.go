package portfolio

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quangtd/vnsentry/internal/domain"
)

func snapshotFixture(date time.Time) *domain.Portfolio {
	p := domain.NewPortfolio(831_250_000)
	p.AsOf = date
	p.Positions["VCB"] = &domain.Position{
		Symbol:       "VCB",
		Sector:       "banking",
		Quantity:     2500,
		EntryPrice:   66_000,
		StopPrice:    62_000,
		RiskAmount:   10_000_000,
		EntryDate:    date,
		EntryScore:   74.18,
		CurrentPrice: 67_500,
		LastUpdated:  date,
	}
	p.Positions["FPT"] = &domain.Position{
		Symbol:       "FPT",
		Sector:       "technology",
		Quantity:     1000,
		EntryPrice:   120_000,
		StopPrice:    112_000,
		RiskAmount:   8_000_000,
		EntryDate:    date.AddDate(0, 0, -7),
		EntryScore:   68.4,
		CurrentPrice: 118_500,
		LastUpdated:  date,
	}
	return p
}

// Serializing and deserializing a portfolio must yield an identical
// entity, including position details and all time fields.
func TestSnapshotRoundTrip(t *testing.T) {
	store := NewSnapshotStore(setupTestDB(t), zerolog.Nop())
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	want := snapshotFixture(date)
	require.NoError(t, store.Save(want))

	got, err := store.Load(date)
	require.NoError(t, err)
	require.NotNil(t, got)

	require.Equal(t, want, got)
}

func TestSnapshotSaveRequiresDate(t *testing.T) {
	store := NewSnapshotStore(setupTestDB(t), zerolog.Nop())

	err := store.Save(domain.NewPortfolio(1_000_000_000))
	require.Error(t, err)
}

func TestSnapshotLoadMissing(t *testing.T) {
	store := NewSnapshotStore(setupTestDB(t), zerolog.Nop())

	got, err := store.Load(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSnapshotLatestBefore(t *testing.T) {
	store := NewSnapshotStore(setupTestDB(t), zerolog.Nop())

	mar6 := time.Date(2025, 3, 6, 0, 0, 0, 0, time.UTC)
	mar7 := time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC)
	mar10 := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(snapshotFixture(mar6)))
	require.NoError(t, store.Save(snapshotFixture(mar7)))
	require.NoError(t, store.Save(snapshotFixture(mar10)))

	// Cycle start on the 10th sees the 7th, not the same-day snapshot.
	prior, err := store.LatestBefore(mar10)
	require.NoError(t, err)
	require.NotNil(t, prior)
	assert.True(t, prior.AsOf.Equal(mar7))

	none, err := store.LatestBefore(mar6)
	require.NoError(t, err)
	assert.Nil(t, none)

	latest, err := store.Latest()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.AsOf.Equal(mar10))
}

func TestSnapshotDatesAndPrune(t *testing.T) {
	store := NewSnapshotStore(setupTestDB(t), zerolog.Nop())

	for day := 3; day <= 7; day++ {
		date := time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC)
		require.NoError(t, store.Save(snapshotFixture(date)))
	}

	dates, err := store.Dates(3)
	require.NoError(t, err)
	require.Len(t, dates, 3)
	assert.Equal(t, "2025-03-07", dates[0].Format(domain.DateFormat))
	assert.Equal(t, "2025-03-05", dates[2].Format(domain.DateFormat))

	deleted, err := store.DeleteBefore(time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	dates, err = store.Dates(0)
	require.NoError(t, err)
	require.Len(t, dates, 3)
	assert.Equal(t, "2025-03-05", dates[2].Format(domain.DateFormat))
}
