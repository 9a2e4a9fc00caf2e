package backtest

import (
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quangtd/vnsentry/internal/config"
	"github.com/quangtd/vnsentry/internal/domain"
	"github.com/quangtd/vnsentry/internal/events"
	"github.com/quangtd/vnsentry/internal/modules/history"
	"github.com/quangtd/vnsentry/internal/modules/marketcal"
	"github.com/quangtd/vnsentry/internal/modules/universe"

	_ "modernc.org/sqlite"
)

// weekdayBars walks n bars over consecutive weekdays, drifting the
// close up with a small deterministic wobble.
func weekdayBars(symbol string, start time.Time, n int) []domain.PriceBar {
	bars := make([]domain.PriceBar, 0, n)
	price := 50_000.0
	date := start
	for len(bars) < n {
		if wd := date.Weekday(); wd != time.Saturday && wd != time.Sunday {
			if len(bars)%3 == 2 {
				price *= 0.995
			} else {
				price *= 1.006
			}
			bars = append(bars, domain.PriceBar{
				Symbol: symbol,
				Date:   date,
				Open:   price * 0.998,
				High:   price * 1.012,
				Low:    price * 0.988,
				Close:  price,
				Volume: 1_500_000 + float64(len(bars))*10_000,
			})
		}
		date = date.AddDate(0, 0, 1)
	}
	return bars
}

func setupBacktestService(t *testing.T) (*Service, *Repository, *events.Bus) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, universe.InitSchema(db))
	require.NoError(t, history.InitSchema(db))
	require.NoError(t, InitSchema(db))

	log := zerolog.Nop()
	securities := universe.NewSecurityRepository(db, log)
	bars := history.NewBarRepository(db, log)
	repo := NewRepository(db, log)
	bus := events.NewBus(log)

	for _, sec := range []universe.Security{
		{Symbol: "VCB", Name: "Vietcombank", Sector: "banking", Exchange: "HOSE", LotSize: 100, Active: true},
		{Symbol: "FPT", Name: "FPT Corp", Sector: "technology", Exchange: "HOSE", LotSize: 100, Active: true},
	} {
		_, err := securities.Upsert(sec)
		require.NoError(t, err)
	}

	start := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, bars.UpsertBars("VCB", weekdayBars("VCB", start, 80)))
	require.NoError(t, bars.UpsertBars("FPT", weekdayBars("FPT", start, 80)))

	svc := NewService(config.DefaultStrategy(), securities, bars, repo, marketcal.NewService(), bus, log)
	return svc, repo, bus
}

func TestServiceRunPersistsAndEmits(t *testing.T) {
	svc, repo, bus := setupBacktestService(t)

	var completed []*events.Event
	bus.Subscribe(events.BacktestCompleted, func(e *events.Event) {
		completed = append(completed, e)
	})

	out, err := svc.Run(Params{
		Start:          time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
		End:            time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC),
		InitialCapital: 1e9,
	})
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.NotEmpty(t, out.Run.ID)
	assert.False(t, out.Run.CreatedAt.IsZero())
	assert.Greater(t, out.Run.FinalEquity, 0.0)
	assert.NotEmpty(t, out.Curve)

	saved, err := repo.GetRun(out.Run.ID)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, out.Run.Trades, saved.Trades)

	trades, err := repo.TradesByRun(out.Run.ID)
	require.NoError(t, err)
	assert.Len(t, trades, len(out.Trades))

	require.Len(t, completed, 1)
	assert.Equal(t, out.Run.ID, completed[0].Data["run_id"])
}

func TestServiceRunScopedToRequestedSymbols(t *testing.T) {
	svc, _, _ := setupBacktestService(t)

	out, err := svc.Run(Params{
		Start:   time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
		End:     time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		Symbols: []string{"vcb"},
	})
	require.NoError(t, err)

	for _, trade := range out.Trades {
		assert.Equal(t, "VCB", trade.Symbol)
	}
	for _, gap := range out.Gaps {
		assert.Equal(t, "VCB", gap.Symbol)
	}
}

func TestServiceRunWithoutHistoryFails(t *testing.T) {
	svc, _, _ := setupBacktestService(t)

	_, err := svc.Run(Params{
		Start:   time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
		End:     time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		Symbols: []string{"SSI"},
	})
	assert.ErrorContains(t, err, "no price history")
}

func TestServiceRunRejectsInvertedRange(t *testing.T) {
	svc, _, _ := setupBacktestService(t)

	_, err := svc.Run(Params{
		Start: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorContains(t, err, "ends before it starts")
}

func TestServiceGetRunRoundTrip(t *testing.T) {
	svc, repo, _ := setupBacktestService(t)

	want := sampleRun("run-api", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, repo.SaveRun(want))
	require.NoError(t, repo.SaveTrades([]Trade{sampleTrade("run-api-0001", "run-api", "VCB")}))

	run, trades, err := svc.GetRun("run-api")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "run-api", run.ID)
	assert.Len(t, trades, 1)

	missing, _, err := svc.GetRun("absent")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
