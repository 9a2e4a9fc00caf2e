package alerts

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupTestRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, InitSchema(db))
	return NewRepository(db, zerolog.Nop())
}

func sampleAlert(symbol string, alertType Type, createdAt time.Time, ttl time.Duration) *Alert {
	return &Alert{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Type:      alertType,
		Severity:  SeverityInfo,
		Message:   symbol + " test alert",
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(ttl),
	}
}

func TestRepositoryActiveExcludesExpired(t *testing.T) {
	repo := setupTestRepo(t)
	now := time.Date(2025, 4, 7, 10, 0, 0, 0, time.UTC)

	live := sampleAlert("VCB", TypeStrongSignal, now.Add(-time.Hour), 4*time.Hour)
	dead := sampleAlert("FPT", TypeBreakout, now.Add(-6*time.Hour), 4*time.Hour)
	require.NoError(t, repo.Save(live))
	require.NoError(t, repo.Save(dead))

	active, err := repo.Active(now)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, live.ID, active[0].ID)
	assert.Equal(t, "VCB", active[0].Symbol)
	assert.Equal(t, TypeStrongSignal, active[0].Type)
	assert.True(t, active[0].ExpiresAt.After(now))
}

func TestRepositoryActiveNewestFirst(t *testing.T) {
	repo := setupTestRepo(t)
	now := time.Date(2025, 4, 7, 10, 0, 0, 0, time.UTC)

	older := sampleAlert("VCB", TypeStrongSignal, now.Add(-2*time.Hour), 8*time.Hour)
	newer := sampleAlert("HPG", TypeRiskWarning, now.Add(-time.Hour), 8*time.Hour)
	require.NoError(t, repo.Save(older))
	require.NoError(t, repo.Save(newer))

	active, err := repo.Active(now)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "HPG", active[0].Symbol)
	assert.Equal(t, "VCB", active[1].Symbol)
}

func TestRepositoryHasUnexpired(t *testing.T) {
	repo := setupTestRepo(t)
	now := time.Date(2025, 4, 7, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save(sampleAlert("VCB", TypeStrongSignal, now.Add(-time.Hour), 4*time.Hour)))

	exists, err := repo.HasUnexpired("VCB", TypeStrongSignal, now)
	require.NoError(t, err)
	assert.True(t, exists)

	// Same symbol, different type.
	exists, err = repo.HasUnexpired("VCB", TypeBreakout, now)
	require.NoError(t, err)
	assert.False(t, exists)

	// Same type, different symbol.
	exists, err = repo.HasUnexpired("FPT", TypeStrongSignal, now)
	require.NoError(t, err)
	assert.False(t, exists)

	// Past the expiry the pair is free again.
	exists, err = repo.HasUnexpired("VCB", TypeStrongSignal, now.Add(4*time.Hour))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRepositoryPurgeExpired(t *testing.T) {
	repo := setupTestRepo(t)
	now := time.Date(2025, 4, 7, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save(sampleAlert("VCB", TypeStrongSignal, now.Add(-8*time.Hour), 4*time.Hour)))
	require.NoError(t, repo.Save(sampleAlert("FPT", TypeBreakout, now.Add(-5*time.Hour), 4*time.Hour)))
	require.NoError(t, repo.Save(sampleAlert("HPG", TypeRiskWarning, now.Add(-time.Hour), 4*time.Hour)))

	deleted, err := repo.PurgeExpired(now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	active, err := repo.Active(now)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "HPG", active[0].Symbol)

	// Second sweep finds nothing.
	deleted, err = repo.PurgeExpired(now)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestRepositoryRoundTripPreservesFields(t *testing.T) {
	repo := setupTestRepo(t)
	created := time.Date(2025, 4, 7, 9, 30, 15, 0, time.UTC)

	want := &Alert{
		ID:        uuid.NewString(),
		Symbol:    "technology",
		Type:      TypeSectorRotation,
		Severity:  SeverityInfo,
		Message:   "technology scoring 12.4 points over banking, consider rotating",
		CreatedAt: created,
		ExpiresAt: created.Add(4 * time.Hour),
	}
	require.NoError(t, repo.Save(want))

	active, err := repo.Active(created)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, *want, active[0])
}
