package settings

import (
	"database/sql"
	"testing"

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

func TestRepositorySetGetRoundTrip(t *testing.T) {
	repo := setupTestRepo(t)

	require.NoError(t, repo.Set("risk.position_cap", "0.12", nil))

	got, err := repo.Get("risk.position_cap")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "0.12", *got)

	missing, err := repo.Get("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepositorySetUpdatesExisting(t *testing.T) {
	repo := setupTestRepo(t)
	desc := "per-trade risk budget"

	require.NoError(t, repo.Set("risk.risk_per_trade", "0.01", &desc))
	require.NoError(t, repo.Set("risk.risk_per_trade", "0.02", nil))

	got, err := repo.Get("risk.risk_per_trade")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "0.02", *got)

	all, err := repo.GetAll()
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, "0.02", all["risk.risk_per_trade"])
}

func TestRepositoryTypedGetters(t *testing.T) {
	repo := setupTestRepo(t)

	require.NoError(t, repo.Set("f", "0.25", nil))
	require.NoError(t, repo.Set("i", "12.0", nil))
	require.NoError(t, repo.Set("b", "yes", nil))
	require.NoError(t, repo.Set("garbage", "not-a-number", nil))

	f, err := repo.GetFloat("f", 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, f, 1e-9)

	// Absent and unparseable both fall back.
	f, err = repo.GetFloat("absent", 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, f, 1e-9)
	f, err = repo.GetFloat("garbage", 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, f, 1e-9)

	i, err := repo.GetInt("i", 7)
	require.NoError(t, err)
	assert.Equal(t, 12, i)

	b, err := repo.GetBool("b", false)
	require.NoError(t, err)
	assert.True(t, b)
	b, err = repo.GetBool("garbage", true)
	require.NoError(t, err)
	assert.False(t, b)
	b, err = repo.GetBool("absent", true)
	require.NoError(t, err)
	assert.True(t, b)
}

func TestRepositoryDelete(t *testing.T) {
	repo := setupTestRepo(t)

	require.NoError(t, repo.Set("market.earnings_season", "true", nil))
	require.NoError(t, repo.Delete("market.earnings_season"))

	got, err := repo.Get("market.earnings_season")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Deleting a missing key is fine.
	require.NoError(t, repo.Delete("market.earnings_season"))
}
