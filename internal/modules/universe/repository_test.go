package universe

import (
	"database/sql"
	"testing"
	"time"

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

func TestSecurityRepositoryUpsertAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSecurityRepository(db, zerolog.Nop())

	created, err := repo.Upsert(Security{
		Symbol:   "VCB",
		Name:     "Vietcombank",
		Sector:   "banking",
		Exchange: "HOSE",
		LotSize:  100,
		Active:   true,
	})
	require.NoError(t, err)
	assert.True(t, created)

	sec, err := repo.GetBySymbol("vcb")
	require.NoError(t, err)
	require.NotNil(t, sec)
	assert.Equal(t, "VCB", sec.Symbol)
	assert.Equal(t, "banking", sec.Sector)
	assert.Equal(t, 100, sec.LotSize)
	assert.True(t, sec.Active)
	assert.False(t, sec.AddedAt.IsZero())

	// Second upsert updates in place.
	created, err = repo.Upsert(Security{
		Symbol:   "VCB",
		Name:     "Vietcombank JSC",
		Sector:   "banking",
		Exchange: "HOSE",
		LotSize:  100,
		Active:   true,
	})
	require.NoError(t, err)
	assert.False(t, created)

	sec, err = repo.GetBySymbol("VCB")
	require.NoError(t, err)
	assert.Equal(t, "Vietcombank JSC", sec.Name)
}

func TestSecurityRepositoryUnknownSymbol(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSecurityRepository(db, zerolog.Nop())

	sec, err := repo.GetBySymbol("XXX")
	require.NoError(t, err)
	assert.Nil(t, sec)
}

func TestSecurityRepositorySectorsAndFilter(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSecurityRepository(db, zerolog.Nop())

	seed := []Security{
		{Symbol: "VCB", Name: "Vietcombank", Sector: "banking", Exchange: "HOSE", LotSize: 100, Active: true},
		{Symbol: "CTG", Name: "VietinBank", Sector: "banking", Exchange: "HOSE", LotSize: 100, Active: true},
		{Symbol: "FPT", Name: "FPT Corp", Sector: "technology", Exchange: "HOSE", LotSize: 100, Active: true},
		{Symbol: "HPG", Name: "Hoa Phat", Sector: "steel", Exchange: "HOSE", LotSize: 100, Active: true},
	}
	for _, s := range seed {
		_, err := repo.Upsert(s)
		require.NoError(t, err)
	}
	require.NoError(t, repo.Deactivate("HPG"))

	sectors, err := repo.Sectors()
	require.NoError(t, err)
	assert.Equal(t, []string{"banking", "technology"}, sectors)

	banks, err := repo.GetBySector("banking")
	require.NoError(t, err)
	require.Len(t, banks, 2)
	assert.Equal(t, "CTG", banks[0].Symbol)
	assert.Equal(t, "VCB", banks[1].Symbol)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestSecurityRepositoryDeactivateUnknown(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSecurityRepository(db, zerolog.Nop())

	err := repo.Deactivate("XXX")
	assert.Error(t, err)
}

func TestFactsRepositoryRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	secRepo := NewSecurityRepository(db, zerolog.Nop())
	factsRepo := NewFactsRepository(db, zerolog.Nop())

	_, err := secRepo.Upsert(Security{
		Symbol: "VCB", Name: "Vietcombank", Sector: "banking", Exchange: "HOSE", LotSize: 100, Active: true,
	})
	require.NoError(t, err)

	exDiv := time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, factsRepo.Upsert(SecurityFacts{
		Symbol:             "VCB",
		IsBankingLeader:    true,
		HasForeignInterest: true,
		ExDividendDate:     &exDiv,
	}))

	facts, err := factsRepo.Get("VCB")
	require.NoError(t, err)
	require.NotNil(t, facts)
	assert.True(t, facts.IsBankingLeader)
	assert.True(t, facts.HasForeignInterest)
	assert.False(t, facts.IsStateOwned)
	require.NotNil(t, facts.ExDividendDate)
	assert.Equal(t, "2025-09-15", facts.ExDividendDate.Format("2006-01-02"))

	// Update flips flags and clears the dividend date.
	require.NoError(t, factsRepo.Upsert(SecurityFacts{
		Symbol:          "VCB",
		IsBankingLeader: true,
		IsStateOwned:    true,
	}))

	facts, err = factsRepo.Get("VCB")
	require.NoError(t, err)
	assert.True(t, facts.IsStateOwned)
	assert.Nil(t, facts.ExDividendDate)

	all, err := factsRepo.GetAll()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestFactsRepositoryMissing(t *testing.T) {
	db := setupTestDB(t)
	factsRepo := NewFactsRepository(db, zerolog.Nop())

	facts, err := factsRepo.Get("VCB")
	require.NoError(t, err)
	assert.Nil(t, facts)
}
