package universe

import (
	"testing"

	"github.com/quangtd/vnsentry/internal/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestService(t *testing.T) (*Service, *events.Bus) {
	t.Helper()

	db := setupTestDB(t)
	bus := events.NewBus(zerolog.Nop())
	svc := NewService(
		NewSecurityRepository(db, zerolog.Nop()),
		NewFactsRepository(db, zerolog.Nop()),
		bus,
		zerolog.Nop(),
	)
	return svc, bus
}

func TestServiceAddSecurityDefaults(t *testing.T) {
	svc, bus := setupTestService(t)

	var added []*events.Event
	bus.Subscribe(events.SecurityAdded, func(e *events.Event) { added = append(added, e) })

	sec, err := svc.AddSecurity(Security{Symbol: " vcb ", Name: "Vietcombank", Sector: "Banking"})
	require.NoError(t, err)

	assert.Equal(t, "VCB", sec.Symbol)
	assert.Equal(t, "banking", sec.Sector)
	assert.Equal(t, "HOSE", sec.Exchange)
	assert.Equal(t, 100, sec.LotSize)
	assert.True(t, sec.Active)

	require.Len(t, added, 1)
	assert.Equal(t, "VCB", added[0].Data["symbol"])

	// Re-adding the same symbol updates without a second event.
	_, err = svc.AddSecurity(Security{Symbol: "VCB", Name: "Vietcombank JSC", Sector: "banking"})
	require.NoError(t, err)
	assert.Len(t, added, 1)
}

func TestServiceAddSecurityValidation(t *testing.T) {
	svc, _ := setupTestService(t)

	tests := []struct {
		name string
		sec  Security
	}{
		{"empty symbol", Security{Name: "X", Sector: "banking"}},
		{"symbol too long", Security{Symbol: "ABCDEFGHIJKL", Name: "X", Sector: "banking"}},
		{"lowercase rejected after trim", Security{Symbol: "a!", Name: "X", Sector: "banking"}},
		{"missing name", Security{Symbol: "VCB", Sector: "banking"}},
		{"missing sector", Security{Symbol: "VCB", Name: "Vietcombank"}},
		{"negative lot", Security{Symbol: "VCB", Name: "Vietcombank", Sector: "banking", LotSize: -100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddSecurity(tt.sec)
			assert.Error(t, err)
		})
	}
}

func TestServiceUpdateFactsRequiresSecurity(t *testing.T) {
	svc, _ := setupTestService(t)

	err := svc.UpdateFacts(SecurityFacts{Symbol: "VCB", IsBankingLeader: true})
	assert.Error(t, err)

	_, err = svc.AddSecurity(Security{Symbol: "VCB", Name: "Vietcombank", Sector: "banking"})
	require.NoError(t, err)

	require.NoError(t, svc.UpdateFacts(SecurityFacts{Symbol: "VCB", IsBankingLeader: true}))

	got, err := svc.Get("VCB")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.Facts)
	assert.True(t, got.Facts.IsBankingLeader)
}

func TestServiceListAttachesFacts(t *testing.T) {
	svc, _ := setupTestService(t)

	_, err := svc.AddSecurity(Security{Symbol: "VCB", Name: "Vietcombank", Sector: "banking"})
	require.NoError(t, err)
	_, err = svc.AddSecurity(Security{Symbol: "FPT", Name: "FPT Corp", Sector: "technology"})
	require.NoError(t, err)
	require.NoError(t, svc.UpdateFacts(SecurityFacts{Symbol: "VCB", IsStateOwned: true}))

	list, err := svc.List()
	require.NoError(t, err)
	require.Len(t, list, 2)

	// Sorted by symbol: FPT has no facts, VCB does.
	assert.Equal(t, "FPT", list[0].Symbol)
	assert.Nil(t, list[0].Facts)
	assert.Equal(t, "VCB", list[1].Symbol)
	require.NotNil(t, list[1].Facts)
	assert.True(t, list[1].Facts.IsStateOwned)
}
