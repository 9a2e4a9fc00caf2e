package events

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDispatchesToSubscribedTypeOnly(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var signals []*Event
	var alerts []*Event

	bus.Subscribe(SignalGenerated, func(e *Event) { signals = append(signals, e) })
	bus.Subscribe(AlertRaised, func(e *Event) { alerts = append(alerts, e) })

	bus.Emit(SignalGenerated, "signals", map[string]interface{}{"symbol": "VCB"})
	bus.Emit(SignalGenerated, "signals", map[string]interface{}{"symbol": "FPT"})
	bus.Emit(CycleCompleted, "scheduler", nil)

	require.Len(t, signals, 2)
	assert.Empty(t, alerts)
	assert.Equal(t, "VCB", signals[0].Data["symbol"])
	assert.Equal(t, "signals", signals[0].Module)
	assert.False(t, signals[0].Timestamp.IsZero())
}

func TestBusMultipleHandlersPerType(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	calls := 0
	bus.Subscribe(PortfolioChanged, func(e *Event) { calls++ })
	bus.Subscribe(PortfolioChanged, func(e *Event) { calls++ })

	bus.Emit(PortfolioChanged, "portfolio", nil)

	assert.Equal(t, 2, calls)
}

func TestBusEmitError(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var got *Event
	bus.Subscribe(ErrorOccurred, func(e *Event) { got = e })

	bus.EmitError("history", fmt.Errorf("gap in series"), map[string]interface{}{"symbol": "HPG"})

	require.NotNil(t, got)
	assert.Equal(t, "gap in series", got.Data["error"])
	ctx, ok := got.Data["context"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "HPG", ctx["symbol"])
}
