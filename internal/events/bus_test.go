package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus()

	var got []*Event
	bus.Subscribe(DrawerOpened, func(ev *Event) {
		got = append(got, ev)
	})

	var all []*Event
	bus.SubscribeAll(func(ev *Event) {
		all = append(all, ev)
	})

	bus.Emit(New(DrawerOpened, "ana", nil))
	bus.Emit(New(DrawerClosed, "ana", nil))

	assert.Len(t, got, 1)
	assert.Equal(t, DrawerOpened, got[0].Type)
	assert.Len(t, all, 2)
}

func TestBusDropsInvalidEvents(t *testing.T) {
	bus := NewBus()

	delivered := 0
	bus.SubscribeAll(func(*Event) { delivered++ })

	bus.Emit(nil)
	bus.Emit(&Event{Type: "nonsense"})

	assert.Zero(t, delivered)
}

func TestBusSurvivesPanickingHandler(t *testing.T) {
	bus := NewBus()

	bus.Subscribe(RateUpdated, func(*Event) { panic("boom") })

	reached := false
	bus.Subscribe(RateUpdated, func(*Event) { reached = true })

	bus.Emit(New(RateUpdated, "", &RateUpdatedData{Rate: "36.50"}))

	assert.True(t, reached, "handlers after a panic still run")
}
