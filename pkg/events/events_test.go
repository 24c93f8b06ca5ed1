package events_test

import (
	"context"
	"testing"
	"time"

	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus(t *testing.T) {
	t.Run("DeliversToSubscriber", func(t *testing.T) {
		bus := events.NewBus()
		defer bus.Close()

		got := make(chan events.Event, 1)
		require.NoError(t, bus.Subscribe(events.StepReady, func(_ context.Context, ev events.Event) error {
			got <- ev
			return nil
		}))
		require.NoError(t, bus.Publish(context.Background(), events.Event{Key: events.StepReady, OrderID: "o1", StepIDs: []string{"s2"}}))

		select {
		case ev := <-got:
			assert.Equal(t, "o1", ev.OrderID)
			assert.Equal(t, []string{"s2"}, ev.StepIDs)
		case <-time.After(2 * time.Second):
			t.Fatal("event not delivered")
		}
	})

	t.Run("SubscribeAll", func(t *testing.T) {
		bus := events.NewBus()
		defer bus.Close()

		got := make(chan events.Event, len(events.Keys))
		require.NoError(t, bus.SubscribeAll(func(_ context.Context, ev events.Event) error {
			got <- ev
			return nil
		}))
		require.NoError(t, bus.Publish(context.Background(), events.Event{Key: events.OrderCompleted}))
		require.NoError(t, bus.Publish(context.Background(), events.Event{Key: events.WorkUnitCompleted}))

		seen := map[string]bool{}
		for i := 0; i < 2; i++ {
			select {
			case ev := <-got:
				seen[string(ev.Key)] = true
			case <-time.After(2 * time.Second):
				t.Fatal("event not delivered")
			}
		}
		assert.True(t, seen["order.completed"])
		assert.True(t, seen["work_unit.completed"])
	})

	t.Run("EmptyKey", func(t *testing.T) {
		bus := events.NewBus()
		defer bus.Close()
		assert.Error(t, bus.Publish(context.Background(), events.Event{}))
	})
}
