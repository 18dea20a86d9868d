package eventbus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knograph/kgcoord/kg"
)

func TestLocalBusDeliversInSubscriptionOrder(t *testing.T) {
	bus := NewLocalBus()
	var order []string

	bus.Subscribe("create_entity", func(ctx context.Context, event kg.KnowledgeEvent) error {
		order = append(order, "first")
		return nil
	})
	bus.Subscribe("create_entity", func(ctx context.Context, event kg.KnowledgeEvent) error {
		order = append(order, "second")
		return nil
	})

	event, err := kg.NewEvent("create_entity", map[string]any{"id": "x"}, kg.RoleDataEngineer)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), event))
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestLocalBusHandlerErrorStopsDelivery(t *testing.T) {
	bus := NewLocalBus()
	boom := errors.New("boom")
	secondRan := false

	bus.Subscribe("create_entity", func(ctx context.Context, event kg.KnowledgeEvent) error {
		return boom
	})
	bus.Subscribe("create_entity", func(ctx context.Context, event kg.KnowledgeEvent) error {
		secondRan = true
		return nil
	})

	event, err := kg.NewEvent("create_entity", nil, kg.RoleDataEngineer)
	require.NoError(t, err)
	assert.ErrorIs(t, bus.Publish(context.Background(), event), boom)
	assert.False(t, secondRan)
}

func TestLocalBusDropsUnsubscribedActions(t *testing.T) {
	bus := NewLocalBus()
	event, err := kg.NewEvent("unknown_action", nil, kg.RoleSystemAdmin)
	require.NoError(t, err)
	assert.NoError(t, bus.Publish(context.Background(), event))
}

func TestNewDefaultsToLocalBus(t *testing.T) {
	bus, err := New(Options{})
	require.NoError(t, err)
	_, isLocal := bus.(*LocalBus)
	assert.True(t, isLocal)
	assert.NoError(t, bus.Close())
}
