package comms

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryChannelFIFO(t *testing.T) {
	ctx := context.Background()
	channel := NewInMemoryChannel()

	require.NoError(t, channel.Send(ctx, NewMessage("a", "b", "first", nil)))
	require.NoError(t, channel.Send(ctx, NewMessage("a", "b", "second", nil)))

	msg, err := channel.Receive(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "first", msg.Content)
	assert.Equal(t, "a", msg.SenderID)

	msg, err = channel.Receive(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "second", msg.Content)
}

func TestReceiveEmptyMailbox(t *testing.T) {
	channel := NewInMemoryChannel()
	_, err := channel.Receive(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNoMessage)
}

func TestDrain(t *testing.T) {
	ctx := context.Background()
	channel := NewInMemoryChannel()
	require.NoError(t, channel.Send(ctx, NewMessage("a", "b", 1, nil)))
	require.NoError(t, channel.Send(ctx, NewMessage("a", "b", 2, nil)))

	messages, err := channel.Drain(ctx, "b")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, 1, messages[0].Content)

	_, err = channel.Receive(ctx, "b")
	assert.ErrorIs(t, err, ErrNoMessage)
}

func TestMessageType(t *testing.T) {
	msg := NewMessage("a", "b", nil, map[string]any{"type": "escalate_operation"})
	assert.Equal(t, "escalate_operation", msg.Type())
	assert.Empty(t, NewMessage("a", "b", nil, nil).Type())
	assert.NotEmpty(t, msg.ID)
}

func TestSendHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewInMemoryChannel().Send(ctx, NewMessage("a", "b", nil, nil))
	assert.Error(t, err)
}
