package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeRoundTrip(t *testing.T) {
	msg := Message{Type: "redeemed", Body: []byte(`{"student_id":7,"date":"2025-09-01"}`)}

	got, err := deserialize(serialize(msg))
	require.NoError(t, err)
	assert.Equal(t, msg.Type, got.Type)
	assert.Equal(t, msg.Body, got.Body)
}

func TestDeserializeBodyWithSeparator(t *testing.T) {
	// Only the first separator splits; the body may contain more.
	got, err := deserialize("redeemed|a|b|c")
	require.NoError(t, err)
	assert.Equal(t, "redeemed", got.Type)
	assert.Equal(t, []byte("a|b|c"), got.Body)
}

func TestDeserializeNoSeparator(t *testing.T) {
	got, err := deserialize("just-a-body")
	require.NoError(t, err)
	assert.Empty(t, got.Type)
	assert.Equal(t, []byte("just-a-body"), got.Body)
}

func TestInMemoryPublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	messages, err := q.Consume(ctx)
	require.NoError(t, err)

	want := Message{Type: "redeemed", Body: []byte("payload")}
	require.NoError(t, q.Publish(ctx, want))

	select {
	case got := <-messages:
		assert.Equal(t, want, got)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestInMemoryPublishCancelled(t *testing.T) {
	q := NewInMemory(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := q.Publish(ctx, Message{Type: "redeemed"})
	assert.ErrorIs(t, err, context.Canceled)
}
