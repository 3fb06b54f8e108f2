package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewInMemory(4)

	msg, err := NewMediaDelete(MediaDelete{Path: "logs/s1/1_a.png", EntryID: "e1", Attempts: 1})
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, msg))
	assert.Equal(t, 1, q.Len())

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	select {
	case got := <-ch:
		md, err := DecodeMediaDelete(got)
		require.NoError(t, err)
		assert.Equal(t, "logs/s1/1_a.png", md.Path)
		assert.Equal(t, 1, md.Attempts)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestDecodeMediaDeleteWrongType(t *testing.T) {
	_, err := DecodeMediaDelete(Message{Type: "other", Body: []byte(`{}`)})
	assert.Error(t, err)
}

func TestPublishHonorsContext(t *testing.T) {
	q := NewInMemory(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, q.Publish(ctx, Message{Type: TypeMediaDelete}), context.Canceled)
}

func TestPublishFullQueueDoesNotBlock(t *testing.T) {
	q := NewInMemory(1)
	ctx := context.Background()
	require.NoError(t, q.Publish(ctx, Message{Type: TypeMediaDelete}))

	done := make(chan error, 1)
	go func() { done <- q.Publish(ctx, Message{Type: TypeMediaDelete}) }()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrFull)
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full queue")
	}
	assert.Equal(t, 1, q.Len())
}
