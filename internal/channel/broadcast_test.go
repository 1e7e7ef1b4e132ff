package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_FanOut(t *testing.T) {
	b := NewBroadcaster[int]()
	a, cancelA := b.Subscribe(4)
	c, cancelC := b.Subscribe(4)
	defer cancelA()
	defer cancelC()

	assert.Equal(t, 2, b.Publish(7))
	assert.Equal(t, 7, <-a)
	assert.Equal(t, 7, <-c)
	assert.Equal(t, 2, b.Len())
}

func TestBroadcaster_SlowSubscriberDrops(t *testing.T) {
	b := NewBroadcaster[int]()
	ch, cancel := b.Subscribe(1)
	defer cancel()

	assert.Equal(t, 1, b.Publish(1))
	assert.Equal(t, 0, b.Publish(2))
	assert.Equal(t, 1, <-ch)

	stats := b.Stats()
	assert.Equal(t, int64(2), stats.Published)
	assert.Equal(t, int64(1), stats.Dropped)
}

func TestBroadcaster_CancelClosesChannel(t *testing.T) {
	b := NewBroadcaster[string]()
	ch, cancel := b.Subscribe(0)
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 0, b.Publish("x"))
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster[string]()
	ch, cancel := b.Subscribe(1)
	b.Close()
	b.Close()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)

	late, _ := b.Subscribe(1)
	_, ok = <-late
	require.False(t, ok)
}
