package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFanOut(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(1)
	defer unsubC()

	b.Publish(Event{Type: "x"})
	assert.Equal(t, "x", (<-a).Type)
	e := <-c
	assert.Equal(t, "x", e.Type)
	assert.False(t, e.Time.IsZero())

	unsubA()
	_, ok := <-a
	assert.False(t, ok)
	b.Publish(Event{Type: "y"})
	assert.Equal(t, "y", (<-c).Type)
}

func TestPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(Event{Type: "x"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked")
	}
}

func TestConsume(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan string, 1)
	stopped := make(chan struct{})
	go func() {
		Consume(ctx, b, 4, func(e Event) {
			select {
			case got <- e.Type:
			default:
			}
		})
		close(stopped)
	}()
	require.Eventually(t, func() bool {
		b.Publish(Event{Type: "fsub.muted"})
		select {
		case v := <-got:
			return v == "fsub.muted"
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
	cancel()
	<-stopped
}
