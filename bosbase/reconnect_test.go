package bosbase

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestBackoffSchedule(t *testing.T) {
	backoff := NewBackoff(DefaultReconnectSchedule())

	expected := []time.Duration{
		200 * time.Millisecond,
		500 * time.Millisecond,
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		5000 * time.Millisecond,
		5000 * time.Millisecond,
		5000 * time.Millisecond,
	}
	for _, delay := range expected {
		assert.Equal(t, backoff.Next(), delay)
	}
	assert.Equal(t, backoff.Attempts(), len(expected))

	backoff.Reset()
	assert.Equal(t, backoff.Attempts(), 0)
	assert.Equal(t, backoff.Next(), 200*time.Millisecond)
}

func TestBackoffDefaults(t *testing.T) {
	backoff := NewBackoff(nil)
	assert.Equal(t, backoff.Next(), 200*time.Millisecond)

	fixed := NewFixedBackoff(300 * time.Millisecond)
	for range 4 {
		assert.Equal(t, fixed.Next(), 300*time.Millisecond)
	}
}

func TestBackoffWait(t *testing.T) {
	backoff := NewFixedBackoff(10 * time.Millisecond)
	assert.Equal(t, backoff.Wait(context.Background()), true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	backoff = NewFixedBackoff(time.Hour)
	assert.Equal(t, backoff.Wait(ctx), false)
}
