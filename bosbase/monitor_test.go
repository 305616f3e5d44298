package bosbase

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestMonitor(t *testing.T) {
	ctx := context.Background()
	m := newMonitor()

	assert.Equal(t, m.IsSet(), false)
	assert.Equal(t, m.Wait(ctx, 10*time.Millisecond), false)

	go func() {
		time.Sleep(20 * time.Millisecond)
		m.Set()
	}()
	assert.Equal(t, m.Wait(ctx, 5*time.Second), true)
	assert.Equal(t, m.IsSet(), true)

	// set is level triggered
	m.Set()
	assert.Equal(t, m.Wait(ctx, time.Millisecond), true)

	m.Clear()
	assert.Equal(t, m.IsSet(), false)
	assert.Equal(t, m.Wait(ctx, 10*time.Millisecond), false)
}

func TestMonitorContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := newMonitor()
	assert.Equal(t, m.Wait(ctx, time.Hour), false)
}
