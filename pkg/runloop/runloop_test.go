package runloop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManual_FramesRunInOrder(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	var got []int
	m.RequestFrame(func() { got = append(got, 1) })
	m.RequestFrame(func() {
		got = append(got, 2)
		m.RequestFrame(func() { got = append(got, 3) })
	})

	assert.Equal(t, 2, m.PendingFrames())
	assert.Equal(t, 2, m.RunFrame())
	assert.Equal(t, []int{1, 2}, got)
	assert.Equal(t, 1, m.PendingFrames())
	assert.Equal(t, 1, m.RunFrame())
	assert.Equal(t, []int{1, 2, 3}, got)
	assert.Equal(t, 3, m.FramesRun)
}

func TestManual_AdvanceFiresTickers(t *testing.T) {
	start := time.Unix(0, 0)
	m := NewManual(start)
	var fired []time.Duration
	var tk Ticker
	tk = m.Every(200*time.Millisecond, func() {
		fired = append(fired, m.Now().Sub(start))
		if len(fired) == 3 {
			tk.Stop()
		}
	})

	m.Advance(time.Second)
	assert.Equal(t, []time.Duration{200 * time.Millisecond, 400 * time.Millisecond, 600 * time.Millisecond}, fired)
	assert.Equal(t, 0, m.ActiveTickers())
	assert.Equal(t, start.Add(time.Second), m.Now())
}

func TestEventLoop_DoAndFrames(t *testing.T) {
	l := New(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- l.Run(ctx) }()

	frameRan := make(chan struct{})
	l.Do(func() {
		l.RequestFrame(func() { close(frameRan) })
	})

	select {
	case <-frameRan:
	case <-time.After(2 * time.Second):
		t.Fatal("frame callback never ran")
	}

	ticks := make(chan struct{}, 8)
	var tk Ticker
	l.Do(func() {
		tk = l.Every(time.Millisecond, func() {
			select {
			case ticks <- struct{}{}:
			default:
			}
		})
	})
	select {
	case <-ticks:
	case <-time.After(2 * time.Second):
		t.Fatal("ticker never fired")
	}
	tk.Stop()

	l.Close()
	require.NoError(t, <-errc)
}
