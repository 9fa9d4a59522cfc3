// Package runloop provides the single-threaded cooperative loop the engine
// runs on. Every callback handed to a Loop runs on one goroutine, so state
// owned by loop callbacks needs no locking.
package runloop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Loop schedules work on a single logical thread.
type Loop interface {
	// Post runs fn later on the loop, after the current callback returns.
	Post(fn func())
	// RequestFrame runs fn on the next display-refresh tick.
	RequestFrame(fn func())
	// Every runs fn periodically until the returned Ticker is stopped.
	Every(d time.Duration, fn func()) Ticker
	// Now returns the loop's notion of the current time.
	Now() time.Time
}

// Ticker is a periodic callback registration.
type Ticker interface {
	Stop()
}

// EventLoop is the production Loop: one goroutine selecting over posted
// tasks, a frame ticker and periodic tickers.
type EventLoop struct {
	frameInterval time.Duration

	mu     sync.Mutex
	tasks  []func()
	frames []func()

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New creates an EventLoop whose frames fire every frameInterval (16ms if
// frameInterval <= 0).
func New(frameInterval time.Duration) *EventLoop {
	if frameInterval <= 0 {
		frameInterval = 16 * time.Millisecond // ~60 FPS
	}
	return &EventLoop{
		frameInterval: frameInterval,
		wake:          make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
}

func (l *EventLoop) Post(fn func()) {
	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *EventLoop) RequestFrame(fn func()) {
	l.mu.Lock()
	l.frames = append(l.frames, fn)
	l.mu.Unlock()
}

func (l *EventLoop) Every(d time.Duration, fn func()) Ticker {
	t := &periodic{stop: make(chan struct{})}
	go func() {
		tk := time.NewTicker(d)
		defer tk.Stop()
		for {
			select {
			case <-tk.C:
				l.Post(func() {
					if !t.stopped.Load() {
						fn()
					}
				})
			case <-t.stop:
				return
			case <-l.done:
				return
			}
		}
	}()
	return t
}

func (l *EventLoop) Now() time.Time { return time.Now() }

// Run drives the loop until ctx is cancelled or Close is called.
func (l *EventLoop) Run(ctx context.Context) error {
	frame := time.NewTicker(l.frameInterval)
	defer frame.Stop()

	for {
		l.drain()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		case <-l.wake:
		case <-frame.C:
			l.runFrame()
		}
	}
}

// Do runs fn on the loop and waits for it to finish. It must not be called
// from the loop goroutine.
func (l *EventLoop) Do(fn func()) {
	finished := make(chan struct{})
	l.Post(func() {
		defer close(finished)
		fn()
	})
	select {
	case <-finished:
	case <-l.done:
	}
}

// Close stops the loop. Pending tasks are discarded.
func (l *EventLoop) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}

func (l *EventLoop) drain() {
	for {
		l.mu.Lock()
		if len(l.tasks) == 0 {
			l.mu.Unlock()
			return
		}
		task := l.tasks[0]
		l.tasks = l.tasks[1:]
		l.mu.Unlock()
		task()
	}
}

func (l *EventLoop) runFrame() {
	l.mu.Lock()
	frames := l.frames
	l.frames = nil
	l.mu.Unlock()

	for _, fn := range frames {
		fn()
		l.drain()
	}
}

type periodic struct {
	stopped atomic.Bool
	once    sync.Once
	stop    chan struct{}
}

func (p *periodic) Stop() {
	p.once.Do(func() {
		p.stopped.Store(true)
		close(p.stop)
	})
}
