package runloop

import "time"

// Manual is a deterministic Loop driven by its caller, used by tests and
// one-shot tools. Nothing runs until the caller calls Flush, RunFrame or
// Advance.
type Manual struct {
	now     time.Time
	tasks   []func()
	frames  []func()
	tickers []*manualTicker

	// FramesRun counts frame callbacks executed so far.
	FramesRun int
}

// NewManual creates a Manual loop whose clock starts at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Post(fn func())         { m.tasks = append(m.tasks, fn) }
func (m *Manual) RequestFrame(fn func()) { m.frames = append(m.frames, fn) }
func (m *Manual) Now() time.Time         { return m.now }

func (m *Manual) Every(d time.Duration, fn func()) Ticker {
	t := &manualTicker{interval: d, next: m.now.Add(d), fn: fn}
	m.tickers = append(m.tickers, t)
	return t
}

// Flush runs posted tasks until none remain.
func (m *Manual) Flush() {
	for len(m.tasks) > 0 {
		task := m.tasks[0]
		m.tasks = m.tasks[1:]
		task()
	}
}

// RunFrame flushes posted tasks, then runs the frame callbacks requested so
// far. It returns how many frame callbacks ran.
func (m *Manual) RunFrame() int {
	m.Flush()
	frames := m.frames
	m.frames = nil
	for _, fn := range frames {
		fn()
		m.FramesRun++
		m.Flush()
	}
	return len(frames)
}

// RunFrames runs frames until none are pending or limit is reached, returning
// the number of frame ticks that had work.
func (m *Manual) RunFrames(limit int) int {
	ticks := 0
	for ticks < limit {
		m.Flush()
		if len(m.frames) == 0 {
			break
		}
		m.RunFrame()
		ticks++
	}
	return ticks
}

// PendingFrames returns the number of requested frame callbacks.
func (m *Manual) PendingFrames() int { return len(m.frames) }

// ActiveTickers returns the number of periodic callbacks not yet stopped.
func (m *Manual) ActiveTickers() int {
	n := 0
	for _, t := range m.tickers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, firing periodic callbacks at their
// due times and flushing posted tasks after each.
func (m *Manual) Advance(d time.Duration) {
	target := m.now.Add(d)
	for {
		var due *manualTicker
		for _, t := range m.tickers {
			if t.stopped || t.next.After(target) {
				continue
			}
			if due == nil || t.next.Before(due.next) {
				due = t
			}
		}
		if due == nil {
			break
		}
		m.now = due.next
		due.next = due.next.Add(due.interval)
		due.fn()
		m.Flush()
	}
	m.now = target
	m.Flush()

	live := m.tickers[:0]
	for _, t := range m.tickers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	m.tickers = live
}

type manualTicker struct {
	interval time.Duration
	next     time.Time
	fn       func()
	stopped  bool
}

func (t *manualTicker) Stop() { t.stopped = true }
