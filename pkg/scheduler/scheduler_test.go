package scheduler

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/dtnitsch/llm-bionic/pkg/dom"
	"github.com/dtnitsch/llm-bionic/pkg/eligibility"
	"github.com/dtnitsch/llm-bionic/pkg/emphasis"
	"github.com/dtnitsch/llm-bionic/pkg/runloop"
	"github.com/dtnitsch/llm-bionic/pkg/transformer"
)

type fixture struct {
	loop  *runloop.Manual
	doc   *dom.Document
	sched *Scheduler
	units []*html.Node
}

func setupTestScheduler(t *testing.T, paragraphs int, opts Options, tr Transformer) *fixture {
	t.Helper()
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < paragraphs; i++ {
		fmt.Fprintf(&b, "<p>paragraph number %d reads well</p>", i)
	}
	b.WriteString("<pre>code sample here</pre></body></html>")

	loop := runloop.NewManual(time.Unix(0, 0))
	doc, err := dom.ParseString(b.String(), loop)
	require.NoError(t, err)

	filter, err := eligibility.New(eligibility.Options{ProtectedTags: []string{"pre", "code"}})
	require.NoError(t, err)
	if tr == nil {
		tr = transformer.New(emphasis.DefaultRatio, 64)
	}

	f := &fixture{loop: loop, doc: doc, sched: New(doc, filter, tr, opts, nil)}
	for _, p := range doc.Find("p").Nodes {
		f.units = append(f.units, p.FirstChild)
	}
	return f
}

func (f *fixture) enqueueAll() {
	for _, u := range f.units {
		f.sched.Enqueue(u)
	}
}

func containers(doc *dom.Document) int {
	return doc.Find("[" + eligibility.ContainerAttr + "]").Length()
}

type panicOn struct {
	needle string
	next   Transformer
}

func (p panicOn) Segments(text string) ([]emphasis.Segment, bool) {
	if strings.Contains(text, p.needle) {
		panic("boom")
	}
	return p.next.Segments(text)
}

func Test_Scheduler(t *testing.T) {
	t.Run("should drain 120 units in three frames of 50, 50 and 20", func(t *testing.T) {
		f := setupTestScheduler(t, 120, Options{BatchSize: 50}, nil)
		f.enqueueAll()

		require.Equal(t, 1, f.loop.PendingFrames())
		want := []int{50, 100, 120}
		for i, w := range want {
			require.Equal(t, 1, f.loop.RunFrame(), "frame %d", i)
			assert.Equal(t, w, f.sched.Stats().Transformed, "after frame %d", i)
		}

		assert.Zero(t, f.loop.PendingFrames(), "idle scheduler must not request frames")
		assert.Equal(t, 3, f.sched.Stats().Frames)
		assert.Equal(t, 120, containers(f.doc))
	})

	t.Run("should request a frame again once new work arrives", func(t *testing.T) {
		f := setupTestScheduler(t, 2, Options{}, nil)
		f.sched.Enqueue(f.units[0])
		f.loop.RunFrames(10)
		assert.Zero(t, f.loop.PendingFrames())

		f.sched.Enqueue(f.units[1])
		assert.Equal(t, 1, f.loop.PendingFrames())
	})

	t.Run("should never process inside the caller", func(t *testing.T) {
		f := setupTestScheduler(t, 3, Options{}, nil)
		f.enqueueAll()
		assert.Zero(t, f.sched.Stats().Transformed)
		assert.Zero(t, containers(f.doc))
	})

	t.Run("should queue a unit at most once", func(t *testing.T) {
		f := setupTestScheduler(t, 1, Options{}, nil)
		f.sched.Enqueue(f.units[0])
		f.sched.Enqueue(f.units[0])
		assert.Equal(t, 1, f.sched.Len())

		f.loop.RunFrames(10)
		f.sched.Enqueue(f.units[0]) // detached now
		f.loop.RunFrames(10)

		st := f.sched.Stats()
		assert.Equal(t, 1, st.Transformed)
		assert.Equal(t, 1, st.Skipped)
		assert.Equal(t, 1, containers(f.doc))
	})

	t.Run("should drop the oldest units on overflow", func(t *testing.T) {
		f := setupTestScheduler(t, 5, Options{Capacity: 3}, nil)
		f.enqueueAll()

		assert.Equal(t, 3, f.sched.Len())
		assert.Equal(t, 2, f.sched.Stats().Dropped)

		f.loop.RunFrames(10)
		assert.True(t, f.doc.Attached(f.units[0]), "dropped unit stays unprocessed")
		assert.True(t, f.doc.Attached(f.units[1]))
		assert.False(t, f.doc.Attached(f.units[4]))

		// dropped units can be rediscovered
		f.sched.Enqueue(f.units[0])
		f.loop.RunFrames(10)
		assert.False(t, f.doc.Attached(f.units[0]))
	})

	t.Run("should skip protected and unchanged units", func(t *testing.T) {
		f := setupTestScheduler(t, 0, Options{}, nil)
		code := f.doc.Find("pre").Get(0).FirstChild
		short := dom.NewText("ok")
		f.doc.AppendChild(f.doc.Body(), short)

		f.sched.Enqueue(code)
		f.sched.Enqueue(short)
		f.loop.RunFrames(10)

		st := f.sched.Stats()
		assert.Equal(t, 1, st.Skipped)
		assert.Equal(t, 1, st.Unchanged)

		f.sched.Enqueue(short)
		assert.Zero(t, f.sched.Len(), "settled unit is not queued again")
		f.sched.Forget(short)
		f.sched.Enqueue(short)
		assert.Equal(t, 1, f.sched.Len())
	})

	t.Run("should isolate a failing unit from the rest of the batch", func(t *testing.T) {
		tr := panicOn{needle: "number 1 ", next: transformer.New(emphasis.DefaultRatio, 0)}
		f := setupTestScheduler(t, 3, Options{}, tr)
		f.enqueueAll()
		f.loop.RunFrames(10)

		st := f.sched.Stats()
		assert.Equal(t, 1, st.Failed)
		assert.Equal(t, 2, st.Transformed)
		assert.True(t, f.doc.Attached(f.units[1]), "failed unit left as plain text")
	})

	t.Run("should leave held units untouched and accept them again later", func(t *testing.T) {
		f := setupTestScheduler(t, 2, Options{}, nil)
		held := map[*html.Node]bool{f.units[1]: true}
		f.sched.Hold = func(n *html.Node) bool { return held[n] }

		f.enqueueAll()
		f.loop.RunFrames(10)

		st := f.sched.Stats()
		assert.Equal(t, 1, st.Transformed)
		assert.Equal(t, 1, st.Skipped)
		assert.True(t, f.doc.Attached(f.units[1]), "held unit stays plain text")

		delete(held, f.units[1])
		f.sched.Enqueue(f.units[1])
		f.loop.RunFrames(10)
		assert.Equal(t, 2, f.sched.Stats().Transformed)
		assert.False(t, f.doc.Attached(f.units[1]))
	})

	t.Run("should make a requested frame a no-op after clear", func(t *testing.T) {
		f := setupTestScheduler(t, 10, Options{}, nil)
		f.enqueueAll()
		f.sched.Clear()

		f.loop.RunFrames(10)
		assert.Zero(t, f.sched.Stats().Transformed)
		assert.Zero(t, f.sched.Len())
		assert.False(t, f.sched.Pending())
	})

	t.Run("should fire busy and idle hooks", func(t *testing.T) {
		f := setupTestScheduler(t, 3, Options{BatchSize: 2}, nil)
		var events []string
		f.sched.OnBusy = func() { events = append(events, "busy") }
		f.sched.OnIdle = func() { events = append(events, "idle") }

		f.enqueueAll()
		f.loop.RunFrames(10)
		assert.Equal(t, []string{"busy", "idle"}, events)
	})

	t.Run("should keep the text of a transformed unit", func(t *testing.T) {
		f := setupTestScheduler(t, 1, Options{}, nil)
		before := f.doc.Text()
		f.enqueueAll()
		f.loop.RunFrames(10)

		assert.Equal(t, before, f.doc.Text())
		assert.Contains(t, f.doc.String(), `<span class="bionic-text" data-bionic="1"><b>para</b>graph`)
	})
}
