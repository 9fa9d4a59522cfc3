package stability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/dtnitsch/llm-bionic/pkg/dom"
	"github.com/dtnitsch/llm-bionic/pkg/runloop"
)

type fixture struct {
	loop   *runloop.Manual
	doc    *dom.Document
	det    *Detector
	stable []*html.Node
}

func setupTestDetector(t *testing.T, page string) *fixture {
	t.Helper()
	f := &fixture{loop: runloop.NewManual(time.Unix(0, 0))}
	doc, err := dom.ParseString(page, f.loop)
	require.NoError(t, err)
	f.doc = doc
	f.det = New(doc, func(n *html.Node) { f.stable = append(f.stable, n) }, Options{}, nil)
	return f
}

func Test_Detector(t *testing.T) {
	t.Run("should hold a unit while it keeps changing", func(t *testing.T) {
		f := setupTestDetector(t, `<body><div class="markdown"><p>Hello</p></div></body>`)
		text := f.doc.Find("p").Get(0).FirstChild

		for i := 0; i < 10; i++ {
			require.NoError(t, f.doc.AppendText(text, " more"))
			f.det.Touch(text)
			f.loop.Advance(400 * time.Millisecond)
			require.Empty(t, f.stable, "queued while still streaming (event %d)", i)
		}

		// 400ms since the last change
		f.loop.Advance(500 * time.Millisecond)
		assert.Empty(t, f.stable)

		// debounce plus one polling interval
		f.loop.Advance(300 * time.Millisecond)
		require.Len(t, f.stable, 1)
		assert.Same(t, text, f.stable[0])
		assert.False(t, f.det.Running())
		assert.Zero(t, f.loop.ActiveTickers())
	})

	t.Run("should release units in ledger order", func(t *testing.T) {
		f := setupTestDetector(t, `<body><p>one</p><p>two</p></body>`)
		ps := f.doc.Find("p")
		a, b := ps.Get(0).FirstChild, ps.Get(1).FirstChild

		f.det.Touch(a)
		f.det.Touch(b)
		f.loop.Advance(1200 * time.Millisecond)

		assert.Equal(t, []*html.Node{a, b}, f.stable)
		assert.Zero(t, f.det.Len())
	})

	t.Run("should drop units detached before they settle", func(t *testing.T) {
		f := setupTestDetector(t, `<body><p>gone</p></body>`)
		p := f.doc.Find("p").Get(0)
		text := p.FirstChild

		f.det.Touch(text)
		require.NoError(t, f.doc.RemoveChild(p, text))
		f.loop.Advance(2 * time.Second)

		assert.Empty(t, f.stable)
		assert.False(t, f.det.Running())
	})

	t.Run("should forget everything on clear", func(t *testing.T) {
		f := setupTestDetector(t, `<body><p>text</p></body>`)
		text := f.doc.Find("p").Get(0).FirstChild

		f.det.Touch(text)
		assert.True(t, f.det.Tracking(text))
		f.det.Clear()
		f.loop.Advance(2 * time.Second)

		assert.Empty(t, f.stable)
		assert.False(t, f.det.Tracking(text))
		assert.Zero(t, f.loop.ActiveTickers())
	})
}

func TestIsStreamTail(t *testing.T) {
	loop := runloop.NewManual(time.Unix(0, 0))
	doc, err := dom.ParseString(`<body>
<div class="markdown"><p id="a">first <em>middle</em> last<span class="cursor"></span></p></div>
<p id="outside">outside</p>
</body>`, loop)
	require.NoError(t, err)

	region := doc.Find(".markdown").Get(0)
	p := doc.Find("#a").Get(0)
	first := p.FirstChild
	last := doc.Find("em").Get(0).NextSibling

	assert.False(t, IsStreamTail(first, region), "followed by text-bearing siblings")
	assert.True(t, IsStreamTail(last, region), "only an empty cursor follows")
	assert.False(t, IsStreamTail(doc.Find("#outside").Get(0).FirstChild, region), "outside the region")
	assert.False(t, IsStreamTail(last, nil))
}
