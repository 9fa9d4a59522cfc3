// Package stability holds back text that is still being streamed into the
// document until it has stopped changing for a debounce period.
package stability

import (
	"log/slog"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/dtnitsch/llm-bionic/pkg/dom"
	"github.com/dtnitsch/llm-bionic/pkg/runloop"
)

const (
	DefaultDebounce     = 1000 * time.Millisecond
	DefaultPollInterval = 200 * time.Millisecond
)

// Options configures a Detector.
type Options struct {
	Debounce     time.Duration
	PollInterval time.Duration
}

// Detector is the stability ledger: text nodes suspected to be mid-stream,
// keyed to the time they last changed. It must only be used from the loop
// goroutine.
type Detector struct {
	loop   runloop.Loop
	doc    *dom.Document
	stable func(*html.Node)
	logger *slog.Logger

	debounce time.Duration
	interval time.Duration

	entries map[*html.Node]time.Time
	order   []*html.Node
	ticker  runloop.Ticker
}

// New creates a Detector that hands stable nodes to stable.
func New(doc *dom.Document, stable func(*html.Node), opts Options, logger *slog.Logger) *Detector {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		loop:     doc.Loop(),
		doc:      doc,
		stable:   stable,
		logger:   logger,
		debounce: opts.Debounce,
		interval: opts.PollInterval,
		entries:  make(map[*html.Node]time.Time),
	}
}

// Touch records that n changed now and makes sure the periodic check runs.
func (d *Detector) Touch(n *html.Node) {
	if _, ok := d.entries[n]; !ok {
		d.order = append(d.order, n)
	}
	d.entries[n] = d.loop.Now()
	d.start()
}

// Tracking reports whether n is in the ledger.
func (d *Detector) Tracking(n *html.Node) bool {
	_, ok := d.entries[n]
	return ok
}

// Len returns the number of tracked nodes.
func (d *Detector) Len() int { return len(d.entries) }

// Running reports whether the periodic check is active.
func (d *Detector) Running() bool { return d.ticker != nil }

// Clear drops every tracked node and stops the periodic check.
func (d *Detector) Clear() {
	d.entries = make(map[*html.Node]time.Time)
	d.order = nil
	d.stop()
}

func (d *Detector) start() {
	if d.ticker != nil {
		return
	}
	d.ticker = d.loop.Every(d.interval, d.check)
}

func (d *Detector) stop() {
	if d.ticker == nil {
		return
	}
	d.ticker.Stop()
	d.ticker = nil
}

func (d *Detector) check() {
	now := d.loop.Now()
	var ready []*html.Node

	keep := d.order[:0]
	for _, n := range d.order {
		ts, ok := d.entries[n]
		if !ok {
			continue
		}
		if !d.doc.Attached(n) {
			delete(d.entries, n)
			continue
		}
		if now.Sub(ts) >= d.debounce {
			delete(d.entries, n)
			ready = append(ready, n)
			continue
		}
		keep = append(keep, n)
	}
	d.order = keep

	if len(d.order) == 0 {
		d.stop()
	}
	if len(ready) > 0 {
		d.logger.Debug("stream settled", "units", len(ready), "still_tracked", len(d.order))
	}
	for _, n := range ready {
		d.stable(n)
	}
}

// IsStreamTail reports whether text looks like the growing end of a stream:
// the last text-bearing child of its parent, inside region. A static trailing
// sentence of a finished message matches too; such text is only delayed by
// the debounce.
func IsStreamTail(text, region *html.Node) bool {
	if text == nil || text.Parent == nil || region == nil {
		return false
	}
	if !dom.Contains(region, text.Parent) {
		return false
	}
	for s := text.NextSibling; s != nil; s = s.NextSibling {
		if strings.TrimSpace(dom.TextContent(s)) != "" {
			return false
		}
	}
	return true
}
