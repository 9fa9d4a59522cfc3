// Package scheduler queues text nodes and transforms them in bounded batches,
// one batch per display-refresh frame.
package scheduler

import (
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/dtnitsch/llm-bionic/pkg/dom"
	"github.com/dtnitsch/llm-bionic/pkg/eligibility"
	"github.com/dtnitsch/llm-bionic/pkg/emphasis"
)

const (
	DefaultBatchSize = 50
	DefaultCapacity  = 1000
)

// ContainerClass is the class carried by every markup container.
const ContainerClass = "bionic-text"

var (
	ErrDetached   = errors.New("text unit is no longer attached")
	ErrIneligible = errors.New("text unit is inside a protected zone")
	ErrNotText    = errors.New("unit is not a text node")
	ErrHeld       = errors.New("text unit is still streaming")
)

// Transformer turns the content of a text unit into segments.
type Transformer interface {
	Segments(text string) ([]emphasis.Segment, bool)
}

// Options configures a Scheduler.
type Options struct {
	BatchSize int
	Capacity  int
}

// Stats counts what the scheduler has done since it was created.
type Stats struct {
	Enqueued    int `json:"enqueued" yaml:"enqueued"`
	Transformed int `json:"transformed" yaml:"transformed"`
	Unchanged   int `json:"unchanged" yaml:"unchanged"`
	Skipped     int `json:"skipped" yaml:"skipped"`
	Dropped     int `json:"dropped" yaml:"dropped"`
	Failed      int `json:"failed" yaml:"failed"`
	Frames      int `json:"frames" yaml:"frames"`
}

// Scheduler owns the pending queue. It must only be used from the document's
// loop goroutine.
type Scheduler struct {
	doc         *dom.Document
	filter      *eligibility.Filter
	transformer Transformer
	logger      *slog.Logger

	batchSize int
	capacity  int

	queue   []*html.Node
	queued  map[*html.Node]struct{}
	settled map[*html.Node]struct{}

	framePending bool
	generation   uint64
	stats        Stats

	// OnBusy fires when the queue goes from empty to non-empty, OnIdle when
	// it drains.
	OnBusy func()
	OnIdle func()

	// Hold, when set, reports units that are still growing. A held unit is
	// dropped from the batch untouched; whoever holds it queues it again.
	Hold func(*html.Node) bool
}

// New creates a Scheduler.
func New(doc *dom.Document, filter *eligibility.Filter, tr Transformer, opts Options, logger *slog.Logger) *Scheduler {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		doc:         doc,
		filter:      filter,
		transformer: tr,
		logger:      logger,
		batchSize:   opts.BatchSize,
		capacity:    opts.Capacity,
		queued:      make(map[*html.Node]struct{}),
		settled:     make(map[*html.Node]struct{}),
	}
}

// Enqueue adds a text node to the back of the queue. Nodes already queued or
// already found to need no change are ignored. Processing is always deferred
// to a frame.
func (s *Scheduler) Enqueue(n *html.Node) {
	if n == nil {
		return
	}
	if _, ok := s.queued[n]; ok {
		return
	}
	if _, ok := s.settled[n]; ok {
		return
	}

	wasEmpty := len(s.queue) == 0
	s.queue = append(s.queue, n)
	s.queued[n] = struct{}{}
	s.stats.Enqueued++

	if over := len(s.queue) - s.capacity; over > 0 {
		for _, dropped := range s.queue[:over] {
			delete(s.queued, dropped)
		}
		s.queue = append(s.queue[:0:0], s.queue[over:]...)
		s.stats.Dropped += over
		s.logger.Warn("pending queue overflow, dropped oldest units", "dropped", over, "capacity", s.capacity)
	}

	if wasEmpty && s.OnBusy != nil {
		s.OnBusy()
	}
	s.schedule()
}

// Forget clears the settled mark of a node whose text changed, so it can be
// queued again.
func (s *Scheduler) Forget(n *html.Node) {
	delete(s.settled, n)
}

// Len returns the number of queued nodes.
func (s *Scheduler) Len() int { return len(s.queue) }

// Pending reports whether a frame callback is outstanding.
func (s *Scheduler) Pending() bool { return s.framePending }

// Stats returns a copy of the counters.
func (s *Scheduler) Stats() Stats { return s.stats }

// Clear empties the queue synchronously. A frame already requested becomes a
// no-op and a batch in progress stops after its current unit.
func (s *Scheduler) Clear() {
	s.generation++
	s.queue = nil
	s.queued = make(map[*html.Node]struct{})
	s.settled = make(map[*html.Node]struct{})
	s.framePending = false
}

func (s *Scheduler) schedule() {
	if s.framePending || len(s.queue) == 0 {
		return
	}
	s.framePending = true
	gen := s.generation
	s.doc.Loop().RequestFrame(func() { s.flush(gen) })
}

func (s *Scheduler) flush(gen uint64) {
	if gen != s.generation {
		return
	}
	s.framePending = false
	s.stats.Frames++

	n := min(s.batchSize, len(s.queue))
	batch := s.queue[:n]
	s.queue = s.queue[n:]

	for _, unit := range batch {
		if gen != s.generation {
			return
		}
		delete(s.queued, unit)
		s.processSafely(unit)
	}
	if gen != s.generation {
		return
	}

	s.logger.Debug("batch flushed", "units", n, "remaining", len(s.queue))
	if len(s.queue) > 0 {
		s.schedule()
		return
	}
	s.queue = nil
	s.pruneSettled()
	if s.OnIdle != nil {
		s.OnIdle()
	}
}

func (s *Scheduler) processSafely(unit *html.Node) {
	defer func() {
		if r := recover(); r != nil {
			s.stats.Failed++
			s.logger.Error("text unit transform panicked", "error", fmt.Sprint(r))
		}
	}()

	err := s.process(unit)
	switch {
	case err == nil:
	case errors.Is(err, ErrDetached), errors.Is(err, ErrIneligible), errors.Is(err, ErrNotText), errors.Is(err, ErrHeld):
		s.stats.Skipped++
		s.logger.Debug("text unit skipped", "reason", err)
	default:
		s.stats.Failed++
		s.logger.Error("text unit transform failed", "error", err)
	}
}

func (s *Scheduler) process(unit *html.Node) error {
	if unit.Type != html.TextNode {
		return ErrNotText
	}
	parent := unit.Parent
	if parent == nil || !s.doc.Attached(unit) {
		return ErrDetached
	}
	if s.Hold != nil && s.Hold(unit) {
		return ErrHeld
	}
	if !s.filter.Eligible(parent) {
		return ErrIneligible
	}

	segs, changed := s.transformer.Segments(unit.Data)
	if !changed {
		s.settled[unit] = struct{}{}
		s.stats.Unchanged++
		return nil
	}

	if err := s.doc.ReplaceChild(parent, BuildContainer(segs), unit); err != nil {
		return fmt.Errorf("failed to replace text unit: %w", err)
	}
	s.stats.Transformed++
	return nil
}

// pruneSettled drops settled marks of nodes that left the document.
func (s *Scheduler) pruneSettled() {
	if len(s.settled) <= s.capacity {
		return
	}
	for n := range s.settled {
		if !s.doc.Attached(n) {
			delete(s.settled, n)
		}
	}
}

// BuildContainer renders segments as a markup container element: a span
// tagged with eligibility.ContainerAttr holding plain text nodes and <b>
// elements.
func BuildContainer(segs []emphasis.Segment) *html.Node {
	span := dom.NewElement("span",
		html.Attribute{Key: "class", Val: ContainerClass},
		html.Attribute{Key: eligibility.ContainerAttr, Val: "1"},
	)
	for _, seg := range segs {
		if !seg.Strong {
			span.AppendChild(dom.NewText(seg.Text))
			continue
		}
		b := &html.Node{Type: html.ElementNode, Data: "b", DataAtom: atom.B}
		b.AppendChild(dom.NewText(seg.Text))
		span.AppendChild(b)
	}
	return span
}
