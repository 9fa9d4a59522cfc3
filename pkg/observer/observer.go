// Package observer discovers content regions and feeds their text into the
// scheduler or the stability detector.
package observer

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/dtnitsch/llm-bionic/pkg/dom"
	"github.com/dtnitsch/llm-bionic/pkg/eligibility"
	"github.com/dtnitsch/llm-bionic/pkg/langgate"
	"github.com/dtnitsch/llm-bionic/pkg/scheduler"
	"github.com/dtnitsch/llm-bionic/pkg/stability"
)

var ErrNoRegions = errors.New("no region selectors configured")

// Options configures a Layer.
type Options struct {
	RegionSelectors []string
	// Gate, when set, skips regions written in other languages.
	Gate *langgate.Gate
}

type region struct {
	node    *html.Node
	watch   *dom.Observer
	cancel  func()
	visible bool
	// live regions appeared after Start and may still be receiving tokens.
	live bool

	langDecided bool
	langAllowed bool
}

// Layer owns one document-wide watch for new regions and one watch per
// region for new text. It must only be used from the loop goroutine.
type Layer struct {
	doc      *dom.Document
	filter   *eligibility.Filter
	sched    *scheduler.Scheduler
	detector *stability.Detector
	gate     *langgate.Gate
	logger   *slog.Logger

	selector cascadia.SelectorGroup
	regions  map[*html.Node]*region
	watch    *dom.Observer
}

// New compiles the region selectors.
func New(doc *dom.Document, filter *eligibility.Filter, sched *scheduler.Scheduler, detector *stability.Detector, opts Options, logger *slog.Logger) (*Layer, error) {
	var sels []string
	for _, s := range opts.RegionSelectors {
		if s = strings.TrimSpace(s); s != "" {
			sels = append(sels, s)
		}
	}
	if len(sels) == 0 {
		return nil, ErrNoRegions
	}
	group, err := cascadia.ParseGroup(strings.Join(sels, ", "))
	if err != nil {
		return nil, fmt.Errorf("invalid region selector: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Layer{
		doc:      doc,
		filter:   filter,
		sched:    sched,
		detector: detector,
		gate:     opts.Gate,
		logger:   logger,
		selector: group,
		regions:  make(map[*html.Node]*region),
	}, nil
}

// Start watches the document and attaches every region already present.
func (l *Layer) Start() {
	if l.watch != nil {
		return
	}
	l.watch = l.doc.Observe(l.doc.Root(), l.documentChanged)
	l.discover(l.doc.Root(), false)
	l.logger.Debug("observation started", "regions", len(l.regions))
}

// Stop disconnects every watch. Work already handed to the scheduler or the
// detector is left to the caller to clear.
func (l *Layer) Stop() {
	if l.watch == nil {
		return
	}
	l.watch.Disconnect()
	l.watch = nil
	for n, r := range l.regions {
		l.detach(r)
		delete(l.regions, n)
	}
}

// Running reports whether the document watch is connected.
func (l *Layer) Running() bool { return l.watch != nil }

// Regions returns the number of tracked regions.
func (l *Layer) Regions() int { return len(l.regions) }

// Enqueue hands a stable text unit to the scheduler. It is the detector's
// release callback.
func (l *Layer) Enqueue(n *html.Node) {
	if l.watch == nil {
		return
	}
	l.sched.Enqueue(n)
}

func (l *Layer) documentChanged(records []dom.Mutation) {
	removed := false
	for _, m := range records {
		if m.Kind != dom.ChildList {
			continue
		}
		for _, n := range m.Added {
			if n.Type == html.ElementNode {
				l.discover(n, true)
			}
		}
		removed = removed || len(m.Removed) > 0
	}
	if !removed {
		return
	}
	for n, r := range l.regions {
		if !l.doc.Attached(n) {
			l.detach(r)
			delete(l.regions, n)
			l.logger.Debug("region detached")
		}
	}
}

// discover attaches n and any regions beneath it, skipping regions nested in
// one already tracked.
func (l *Layer) discover(n *html.Node, live bool) {
	if n.Type == html.ElementNode && l.selector.Match(n) {
		l.attach(n, live)
	}
	for _, found := range cascadia.QueryAll(n, l.selector) {
		l.attach(found, live)
	}
}

func (l *Layer) attach(n *html.Node, live bool) {
	if !l.doc.Attached(n) {
		return
	}
	for p := n; p != nil; p = p.Parent {
		if _, ok := l.regions[p]; ok {
			return
		}
	}

	r := &region{node: n, live: live}
	l.regions[n] = r
	r.watch = l.doc.Observe(n, func(records []dom.Mutation) { l.regionChanged(r, records) })
	r.cancel = l.doc.ObserveVisibility(n, func() { l.scan(r) })
}

func (l *Layer) detach(r *region) {
	r.watch.Disconnect()
	r.cancel()
}

// scan queues every text unit of a region once it becomes visible. The tail
// of a live region goes to the detector instead.
func (l *Layer) scan(r *region) {
	if r.visible || l.regions[r.node] != r {
		return
	}
	r.visible = true
	for _, t := range dom.TextNodes(r.node) {
		if !l.candidate(r, t) || l.detector.Tracking(t) {
			continue
		}
		if r.live && stability.IsStreamTail(t, r.node) {
			l.detector.Touch(t)
			continue
		}
		l.sched.Enqueue(t)
	}
}

func (l *Layer) regionChanged(r *region, records []dom.Mutation) {
	if !r.visible {
		return
	}
	for _, m := range records {
		switch m.Kind {
		case dom.CharacterData:
			if l.doc.Attached(m.Target) {
				l.sched.Forget(m.Target)
				l.detector.Touch(m.Target)
			}
		case dom.ChildList:
			for _, added := range m.Added {
				for _, t := range dom.TextNodes(added) {
					l.inserted(r, t)
				}
			}
		}
	}
}

func (l *Layer) inserted(r *region, t *html.Node) {
	if !l.doc.Attached(t) || !l.candidate(r, t) {
		return
	}
	if stability.IsStreamTail(t, r.node) {
		l.detector.Touch(t)
		return
	}
	l.sched.Enqueue(t)
}

func (l *Layer) candidate(r *region, t *html.Node) bool {
	if strings.TrimSpace(t.Data) == "" {
		return false
	}
	if t.Parent == nil || !l.filter.Eligible(t.Parent) {
		return false
	}
	return l.languageAllowed(r)
}

func (l *Layer) languageAllowed(r *region) bool {
	if l.gate == nil {
		return true
	}
	if r.langDecided {
		return r.langAllowed
	}
	allow, decided := l.gate.Allow(dom.TextContent(r.node))
	if decided {
		r.langDecided = true
		r.langAllowed = allow
		if !allow {
			l.logger.Info("region skipped by language gate")
		}
	}
	return allow
}
