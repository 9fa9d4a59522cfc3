// Package engine wires the bionic reading components into one instance with
// a single on/off switch.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/net/html"

	"github.com/dtnitsch/llm-bionic/models"
	"github.com/dtnitsch/llm-bionic/pkg/dom"
	"github.com/dtnitsch/llm-bionic/pkg/eligibility"
	"github.com/dtnitsch/llm-bionic/pkg/langgate"
	"github.com/dtnitsch/llm-bionic/pkg/observer"
	"github.com/dtnitsch/llm-bionic/pkg/revert"
	"github.com/dtnitsch/llm-bionic/pkg/scheduler"
	"github.com/dtnitsch/llm-bionic/pkg/stability"
	"github.com/dtnitsch/llm-bionic/pkg/transformer"
)

// PreferenceKey is the key of the persisted Enabled Flag.
const PreferenceKey = "bionic.enabled"

// Stylesheet is injected into the document while the engine is enabled.
const Stylesheet = ".bionic-text b { font-weight: 700; }"

// State is the state of the engine.
type State int

const (
	Disabled State = iota
	Idle
	Batching
)

func (s State) String() string {
	switch s {
	case Disabled:
		return "disabled"
	case Idle:
		return "enabled-idle"
	case Batching:
		return "enabled-batching"
	default:
		return "unknown"
	}
}

// PreferenceStore persists single string values.
type PreferenceStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// Notifier shows a short message to the user without waiting for it.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// Stats is a snapshot of engine activity.
type Stats struct {
	State     string          `json:"state" yaml:"state"`
	Regions   int             `json:"regions" yaml:"regions"`
	Tracked   int             `json:"tracked" yaml:"tracked"`
	Queued    int             `json:"queued" yaml:"queued"`
	Watches   int             `json:"watches" yaml:"watches"`
	Scheduler scheduler.Stats `json:"scheduler" yaml:"scheduler"`
}

// Engine owns all state for one document. Every method must be called from
// the document's loop goroutine.
type Engine struct {
	doc      *dom.Document
	prefs    PreferenceStore
	notifier Notifier
	logger   *slog.Logger

	sched    *scheduler.Scheduler
	detector *stability.Detector
	layer    *observer.Layer

	state       State
	initialized bool
}

// New builds an engine for doc. prefs and notifier may be nil.
func New(cfg *models.Config, doc *dom.Document, prefs PreferenceStore, notifier Notifier, logger *slog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = models.DefaultConfig()
	}
	c := *cfg
	c.Normalize()
	if logger == nil {
		logger = slog.Default()
	}

	filter, err := eligibility.New(eligibility.Options{
		Depth:              c.AncestorDepth,
		ProtectedTags:      c.ProtectedTags,
		ProtectedSelectors: c.ProtectedSelectors,
		CursorSelector:     c.CursorSelector,
		DetectCursor:       c.DetectCursor,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build eligibility filter: %w", err)
	}
	gate, err := langgate.New(c.Languages)
	if err != nil {
		return nil, fmt.Errorf("failed to build language gate: %w", err)
	}

	e := &Engine{doc: doc, prefs: prefs, notifier: notifier, logger: logger}

	tr := transformer.New(c.Ratio, c.WordCacheSize)
	e.sched = scheduler.New(doc, filter, tr, scheduler.Options{
		BatchSize: c.BatchSize,
		Capacity:  c.QueueCapacity,
	}, logger.With("component", "scheduler"))
	e.sched.OnBusy = func() {
		if e.state != Disabled {
			e.state = Batching
		}
	}
	e.sched.OnIdle = func() {
		if e.state != Disabled {
			e.state = Idle
		}
	}

	e.detector = stability.New(doc, func(n *html.Node) { e.layer.Enqueue(n) }, stability.Options{
		Debounce:     c.Debounce,
		PollInterval: c.PollInterval,
	}, logger.With("component", "stability"))
	e.sched.Hold = e.detector.Tracking

	e.layer, err = observer.New(doc, filter, e.sched, e.detector, observer.Options{
		RegionSelectors: c.RegionSelectors,
		Gate:            gate,
	}, logger.With("component", "observer"))
	if err != nil {
		return nil, fmt.Errorf("failed to build observation layer: %w", err)
	}
	return e, nil
}

// Initialize reads the persisted flag, enabled unless stored otherwise, and
// starts the engine when enabled. Calling it again does nothing.
func (e *Engine) Initialize(ctx context.Context) error {
	if e.initialized {
		return nil
	}
	e.initialized = true

	enabled := true
	if e.prefs != nil {
		v, ok, err := e.prefs.Get(ctx, PreferenceKey)
		switch {
		case err != nil:
			e.logger.Warn("failed to read preference, using default", "key", PreferenceKey, "error", err)
		case ok:
			if b, perr := strconv.ParseBool(v); perr == nil {
				enabled = b
			} else {
				e.logger.Warn("invalid preference value, using default", "key", PreferenceKey, "value", v)
			}
		}
	}

	if enabled {
		e.enable()
	}
	e.logger.Info("engine initialized", "state", e.state.String())
	return nil
}

// Toggle flips the engine on or off, persists the new flag and notifies the
// user. It returns the new state.
func (e *Engine) Toggle(ctx context.Context) (State, error) {
	err := e.SetEnabled(ctx, e.state == Disabled)
	return e.state, err
}

// SetEnabled moves the engine to the requested side of the switch. Asking for
// the current side does nothing.
func (e *Engine) SetEnabled(ctx context.Context, on bool) error {
	e.initialized = true
	if on == e.Enabled() {
		return nil
	}

	msg := "Bionic reading disabled"
	if on {
		e.enable()
		msg = "Bionic reading enabled"
	} else {
		e.disable()
	}

	if e.notifier != nil {
		e.notifier.Notify(ctx, msg)
	}
	if e.prefs != nil {
		if err := e.prefs.Set(ctx, PreferenceKey, strconv.FormatBool(on)); err != nil {
			return fmt.Errorf("failed to persist preference: %w", err)
		}
	}
	return nil
}

// State returns the current state.
func (e *Engine) State() State { return e.state }

// Enabled reports whether the engine is in one of the enabled states.
func (e *Engine) Enabled() bool { return e.state != Disabled }

// Settled reports whether no work is queued, pending or held back.
func (e *Engine) Settled() bool {
	return e.sched.Len() == 0 && !e.sched.Pending() && e.detector.Len() == 0
}

// Stats returns a snapshot of engine activity.
func (e *Engine) Stats() Stats {
	return Stats{
		State:     e.state.String(),
		Regions:   e.layer.Regions(),
		Tracked:   e.detector.Len(),
		Queued:    e.sched.Len(),
		Watches:   e.doc.ObserverCount(),
		Scheduler: e.sched.Stats(),
	}
}

func (e *Engine) enable() {
	e.injectStyle()
	e.state = Idle
	e.layer.Start()
}

// disable clears the queue and the ledger before touching the document, so a
// frame already requested finds nothing to do.
func (e *Engine) disable() {
	e.layer.Stop()
	e.sched.Clear()
	e.detector.Clear()
	restored := revert.Revert(e.doc)
	e.state = Disabled
	e.logger.Debug("engine disabled", "restored", restored)
}

func (e *Engine) injectStyle() {
	if e.doc.Find("style#"+revert.StyleID).Length() > 0 {
		return
	}
	parent := e.doc.Head()
	if parent == nil {
		parent = e.doc.Body()
	}
	if parent == nil {
		return
	}
	style := dom.NewElement("style", html.Attribute{Key: "id", Val: revert.StyleID})
	style.AppendChild(dom.NewText(Stylesheet))
	e.doc.AppendChild(parent, style)
}
