// Package session hosts a document and its engine on a running event loop,
// for callers that live outside the loop goroutine.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dtnitsch/llm-bionic/models"
	"github.com/dtnitsch/llm-bionic/pkg/dom"
	"github.com/dtnitsch/llm-bionic/pkg/engine"
	"github.com/dtnitsch/llm-bionic/pkg/runloop"
)

// settlePoll is how often WaitSettled samples the engine.
const settlePoll = 20 * time.Millisecond

var ErrClosed = errors.New("session loop stopped")

// Loader builds the session document bound to loop.
type Loader func(loop runloop.Loop) (*dom.Document, error)

// Options configures a Session.
type Options struct {
	Config *models.Config
	// Prefs holds the Enabled Flag. Nil means enabled.
	Prefs    engine.PreferenceStore
	Notifier engine.Notifier
	Logger   *slog.Logger
}

// Session owns an EventLoop goroutine, the document and the engine.
type Session struct {
	loop    *runloop.EventLoop
	doc     *dom.Document
	engine  *engine.Engine
	logger  *slog.Logger
	started time.Time

	cancel  context.CancelFunc
	stopped chan struct{}
	runErr  error
}

// Summary describes a finished session.
type Summary struct {
	Command string       `yaml:"command"`
	Source  string       `yaml:"source"`
	Elapsed string       `yaml:"elapsed"`
	Engine  engine.Stats `yaml:"engine"`
}

// Start loads the document, starts the loop and initializes the engine.
func Start(ctx context.Context, load Loader, opts Options) (*Session, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = models.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	loop := runloop.New(cfg.FrameInterval)
	doc, err := load(loop)
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	eng, err := engine.New(cfg, doc, opts.Prefs, opts.Notifier, logger)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		loop:    loop,
		doc:     doc,
		engine:  eng,
		logger:  logger,
		started: time.Now(),
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
	go func() {
		defer close(s.stopped)
		s.runErr = loop.Run(runCtx)
	}()

	var initErr error
	loop.Do(func() { initErr = eng.Initialize(ctx) })
	if initErr != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize engine: %w", initErr)
	}
	return s, nil
}

// Do runs fn on the loop goroutine and waits for it.
func (s *Session) Do(fn func(doc *dom.Document, eng *engine.Engine)) error {
	select {
	case <-s.stopped:
		return ErrClosed
	default:
	}
	s.loop.Do(func() { fn(s.doc, s.engine) })
	return nil
}

// WaitSettled blocks until the engine has had nothing queued, pending or held
// back for two consecutive samples.
func (s *Session) WaitSettled(ctx context.Context) error {
	tick := time.NewTicker(settlePoll)
	defer tick.Stop()

	streak := 0
	for {
		settled := false
		if err := s.Do(func(_ *dom.Document, eng *engine.Engine) { settled = eng.Settled() }); err != nil {
			return err
		}
		if settled {
			streak++
			if streak >= 2 {
				return nil
			}
		} else {
			streak = 0
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopped:
			return ErrClosed
		case <-tick.C:
		}
	}
}

// Render returns the current document HTML.
func (s *Session) Render() (string, error) {
	var out string
	err := s.Do(func(doc *dom.Document, _ *engine.Engine) { out = doc.String() })
	return out, err
}

// Stats returns the engine stats.
func (s *Session) Stats() engine.Stats {
	var st engine.Stats
	_ = s.Do(func(_ *dom.Document, eng *engine.Engine) { st = eng.Stats() })
	return st
}

// Elapsed returns the time since the session started.
func (s *Session) Elapsed() time.Duration { return time.Since(s.started) }

// Summary snapshots the session for reporting.
func (s *Session) Summary(command, source string) Summary {
	return Summary{
		Command: command,
		Source:  source,
		Elapsed: s.Elapsed().Round(time.Millisecond).String(),
		Engine:  s.Stats(),
	}
}

// WriteSummary writes a summary as YAML.
func WriteSummary(w io.Writer, sum Summary) error {
	out, err := yaml.Marshal(&sum)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	_, err = w.Write(out)
	return err
}

// Close stops the loop and waits for its goroutine.
func (s *Session) Close() {
	s.loop.Close()
	s.cancel()
	<-s.stopped
	if s.runErr != nil && !errors.Is(s.runErr, context.Canceled) {
		s.logger.Warn("event loop stopped with error", "error", s.runErr)
	}
}
