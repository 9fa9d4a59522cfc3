package stream

import (
	"context"
	"fmt"
	"html"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	nethtml "golang.org/x/net/html"

	"github.com/dtnitsch/llm-bionic/internal/common"
	"github.com/dtnitsch/llm-bionic/pkg/db"
	"github.com/dtnitsch/llm-bionic/pkg/dom"
	"github.com/dtnitsch/llm-bionic/pkg/engine"
	"github.com/dtnitsch/llm-bionic/pkg/notify"
	"github.com/dtnitsch/llm-bionic/pkg/runloop"
	"github.com/dtnitsch/llm-bionic/pkg/session"
	"github.com/dtnitsch/llm-bionic/pkg/storage"
)

// assistantRegion is where streamed text is written; it matches the default
// region selectors.
const assistantRegion = "[data-message-author-role=assistant] .markdown"

// ChatPage returns a minimal chat document with one user message and an empty
// assistant response.
func ChatPage(prompt string) string {
	return `<html><head><title>chat</title></head><body><main>` +
		`<div data-message-author-role="user"><div class="markdown prose"><p>` + html.EscapeString(prompt) + `</p></div></div>` +
		`<div data-message-author-role="assistant"><div class="markdown prose"></div></div>` +
		`</main></body></html>`
}

// Chunks splits a paragraph into pieces of n words, keeping the separators so
// the pieces concatenate back to the paragraph.
func Chunks(paragraph string, n int) []string {
	if n <= 0 {
		n = 1
	}
	var out []string
	var b strings.Builder
	words := 0
	for i, field := range strings.SplitAfter(paragraph, " ") {
		if i > 0 && field == "" {
			continue
		}
		b.WriteString(field)
		if strings.TrimSpace(field) != "" {
			words++
		}
		if words == n {
			out = append(out, b.String())
			b.Reset()
			words = 0
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}

// Paragraphs splits text on blank lines and folds the remaining line breaks.
func Paragraphs(text string) []string {
	var out []string
	for _, block := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		block = strings.Join(strings.Fields(block), " ")
		if block != "" {
			out = append(out, block)
		}
	}
	return out
}

// StreamAction streams a text file into a simulated chat response while the
// engine runs, then prints the settled document.
func StreamAction(c *cli.Context) error {
	logger := common.NewLogger(c)
	cfg, err := common.LoadConfig(c)
	if err != nil {
		return err
	}

	store := &storage.Storage{}
	in := c.String("in")
	raw, err := store.ReadFile(in)
	if err != nil {
		return err
	}

	var database *db.DB
	var prefs engine.PreferenceStore
	if !c.Bool("no-db") {
		database, err = common.OpenDB(c)
		if err != nil {
			return err
		}
		defer database.Close()
		prefs = db.Preferences{DB: database}
	}
	if c.Bool("force") {
		prefs = nil
	}

	page := ChatPage(c.String("prompt"))
	ctx := c.Context
	s, err := session.Start(ctx, func(loop runloop.Loop) (*dom.Document, error) {
		return dom.ParseString(page, loop)
	}, session.Options{
		Config:   cfg,
		Prefs:    prefs,
		Notifier: notify.Log{Logger: logger},
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer s.Close()

	runErr := produce(ctx, s, Paragraphs(string(raw)), c.Int("words-per-chunk"), c.Duration("chunk-delay"))
	if runErr == nil {
		waitCtx, cancel := context.WithTimeout(ctx, c.Duration("timeout"))
		runErr = s.WaitSettled(waitCtx)
		cancel()
	}

	sum := s.Summary("stream", in)
	common.RecordRun(ctx, logger, database, sum, runErr)
	if runErr != nil {
		return fmt.Errorf("stream failed: %w", runErr)
	}

	out, err := s.Render()
	if err != nil {
		return err
	}
	if err := store.SaveFile(c.String("out"), []byte(out+"\n")); err != nil {
		return err
	}
	if c.Bool("summary") {
		if err := session.WriteSummary(os.Stderr, sum); err != nil {
			return err
		}
	}
	logger.Info(common.DescribeRun(sum), "state", sum.Engine.State)
	return nil
}

// produce plays the host: one paragraph element per paragraph, its text
// node grown chunk by chunk.
func produce(ctx context.Context, s *session.Session, paragraphs []string, wordsPerChunk int, delay time.Duration) error {
	for _, para := range paragraphs {
		p := dom.NewElement("p")
		var tail *nethtml.Node
		err := s.Do(func(doc *dom.Document, _ *engine.Engine) {
			doc.AppendChild(doc.Find(assistantRegion).Get(0), p)
		})
		if err != nil {
			return err
		}

		for _, chunk := range Chunks(para, wordsPerChunk) {
			if err := s.Do(func(doc *dom.Document, _ *engine.Engine) { tail = appendChunk(doc, p, tail, chunk) }); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return nil
}

// appendChunk grows tail by chunk and returns the node now holding the end of
// the paragraph. Once the engine has replaced tail with a container, the
// chunk starts a fresh text node after it.
func appendChunk(doc *dom.Document, p, tail *nethtml.Node, chunk string) *nethtml.Node {
	if tail != nil && doc.Attached(tail) {
		if err := doc.AppendText(tail, chunk); err == nil {
			return tail
		}
	}
	next := dom.NewText(chunk)
	doc.AppendChild(p, next)
	return next
}
