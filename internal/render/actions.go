package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/llm-bionic/internal/common"
	"github.com/dtnitsch/llm-bionic/pkg/db"
	"github.com/dtnitsch/llm-bionic/pkg/dom"
	"github.com/dtnitsch/llm-bionic/pkg/engine"
	"github.com/dtnitsch/llm-bionic/pkg/fetcher"
	"github.com/dtnitsch/llm-bionic/pkg/notify"
	"github.com/dtnitsch/llm-bionic/pkg/revert"
	"github.com/dtnitsch/llm-bionic/pkg/runloop"
	"github.com/dtnitsch/llm-bionic/pkg/session"
	"github.com/dtnitsch/llm-bionic/pkg/storage"
	"github.com/dtnitsch/llm-bionic/pkg/transformer"
)

// ErrNoInput is returned when render has neither a file nor a URL.
var ErrNoInput = errors.New("one of --in or --url is required")

// RenderAction runs the engine over an HTML file until it settles and writes
// the transformed document.
func RenderAction(c *cli.Context) error {
	logger := common.NewLogger(c)
	cfg, err := common.LoadConfig(c)
	if err != nil {
		return err
	}
	if c.Bool("article") && !c.IsSet("region") {
		cfg.RegionSelectors = []string{"body"}
	}

	store := &storage.Storage{}
	raw, in, err := loadInput(c.Context, store, c.String("in"), c.String("url"))
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

	var opts []dom.Option
	viewport := c.Int("viewport")
	if viewport > 0 {
		opts = append(opts, dom.WithDeferredVisibility())
	}
	load := func(loop runloop.Loop) (*dom.Document, error) {
		if !c.Bool("article") {
			return dom.Parse(bytes.NewReader(raw), loop, opts...)
		}
		doc, title, err := dom.ParseArticle(string(raw), c.String("url"), loop, opts...)
		if err != nil {
			return nil, err
		}
		logger.Info("article extracted", "title", title)
		return doc, nil
	}

	ctx := c.Context
	s, err := session.Start(ctx, load, session.Options{
		Config:   cfg,
		Prefs:    prefs,
		Notifier: notify.Log{Logger: logger},
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer s.Close()

	if viewport > 0 {
		var shown int
		if err := s.Do(func(doc *dom.Document, _ *engine.Engine) { shown = RevealRegions(doc, cfg.RegionSelectors, viewport) }); err != nil {
			return err
		}
		logger.Info("regions revealed", "shown", shown, "viewport", viewport)
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.Duration("timeout"))
	defer cancel()
	runErr := s.WaitSettled(waitCtx)

	sum := s.Summary("render", in)
	common.RecordRun(ctx, logger, database, sum, runErr)
	if runErr != nil {
		return fmt.Errorf("engine did not settle: %w", runErr)
	}

	out, err := s.Render()
	if err != nil {
		return err
	}
	if err := store.SaveFile(c.String("out"), []byte(out)); err != nil {
		return err
	}
	if path := c.String("out"); path != "" && path != storage.Stdio {
		if stats, err := store.GetFileStats(path); err == nil {
			logger.Info("output written", "path", path, "size", humanize.Bytes(uint64(stats.SizeBytes)))
		}
	}
	logger.Info(common.DescribeRun(sum), "state", sum.Engine.State)
	return nil
}

// loadInput reads the page from in, or fetches rawURL when in is empty. It
// returns the bytes and the source they came from.
func loadInput(ctx context.Context, store *storage.Storage, in, rawURL string) ([]byte, string, error) {
	switch {
	case in != "" && !store.HasFile(in):
		return nil, in, fmt.Errorf("input file not found: %s", in)
	case in != "":
		raw, err := store.ReadFile(in)
		return raw, in, err
	case rawURL != "":
		raw, err := fetcher.NewFetcher().GetHtmlBytes(ctx, rawURL)
		return raw, rawURL, err
	default:
		return nil, "", ErrNoInput
	}
}

// RevealRegions marks the first n outermost regions visible, the way a
// viewport would show the top of a page. It returns how many were revealed.
func RevealRegions(doc *dom.Document, selectors []string, n int) int {
	group := strings.Join(selectors, ", ")
	shown := 0
	doc.Find(group).Each(func(_ int, s *goquery.Selection) {
		if shown >= n {
			return
		}
		if s.ParentsFiltered(group).Length() > 0 {
			return
		}
		doc.Reveal(s.Get(0))
		shown++
	})
	return shown
}

// TextAction prints the transformed markup of the arguments, or of stdin when
// there are none.
func TextAction(c *cli.Context) error {
	cfg, err := common.LoadConfig(c)
	if err != nil {
		return err
	}

	text := strings.Join(c.Args().Slice(), " ")
	if text == "" {
		raw, err := (&storage.Storage{}).ReadFile(storage.Stdio)
		if err != nil {
			return err
		}
		text = strings.TrimRight(string(raw), "\n")
	}

	tr := transformer.New(cfg.Ratio, 0)
	fmt.Fprintln(c.App.Writer, tr.Transform(text))
	return nil
}

// RevertAction strips markup containers from a transformed file.
func RevertAction(c *cli.Context) error {
	logger := common.NewLogger(c)
	store := &storage.Storage{}

	if !store.HasFile(c.String("in")) {
		return fmt.Errorf("input file not found: %s", c.String("in"))
	}
	raw, err := store.ReadFile(c.String("in"))
	if err != nil {
		return err
	}
	// no observers are attached, so the caller-driven loop never runs anything
	doc, err := dom.Parse(bytes.NewReader(raw), runloop.NewManual(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", c.String("in"), err)
	}

	restored := revert.Revert(doc)
	if err := store.SaveFile(c.String("out"), []byte(doc.String())); err != nil {
		return err
	}
	logger.Info("document reverted", "containers", humanize.Comma(int64(restored)))
	if restored == 0 {
		fmt.Fprintln(os.Stderr, "No markup containers found")
	}
	return nil
}
