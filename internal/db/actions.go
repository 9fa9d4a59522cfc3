package db

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/dtnitsch/llm-bionic/internal/common"
	"github.com/dtnitsch/llm-bionic/models"
	dbpkg "github.com/dtnitsch/llm-bionic/pkg/db"
	"github.com/dtnitsch/llm-bionic/pkg/dom"
	"github.com/dtnitsch/llm-bionic/pkg/engine"
	"github.com/dtnitsch/llm-bionic/pkg/notify"
	"github.com/dtnitsch/llm-bionic/pkg/runloop"
)

// Status is the output of the status command.
type Status struct {
	Enabled  bool              `yaml:"enabled"`
	Database string            `yaml:"database"`
	Settings map[string]string `yaml:"settings,omitempty"`
	LastRun  *dbpkg.Run        `yaml:"last_run,omitempty"`
	Config   *models.Config    `yaml:"config"`
}

// ToggleAction flips the persisted Enabled Flag through the engine's own
// toggle, on an empty document.
func ToggleAction(c *cli.Context) error {
	logger := common.NewLogger(c)
	cfg, err := common.LoadConfig(c)
	if err != nil {
		return err
	}
	database, err := common.OpenDB(c)
	if err != nil {
		return err
	}
	defer database.Close()

	loop := runloop.NewManual(time.Now())
	doc, err := dom.ParseString("<html><head></head><body></body></html>", loop)
	if err != nil {
		return err
	}
	eng, err := engine.New(cfg, doc, dbpkg.Preferences{DB: database}, notify.NewWriter(c.App.Writer), logger)
	if err != nil {
		return err
	}

	ctx := c.Context
	if err := eng.Initialize(ctx); err != nil {
		return err
	}
	state, err := eng.Toggle(ctx)
	if err != nil {
		return fmt.Errorf("failed to toggle: %w", err)
	}
	logger.Debug("toggled", "state", state.String())
	return nil
}

// StatusAction shows the Enabled Flag, stored settings and the latest run.
func StatusAction(c *cli.Context) error {
	cfg, err := common.LoadConfig(c)
	if err != nil {
		return err
	}
	database, err := common.OpenDB(c)
	if err != nil {
		return err
	}
	defer database.Close()
	ctx := c.Context

	status := Status{Enabled: true, Database: database.Path(), Config: cfg, Settings: map[string]string{}}
	settings, err := database.ListSettings(ctx)
	if err != nil {
		return err
	}
	for _, s := range settings {
		status.Settings[s.Key] = s.Value
		if s.Key == engine.PreferenceKey {
			if b, err := strconv.ParseBool(s.Value); err == nil {
				status.Enabled = b
			}
		}
	}
	if runs, err := database.ListRuns(ctx, "", 1); err == nil && len(runs) > 0 {
		status.LastRun = &runs[0]
	}

	if c.Bool("yaml") {
		out, err := yaml.Marshal(&status)
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		_, err = c.App.Writer.Write(out)
		return err
	}

	state := "disabled"
	if status.Enabled {
		state = "enabled"
	}
	fmt.Fprintf(c.App.Writer, "Bionic reading: %s\n", state)
	fmt.Fprintf(c.App.Writer, "Database:       %s\n", status.Database)
	fmt.Fprintf(c.App.Writer, "Ratio:          %.2f\n", cfg.Ratio)
	fmt.Fprintf(c.App.Writer, "Regions:        %s\n", strings.Join(cfg.RegionSelectors, " | "))
	if status.LastRun != nil {
		r := status.LastRun
		fmt.Fprintf(c.App.Writer, "Last run:       %s %s (%s, %s units)\n",
			r.Command, r.Source, humanize.Time(r.CreatedAt), humanize.Comma(int64(r.Transformed)))
	}
	return nil
}

// HistoryAction lists recent runs.
func HistoryAction(c *cli.Context) error {
	database, err := common.OpenDB(c)
	if err != nil {
		return err
	}
	defer database.Close()

	runs, err := database.ListRuns(c.Context, c.String("command"), c.Int("limit"))
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Fprintln(c.App.Writer, "No runs found")
		return nil
	}

	w := c.App.Writer
	// Print table header
	fmt.Fprintf(w, "%-6s %-16s %-8s %-8s %-12s %-8s %-10s %s\n",
		"ID", "When", "Command", "Status", "Transformed", "Frames", "Duration", "Source")
	fmt.Fprintln(w, strings.Repeat("-", 100))

	for _, r := range runs {
		fmt.Fprintf(w, "%-6d %-16s %-8s %-8s %-12s %-8s %-10s %s\n",
			r.RunID,
			humanize.Time(r.CreatedAt),
			r.Command,
			r.Status,
			humanize.Comma(int64(r.Transformed)),
			humanize.Comma(int64(r.Frames)),
			r.Duration.String(),
			r.Source,
		)
	}

	fmt.Fprintf(w, "\nTotal: %d runs\n", len(runs))
	fmt.Fprintf(w, "\nTip: Use 'bionic run <id>' to see details\n")
	return nil
}

// RunAction shows details for one run, the latest by default.
func RunAction(c *cli.Context) error {
	database, err := common.OpenDB(c)
	if err != nil {
		return err
	}
	defer database.Close()

	runID, err := GetRunIDOrLatest(c, database)
	if err != nil {
		return err
	}
	r, err := database.GetRunByID(c.Context, runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}

	w := c.App.Writer
	fmt.Fprintf(w, "Run %d\n", r.RunID)
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "Created:     %s (%s)\n", r.CreatedAt.Format("2006-01-02 15:04:05"), humanize.Time(r.CreatedAt))
	fmt.Fprintf(w, "Command:     %s\n", r.Command)
	fmt.Fprintf(w, "Source:      %s\n", r.Source)
	fmt.Fprintf(w, "Status:      %s\n", r.Status)
	if r.ErrorMessage != "" {
		fmt.Fprintf(w, "Error:       %s\n", r.ErrorMessage)
	}
	fmt.Fprintf(w, "Regions:     %d\n", r.Regions)
	fmt.Fprintf(w, "Units:       %s transformed, %s unchanged, %s skipped, %s dropped, %s failed\n",
		humanize.Comma(int64(r.Transformed)), humanize.Comma(int64(r.Unchanged)),
		humanize.Comma(int64(r.Skipped)), humanize.Comma(int64(r.Dropped)), humanize.Comma(int64(r.Failed)))
	fmt.Fprintf(w, "Frames:      %d\n", r.Frames)
	fmt.Fprintf(w, "Duration:    %s\n", r.Duration)
	if r.Status == dbpkg.RunStatusFailed {
		fmt.Fprintln(os.Stderr, "This run did not settle; see the error above")
	}
	return nil
}
