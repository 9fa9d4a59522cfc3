package common

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/llm-bionic/models"
	"github.com/dtnitsch/llm-bionic/pkg/db"
	"github.com/dtnitsch/llm-bionic/pkg/session"
)

// NewLogger builds the JSON stderr logger shared by every command.
func NewLogger(c *cli.Context) *slog.Logger {
	logLevel := slog.LevelInfo
	switch {
	case c.Bool("quiet"):
		logLevel = slog.LevelError
	case c.Bool("verbose"):
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

// LoadConfig reads --config and applies flag overrides.
func LoadConfig(c *cli.Context) (*models.Config, error) {
	cfg, err := models.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}

	if c.IsSet("ratio") {
		cfg.Ratio = c.Float64("ratio")
	}
	if c.IsSet("batch-size") {
		cfg.BatchSize = c.Int("batch-size")
	}
	if c.IsSet("debounce") {
		cfg.Debounce = c.Duration("debounce")
	}
	if c.IsSet("region") {
		cfg.RegionSelectors = c.StringSlice("region")
	}
	if c.IsSet("lang") {
		cfg.Languages = c.StringSlice("lang")
	}
	if c.Bool("detect-cursor") {
		cfg.DetectCursor = true
	}
	cfg.Normalize()
	return cfg, nil
}

// OpenDB opens the database named by --db, or the default one.
func OpenDB(c *cli.Context) (*db.DB, error) {
	database, err := db.Open(c.String("db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}

// RecordRun stores a finished session in the run history. Failures are
// logged, never returned.
func RecordRun(ctx context.Context, logger *slog.Logger, database *db.DB, sum session.Summary, runErr error) {
	if database == nil {
		return
	}
	run := db.Run{
		Command:     sum.Command,
		Source:      sum.Source,
		Status:      db.RunStatusOK,
		Regions:     sum.Engine.Regions,
		Transformed: sum.Engine.Scheduler.Transformed,
		Unchanged:   sum.Engine.Scheduler.Unchanged,
		Skipped:     sum.Engine.Scheduler.Skipped,
		Dropped:     sum.Engine.Scheduler.Dropped,
		Failed:      sum.Engine.Scheduler.Failed,
		Frames:      sum.Engine.Scheduler.Frames,
	}
	if d, err := time.ParseDuration(sum.Elapsed); err == nil {
		run.Duration = d
	}
	if runErr != nil {
		run.Status = db.RunStatusFailed
		run.ErrorMessage = runErr.Error()
	}
	if _, err := database.InsertRun(ctx, run); err != nil {
		logger.Warn("failed to record run", "error", err)
	}
}

// DescribeRun is a one-line human summary of a run.
func DescribeRun(sum session.Summary) string {
	st := sum.Engine.Scheduler
	parts := []string{
		fmt.Sprintf("%s units transformed", humanize.Comma(int64(st.Transformed))),
		fmt.Sprintf("%s unchanged", humanize.Comma(int64(st.Unchanged))),
		fmt.Sprintf("%s frames", humanize.Comma(int64(st.Frames))),
	}
	if st.Dropped > 0 {
		parts = append(parts, fmt.Sprintf("%s dropped", humanize.Comma(int64(st.Dropped))))
	}
	if st.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%s failed", humanize.Comma(int64(st.Failed))))
	}
	return fmt.Sprintf("%s %s: %s in %s", sum.Command, sum.Source, strings.Join(parts, ", "), sum.Elapsed)
}
