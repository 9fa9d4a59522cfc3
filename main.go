package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/llm-bionic/internal/db"
	"github.com/dtnitsch/llm-bionic/internal/render"
	"github.com/dtnitsch/llm-bionic/internal/stream"
	"github.com/dtnitsch/llm-bionic/pkg/help"
)

func main() {
	app := &cli.App{
		Name:  "bionic",
		Usage: "Bionic reading for streamed chat documents",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "config.yaml", Usage: "YAML config file (missing file means defaults)"},
			&cli.StringFlag{Name: "db", Usage: "SQLite database path (default: next to the binary)", EnvVars: []string{"BIONIC_DB"}},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Only log errors"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Log debug records"},
		},
		Commands: []*cli.Command{
			{
				Name:   "render",
				Usage:  "Transform an HTML file and write the result",
				Action: render.RenderAction,
				Flags: append(engineFlags(),
					&cli.StringFlag{Name: "in", Aliases: []string{"i"}, Usage: "Input HTML file, - for stdin"},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output file (default stdout)"},
					&cli.BoolFlag{Name: "article", Usage: "Extract the main article before transforming"},
					&cli.StringFlag{Name: "url", Usage: "Page URL; fetched when --in is not given, used to resolve links with --article"},
					&cli.IntFlag{Name: "viewport", Usage: "Only transform the first N regions, as if the rest were off screen (0: all)"},
				),
			},
			{
				Name:   "stream",
				Usage:  "Stream a text file into a simulated chat response while transforming it",
				Action: stream.StreamAction,
				Flags: append(engineFlags(),
					&cli.StringFlag{Name: "in", Aliases: []string{"i"}, Required: true, Usage: "Input text file, - for stdin"},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output file (default stdout)"},
					&cli.StringFlag{Name: "prompt", Value: "Tell me something.", Usage: "User message shown above the response"},
					&cli.DurationFlag{Name: "chunk-delay", Value: 40 * time.Millisecond, Usage: "Pause between chunks"},
					&cli.IntFlag{Name: "words-per-chunk", Value: 3, Usage: "Words appended per chunk"},
					&cli.BoolFlag{Name: "summary", Usage: "Print a YAML summary to stderr"},
				),
			},
			{
				Name:   "revert",
				Usage:  "Strip markup containers from a transformed file",
				Action: render.RevertAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "in", Aliases: []string{"i"}, Required: true, Usage: "Input HTML file, - for stdin"},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output file (default stdout)"},
				},
			},
			{
				Name:      "text",
				Usage:     "Print the transformed markup of some text",
				ArgsUsage: "[WORDS...]",
				Action:    render.TextAction,
				Flags: []cli.Flag{
					&cli.Float64Flag{Name: "ratio", Usage: "Emphasis ratio in (0,1)"},
				},
			},
			{
				Name:   "toggle",
				Usage:  "Flip the persisted enabled flag",
				Action: db.ToggleAction,
			},
			{
				Name:   "status",
				Usage:  "Show the enabled flag, settings and last run",
				Action: db.StatusAction,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yaml", Usage: "Output YAML"},
				},
			},
			{
				Name:   "history",
				Usage:  "List recent runs",
				Action: db.HistoryAction,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "Maximum runs to show"},
					&cli.StringFlag{Name: "command", Usage: "Only runs of this command (render, stream)"},
				},
			},
			{
				Name:  "quickstart",
				Usage: "Print a YAML quick start",
				Action: func(c *cli.Context) error {
					_, err := fmt.Fprint(c.App.Writer, help.ColdstartYAML)
					return err
				},
			},
			{
				Name:      "run",
				Usage:     "Show details of a run",
				ArgsUsage: "[RUN_ID]",
				Action:    db.RunAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// engineFlags override config file values for commands that run the engine.
func engineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Float64Flag{Name: "ratio", Usage: "Emphasis ratio in (0,1)"},
		&cli.IntFlag{Name: "batch-size", Usage: "Units transformed per frame"},
		&cli.DurationFlag{Name: "debounce", Usage: "Quiet time before a streamed unit is transformed"},
		&cli.StringSliceFlag{Name: "region", Usage: "Content region selector (repeatable)"},
		&cli.StringSliceFlag{Name: "lang", Usage: "Only transform regions in these languages (repeatable)"},
		&cli.BoolFlag{Name: "detect-cursor", Usage: "Skip paragraphs holding a live typing cursor"},
		&cli.BoolFlag{Name: "force", Usage: "Ignore the persisted enabled flag"},
		&cli.BoolFlag{Name: "no-db", Usage: "Do not read the flag or record the run"},
		&cli.DurationFlag{Name: "timeout", Value: 30 * time.Second, Usage: "Give up waiting for the engine after this long"},
	}
}
