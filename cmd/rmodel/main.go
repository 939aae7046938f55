package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/rmodel/internal/config"
	"github.com/standardbeagle/rmodel/internal/debug"
	"github.com/standardbeagle/rmodel/internal/reactive"
	"github.com/standardbeagle/rmodel/internal/version"
)

const configKey = "config"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	tagFlag := &cli.StringSliceFlag{
		Name:    "tag",
		Aliases: []string{"t"},
		Usage:   "Only follow the named tags (default: every configured tag)",
	}
	jsonFlag := &cli.BoolFlag{
		Name:    "json",
		Aliases: []string{"j"},
		Usage:   "Output as JSON",
	}

	return &cli.App{
		Name:                   "rmodel",
		Usage:                  "Reactive path-addressed model: replay transactions, follow tags, mirror directories",
		Version:                version.Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Directory holding " + config.FileName,
				Value:   ".",
			},
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "Write debug logs to stderr (or debug.log_file)",
			},
			&cli.IntFlag{
				Name:  "history",
				Usage: "Snapshots kept in history (overrides config)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "replay",
				Aliases:   []string{"r"},
				Usage:     "Apply a transaction script and report tag sets and reaction counts",
				ArgsUsage: "<script.toml>",
				Flags:     []cli.Flag{tagFlag, jsonFlag},
				Action:    replayCommand,
			},
			{
				Name:      "get",
				Usage:     "Replay a script and print the value at a path",
				ArgsUsage: "<script.toml> <path>",
				Flags:     []cli.Flag{jsonFlag},
				Action:    getCommand,
			},
			{
				Name:   "tags",
				Usage:  "List configured tags",
				Action: tagsCommand,
			},
			{
				Name:      "mirror",
				Aliases:   []string{"m"},
				Usage:     "Mirror a directory into the model and print tag changes until interrupted",
				ArgsUsage: "[dir]",
				Flags: []cli.Flag{
					tagFlag,
					&cli.BoolFlag{
						Name:  "once",
						Usage: "Scan once, print the tag sets and exit",
					},
				},
				Action: mirrorCommand,
			},
			{
				Name:  "version",
				Usage: "Show version information",
				Action: func(c *cli.Context) error {
					fmt.Fprintln(c.App.Writer, version.FullInfo())
					return nil
				},
			},
		},
		Before: func(c *cli.Context) error {
			if c.NArg() == 0 || c.Args().Get(0) == "help" || c.Args().Get(0) == "version" {
				return nil
			}

			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config from %s: %w", c.String("config"), err)
			}
			if h := c.Int("history"); h > 0 {
				cfg.Model.HistorySize = h
			}
			if c.Bool("debug") || cfg.Debug.Enabled {
				if err := setupDebug(c, cfg); err != nil {
					return err
				}
			}

			if c.App.Metadata == nil {
				c.App.Metadata = make(map[string]interface{})
			}
			c.App.Metadata[configKey] = cfg
			return nil
		},
		After: func(c *cli.Context) error {
			return debug.CloseDebugLog()
		},
	}
}

// setupDebug routes debug output: to debug.log_file when set, to stderr for
// --debug, otherwise to a fresh file in the temp directory
func setupDebug(c *cli.Context, cfg *config.Config) error {
	debug.SetEnabled(true)
	switch {
	case cfg.Debug.LogFile != "":
		if err := debug.InitDebugLogFileAt(cfg.Debug.LogFile); err != nil {
			return fmt.Errorf("failed to open debug log: %w", err)
		}
	case c.Bool("debug"):
		debug.SetDebugOutput(c.App.ErrWriter)
	default:
		path, err := debug.InitDebugLogFile()
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.ErrWriter, "debug log: %s\n", path)
	}
	return nil
}

// loadedConfig returns the configuration prepared by Before
func loadedConfig(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[configKey].(*config.Config); ok {
		return cfg
	}
	return config.Default()
}

func newModel(cfg *config.Config) *reactive.ReactiveModel {
	return reactive.New(
		reactive.WithName(cfg.Model.Name),
		reactive.WithHistorySize(cfg.Model.HistorySize),
	)
}
