package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/greg-randall/memento-mori/archive"
	"github.com/greg-randall/memento-mori/common/config"
	"github.com/greg-randall/memento-mori/common/logging"
	"github.com/greg-randall/memento-mori/common/runctx"
	"github.com/greg-randall/memento-mori/mediaproc"
	"github.com/greg-randall/memento-mori/site"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

const version = "1.0.0"

func main() {
	app := &cli.App{
		Name:    "memento-mori",
		Usage:   "Turn an Instagram data export into a standalone static website",
		Version: version,
		Description: `Reads an unpacked Instagram export, converts its media to WebP,
generates grid thumbnails, and renders a self-contained static site
into the output directory.

Flags can also be set via environment variables, e.g.:

--input  => MEMENTO_INPUT=/path/to/export
--output => MEMENTO_OUTPUT=./site`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Usage:   "Directory containing the unpacked Instagram export",
				EnvVars: []string{"MEMENTO_INPUT"},
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Directory to write the generated site into",
				EnvVars: []string{"MEMENTO_OUTPUT"},
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a yaml configuration file",
				EnvVars: []string{"MEMENTO_CONFIG"},
			},
			&cli.IntFlag{
				Name:    "workers",
				Usage:   "Number of parallel media workers",
				EnvVars: []string{"MEMENTO_WORKERS"},
			},
			&cli.IntFlag{
				Name:    "quality",
				Usage:   "WebP quality (1-100)",
				EnvVars: []string{"MEMENTO_QUALITY"},
			},
			&cli.IntFlag{
				Name:    "max-dimension",
				Usage:   "Downscale images whose longest side exceeds this many pixels (0 disables)",
				Value:   -1,
				EnvVars: []string{"MEMENTO_MAX_DIMENSION"},
			},
			&cli.StringFlag{
				Name:    "thumbnail-size",
				Usage:   "Grid thumbnail dimensions as WxH, or one number for a square",
				EnvVars: []string{"MEMENTO_THUMBNAIL_SIZE"},
			},
			&cli.StringFlag{
				Name:    "story-thumbnail-size",
				Usage:   "Story thumbnail dimensions as WxH",
				EnvVars: []string{"MEMENTO_STORY_THUMBNAIL_SIZE"},
			},
			&cli.IntFlag{
				Name:    "lazy-after",
				Usage:   "Grid position after which images load lazily",
				Value:   -1,
				EnvVars: []string{"MEMENTO_LAZY_AFTER"},
			},
			&cli.StringFlag{
				Name:    "gtag-id",
				Usage:   "Google tag ID to embed in the generated pages",
				EnvVars: []string{"MEMENTO_GTAG_ID"},
			},
			&cli.StringFlag{
				Name:    "log-dir",
				Usage:   "Directory for log files ('-' logs to stdout only)",
				EnvVars: []string{"MEMENTO_LOG_DIR"},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
				EnvVars: []string{"MEMENTO_VERBOSE"},
			},
			&cli.BoolFlag{
				Name:    "json-logs",
				Usage:   "Emit logs as json",
				EnvVars: []string{"MEMENTO_JSON_LOGS"},
			},
			&cli.BoolFlag{
				Name:    "log-colors",
				Usage:   "Colorize log output",
				EnvVars: []string{"MEMENTO_LOG_COLORS"},
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func run(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return err
	}

	err = logging.Setup(cfg.Logging.Directory, cfg.Logging.Colors, cfg.Logging.JsonLogs, cfg.Logging.Level)
	if err != nil {
		return err
	}

	rctx := runctx.Initial(cfg)
	rctx.Log.Info("memento-mori ", version)
	rctx.Log.Info("Reading export from ", cfg.Input)

	mapper := archive.NewMapper(cfg.Input)
	arc, err := archive.Load(rctx, mapper)
	if err != nil {
		return err
	}
	rctx.Log.WithFields(logrus.Fields{
		"posts":   len(arc.Posts),
		"stories": len(arc.Stories),
		"range":   arc.DateRange.Range,
	}).Info("Export loaded")

	pipeline := mediaproc.NewPipeline(rctx)
	stats, err := pipeline.Process(rctx, arc)
	if err != nil {
		return err
	}

	generator := &site.Generator{OutDir: cfg.Output}
	pages, err := generator.Generate(rctx, arc)
	if err != nil {
		return err
	}

	report, err := site.Verify(rctx, cfg.Output, pages, pipeline.SourceFor)
	if err != nil {
		return err
	}

	rctx.Log.Infof("Site generated at %s (saved %s of media)",
		cfg.Output, humanize.Bytes(uint64(stats.SpaceSaved())))
	if stats.Failed > 0 {
		rctx.Log.Warnf("%d media files failed to process", stats.Failed)
		for _, p := range stats.FailedPaths {
			rctx.Log.Warn("  failed: ", p)
		}
	}
	if len(report.Unresolved) > 0 {
		rctx.Log.Warnf("%d media references could not be resolved", len(report.Unresolved))
		for _, ref := range report.Unresolved {
			rctx.Log.Warn("  unresolved: ", ref)
		}
	}

	return nil
}

// buildConfig layers flags over the config file over the defaults. A flag
// that was not given leaves the lower layer's value in place.
func buildConfig(c *cli.Context) (*config.ArchiveConfig, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	if v := c.String("input"); v != "" {
		cfg.Input = v
	}
	if v := c.String("output"); v != "" {
		cfg.Output = v
	}
	if v := c.Int("workers"); v > 0 {
		cfg.NumWorkers = v
	}
	if v := c.Int("quality"); v > 0 {
		cfg.Quality = v
	}
	if v := c.Int("max-dimension"); v >= 0 {
		cfg.MaxDimension = v
	}
	if v := c.String("thumbnail-size"); v != "" {
		w, h, err := config.ParseDimensions(v)
		if err != nil {
			return nil, fmt.Errorf("invalid --thumbnail-size: %w", err)
		}
		cfg.Thumbnails.Width = w
		cfg.Thumbnails.Height = h
	}
	if v := c.String("story-thumbnail-size"); v != "" {
		w, h, err := config.ParseDimensions(v)
		if err != nil {
			return nil, fmt.Errorf("invalid --story-thumbnail-size: %w", err)
		}
		cfg.Thumbnails.StoryWidth = w
		cfg.Thumbnails.StoryHeight = h
	}
	if v := c.Int("lazy-after"); v >= 0 {
		cfg.Grid.LazyLoadAfter = v
	}
	if v := c.String("gtag-id"); v != "" {
		cfg.GtagID = v
	}
	if v := c.String("log-dir"); v != "" {
		cfg.Logging.Directory = v
	}
	if c.Bool("verbose") {
		cfg.Logging.Level = "debug"
	}
	if c.Bool("json-logs") {
		cfg.Logging.JsonLogs = true
	}
	if c.Bool("log-colors") {
		cfg.Logging.Colors = true
	}

	return cfg, cfg.Validate()
}
