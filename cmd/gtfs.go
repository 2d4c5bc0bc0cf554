package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/transitboard/gtfs"
	"github.com/transitboard/gtfs/config"
	"github.com/transitboard/gtfs/internal/export"
	"github.com/transitboard/gtfs/server"
)

func main() {
	app := &cli.App{
		Name:  "gtfs-engine",
		Usage: "load, query and serve GTFS schedule datasets",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log debug details",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "inspect",
				Usage:     "load a dataset and print a summary",
				ArgsUsage: "dir",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-cache",
						Usage: "parse the text tables even when a cache exists",
					},
				},
				Action: func(ctx *cli.Context) error {
					dir, err := datasetDir(ctx)
					if err != nil {
						return err
					}
					result, err := load(ctx, dir, !ctx.Bool("no-cache"))
					if err != nil {
						return err
					}
					fmt.Print(formatSummary(result))
					return nil
				},
			},
			{
				Name:      "routes",
				Usage:     "find the single-trip itineraries between two stops",
				ArgsUsage: "dir",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "from",
						Usage:    "origin stop ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "to",
						Usage:    "destination stop ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "date",
						Usage: "keep only trips whose service runs on this YYYY-MM-DD day",
					},
					&cli.StringFlag{
						Name:  "output",
						Usage: "output format: table, csv or json",
						Value: "table",
					},
				},
				Action: func(ctx *cli.Context) error {
					dir, err := datasetDir(ctx)
					if err != nil {
						return err
					}
					result, err := load(ctx, dir, true)
					if err != nil {
						return err
					}
					var date *time.Time
					if v := ctx.String("date"); v != "" {
						d, err := time.Parse("2006-01-02", v)
						if err != nil {
							return fmt.Errorf("failed to parse date %q: %w", v, err)
						}
						date = &d
					}
					itineraries := result.Feed.FindItineraries(ctx.String("from"), ctx.String("to"), date)
					if ctx.String("output") == "table" {
						fmt.Print(formatItineraries(itineraries))
						return nil
					}
					format, err := export.ParseFormat(ctx.String("output"))
					if err != nil {
						return err
					}
					return export.Itineraries(os.Stdout, format, itineraries)
				},
			},
			{
				Name:      "stations",
				Usage:     "search stops by name",
				ArgsUsage: "dir",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "query",
						Aliases:  []string{"q"},
						Usage:    "substring to match against stop names and their translations",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "lang",
						Usage: "language tag for the displayed names",
					},
					&cli.StringFlag{
						Name:  "output",
						Usage: "output format: table, csv or json",
						Value: "table",
					},
				},
				Action: func(ctx *cli.Context) error {
					dir, err := datasetDir(ctx)
					if err != nil {
						return err
					}
					result, err := load(ctx, dir, true)
					if err != nil {
						return err
					}
					stops := result.Feed.SearchStops(ctx.String("query"), 0)
					lang := ctx.String("lang")
					if ctx.String("output") == "table" {
						fmt.Print(formatStations(result.Feed, stops, lang))
						return nil
					}
					format, err := export.ParseFormat(ctx.String("output"))
					if err != nil {
						return err
					}
					return export.Stops(os.Stdout, format, result.Feed, stops, lang)
				},
			},
			{
				Name:      "cache",
				Usage:     "build or remove a dataset's cache artifacts",
				ArgsUsage: "dir",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "clear",
						Usage: "remove the artifacts instead of building them",
					},
				},
				Action: func(ctx *cli.Context) error {
					dir, err := datasetDir(ctx)
					if err != nil {
						return err
					}
					if ctx.Bool("clear") {
						if err := gtfs.ClearCache(dir, options(ctx)); err != nil {
							return fmt.Errorf("failed to clear cache: %w", err)
						}
						fmt.Println("Cache cleared")
						return nil
					}
					result, err := load(ctx, dir, true)
					if err != nil {
						return err
					}
					if result.FromCache {
						fmt.Println("Cache already up to date")
					} else {
						fmt.Println("Cache written")
					}
					return nil
				},
			},
			{
				Name:  "serve",
				Usage: "run the query HTTP server over a directory of datasets",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "path to a YAML config file",
					},
				},
				Action: func(ctx *cli.Context) error {
					cfg, err := config.Load(ctx.String("config"))
					if err != nil {
						return err
					}
					level := cfg.SlogLevel()
					if ctx.Bool("verbose") {
						level = slog.LevelDebug
					}
					logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

					providers, err := gtfs.DiscoverProviders(cfg.DataRoot)
					if err != nil {
						return err
					}
					logger.Info("discovered providers", "count", len(providers), "root", cfg.DataRoot)

					session := gtfs.NewSession(gtfs.Options{
						Workers:  cfg.Workers,
						Logger:   logger,
						CacheDir: cfg.CacheDir,
					})
					runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
					defer stop()

					if cfg.DefaultProvider != "" {
						provider, ok := findProvider(providers, cfg.DefaultProvider)
						if !ok {
							return fmt.Errorf("default provider %q not found under %s", cfg.DefaultProvider, cfg.DataRoot)
						}
						if _, err := session.Use(runCtx, provider); err != nil {
							return err
						}
					}

					srv := server.New(server.Options{
						Session:         session,
						Providers:       providers,
						Logger:          logger,
						DefaultLanguage: cfg.DefaultLanguage,
						CORSOrigins:     cfg.CORSOrigins,
					})
					return srv.Run(runCtx, cfg.Addr, cfg.ShutdownGrace())
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}

func datasetDir(ctx *cli.Context) (string, error) {
	if ctx.Args().Len() == 0 {
		return "", fmt.Errorf("a dataset directory was not provided")
	}
	return ctx.Args().First(), nil
}

func options(ctx *cli.Context) gtfs.Options {
	level := slog.LevelInfo
	if ctx.Bool("verbose") {
		level = slog.LevelDebug
	}
	return gtfs.Options{
		Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
	}
}

func load(ctx *cli.Context, dir string, cached bool) (*gtfs.LoadResult, error) {
	var result *gtfs.LoadResult
	var err error
	if cached {
		result, err = gtfs.LoadOrBuild(ctx.Context, dir, options(ctx))
	} else {
		result, err = gtfs.Load(ctx.Context, dir, options(ctx))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset %s: %w", dir, err)
	}
	return result, nil
}

func formatSummary(result *gtfs.LoadResult) string {
	var b strings.Builder
	c := color.New(color.FgCyan)
	source := "parsed from text tables"
	if result.FromCache {
		source = "restored from cache"
	}
	fmt.Fprintf(&b, "Dataset %s\n", source)
	fmt.Fprintf(&b, "Stops    %s\n", c.Sprint(len(result.Feed.Stops)))
	fmt.Fprintf(&b, "Routes   %s\n", c.Sprint(len(result.Feed.Routes)))
	fmt.Fprintf(&b, "Trips    %s\n", c.Sprint(len(result.Feed.Trips)))
	fmt.Fprintf(&b, "Services %s\n", c.Sprint(len(result.Feed.Services)))
	fmt.Fprintf(&b, "Shapes   %s\n", c.Sprint(len(result.Feed.Shapes)))
	if len(result.Warnings) > 0 {
		wc := color.New(color.FgYellow)
		fmt.Fprintf(&b, "Warnings %s\n", wc.Sprint(len(result.Warnings)))
		for _, warning := range result.Warnings {
			fmt.Fprintf(&b, "  - %s\n", warning.Error())
		}
	}
	if stages := result.Metrics.Stages(); len(stages) > 0 {
		fmt.Fprint(&b, "Timings:\n")
		for _, stage := range stages {
			fmt.Fprintf(&b, "  %-14s %s\n", stage.Name, stage.Duration.Round(time.Microsecond))
		}
		fmt.Fprintf(&b, "  %-14s %s\n", "total", result.Metrics.Total().Round(time.Microsecond))
	}
	return b.String()
}

func formatItineraries(itineraries []gtfs.Itinerary) string {
	if len(itineraries) == 0 {
		return "No itineraries found\n"
	}
	var b strings.Builder
	tc := color.New(color.FgCyan)
	sc := color.New(color.FgGreen)
	for _, row := range export.NewItineraryRows(itineraries) {
		fmt.Fprintf(&b, "%s -> %s  trip %s  route %s  %d min  via %s\n",
			sc.Sprint(row.Departure),
			sc.Sprint(row.Arrival),
			tc.Sprint(row.TripID),
			tc.Sprint(row.RouteID),
			row.DurationMinutes,
			strings.Join(row.Stops, " "),
		)
	}
	return b.String()
}

func formatStations(feed *gtfs.Feed, stops []*gtfs.Stop, lang string) string {
	if len(stops) == 0 {
		return "No stations found\n"
	}
	var b strings.Builder
	tc := color.New(color.FgCyan)
	for _, row := range export.NewStopRows(feed, stops, lang) {
		fmt.Fprintf(&b, "%s  %s (%g, %g)\n", tc.Sprint(row.ID), row.Name, row.Latitude, row.Longitude)
	}
	return b.String()
}

func findProvider(providers []gtfs.Provider, name string) (gtfs.Provider, bool) {
	for _, provider := range providers {
		if provider.Name == name {
			return provider, true
		}
	}
	return gtfs.Provider{}, false
}
