package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"CivicIndex/internal/app"
	"CivicIndex/internal/config"
	"CivicIndex/internal/domain"
	"CivicIndex/internal/logging"
	"CivicIndex/internal/usecase"
)

func main() {
	cliApp := &cli.App{
		Name:  "civicindex",
		Usage: "ingest municipal documents into structured civic records",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to YAML config",
				EnvVars: []string{"CIVICINDEX_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API",
				Action: serveAction,
			},
			{
				Name:      "crawl",
				Usage:     "crawl a URL, or every configured site when none is given",
				ArgsUsage: "[url]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "category", Usage: "category hint for every record"},
					&cli.StringFlag{Name: "source", Usage: "source name hint"},
					&cli.BoolFlag{Name: "recursive", Usage: "follow navigation links"},
					&cli.BoolFlag{Name: "parse-html", Value: true, Usage: "ingest the page text itself"},
					&cli.IntFlag{Name: "max-pages", Usage: "page budget (default 50)"},
				},
				Action: crawlAction,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(c *cli.Context) (context.Context, context.CancelFunc, *app.Application, error) {
	cfg := config.LoadFrom(c.String("config"))
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		stop()
		return nil, nil, nil, err
	}
	return ctx, stop, application, nil
}

func serveAction(c *cli.Context) error {
	ctx, stop, application, err := setup(c)
	if err != nil {
		return err
	}
	defer stop()
	defer application.Close(context.WithoutCancel(ctx))

	return application.Serve(ctx)
}

func crawlAction(c *cli.Context) error {
	ctx, stop, application, err := setup(c)
	if err != nil {
		return err
	}
	defer stop()
	defer application.Close(context.WithoutCancel(ctx))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if c.NArg() == 0 {
		return enc.Encode(application.CrawlSites(ctx))
	}

	opts := usecase.CrawlOptions{
		Source:    c.String("source"),
		ParseHTML: c.Bool("parse-html"),
		Recursive: c.Bool("recursive"),
		MaxPages:  c.Int("max-pages"),
	}
	if raw := c.String("category"); raw != "" {
		category, ok := domain.ParseCategory(raw)
		if !ok {
			return fmt.Errorf("unknown category %q", raw)
		}
		opts.Category = category
	}

	report, err := application.Crawl(ctx, c.Args().First(), opts)
	if err != nil {
		return err
	}
	return enc.Encode(report)
}
