package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"github.com/ahrav/imgverdict/infrastructure/middleware"
	"github.com/ahrav/imgverdict/infrastructure/source"
	"github.com/ahrav/imgverdict/internal/application"
	"github.com/ahrav/imgverdict/internal/domain"
	"github.com/ahrav/imgverdict/internal/ports"
	"github.com/ahrav/imgverdict/internal/report"
)

const (
	configFlag  = "config"
	formatFlag  = "format"
	outputFlag  = "output"
	metricsFlag = "metrics"
	debugFlag   = "debug"
)

// detectFlags returns new flags per command tree; parsed values live on
// the flag.
func detectFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:      configFlag,
			Aliases:   []string{"c"},
			Usage:     "Path to the YAML configuration (optional, defaults to every provider with a key in the environment)",
			TakesFile: true,
			Sources:   cli.EnvVars("IMGVERDICT_CONFIG"),
		},
		&cli.StringFlag{
			Name:    formatFlag,
			Aliases: []string{"f"},
			Usage:   fmt.Sprintf("Output format [%s]", formatNames()),
			Value:   string(report.FormatTable),
		},
		&cli.StringFlag{
			Name:      outputFlag,
			Aliases:   []string{"o"},
			Usage:     "Write the report to this file instead of stdout",
			TakesFile: true,
		},
		&cli.StringFlag{
			Name:      metricsFlag,
			Usage:     "Write Prometheus metrics of the run to this file in text format (optional)",
			TakesFile: true,
		},
		&cli.BoolFlag{
			Name:  debugFlag,
			Usage: "Prints verbose logs (optional, default: false)",
		},
	}
}

func newApp(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:            "imgverdict",
		Usage:           "Estimate whether images are AI-generated by asking several detection sources",
		Version:         version,
		Writer:          stdout,
		ErrWriter:       stderr,
		HideHelpCommand: true,
		Commands: []*cli.Command{
			{
				Name:      "detect",
				Usage:     "Score image files and print one verdict per image",
				ArgsUsage: "FILE...",
				Description: fmt.Sprintf("Source types usable in the configuration: %s.",
					strings.Join(source.RegisteredProviders(), ", ")),
				Flags:     detectFlags(),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runDetect(ctx, cmd, stdout, stderr)
				},
			},
		},
	}
}

func runDetect(ctx context.Context, cmd *cli.Command, stdout, stderr io.Writer) error {
	logger := newLogger(stderr, cmd.Bool(debugFlag))

	format := report.Format(strings.ToLower(cmd.String(formatFlag)))
	presenter, err := report.NewPresenter(format)
	if err != nil {
		return err
	}
	output := cmd.String(outputFlag)
	if format.IsBinary() && output == "" {
		return fmt.Errorf("format %s is binary and needs --%s", format, outputFlag)
	}

	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return errors.New("no image files given")
	}

	cfg, err := loadConfig(cmd.String(configFlag))
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	metrics := middleware.NewPrometheusMetrics(registry)
	metrics.SetErrorHandler(func(err error) {
		logger.Warn("metric dropped", "error", err)
	})
	processor, err := application.NewBatchProcessorFromConfig(cfg, application.RuntimeOptions{
		Metrics:  metrics,
		Observer: middleware.NewOTelBatchObserver(metrics),
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	result := processor.ProcessFiles(ctx, paths)

	if err := writeReport(presenter, output, stdout, result); err != nil {
		return err
	}
	if format != report.FormatTable || output != "" {
		reportErrors(stderr, result.Errors)
	}

	if path := cmd.String(metricsFlag); path != "" {
		if err := prometheus.WriteToTextfile(path, registry); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return nil
}

// loadConfig reads path, or falls back to defaults plus a .env file in the
// working directory when no path is given.
func loadConfig(path string) (*application.Config, error) {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
		return application.DefaultConfig(), nil
	}

	loader, err := application.NewConfigLoader()
	if err != nil {
		return nil, err
	}
	return loader.LoadFromFile(path)
}

func writeReport(p ports.Presenter, output string, stdout io.Writer, result domain.BatchResult) error {
	if output == "" {
		return p.Present(stdout, result)
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := p.Present(f, result); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// reportErrors lists rejected images on stderr for formats that do not
// carry them.
func reportErrors(w io.Writer, errs []domain.ImageError) {
	for _, e := range errs {
		fmt.Fprintf(w, "skipped %s: %s\n", e.File, e.Reason)
	}
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func formatNames() string {
	names := make([]string, len(report.Formats))
	for i, f := range report.Formats {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}
