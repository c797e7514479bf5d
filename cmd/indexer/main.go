package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/pflag"

	"github.com/seanblong/ragpipe/internal/app"
	"github.com/seanblong/ragpipe/internal/config"
	"github.com/seanblong/ragpipe/internal/indexer"
	"github.com/seanblong/ragpipe/internal/metrics"
)

func main() {
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("ragpipe-indexer", pflag.ExitOnError)
	quiet := fs.Bool("quiet", false, "Disable the progress bar")

	cfg, err := config.Load("", fs, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	fs.Usage = cfg.Usage

	logger, err := app.NewLogger(cfg.LogLevel, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, !*quiet); err != nil {
		logger.Error().Err(err).Msg("indexing failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Specification, showProgress bool) error {
	ch, err := app.NewChunker(cfg)
	if err != nil {
		return err
	}
	emb, err := app.NewEmbedder(cfg)
	if err != nil {
		return err
	}
	st, release, err := app.OpenStore(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer release()

	opts := app.BuildOptions(cfg)
	var bar *progressbar.ProgressBar
	if showProgress {
		opts.Progress = func(done, total int) {
			if bar == nil {
				bar = newProgressBar(total)
			}
			_ = bar.Set(done)
		}
	}

	ix, err := indexer.New(app.NewLoader(cfg), ch, emb, st, opts)
	if err != nil {
		return err
	}
	report, err := ix.Run(ctx)
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return err
	}

	for _, s := range report.Skipped {
		log.Warn().Str("path", s.Path).Err(s.Err).Msg("skipped")
	}
	printReport(report)
	return nil
}

func newProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(color.BlueString("embedding chunks")),
		progressbar.OptionSetItsString("chunks"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func printReport(r indexer.Report) {
	bold := color.New(color.Bold)
	bold.Println("Index built")
	fmt.Printf("  run:       %s\n", color.CyanString(r.RunID))
	fmt.Printf("  documents: %d\n", r.Documents)
	if len(r.Skipped) > 0 {
		fmt.Printf("  skipped:   %s\n", color.YellowString("%d", len(r.Skipped)))
	}
	fmt.Printf("  chunks:    %d\n", r.Chunks)
	fmt.Printf("  dimension: %d\n", r.Dim)
	fmt.Printf("  took:      %s\n", r.Duration.Round(time.Millisecond))
}
