package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/seanblong/ragpipe/internal/app"
	"github.com/seanblong/ragpipe/internal/config"
	"github.com/seanblong/ragpipe/internal/rag"
	"github.com/seanblong/ragpipe/internal/search"
	"github.com/seanblong/ragpipe/pkg/models"
)

func main() {
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("ragpipe-query", pflag.ExitOnError)
	answer := fs.Bool("answer", false, "Generate an answer from the retrieved context")
	cfg, err := config.Load("", fs, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: ragpipe-query [flags] <question>")
		cfg.Usage()
	}

	q := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if q == "" {
		fs.Usage()
		os.Exit(2)
	}

	if _, err := app.NewLogger(cfg.LogLevel, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.Timeout()+5*time.Second)
	defer cancel()

	if err := run(ctx, cfg, q, *answer); err != nil {
		color.Red("error: %v", err)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Specification, q string, answer bool) error {
	emb, err := app.NewEmbedder(cfg)
	if err != nil {
		return err
	}
	st, release, err := app.OpenStore(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer release()
	svc := search.NewService(emb, st)

	if !answer {
		results, err := svc.Query(ctx, q, cfg.TopK)
		if err != nil {
			return err
		}
		printResults(results)
		return nil
	}

	gen, err := app.NewGenerator(cfg)
	if err != nil {
		return err
	}
	ans, err := rag.New(svc, gen, cfg.TopK, cfg.MaxTokens).Answer(ctx, q)
	if err != nil {
		return err
	}
	printAnswer(ans)
	return nil
}

func printResults(results []models.SearchResult) {
	if len(results) == 0 {
		color.Yellow("no results")
		return
	}
	for i, r := range results {
		fmt.Printf("%s %s %s\n",
			color.New(color.Bold).Sprintf("%d.", i+1),
			color.CyanString(r.Entry.Source),
			color.HiBlackString("(distance %.4f)", r.Distance))
		fmt.Println(indent(r.Entry.Content))
	}
}

func printAnswer(ans rag.Answer) {
	if ans.Degraded {
		color.Yellow("%s", ans.Text)
	} else {
		color.New(color.Bold).Println(ans.Text)
	}
	if len(ans.Sources) == 0 {
		return
	}
	fmt.Println()
	fmt.Println(color.HiBlackString("sources:"))
	seen := make(map[string]bool)
	for _, e := range ans.Sources {
		if seen[e.Source] {
			continue
		}
		seen[e.Source] = true
		fmt.Printf("  - %s\n", color.CyanString(e.Source))
	}
}

func indent(s string) string {
	return "   " + strings.ReplaceAll(strings.TrimSpace(s), "\n", "\n   ")
}
