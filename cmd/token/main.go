package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/seanblong/ragpipe/internal/auth"
	"github.com/seanblong/ragpipe/internal/config"
)

func main() {
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("ragpipe-token", pflag.ExitOnError)
	subject := fs.String("subject", "", "Token subject (required)")
	admin := fs.Bool("admin", false, "Grant the admin claim")
	ttl := fs.Duration("ttl", auth.DefaultTTL, "Token lifetime")

	cfg, err := config.Load("", fs, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	fs.Usage = cfg.Usage

	if *subject == "" {
		fmt.Fprintln(os.Stderr, "--subject is required")
		os.Exit(2)
	}

	// Tokens are signed even when the API runs with auth disabled.
	a, err := auth.New(cfg.Auth.JwtSecret, cfg.Auth.Issuer, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure auth: %v\n", err)
		os.Exit(1)
	}
	token, err := a.IssueToken(*subject, *admin, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
