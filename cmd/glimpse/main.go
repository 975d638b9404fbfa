package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/adrianliechti/glimpse/config"
	"github.com/adrianliechti/glimpse/pkg/otel"

	"github.com/joho/godotenv"
)

var version = "dev"

func main() {
	godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}

		fmt.Fprintf(os.Stderr, "glimpse: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	shutdown, err := otel.Setup(ctx, "glimpse")

	if err != nil {
		return err
	}

	defer shutdown(context.Background())

	command := "convert"

	if len(args) > 0 {
		switch args[0] {
		case "serve", "health", "convert":
			command = args[0]
			args = args[1:]
		}
	}

	switch command {
	case "serve":
		return runServe(ctx, args)

	case "health":
		return runHealth(ctx, args)

	default:
		return runConvert(ctx, args)
	}
}

func loadConfig(fs *flag.FlagSet, args []string) (*config.Config, error) {
	path := fs.String("config", os.Getenv("GLIMPSE_CONFIG"), "path to a YAML configuration file")
	verbose := fs.Bool("verbose", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	return config.Load(*path)
}
