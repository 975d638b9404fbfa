package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/adrianliechti/glimpse/server"
)

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	address := fs.String("address", "", "listen address, overrides the configuration")

	cfg, err := loadConfig(fs, args)

	if err != nil {
		return err
	}

	if *address != "" {
		cfg.Address = *address
	}

	r, err := cfg.Recognizer()

	if err != nil {
		return err
	}

	if health := r.Health(ctx); !health.Healthy() {
		slog.Warn("backend not ready", "status", health.Status, "expected", health.Expected, "actual", health.Actual, "error", health.Error)
	}

	s, err := server.New(cfg, r, version)

	if err != nil {
		return err
	}

	return s.ListenAndServe(ctx)
}

func runHealth(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)

	cfg, err := loadConfig(fs, args)

	if err != nil {
		return err
	}

	r, err := cfg.Recognizer()

	if err != nil {
		return err
	}

	health := r.Health(ctx)

	fmt.Fprintf(os.Stdout, "backend: %s\nmodel: %s\nstatus: %s\n", cfg.Backend, cfg.Model, health.Status)

	if health.Actual != "" && health.Actual != health.Expected {
		fmt.Fprintf(os.Stdout, "available: %s\n", health.Actual)
	}

	if !health.Healthy() {
		if health.Error != "" {
			return errors.New(health.Error)
		}

		return fmt.Errorf("backend is %s", health.Status)
	}

	return nil
}
