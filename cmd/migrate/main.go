package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aipainter/backend/internal/config"
	"github.com/aipainter/backend/internal/migrations"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.New()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}

	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		fmt.Println("Error: migration command is required")
		fmt.Println("Usage: migrate [command] [args]")
		fmt.Println("Commands: up, down, status, redo")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	slog.Info("starting migration", "command", args[0])
	if err := migrations.Run(ctx, cfg.DatabaseURL, args[0], args[1:]...); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}
	slog.Info("migration finished")
}
