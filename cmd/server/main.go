package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/agenthands/graphdiff/internal/app"
	"github.com/agenthands/graphdiff/internal/config"
	"github.com/agenthands/graphdiff/internal/server"
)

// Minimal HTTP entrypoint for containers. `graphdiff serve` adds graceful
// shutdown and the CLI commands.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using defaults")
	}

	path := os.Getenv("GRAPHDIFF_CONFIG")
	if path == "" {
		path = "config/config.toml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal(err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()}))

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	if err := run(ctx, a, logger); err != nil {
		log.Fatal(err)
	}
}

// run serves the API until the listener fails, then releases the app.
func run(ctx context.Context, a *app.App, logger *slog.Logger) (err error) {
	defer func() {
		err = errors.Join(err, a.Close(ctx))
	}()

	r := server.NewServer(a.Engine, a.Config.Diff.DefaultBranch, logger).SetupRouter()

	log.Printf("Starting server on %s", a.Config.Server.Address)
	return r.Run(a.Config.Server.Address)
}
