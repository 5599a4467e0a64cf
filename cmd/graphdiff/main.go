package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/agenthands/graphdiff/internal/app"
	"github.com/agenthands/graphdiff/internal/config"
	"github.com/agenthands/graphdiff/internal/core/coordinator"
	"github.com/agenthands/graphdiff/internal/core/model"
	"github.com/agenthands/graphdiff/internal/server"
)

var (
	configPath string
	diffFlags  struct {
		base       string
		branch     string
		from       string
		to         string
		trackingID string
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp loads the configuration and connects the engine. The caller must
// Close the returned App.
func newApp(ctx context.Context) (*app.App, *slog.Logger, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("loading .env: %w", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("reading config: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()}))
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, logger, nil
}

func diffRequest(defaultBranch string) (coordinator.DiffRequest, error) {
	req := coordinator.DiffRequest{
		BaseBranch: diffFlags.base,
		DiffBranch: diffFlags.branch,
		TrackingID: model.TrackingID(diffFlags.trackingID),
	}
	if req.BaseBranch == "" {
		req.BaseBranch = defaultBranch
	}
	var err error
	if diffFlags.from != "" {
		if req.From, err = model.ParseTimestamp(diffFlags.from); err != nil {
			return req, fmt.Errorf("parsing --from: %w", err)
		}
	}
	if diffFlags.to != "" {
		if req.To, err = model.ParseTimestamp(diffFlags.to); err != nil {
			return req, fmt.Errorf("parsing --to: %w", err)
		}
	}
	return req, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var rootCmd = &cobra.Command{
	Use:          "graphdiff",
	Short:        "Branch diff and merge-conflict engine for a versioned graph",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, logger, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		srv := &http.Server{
			Addr:              a.Config.Server.Address,
			Handler:           server.NewServer(a.Engine, a.Config.Diff.DefaultBranch, logger).SetupRouter(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		errCh := make(chan error, 1)
		go func() {
			logger.Info("starting server", "address", srv.Addr)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Print the enriched diff of a branch",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		req, err := diffRequest(a.Config.Diff.DefaultBranch)
		if err != nil {
			return err
		}
		root, err := a.Engine.GetDiff(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("computing diff: %w", err)
		}
		return printJSON(root)
	},
}

var conflictsCmd = &cobra.Command{
	Use:   "conflicts [conflict-id...]",
	Short: "List the conflicts of a branch",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		req, err := diffRequest(a.Config.Diff.DefaultBranch)
		if err != nil {
			return err
		}
		conflicts, err := a.Engine.GetConflicts(cmd.Context(), req, args...)
		if err != nil {
			return fmt.Errorf("listing conflicts: %w", err)
		}
		return printJSON(conflicts)
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <conflict-id> <base_branch|diff_branch|none>",
	Short: "Choose which branch wins a conflict",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw := args[1]
		if raw == "none" {
			raw = ""
		}
		selection, err := model.ParseConflictSelection(raw)
		if err != nil {
			return err
		}

		a, _, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		if err := a.Engine.ResolveConflict(cmd.Context(), args[0], selection); err != nil {
			return fmt.Errorf("resolving conflict: %w", err)
		}
		fmt.Printf("Conflict %s resolved: %s\n", args[0], args[1])
		return nil
	},
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the branch's conflicts on its open proposed changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		req, err := diffRequest(a.Config.Diff.DefaultBranch)
		if err != nil {
			return err
		}
		results, err := a.Engine.RecordConflicts(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("recording conflicts: %w", err)
		}
		return printJSON(results)
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Print the merge batches of a branch",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		req, err := diffRequest(a.Config.Diff.DefaultBranch)
		if err != nil {
			return err
		}
		batches, err := a.Engine.PreviewMerge(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("serializing diff: %w", err)
		}
		return printJSON(batches)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.toml", "path to the TOML configuration")

	for _, cmd := range []*cobra.Command{diffCmd, conflictsCmd, recordCmd, previewCmd} {
		cmd.Flags().StringVar(&diffFlags.base, "base", "", "base branch (defaults to the configured default branch)")
		cmd.Flags().StringVar(&diffFlags.branch, "branch", "", "branch to diff")
		cmd.Flags().StringVar(&diffFlags.from, "from", "", "window start, RFC3339 (defaults to the branch creation time)")
		cmd.Flags().StringVar(&diffFlags.to, "to", "", "window end, RFC3339 (defaults to now)")
		cmd.Flags().StringVar(&diffFlags.trackingID, "tracking-id", "", "extend the diff tracked under this id")
		_ = cmd.MarkFlagRequired("branch")
	}

	rootCmd.AddCommand(serveCmd, diffCmd, conflictsCmd, resolveCmd, recordCmd, previewCmd)
}
