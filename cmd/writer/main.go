package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tashasho/social-media-posting-automator/internal/app"
	"github.com/tashasho/social-media-posting-automator/internal/config"
	"github.com/tashasho/social-media-posting-automator/internal/dispatcher"
	"github.com/tashasho/social-media-posting-automator/internal/middleware"
	"github.com/tashasho/social-media-posting-automator/internal/models"
	"github.com/tashasho/social-media-posting-automator/internal/writer"
)

var (
	configPath string
	dryRun     bool
	subject    string
	tokenTTL   time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "writer",
	Short: "Generate, review and expire social media drafts",
	Long: `writer produces critic-reviewed drafts and sends them to Slack for human
approval. Decisions are handled by the server binary.`,
	SilenceUsage: true,
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run one generation loop and request review of the accepted draft",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App, logger *zap.Logger) error {
			loop, cleanup, err := a.NewLoop()
			if err != nil {
				return err
			}
			defer cleanup()

			d, err := loop.Run(ctx)
			if errors.Is(err, writer.ErrAttemptsExhausted) {
				logger.Warn("No draft produced this run", zap.Error(err))
				return err
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", d.FileName())
			return nil
		})
	},
}

var expireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Reject pending drafts older than drafts.pending_ttl",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App, logger *zap.Logger) error {
			ttl := a.Config.Drafts.PendingTTL
			if ttl <= 0 {
				logger.Info("Pending expiry is disabled (drafts.pending_ttl = 0)")
				return nil
			}

			stale, err := a.Store.ListStale(ttl)
			if err != nil {
				return err
			}

			expired := 0
			for _, s := range stale {
				if dryRun {
					fmt.Fprintf(cmd.OutOrStdout(), "would expire %s (created %s)\n", s.Filename, s.CreatedAt.Format(time.RFC3339))
					continue
				}
				out := a.Dispatcher.Dispatch(ctx, dispatcher.Event{
					Kind:     dispatcher.ActionReject,
					DraftRef: s.Filename,
					Actor:    models.SystemExpiry,
					Reason:   "expired",
				})
				if !out.OK {
					logger.Warn("Could not expire draft", zap.String("file", s.Filename), zap.String("ack", out.Ack))
					continue
				}
				expired++
			}

			logger.Info("Expiry finished",
				zap.Int("stale", len(stale)),
				zap.Int("expired", expired),
				zap.Duration("ttl", ttl))
			return nil
		})
	},
}

var opsTokenCmd = &cobra.Command{
	Use:   "ops-token",
	Short: "Mint a bearer token for the operator endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		ttl := tokenTTL
		if ttl <= 0 {
			ttl = cfg.Ops.TokenTTL
		}

		token, err := middleware.IssueToken([]byte(cfg.Ops.JWTSecret), subject, ttl, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

// withApp loads configuration, builds the components and runs fn with a
// context cancelled on SIGINT/SIGTERM.
func withApp(parent context.Context, fn func(context.Context, *app.App, *zap.Logger) error) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger, err := app.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return fn(ctx, a, logger)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.Path(), "Path to config file (or CONFIG_PATH)")

	expireCmd.Flags().BoolVar(&dryRun, "dry-run", false, "List stale drafts without rejecting them")

	opsTokenCmd.Flags().StringVar(&subject, "subject", "operator", "Token subject")
	opsTokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (defaults to ops.token_ttl)")

	rootCmd.AddCommand(generateCmd, expireCmd, opsTokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
