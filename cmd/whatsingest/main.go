package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"whatsingest/internal/config"
	"whatsingest/internal/database"
	"whatsingest/internal/models"
	"whatsingest/internal/tracing"
	"whatsingest/pkg/ingest"
)

var version = "dev"

type app struct {
	cfg    *models.Config
	logger *logrus.Logger
	tracer *tracing.Manager
	store  *database.Store
	client *ingest.Client
}

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "whatsingest",
		Short:         "WhatsApp message and media ingestion client",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "path to configuration file")

	rootCmd.AddCommand(newExtractCmd(&configPath))
	rootCmd.AddCommand(newServeCmd(&configPath))
	rootCmd.AddCommand(newCleanupCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads configuration and wires the shared collaborators. The
// caller owns teardown via app.close.
func setup(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	tracer := tracing.NewManager(cfg.Tracing, logger)
	if err := tracer.Initialize(ctx); err != nil {
		logger.WithError(err).Warn("Tracing initialization failed, continuing without export")
	}

	store, err := database.New(cfg.Database.Path)
	if err != nil {
		tracer.Shutdown(ctx)
		return nil, fmt.Errorf("failed to open message store: %w", err)
	}

	client, err := ingest.New(cfg.Client, ingest.Options{Logger: logger})
	if err != nil {
		store.Close()
		tracer.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		tracer: tracer,
		store:  store,
		client: client,
	}, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.store.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close message store")
	}
	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.WithError(err).Warn("Failed to shut down tracing")
	}
}

func newExtractCmd(configPath *string) *cobra.Command {
	var since, until string
	var download bool

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Pull message history and download media",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			dateRange, err := parseDateRange(since, until)
			if err != nil {
				return err
			}

			return a.runExtract(ctx, dateRange, download)
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "only messages sent after this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&until, "until", "", "only messages sent before this date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&download, "download", true, "download media for extracted messages")
	return cmd
}

func parseDateRange(since, until string) (*models.DateRange, error) {
	if since == "" && until == "" {
		return nil, nil
	}

	var dr models.DateRange
	var err error
	if since != "" {
		if dr.Start, err = time.Parse("2006-01-02", since); err != nil {
			return nil, fmt.Errorf("invalid --since date %q: %w", since, err)
		}
	}
	if until != "" {
		if dr.End, err = time.Parse("2006-01-02", until); err != nil {
			return nil, fmt.Errorf("invalid --until date %q: %w", until, err)
		}
	}
	return &dr, nil
}

func (a *app) runExtract(ctx context.Context, dateRange *models.DateRange, download bool) error {
	if !a.client.Authenticate(ctx) {
		return fmt.Errorf("authentication failed, check credentials")
	}

	messages := a.client.ExtractMessages(ctx, dateRange)
	a.logger.WithField("count", len(messages)).Info("Messages extracted")

	saved := 0
	for _, msg := range messages {
		inserted, err := a.store.SaveMessage(ctx, msg.ToRecord(), "")
		if err != nil {
			a.logger.WithError(err).Warn("Failed to save message")
			continue
		}
		if inserted {
			saved++
		}
	}
	a.logger.WithFields(logrus.Fields{
		"saved":      saved,
		"duplicates": len(messages) - saved,
	}).Info("Messages persisted")

	if !download {
		return nil
	}

	paths := a.client.DownloadMediaBatch(ctx, messages, a.cfg.Media.OutputDir)
	downloaded := 0
	for _, msg := range messages {
		if msg.Media == nil {
			continue
		}
		path := paths[msg.Media.Filename]
		if path == "" {
			continue
		}
		if !a.client.ValidateMediaFile(path, msg.Media.SizeBytes) {
			continue
		}
		if err := a.store.UpdateMediaPath(ctx, msg.ID, path); err != nil {
			a.logger.WithError(err).Warn("Failed to record media path")
			continue
		}
		downloaded++
	}
	a.logger.WithField("downloaded", downloaded).Info("Media downloads finished")

	cleaned := a.client.CleanupFailedDownloads(a.cfg.Media.OutputDir)
	if cleaned > 0 {
		a.logger.WithField("cleaned", cleaned).Info("Removed incomplete downloads")
	}

	return nil
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook receiver",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			// The webhook flow needs authenticated media resolution, but a
			// failed identity check should not keep payloads from being
			// received; resolution degrades per message instead.
			if !a.client.Authenticate(ctx) {
				a.logger.Warn("Authentication failed; media resolution will be unavailable")
			}

			server := newServer(a)
			return server.run(ctx)
		},
	}
}

func newCleanupCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove incomplete media downloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			cleaned := a.client.CleanupFailedDownloads(a.cfg.Media.OutputDir)
			a.logger.WithFields(logrus.Fields{
				"dir":     a.cfg.Media.OutputDir,
				"cleaned": cleaned,
			}).Info("Cleanup finished")
			return nil
		},
	}
}
