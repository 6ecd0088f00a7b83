// Package main provides the CLI entry point for xlsmconv.
package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"xlsmconv/internal/config"
	"xlsmconv/internal/convert"
	"xlsmconv/internal/fetch"
	"xlsmconv/internal/server"
	"xlsmconv/internal/storage"
	"xlsmconv/internal/transcode"
)

var version = "dev"

var (
	verbose bool
	dryRun  bool
)

func main() {
	// Local runs keep storage settings in a .env file; absence is fine.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "xlsmconv",
		Short: "Convert macro-enabled workbooks to values-only XLSX",
		Long: `xlsmconv fetches a macro-enabled spreadsheet (XLSM), strips macros and
formulas while keeping last-computed cell values, publishes the resulting
XLSX to blob storage, and returns a time-limited signed download link.`,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP conversion service",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	convertCmd := &cobra.Command{
		Use:   "convert [source-url]",
		Short: "Convert a single workbook from the command line",
		Args:  cobra.ExactArgs(1),
		RunE:  runConvert,
	}
	convertCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Publish to an in-memory store instead of blob storage")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the xlsmconv version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	rootCmd.AddCommand(serveCmd, convertCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration fault: %w", err)
	}

	pipeline, err := buildPipeline(cfg, logger, false)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(pipeline, logger, cfg.EnableCORS)
	return srv.Run(ctx, cfg.ListenAddr)
}

func runConvert(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil && !dryRun {
		return fmt.Errorf("configuration fault: %w", err)
	}
	if dryRun && cfg == nil {
		cfg = &config.Config{
			Container:    "converted",
			NamingPolicy: convert.NamingTimestamped,
			LinkTTL:      time.Hour,
			FetchTimeout: 30 * time.Second,
		}
	}

	pipeline, err := buildPipeline(cfg, logger, dryRun)
	if err != nil {
		return err
	}

	result, err := pipeline.Convert(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(map[string]any{
		"object_name":   result.ObjectName,
		"converted_url": result.Link.URL,
		"expires_at":    result.Link.ExpiresAt.Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func buildPipeline(cfg *config.Config, logger *slog.Logger, inMemory bool) (*convert.Pipeline, error) {
	var (
		store convert.Store
		cred  azcore.TokenCredential
		err   error
	)

	switch {
	case inMemory:
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating signing key: %w", err)
		}
		store = storage.NewMemory("memory://"+cfg.Container, key)
	default:
		if shared, ok := cfg.SharedKey(); ok {
			store, err = storage.NewAzureSharedKey(shared.AccountName, shared.AccountKey, shared.Endpoint, cfg.Container, logger)
		} else {
			store, err = storage.NewAzureManagedIdentity(cfg.AccountURL, cfg.Container, logger)
		}
		if err != nil {
			return nil, fmt.Errorf("building output store: %w", err)
		}
		if cfg.UseManagedIdentity {
			cred, err = azidentity.NewDefaultAzureCredential(nil)
			if err != nil {
				return nil, fmt.Errorf("resolving fetch credential: %w", err)
			}
		}
	}

	opts := convert.Options{
		Policy:  cfg.NamingPolicy,
		Prefix:  cfg.NamePrefix,
		LinkTTL: cfg.LinkTTL,
	}
	fetcher := fetch.NewClient(cfg.FetchTimeout, cred, logger)
	return convert.NewPipeline(opts, fetcher, transcode.New(), store, logger), nil
}
