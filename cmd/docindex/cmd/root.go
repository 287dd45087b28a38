// Package cmd provides the CLI commands for docindex.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/config"
	"github.com/Aman-CERP/docindex/internal/logging"
	"github.com/Aman-CERP/docindex/internal/service"
	"github.com/Aman-CERP/docindex/pkg/version"
)

// app carries the state shared by every subcommand: global flags, the
// loaded configuration and the logging cleanup.
type app struct {
	configPath string
	dataDir    string
	debug      bool

	cfg            *config.Config
	cfgFile        string
	loggingCleanup func()
}

// NewRootCmd creates the root command for the docindex CLI.
func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "docindex",
		Short: "Index documents and answer questions by semantic similarity",
		Long: `docindex ingests text, Markdown, Word and PDF documents, splits them into
overlapping chunks, embeds every chunk and answers natural-language
queries with the most similar chunks.

The vector index is kept consistent with the SQLite metadata store across
restarts, partial failures and re-indexing.`,
		Version:           version.Version,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	cmd.PersistentPostRunE = func(*cobra.Command, []string) error {
		a.teardown()
		return nil
	}
	cmd.SetVersionTemplate("docindex version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default <data-dir>/config.yaml)")
	cmd.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "Data directory (default ~/.docindex)")
	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging, mirrored to stderr")

	cmd.AddCommand(newIngestCmd(a))
	cmd.AddCommand(newIngestTextCmd(a))
	cmd.AddCommand(newQueryCmd(a))
	cmd.AddCommand(newListCmd(a))
	cmd.AddCommand(newDeleteCmd(a))
	cmd.AddCommand(newRebuildCmd(a))
	cmd.AddCommand(newReconcileCmd(a))
	cmd.AddCommand(newStatsCmd(a))
	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newHTTPCmd(a))
	cmd.AddCommand(newWatchCmd(a))
	cmd.AddCommand(newConfigCmd(a))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// setup loads .env, the configuration and logging.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}

	dataDir := a.dataDir
	if dataDir == "" {
		dataDir = os.Getenv(config.EnvPrefix + "DATA_DIR")
	}
	if dataDir == "" {
		dataDir = config.DefaultDataDir()
	}
	path := a.configPath
	if path == "" {
		path = config.DefaultConfigPath(dataDir)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if a.dataDir != "" {
		cfg.DataDir = a.dataDir
	}
	if a.debug {
		cfg.Logging.Level = "debug"
	}
	a.cfg = cfg
	a.cfgFile = path

	logCfg := logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      logging.LogPath(cfg.DataDir),
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxFiles:      cfg.Logging.MaxFiles,
		WriteToStderr: a.debug,
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	a.loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Debug("command_started",
		slog.String("command", cmd.CommandPath()),
		slog.String("data_dir", cfg.DataDir),
		slog.String("version", version.Version))
	return nil
}

func (a *app) teardown() {
	if a.loggingCleanup != nil {
		a.loggingCleanup()
		a.loggingCleanup = nil
	}
}

// open opens the service for the loaded configuration.
func (a *app) open(ctx context.Context) (*service.Service, error) {
	return service.Open(ctx, a.cfg)
}

// withService runs fn against an open service and closes it afterwards,
// keeping the first error.
func (a *app) withService(ctx context.Context, fn func(*service.Service) error) (err error) {
	svc, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := svc.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(svc)
}
