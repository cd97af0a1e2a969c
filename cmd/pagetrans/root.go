package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arunesh/TalkLens-Vibe1/internal/bootstrap"
	"github.com/arunesh/TalkLens-Vibe1/internal/config"
	"github.com/arunesh/TalkLens-Vibe1/pkg/logger"
)

// cli holds state shared by every subcommand
type cli struct {
	cfgFile string
	storage string
	dbPath  string
	verbose bool
	noColor bool

	logger     *zap.Logger
	components *bootstrap.Components
}

func newRootCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pagetrans",
		Short: "Recognize and translate photographed document pages",
		Long: `pagetrans runs the page recognition and translation pipeline from the command line.
It shares configuration, storage and translation models with the HTTP server,
so documents translated here show up in the server's history and vice versa.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return c.teardown()
		},
	}

	cmd.PersistentFlags().StringVarP(&c.cfgFile, "config", "c", "", "config file path (default: $APP_CONFIG_PATH)")
	cmd.PersistentFlags().StringVar(&c.storage, "storage", "", "override storage.driver (memory, sqlite, reindexer)")
	cmd.PersistentFlags().StringVar(&c.dbPath, "db", "", "override storage.sqlite_path")
	cmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVar(&c.noColor, "no-color", false, "disable colored output")

	cmd.AddCommand(
		newTranslateCmd(c),
		newModelsCmd(c),
		newDocumentsCmd(c),
	)
	return cmd
}

func (c *cli) setup(cmd *cobra.Command, args []string) error {
	if c.noColor {
		color.NoColor = true
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read .env: %w", err)
	}

	path := c.cfgFile
	if path == "" {
		path = os.Getenv("APP_CONFIG_PATH")
	}
	if err := config.Load(path); err != nil {
		return err
	}

	// a copy, so flag overrides do not leak into the shared instance
	cfg := *config.Get()
	if c.storage != "" {
		cfg.Storage.Driver = c.storage
	}
	if c.dbPath != "" {
		cfg.Storage.SQLitePath = c.dbPath
	}

	level := cfg.Logging.Level
	if c.verbose {
		level = "debug"
	} else if level == "info" {
		// progress goes to stdout, the log only carries problems
		level = "warn"
	}
	if err := logger.Init(level, cfg.Logging.Development); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	c.logger = logger.Get()

	components, err := bootstrap.Build(cmd.Context(), &cfg, c.logger, bootstrap.Options{SkipCleanupWorker: true})
	if err != nil {
		return err
	}
	c.components = components
	return nil
}

func (c *cli) teardown() error {
	if c.components == nil {
		return nil
	}
	err := c.components.Close()
	c.components = nil
	_ = logger.Sync()
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	c := &cli{}
	err := newRootCmd(c).ExecuteContext(ctx)
	// PersistentPostRunE is skipped when a command fails
	if terr := c.teardown(); err == nil {
		err = terr
	}
	stop()
	if err != nil {
		os.Exit(1)
	}
}
