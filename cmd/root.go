// Package cmd defines the CLI commands for the harvester executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-harvester/internal/app"
	"github.com/JakeFAU/jobpost-harvester/internal/config"
	"github.com/JakeFAU/jobpost-harvester/internal/logging"
)

// newApp is the application factory. Tests replace it to inject fakes.
var newApp = app.New

// env carries the state the root command prepares for its subcommands.
type env struct {
	configPath string
	dotenvPath string
	cfg        config.Config
	logger     *zap.Logger
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	e := &env{}
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Harvests new job postings into an index and blob store.",
		Long: `harvester renders a job listing page in headless Chrome, discovers the
postings not yet recorded in the index and stores each posting's markup and
text as blobs.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.setup(cmd.Flags().Changed("env-file"))
		},

		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			_ = logging.Sync(e.logger)
		},
	}

	cmd.PersistentFlags().StringVar(&e.configPath, "config", "", "config file (YAML, TOML or JSON)")
	cmd.PersistentFlags().StringVar(&e.dotenvPath, "env-file", ".env", "dotenv file loaded before the environment is read")

	cmd.AddCommand(newRunCmd(e))
	cmd.AddCommand(newIndexCmd(e))
	return cmd
}

// setup loads the dotenv file, the configuration and the logger.
// A missing default dotenv file is ignored; an explicit one must exist.
func (e *env) setup(explicitDotenv bool) error {
	if err := godotenv.Load(e.dotenvPath); err != nil && explicitDotenv {
		return fmt.Errorf("load env file: %w", err)
	}
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return err
	}
	e.cfg = cfg
	e.logger = logger
	return nil
}

// build constructs the application from the loaded configuration.
func (e *env) build(ctx context.Context) (*app.App, error) {
	a, err := newApp(ctx, e.cfg, e.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application services: %w", err)
	}
	return a, nil
}

// close releases a and logs any failure.
func (e *env) close(a *app.App) {
	if err := a.Close(); err != nil {
		e.logger.Warn("Failed to close application", zap.Error(err))
	}
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		logger, lerr := logging.New(false)
		if lerr != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		logger.Fatal("Command execution failed", zap.Error(err))
	}
}
