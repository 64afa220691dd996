// Command btpctl runs SAP BTP CLI commands non-interactively and prints their
// JSON payloads.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"btpctl/internal/btp"
	"btpctl/internal/config"
	"btpctl/internal/logging"
)

var (
	configPath string
	verbose    bool
	logFormat  string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "btpctl",
	Short: "Run SAP BTP CLI commands non-interactively and return JSON",
	Long: `btpctl wraps the SAP BTP command-line client (btp).

Every command runs with --format json, no terminal input and a bounded
timeout. Transient failures are retried with backoff. The JSON payload is
recovered even when the CLI mixes it with warnings or banners.

Log in with 'btp login' first; btpctl never manages the CLI session.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		logCfg := cfg.Logging.LoggerConfig()
		if verbose {
			logCfg.Level = "debug"
		}
		if logFormat != "" {
			logCfg.Format = logFormat
		}
		if err := logging.Initialize(logCfg); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logging.CLIDebug("command %s (config %s)", cmd.CommandPath(), configPath)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "Config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging and print execution details")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: console or json")

	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(locateCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(historyCmd)
}

// newEngine builds the engine from the loaded config.
func newEngine() (*btp.Engine, func() error, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return btp.NewFromConfig(cfg)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, renderError(err))
		stop()
		os.Exit(exitCode(err))
	}
}
