package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/review-moderation/backend/internal/app"
	"github.com/review-moderation/backend/pkg/config"
	"github.com/review-moderation/backend/pkg/logger"
)

const version = "0.1.0"

const (
	ExitSuccess      = 0
	ExitAnalysisFail = 1
	ExitUsageError   = 2
	ExitRuntimeError = 4
)

var rootCmd = &cobra.Command{
	Use:          "reviewctl",
	Short:        "Review moderation bot",
	Long:         "reviewctl checks a customer review with SightEngine and asks an LLM whether it is legitimate.",
	SilenceUsage: true,
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

// Run executes the root command and returns an exit code.
func Run() int {
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		if exitCode == ExitSuccess {
			return ExitUsageError
		}
	}

	return exitCode
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print reviewctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "reviewctl version %s\n", version)
	},
}

// loadApp reads configuration, initializes logging and wires the components.
func loadApp(stdoutForOutput bool) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		exitCode = ExitRuntimeError
		return nil, err
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, logOutput(cfg.Logging.OutputPath, stdoutForOutput)); err != nil {
		exitCode = ExitRuntimeError
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		exitCode = ExitRuntimeError
		return nil, err
	}
	return a, nil
}

// logOutput moves stdout logging to stderr when stdout carries command output.
func logOutput(path string, stdoutForOutput bool) string {
	if stdoutForOutput && (path == "" || path == "stdout") {
		return "stderr"
	}
	return path
}
