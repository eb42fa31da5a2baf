// codeloops runs an actor coding agent under the supervision of a critic
// agent until the critic judges the task complete.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	workingDir string

	// Logger
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "codeloops",
	Short: "Actor/critic loop for coding agents",
	Long: `codeloops pairs two coding agents: an actor that does the work and a
critic that reviews the output and the resulting git diff after every
iteration. The loop continues, feeding the critique back into the actor,
until the critic declares the task done or a limit is reached.

Every run is recorded as a session that can be listed, inspected, watched
live, and browsed in a terminal UI.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workingDir, "dir", "C", "", "Working directory (default: current)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// resolveWorkingDir applies the --dir flag or falls back to the cwd.
func resolveWorkingDir() (string, error) {
	if workingDir != "" {
		abs, err := os.Stat(workingDir)
		if err != nil {
			return "", fmt.Errorf("working directory: %w", err)
		}
		if !abs.IsDir() {
			return "", fmt.Errorf("working directory %s is not a directory", workingDir)
		}
		return workingDir, nil
	}
	return os.Getwd()
}
