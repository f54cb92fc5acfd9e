package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputProm = "prom"
)

var (
	// Global flags
	verbose bool
	output  string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "assetscore",
	Short: "Asset health scoring engine",
	Long: `assetscore computes a 0-100 health score for a physical asset from its
age and a list of maintenance or sensor events.

The scoring policy (decay curve, baseline and event rule table) lives in a
JSON or YAML file and can change without code changes.

Commands:
  score     Score one asset from the command line
  curve     Print a decay curve for a built-in model or a formula
  validate  Compile a policy file and report problems
  serve     Run the HTTP scoring API
  version   Show version information`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := checkOutput(output); err != nil {
			return err
		}
		setupLogging(verbose)
		return nil
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging on stderr")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", outputText, "Output format (text, json, prom)")
}

func checkOutput(format string) error {
	switch format {
	case outputText, outputJSON, outputProm:
		return nil
	default:
		return fmt.Errorf("unknown output format %q: want text, json or prom", format)
	}
}

// setupLogging installs a text slog handler on stderr. Rule skips are logged
// at debug level, so they only show with --verbose.
func setupLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
