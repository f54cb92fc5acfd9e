package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/assetscore/assetscore/internal/compute"
	"github.com/assetscore/assetscore/internal/config"
	"github.com/assetscore/assetscore/internal/events"
	"github.com/assetscore/assetscore/pkg/types"
)

// scoreOptions holds the parsed flags of the score command.
type scoreOptions struct {
	policyPath string
	eventsPath string
	id         string
	age        *float64
	installed  string
	current    string
	format     string
}

var (
	scoreFlags scoreOptions
	scoreAge   float64
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score one asset",
	Long: `Score one asset under a policy file.

The asset age is given directly in years with --age, or derived from
--installed and --current (RFC3339 or YYYY-MM-DD; --current defaults to now).

Events are read from a JSON array of {"name", "data"} objects, or from a
Prometheus text file (.prom) whose samples carry an "event" label.
Use --events - to read JSON from stdin.

Example:
  assetscore score --policy config/policy.example.json \
    --events config/events.example.json --age 2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := scoreFlags
		opts.format = output
		if cmd.Flags().Changed("age") {
			opts.age = &scoreAge
		}
		return runScore(cmd.InOrStdin(), cmd.OutOrStdout(), opts, time.Now().UTC())
	},
}

func init() {
	scoreCmd.Flags().StringVar(&scoreFlags.policyPath, "policy", "", "Scoring policy file (.json, .yaml, .yml)")
	scoreCmd.Flags().StringVar(&scoreFlags.eventsPath, "events", "", "Events file (.json or .prom), - for stdin")
	scoreCmd.Flags().StringVar(&scoreFlags.id, "id", "cli", "Asset ID")
	scoreCmd.Flags().Float64Var(&scoreAge, "age", 0, "Asset age in years")
	scoreCmd.Flags().StringVar(&scoreFlags.installed, "installed", "", "Installation time (RFC3339 or YYYY-MM-DD)")
	scoreCmd.Flags().StringVar(&scoreFlags.current, "current", "", "Current time (RFC3339 or YYYY-MM-DD)")
	scoreCmd.MarkFlagRequired("policy") //nolint:errcheck

	rootCmd.AddCommand(scoreCmd)
}

func runScore(stdin io.Reader, w io.Writer, opts scoreOptions, now time.Time) error {
	cfg, err := config.LoadPolicy(opts.policyPath)
	if err != nil {
		return err
	}
	eng, err := compute.NewEngine(cfg)
	if err != nil {
		return err
	}

	asset := types.Asset{ID: opts.id, Age: opts.age}
	if opts.installed != "" {
		t, err := parseTime(opts.installed)
		if err != nil {
			return fmt.Errorf("--installed: %w", err)
		}
		asset.InstalledAt = &t
	}
	if opts.current != "" {
		t, err := parseTime(opts.current)
		if err != nil {
			return fmt.Errorf("--current: %w", err)
		}
		asset.CurrentAt = &t
	}
	if asset.Events, err = readEvents(stdin, opts.eventsPath); err != nil {
		return err
	}

	res, err := eng.Score(asset, now)
	if err != nil {
		return err
	}
	return writeResults(w, opts.format, []*compute.Result{res})
}

// readEvents loads events from path. An empty path means no events.
func readEvents(stdin io.Reader, path string) ([]types.Event, error) {
	switch path {
	case "":
		return nil, nil
	case "-":
		return events.Decode(stdin)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("events: open %s: %w", path, err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".prom") {
		return events.DecodePrometheus(f)
	}
	return events.Decode(f)
}

// parseTime accepts RFC3339 timestamps and plain dates.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC3339 or YYYY-MM-DD", s)
	}
	return t, nil
}
