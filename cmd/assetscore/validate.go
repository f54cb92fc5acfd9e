package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/assetscore/assetscore/internal/api"
	"github.com/assetscore/assetscore/internal/compute"
	"github.com/assetscore/assetscore/internal/config"
)

var validatePolicy string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Compile a policy file and report problems",
	Long: `Load a scoring policy, compile its decay model and every rule
expression, and print a summary. Exits non-zero on the first error.

Example:
  assetscore validate --policy config/policy.example.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(cmd.OutOrStdout(), validatePolicy, output)
	},
}

func init() {
	validateCmd.Flags().StringVar(&validatePolicy, "policy", "", "Scoring policy file (.json, .yaml, .yml)")
	validateCmd.MarkFlagRequired("policy") //nolint:errcheck
	rootCmd.AddCommand(validateCmd)
}

func runValidate(w io.Writer, path, format string) error {
	cfg, err := config.LoadPolicy(path)
	if err != nil {
		return err
	}
	eng, err := compute.NewEngine(cfg)
	if err != nil {
		return err
	}
	info := eng.Policy()

	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(api.NewPolicyResponse(info))
	case outputProm:
		return errors.New("validate does not support prom output")
	}

	fmt.Fprintf(w, "policy OK: %s\n", path)
	fmt.Fprintf(w, "  model:       %s (%s)\n", info.Model, info.Unit)
	fmt.Fprintf(w, "  baseline:    %.2f\n", info.Baseline)
	fmt.Fprintf(w, "  bounds:      [%g, %g], %d decimals\n", info.Bounds.Min, info.Bounds.Max, info.Bounds.Decimals)
	events := "none"
	if len(info.EventTypes) > 0 {
		events = strings.Join(info.EventTypes, ", ")
	}
	fmt.Fprintf(w, "  event types: %s\n", events)
	return nil
}
