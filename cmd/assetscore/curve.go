package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/assetscore/assetscore/internal/decay"
	"github.com/assetscore/assetscore/pkg/types"
)

const modelFormula = "formula"

// curveOptions holds the parsed flags of the curve command.
type curveOptions struct {
	model       string
	formula     string
	params      []string // name=value, in binding order
	baseline    float64
	granularity string
	ages        []float64
	years       int
	format      string

	k, slope                     *float64
	growthRate, midAge, maxScore float64
}

// CurvePoint is one sample of a decay curve.
type CurvePoint struct {
	Age   float64 `json:"age"`
	Score float64 `json:"score"`
}

// CurveOutput is the JSON document printed by curve -o json.
type CurveOutput struct {
	Model  string       `json:"model"`
	Unit   string       `json:"unit"`
	Points []CurvePoint `json:"points"`
}

var (
	curveFlags curveOptions
	curveK     float64
	curveSlope float64
)

var curveCmd = &cobra.Command{
	Use:   "curve",
	Short: "Print a decay curve",
	Long: `Print age -> score samples for a built-in decay model or a custom formula.

Ages are in the model's granularity. Without --age, one sample is printed
for every whole year from 0 to --years.

Examples:
  assetscore curve --model exponential --k 0.2 --granularity months --age 6,12,24
  assetscore curve --model formula --formula "100 * Math.exp(-k * age)" --param k=0.15`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := curveFlags
		opts.format = output
		if cmd.Flags().Changed("k") {
			opts.k = &curveK
		}
		if cmd.Flags().Changed("slope") {
			opts.slope = &curveSlope
		}
		return runCurve(cmd.OutOrStdout(), opts)
	},
}

func init() {
	f := curveCmd.Flags()
	f.StringVar(&curveFlags.model, "model", "exponential", "Model: exponential, linear, piecewise, sigmoid or formula")
	f.StringVar(&curveFlags.formula, "formula", "", "Decay formula over age and --param names (with --model formula)")
	f.StringArrayVar(&curveFlags.params, "param", nil, "Formula parameter name=value, repeatable, bound in order")
	f.Float64Var(&curveFlags.baseline, "baseline", decay.DefaultBaseline, "Baseline score floor")
	f.StringVar(&curveFlags.granularity, "granularity", string(decay.Years), "Age unit: days, weeks, months or years")
	f.Float64SliceVar(&curveFlags.ages, "age", nil, "Ages to sample, in the model's unit")
	f.IntVar(&curveFlags.years, "years", 10, "Sample every whole year up to this age when --age is not set")
	f.Float64Var(&curveK, "k", decay.DefaultK, "Exponential decay rate per year")
	f.Float64Var(&curveSlope, "slope", decay.DefaultSlope, "Linear points lost per year")
	f.Float64Var(&curveFlags.growthRate, "growth-rate", decay.DefaultGrowthRate, "Sigmoid growth rate")
	f.Float64Var(&curveFlags.midAge, "mid-age", decay.DefaultMidAge, "Sigmoid midpoint age")
	f.Float64Var(&curveFlags.maxScore, "max-score", decay.DefaultMaxScore, "Sigmoid maximum score")

	rootCmd.AddCommand(curveCmd)
}

func runCurve(w io.Writer, opts curveOptions) error {
	if opts.format == outputProm {
		return errors.New("curve does not support prom output")
	}
	cfg, err := curveConfig(opts)
	if err != nil {
		return err
	}
	model, err := decay.New(cfg)
	if err != nil {
		return err
	}

	unit := model.Unit()
	ages := opts.ages
	if len(ages) == 0 {
		for y := 0; y <= opts.years; y++ {
			ages = append(ages, unit.FromYears(float64(y)))
		}
	}

	out := CurveOutput{Model: opts.model, Unit: string(unit), Points: make([]CurvePoint, 0, len(ages))}
	for _, age := range ages {
		score, err := model.Evaluate(age)
		if err != nil {
			return fmt.Errorf("age %g: %w", age, err)
		}
		out.Points = append(out.Points, CurvePoint{Age: age, Score: score})
	}

	if opts.format == outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "AGE (%s)\tSCORE\n", unit)
	for _, p := range out.Points {
		fmt.Fprintf(tw, "%.2f\t%.2f\n", p.Age, p.Score)
	}
	return tw.Flush()
}

// curveConfig builds the policy fragment decay.New needs from the flags.
func curveConfig(opts curveOptions) (*types.ScoringConfig, error) {
	cfg := &types.ScoringConfig{BaselineScore: opts.baseline}
	if opts.model == modelFormula {
		if opts.formula == "" {
			return nil, errors.New("--model formula requires --formula")
		}
		params, err := parseParams(opts.params)
		if err != nil {
			return nil, err
		}
		cfg.DecayFormula = opts.formula
		cfg.DecayParams = params
		return cfg, nil
	}

	cfg.Model = &types.ModelConfig{
		Name:        opts.model,
		Granularity: opts.granularity,
		K:           opts.k,
		Slope:       opts.slope,
		Sigmoid: &types.SigmoidParams{
			GrowthRate: opts.growthRate,
			MidAge:     opts.midAge,
			MaxScore:   opts.maxScore,
		},
	}
	return cfg, nil
}

// parseParams turns name=value pairs into ordered formula parameters.
func parseParams(pairs []string) (types.Params, error) {
	params := make(types.Params, 0, len(pairs))
	seen := make(map[string]bool, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("--param %q: want name=value", pair)
		}
		if seen[name] {
			return nil, fmt.Errorf("--param %q: duplicate name", name)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("--param %q: %w", pair, err)
		}
		seen[name] = true
		params = append(params, types.Param{Name: name, Value: v})
	}
	return params, nil
}
