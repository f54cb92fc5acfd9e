package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/assetscore/assetscore/internal/api"
	"github.com/assetscore/assetscore/internal/compute"
	"github.com/assetscore/assetscore/internal/export"
)

// writeResults renders results in the requested output format.
func writeResults(w io.Writer, format string, results []*compute.Result) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if len(results) == 1 {
			return enc.Encode(api.NewScoreResponse(results[0]))
		}
		out := make([]api.ScoreResponse, 0, len(results))
		for _, res := range results {
			out = append(out, api.NewScoreResponse(res))
		}
		return enc.Encode(out)
	case outputProm:
		return export.Write(w, results)
	default:
		for i, res := range results {
			if i > 0 {
				fmt.Fprintln(w)
			}
			writeText(w, res)
		}
		return nil
	}
}

func writeText(w io.Writer, res *compute.Result) {
	fmt.Fprintf(w, "Asset: %s\n", res.AssetID)
	fmt.Fprintf(w, "Asset age: %.2f years (%.2f %s)\n", res.AgeYears, res.Age, res.Unit)
	fmt.Fprintf(w, "Age-based score: %.2f\n", res.AgeScore)
	fmt.Fprintf(w, "Event-based adjustment: %.2f\n", res.EventScore)
	for _, a := range res.Applied {
		fmt.Fprintf(w, "  %s.%s %s %g: %.2f -> %.2f\n", a.Event, a.Metric, a.Op, a.Value, a.Before, a.After)
	}
	fmt.Fprintf(w, "Final asset score: %.2f (%s)\n", res.FinalScore, res.State)
}
