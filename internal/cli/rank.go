package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/sourcerank/internal/filter"
	"github.com/ppiankov/sourcerank/internal/model"
	"github.com/ppiankov/sourcerank/internal/pipeline"
)

var (
	presetName        string
	filterFile        string
	quota             int
	exhaustive        bool
	top               int
	outJSON           string
	rankTimeout       time.Duration
	preferResolution  string
	preferCodecs      []string
	preferCached      bool
	preferSeasonPacks bool
	explain           bool
)

// rankCmd represents the rank command
var rankCmd = &cobra.Command{
	Use:   "rank <sources-file>",
	Short: "Score, filter and rank the sources for one title",
	Long: `Rank reads a JSON or YAML list of source descriptors and:
- Scores health and risk from swarm counters and provider tier
- Predicts download reliability from past transfers
- Detects season packs
- Applies an optional preset or filter file
- Prints the sources best first with a recommendation for each

Use "-" to read JSON from stdin.

Example:
  sourcerank rank sources.json
  sourcerank rank sources.yaml --preset instant-playback --top 5
  sourcerank rank sources.json --filter strict.yaml --json ranked.json`,
	Args: cobra.ExactArgs(1),
	RunE: runRank,
}

func init() {
	rootCmd.AddCommand(rankCmd)
	addSelectionFlags(rankCmd)

	rankCmd.Flags().IntVar(&top, "top", 0, "show only the first N sources (0 shows all)")
	rankCmd.Flags().StringVar(&outJSON, "json", "", "write the full result as JSON to this path (- for stdout)")
	rankCmd.Flags().DurationVar(&rankTimeout, "timeout", time.Minute, "overall ranking timeout")
	rankCmd.Flags().BoolVar(&explain, "explain", false, "print the health signals behind each shown source")
}

// addSelectionFlags registers the flags shared by rank and batch.
func addSelectionFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&presetName, "preset", "", "filter preset ("+joinNames(filter.PresetNames())+")")
	cmd.Flags().StringVar(&filterFile, "filter", "", "filter file (YAML or JSON), overrides the preset filter")
	cmd.Flags().IntVar(&quota, "quota", 0, "stop large batches once this many sources pass the filter")
	cmd.Flags().BoolVar(&exhaustive, "exhaustive", false, "always evaluate every source, even with a quota")
	cmd.Flags().StringVar(&preferResolution, "resolution", "", "preferred resolution (480p, 720p, 1080p, 4k)")
	cmd.Flags().StringSliceVar(&preferCodecs, "codec", nil, "preferred video codecs, in order")
	cmd.Flags().BoolVar(&preferCached, "prefer-cached", false, "favour debrid-cached sources in recommendations")
	cmd.Flags().BoolVar(&preferSeasonPacks, "prefer-season-packs", false, "favour season packs in recommendations")
}

func runRank(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), rankTimeout)
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	req, err := buildRequest(s.cfg)
	if err != nil {
		return err
	}
	req.Sources, err = pipeline.LoadSourcesFile(args[0])
	if err != nil {
		return err
	}

	if verbose {
		plan := s.manager.Plan(len(req.Sources))
		fmt.Fprintf(os.Stderr, "Sources:  %d\n", len(req.Sources))
		fmt.Fprintf(os.Stderr, "Strategy: %s (%d workers)\n", plan.Strategy, plan.Workers)
		fmt.Fprintln(os.Stderr)
	}

	res, err := s.manager.Recommend(ctx, req)
	if err != nil {
		return fmt.Errorf("rank failed: %w", err)
	}

	if outJSON != "" {
		if err := writeJSON(outJSON, res); err != nil {
			return err
		}
		if outJSON == "-" {
			return nil
		}
	}

	shown := res.Recommendations
	if top > 0 && len(shown) > top {
		shown = shown[:top]
	}
	printRecommendations(os.Stdout, shown, res)

	if explain {
		for _, r := range shown {
			printSignals(os.Stdout, r.Source.ID, s.manager.Explain(r.Source))
		}
	}
	return nil
}

// buildRequest assembles filter and preferences from the preset, the filter
// file and the preference flags, in that order of precedence.
func buildRequest(cfg *model.Config) (pipeline.Request, error) {
	req := pipeline.Request{Quota: quota, Exhaustive: exhaustive}
	resolution := cfg.Filter.Resolution()

	if presetName != "" {
		p, err := filter.Preset(presetName)
		if err != nil {
			return req, err
		}
		f := p.Filter
		f.ConflictResolution = resolution
		req.Filter = &f
		req.Preferences = p.Preferences
	}

	if filterFile != "" {
		f, err := readFilterFile(filterFile, resolution)
		if err != nil {
			return req, err
		}
		req.Filter = &f
	}

	if preferResolution != "" {
		r := model.ParseResolution(preferResolution)
		if r == model.ResolutionUnknown {
			return req, fmt.Errorf("unknown resolution %q", preferResolution)
		}
		req.Preferences.PreferredResolution = r
	}
	if len(preferCodecs) > 0 {
		req.Preferences.PreferredCodecs = preferCodecs
	}
	if preferCached || preferSeasonPacks {
		req.Profile = &model.UserProfile{PreferCached: preferCached, PreferSeasonPacks: preferSeasonPacks}
	}
	return req, nil
}
