package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/sourcerank/internal/model"
	"github.com/ppiankov/sourcerank/internal/pipeline"
)

// readFilterFile decodes an AdvancedSourceFilter. YAML is a superset of
// JSON, so one decoder covers both. A file without a conflict_resolution
// section gets defaults; one that enables it without strategies gets the
// default order.
func readFilterFile(path string, defaults model.ConflictResolution) (model.AdvancedSourceFilter, error) {
	var f model.AdvancedSourceFilter
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("read filter: %w", err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("decode filter %s: %w", path, err)
	}

	var keys map[string]any
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return f, fmt.Errorf("decode filter %s: %w", path, err)
	}
	if _, set := keys["conflict_resolution"]; !set {
		f.ConflictResolution = defaults
	} else if f.ConflictResolution.Enabled && len(f.ConflictResolution.Strategies) == 0 {
		f.ConflictResolution.Strategies = defaults.Strategies
	}
	return f, nil
}

// writeJSON writes v as indented JSON to path, or to stdout for "-".
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	data = append(data, '\n')

	if path == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write JSON: %w", err)
	}
	return nil
}

func printRecommendations(w io.Writer, recs []model.SourceRecommendation, res pipeline.RecommendationResult) {
	if len(recs) == 0 {
		_, _ = fmt.Fprintln(w, "No sources matched.")
		printFilterNotes(w, res.Filter)
		return
	}

	_, _ = fmt.Fprintf(w, "%-3s %-24s %6s %6s %-8s %-7s %9s  %s\n", "#", "ID", "SCORE", "HEALTH", "RISK", "PICK", "SIZE", "BADGES")
	for i, r := range recs {
		size := "-"
		if r.Source.File.SizeBytes > 0 {
			size = humanize.Bytes(uint64(r.Source.File.SizeBytes))
		}
		risk := string(r.Health.Risk)
		if r.HasError {
			risk = "ERROR"
		}
		_, _ = fmt.Fprintf(w, "%-3d %-24s %6d %6d %-8s %-7s %9s  %s\n",
			i+1, truncate(r.Source.ID, 24), r.RecommendationScore, r.Health.OverallScore,
			risk, r.DownloadPriority, size, strings.Join(r.QualityBadges, " "))
		for _, line := range r.Reasoning {
			_, _ = fmt.Fprintf(w, "      - %s\n", line)
		}
	}

	printFilterNotes(w, res.Filter)
	if !res.Complete {
		_, _ = fmt.Fprintln(w, "\nResult is partial: processing stopped before every source was evaluated.")
	}
}

func printFilterNotes(w io.Writer, fr *model.FilterResult) {
	if fr == nil {
		return
	}
	_, _ = fmt.Fprintf(w, "\nFilter: %d of %d sources kept", len(fr.FilteredSources), fr.TotalSourcesEvaluated)
	if fr.Relaxed {
		_, _ = fmt.Fprint(w, " (relaxed)")
	}
	_, _ = fmt.Fprintln(w)
	for _, note := range fr.AppliedFilters {
		_, _ = fmt.Fprintf(w, "  %s\n", note)
	}
}

func printSignals(w io.Writer, id string, signals []model.Signal) {
	_, _ = fmt.Fprintf(w, "\n%s\n", id)
	for _, s := range signals {
		_, _ = fmt.Fprintf(w, "  [%s] %s: %s\n", s.Severity, s.Type, s.Description)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func joinNames(names []string) string {
	return strings.Join(names, ", ")
}
