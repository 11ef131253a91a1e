package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/sourcerank/internal/pipeline"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <list-file>",
	Short: "Rank many source files in parallel",
	Long: `Batch ranks several titles at once:
- Read source-file paths from the list file (one per line, # comments)
- Rank each file with the same preset, filter and preferences
- Write one <name>.ranked.json per input into the output directory

All files share one cache and one download history.

Example:
  sourcerank batch titles.txt
  sourcerank batch titles.txt --concurrency 4 --output-dir ./ranked
  sourcerank batch titles.txt --preset mobile --timeout 5m`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	addSelectionFlags(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of files ranked at once")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./sourcerank-results", "output directory for ranked results")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for batch processing")
}

// fileOutcome is the result of ranking one listed file
type fileOutcome struct {
	path    string
	out     string
	sources int
	top     string
	err     error
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), batchTimeout)
	defer cancel()

	files, err := readList(args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  sourcerank batch\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  List file:    %s (%d files)\n", args[0], len(files))
	fmt.Fprintf(os.Stderr, "  Concurrency:  %d\n", concurrency)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	if presetName != "" {
		fmt.Fprintf(os.Stderr, "  Preset:       %s\n", presetName)
	}
	fmt.Fprintf(os.Stderr, "\n")

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	req, err := buildRequest(s.cfg)
	if err != nil {
		return err
	}
	s.manager.StartRefresher(ctx)

	outcomes := make([]fileOutcome, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))
	for i, path := range files {
		g.Go(func() error {
			outcomes[i] = rankFile(gctx, s.manager, req, path)
			return nil
		})
	}
	_ = g.Wait()

	success, failure := 0, 0
	for _, o := range outcomes {
		if o.err != nil {
			failure++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", o.path, o.err)
			continue
		}
		success++
		fmt.Fprintf(os.Stderr, "✓ %s (%d sources, best: %s)\n", o.path, o.sources, o.top)
	}

	stats := s.manager.CacheStats()
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:         %d files\n", len(files))
	fmt.Fprintf(os.Stderr, "  Success:       %d\n", success)
	fmt.Fprintf(os.Stderr, "  Failures:      %d\n", failure)
	fmt.Fprintf(os.Stderr, "  Computations:  %d (cache hits: %d)\n", stats.Computations, stats.MemoryHits+stats.PersistentHits)
	fmt.Fprintf(os.Stderr, "  Output:        %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "\n")

	if failure > 0 && success == 0 {
		return fmt.Errorf("all %d files failed", failure)
	}
	return nil
}

func rankFile(ctx context.Context, m *pipeline.Manager, req pipeline.Request, path string) fileOutcome {
	o := fileOutcome{path: path}

	sources, err := pipeline.LoadSourcesFile(path)
	if err != nil {
		o.err = err
		return o
	}
	req.Sources = sources
	o.sources = len(sources)

	res, err := m.Recommend(ctx, req)
	if err != nil {
		o.err = err
		return o
	}
	if len(res.Recommendations) > 0 {
		o.top = res.Recommendations[0].Source.ID
	} else {
		o.top = "none matched"
	}

	o.out = filepath.Join(outputDir, resultName(path))
	if err := writeJSON(o.out, res); err != nil {
		o.err = err
	}
	return o
}

// readList returns the non-empty, non-comment lines of a list file.
func readList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open list: %w", err)
	}
	defer func() { _ = f.Close() }()

	var files []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		files = append(files, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read list: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("list %s names no files", path)
	}
	return files, nil
}

// resultName derives a safe output file name from an input path.
func resultName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer(
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "-",
	).Replace(base)
	if len(base) > 100 {
		base = base[:100]
	}
	return base + ".ranked.json"
}
