package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/sourcerank/internal/pipeline"
)

var (
	outcomeSourceID string
	outcomeProvider string
	outcomeDuration time.Duration
	outcomeFailed   bool
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show per-provider download history",
	Long: `History prints what the reliability predictor has learned about each
provider: how many transfers it has seen, their success rate and how their
real download times compare with the estimates.

History is kept in memory unless health.history_path is configured.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		stats := s.manager.ProviderStats()
		if len(stats) == 0 {
			fmt.Println("No download history recorded.")
			if s.cfg.Health.HistoryPath == "" {
				fmt.Println("Set health.history_path to keep history between runs.")
			}
			return nil
		}

		fmt.Printf("%-20s %8s %8s %8s\n", "PROVIDER", "SAMPLES", "SUCCESS", "SPEED")
		for _, st := range stats {
			fmt.Printf("%-20s %8d %7.0f%% %7.2fx\n", st.ProviderID, st.Samples, st.SuccessRate*100, st.SpeedFactor)
		}
		return nil
	},
}

var historyRecordCmd = &cobra.Command{
	Use:   "record <sources-file>",
	Short: "Record the outcome of a finished download",
	Long: `Record feeds one finished transfer back into the predictor. The source is
looked up by --id in the sources file so the estimate it is compared with
uses the same counters the ranking saw.

Example:
  sourcerank history record sources.json --id abc123 --duration 7m30s
  sourcerank history record sources.json --id abc123 --failed`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		sources, err := pipeline.LoadSourcesFile(args[0])
		if err != nil {
			return err
		}
		for _, src := range sources {
			if src.ID != outcomeSourceID {
				continue
			}
			if err := s.manager.RecordOutcome(cmd.Context(), outcomeProvider, outcomeDuration, !outcomeFailed, src); err != nil {
				return fmt.Errorf("record outcome: %w", err)
			}
			fmt.Printf("✓ Recorded %s for %s\n", outcomeLabel(outcomeFailed), src.ID)
			return nil
		}
		return fmt.Errorf("source %q not found in %s", outcomeSourceID, args[0])
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyRecordCmd)

	historyRecordCmd.Flags().StringVar(&outcomeSourceID, "id", "", "id of the downloaded source")
	historyRecordCmd.Flags().StringVar(&outcomeProvider, "provider", "", "provider id (default: the source's provider)")
	historyRecordCmd.Flags().DurationVar(&outcomeDuration, "duration", 0, "how long the download took")
	historyRecordCmd.Flags().BoolVar(&outcomeFailed, "failed", false, "the download did not complete")
	_ = historyRecordCmd.MarkFlagRequired("id")
}

func outcomeLabel(failed bool) string {
	if failed {
		return "failure"
	}
	return "success"
}
