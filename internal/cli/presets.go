package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/sourcerank/internal/filter"
)

// presetsCmd represents the presets command
var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the built-in filter presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range filter.PresetNames() {
			p, err := filter.Preset(name)
			if err != nil {
				return err
			}
			fmt.Printf("  %-22s %s\n", name, p.Description)
		}
		fmt.Printf("\nShow one with: sourcerank presets show <name>\n")
		return nil
	},
}

var presetsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print a preset's filter and preferences as YAML",
	Long: `Print a preset as YAML. The filter section can be saved, edited and
passed back with --filter.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := filter.Preset(args[0])
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal preset: %w", err)
		}
		fmt.Print(string(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(presetsCmd)
	presetsCmd.AddCommand(presetsShowCmd)
}
