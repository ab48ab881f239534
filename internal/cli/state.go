package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/leadline/internal/core"
)

var stateOutput string

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect per-lead incremental state",
}

var stateShowCmd = &cobra.Command{
	Use:   "show <lead>",
	Short: "Print the cached summary and per-channel markers of a lead",
	Long: `Print the persisted processing state of a lead: the last extraction result
and the marker recorded for each channel on the last processed run.`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeLeadIDs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if States == nil {
			return fmt.Errorf("state store not initialized")
		}
		if err := core.ValidateLeadID(args[0]); err != nil {
			return err
		}
		state, err := States.Load(args[0])
		if err != nil {
			return fmt.Errorf("loading state: %w", err)
		}
		return printStructured(stateOutput, state)
	},
}

func init() {
	stateShowCmd.Flags().StringVarP(&stateOutput, "output", "o", formatYAML, "Output format: json or yaml")
	stateCmd.AddCommand(stateShowCmd)
	rootCmd.AddCommand(stateCmd)
}
