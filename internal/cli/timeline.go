package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/leadline/internal/core"
)

var timelineOutput string

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Inspect persisted lead timelines",
	Long:  "Commands for reading the canonical timeline persisted by the last consolidation of a lead.",
}

var timelineShowCmd = &cobra.Command{
	Use:               "show <lead>",
	Short:             "Print the persisted timeline as JSON or YAML",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeLeadIDs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Consolidator == nil {
			return fmt.Errorf("consolidator not initialized")
		}
		timeline, err := Consolidator.Timeline(args[0])
		if err != nil {
			return fmt.Errorf("loading timeline: %w", err)
		}
		return printStructured(timelineOutput, timeline)
	},
}

var timelineTextCmd = &cobra.Command{
	Use:   "text <lead>",
	Short: "Print the text projection of the persisted timeline",
	Long: `Print one line per timeline event in the form

  [<timestamp>] [<CHANNEL>] <content>

followed by the event counts.`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeLeadIDs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Consolidator == nil {
			return fmt.Errorf("consolidator not initialized")
		}
		timeline, err := Consolidator.Timeline(args[0])
		if err != nil {
			return fmt.Errorf("loading timeline: %w", err)
		}

		p := core.Project(timeline)
		if p.Text != "" {
			fmt.Println(p.Text)
		}
		c := p.Counts
		fmt.Println(mutedStyle.Render(fmt.Sprintf(
			"-- %d events: %d calls, %d emails, %d message packs (%d messages), %d subject records",
			c.Total, c.Calls, c.Emails, c.MessagePacks, c.Messages, c.SubjectRecords)))
		return nil
	},
}

func init() {
	timelineShowCmd.Flags().StringVarP(&timelineOutput, "output", "o", formatJSON, "Output format: json or yaml")
	timelineCmd.AddCommand(timelineShowCmd)
	timelineCmd.AddCommand(timelineTextCmd)
	rootCmd.AddCommand(timelineCmd)
}
