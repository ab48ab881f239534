package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/leadline/pkg/models"
)

var (
	consolidateMobile string
	consolidateEmail  string
	consolidateForce  bool
	consolidateOutput string
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Consolidate a lead's communications into one timeline",
	Long: `Fetch every channel for a lead, merge the records into a canonical timeline,
pack message bursts into sessions and run extraction when a channel has new
data. When nothing changed since the last run the cached summary is returned.

Identify the lead with --mobile or --email; mobile takes precedence.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Consolidator == nil {
			return fmt.Errorf("consolidator not initialized")
		}
		lead := models.LeadRef{Mobile: consolidateMobile, Email: consolidateEmail}
		if lead.IsZero() {
			return fmt.Errorf("provide either --mobile or --email")
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		result, err := Consolidator.Consolidate(ctx, lead, consolidateForce)
		if err != nil {
			return fmt.Errorf("consolidating lead %s: %w", lead.Key(), err)
		}

		if consolidateOutput != formatText {
			return printStructured(consolidateOutput, result)
		}
		printResult(result)
		return nil
	},
}

func printResult(r *models.ConsolidationResult) {
	fmt.Printf("%s %s\n", labelStyle.Render("Lead:"), r.LeadID)
	fmt.Printf("%s %s\n", labelStyle.Render("Run:"), mutedStyle.Render(r.RunID))
	fmt.Printf("%s %s\n", labelStyle.Render("Status:"), styleStatus(string(r.Status)))
	if r.Message != "" {
		fmt.Printf("  %s\n", r.Message)
	}

	if r.Projection != nil {
		c := r.Projection.Counts
		fmt.Printf("\n  %-18s %d\n", "Events:", c.Total)
		fmt.Printf("  %-18s %d\n", "Calls:", c.Calls)
		fmt.Printf("  %-18s %d\n", "Emails:", c.Emails)
		fmt.Printf("  %-18s %d (%d messages)\n", "Message packs:", c.MessagePacks, c.Messages)
		fmt.Printf("  %-18s %d\n", "Subject records:", c.SubjectRecords)
	}

	if len(r.ChannelErrors) > 0 {
		fmt.Println("\n  Channel errors:")
		channels := make([]string, 0, len(r.ChannelErrors))
		for ch := range r.ChannelErrors {
			channels = append(channels, string(ch))
		}
		sort.Strings(channels)
		for _, ch := range channels {
			fmt.Printf("    %-16s %s\n", ch+":", r.ChannelErrors[models.Channel(ch)])
		}
	}

	if len(r.Summary) > 0 {
		fmt.Println("\n  Summary:")
		keys := make([]string, 0, len(r.Summary))
		for k := range r.Summary {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("    %-24s %v\n", k+":", r.Summary[k])
		}
	}
}

func init() {
	consolidateCmd.Flags().StringVar(&consolidateMobile, "mobile", "", "Lead mobile number")
	consolidateCmd.Flags().StringVar(&consolidateEmail, "email", "", "Lead email address")
	consolidateCmd.Flags().BoolVar(&consolidateForce, "force", false, "Reprocess even when no channel has new data")
	consolidateCmd.Flags().StringVarP(&consolidateOutput, "output", "o", formatText, "Output format: text, json or yaml")
	rootCmd.AddCommand(consolidateCmd)
}
