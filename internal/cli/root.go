package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

var rootCmd = &cobra.Command{
	Use:   "leadline",
	Short: "Leadline - timeline consolidation for lead communications",
	Long: `Leadline consolidates a lead's WhatsApp messages, calls, emails and lead
record into one chronologically ordered timeline, packs message bursts into
sessions, and only re-runs extraction when a channel has new data.

It provides CLI commands for consolidating leads, inspecting persisted
timelines and state, attaching call transcripts, and running the HTTP and
MCP servers.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("leadline %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
