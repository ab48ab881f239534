package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/leadline/internal/core"
)

var (
	storageJSON     bool
	storageIfNeeded bool
)

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Inspect and clean up persisted lead data",
}

var storageStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show counts and size of persisted lead data",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Retention == nil {
			return fmt.Errorf("retention manager not initialized")
		}
		stats, err := Retention.Stats()
		if err != nil {
			return fmt.Errorf("collecting storage stats: %w", err)
		}
		if storageJSON {
			return printStructured(formatJSON, stats)
		}

		fmt.Printf("Storage (%s)\n\n", DataDir)
		fmt.Printf("  %-20s %d\n", "Lead directories:", stats.LeadDirectories)
		fmt.Printf("  %-20s %d\n", "Timeline files:", stats.TimelineFiles)
		fmt.Printf("  %-20s %d\n", "Snapshot files:", stats.SnapshotFiles)
		fmt.Printf("  %-20s %d\n", "State files:", stats.StateFiles)
		fmt.Printf("  %-20s %.2f MB\n", "Total size:", stats.TotalSizeMB)
		fmt.Printf("  %-20s %d days\n", "Oldest file:", stats.OldestFileDays)
		fmt.Printf("  %-20s %d days\n", "Newest file:", stats.NewestFileDays)
		return nil
	},
}

var storageCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete stale lead directories and trim timeline snapshots",
	Long: `Delete lead directories with no activity within the retention window and
trim each lead's timeline snapshots to the configured maximum.

With --if-needed the cleanup only runs when a storage threshold is exceeded.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Retention == nil {
			return fmt.Errorf("retention manager not initialized")
		}
		if storageIfNeeded {
			should, err := Retention.ShouldCleanup()
			if err != nil {
				return fmt.Errorf("checking storage thresholds: %w", err)
			}
			if !should {
				fmt.Println("Storage within thresholds, nothing to do.")
				return nil
			}
		}

		stats, err := Retention.Cleanup()
		if err != nil {
			return fmt.Errorf("cleaning up storage: %w", err)
		}
		if Events != nil {
			_ = Events.LogEvent(core.EventStorageCleanup, map[string]any{
				"lead_dirs_deleted": stats.LeadDirsDeleted,
				"snapshots_deleted": stats.SnapshotsDeleted,
			})
		}

		if storageJSON {
			return printStructured(formatJSON, stats)
		}
		fmt.Printf("Storage cleanup completed: %d lead directories and %d snapshots deleted, %.2f MB freed.\n",
			stats.LeadDirsDeleted, stats.SnapshotsDeleted, stats.SpaceFreedMB)
		return nil
	},
}

func init() {
	storageCmd.PersistentFlags().BoolVar(&storageJSON, "json", false, "Output as JSON")
	storageCleanupCmd.Flags().BoolVar(&storageIfNeeded, "if-needed", false, "Only clean up when a storage threshold is exceeded")
	storageCmd.AddCommand(storageStatsCmd)
	storageCmd.AddCommand(storageCleanupCmd)
	rootCmd.AddCommand(storageCmd)
}
