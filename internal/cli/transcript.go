package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var transcriptFile string

var transcriptCmd = &cobra.Command{
	Use:   "transcript",
	Short: "Manage call transcripts",
}

var transcriptAttachCmd = &cobra.Command{
	Use:   "attach <lead> <call-id> [transcript]",
	Short: "Attach a transcript to a call on a lead's timeline",
	Long: `Attach a transcript to the call event with the given id on the persisted
timeline of a lead. The transcript is read from --file or taken from the
third argument. Transcripts are carried forward across later consolidations.`,
	Args:              cobra.RangeArgs(2, 3),
	ValidArgsFunction: completeLeadIDs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Consolidator == nil {
			return fmt.Errorf("consolidator not initialized")
		}
		lead, callID := args[0], args[1]

		var transcript string
		switch {
		case transcriptFile != "":
			data, err := os.ReadFile(transcriptFile)
			if err != nil {
				return fmt.Errorf("reading transcript file: %w", err)
			}
			transcript = strings.TrimSpace(string(data))
		case len(args) == 3:
			transcript = args[2]
		default:
			return fmt.Errorf("provide the transcript as an argument or with --file")
		}

		found, err := Consolidator.AttachTranscript(lead, callID, transcript)
		if err != nil {
			return fmt.Errorf("attaching transcript: %w", err)
		}
		if !found {
			fmt.Printf("No call %s on the timeline of lead %s.\n", callID, lead)
			return nil
		}
		fmt.Printf("Attached transcript to call %s of lead %s.\n", callID, lead)
		return nil
	},
}

func init() {
	transcriptAttachCmd.Flags().StringVar(&transcriptFile, "file", "", "Read the transcript from this file")
	transcriptCmd.AddCommand(transcriptAttachCmd)
	rootCmd.AddCommand(transcriptCmd)
}
