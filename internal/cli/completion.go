package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion <shell>",
	Short: "Generate shell completions for leadline",
	Long: `Print the shell completion script for leadline to stdout.

Supported shells: bash, zsh, fish, powershell

  eval "$(leadline completion bash)"
  eval "$(leadline completion zsh)"
  leadline completion fish | source`,
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	Args:      cobra.MaximumNArgs(1),
	RunE:      runCompletion,
}

func init() {
	// Remove Cobra's default completion command and add ours.
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(completionCmd)
}

func runCompletion(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	switch args[0] {
	case "bash":
		return rootCmd.GenBashCompletionV2(cmd.OutOrStdout(), true)
	case "zsh":
		return rootCmd.GenZshCompletion(cmd.OutOrStdout())
	case "fish":
		return rootCmd.GenFishCompletion(cmd.OutOrStdout(), true)
	case "powershell":
		return rootCmd.GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
	default:
		return fmt.Errorf("unsupported shell %q (supported: bash, zsh, fish, powershell)", args[0])
	}
}

// completeLeadIDs completes the first argument with the lead directories
// under the data directory.
func completeLeadIDs(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 || DataDir == "" {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return leadIDs(DataDir, toComplete), cobra.ShellCompDirectiveNoFileComp
}

func leadIDs(dataDir, prefix string) []string {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if _, err := os.Stat(filepath.Join(dataDir, e.Name(), "timeline.json")); err != nil {
			continue
		}
		if strings.HasPrefix(e.Name(), prefix) {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids
}
