package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/leadline/internal/observability"
)

var (
	alertsJSON     bool
	alertsSeverity string
)

// alertGroups orders the alert conditions and names them for display.
var alertGroups = []struct {
	condition string
	title     string
}{
	{"channel_failing", "Failing channels"},
	{"run_stalled", "Stalled consolidation runs"},
	{"slow_consolidation", "Slow consolidations"},
}

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Show failing channels, stalled runs and slow consolidations",
	Long: `Evaluate alert conditions against the event log and display any triggered
alerts, grouped by condition.

Channels whose fetches keep failing, runs that started but never finished,
and consolidations slower than the configured limit are reported. Use
--severity to show only one level.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if AlertEngine == nil {
			return fmt.Errorf("alert engine not initialized (event log may be disabled)")
		}

		alerts, err := AlertEngine.Evaluate()
		if err != nil {
			return fmt.Errorf("evaluating alerts: %w", err)
		}
		if alertsSeverity != "" {
			alerts = filterAlerts(alerts, observability.AlertSeverity(strings.ToLower(alertsSeverity)))
		}

		if alertsJSON {
			if alerts == nil {
				alerts = []observability.Alert{}
			}
			return printStructured(formatJSON, alerts)
		}

		if len(alerts) == 0 {
			fmt.Println("No active alerts.")
			return nil
		}

		fmt.Printf("%d active alert(s):\n", len(alerts))
		for _, g := range groupAlerts(alerts) {
			fmt.Printf("\n%s\n", labelStyle.Render(g.title))
			for _, alert := range g.alerts {
				severity := strings.ToUpper(string(alert.Severity))
				fmt.Printf("  [%s] %s\n", styleForSeverity(string(alert.Severity)).Render(severity), alert.Message)
				fmt.Printf("         triggered at %s\n", alert.TriggeredAt.Format("2006-01-02 15:04 UTC"))
			}
		}
		return nil
	},
}

type alertGroup struct {
	title  string
	alerts []observability.Alert
}

// groupAlerts buckets alerts by condition in display order. Conditions
// without a known title land in a trailing "Other" group.
func groupAlerts(alerts []observability.Alert) []alertGroup {
	byCondition := make(map[string][]observability.Alert)
	for _, a := range alerts {
		byCondition[a.Condition] = append(byCondition[a.Condition], a)
	}

	var groups []alertGroup
	for _, g := range alertGroups {
		if list := byCondition[g.condition]; len(list) > 0 {
			groups = append(groups, alertGroup{title: g.title, alerts: list})
			delete(byCondition, g.condition)
		}
	}
	var other []observability.Alert
	for _, a := range alerts {
		if _, ok := byCondition[a.Condition]; ok {
			other = append(other, a)
		}
	}
	if len(other) > 0 {
		groups = append(groups, alertGroup{title: "Other", alerts: other})
	}
	return groups
}

func filterAlerts(alerts []observability.Alert, severity observability.AlertSeverity) []observability.Alert {
	var out []observability.Alert
	for _, a := range alerts {
		if a.Severity == severity {
			out = append(out, a)
		}
	}
	return out
}

func init() {
	alertsCmd.Flags().BoolVar(&alertsJSON, "json", false, "Output alerts as JSON")
	alertsCmd.Flags().StringVar(&alertsSeverity, "severity", "", "Only show alerts of this severity (high, medium, low)")
	rootCmd.AddCommand(alertsCmd)
}
