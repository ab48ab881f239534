package cli

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/leadline/internal/observability"
)

// --- parseSinceDuration unit tests ---

func TestParseSinceDuration(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		errMsg  string
	}{
		{"empty defaults to 7d", "", false, ""},
		{"whitespace defaults to 7d", "  ", false, ""},
		{"valid 7d", "7d", false, ""},
		{"valid 30d", "30d", false, ""},
		{"valid 24h", "24h", false, ""},
		{"invalid suffix", "abc", true, "unsupported duration format"},
		{"invalid day number", "xd", true, "invalid day duration"},
		{"invalid hour number", "yh", true, "invalid hour duration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSinceDuration(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("error %q should contain %q", err.Error(), tt.errMsg)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

// --- metricsCmd tests ---

func withMetrics(t *testing.T, m observability.MetricsCalculator) {
	t.Helper()
	orig, origJSON, origSince := MetricsCalc, metricsJSON, metricsSince
	t.Cleanup(func() { MetricsCalc, metricsJSON, metricsSince = orig, origJSON, origSince })
	MetricsCalc = m
	metricsJSON = false
	metricsSince = "7d"
}

func sampleMetrics() *observability.Metrics {
	oldest := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	return &observability.Metrics{
		RunsStarted:         4,
		RunsByStatus:        map[string]int{"processed": 3, "cached": 1},
		ChannelFailures:     map[string]int{"email": 2},
		TranscriptsAttached: 1,
		LeadsSeen:           2,
		AvgDurationMs:       120,
		EventCount:          11,
		OldestEvent:         &oldest,
	}
}

func TestMetricsCmd_NilCalculator(t *testing.T) {
	withMetrics(t, nil)

	err := metricsCmd.RunE(metricsCmd, []string{})
	if err == nil {
		t.Fatal("expected error when MetricsCalc is nil")
	}
	if !strings.Contains(err.Error(), "not initialized") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMetricsCmd_InvalidSinceFormat(t *testing.T) {
	withMetrics(t, &metricsMock{calcFn: func(time.Time) (*observability.Metrics, error) {
		return sampleMetrics(), nil
	}})
	metricsSince = "bogus"

	err := metricsCmd.RunE(metricsCmd, []string{})
	if err == nil || !strings.Contains(err.Error(), "parsing --since") {
		t.Errorf("err = %v", err)
	}
}

func TestMetricsCmd_CalculateError(t *testing.T) {
	withMetrics(t, &metricsMock{calcFn: func(time.Time) (*observability.Metrics, error) {
		return nil, errors.New("read failed")
	}})

	err := metricsCmd.RunE(metricsCmd, []string{})
	if err == nil || !strings.Contains(err.Error(), "read failed") {
		t.Errorf("err = %v", err)
	}
}

func TestMetricsCmd_TableOutput(t *testing.T) {
	withMetrics(t, &metricsMock{calcFn: func(time.Time) (*observability.Metrics, error) {
		return sampleMetrics(), nil
	}})

	out := captureStdout(t, func() {
		if err := metricsCmd.RunE(metricsCmd, []string{}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	for _, want := range []string{"Runs started:", "Runs finished:", "120 ms", "processed:", "email:", "Oldest event:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestMetricsCmd_JSONOutput(t *testing.T) {
	var gotSince time.Time
	withMetrics(t, &metricsMock{calcFn: func(since time.Time) (*observability.Metrics, error) {
		gotSince = since
		return sampleMetrics(), nil
	}})
	metricsJSON = true
	metricsSince = "24h"

	out := captureStdout(t, func() {
		if err := metricsCmd.RunE(metricsCmd, []string{}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	var m observability.Metrics
	if err := json.Unmarshal([]byte(out), &m); err != nil {
		t.Fatalf("decoding output: %v\n%s", err, out)
	}
	if m.RunsStarted != 4 || m.RunsByStatus["processed"] != 3 {
		t.Errorf("metrics = %+v", m)
	}
	if d := time.Since(gotSince); d < 23*time.Hour || d > 25*time.Hour {
		t.Errorf("since = %v, want about 24h ago", gotSince)
	}
}

// --- alertsCmd tests ---

func withAlerts(t *testing.T, a observability.AlertEngine) {
	t.Helper()
	orig, origJSON, origSeverity := AlertEngine, alertsJSON, alertsSeverity
	t.Cleanup(func() { AlertEngine, alertsJSON, alertsSeverity = orig, origJSON, origSeverity })
	AlertEngine = a
	alertsJSON, alertsSeverity = false, ""
}

func sampleAlerts() []observability.Alert {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return []observability.Alert{
		{ID: "channel-failing-email", Condition: "channel_failing", Severity: observability.SeverityHigh,
			Message: "email channel failed 6 times in the last 24 hours", TriggeredAt: at},
		{ID: "run-stalled-r1", Condition: "run_stalled", Severity: observability.SeverityMedium,
			Message: "consolidation run r1 for lead 917000000001 has not finished after 10 minutes", TriggeredAt: at},
		{ID: "slow-runs", Condition: "slow_consolidation", Severity: observability.SeverityLow,
			Message: "2 consolidation runs took longer than 30000ms", TriggeredAt: at},
	}
}

func TestAlertsCmd(t *testing.T) {
	t.Run("nil engine", func(t *testing.T) {
		withAlerts(t, nil)
		if err := alertsCmd.RunE(alertsCmd, nil); err == nil {
			t.Error("expected error when AlertEngine is nil")
		}
	})

	t.Run("no alerts", func(t *testing.T) {
		withAlerts(t, &alertsMock{})
		out := captureStdout(t, func() {
			if err := alertsCmd.RunE(alertsCmd, nil); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
		if !strings.Contains(out, "No active alerts.") {
			t.Errorf("out = %q", out)
		}
	})

	t.Run("alerts listed", func(t *testing.T) {
		withAlerts(t, &alertsMock{alerts: []observability.Alert{{
			ID:          "channel-failing-email",
			Severity:    observability.SeverityHigh,
			Message:     "email channel failed 6 times in the last 24 hours",
			TriggeredAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		}}})
		out := captureStdout(t, func() {
			if err := alertsCmd.RunE(alertsCmd, nil); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
		for _, want := range []string{"1 active alert(s)", "HIGH", "email channel failed", "2024-06-01 12:00 UTC"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("grouped by condition", func(t *testing.T) {
		withAlerts(t, &alertsMock{alerts: sampleAlerts()})
		out := captureStdout(t, func() {
			if err := alertsCmd.RunE(alertsCmd, nil); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
		channels := strings.Index(out, "Failing channels")
		stalled := strings.Index(out, "Stalled consolidation runs")
		slow := strings.Index(out, "Slow consolidations")
		if channels < 0 || stalled < channels || slow < stalled {
			t.Errorf("groups missing or out of order:\n%s", out)
		}
		if !strings.Contains(out, "3 active alert(s)") {
			t.Errorf("output:\n%s", out)
		}
	})

	t.Run("severity filter", func(t *testing.T) {
		withAlerts(t, &alertsMock{alerts: sampleAlerts()})
		alertsSeverity = "MEDIUM"
		out := captureStdout(t, func() {
			if err := alertsCmd.RunE(alertsCmd, nil); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
		if !strings.Contains(out, "1 active alert(s)") || !strings.Contains(out, "run r1") || strings.Contains(out, "email channel") {
			t.Errorf("output:\n%s", out)
		}
	})

	t.Run("json output", func(t *testing.T) {
		withAlerts(t, &alertsMock{alerts: sampleAlerts()})
		alertsJSON = true
		alertsSeverity = "high"
		out := captureStdout(t, func() {
			if err := alertsCmd.RunE(alertsCmd, nil); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
		var got []observability.Alert
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("decoding output: %v\n%s", err, out)
		}
		if len(got) != 1 || got[0].ID != "channel-failing-email" {
			t.Errorf("alerts = %+v", got)
		}
	})

	t.Run("json output with no alerts", func(t *testing.T) {
		withAlerts(t, &alertsMock{})
		alertsJSON = true
		out := captureStdout(t, func() {
			if err := alertsCmd.RunE(alertsCmd, nil); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
		if strings.TrimSpace(out) != "[]" {
			t.Errorf("out = %q, want []", out)
		}
	})

	t.Run("evaluate error", func(t *testing.T) {
		withAlerts(t, &alertsMock{err: errors.New("bad log")})
		if err := alertsCmd.RunE(alertsCmd, nil); err == nil || !strings.Contains(err.Error(), "bad log") {
			t.Errorf("err = %v", err)
		}
	})
}
