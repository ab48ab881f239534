package observability

import (
	"fmt"
	"sort"
	"time"

	"github.com/valter-silva-au/leadline/pkg/models"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert represents a triggered alert condition.
type Alert struct {
	ID          string        `json:"id" yaml:"id"`
	Condition   string        `json:"condition" yaml:"condition"`
	Severity    AlertSeverity `json:"severity" yaml:"severity"`
	Message     string        `json:"message" yaml:"message"`
	TriggeredAt time.Time     `json:"triggered_at" yaml:"triggered_at"`
}

// AlertEngine evaluates alert conditions against the event log.
type AlertEngine interface {
	Evaluate() ([]Alert, error)
}

type alertEngine struct {
	eventLog   EventLog
	thresholds models.AlertConfig
	now        func() time.Time
}

// NewAlertEngine creates an AlertEngine over eventLog. A zero threshold
// disables the corresponding check.
func NewAlertEngine(eventLog EventLog, thresholds models.AlertConfig) AlertEngine {
	return &alertEngine{
		eventLog:   eventLog,
		thresholds: thresholds,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate checks every condition over the configured window and returns
// the triggered alerts, highest severity first.
func (ae *alertEngine) Evaluate() ([]Alert, error) {
	now := ae.now()
	window := time.Duration(ae.thresholds.WindowHours) * time.Hour
	if window <= 0 {
		window = 24 * time.Hour
	}
	since := now.Add(-window)

	events, err := ae.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for alerts: %w", err)
	}

	var alerts []Alert
	alerts = append(alerts, ae.checkChannelFailures(events, now)...)
	alerts = append(alerts, ae.checkStalledRuns(events, now)...)
	alerts = append(alerts, ae.checkSlowRuns(events, now)...)

	rank := map[AlertSeverity]int{SeverityHigh: 0, SeverityMedium: 1, SeverityLow: 2}
	sort.SliceStable(alerts, func(i, j int) bool {
		return rank[alerts[i].Severity] < rank[alerts[j].Severity]
	})
	return alerts, nil
}

// checkChannelFailures alerts on channels whose fetch failed too often.
func (ae *alertEngine) checkChannelFailures(events []Event, now time.Time) []Alert {
	if ae.thresholds.MaxChannelFailures <= 0 {
		return nil
	}
	failures := make(map[string]int)
	for _, e := range events {
		if e.Type != "channel.failed" {
			continue
		}
		if ch, ok := e.Data["channel"].(string); ok {
			failures[ch]++
		}
	}

	channels := make([]string, 0, len(failures))
	for ch := range failures {
		channels = append(channels, ch)
	}
	sort.Strings(channels)

	var alerts []Alert
	for _, ch := range channels {
		if n := failures[ch]; n >= ae.thresholds.MaxChannelFailures {
			alerts = append(alerts, Alert{
				ID:          "channel-failing-" + ch,
				Condition:   "channel_failing",
				Severity:    SeverityHigh,
				Message:     fmt.Sprintf("%s channel failed %d times in the last %d hours", ch, n, ae.thresholds.WindowHours),
				TriggeredAt: now,
			})
		}
	}
	return alerts
}

// checkStalledRuns alerts on runs that started but never finished.
func (ae *alertEngine) checkStalledRuns(events []Event, now time.Time) []Alert {
	if ae.thresholds.StalledRunMinutes <= 0 {
		return nil
	}
	started := make(map[string]Event)
	for _, e := range events {
		runID, _ := e.Data["run_id"].(string)
		if runID == "" {
			continue
		}
		switch e.Type {
		case "consolidation.started":
			started[runID] = e
		case "consolidation.completed", "consolidation.cached", "consolidation.failed":
			delete(started, runID)
		}
	}

	limit := time.Duration(ae.thresholds.StalledRunMinutes) * time.Minute
	runIDs := make([]string, 0, len(started))
	for id, e := range started {
		if now.Sub(e.Time) > limit {
			runIDs = append(runIDs, id)
		}
	}
	sort.Strings(runIDs)

	var alerts []Alert
	for _, id := range runIDs {
		alerts = append(alerts, Alert{
			ID:          "run-stalled-" + id,
			Condition:   "run_stalled",
			Severity:    SeverityMedium,
			Message:     fmt.Sprintf("consolidation run %s for lead %s has not finished after %d minutes", id, started[id].Lead(), ae.thresholds.StalledRunMinutes),
			TriggeredAt: now,
		})
	}
	return alerts
}

// checkSlowRuns raises one alert when any finished run exceeded the
// duration threshold.
func (ae *alertEngine) checkSlowRuns(events []Event, now time.Time) []Alert {
	if ae.thresholds.SlowRunMs <= 0 {
		return nil
	}
	slow := 0
	for _, e := range events {
		if e.Type != "consolidation.completed" && e.Type != "consolidation.cached" {
			continue
		}
		if ms, ok := number(e.Data["duration_ms"]); ok && ms > float64(ae.thresholds.SlowRunMs) {
			slow++
		}
	}
	if slow == 0 {
		return nil
	}
	return []Alert{{
		ID:          "slow-runs",
		Condition:   "slow_consolidation",
		Severity:    SeverityLow,
		Message:     fmt.Sprintf("%d consolidation runs took longer than %dms", slow, ae.thresholds.SlowRunMs),
		TriggeredAt: now,
	}}
}
