package observability

import (
	"fmt"
	"time"
)

// Metrics summarizes consolidation activity recorded in the event log.
type Metrics struct {
	RunsStarted         int            `json:"runs_started" yaml:"runs_started"`
	RunsByStatus        map[string]int `json:"runs_by_status" yaml:"runs_by_status"`
	ChannelFailures     map[string]int `json:"channel_failures" yaml:"channel_failures"`
	TranscriptsAttached int            `json:"transcripts_attached" yaml:"transcripts_attached"`
	Cleanups            int            `json:"cleanups" yaml:"cleanups"`
	LeadsSeen           int            `json:"leads_seen" yaml:"leads_seen"`
	AvgDurationMs       float64        `json:"avg_duration_ms" yaml:"avg_duration_ms"`
	EventCount          int            `json:"event_count" yaml:"event_count"`
	OldestEvent         *time.Time     `json:"oldest_event,omitempty" yaml:"oldest_event,omitempty"`
	NewestEvent         *time.Time     `json:"newest_event,omitempty" yaml:"newest_event,omitempty"`
}

// RunsFinished is the number of runs that reached any terminal status.
func (m *Metrics) RunsFinished() int {
	n := 0
	for _, c := range m.RunsByStatus {
		n += c
	}
	return n
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a MetricsCalculator reading from eventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{
		RunsByStatus:    make(map[string]int),
		ChannelFailures: make(map[string]int),
		EventCount:      len(events),
	}

	leads := make(map[string]bool)
	var totalMs float64
	var timed int
	for i, event := range events {
		if i == 0 {
			t := event.Time
			m.OldestEvent = &t
		}
		t := event.Time
		m.NewestEvent = &t

		if lead := event.Lead(); lead != "" {
			leads[lead] = true
		}

		switch event.Type {
		case "consolidation.started":
			m.RunsStarted++
		case "consolidation.completed", "consolidation.cached", "consolidation.failed":
			if status, ok := event.Data["status"].(string); ok {
				m.RunsByStatus[status]++
			}
			if ms, ok := number(event.Data["duration_ms"]); ok {
				totalMs += ms
				timed++
			}
		case "channel.failed":
			if ch, ok := event.Data["channel"].(string); ok {
				m.ChannelFailures[ch]++
			}
		case "transcript.attached":
			m.TranscriptsAttached++
		case "storage.cleanup":
			m.Cleanups++
		}
	}

	m.LeadsSeen = len(leads)
	if timed > 0 {
		m.AvgDurationMs = totalMs / float64(timed)
	}
	return m, nil
}

// number reads a numeric event field. Values round-tripped through JSON
// arrive as float64; values written in-process may still be ints.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
