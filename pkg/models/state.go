package models

import "time"

// LeadProcessingState is the persisted per-lead incremental state: the last
// structured extraction result and one opaque marker per channel.
type LeadProcessingState struct {
	Summary       map[string]any    `json:"summary" yaml:"summary"`
	LastProcessed map[string]string `json:"last_processed" yaml:"last_processed"`
	UpdatedAt     *time.Time        `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// HasSummary reports whether a non-empty cached result exists.
func (s *LeadProcessingState) HasSummary() bool {
	return s != nil && len(s.Summary) > 0
}

// ConsolidationStatus describes how a consolidation run ended.
type ConsolidationStatus string

const (
	// StatusProcessed means new data was consolidated and the state updated.
	StatusProcessed ConsolidationStatus = "processed"
	// StatusCached means nothing new arrived and the last summary was returned.
	StatusCached ConsolidationStatus = "cached"
	// StatusNoData means nothing has ever been seen for the lead.
	StatusNoData ConsolidationStatus = "no_data"
	// StatusFailed means the run returned an error. It is never part of a
	// ConsolidationResult; it labels failed runs in metrics and the event log.
	StatusFailed ConsolidationStatus = "failed"
)

// ConsolidationResult is returned by every consolidation call.
type ConsolidationResult struct {
	RunID         string              `json:"run_id" yaml:"run_id"`
	LeadID        string              `json:"lead_id" yaml:"lead_id"`
	Status        ConsolidationStatus `json:"status" yaml:"status"`
	Message       string              `json:"message,omitempty" yaml:"message,omitempty"`
	Summary       map[string]any      `json:"summary" yaml:"summary"`
	Timeline      []Event             `json:"timeline,omitempty" yaml:"timeline,omitempty"`
	Projection    *Projection         `json:"projection,omitempty" yaml:"projection,omitempty"`
	ChannelErrors map[Channel]string  `json:"channel_errors,omitempty" yaml:"channel_errors,omitempty"`
}
