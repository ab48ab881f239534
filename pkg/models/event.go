package models

import "time"

// EventType is the kind of a timeline event.
type EventType string

const (
	EventMessage       EventType = "message"
	EventCall          EventType = "call"
	EventEmail         EventType = "email"
	EventSubjectRecord EventType = "subject_record"
	EventMessagePack   EventType = "message_pack"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventMessage, EventCall, EventEmail, EventSubjectRecord, EventMessagePack:
		return true
	}
	return false
}

// Event is one normalized, timestamped unit of communication activity.
//
// Events of type message_pack aggregate a run of consecutive messages and
// carry StartTimestamp, EndTimestamp, Count and the constituent Messages.
// Transcript is only ever set after the fact, on call events, by the
// transcript attachment operation.
type Event struct {
	Type           EventType `json:"type" yaml:"type"`
	Timestamp      string    `json:"timestamp" yaml:"timestamp"`
	Content        string    `json:"content" yaml:"content"`
	Source         string    `json:"source" yaml:"source"`
	ID             string    `json:"id,omitempty" yaml:"id,omitempty"`
	Transcript     string    `json:"transcript,omitempty" yaml:"transcript,omitempty"`
	StartTimestamp string    `json:"start_timestamp,omitempty" yaml:"start_timestamp,omitempty"`
	EndTimestamp   string    `json:"end_timestamp,omitempty" yaml:"end_timestamp,omitempty"`
	Count          int       `json:"count,omitempty" yaml:"count,omitempty"`
	Messages       []Event   `json:"messages,omitempty" yaml:"messages,omitempty"`
	Raw            any       `json:"raw,omitempty" yaml:"raw,omitempty"`

	// At is the parsed ordering key. It is not persisted; the zero value
	// means the timestamp could not be parsed.
	At time.Time `json:"-" yaml:"-"`
}

// IsPack reports whether the event is an aggregate message pack.
func (e Event) IsPack() bool {
	return e.Type == EventMessagePack
}

// TimelineCounts is the cheap manifest callers use to short-circuit work on
// empty timelines.
type TimelineCounts struct {
	Calls          int `json:"calls" yaml:"calls"`
	Emails         int `json:"emails" yaml:"emails"`
	MessagePacks   int `json:"message_packs" yaml:"message_packs"`
	Messages       int `json:"messages" yaml:"messages"`
	SubjectRecords int `json:"subject_records" yaml:"subject_records"`
	Total          int `json:"total" yaml:"total"`
}

// Projection is everything derived from a canonical timeline for downstream
// extraction: the flattened text, a raw-free copy with enriched content, and
// the counts.
type Projection struct {
	Text        string         `json:"text" yaml:"text"`
	LLMTimeline []Event        `json:"llm_timeline" yaml:"llm_timeline"`
	Counts      TimelineCounts `json:"counts" yaml:"counts"`
}
