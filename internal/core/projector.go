package core

import (
	"strings"

	"github.com/valter-silva-au/leadline/pkg/models"
)

// Project derives the flattened text, the raw-free enriched timeline and the
// counts from a canonical timeline. It does not modify timeline.
func Project(timeline []models.Event) models.Projection {
	lines := make([]string, 0, len(timeline))
	llm := make([]models.Event, 0, len(timeline))

	for _, ev := range timeline {
		content := RichContent(ev)
		lines = append(lines, ProjectLine(ev.Timestamp, ev.Type, content))
		llm = append(llm, stripRaw(ev, content))
	}

	return models.Projection{
		Text:        strings.Join(lines, "\n"),
		LLMTimeline: llm,
		Counts:      Count(timeline),
	}
}

// ProjectLine renders one text projection line:
// "[<timestamp>] [<CHANNEL>] <content>".
func ProjectLine(timestamp string, t models.EventType, content string) string {
	return strings.TrimSpace("[" + timestamp + "] [" + ChannelLabel(t) + "] " + content)
}

// ChannelLabel is the upper-cased event type with any _pack suffix removed.
func ChannelLabel(t models.EventType) string {
	return strings.ToUpper(strings.TrimSuffix(string(t), "_pack"))
}

// RichContent returns the text an event contributes to the projection.
// Emails use subject, snippet and body; calls prefer the attached
// transcript; packs join their constituents' message text.
func RichContent(ev models.Event) string {
	switch ev.Type {
	case models.EventEmail:
		return EmailRichContent(ev.Raw, ev.Content)
	case models.EventCall:
		return CallRichContent(ev.Transcript, ev.Raw, ev.Content)
	case models.EventMessagePack:
		if len(ev.Messages) == 0 {
			return ev.Content
		}
		parts := make([]string, len(ev.Messages))
		for i, m := range ev.Messages {
			parts[i] = m.Content
			if rec, ok := m.Raw.(map[string]any); ok {
				if s := stringValue(rec["message_content"]); s != "" {
					parts[i] = s
				}
			}
		}
		return strings.Join(parts, "\n")
	}
	return ev.Content
}

func stripRaw(ev models.Event, content string) models.Event {
	out := ev
	out.Raw = nil
	out.Content = content
	if len(ev.Messages) > 0 {
		out.Messages = make([]models.Event, len(ev.Messages))
		for i, m := range ev.Messages {
			m.Raw = nil
			out.Messages[i] = m
		}
	}
	return out
}

// Count builds the timeline manifest.
func Count(timeline []models.Event) models.TimelineCounts {
	var c models.TimelineCounts
	for _, ev := range timeline {
		switch ev.Type {
		case models.EventCall:
			c.Calls++
		case models.EventEmail:
			c.Emails++
		case models.EventMessagePack:
			c.MessagePacks++
			if n := len(ev.Messages); n > 0 {
				c.Messages += n
			} else {
				c.Messages += ev.Count
			}
		case models.EventMessage:
			c.Messages++
		case models.EventSubjectRecord:
			c.SubjectRecords++
		}
	}
	c.Total = len(timeline)
	return c
}
