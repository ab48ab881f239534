package core

import (
	"sort"
	"strings"

	"github.com/valter-silva-au/leadline/pkg/models"
)

// Merge orders events chronologically and packs every maximal run of
// consecutive message events into one message_pack event.
//
// The sort is stable: events sharing a timestamp keep their input order,
// which is what makes packing deterministic for same-second bursts. Events
// with an unparseable timestamp sort first. Any non-message event ends the
// current run. The result is never nil.
func Merge(events []models.Event) []models.Event {
	sorted := make([]models.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].At.Before(sorted[j].At)
	})

	timeline := make([]models.Event, 0, len(sorted))
	var run []models.Event
	flush := func() {
		if len(run) == 0 {
			return
		}
		timeline = append(timeline, Pack(run))
		run = nil
	}

	for _, ev := range sorted {
		if ev.Type == models.EventMessage {
			run = append(run, ev)
			continue
		}
		flush()
		timeline = append(timeline, ev)
	}
	flush()

	return timeline
}

// Pack collapses a run of messages into one message_pack event positioned
// at the first message's timestamp. A run of one still yields a pack.
func Pack(run []models.Event) models.Event {
	msgs := make([]models.Event, len(run))
	copy(msgs, run)

	contents := make([]string, len(msgs))
	for i, m := range msgs {
		contents[i] = m.Content
	}

	first, last := msgs[0], msgs[len(msgs)-1]
	return models.Event{
		Type:           models.EventMessagePack,
		Timestamp:      first.Timestamp,
		Content:        strings.Join(contents, "\n"),
		Source:         string(models.ChannelMessage),
		StartTimestamp: first.Timestamp,
		EndTimestamp:   last.Timestamp,
		Count:          len(msgs),
		Messages:       msgs,
		At:             first.At,
	}
}
