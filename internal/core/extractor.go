package core

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/valter-silva-au/leadline/pkg/models"
)

// projectionLine matches the head of a text projection line and captures
// the timestamp and the channel label.
var projectionLine = regexp.MustCompile(`^\[([^\]]*)\] \[([A-Z_]+)\]`)

// ManifestExtractor is the built-in Extractor. It derives a deterministic
// manifest from the text projection alone: activity per channel, first and
// last activity, and the subject record fields.
type ManifestExtractor struct{}

// NewManifestExtractor creates a ManifestExtractor.
func NewManifestExtractor() *ManifestExtractor {
	return &ManifestExtractor{}
}

func (ManifestExtractor) Extract(ctx context.Context, leadID, text string, subject *models.Event) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	activity := make(map[string]any)
	var first, last string
	lines := 0
	for _, line := range strings.Split(text, "\n") {
		m := projectionLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		lines++
		ts, label := m[1], strings.ToLower(m[2])
		n, _ := activity[label].(int)
		activity[label] = n + 1
		if ts == "" {
			continue
		}
		if first == "" || ts < first {
			first = ts
		}
		if ts > last {
			last = ts
		}
	}

	channels := make([]string, 0, len(activity))
	for ch := range activity {
		channels = append(channels, ch)
	}
	sort.Strings(channels)

	summary := map[string]any{
		"lead_id":        leadID,
		"events":         lines,
		"activity":       activity,
		"channels":       channels,
		"first_activity": first,
		"last_activity":  last,
	}
	if subject != nil {
		if rec, ok := subject.Raw.(map[string]any); ok {
			summary["subject"] = rec
		} else {
			summary["subject"] = subject.Content
		}
	}
	return summary, nil
}
