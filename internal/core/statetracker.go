package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/valter-silva-au/leadline/pkg/models"
)

// Messages returned when a run does no extraction work.
const (
	MessageCached = "No new data. Returning last summary."
	MessageNoData = "No data found for this lead."
)

// markerPrefix tags content-hash markers so other marker kinds (cursors,
// consumed flags set by providers) stay distinguishable.
const markerPrefix = "sha256:"

// Decision is the state tracker's verdict for one run.
type Decision struct {
	// Status is processed when extraction should run, otherwise cached or
	// no_data.
	Status  models.ConsolidationStatus
	Message string
	// Summary is the prior summary for cached runs and empty for no_data.
	Summary map[string]any
	// Changed lists the channels whose payload differs from the last run.
	Changed []models.Channel
}

// Process reports whether extraction work is warranted.
func (d Decision) Process() bool {
	return d.Status == models.StatusProcessed
}

// StateTracker decides whether a run has anything new to process and
// persists the per-lead summary together with the channel markers.
type StateTracker interface {
	Decide(snapshot map[models.Channel]any, prior *models.LeadProcessingState, force bool) Decision
	Markers(snapshot map[models.Channel]any, prior *models.LeadProcessingState) map[string]string
	Commit(leadID string, summary map[string]any, markers map[string]string) error
}

type stateTracker struct {
	store StateStore
	now   func() time.Time
}

// NewStateTracker creates a StateTracker persisting through store.
func NewStateTracker(store StateStore, now func() time.Time) StateTracker {
	if now == nil {
		now = time.Now
	}
	return &stateTracker{store: store, now: now}
}

// Decide compares the snapshot against the prior markers. A channel counts
// as new when its payload is non-empty and its marker differs from the one
// recorded by the last processed run.
func (t *stateTracker) Decide(snapshot map[models.Channel]any, prior *models.LeadProcessingState, force bool) Decision {
	var changed []models.Channel
	for _, ch := range models.AllChannels() {
		payload := snapshot[ch]
		if IsEmptyPayload(payload) {
			continue
		}
		if prior != nil && prior.LastProcessed[string(ch)] == PayloadMarker(payload) {
			continue
		}
		changed = append(changed, ch)
	}

	if len(changed) > 0 || force {
		return Decision{Status: models.StatusProcessed, Changed: changed}
	}
	if prior.HasSummary() {
		return Decision{
			Status:  models.StatusCached,
			Message: MessageCached,
			Summary: prior.Summary,
		}
	}
	return Decision{
		Status:  models.StatusNoData,
		Message: MessageNoData,
		Summary: map[string]any{},
	}
}

// Markers computes the marker of every non-empty channel payload. Empty
// channels keep their previous marker.
func (t *stateTracker) Markers(snapshot map[models.Channel]any, prior *models.LeadProcessingState) map[string]string {
	markers := make(map[string]string)
	if prior != nil {
		for k, v := range prior.LastProcessed {
			markers[k] = v
		}
	}
	for _, ch := range models.AllChannels() {
		payload := snapshot[ch]
		if IsEmptyPayload(payload) {
			continue
		}
		markers[string(ch)] = PayloadMarker(payload)
	}
	return markers
}

// Commit replaces the lead's state with summary and markers in one atomic
// write. Callers hold the lead lock.
func (t *stateTracker) Commit(leadID string, summary map[string]any, markers map[string]string) error {
	if summary == nil {
		summary = map[string]any{}
	}
	if markers == nil {
		markers = map[string]string{}
	}
	now := t.now().UTC()
	state := &models.LeadProcessingState{
		Summary:       summary,
		LastProcessed: markers,
		UpdatedAt:     &now,
	}
	if err := t.store.Save(leadID, state); err != nil {
		return fmt.Errorf("committing state for lead %s: %w", leadID, err)
	}
	return nil
}

// IsEmptyPayload reports whether a channel payload carries no data: nil, a
// blank string, or an empty list or map.
func IsEmptyPayload(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// PayloadMarker returns the opaque marker of a channel payload: the SHA-256
// of its JSON encoding. encoding/json sorts map keys, so equal payloads
// always yield equal markers.
func PayloadMarker(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte(fmt.Sprintf("%#v", v))
	}
	sum := sha256.Sum256(data)
	return markerPrefix + hex.EncodeToString(sum[:])
}
