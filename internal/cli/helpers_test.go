package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/valter-silva-au/leadline/internal/core"
	"github.com/valter-silva-au/leadline/internal/observability"
	"github.com/valter-silva-au/leadline/internal/storage"
	"github.com/valter-silva-au/leadline/pkg/models"
)

// captureStdout runs fn and returns everything it wrote to os.Stdout.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("creating pipe: %v", err)
	}
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = origStdout

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading pipe: %v", err)
	}
	return string(out)
}

// --- Fakes ---

type fakeConsolidator struct {
	result     *models.ConsolidationResult
	err        error
	timelines  map[string][]models.Event
	lastLead   models.LeadRef
	lastForce  bool
	transcript string
}

func (f *fakeConsolidator) Consolidate(_ context.Context, lead models.LeadRef, force bool) (*models.ConsolidationResult, error) {
	f.lastLead = lead
	f.lastForce = force
	return f.result, f.err
}

func (f *fakeConsolidator) Timeline(leadID string) ([]models.Event, error) {
	if err := core.ValidateLeadID(leadID); err != nil {
		return nil, err
	}
	tl, ok := f.timelines[leadID]
	if !ok {
		return nil, fmt.Errorf("lead %s: %w", leadID, storage.ErrLeadNotFound)
	}
	return tl, nil
}

func (f *fakeConsolidator) AttachTranscript(leadID, callID, transcript string) (bool, error) {
	tl, ok := f.timelines[leadID]
	if !ok {
		return false, fmt.Errorf("lead %s: %w", leadID, storage.ErrLeadNotFound)
	}
	for _, e := range tl {
		if e.Type == models.EventCall && e.ID == callID {
			f.transcript = transcript
			return true, nil
		}
	}
	return false, nil
}

type fakeRetention struct {
	stats   models.StorageStats
	should  bool
	cleaned int
}

func (f *fakeRetention) Stats() (models.StorageStats, error) { return f.stats, nil }
func (f *fakeRetention) ShouldCleanup() (bool, error)        { return f.should, nil }
func (f *fakeRetention) Cleanup() (models.CleanupStats, error) {
	f.cleaned++
	return models.CleanupStats{LeadDirsDeleted: 2, SnapshotsDeleted: 5, SpaceFreedMB: 1.5}, nil
}

type recordingEvents struct {
	types []string
}

func (r *recordingEvents) LogEvent(eventType string, _ map[string]any) error {
	r.types = append(r.types, eventType)
	return nil
}

type metricsMock struct {
	calcFn func(since time.Time) (*observability.Metrics, error)
}

func (m *metricsMock) Calculate(since time.Time) (*observability.Metrics, error) {
	return m.calcFn(since)
}

type alertsMock struct {
	alerts []observability.Alert
	err    error
}

func (m *alertsMock) Evaluate() ([]observability.Alert, error) {
	return m.alerts, m.err
}

func sampleTimeline() []models.Event {
	return []models.Event{
		{Type: models.EventCall, ID: "17", Timestamp: "2024-01-01T09:59:00", Content: "ring"},
		{
			Type: models.EventMessagePack, Timestamp: "2024-01-01T10:00:00", Content: "hi",
			StartTimestamp: "2024-01-01T10:00:00", EndTimestamp: "2024-01-01T10:00:00", Count: 1,
			Messages: []models.Event{{Type: models.EventMessage, Timestamp: "2024-01-01T10:00:00", Content: "hi"}},
		},
	}
}

// withConsolidator swaps the package-level consolidator for the test.
func withConsolidator(t *testing.T, c core.Consolidator) {
	t.Helper()
	orig := Consolidator
	Consolidator = c
	t.Cleanup(func() { Consolidator = orig })
}
