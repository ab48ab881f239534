package core

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/valter-silva-au/leadline/pkg/models"
)

// fakeStateStore is an in-memory StateStore.
type fakeStateStore struct {
	mu      sync.Mutex
	states  map[string]*models.LeadProcessingState
	saveErr error
	saves   int
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{states: make(map[string]*models.LeadProcessingState)}
}

func (f *fakeStateStore) Load(leadID string) (*models.LeadProcessingState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.states[leadID]; ok {
		cp := *s
		return &cp, nil
	}
	return &models.LeadProcessingState{
		Summary:       map[string]any{},
		LastProcessed: map[string]string{},
	}, nil
}

func (f *fakeStateStore) Save(leadID string, state *models.LeadProcessingState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	cp := *state
	f.states[leadID] = &cp
	return nil
}

func TestIsEmptyPayload(t *testing.T) {
	var nilMap map[string]any
	tests := []struct {
		v    any
		want bool
	}{
		{nil, true},
		{"", true},
		{"  \n", true},
		{[]any{}, true},
		{nilMap, true},
		{map[string]any{}, true},
		{"transcript", false},
		{[]any{map[string]any{}}, false},
		{map[string]any{"a": 1}, false},
		{42, false},
	}
	for _, tt := range tests {
		if got := IsEmptyPayload(tt.v); got != tt.want {
			t.Errorf("IsEmptyPayload(%#v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestPayloadMarker_StableAcrossKeyOrder(t *testing.T) {
	a := map[string]any{"content": "hi", "timestamp": "2024-01-01T10:00:00"}
	b := map[string]any{"timestamp": "2024-01-01T10:00:00", "content": "hi"}
	if PayloadMarker(a) != PayloadMarker(b) {
		t.Error("equal payloads produced different markers")
	}
	if PayloadMarker(a) == PayloadMarker(map[string]any{"content": "bye"}) {
		t.Error("different payloads produced the same marker")
	}
	if !strings.HasPrefix(PayloadMarker(a), "sha256:") {
		t.Errorf("marker %q lacks prefix", PayloadMarker(a))
	}
}

func TestStateTracker_Decide(t *testing.T) {
	tracker := NewStateTracker(newFakeStateStore(), fixedClock)
	calls := []any{map[string]any{"content": "ring", "timestamp": "2024-01-01T09:00:00"}}
	empty := map[models.Channel]any{
		models.ChannelMessage: []any{},
		models.ChannelCall:    "",
		models.ChannelEmail:   nil,
	}

	t.Run("all empty with prior summary returns cached", func(t *testing.T) {
		prior := &models.LeadProcessingState{Summary: map[string]any{"status": "warm"}}
		d := tracker.Decide(empty, prior, false)
		if d.Status != models.StatusCached {
			t.Fatalf("Status = %q, want cached", d.Status)
		}
		if d.Message != "No new data. Returning last summary." {
			t.Errorf("Message = %q", d.Message)
		}
		if !reflect.DeepEqual(d.Summary, prior.Summary) {
			t.Errorf("Summary = %v, want prior %v", d.Summary, prior.Summary)
		}
	})

	t.Run("all empty without prior returns no data", func(t *testing.T) {
		d := tracker.Decide(empty, &models.LeadProcessingState{}, false)
		if d.Status != models.StatusNoData {
			t.Fatalf("Status = %q, want no_data", d.Status)
		}
		if d.Message != "No data found for this lead." {
			t.Errorf("Message = %q", d.Message)
		}
		if d.Summary == nil || len(d.Summary) != 0 {
			t.Errorf("Summary = %v, want empty map", d.Summary)
		}
	})

	t.Run("nil prior", func(t *testing.T) {
		if d := tracker.Decide(empty, nil, false); d.Status != models.StatusNoData {
			t.Errorf("Status = %q, want no_data", d.Status)
		}
	})

	t.Run("force processes empty snapshot", func(t *testing.T) {
		d := tracker.Decide(empty, nil, true)
		if !d.Process() {
			t.Errorf("Status = %q, want processed", d.Status)
		}
	})

	t.Run("new payload processes", func(t *testing.T) {
		d := tracker.Decide(map[models.Channel]any{models.ChannelCall: calls}, nil, false)
		if !d.Process() {
			t.Fatalf("Status = %q, want processed", d.Status)
		}
		if len(d.Changed) != 1 || d.Changed[0] != models.ChannelCall {
			t.Errorf("Changed = %v, want [call]", d.Changed)
		}
	})

	t.Run("unchanged payload is not new", func(t *testing.T) {
		prior := &models.LeadProcessingState{
			Summary:       map[string]any{"status": "warm"},
			LastProcessed: map[string]string{"call": PayloadMarker(calls)},
		}
		d := tracker.Decide(map[models.Channel]any{models.ChannelCall: calls}, prior, false)
		if d.Status != models.StatusCached {
			t.Errorf("Status = %q, want cached", d.Status)
		}
	})
}

func TestStateTracker_MarkersKeepPreviousForEmptyChannels(t *testing.T) {
	tracker := NewStateTracker(newFakeStateStore(), fixedClock)
	prior := &models.LeadProcessingState{
		LastProcessed: map[string]string{"email": "cursor-7", "call": "old"},
	}
	calls := []any{map[string]any{"content": "ring"}}

	markers := tracker.Markers(map[models.Channel]any{
		models.ChannelCall:  calls,
		models.ChannelEmail: []any{},
	}, prior)

	if markers["email"] != "cursor-7" {
		t.Errorf("email marker = %q, want kept", markers["email"])
	}
	if markers["call"] != PayloadMarker(calls) {
		t.Errorf("call marker = %q, want payload marker", markers["call"])
	}
	if _, ok := markers["message"]; ok {
		t.Error("empty channel without previous marker gained one")
	}
	if prior.LastProcessed["call"] != "old" {
		t.Error("Markers mutated the prior state")
	}
}

func TestStateTracker_CommitWritesSummaryAndMarkersTogether(t *testing.T) {
	store := newFakeStateStore()
	tracker := NewStateTracker(store, fixedClock)

	err := tracker.Commit("lead-1", map[string]any{"status": "hot"}, map[string]string{"call": "m1"})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	got, _ := store.Load("lead-1")
	if got.Summary["status"] != "hot" || got.LastProcessed["call"] != "m1" {
		t.Errorf("state = %+v", got)
	}
	if got.UpdatedAt == nil || !got.UpdatedAt.Equal(fixedNow) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, fixedNow)
	}
	if store.saves != 1 {
		t.Errorf("saves = %d, want one atomic write", store.saves)
	}

	store.saveErr = errors.New("disk full")
	if err := tracker.Commit("lead-1", nil, nil); err == nil {
		t.Fatal("expected storage error to propagate")
	}
}
