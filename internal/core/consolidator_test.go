package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/valter-silva-au/leadline/pkg/models"
)

// fakeProvider serves fixed payloads per channel.
type fakeProvider struct {
	mu       sync.Mutex
	payloads map[models.Channel]any
	errs     map[models.Channel]error
	panics   map[models.Channel]bool
	block    map[models.Channel]bool
	calls    int
}

func (f *fakeProvider) Fetch(ctx context.Context, lead models.LeadRef, ch models.Channel) (any, error) {
	f.mu.Lock()
	f.calls++
	payload, err, panics, block := f.payloads[ch], f.errs[ch], f.panics[ch], f.block[ch]
	f.mu.Unlock()

	if panics {
		panic("driver exploded")
	}
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return payload, err
}

func (f *fakeProvider) set(ch models.Channel, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads[ch] = payload
}

// fakeTimelineStore keeps timelines in memory, round-tripped through JSON
// like the file store.
type fakeTimelineStore struct {
	mu        sync.Mutex
	timelines map[string][]byte
	saveErr   error
}

func newFakeTimelineStore() *fakeTimelineStore {
	return &fakeTimelineStore{timelines: make(map[string][]byte)}
}

func (f *fakeTimelineStore) Save(leadID string, timeline []models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	data, err := json.Marshal(timeline)
	if err != nil {
		return err
	}
	f.timelines[leadID] = data
	return nil
}

func (f *fakeTimelineStore) Load(leadID string) ([]models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.timelines[leadID]
	if !ok {
		return nil, errors.New("lead not found")
	}
	var tl []models.Event
	if err := json.Unmarshal(data, &tl); err != nil {
		return nil, err
	}
	return tl, nil
}

func (f *fakeTimelineStore) AttachTranscript(leadID, callID, transcript string) (bool, error) {
	tl, err := f.Load(leadID)
	if err != nil {
		return false, err
	}
	for i := range tl {
		if tl[i].Type == models.EventCall && tl[i].ID == callID {
			tl[i].Transcript = transcript
			return true, f.Save(leadID, tl)
		}
	}
	return false, nil
}

type fakeLocker struct {
	mu     sync.Mutex
	locked map[string]int
}

func (f *fakeLocker) Lock(leadID string) (func() error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locked == nil {
		f.locked = make(map[string]int)
	}
	f.locked[leadID]++
	return func() error { return nil }, nil
}

type fakeMetrics struct {
	mu       sync.Mutex
	statuses []models.ConsolidationStatus
	failed   []models.Channel
}

func (f *fakeMetrics) ObserveConsolidation(status models.ConsolidationStatus, _ time.Duration, _ models.TimelineCounts) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
}

func (f *fakeMetrics) ChannelFetchFailed(ch models.Channel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, ch)
}

type fakeEventLogger struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeEventLogger) LogEvent(eventType string, _ map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
	return nil
}

type failingExtractor struct{}

func (failingExtractor) Extract(context.Context, string, string, *models.Event) (map[string]any, error) {
	return nil, errors.New("model unavailable")
}

type harness struct {
	provider  *fakeProvider
	timelines *fakeTimelineStore
	states    *fakeStateStore
	metrics   *fakeMetrics
	events    *fakeEventLogger
	engine    Consolidator
}

func newHarness(t *testing.T, extractor Extractor) *harness {
	t.Helper()
	h := &harness{
		provider: &fakeProvider{
			payloads: map[models.Channel]any{},
			errs:     map[models.Channel]error{},
			panics:   map[models.Channel]bool{},
			block:    map[models.Channel]bool{},
		},
		timelines: newFakeTimelineStore(),
		states:    newFakeStateStore(),
		metrics:   &fakeMetrics{},
		events:    &fakeEventLogger{},
	}
	cfg := DefaultConfig()
	cfg.FetchTimeoutSeconds = 1
	h.engine = NewConsolidator(ConsolidatorDeps{
		Provider:  h.provider,
		Timelines: h.timelines,
		States:    h.states,
		Locker:    &fakeLocker{},
		Extractor: extractor,
		Events:    h.events,
		Metrics:   h.metrics,
		Config:    cfg,
		Now:       fixedClock,
	})
	return h
}

var lead = models.LeadRef{Mobile: "917000000001"}

func sampleMessages() []any {
	return []any{
		map[string]any{"content": "hi", "timestamp": "2024-01-01T10:00:00"},
		map[string]any{"content": "there", "timestamp": "2024-01-01T10:00:05"},
	}
}

func sampleCalls() []any {
	return []any{map[string]any{"id": "c1", "content": "ring", "timestamp": "2024-01-01T09:59:00"}}
}

func jsonOf(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}

func TestConsolidate_ProcessesNewData(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.set(models.ChannelMessage, sampleMessages())
	h.provider.set(models.ChannelCall, sampleCalls())

	res, err := h.engine.Consolidate(context.Background(), lead, false)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if res.Status != models.StatusProcessed {
		t.Fatalf("Status = %q, want processed", res.Status)
	}
	if res.RunID == "" || res.LeadID != "917000000001" {
		t.Errorf("RunID/LeadID = %q/%q", res.RunID, res.LeadID)
	}
	if len(res.Timeline) != 2 || res.Timeline[0].Type != models.EventCall || res.Timeline[1].Count != 2 {
		t.Errorf("Timeline = %+v", res.Timeline)
	}
	if res.Projection == nil || res.Projection.Counts.Calls != 1 {
		t.Errorf("Projection = %+v", res.Projection)
	}
	if res.Summary["events"] != 2 {
		t.Errorf("Summary = %v", res.Summary)
	}

	if _, err := h.timelines.Load(lead.Key()); err != nil {
		t.Errorf("timeline not persisted: %v", err)
	}
	state, _ := h.states.Load(lead.Key())
	if state.LastProcessed["call"] != PayloadMarker(sampleCalls()) {
		t.Errorf("call marker = %q", state.LastProcessed["call"])
	}
	if len(h.metrics.statuses) != 1 || h.metrics.statuses[0] != models.StatusProcessed {
		t.Errorf("metrics statuses = %v", h.metrics.statuses)
	}
	if h.provider.calls != 4 {
		t.Errorf("provider calls = %d, want one per channel", h.provider.calls)
	}
}

func TestConsolidate_UnchangedInputReturnsCachedSummary(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.set(models.ChannelMessage, sampleMessages())
	h.provider.set(models.ChannelCall, sampleCalls())

	first, err := h.engine.Consolidate(context.Background(), lead, false)
	if err != nil {
		t.Fatalf("first Consolidate: %v", err)
	}
	second, err := h.engine.Consolidate(context.Background(), lead, false)
	if err != nil {
		t.Fatalf("second Consolidate: %v", err)
	}

	if second.Status != models.StatusCached {
		t.Fatalf("Status = %q, want cached", second.Status)
	}
	if second.Message != MessageCached {
		t.Errorf("Message = %q", second.Message)
	}
	if jsonOf(t, second.Summary) != jsonOf(t, first.Summary) {
		t.Errorf("Summary changed:\n%s\n%s", jsonOf(t, first.Summary), jsonOf(t, second.Summary))
	}
	if len(second.Timeline) != 2 {
		t.Errorf("cached run timeline = %d events, want persisted 2", len(second.Timeline))
	}
	if h.states.saves != 1 {
		t.Errorf("state saves = %d, want 1", h.states.saves)
	}
}

func TestConsolidate_AllEmptyWithPriorSummary(t *testing.T) {
	h := newHarness(t, nil)
	prior := map[string]any{"status": "warm", "budget": "900"}
	_ = h.states.Save(lead.Key(), &models.LeadProcessingState{
		Summary:       prior,
		LastProcessed: map[string]string{"call": "x"},
	})

	res, err := h.engine.Consolidate(context.Background(), lead, false)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if res.Message != "No new data. Returning last summary." {
		t.Errorf("Message = %q", res.Message)
	}
	if jsonOf(t, res.Summary) != jsonOf(t, prior) {
		t.Errorf("Summary = %v, want %v", res.Summary, prior)
	}
	if h.states.saves != 1 {
		t.Error("cached run rewrote the state")
	}
}

func TestConsolidate_NoDataEver(t *testing.T) {
	h := newHarness(t, nil)
	res, err := h.engine.Consolidate(context.Background(), lead, false)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if res.Status != models.StatusNoData || res.Message != MessageNoData {
		t.Errorf("Status/Message = %q/%q", res.Status, res.Message)
	}
	if res.Timeline == nil || len(res.Timeline) != 0 {
		t.Errorf("Timeline = %v, want empty", res.Timeline)
	}
}

func TestConsolidate_ForceReprocesses(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.set(models.ChannelCall, sampleCalls())
	if _, err := h.engine.Consolidate(context.Background(), lead, false); err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	res, err := h.engine.Consolidate(context.Background(), lead, true)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if res.Status != models.StatusProcessed {
		t.Errorf("Status = %q, want processed", res.Status)
	}
}

func TestConsolidate_ChannelFailuresDegrade(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.set(models.ChannelMessage, sampleMessages())
	h.provider.errs[models.ChannelEmail] = errors.New("connection refused")
	h.provider.panics[models.ChannelCall] = true
	h.provider.block[models.ChannelSubjectRecord] = true

	res, err := h.engine.Consolidate(context.Background(), lead, false)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if res.Status != models.StatusProcessed {
		t.Fatalf("Status = %q, want processed", res.Status)
	}
	if len(res.Timeline) != 1 || res.Timeline[0].Type != models.EventMessagePack {
		t.Errorf("Timeline = %+v, want the message pack only", res.Timeline)
	}
	for _, ch := range []models.Channel{models.ChannelEmail, models.ChannelCall, models.ChannelSubjectRecord} {
		if res.ChannelErrors[ch] == "" {
			t.Errorf("ChannelErrors[%s] missing", ch)
		}
	}
	if len(h.metrics.failed) != 3 {
		t.Errorf("failed metrics = %v, want 3 channels", h.metrics.failed)
	}
}

func TestConsolidate_ExtractionFailureKeepsPriorSummary(t *testing.T) {
	h := newHarness(t, failingExtractor{})
	prior := map[string]any{"status": "warm"}
	_ = h.states.Save(lead.Key(), &models.LeadProcessingState{Summary: prior})
	h.provider.set(models.ChannelCall, sampleCalls())

	res, err := h.engine.Consolidate(context.Background(), lead, false)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if res.Message != MessageExtractionFailed {
		t.Errorf("Message = %q", res.Message)
	}
	if res.Summary["status"] != "warm" {
		t.Errorf("Summary = %v, want prior", res.Summary)
	}
	if res.Projection == nil || res.Projection.Text == "" {
		t.Error("text projection missing after extraction failure")
	}
	state, _ := h.states.Load(lead.Key())
	if len(state.LastProcessed) != 0 {
		t.Errorf("markers advanced despite failed extraction: %v", state.LastProcessed)
	}
}

func TestConsolidate_StorageFailurePropagates(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.set(models.ChannelCall, sampleCalls())
	h.timelines.saveErr = errors.New("read-only file system")

	if _, err := h.engine.Consolidate(context.Background(), lead, false); err == nil {
		t.Fatal("expected storage error")
	}
	assertRunFailed(t, h)
}

type failingLocker struct{}

func (failingLocker) Lock(string) (func() error, error) {
	return nil, errors.New("lock file busy")
}

func TestConsolidate_LockFailureEndsRun(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.set(models.ChannelCall, sampleCalls())
	h.engine = NewConsolidator(ConsolidatorDeps{
		Provider:  h.provider,
		Timelines: h.timelines,
		States:    h.states,
		Locker:    failingLocker{},
		Events:    h.events,
		Metrics:   h.metrics,
		Now:       fixedClock,
	})

	_, err := h.engine.Consolidate(context.Background(), lead, false)
	if err == nil || !strings.Contains(err.Error(), "lock file busy") {
		t.Fatalf("err = %v, want lock error", err)
	}
	assertRunFailed(t, h)
}

// assertRunFailed checks that a run which returned an error was closed with
// a failed event and a failed metric, and never reported as finished.
func assertRunFailed(t *testing.T, h *harness) {
	t.Helper()
	h.events.mu.Lock()
	events := append([]string(nil), h.events.events...)
	h.events.mu.Unlock()

	if len(events) < 2 || events[0] != EventConsolidationStarted || events[len(events)-1] != EventConsolidationFailed {
		t.Errorf("events = %v, want started ... failed", events)
	}
	for _, e := range events {
		if e == EventConsolidationCompleted || e == EventConsolidationCached {
			t.Errorf("failed run logged %s", e)
		}
	}

	h.metrics.mu.Lock()
	defer h.metrics.mu.Unlock()
	if len(h.metrics.statuses) != 1 || h.metrics.statuses[0] != models.StatusFailed {
		t.Errorf("metric statuses = %v, want [failed]", h.metrics.statuses)
	}
}

func TestConsolidate_InvalidLead(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.engine.Consolidate(context.Background(), models.LeadRef{}, false)
	if !errors.Is(err, ErrInvalidLeadID) {
		t.Fatalf("err = %v, want ErrInvalidLeadID", err)
	}
}

func TestConsolidate_TranscriptsSurviveRebuild(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.set(models.ChannelCall, sampleCalls())
	if _, err := h.engine.Consolidate(context.Background(), lead, false); err != nil {
		t.Fatalf("Consolidate: %v", err)
	}

	found, err := h.engine.AttachTranscript(lead.Key(), "c1", "hello from the call")
	if err != nil || !found {
		t.Fatalf("AttachTranscript = %v, %v", found, err)
	}

	h.provider.set(models.ChannelMessage, sampleMessages())
	res, err := h.engine.Consolidate(context.Background(), lead, false)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if res.Timeline[0].Transcript != "hello from the call" {
		t.Errorf("transcript lost on rebuild: %+v", res.Timeline[0])
	}
}

func TestAttachTranscript_MissIsNoOp(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.set(models.ChannelCall, sampleCalls())
	if _, err := h.engine.Consolidate(context.Background(), lead, false); err != nil {
		t.Fatalf("Consolidate: %v", err)
	}

	found, err := h.engine.AttachTranscript(lead.Key(), "nope", "text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("found = true for unknown call id")
	}
	for _, e := range h.events.events {
		if e == EventTranscriptAttached {
			t.Error("miss logged as attached")
		}
	}
}

type stickyLocker struct{}

func (stickyLocker) Lock(string) (func() error, error) {
	return func() error { return errors.New("unlock: bad file descriptor") }, nil
}

func TestAttachTranscript_LogsUnlockFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.set(models.ChannelCall, sampleCalls())
	if _, err := h.engine.Consolidate(context.Background(), lead, false); err != nil {
		t.Fatalf("Consolidate: %v", err)
	}

	var buf bytes.Buffer
	engine := NewConsolidator(ConsolidatorDeps{
		Provider:  h.provider,
		Timelines: h.timelines,
		States:    h.states,
		Locker:    stickyLocker{},
		Logger:    slog.New(slog.NewTextHandler(&buf, nil)),
		Now:       fixedClock,
	})

	found, err := engine.AttachTranscript(lead.Key(), "c1", "hello")
	if err != nil || !found {
		t.Fatalf("AttachTranscript = %v, %v", found, err)
	}
	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "releasing lead lock") || !strings.Contains(out, "bad file descriptor") {
		t.Errorf("log output = %q", out)
	}
}
