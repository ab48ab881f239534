package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"github.com/valter-silva-au/leadline/pkg/models"
)

// Event types written to the event log.
const (
	EventConsolidationStarted   = "consolidation.started"
	EventConsolidationCompleted = "consolidation.completed"
	EventConsolidationCached    = "consolidation.cached"
	EventConsolidationFailed    = "consolidation.failed"
	EventChannelFailed          = "channel.failed"
	EventTranscriptAttached     = "transcript.attached"
	EventStorageCleanup         = "storage.cleanup"
)

// MessageExtractionFailed is returned when extraction fails and the prior
// summary is kept.
const MessageExtractionFailed = "Extraction failed. Returning last summary."

// Consolidator runs the full consolidation pipeline for one lead.
type Consolidator interface {
	// Consolidate fetches every channel, builds the canonical timeline and
	// runs extraction when there is new data. force skips the no-new-data
	// short circuit.
	Consolidate(ctx context.Context, lead models.LeadRef, force bool) (*models.ConsolidationResult, error)

	// Timeline returns the persisted timeline of a lead.
	Timeline(leadID string) ([]models.Event, error)

	// AttachTranscript sets the transcript of a persisted call event. A miss
	// is logged and reported as false with a nil error.
	AttachTranscript(leadID, callID, transcript string) (bool, error)
}

// ConsolidatorDeps are the collaborators of a Consolidator. Provider,
// Timelines, States and Locker are required.
type ConsolidatorDeps struct {
	Provider  RawRecordProvider
	Registry  ChannelRegistry
	Timelines TimelineStore
	States    StateStore
	Locker    LeadLocker
	Extractor Extractor
	Events    EventLogger
	Metrics   MetricsRecorder
	Logger    *slog.Logger
	Config    *models.Config
	// Now is the engine clock. It defaults to time.Now.
	Now func() time.Time
}

type consolidator struct {
	provider     RawRecordProvider
	registry     ChannelRegistry
	timelines    TimelineStore
	states       StateStore
	tracker      StateTracker
	locker       LeadLocker
	extractor    Extractor
	events       EventLogger
	metrics      MetricsRecorder
	logger       *slog.Logger
	now          func() time.Time
	fetchTimeout time.Duration
	forceRefresh bool
}

// NewConsolidator creates a Consolidator from deps.
func NewConsolidator(deps ConsolidatorDeps) Consolidator {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := loggerOrDefault(deps.Logger)
	cfg := deps.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	registry := deps.Registry
	if registry == nil {
		registry = DefaultRegistry(cfg, now, logger)
	}
	extractor := deps.Extractor
	if extractor == nil {
		extractor = NewManifestExtractor()
	}

	return &consolidator{
		provider:     deps.Provider,
		registry:     registry,
		timelines:    deps.Timelines,
		states:       deps.States,
		tracker:      NewStateTracker(deps.States, now),
		locker:       deps.Locker,
		extractor:    extractor,
		events:       deps.Events,
		metrics:      deps.Metrics,
		logger:       logger,
		now:          now,
		fetchTimeout: time.Duration(cfg.FetchTimeoutSeconds) * time.Second,
		forceRefresh: cfg.ForceRefresh,
	}
}

func (c *consolidator) Consolidate(ctx context.Context, lead models.LeadRef, force bool) (*models.ConsolidationResult, error) {
	leadID := lead.Key()
	if err := ValidateLeadID(leadID); err != nil {
		return nil, err
	}

	start := time.Now()
	runID := uuid.New().String()
	logger := c.logger.With("lead", leadID, "run_id", runID)
	c.logEvent(EventConsolidationStarted, map[string]any{"lead": leadID, "run_id": runID})

	result, err := c.run(ctx, lead, leadID, runID, force, start, logger)
	if err != nil {
		c.fail(leadID, runID, start, err, logger)
		return nil, err
	}
	return result, nil
}

// run is the body of Consolidate once the run has been announced. Every
// error it returns ends the run as failed.
func (c *consolidator) run(ctx context.Context, lead models.LeadRef, leadID, runID string, force bool, start time.Time, logger *slog.Logger) (*models.ConsolidationResult, error) {
	snapshot, channelErrs := c.fetchAll(ctx, lead, logger)

	unlock, err := c.locker.Lock(leadID)
	if err != nil {
		return nil, fmt.Errorf("locking lead %s: %w", leadID, err)
	}
	defer func() {
		if err := unlock(); err != nil {
			logger.Warn("releasing lead lock", "error", err)
		}
	}()

	prior, err := c.states.Load(leadID)
	if err != nil {
		return nil, fmt.Errorf("loading state for lead %s: %w", leadID, err)
	}

	result := &models.ConsolidationResult{
		RunID:  runID,
		LeadID: leadID,
	}
	if len(channelErrs) > 0 {
		result.ChannelErrors = channelErrs
	}

	decision := c.tracker.Decide(snapshot, prior, force || c.forceRefresh)
	if !decision.Process() {
		result.Status = decision.Status
		result.Message = decision.Message
		result.Summary = decision.Summary
		result.Timeline = []models.Event{}
		if decision.Status == models.StatusCached {
			if tl, err := c.timelines.Load(leadID); err == nil {
				result.Timeline = tl
			} else {
				logger.Debug("no persisted timeline for cached run", "error", err)
			}
		}
		p := Project(result.Timeline)
		result.Projection = &p
		c.finish(result, start, logger)
		return result, nil
	}

	var events []models.Event
	for _, ch := range c.registry.Channels() {
		adapter, err := c.registry.Adapter(ch)
		if err != nil {
			continue
		}
		events = append(events, adapter.Adapt(snapshot[ch])...)
	}
	timeline := Merge(events)
	c.carryTranscripts(leadID, timeline, logger)

	if err := c.timelines.Save(leadID, timeline); err != nil {
		return nil, fmt.Errorf("saving timeline for lead %s: %w", leadID, err)
	}

	projection := Project(timeline)
	result.Status = models.StatusProcessed
	result.Timeline = timeline
	result.Projection = &projection

	summary, err := c.extractor.Extract(ctx, leadID, projection.Text, subjectEvent(timeline))
	if err != nil {
		logger.Error("extraction failed, keeping last summary", "error", err)
		result.Message = MessageExtractionFailed
		result.Summary = map[string]any{}
		if prior.HasSummary() {
			result.Summary = prior.Summary
		}
		c.finish(result, start, logger)
		return result, nil
	}

	if err := c.tracker.Commit(leadID, summary, c.tracker.Markers(snapshot, prior)); err != nil {
		return nil, err
	}
	result.Summary = summary

	c.finish(result, start, logger)
	return result, nil
}

// fetchAll runs one provider call per registered channel on a pool sized to
// the channel count. A failing channel degrades to no records.
func (c *consolidator) fetchAll(ctx context.Context, lead models.LeadRef, logger *slog.Logger) (map[models.Channel]any, map[models.Channel]string) {
	channels := c.registry.Channels()
	snapshot := make(map[models.Channel]any, len(channels))
	failures := make(map[models.Channel]string)
	if len(channels) == 0 {
		return snapshot, failures
	}

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(len(channels))
	for _, ch := range channels {
		p.Go(func() {
			payload, err := c.fetchChannel(ctx, lead, ch)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[ch] = err.Error()
				logger.Warn("channel fetch failed", "channel", string(ch), "error", err)
				c.logEvent(EventChannelFailed, map[string]any{
					"lead":    lead.Key(),
					"channel": string(ch),
					"error":   err.Error(),
				})
				if c.metrics != nil {
					c.metrics.ChannelFetchFailed(ch)
				}
				return
			}
			snapshot[ch] = payload
		})
	}
	p.Wait()

	return snapshot, failures
}

type fetchResult struct {
	payload any
	err     error
}

// fetchChannel calls the provider for one channel, bounding it by the fetch
// timeout and turning a provider panic into an error.
func (c *consolidator) fetchChannel(ctx context.Context, lead models.LeadRef, ch models.Channel) (any, error) {
	if c.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.fetchTimeout)
		defer cancel()
	}

	done := make(chan fetchResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fetchResult{err: fmt.Errorf("provider panic: %v", r)}
			}
		}()
		payload, err := c.provider.Fetch(ctx, lead, ch)
		done <- fetchResult{payload: payload, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("fetching %s: %w", ch, res.err)
		}
		return res.payload, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("fetching %s: %w", ch, ctx.Err())
	}
}

// carryTranscripts copies transcripts attached to the previous timeline onto
// the rebuilt call events with the same id.
func (c *consolidator) carryTranscripts(leadID string, timeline []models.Event, logger *slog.Logger) {
	prev, err := c.timelines.Load(leadID)
	if err != nil {
		return
	}
	transcripts := make(map[string]string)
	for _, ev := range prev {
		if ev.Type == models.EventCall && ev.ID != "" && ev.Transcript != "" {
			transcripts[ev.ID] = ev.Transcript
		}
	}
	if len(transcripts) == 0 {
		return
	}
	carried := 0
	for i := range timeline {
		ev := &timeline[i]
		if ev.Type != models.EventCall || ev.ID == "" {
			continue
		}
		if t, ok := transcripts[ev.ID]; ok {
			ev.Transcript = t
			carried++
		}
	}
	logger.Debug("carried transcripts forward", "count", carried)
}

// fail closes a run that returned an error.
func (c *consolidator) fail(leadID, runID string, start time.Time, err error, logger *slog.Logger) {
	elapsed := time.Since(start)
	logger.Error("consolidation failed", "error", err, "elapsed", elapsed)
	if c.metrics != nil {
		c.metrics.ObserveConsolidation(models.StatusFailed, elapsed, models.TimelineCounts{})
	}
	c.logEvent(EventConsolidationFailed, map[string]any{
		"lead":        leadID,
		"run_id":      runID,
		"status":      string(models.StatusFailed),
		"error":       err.Error(),
		"duration_ms": elapsed.Milliseconds(),
	})
}

// finish logs the per-type summary and records metrics for a run.
func (c *consolidator) finish(result *models.ConsolidationResult, start time.Time, logger *slog.Logger) {
	elapsed := time.Since(start)

	byType := make(map[string]int)
	for _, ev := range result.Timeline {
		byType[string(ev.Type)]++
	}
	for _, t := range []models.EventType{
		models.EventMessagePack, models.EventCall, models.EventEmail, models.EventSubjectRecord,
	} {
		if n := byType[string(t)]; n > 0 {
			logger.Info("timeline events", "type", string(t), "events", n)
		}
	}
	logger.Info("consolidation finished",
		"status", string(result.Status),
		"events", len(result.Timeline),
		"channel_errors", len(result.ChannelErrors),
		"elapsed", elapsed)

	var counts models.TimelineCounts
	if result.Projection != nil {
		counts = result.Projection.Counts
	}
	if c.metrics != nil {
		c.metrics.ObserveConsolidation(result.Status, elapsed, counts)
	}

	eventType := EventConsolidationCompleted
	if result.Status != models.StatusProcessed {
		eventType = EventConsolidationCached
	}
	c.logEvent(eventType, map[string]any{
		"lead":        result.LeadID,
		"run_id":      result.RunID,
		"status":      string(result.Status),
		"events":      len(result.Timeline),
		"duration_ms": elapsed.Milliseconds(),
	})
}

func (c *consolidator) Timeline(leadID string) ([]models.Event, error) {
	if err := ValidateLeadID(leadID); err != nil {
		return nil, err
	}
	return c.timelines.Load(leadID)
}

func (c *consolidator) AttachTranscript(leadID, callID, transcript string) (bool, error) {
	if err := ValidateLeadID(leadID); err != nil {
		return false, err
	}

	unlock, err := c.locker.Lock(leadID)
	if err != nil {
		return false, fmt.Errorf("locking lead %s: %w", leadID, err)
	}
	defer func() {
		if err := unlock(); err != nil {
			c.logger.Warn("releasing lead lock", "lead", leadID, "error", err)
		}
	}()

	found, err := c.timelines.AttachTranscript(leadID, callID, transcript)
	if err != nil {
		return false, fmt.Errorf("attaching transcript to lead %s: %w", leadID, err)
	}
	if !found {
		c.logger.Info("no call event matches transcript", "lead", leadID, "call_id", callID)
		return false, nil
	}

	c.logEvent(EventTranscriptAttached, map[string]any{"lead": leadID, "call_id": callID})
	return true, nil
}

// logEvent emits an event if an EventLogger is configured.
func (c *consolidator) logEvent(eventType string, data map[string]any) {
	if c.events != nil {
		_ = c.events.LogEvent(eventType, data)
	}
}

// subjectEvent returns the first subject record event of timeline.
func subjectEvent(timeline []models.Event) *models.Event {
	for i := range timeline {
		if timeline[i].Type == models.EventSubjectRecord {
			ev := timeline[i]
			return &ev
		}
	}
	return nil
}
