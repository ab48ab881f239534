package core

import (
	"context"
	"time"

	"github.com/valter-silva-au/leadline/pkg/models"
)

// RawRecordProvider fetches one channel's raw records for a lead. The
// returned value is a list of records, a single record, a bare string or nil.
type RawRecordProvider interface {
	Fetch(ctx context.Context, lead models.LeadRef, channel models.Channel) (any, error)
}

// TimelineStore persists the canonical timeline of each lead.
// This interface is defined locally in core to avoid importing storage.
type TimelineStore interface {
	Save(leadID string, timeline []models.Event) error
	Load(leadID string) ([]models.Event, error)
	// AttachTranscript sets the transcript of the first call event whose id
	// equals callID. It reports false when no event matches.
	AttachTranscript(leadID, callID, transcript string) (bool, error)
}

// StateStore persists LeadProcessingState. Load returns an empty state when
// none has been saved. Save must replace the state atomically.
type StateStore interface {
	Load(leadID string) (*models.LeadProcessingState, error)
	Save(leadID string, state *models.LeadProcessingState) error
}

// LeadLocker serializes writers of one lead's persisted files.
type LeadLocker interface {
	Lock(leadID string) (unlock func() error, err error)
}

// MetricsRecorder receives per-run measurements.
type MetricsRecorder interface {
	ObserveConsolidation(status models.ConsolidationStatus, elapsed time.Duration, counts models.TimelineCounts)
	ChannelFetchFailed(channel models.Channel)
}

// Extractor turns the flattened text projection into a structured result.
// subject is the lead's subject record event, nil when there is none.
type Extractor interface {
	Extract(ctx context.Context, leadID, text string, subject *models.Event) (map[string]any, error)
}
