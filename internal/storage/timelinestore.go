package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/valter-silva-au/leadline/pkg/models"
)

// ErrLeadNotFound is returned when no timeline has been persisted for a lead.
var ErrLeadNotFound = errors.New("lead not found")

const (
	timelineFileName = "timeline.json"
	stateFileName    = "summary_store.json"
	historyDirName   = "history"
)

// TimelineStore persists one canonical timeline per lead as an indented
// JSON array at <dataDir>/<lead>/timeline.json. The previous timeline is
// kept as a snapshot under <lead>/history/ each time it is replaced.
// Callers serialize writers per lead with LeadLocker.
type TimelineStore struct {
	dataDir string
	now     func() time.Time
}

// NewTimelineStore creates a TimelineStore rooted at dataDir.
func NewTimelineStore(dataDir string) *TimelineStore {
	return &TimelineStore{dataDir: dataDir, now: time.Now}
}

func (s *TimelineStore) leadDir(leadID string) string {
	return filepath.Join(s.dataDir, leadID)
}

func (s *TimelineStore) timelinePath(leadID string) string {
	return filepath.Join(s.leadDir(leadID), timelineFileName)
}

// Save replaces the lead's timeline atomically.
func (s *TimelineStore) Save(leadID string, timeline []models.Event) error {
	if timeline == nil {
		timeline = []models.Event{}
	}
	data, err := json.MarshalIndent(timeline, "", "  ")
	if err != nil {
		return fmt.Errorf("saving timeline: marshaling JSON: %w", err)
	}

	path := s.timelinePath(leadID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("saving timeline: creating directory: %w", err)
	}
	if err := s.snapshot(leadID); err != nil {
		return err
	}
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("saving timeline: %w", err)
	}
	return nil
}

// snapshot copies the current timeline, if any, into the history directory.
func (s *TimelineStore) snapshot(leadID string) error {
	current, err := os.ReadFile(s.timelinePath(leadID))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("saving timeline: reading previous timeline: %w", err)
	}

	dir := filepath.Join(s.leadDir(leadID), historyDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("saving timeline: creating history directory: %w", err)
	}
	name := "timeline_" + s.now().UTC().Format("20060102T150405.000000000") + ".json"
	if err := os.WriteFile(filepath.Join(dir, name), current, 0o644); err != nil {
		return fmt.Errorf("saving timeline: writing snapshot: %w", err)
	}
	return nil
}

// Load reads the lead's timeline. It returns ErrLeadNotFound when none has
// been saved.
func (s *TimelineStore) Load(leadID string) ([]models.Event, error) {
	data, err := os.ReadFile(s.timelinePath(leadID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("loading timeline for %s: %w", leadID, ErrLeadNotFound)
		}
		return nil, fmt.Errorf("loading timeline for %s: %w", leadID, err)
	}

	var timeline []models.Event
	if err := json.Unmarshal(data, &timeline); err != nil {
		return nil, fmt.Errorf("loading timeline for %s: parsing JSON: %w", leadID, err)
	}
	if timeline == nil {
		timeline = []models.Event{}
	}
	return timeline, nil
}

// AttachTranscript sets the transcript of the first call event whose id,
// compared as a string, equals callID. Only that one field of that one event
// changes. A miss leaves the file untouched and reports false.
func (s *TimelineStore) AttachTranscript(leadID, callID, transcript string) (bool, error) {
	timeline, err := s.Load(leadID)
	if err != nil {
		return false, err
	}

	for i := range timeline {
		ev := &timeline[i]
		if ev.Type != models.EventCall || ev.ID != callID {
			continue
		}
		ev.Transcript = transcript

		data, err := json.MarshalIndent(timeline, "", "  ")
		if err != nil {
			return false, fmt.Errorf("attaching transcript: marshaling JSON: %w", err)
		}
		if err := writeFileAtomic(s.timelinePath(leadID), data); err != nil {
			return false, fmt.Errorf("attaching transcript: %w", err)
		}
		return true, nil
	}
	return false, nil
}

// writeFileAtomic writes data to a temp file next to path and renames it
// into place, so readers see either the old or the new content.
func writeFileAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
