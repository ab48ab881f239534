package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/valter-silva-au/leadline/pkg/models"
)

// StateStore persists LeadProcessingState at
// <dataDir>/<lead>/summary_store.json.
type StateStore struct {
	dataDir string
}

// NewStateStore creates a StateStore rooted at dataDir.
func NewStateStore(dataDir string) *StateStore {
	return &StateStore{dataDir: dataDir}
}

func (s *StateStore) statePath(leadID string) string {
	return filepath.Join(s.dataDir, leadID, stateFileName)
}

// Load returns the lead's state, or an empty state when none exists.
func (s *StateStore) Load(leadID string) (*models.LeadProcessingState, error) {
	state := &models.LeadProcessingState{
		Summary:       map[string]any{},
		LastProcessed: map[string]string{},
	}

	data, err := os.ReadFile(s.statePath(leadID))
	if err != nil {
		if os.IsNotExist(err) {
			return state, nil
		}
		return nil, fmt.Errorf("loading state for %s: %w", leadID, err)
	}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("loading state for %s: parsing JSON: %w", leadID, err)
	}
	if state.Summary == nil {
		state.Summary = map[string]any{}
	}
	if state.LastProcessed == nil {
		state.LastProcessed = map[string]string{}
	}
	return state, nil
}

// Save replaces the lead's state in one atomic rename, so summary and
// markers are always observed together.
func (s *StateStore) Save(leadID string, state *models.LeadProcessingState) error {
	if state == nil {
		return fmt.Errorf("saving state for %s: state is nil", leadID)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("saving state for %s: marshaling JSON: %w", leadID, err)
	}

	path := s.statePath(leadID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("saving state for %s: creating directory: %w", leadID, err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("saving state for %s: %w", leadID, err)
	}
	return nil
}
