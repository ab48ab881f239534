package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/valter-silva-au/leadline/pkg/models"
)

const bytesPerMB = 1024 * 1024

// RetentionManager applies the age and count policy to persisted lead data.
type RetentionManager struct {
	dataDir string
	policy  models.RetentionConfig
	now     func() time.Time
	logger  *slog.Logger
}

// NewRetentionManager creates a RetentionManager for dataDir.
func NewRetentionManager(dataDir string, policy models.RetentionConfig, logger *slog.Logger) *RetentionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionManager{dataDir: dataDir, policy: policy, now: time.Now, logger: logger}
}

// leadDirs lists the lead directories under the data directory.
func (m *RetentionManager) leadDirs() ([]string, error) {
	entries, err := os.ReadDir(m.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing data directory: %w", err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			dirs = append(dirs, filepath.Join(m.dataDir, e.Name()))
		}
	}
	return dirs, nil
}

// Stats walks the data directory and reports counts, size and file ages.
func (m *RetentionManager) Stats() (models.StorageStats, error) {
	var stats models.StorageStats

	dirs, err := m.leadDirs()
	if err != nil {
		return stats, err
	}
	stats.LeadDirectories = len(dirs)

	var total int64
	var oldest, newest time.Time
	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() || d.Name() == lockFileName {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			total += info.Size()
			mod := info.ModTime()
			if oldest.IsZero() || mod.Before(oldest) {
				oldest = mod
			}
			if mod.After(newest) {
				newest = mod
			}

			switch {
			case d.Name() == timelineFileName:
				stats.TimelineFiles++
			case d.Name() == stateFileName:
				stats.StateFiles++
			case filepath.Base(filepath.Dir(path)) == historyDirName:
				stats.SnapshotFiles++
			}
			return nil
		})
		if err != nil {
			return stats, fmt.Errorf("walking %s: %w", dir, err)
		}
	}

	stats.TotalSizeMB = float64(total) / bytesPerMB
	if !oldest.IsZero() {
		now := m.now()
		stats.OldestFileDays = int(now.Sub(oldest).Hours() / 24)
		stats.NewestFileDays = int(now.Sub(newest).Hours() / 24)
	}
	return stats, nil
}

// ShouldCleanup reports whether the stored data crosses any cleanup
// threshold: item count, total size or age of the oldest file.
func (m *RetentionManager) ShouldCleanup() (bool, error) {
	stats, err := m.Stats()
	if err != nil {
		return false, err
	}
	return stats.TotalItems() > m.policy.CleanupItemThreshold ||
		stats.TotalSizeMB > m.policy.CleanupSizeMB ||
		stats.OldestFileDays > m.policy.CleanupOldestDays, nil
}

// Cleanup deletes lead directories untouched for longer than the maximum
// age, then trims each remaining lead's timeline snapshots to the newest
// MaxFilesPerLead.
func (m *RetentionManager) Cleanup() (models.CleanupStats, error) {
	var stats models.CleanupStats

	dirs, err := m.leadDirs()
	if err != nil {
		return stats, err
	}

	cutoff := m.now().Add(-time.Duration(m.policy.MaxAgeDays) * 24 * time.Hour)
	var freed int64
	for _, dir := range dirs {
		latest, size := dirActivity(dir)
		if m.policy.MaxAgeDays > 0 && latest.Before(cutoff) {
			if err := os.RemoveAll(dir); err != nil {
				m.logger.Warn("removing expired lead directory", "dir", dir, "error", err)
				continue
			}
			stats.LeadDirsDeleted++
			freed += size
			m.logger.Info("deleted expired lead directory", "dir", dir)
			continue
		}

		n, bytes, err := m.trimSnapshots(dir)
		if err != nil {
			m.logger.Warn("trimming timeline snapshots", "dir", dir, "error", err)
		}
		stats.SnapshotsDeleted += n
		freed += bytes
	}

	stats.SpaceFreedMB = float64(freed) / bytesPerMB
	return stats, nil
}

func (m *RetentionManager) trimSnapshots(leadDir string) (deleted int, freed int64, err error) {
	if m.policy.MaxFilesPerLead <= 0 {
		return 0, 0, nil
	}
	histDir := filepath.Join(leadDir, historyDirName)
	entries, err := os.ReadDir(histDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) <= m.policy.MaxFilesPerLead {
		return 0, 0, nil
	}

	// Snapshot names embed a sortable UTC timestamp.
	sort.Strings(names)
	for _, name := range names[:len(names)-m.policy.MaxFilesPerLead] {
		path := filepath.Join(histDir, name)
		info, statErr := os.Stat(path)
		if err := os.Remove(path); err != nil {
			return deleted, freed, err
		}
		deleted++
		if statErr == nil {
			freed += info.Size()
		}
	}
	return deleted, freed, nil
}

// dirActivity returns the newest modification time and total size of the
// files under dir.
func dirActivity(dir string) (latest time.Time, size int64) {
	_ = filepath.WalkDir(dir, func(_ string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || d.Name() == lockFileName {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		size += info.Size()
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
		return nil
	})
	return latest, size
}
