package models

// StorageStats describes the persisted lead data under the data directory.
type StorageStats struct {
	LeadDirectories int     `json:"lead_directories" yaml:"lead_directories"`
	TimelineFiles   int     `json:"timeline_files" yaml:"timeline_files"`
	SnapshotFiles   int     `json:"snapshot_files" yaml:"snapshot_files"`
	StateFiles      int     `json:"state_files" yaml:"state_files"`
	TotalSizeMB     float64 `json:"total_size_mb" yaml:"total_size_mb"`
	OldestFileDays  int     `json:"oldest_file_days" yaml:"oldest_file_days"`
	NewestFileDays  int     `json:"newest_file_days" yaml:"newest_file_days"`
}

// TotalItems is the item count the cleanup threshold is compared against.
func (s StorageStats) TotalItems() int {
	return s.LeadDirectories + s.TimelineFiles + s.SnapshotFiles + s.StateFiles
}

// CleanupStats reports what a retention pass removed.
type CleanupStats struct {
	LeadDirsDeleted  int     `json:"lead_dirs_deleted" yaml:"lead_dirs_deleted"`
	SnapshotsDeleted int     `json:"snapshots_deleted" yaml:"snapshots_deleted"`
	SpaceFreedMB     float64 `json:"space_freed_mb" yaml:"space_freed_mb"`
}
