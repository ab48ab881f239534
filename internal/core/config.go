// Package core contains the timeline consolidation engine: timestamp
// normalization, channel adapters, chronological merging and session packing,
// text projection, incremental state tracking and the orchestration that
// ties them together.
package core

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"github.com/valter-silva-au/leadline/pkg/models"
)

// ConfigFileName is the base name (without extension) of the engine config.
const ConfigFileName = ".leadline"

// ConfigurationManager loads and validates the engine configuration.
type ConfigurationManager interface {
	Load() (*models.Config, error)
	ValidateConfig(cfg *models.Config) error
}

// viperConfigManager implements ConfigurationManager using Viper for
// reading the YAML configuration file and LEADLINE_* environment overrides.
type viperConfigManager struct {
	basePath string
}

// NewConfigurationManager creates a ConfigurationManager that reads
// .leadline.yaml from basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultConfig returns a Config populated with the engine defaults.
func DefaultConfig() *models.Config {
	return &models.Config{
		DataDir:             "data",
		ForceRefresh:        false,
		FetchTimeoutSeconds: 30,
		Source: models.SourceConfig{
			Type:     "file",
			Dir:      "leads",
			Database: "sqlite3",
		},
		Retention: models.RetentionConfig{
			MaxAgeDays:           7,
			MaxFilesPerLead:      50,
			CleanupItemThreshold: 50,
			CleanupSizeMB:        100,
			CleanupOldestDays:    3,
		},
		Alerts: models.AlertConfig{
			WindowHours:        24,
			MaxChannelFailures: 5,
			SlowRunMs:          30000,
			StalledRunMinutes:  10,
		},
		Server: models.ServerConfig{Addr: ":8000"},
		Log:    models.LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads .leadline.yaml from the base path. A missing file yields the
// defaults, still subject to environment overrides.
func (cm *viperConfigManager) Load() (*models.Config, error) {
	def := DefaultConfig()

	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)

	v.SetEnvPrefix("LEADLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key needs a default so AutomaticEnv can see it during Unmarshal.
	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("force_refresh", def.ForceRefresh)
	v.SetDefault("fetch_timeout_seconds", def.FetchTimeoutSeconds)
	v.SetDefault("source.type", def.Source.Type)
	v.SetDefault("source.dir", def.Source.Dir)
	v.SetDefault("source.database", def.Source.Database)
	v.SetDefault("source.dsn", "")
	v.SetDefault("source.host", "")
	v.SetDefault("source.port", "")
	v.SetDefault("source.user", "")
	v.SetDefault("source.name", "")
	v.SetDefault("source.password", "")
	v.SetDefault("retention.max_age_days", def.Retention.MaxAgeDays)
	v.SetDefault("retention.max_files_per_lead", def.Retention.MaxFilesPerLead)
	v.SetDefault("retention.cleanup_item_threshold", def.Retention.CleanupItemThreshold)
	v.SetDefault("retention.cleanup_size_mb", def.Retention.CleanupSizeMB)
	v.SetDefault("retention.cleanup_oldest_days", def.Retention.CleanupOldestDays)
	v.SetDefault("alerts.window_hours", def.Alerts.WindowHours)
	v.SetDefault("alerts.max_channel_failures", def.Alerts.MaxChannelFailures)
	v.SetDefault("alerts.slow_run_ms", def.Alerts.SlowRunMs)
	v.SetDefault("alerts.stalled_run_minutes", def.Alerts.StalledRunMinutes)
	v.SetDefault("server.addr", def.Server.Addr)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading %s.yaml: %w", ConfigFileName, err)
		}
	}

	cfg := &models.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding %s.yaml: %w", ConfigFileName, err)
	}
	return cfg, nil
}

var (
	validSourceTypes = map[string]bool{"file": true, "sql": true}
	validDatabases   = map[string]bool{"sqlite3": true, "postgres": true}
	validLogLevels   = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats  = map[string]bool{"text": true, "json": true}
)

// ValidateConfig checks cfg for invalid values and reports every problem
// found in one error.
func (cm *viperConfigManager) ValidateConfig(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string

	if cfg.DataDir == "" {
		errs = append(errs, "data_dir must not be empty")
	}
	if cfg.FetchTimeoutSeconds < 0 {
		errs = append(errs, fmt.Sprintf("fetch_timeout_seconds must be non-negative, got %d", cfg.FetchTimeoutSeconds))
	}
	if !validSourceTypes[cfg.Source.Type] {
		errs = append(errs, fmt.Sprintf("source.type %q is invalid, must be one of: file, sql", cfg.Source.Type))
	}
	if cfg.Source.Type == "sql" && !validDatabases[cfg.Source.Database] {
		errs = append(errs, fmt.Sprintf("source.database %q is invalid, must be one of: sqlite3, postgres", cfg.Source.Database))
	}
	for ch := range cfg.FieldMappings {
		if !ch.Valid() {
			errs = append(errs, fmt.Sprintf("field_mappings key %q is not a known channel", ch))
		}
	}
	for name := range cfg.Source.Queries {
		if !models.Channel(name).Valid() {
			errs = append(errs, fmt.Sprintf("source.queries key %q is not a known channel", name))
		}
	}

	r := cfg.Retention
	if r.MaxAgeDays < 0 || r.MaxFilesPerLead < 0 || r.CleanupItemThreshold < 0 || r.CleanupOldestDays < 0 || r.CleanupSizeMB < 0 {
		errs = append(errs, "retention values must be non-negative")
	}
	a := cfg.Alerts
	if a.WindowHours < 0 || a.MaxChannelFailures < 0 || a.SlowRunMs < 0 || a.StalledRunMinutes < 0 {
		errs = append(errs, "alerts values must be non-negative")
	}
	if cfg.Log.Level != "" && !validLogLevels[strings.ToLower(cfg.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log.level %q is invalid, must be one of: debug, info, warn, error", cfg.Log.Level))
	}
	if cfg.Log.Format != "" && !validLogFormats[cfg.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format %q is invalid, must be one of: text, json", cfg.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
