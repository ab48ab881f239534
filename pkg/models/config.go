package models

// SourceConfig selects and configures the raw-record provider.
type SourceConfig struct {
	Type     string `yaml:"type" mapstructure:"type"`         // "file" or "sql"
	Dir      string `yaml:"dir" mapstructure:"dir"`           // file provider root
	Database string `yaml:"database" mapstructure:"database"` // "sqlite3" or "postgres"
	DSN      string `yaml:"dsn,omitempty" mapstructure:"dsn"`
	Host     string `yaml:"host,omitempty" mapstructure:"host"`
	Port     string `yaml:"port,omitempty" mapstructure:"port"`
	User     string `yaml:"user,omitempty" mapstructure:"user"`
	Name     string `yaml:"name,omitempty" mapstructure:"name"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`

	// Queries overrides the built-in SQL per channel name. Every "?"
	// placeholder is bound to the lead's contact.
	Queries map[string]string `yaml:"queries,omitempty" mapstructure:"queries"`
}

// FieldMapping overrides the record keys an adapter tries, in order.
// Empty slices fall back to the adapter's built-in keys.
type FieldMapping struct {
	Timestamp []string `yaml:"timestamp,omitempty" mapstructure:"timestamp"`
	Content   []string `yaml:"content,omitempty" mapstructure:"content"`
	ID        []string `yaml:"id,omitempty" mapstructure:"id"`
}

// RetentionConfig holds the cleanup policy for persisted lead data.
type RetentionConfig struct {
	MaxAgeDays           int     `yaml:"max_age_days" mapstructure:"max_age_days"`
	MaxFilesPerLead      int     `yaml:"max_files_per_lead" mapstructure:"max_files_per_lead"`
	CleanupItemThreshold int     `yaml:"cleanup_item_threshold" mapstructure:"cleanup_item_threshold"`
	CleanupSizeMB        float64 `yaml:"cleanup_size_mb" mapstructure:"cleanup_size_mb"`
	CleanupOldestDays    int     `yaml:"cleanup_oldest_days" mapstructure:"cleanup_oldest_days"`
}

// AlertConfig holds the thresholds the alert engine checks the event log
// against.
type AlertConfig struct {
	WindowHours        int `yaml:"window_hours" mapstructure:"window_hours"`
	MaxChannelFailures int `yaml:"max_channel_failures" mapstructure:"max_channel_failures"`
	SlowRunMs          int `yaml:"slow_run_ms" mapstructure:"slow_run_ms"`
	StalledRunMinutes  int `yaml:"stalled_run_minutes" mapstructure:"stalled_run_minutes"`
}

// ServerConfig configures the HTTP endpoint.
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // text or json
}

// Config is the engine configuration read from .leadline.yaml via Viper.
type Config struct {
	DataDir             string                   `yaml:"data_dir" mapstructure:"data_dir"`
	ForceRefresh        bool                     `yaml:"force_refresh" mapstructure:"force_refresh"`
	FetchTimeoutSeconds int                      `yaml:"fetch_timeout_seconds" mapstructure:"fetch_timeout_seconds"`
	Source              SourceConfig             `yaml:"source" mapstructure:"source"`
	FieldMappings       map[Channel]FieldMapping `yaml:"field_mappings,omitempty" mapstructure:"field_mappings"`
	Retention           RetentionConfig          `yaml:"retention" mapstructure:"retention"`
	Alerts              AlertConfig              `yaml:"alerts" mapstructure:"alerts"`
	Server              ServerConfig             `yaml:"server" mapstructure:"server"`
	Log                 LogConfig                `yaml:"log" mapstructure:"log"`
}
