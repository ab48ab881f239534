// Package internal provides the App struct that wires all components of the
// leadline system together and initializes the CLI layer.
package internal

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/valter-silva-au/leadline/internal/cli"
	"github.com/valter-silva-au/leadline/internal/core"
	"github.com/valter-silva-au/leadline/internal/integration"
	"github.com/valter-silva-au/leadline/internal/observability"
	"github.com/valter-silva-au/leadline/internal/storage"
	"github.com/valter-silva-au/leadline/pkg/models"
)

// EventLogFileName is the JSONL event log kept in the base path.
const EventLogFileName = ".leadline_events.jsonl"

// App holds all service dependencies for the leadline system.
type App struct {
	BasePath string
	DataDir  string

	// Configuration
	ConfigMgr core.ConfigurationManager
	Config    *models.Config
	Logger    *slog.Logger

	// Source of raw records
	Provider core.RawRecordProvider

	// Storage layer
	Timelines *storage.TimelineStore
	States    *storage.StateStore
	Locker    *storage.LeadLocker
	Retention *storage.RetentionManager

	// Core services
	Consolidator core.Consolidator

	// Observability
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Collectors  *observability.Collectors
}

// NewApp creates and wires all components of the leadline system. basePath
// is the directory holding .leadline.yaml; relative data and source paths in
// the configuration are resolved against it. Log output goes to logOut.
func NewApp(basePath string, logOut io.Writer) (*App, error) {
	app := &App{BasePath: basePath}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := app.ConfigMgr.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	app.Config = cfg
	app.Logger = NewLogger(cfg.Log, logOut)
	app.DataDir = resolvePath(basePath, cfg.DataDir)

	// --- Source of raw records ---
	switch cfg.Source.Type {
	case "sql":
		src := cfg.Source
		if src.Database == "sqlite3" && src.DSN == "" && src.Name != "" {
			src.Name = resolvePath(basePath, src.Name)
		}
		provider, err := integration.OpenSQLProvider(src)
		if err != nil {
			return nil, fmt.Errorf("opening sql source: %w", err)
		}
		app.Provider = provider
	default:
		app.Provider = integration.NewFileProvider(resolvePath(basePath, cfg.Source.Dir))
	}

	// --- Storage layer ---
	app.Timelines = storage.NewTimelineStore(app.DataDir)
	app.States = storage.NewStateStore(app.DataDir)
	app.Locker = storage.NewLeadLocker(app.DataDir)
	app.Retention = storage.NewRetentionManager(app.DataDir, cfg.Retention, app.Logger)

	// --- Observability ---
	app.Collectors = observability.NewCollectors()
	app.EventLog, err = observability.NewJSONLEventLog(filepath.Join(basePath, EventLogFileName))
	if err != nil {
		// Non-fatal: run without the event log.
		app.Logger.Warn("event log disabled", "error", err)
		app.EventLog = nil
	}
	var evtAdapter core.EventLogger
	if app.EventLog != nil {
		evtAdapter = &eventLogAdapter{log: app.EventLog}
		app.AlertEngine = observability.NewAlertEngine(app.EventLog, cfg.Alerts)
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
	}

	// --- Core services ---
	app.Consolidator = core.NewConsolidator(core.ConsolidatorDeps{
		Provider:  app.Provider,
		Timelines: app.Timelines,
		States:    app.States,
		Locker:    app.Locker,
		Events:    evtAdapter,
		Metrics:   app.Collectors,
		Logger:    app.Logger,
		Config:    cfg,
	})

	// --- Wire CLI package-level variables ---
	cli.BasePath = basePath
	cli.DataDir = app.DataDir
	cli.Config = cfg
	cli.Logger = app.Logger
	cli.Consolidator = app.Consolidator
	cli.States = app.States
	cli.Retention = app.Retention
	cli.Collectors = app.Collectors
	cli.EventLog = app.EventLog
	cli.AlertEngine = app.AlertEngine
	cli.MetricsCalc = app.MetricsCalc
	cli.Events = evtAdapter

	return app, nil
}

// Close releases resources held by the App: the event log file handle and,
// for SQL sources, the database connection. It is safe to call Close on an
// App whose EventLog is nil.
func (a *App) Close() error {
	var errs []string
	if a.EventLog != nil {
		if err := a.EventLog.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if closer, ok := a.Provider.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("closing app: %s", strings.Join(errs, "; "))
	}
	return nil
}

// NewLogger builds the slog logger described by cfg. Unknown levels fall
// back to info.
func NewLogger(cfg models.LogConfig, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ResolveBasePath determines the base path holding .leadline.yaml.
// It checks for the LEADLINE_HOME env var, then walks up from the current
// directory, then falls back to the current directory.
func ResolveBasePath() string {
	if home := os.Getenv("LEADLINE_HOME"); home != "" {
		return home
	}

	dir, err := os.Getwd()
	if err != nil {
		return "."
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, core.ConfigFileName+".yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	cwd, _ := os.Getwd()
	return cwd
}

func resolvePath(basePath, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(basePath, p)
}

// --- Adapters ---

// eventLogAdapter adapts observability.EventLog to core.EventLogger. Level
// and message are filled in by the log.
type eventLogAdapter struct {
	log observability.EventLog
}

func (a *eventLogAdapter) LogEvent(eventType string, data map[string]any) error {
	return a.log.Write(observability.Event{
		Type: eventType,
		Data: data,
	})
}
