package cli

import (
	"log/slog"

	"github.com/valter-silva-au/leadline/internal/api"
	"github.com/valter-silva-au/leadline/internal/core"
	"github.com/valter-silva-au/leadline/internal/observability"
	"github.com/valter-silva-au/leadline/pkg/models"
)

// Service instances, set during app initialization in app.go.
var (
	BasePath     string
	DataDir      string
	Config       *models.Config
	Logger       *slog.Logger
	Consolidator core.Consolidator
	States       core.StateStore
	Retention    api.Retention
	Events       core.EventLogger
	Collectors   *observability.Collectors
)

// Observability service instances, set during app initialization in app.go.
var (
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
)

func logger() *slog.Logger {
	if Logger == nil {
		return slog.Default()
	}
	return Logger
}
