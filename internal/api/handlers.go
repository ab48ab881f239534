package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/valter-silva-au/leadline/internal/core"
	"github.com/valter-silva-au/leadline/internal/observability"
	"github.com/valter-silva-au/leadline/internal/storage"
	"github.com/valter-silva-au/leadline/pkg/models"
)

type handlers struct {
	deps Deps
}

// leadFromQuery reads the mobile/email query parameters. It writes a 400
// and returns false when neither is present.
func leadFromQuery(c *gin.Context) (models.LeadRef, bool) {
	lead := models.LeadRef{Mobile: c.Query("mobile"), Email: c.Query("email")}
	if lead.IsZero() {
		respondError(c, "Provide either mobile or email.", http.StatusBadRequest)
		return lead, false
	}
	return lead, true
}

func forceFromQuery(c *gin.Context) bool {
	force, _ := strconv.ParseBool(c.Query("force"))
	return force
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// generateTimeline consolidates the lead and returns the canonical timeline.
func (h *handlers) generateTimeline(c *gin.Context) {
	lead, ok := leadFromQuery(c)
	if !ok {
		return
	}

	result, err := h.deps.Consolidator.Consolidate(c.Request.Context(), lead, forceFromQuery(c))
	if err != nil {
		h.consolidationError(c, err)
		return
	}
	if result.Status == models.StatusNoData {
		respondError(c, "Timeline not found.", http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, result.Timeline)
}

// generateSummary runs retention housekeeping when due, then returns the
// full consolidation result.
func (h *handlers) generateSummary(c *gin.Context) {
	h.cleanupIfNeeded()

	lead, ok := leadFromQuery(c)
	if !ok {
		return
	}

	result, err := h.deps.Consolidator.Consolidate(c.Request.Context(), lead, forceFromQuery(c))
	if err != nil {
		h.consolidationError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handlers) consolidationError(c *gin.Context, err error) {
	if errors.Is(err, core.ErrInvalidLeadID) {
		respondError(c, err.Error(), http.StatusBadRequest)
		return
	}
	h.deps.Logger.Error("consolidation failed", "error", err)
	respondError(c, err.Error(), http.StatusInternalServerError)
}

// timelineText returns the text projection of the persisted timeline.
func (h *handlers) timelineText(c *gin.Context) {
	timeline, err := h.deps.Consolidator.Timeline(c.Param("lead"))
	switch {
	case errors.Is(err, core.ErrInvalidLeadID):
		respondError(c, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, storage.ErrLeadNotFound):
		respondError(c, "Timeline not found.", http.StatusNotFound)
		return
	case err != nil:
		respondError(c, err.Error(), http.StatusInternalServerError)
		return
	}
	c.String(http.StatusOK, core.Project(timeline).Text)
}

type attachTranscriptRequest struct {
	Lead       string `json:"lead" binding:"required"`
	CallID     string `json:"call_id" binding:"required"`
	Transcript string `json:"transcript"`
}

func (h *handlers) attachTranscript(c *gin.Context) {
	var req attachTranscriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	found, err := h.deps.Consolidator.AttachTranscript(req.Lead, req.CallID, req.Transcript)
	switch {
	case errors.Is(err, core.ErrInvalidLeadID):
		respondError(c, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, storage.ErrLeadNotFound):
		respondError(c, "Timeline not found.", http.StatusNotFound)
		return
	case err != nil:
		respondError(c, err.Error(), http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lead": req.Lead, "call_id": req.CallID, "attached": found})
}

func (h *handlers) storageStats(c *gin.Context) {
	stats, err := h.deps.Retention.Stats()
	if err != nil {
		respondError(c, err.Error(), http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *handlers) storageCleanup(c *gin.Context) {
	stats, err := h.runCleanup()
	if err != nil {
		respondError(c, err.Error(), http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Storage cleanup completed", "stats": stats})
}

func (h *handlers) cleanupIfNeeded() {
	if h.deps.Retention == nil {
		return
	}
	should, err := h.deps.Retention.ShouldCleanup()
	if err != nil {
		h.deps.Logger.Warn("checking storage thresholds", "error", err)
		return
	}
	if !should {
		return
	}
	h.deps.Logger.Info("storage cleanup needed, running cleanup")
	if _, err := h.runCleanup(); err != nil {
		h.deps.Logger.Warn("storage cleanup failed", "error", err)
	}
}

func (h *handlers) runCleanup() (models.CleanupStats, error) {
	stats, err := h.deps.Retention.Cleanup()
	if err != nil {
		return stats, err
	}
	h.deps.Logger.Info("storage cleanup completed",
		"lead_dirs_deleted", stats.LeadDirsDeleted,
		"snapshots_deleted", stats.SnapshotsDeleted,
		"space_freed_mb", stats.SpaceFreedMB)
	if h.deps.Collectors != nil {
		h.deps.Collectors.CleanupRan()
	}
	if h.deps.Events != nil {
		_ = h.deps.Events.LogEvent(core.EventStorageCleanup, map[string]any{
			"lead_dirs_deleted": stats.LeadDirsDeleted,
			"snapshots_deleted": stats.SnapshotsDeleted,
		})
	}
	return stats, nil
}

func (h *handlers) alerts(c *gin.Context) {
	alerts, err := h.deps.Alerts.Evaluate()
	if err != nil {
		respondError(c, err.Error(), http.StatusInternalServerError)
		return
	}
	if alerts == nil {
		alerts = []observability.Alert{}
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}
