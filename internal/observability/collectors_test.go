package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/valter-silva-au/leadline/pkg/models"
)

func TestCollectors_RecordRuns(t *testing.T) {
	c := NewCollectors()

	c.ObserveConsolidation(models.StatusProcessed, 250*time.Millisecond, models.TimelineCounts{
		Calls: 2, Emails: 1, MessagePacks: 3, Messages: 7, SubjectRecords: 1, Total: 7,
	})
	c.ObserveConsolidation(models.StatusCached, time.Millisecond, models.TimelineCounts{})
	c.ChannelFetchFailed(models.ChannelEmail)
	c.CleanupRan()

	if got := testutil.ToFloat64(c.consolidations.WithLabelValues("processed")); got != 1 {
		t.Errorf("processed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.consolidations.WithLabelValues("cached")); got != 1 {
		t.Errorf("cached = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.fetchFailures.WithLabelValues("email")); got != 1 {
		t.Errorf("email failures = %v, want 1", got)
	}
	// The cached run must not reset the gauges to zero.
	if got := testutil.ToFloat64(c.timelineEvents.WithLabelValues("message_pack")); got != 3 {
		t.Errorf("message_pack gauge = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.cleanups); got != 1 {
		t.Errorf("cleanups = %v, want 1", got)
	}
}

func TestCollectors_Handler(t *testing.T) {
	c := NewCollectors()
	c.ChannelFetchFailed(models.ChannelCall)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `leadline_channel_fetch_failures_total{channel="call"} 1`) {
		t.Errorf("exposition missing failure counter:\n%s", body)
	}
}

func TestCollectors_IndependentRegistries(t *testing.T) {
	a, b := NewCollectors(), NewCollectors()
	a.ChannelFetchFailed(models.ChannelCall)
	if got := testutil.ToFloat64(b.fetchFailures.WithLabelValues("call")); got != 0 {
		t.Errorf("second instance saw %v failures", got)
	}
}
