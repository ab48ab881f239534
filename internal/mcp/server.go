// Package mcp provides an MCP (Model Context Protocol) server that exposes
// timeline consolidation as tools for AI assistants.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/valter-silva-au/leadline/internal/core"
	"github.com/valter-silva-au/leadline/internal/observability"
	"github.com/valter-silva-au/leadline/internal/storage"
	"github.com/valter-silva-au/leadline/pkg/models"
)

// Server wraps the consolidation engine and exposes it as MCP tools.
type Server struct {
	server       *gomcp.Server
	consolidator core.Consolidator
	metricsCalc  observability.MetricsCalculator
	alertEngine  observability.AlertEngine
}

// NewServer creates an MCP server over consolidator. metricsCalc and
// alertEngine may be nil when the event log is unavailable.
func NewServer(consolidator core.Consolidator, metricsCalc observability.MetricsCalculator, alertEngine observability.AlertEngine, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		consolidator: consolidator,
		metricsCalc:  metricsCalc,
		alertEngine:  alertEngine,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "leadline", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run serves over stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type consolidateInput struct {
	Mobile string `json:"mobile,omitempty" jsonschema:"the lead's mobile number; takes precedence over email"`
	Email  string `json:"email,omitempty" jsonschema:"the lead's email address"`
	Force  bool   `json:"force,omitempty" jsonschema:"reprocess even when no channel has new data"`
}

type consolidateOutput struct {
	RunID         string                `json:"run_id"`
	LeadID        string                `json:"lead_id"`
	Status        string                `json:"status"`
	Message       string                `json:"message,omitempty"`
	Summary       map[string]any        `json:"summary"`
	Counts        models.TimelineCounts `json:"counts"`
	ChannelErrors map[string]string     `json:"channel_errors,omitempty"`
}

type timelineTextInput struct {
	Lead string `json:"lead" jsonschema:"required,the lead key (mobile number, or email with @ and . replaced by _)"`
}

type timelineTextOutput struct {
	Lead   string                `json:"lead"`
	Text   string                `json:"text"`
	Counts models.TimelineCounts `json:"counts"`
}

type attachTranscriptInput struct {
	Lead       string `json:"lead" jsonschema:"required,the lead key"`
	CallID     string `json:"call_id" jsonschema:"required,the id of the call event"`
	Transcript string `json:"transcript" jsonschema:"required,the transcript text"`
}

type attachTranscriptOutput struct {
	Attached bool   `json:"attached"`
	Message  string `json:"message"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 7d."`
}

type metricsOutput struct {
	RunsStarted         int            `json:"runs_started"`
	RunsByStatus        map[string]int `json:"runs_by_status"`
	ChannelFailures     map[string]int `json:"channel_failures"`
	TranscriptsAttached int            `json:"transcripts_attached"`
	Cleanups            int            `json:"cleanups"`
	LeadsSeen           int            `json:"leads_seen"`
	AvgDurationMs       float64        `json:"avg_duration_ms"`
	EventCount          int            `json:"event_count"`
	OldestEvent         string         `json:"oldest_event,omitempty"`
	NewestEvent         string         `json:"newest_event,omitempty"`
}

type getAlertsInput struct{}

type alertOutput struct {
	ID          string `json:"id"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	TriggeredAt string `json:"triggered_at"`
}

type getAlertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "consolidate_lead",
		Description: "Consolidate a lead's messages, calls, emails and lead record into one timeline and return the structured summary. Returns the cached summary when nothing changed.",
	}, s.handleConsolidate)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_timeline_text",
		Description: "Return the persisted timeline of a lead as one line per event: [timestamp] [CHANNEL] content.",
	}, s.handleTimelineText)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "attach_transcript",
		Description: "Attach a transcript to a call event on a lead's persisted timeline.",
	}, s.handleAttachTranscript)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get consolidation metrics from the event log: runs by status, channel failures, transcripts attached.",
	}, s.handleGetMetrics)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate and return active alerts (failing channels, stalled runs, slow runs).",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) handleConsolidate(ctx context.Context, _ *gomcp.CallToolRequest, input consolidateInput) (*gomcp.CallToolResult, consolidateOutput, error) {
	lead := models.LeadRef{Mobile: input.Mobile, Email: input.Email}
	if lead.IsZero() {
		return errorResult("provide either mobile or email"), consolidateOutput{}, nil
	}

	result, err := s.consolidator.Consolidate(ctx, lead, input.Force)
	if err != nil {
		return errorResult(fmt.Sprintf("consolidating lead %s: %s", lead.Key(), err)), consolidateOutput{}, nil
	}

	out := consolidateOutput{
		RunID:   result.RunID,
		LeadID:  result.LeadID,
		Status:  string(result.Status),
		Message: result.Message,
		Summary: result.Summary,
	}
	if out.Summary == nil {
		out.Summary = map[string]any{}
	}
	if result.Projection != nil {
		out.Counts = result.Projection.Counts
	}
	if len(result.ChannelErrors) > 0 {
		out.ChannelErrors = make(map[string]string, len(result.ChannelErrors))
		for ch, msg := range result.ChannelErrors {
			out.ChannelErrors[string(ch)] = msg
		}
	}
	return nil, out, nil
}

func (s *Server) handleTimelineText(_ context.Context, _ *gomcp.CallToolRequest, input timelineTextInput) (*gomcp.CallToolResult, timelineTextOutput, error) {
	if input.Lead == "" {
		return errorResult("lead is required"), timelineTextOutput{}, nil
	}

	timeline, err := s.consolidator.Timeline(input.Lead)
	if errors.Is(err, storage.ErrLeadNotFound) {
		return errorResult(fmt.Sprintf("no timeline for lead %s; run consolidate_lead first", input.Lead)), timelineTextOutput{}, nil
	}
	if err != nil {
		return errorResult(fmt.Sprintf("loading timeline for %s: %s", input.Lead, err)), timelineTextOutput{}, nil
	}

	p := core.Project(timeline)
	return nil, timelineTextOutput{Lead: input.Lead, Text: p.Text, Counts: p.Counts}, nil
}

func (s *Server) handleAttachTranscript(_ context.Context, _ *gomcp.CallToolRequest, input attachTranscriptInput) (*gomcp.CallToolResult, attachTranscriptOutput, error) {
	if input.Lead == "" || input.CallID == "" {
		return errorResult("lead and call_id are required"), attachTranscriptOutput{}, nil
	}

	found, err := s.consolidator.AttachTranscript(input.Lead, input.CallID, input.Transcript)
	if err != nil {
		return errorResult(fmt.Sprintf("attaching transcript: %s", err)), attachTranscriptOutput{}, nil
	}

	out := attachTranscriptOutput{
		Attached: found,
		Message:  fmt.Sprintf("transcript attached to call %s", input.CallID),
	}
	if !found {
		out.Message = fmt.Sprintf("no call %s on the timeline of lead %s", input.CallID, input.Lead)
	}
	return nil, out, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.metricsCalc == nil {
		return errorResult("metrics calculator not available (event log may be disabled)"), emptyMetricsOutput(), nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}

	sinceTime, err := parseSince(sinceStr)
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetricsOutput(), nil
	}

	metrics, err := s.metricsCalc.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}

	out := metricsOutput{
		RunsStarted:         metrics.RunsStarted,
		RunsByStatus:        metrics.RunsByStatus,
		ChannelFailures:     metrics.ChannelFailures,
		TranscriptsAttached: metrics.TranscriptsAttached,
		Cleanups:            metrics.Cleanups,
		LeadsSeen:           metrics.LeadsSeen,
		AvgDurationMs:       metrics.AvgDurationMs,
		EventCount:          metrics.EventCount,
	}
	if metrics.OldestEvent != nil {
		out.OldestEvent = metrics.OldestEvent.Format(time.RFC3339)
	}
	if metrics.NewestEvent != nil {
		out.NewestEvent = metrics.NewestEvent.Format(time.RFC3339)
	}

	return nil, out, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, _ getAlertsInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	if s.alertEngine == nil {
		return errorResult("alert engine not available (event log may be disabled)"), getAlertsOutput{}, nil
	}

	alerts, err := s.alertEngine.Evaluate()
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), getAlertsOutput{}, nil
	}

	out := getAlertsOutput{
		Alerts: make([]alertOutput, len(alerts)),
		Count:  len(alerts),
	}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:          a.ID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			Message:     a.Message,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
		}
	}

	return nil, out, nil
}

// --- Helpers ---

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{
		RunsByStatus:    make(map[string]int),
		ChannelFailures: make(map[string]int),
	}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// parseSince parses a duration like "7d" or "24h" into the corresponding
// time in the past.
func parseSince(s string) (time.Time, error) {
	now := time.Now().UTC()

	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]
	var num int
	if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", string(suffix))
	}
}
