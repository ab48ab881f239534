package core

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/valter-silva-au/leadline/pkg/models"
)

// ChannelAdapter turns one channel's raw records into canonical events.
// Adapt accepts a list of records, a single record or a bare string and
// never fails: records it cannot place on the timeline are dropped.
type ChannelAdapter interface {
	// Channel returns the channel this adapter handles.
	Channel() models.Channel

	// Adapt converts raw records into zero or more events.
	Adapt(raw any) []models.Event
}

// ChannelRegistry holds exactly one adapter per channel.
type ChannelRegistry interface {
	// Register adds an adapter. A second adapter for the same channel is
	// rejected.
	Register(adapter ChannelAdapter) error

	// Adapter returns the adapter registered for ch.
	Adapter(ch models.Channel) (ChannelAdapter, error)

	// Channels lists registered channels in their canonical order.
	Channels() []models.Channel
}

type channelRegistry struct {
	mu       sync.RWMutex
	adapters map[models.Channel]ChannelAdapter
}

// NewChannelRegistry creates an empty ChannelRegistry.
func NewChannelRegistry() ChannelRegistry {
	return &channelRegistry{
		adapters: make(map[models.Channel]ChannelAdapter),
	}
}

// DefaultRegistry registers the four built-in adapters, applying any field
// mapping overrides from cfg. now supplies the fallback timestamp for the
// subject record.
func DefaultRegistry(cfg *models.Config, now func() time.Time, logger *slog.Logger) ChannelRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	var mappings map[models.Channel]models.FieldMapping
	if cfg != nil {
		mappings = cfg.FieldMappings
	}

	r := NewChannelRegistry()
	for _, a := range []ChannelAdapter{
		NewMessageAdapter(mappings[models.ChannelMessage], logger),
		NewCallAdapter(mappings[models.ChannelCall], logger),
		NewEmailAdapter(mappings[models.ChannelEmail], logger),
		NewSubjectRecordAdapter(mappings[models.ChannelSubjectRecord], now, logger),
	} {
		// Built-ins cover distinct channels, so Register cannot fail here.
		_ = r.Register(a)
	}
	return r
}

func (r *channelRegistry) Register(adapter ChannelAdapter) error {
	if adapter == nil {
		return fmt.Errorf("registering channel adapter: adapter is nil")
	}
	ch := adapter.Channel()
	if !ch.Valid() {
		return fmt.Errorf("registering channel adapter: unknown channel %q", ch)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[ch]; exists {
		return fmt.Errorf("registering channel adapter: channel %q already registered", ch)
	}
	r.adapters[ch] = adapter
	return nil
}

func (r *channelRegistry) Adapter(ch models.Channel) (ChannelAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, ok := r.adapters[ch]
	if !ok {
		return nil, fmt.Errorf("getting channel adapter: channel %q not registered", ch)
	}
	return adapter, nil
}

func (r *channelRegistry) Channels() []models.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]models.Channel, 0, len(r.adapters))
	for _, ch := range models.AllChannels() {
		if _, ok := r.adapters[ch]; ok {
			result = append(result, ch)
		}
	}
	return result
}

// fieldSet is the ordered list of keys tried for each event field.
type fieldSet struct {
	timestamp []string
	content   []string
	id        []string
}

func (f fieldSet) override(m models.FieldMapping) fieldSet {
	if len(m.Timestamp) > 0 {
		f.timestamp = m.Timestamp
	}
	if len(m.Content) > 0 {
		f.content = m.Content
	}
	if len(m.ID) > 0 {
		f.id = m.ID
	}
	return f
}

var (
	messageFields = fieldSet{
		timestamp: []string{"timestamp", "created_at", "sent_at"},
		content:   []string{"content", "message_content"},
		id:        []string{"id", "message_id"},
	}
	callFields = fieldSet{
		timestamp: []string{"timestamp", "created_at"},
		content:   []string{"content", "message_content", "transcription"},
		id:        []string{"id", "call_id"},
	}
	emailFields = fieldSet{
		timestamp: []string{"timestamp", "created_at"},
		content:   []string{"content", "message_content"},
		id:        []string{"id", "email_id"},
	}
	subjectRecordFields = fieldSet{
		timestamp: []string{"move_in_date", "created_at", "updated_at", "timestamp"},
		content:   []string{"content"},
		id:        []string{"lead_id", "id"},
	}
)

// recordsOf flattens the accepted raw shapes into a list of records.
func recordsOf(raw any) []any {
	switch v := raw.(type) {
	case nil:
		return nil
	case []any:
		return v
	case []map[string]any:
		out := make([]any, len(v))
		for i, m := range v {
			out[i] = m
		}
		return out
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	case map[string]any:
		return []any{v}
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return []any{v}
	}
	return nil
}

// recordAdapter is the shared implementation behind the message, call and
// email adapters.
type recordAdapter struct {
	channel models.Channel
	fields  fieldSet
	// enrich recovers content from secondary fields when the direct
	// content keys are empty.
	enrich func(rec map[string]any) string
	logger *slog.Logger
}

// NewMessageAdapter creates the chat message adapter.
func NewMessageAdapter(m models.FieldMapping, logger *slog.Logger) ChannelAdapter {
	return &recordAdapter{
		channel: models.ChannelMessage,
		fields:  messageFields.override(m),
		logger:  loggerOrDefault(logger),
	}
}

// NewCallAdapter creates the voice call adapter.
func NewCallAdapter(m models.FieldMapping, logger *slog.Logger) ChannelAdapter {
	return &recordAdapter{
		channel: models.ChannelCall,
		fields:  callFields.override(m),
		logger:  loggerOrDefault(logger),
	}
}

// NewEmailAdapter creates the email adapter. When the direct content keys
// are empty it looks inside the nested raw_data payload, then the top-level
// snippet.
func NewEmailAdapter(m models.FieldMapping, logger *slog.Logger) ChannelAdapter {
	return &recordAdapter{
		channel: models.ChannelEmail,
		fields:  emailFields.override(m),
		enrich: func(rec map[string]any) string {
			if body, _ := nestedEmailBody(rec); strings.TrimSpace(body) != "" {
				return body
			}
			return stringValue(rec["snippet"])
		},
		logger: loggerOrDefault(logger),
	}
}

func (a *recordAdapter) Channel() models.Channel { return a.channel }

func (a *recordAdapter) Adapt(raw any) []models.Event {
	var events []models.Event
	for i, rec := range recordsOf(raw) {
		ev, ok := a.adaptRecord(rec)
		if !ok {
			a.logger.Debug("dropping record without timestamp",
				"channel", string(a.channel), "index", i)
			continue
		}
		events = append(events, ev)
	}
	return events
}

func (a *recordAdapter) adaptRecord(rec any) (models.Event, bool) {
	switch r := rec.(type) {
	case map[string]any:
		at, ok := ParseTimestamp(firstValue(r, a.fields.timestamp))
		if !ok {
			return models.Event{}, false
		}
		content := firstString(r, a.fields.content)
		if content == "" && a.enrich != nil {
			content = a.enrich(r)
		}
		return models.Event{
			Type:      a.channel.EventType(),
			Timestamp: FormatTimestamp(at),
			Content:   content,
			Source:    string(a.channel),
			ID:        firstString(r, a.fields.id),
			Raw:       r,
			At:        at,
		}, true
	case string:
		// A bare transcript carries no timestamp of its own, so it can
		// never be ordered and is left out of the timeline.
		return models.Event{}, false
	}
	return models.Event{}, false
}

// subjectRecordAdapter emits exactly one event for the lead's representative
// record.
type subjectRecordAdapter struct {
	fields fieldSet
	now    func() time.Time
	logger *slog.Logger
}

// NewSubjectRecordAdapter creates the subject record adapter. now supplies
// the timestamp when the record has no parseable date field.
func NewSubjectRecordAdapter(m models.FieldMapping, now func() time.Time, logger *slog.Logger) ChannelAdapter {
	if now == nil {
		now = time.Now
	}
	return &subjectRecordAdapter{
		fields: subjectRecordFields.override(m),
		now:    now,
		logger: loggerOrDefault(logger),
	}
}

func (a *subjectRecordAdapter) Channel() models.Channel { return models.ChannelSubjectRecord }

func (a *subjectRecordAdapter) Adapt(raw any) []models.Event {
	var rec map[string]any
	for _, r := range recordsOf(raw) {
		if m, ok := r.(map[string]any); ok && len(m) > 0 {
			rec = m
			break
		}
	}
	if rec == nil {
		return nil
	}

	at, ok := ParseTimestamp(firstValue(rec, a.fields.timestamp))
	if !ok {
		at = a.now().UTC()
	}
	content := firstString(rec, a.fields.content)
	if content == "" {
		content = describeRecord(rec)
	}
	return []models.Event{{
		Type:      models.EventSubjectRecord,
		Timestamp: FormatTimestamp(at),
		Content:   content,
		Source:    string(models.ChannelSubjectRecord),
		ID:        firstString(rec, a.fields.id),
		Raw:       rec,
		At:        at,
	}}
}

// describeRecord renders the scalar fields of rec as sorted "key: value"
// pairs.
func describeRecord(rec map[string]any) string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		s := stringValue(rec[k])
		if strings.TrimSpace(s) == "" {
			continue
		}
		parts = append(parts, k+": "+s)
	}
	return strings.Join(parts, ", ")
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
