package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	_ "github.com/jinzhu/gorm/dialects/sqlite"

	"github.com/valter-silva-au/leadline/internal/core"
	"github.com/valter-silva-au/leadline/pkg/models"
)

// DefaultQueries are the per-channel lookups run against the CRM schema.
// Every "?" is bound to the lead's contact (mobile number or email).
var DefaultQueries = map[models.Channel]string{
	models.ChannelMessage: `SELECT id, created_at, message_content, direction, from_number, to_number
FROM whatsapp_messages
WHERE (direction = 'inbound' AND from_number = ?)
   OR (direction = 'outbound' AND to_number = ?)
ORDER BY created_at`,

	models.ChannelCall: `SELECT lc.id, lc.timestamp, lc.duration, lc.to_number, lc.from_number,
       lc.source, lc.record_url, lc.transcription
FROM leads_calls lc
JOIN leads l ON lc.to_number = l.phone OR lc.from_number = l.phone
WHERE l.phone = ? OR l.email = ?
ORDER BY lc.timestamp DESC
LIMIT 100`,

	models.ChannelEmail: `SELECT le.id, le.timestamp, le.from_email AS sender_email,
       le.to_email AS recipient_email, le.subject, le.content, le.snippet, le.direction,
       CASE WHEN le.from_email = l.email THEN 'student' ELSE 'agent' END AS sender_type
FROM leads_emails le
JOIN leads l ON le.from_email = l.email OR le.to_email = l.email
WHERE (l.phone = ? OR l.email = ?)
  AND le.content IS NOT NULL AND le.content <> ''
ORDER BY le.timestamp DESC`,

	models.ChannelSubjectRecord: `SELECT id AS lead_id, name AS user_name, email, phone, university,
       move_in_date, move_out_date, lease_duration, budget, budget_currency,
       city, country
FROM leads
WHERE phone = ? OR email = ?
LIMIT 1`,
}

// SQLProvider fetches raw records for a lead from a relational database
// through gorm. Rows are returned as []map[string]any with JSON-safe values.
type SQLProvider struct {
	db      *gorm.DB
	queries map[models.Channel]string
}

// NewSQLProvider wraps an open connection. Entries in overrides replace the
// default query for that channel.
func NewSQLProvider(db *gorm.DB, overrides map[string]string) *SQLProvider {
	queries := make(map[models.Channel]string, len(DefaultQueries))
	for ch, q := range DefaultQueries {
		queries[ch] = q
	}
	for name, q := range overrides {
		if strings.TrimSpace(q) != "" {
			queries[models.Channel(name)] = q
		}
	}
	return &SQLProvider{db: db, queries: queries}
}

// OpenSQLProvider connects to the database described by cfg.
func OpenSQLProvider(cfg models.SourceConfig) (*SQLProvider, error) {
	dialect, dsn := connectionString(cfg)
	db, err := gorm.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", dialect, err)
	}
	return NewSQLProvider(db, cfg.Queries), nil
}

func connectionString(cfg models.SourceConfig) (dialect, dsn string) {
	dialect = cfg.Database
	if dialect == "" {
		dialect = "sqlite3"
	}
	if cfg.DSN != "" {
		return dialect, cfg.DSN
	}
	if dialect == "postgres" {
		return dialect, fmt.Sprintf("host=%s port=%s user=%s dbname=%s password=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Name, cfg.Password)
	}
	return dialect, cfg.Name
}

// Close releases the underlying connection pool.
func (p *SQLProvider) Close() error {
	return p.db.Close()
}

// Fetch runs the channel's query for the lead. A lead without a contact or
// a channel without a query yields no records.
func (p *SQLProvider) Fetch(ctx context.Context, lead models.LeadRef, channel models.Channel) (any, error) {
	query, ok := p.queries[channel]
	contact := lead.Contact()
	if !ok || contact == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	args := make([]any, strings.Count(query, "?"))
	for i := range args {
		args[i] = contact
	}

	rows, err := p.db.Raw(query, args...).Rows()
	if err != nil {
		return nil, fmt.Errorf("querying %s records: %w", channel, err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("reading %s records: %w", channel, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records, nil
}

func scanRecords(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(map[string]any, len(cols))
		for i, col := range cols {
			rec[col] = jsonSafe(values[i])
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// jsonSafe converts driver values into types that marshal cleanly.
func jsonSafe(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return core.FormatTimestamp(t.UTC())
	default:
		return t
	}
}
