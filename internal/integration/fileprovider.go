package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/valter-silva-au/leadline/internal/core"
	"github.com/valter-silva-au/leadline/pkg/models"
)

// Files with a fixed role inside a lead directory.
const (
	messagesFile = "messages.json"
	callsFile    = "calls.json"
	emailsFile   = "emails.json"

	callTranscriptPrefix = "call_"
	callTranscriptSuffix = ".txt"
)

// reservedFiles are never treated as the subject record.
var reservedFiles = map[string]bool{
	messagesFile:         true,
	callsFile:            true,
	emailsFile:           true,
	"summary_store.json": true,
	"timeline.json":      true,
}

// FileProvider reads raw records from per-lead directories under a root
// directory. Each lead lives in <root>/<lead key>/.
type FileProvider struct {
	root string
}

// NewFileProvider creates a FileProvider rooted at dir.
func NewFileProvider(dir string) *FileProvider {
	return &FileProvider{root: dir}
}

func (p *FileProvider) leadDir(lead models.LeadRef) string {
	return filepath.Join(p.root, lead.Key())
}

// Fetch returns the raw payload for one channel. Missing directories and
// files yield nil with no error; unreadable or malformed files are errors.
func (p *FileProvider) Fetch(ctx context.Context, lead models.LeadRef, channel models.Channel) (any, error) {
	if lead.IsZero() {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := p.leadDir(lead)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading lead directory: %w", err)
	}

	switch channel {
	case models.ChannelMessage:
		return readJSONFile(filepath.Join(dir, messagesFile))
	case models.ChannelEmail:
		return readJSONFile(filepath.Join(dir, emailsFile))
	case models.ChannelCall:
		return p.fetchCalls(dir)
	case models.ChannelSubjectRecord:
		return p.fetchSubjectRecord(dir)
	}
	return nil, fmt.Errorf("unsupported channel %q", channel)
}

// fetchCalls merges calls.json with plain-text call_*.txt transcripts. Each
// transcript becomes a record keyed by its file stem and stamped with the
// file's modification time.
func (p *FileProvider) fetchCalls(dir string) (any, error) {
	payload, err := readJSONFile(filepath.Join(dir, callsFile))
	if err != nil {
		return nil, err
	}

	var records []any
	switch v := payload.(type) {
	case nil:
	case []any:
		records = append(records, v...)
	default:
		records = append(records, v)
	}

	matches, err := filepath.Glob(filepath.Join(dir, callTranscriptPrefix+"*"+callTranscriptSuffix))
	if err != nil {
		return nil, fmt.Errorf("listing call transcripts: %w", err)
	}
	sort.Strings(matches)
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading call transcript %s: %w", filepath.Base(path), err)
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			continue
		}
		records = append(records, map[string]any{
			"id":        strings.TrimSuffix(filepath.Base(path), callTranscriptSuffix),
			"timestamp": core.FormatTimestamp(info.ModTime().UTC()),
			"content":   text,
		})
	}

	if len(records) == 0 {
		return nil, nil
	}
	return records, nil
}

// fetchSubjectRecord decodes the first JSON or YAML file, in name order,
// that has no fixed role.
func (p *FileProvider) fetchSubjectRecord(dir string) (any, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading lead directory: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || reservedFiles[name] || strings.HasPrefix(name, ".") {
			continue
		}
		switch strings.ToLower(filepath.Ext(name)) {
		case ".json":
			return readJSONFile(filepath.Join(dir, name))
		case ".yaml", ".yml":
			return readYAMLFile(filepath.Join(dir, name))
		}
	}
	return nil, nil
}

func readJSONFile(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return v, nil
}

func readYAMLFile(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	var v map[string]any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	if len(v) == 0 {
		return nil, nil
	}
	return v, nil
}
