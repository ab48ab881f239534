package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// stringValue renders a scalar record value as text. Maps, slices and nil
// render as "".
func stringValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(x)
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	}
	return ""
}

// firstValue returns the value of the first key in keys that is present,
// non-nil and not a blank string.
func firstValue(rec map[string]any, keys []string) any {
	for _, k := range keys {
		v, ok := rec[k]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return v
	}
	return nil
}

// firstString returns the first non-blank scalar value among keys.
func firstString(rec map[string]any, keys []string) string {
	for _, k := range keys {
		if s := stringValue(rec[k]); strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// nestedEmailBody reads the raw_data payload of an email record. A string
// payload is decoded as JSON and used verbatim when it is not JSON; a map is
// read directly. body is the payload's content, falling back to its
// snippet.
func nestedEmailBody(rec map[string]any) (body, snippet string) {
	raw, ok := rec["raw_data"]
	if !ok || raw == nil {
		return "", ""
	}

	var payload map[string]any
	switch v := raw.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return "", ""
		}
		if err := json.Unmarshal([]byte(v), &payload); err != nil {
			return v, ""
		}
	case map[string]any:
		payload = v
	default:
		return stringValue(v), ""
	}

	snippet = stringValue(payload["snippet"])
	body = stringValue(payload["content"])
	if strings.TrimSpace(body) == "" {
		body = snippet
	}
	return body, snippet
}

// EmailRichContent joins an email's subject, snippet and body, leaving out
// blank parts. The body comes from raw_data, else fallback. fallback is
// returned as-is when raw is not a record.
func EmailRichContent(raw any, fallback string) string {
	rec, ok := raw.(map[string]any)
	if !ok {
		return fallback
	}

	subject := stringValue(rec["subject"])
	snippet := stringValue(rec["snippet"])
	body, nestedSnippet := nestedEmailBody(rec)
	if strings.TrimSpace(snippet) == "" {
		snippet = nestedSnippet
	}
	if strings.TrimSpace(body) == "" {
		body = fallback
	}
	if body == snippet {
		body = ""
	}

	parts := make([]string, 0, 3)
	for _, p := range []string{subject, snippet, body} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return fallback
	}
	return strings.Join(parts, "\n")
}

// CallRichContent picks the text of a call: an attached transcript first,
// then the raw record's transcription or content, then fallback.
func CallRichContent(transcript string, raw any, fallback string) string {
	if strings.TrimSpace(transcript) != "" {
		return transcript
	}
	switch r := raw.(type) {
	case map[string]any:
		if s := firstString(r, []string{"transcription", "content", "message_content"}); s != "" {
			return s
		}
	case string:
		if strings.TrimSpace(r) != "" {
			return r
		}
	}
	return fallback
}
