// Package transcode converts OpenAI chat history into the upstream's
// task/message graph: reordering tool-call/result adjacency, normalizing
// multi-part content, and building the packet sent to the bridge.
package transcode

import (
	"encoding/json"
	"strings"

	"github.com/nextlevelbuilder/warpbridge/internal/openaiapi"
)

// Segment is a normalized text content segment.
type Segment struct {
	Type string
	Text string
}

// NormalizeContent maps a raw OpenAI content field (string, array of
// segments, or a bare {"text":...} object) to an ordered list of text
// segments. Unrecognized shapes normalize to an empty list.
func NormalizeContent(raw json.RawMessage) []Segment {
	if len(raw) == 0 {
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []Segment{{Type: "text", Text: s}}
	}

	var list []map[string]any
	if err := json.Unmarshal(raw, &list); err == nil {
		out := make([]Segment, 0, len(list))
		for _, item := range list {
			t, _ := item["type"].(string)
			if t != "text" {
				continue
			}
			text, ok := item["text"].(string)
			if !ok {
				continue
			}
			out = append(out, Segment{Type: "text", Text: text})
		}
		return out
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		if text, ok := obj["text"].(string); ok {
			return []Segment{{Type: "text", Text: text}}
		}
	}

	return nil
}

// SegmentsToText concatenates the text of every segment in order.
func SegmentsToText(segs []Segment) string {
	var b strings.Builder
	for _, s := range segs {
		b.WriteString(s.Text)
	}
	return b.String()
}

// SegmentsToWarpResults maps text segments to the upstream's
// {text:{text:...}} result shape, dropping any non-text segment. The
// return type is the same generic map/slice shape used throughout
// packets.go so the result can be fed straight into
// warpwire.FillMessage via reflection (map[string]any / []any), not a
// typed struct.
func SegmentsToWarpResults(segs []Segment) []any {
	out := make([]any, 0, len(segs))
	for _, s := range segs {
		if s.Type != "text" {
			continue
		}
		out = append(out, map[string]any{"text": map[string]any{"text": s.Text}})
	}
	return out
}

// MessageText is a convenience wrapper combining NormalizeContent and
// SegmentsToText for a single message.
func MessageText(m openaiapi.Message) string {
	return SegmentsToText(NormalizeContent(m.Content))
}
