package transcode

import (
	"github.com/nextlevelbuilder/warpbridge/internal/openaiapi"
)

// ChatMsg is the transcoder's working representation of a chat message:
// content already normalized to a segment list, convenient for splitting
// and re-joining during the reorder pass.
type ChatMsg struct {
	Role       string
	Segments   []Segment
	ToolCallID string
	ToolCalls  []openaiapi.ToolCall
}

// FromOpenAI converts wire messages to the transcoder's working form.
func FromOpenAI(msgs []openaiapi.Message) []ChatMsg {
	out := make([]ChatMsg, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ChatMsg{
			Role:       m.Role,
			Segments:   NormalizeContent(m.Content),
			ToolCallID: m.ToolCallID,
			ToolCalls:  m.ToolCalls,
		})
	}
	return out
}

// Text concatenates a message's segment text.
func (m ChatMsg) Text() string {
	return SegmentsToText(m.Segments)
}

// expand splits a multi-segment user message into one message per segment,
// and a multi-tool_call assistant message into an optional text message
// followed by one single-tool_call message per call (SPEC_FULL.md §4.1
// step 1).
func expand(msgs []ChatMsg) []ChatMsg {
	out := make([]ChatMsg, 0, len(msgs))
	for _, m := range msgs {
		switch {
		case m.Role == "user" && len(m.Segments) > 1:
			for _, s := range m.Segments {
				out = append(out, ChatMsg{Role: "user", Segments: []Segment{s}})
			}
		case m.Role == "assistant" && len(m.ToolCalls) > 1:
			if text := m.Text(); text != "" {
				out = append(out, ChatMsg{Role: "assistant", Segments: m.Segments})
			}
			for _, tc := range m.ToolCalls {
				out = append(out, ChatMsg{Role: "assistant", ToolCalls: []openaiapi.ToolCall{tc}})
			}
		default:
			out = append(out, m)
		}
	}
	return out
}

// Reorder normalizes a possibly-compacted history so that every assistant
// message carries at most one tool_call and tool-call/result adjacency is
// preserved, per SPEC_FULL.md §4.1.
func Reorder(msgs []ChatMsg) []ChatMsg {
	expanded := expand(msgs)
	if len(expanded) == 0 {
		return expanded
	}

	lastInputIdx := -1
	for i := len(expanded) - 1; i >= 0; i-- {
		m := expanded[i]
		if m.Role == "user" || m.Role == "tool" {
			lastInputIdx = i
			break
		}
	}
	if lastInputIdx == -1 {
		// No user/tool input at all; nothing to anchor on, emit unchanged.
		return expanded
	}

	anchor := expanded[lastInputIdx]
	anchorIsTool := anchor.Role == "tool"

	toolResultsByID := make(map[string]ChatMsg)
	for i, m := range expanded {
		if m.Role == "tool" && m.ToolCallID != "" && i != lastInputIdx {
			if _, exists := toolResultsByID[m.ToolCallID]; !exists {
				toolResultsByID[m.ToolCallID] = m
			}
		}
	}

	consumed := make(map[string]bool)
	var deferredAssistant *ChatMsg
	out := make([]ChatMsg, 0, len(expanded)+1)

	for i, m := range expanded {
		if i == lastInputIdx {
			if anchorIsTool {
				continue
			}
			out = append(out, m)
			continue
		}
		switch {
		case m.Role == "assistant" && len(m.ToolCalls) == 1:
			tcID := m.ToolCalls[0].ID
			if anchorIsTool && tcID == anchor.ToolCallID {
				mm := m
				deferredAssistant = &mm
				continue
			}
			out = append(out, m)
			if result, ok := toolResultsByID[tcID]; ok && !consumed[tcID] {
				out = append(out, result)
				consumed[tcID] = true
			}
		case m.Role == "tool":
			if m.ToolCallID != "" && consumed[m.ToolCallID] {
				continue
			}
			out = append(out, m)
		default:
			out = append(out, m)
		}
	}

	if anchorIsTool {
		if deferredAssistant != nil {
			out = append(out, *deferredAssistant)
		}
		out = append(out, anchor)
	}

	return out
}
