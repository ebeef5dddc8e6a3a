package compatapi

import (
	"strings"

	"github.com/nextlevelbuilder/warpbridge/internal/openaiapi"
	"github.com/nextlevelbuilder/warpbridge/internal/transcode"
)

// splitSystemPrompt pulls every "system" message out of msgs, returning the
// remaining history plus their text joined with blank-line separators
// (blank entries stripped), or "" if none. Grounded on spec.md §4.11 step 3.
func splitSystemPrompt(msgs []transcode.ChatMsg) (rest []transcode.ChatMsg, systemPromptText string) {
	var systemTexts []string
	for _, m := range msgs {
		if m.Role != "system" {
			rest = append(rest, m)
			continue
		}
		if t := strings.TrimSpace(m.Text()); t != "" {
			systemTexts = append(systemTexts, t)
		}
	}
	return rest, strings.Join(systemTexts, "\n\n")
}

// messagesToAny converts MapHistoryToWarpMessages' []map[string]any to the
// []any shape warpwire.FillMessage's list-field handling requires.
func messagesToAny(msgs []map[string]any) []any {
	out := make([]any, len(msgs))
	for i, m := range msgs {
		out[i] = m
	}
	return out
}

// buildPacket assembles the full upstream request packet for one chat
// turn, per spec.md §4.11 step 4-5: task_context from history, active
// input from final, model settings, established conversation id, and
// sanitized tool definitions.
func buildPacket(
	history []transcode.ChatMsg,
	final transcode.ChatMsg,
	systemPromptText, model string,
	tools []openaiapi.Tool,
	taskID, toolCallID, toolMessageID, conversationID string,
) (map[string]any, error) {
	packet := transcode.PacketTemplate()
	packet["settings"].(map[string]any)["model_config"] = transcode.ModelConfig(model)

	messages := transcode.MapHistoryToWarpMessages(history, taskID, toolCallID, toolMessageID)
	packet["task_context"] = map[string]any{
		"tasks": []any{
			map[string]any{
				"id":          taskID,
				"description": "",
				"status":      map[string]any{"in_progress": map[string]any{}},
				"messages":    messagesToAny(messages),
			},
		},
		"active_task_id": taskID,
	}

	if conversationID != "" {
		packet["metadata"].(map[string]any)["conversation_id"] = conversationID
	}

	if err := transcode.AttachUserAndToolsToInputs(packet, final, systemPromptText); err != nil {
		return nil, err
	}
	// Schema sanitization happens bridge-side only (bridgeapi.sanitizeMCPTools);
	// tool definitions cross the wire unsanitized here.
	transcode.AttachTools(packet, tools, nil)

	return packet, nil
}
