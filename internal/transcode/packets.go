package transcode

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/warpbridge/internal/openaiapi"
)

// preambleServerPayload is the fixed opaque server_message_data payload
// that opens every task's message list. Invariant bytes per SPEC_FULL.md §9.
const preambleServerPayload = "IgIQAQ=="

// defaultModelBase is used when neither the request nor BridgeState carries
// a model name yet.
const defaultModelBase = "claude-4.1-opus"

// knownModels maps directly onto "base"; anything else falls back to
// "auto", grounded on
// original_source/warp2protobuf/config/models.py's get_model_config().
var knownModels = map[string]bool{
	"claude-4-sonnet": true, "claude-4-opus": true, "claude-4.1-opus": true,
	"gpt-5": true, "gpt-4o": true, "gpt-4.1": true, "o3": true, "o4-mini": true,
	"gemini-2.5-pro": true, "warp-basic": true,
}

// PacketTemplate returns the upstream request packet skeleton with its
// fixed default settings, grounded byte-for-byte on
// original_source/protobuf2openai/packets.py's packet_template().
func PacketTemplate() map[string]any {
	return map[string]any{
		"input": map[string]any{
			"user_inputs": map[string]any{
				"inputs": []any{},
			},
		},
		"settings": map[string]any{
			"model_config": ModelConfig(defaultModelBase),
			"rules_enabled":                           false,
			"web_context_retrieval_enabled":           false,
			"supports_parallel_tool_calls":             false,
			"planning_enabled":                         false,
			"warp_drive_context_enabled":                false,
			"supports_create_files":                    false,
			"use_anthropic_text_editor_tools":          false,
			"supports_long_running_commands":           false,
			"should_preserve_file_content_in_history":  false,
			"supports_todos_ui":                        false,
			"supports_linked_code_blocks":               false,
			"supported_tools":                          []any{9},
		},
		"metadata": map[string]any{
			"logging": map[string]any{
				"is_autodetected_user_query": true,
				"entrypoint":                 "USER_INITIATED",
			},
		},
	}
}

// ModelConfig resolves the model-family tuple for a requested model name,
// reinstating the original's per-model get_model_config() resolution
// (SPEC_FULL.md "Supplemented features") rather than only ever setting
// `base`. Planning is always "o3"; base falls back to "auto" for any
// model outside the known set.
func ModelConfig(model string) map[string]any {
	if model == "" {
		model = defaultModelBase
	}
	base := strings.ToLower(strings.TrimSpace(model))
	if !knownModels[base] {
		base = "auto"
	}
	return map[string]any{
		"base":     base,
		"planning": "o3",
		"coding":   "auto",
	}
}

// toolCallArgs parses an OpenAI tool_call's arguments (a JSON-encoded
// object string) into an object map for embedding as call_mcp_tool.args.
func toolCallArgs(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return map[string]any{}
	}
	return m
}

// MapHistoryToWarpMessages builds task_context.tasks[0].messages[] from
// history (the reordered chat log with its final input already excluded),
// per SPEC_FULL.md §4.3. The preamble carrying the stable tool_call_id /
// tool_message_id pair is always first.
func MapHistoryToWarpMessages(history []ChatMsg, taskID, toolCallID, toolMessageID string) []map[string]any {
	messages := make([]map[string]any, 0, len(history)+1)

	messages = append(messages, map[string]any{
		"id":      toolMessageID,
		"task_id": taskID,
		"tool_call": map[string]any{
			"tool_call_id": toolCallID,
			"server": map[string]any{
				"payload": preambleServerPayload,
			},
		},
	})

	for _, m := range history {
		switch m.Role {
		case "user":
			messages = append(messages, map[string]any{
				"task_id":    taskID,
				"user_query": map[string]any{"query": m.Text()},
			})
		case "assistant":
			if text := m.Text(); text != "" {
				messages = append(messages, map[string]any{
					"task_id":      taskID,
					"agent_output": map[string]any{"text": text},
				})
			}
			for _, tc := range m.ToolCalls {
				messages = append(messages, map[string]any{
					"task_id": taskID,
					"tool_call": map[string]any{
						"tool_call_id": tc.ID,
						"call_mcp_tool": map[string]any{
							"name": tc.Function.Name,
							"args": toolCallArgs(tc.Function.Arguments),
						},
					},
				})
			}
		case "tool":
			if m.ToolCallID == "" {
				continue
			}
			messages = append(messages, map[string]any{
				"task_id": taskID,
				"tool_call_result": map[string]any{
					"tool_call_id": m.ToolCallID,
					"call_mcp_tool": map[string]any{
						"success": map[string]any{
							"results": SegmentsToWarpResults(m.Segments),
						},
					},
				},
			})
		}
	}

	return messages
}

// AttachUserAndToolsToInputs appends exactly the final turn's input to
// input.user_inputs.inputs[], per SPEC_FULL.md §4.3. final must be the
// reordered history's last message (the one excluded from
// MapHistoryToWarpMessages). Any role other than user/tool is a protocol
// violation and returns an error (SPEC_FULL.md §7 ProtocolViolation).
func AttachUserAndToolsToInputs(packet map[string]any, final ChatMsg, systemPromptText string) error {
	inputObj := packet["input"].(map[string]any)
	userInputs := inputObj["user_inputs"].(map[string]any)

	switch final.Role {
	case "user":
		entry := map[string]any{
			"query": final.Text(),
		}
		if systemPromptText != "" {
			entry["referenced_attachments"] = map[string]any{
				"SYSTEM_PROMPT": map[string]any{
					"plain_text": SystemPromptAttachment(systemPromptText),
				},
			}
		}
		userInputs["inputs"] = []any{map[string]any{"user_query": entry}}
	case "tool":
		if final.ToolCallID == "" {
			return fmt.Errorf("transcode: protocol violation: final tool input missing tool_call_id")
		}
		userInputs["inputs"] = []any{map[string]any{
			"tool_call_result": map[string]any{
				"tool_call_id": final.ToolCallID,
				"call_mcp_tool": map[string]any{
					"success": map[string]any{
						"results": SegmentsToWarpResults(final.Segments),
					},
				},
			},
		}}
	default:
		return fmt.Errorf("transcode: protocol violation: final reordered message has role %q, want user or tool", final.Role)
	}

	return nil
}

// MCPTool is one entry of packet["mcp_context"]["tools"], built from an
// OpenAI tool definition after sanitization.
type MCPTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// AttachTools populates mcp_context.tools[] from function-typed OpenAI
// tool definitions.
func AttachTools(packet map[string]any, tools []openaiapi.Tool, sanitize func(map[string]any) map[string]any) {
	var mcpTools []any
	for _, t := range tools {
		if t.Type != "function" {
			continue
		}
		var schema map[string]any
		if len(t.Function.Parameters) > 0 {
			_ = json.Unmarshal(t.Function.Parameters, &schema)
		}
		if schema == nil {
			schema = map[string]any{}
		}
		if sanitize != nil {
			schema = sanitize(schema)
		}
		mcpTools = append(mcpTools, map[string]any{
			"name":         t.Function.Name,
			"description":  t.Function.Description,
			"input_schema": schema,
		})
	}
	if len(mcpTools) == 0 {
		return
	}
	mcpCtx, ok := packet["mcp_context"].(map[string]any)
	if !ok {
		mcpCtx = map[string]any{}
		packet["mcp_context"] = mcpCtx
	}
	existing, _ := mcpCtx["tools"].([]any)
	mcpCtx["tools"] = append(existing, mcpTools...)
}
