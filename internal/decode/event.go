// Package decode turns a decoded upstream ResponseEvent (as produced by
// warpwire.Runtime.ProtobufToDict) into ordered content/tool-call deltas,
// plus the non-streaming fast-path extraction used once the Bridge has
// already buffered a full response as JSON. Grounded on
// original_source/protobuf2openai/sse_transform.py's action dispatch.
package decode

import "encoding/json"

// ToolCallDelta is one OpenAI-shaped tool call fragment extracted from a
// tool_call sub-message.
type ToolCallDelta struct {
	ID        string
	Name      string
	Arguments string // JSON-encoded object
}

// Delta is one ordered content or tool-call fragment extracted from a
// single response event. Exactly one of Text/Reasoning or ToolCall is
// meaningful per Delta.
type Delta struct {
	Text      string
	Reasoning string
	ToolCall  *ToolCallDelta
}

// EventResult is everything extracted from one decoded ResponseEvent.
type EventResult struct {
	ConversationID string
	TaskID         string
	Finished       bool
	Deltas         []Delta
}

// DecodeEvent extracts ordered deltas plus conversation/task id updates
// and the finished flag from ev. ev's shape mirrors
// warp.multi_agent.v1.ResponseEvent as decoded into a plain map: at most
// one of "init", "client_actions", "finished" is present, per
// SPEC_FULL.md §4.9.
func DecodeEvent(ev map[string]any) EventResult {
	var res EventResult

	if init, ok := mapField(ev, "init"); ok {
		res.ConversationID, _ = init["conversation_id"].(string)
		res.TaskID, _ = init["task_id"].(string)
	}
	if _, ok := ev["finished"]; ok {
		res.Finished = true
	}

	actionsField, ok := mapField(ev, "client_actions")
	if !ok {
		return res
	}
	actions, _ := actionsField["actions"].([]any)
	for _, a := range actions {
		action, ok := a.(map[string]any)
		if !ok {
			continue
		}
		res.Deltas = append(res.Deltas, decodeAction(action, &res)...)
	}
	return res
}

// FinishReason resolves the terminal finish_reason for a `finished` event:
// "tool_calls" if any tool call was emitted anywhere in the stream, else
// "stop".
func FinishReason(anyToolCalls bool) string {
	if anyToolCalls {
		return "tool_calls"
	}
	return "stop"
}

func decodeAction(action map[string]any, res *EventResult) []Delta {
	if m, ok := mapField(action, "append_to_message_content"); ok {
		if msg, ok := mapField(m, "message"); ok {
			return deltasFromMessage(msg)
		}
		return nil
	}
	if m, ok := mapField(action, "add_messages_to_task"); ok {
		if tid, _ := m["task_id"].(string); tid != "" {
			res.TaskID = tid
		}
		var out []Delta
		msgs, _ := m["messages"].([]any)
		for _, mm := range msgs {
			if msg, ok := mm.(map[string]any); ok {
				out = append(out, deltasFromMessage(msg)...)
			}
		}
		return out
	}
	if m, ok := mapField(action, "update_task_message"); ok {
		if msg, ok := mapField(m, "message"); ok {
			if ao, ok := mapField(msg, "agent_output"); ok {
				if text, _ := ao["text"].(string); text != "" {
					return []Delta{{Text: text}}
				}
			}
		}
		return nil
	}
	if m, ok := mapField(action, "create_task"); ok {
		if task, ok := mapField(m, "task"); ok {
			var out []Delta
			msgs, _ := task["messages"].([]any)
			for _, mm := range msgs {
				if msg, ok := mm.(map[string]any); ok {
					out = append(out, deltasFromMessage(msg)...)
				}
			}
			return out
		}
		return nil
	}
	if m, ok := mapField(action, "update_task_summary"); ok {
		if summary, _ := m["summary"].(string); summary != "" {
			return []Delta{{Text: summary}}
		}
	}
	return nil
}

func deltasFromMessage(msg map[string]any) []Delta {
	if ao, ok := mapField(msg, "agent_output"); ok {
		text, _ := ao["text"].(string)
		reasoning, _ := ao["reasoning"].(string)
		if text == "" && reasoning == "" {
			return nil
		}
		return []Delta{{Text: text, Reasoning: reasoning}}
	}
	if tc, ok := mapField(msg, "tool_call"); ok {
		if call, ok := ExtractToolCall(tc); ok {
			return []Delta{{ToolCall: &call}}
		}
	}
	return nil
}

// ExtractToolCall pulls the OpenAI-shaped {id, name, arguments} out of a
// decoded tool_call sub-message: tool_call_id plus exactly one oneof
// variant naming the tool. call_mcp_tool.args takes precedence over the
// whole call_mcp_tool object when present; any other variant's full
// sub-object serializes to become the arguments JSON, and its field name
// becomes the function name. Grounded on
// original_source/warp2protobuf/core/protobuf_utils.py's
// call_mcp_tool-aware tool-call extraction.
func ExtractToolCall(toolCall map[string]any) (ToolCallDelta, bool) {
	id, _ := toolCall["tool_call_id"].(string)
	for key, val := range toolCall {
		if key == "tool_call_id" {
			continue
		}
		sub, ok := val.(map[string]any)
		if !ok {
			continue
		}
		if key == "call_mcp_tool" {
			name, _ := sub["name"].(string)
			var argsObj any = sub["args"]
			if argsObj == nil {
				argsObj = map[string]any{}
			}
			argsJSON, err := json.Marshal(argsObj)
			if err != nil {
				argsJSON = []byte("{}")
			}
			return ToolCallDelta{ID: id, Name: name, Arguments: string(argsJSON)}, true
		}
		argsJSON, err := json.Marshal(sub)
		if err != nil {
			argsJSON = []byte("{}")
		}
		return ToolCallDelta{ID: id, Name: key, Arguments: string(argsJSON)}, true
	}
	return ToolCallDelta{}, false
}

func mapField(m map[string]any, key string) (map[string]any, bool) {
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	sub, ok := v.(map[string]any)
	return sub, ok
}
