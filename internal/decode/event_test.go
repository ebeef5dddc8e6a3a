package decode

import "testing"

func TestDecodeEvent_InitSetsConversationAndTaskID(t *testing.T) {
	res := DecodeEvent(map[string]any{
		"init": map[string]any{"conversation_id": "C1", "task_id": "T1"},
	})
	if res.ConversationID != "C1" || res.TaskID != "T1" {
		t.Fatalf("got conversation=%q task=%q, want C1/T1", res.ConversationID, res.TaskID)
	}
}

func TestDecodeEvent_FinishedFlag(t *testing.T) {
	res := DecodeEvent(map[string]any{"finished": map[string]any{}})
	if !res.Finished {
		t.Error("expected Finished=true")
	}
}

func TestDecodeEvent_AppendToMessageContentTextDelta(t *testing.T) {
	res := DecodeEvent(map[string]any{
		"client_actions": map[string]any{
			"actions": []any{
				map[string]any{
					"append_to_message_content": map[string]any{
						"message": map[string]any{
							"agent_output": map[string]any{"text": "hel"},
						},
					},
				},
			},
		},
	})
	if len(res.Deltas) != 1 || res.Deltas[0].Text != "hel" {
		t.Fatalf("got %+v, want one delta with text=hel", res.Deltas)
	}
}

func TestDecodeEvent_AppendToMessageContentToolCall(t *testing.T) {
	res := DecodeEvent(map[string]any{
		"client_actions": map[string]any{
			"actions": []any{
				map[string]any{
					"append_to_message_content": map[string]any{
						"message": map[string]any{
							"tool_call": map[string]any{
								"tool_call_id": "x",
								"call_mcp_tool": map[string]any{
									"name": "ls",
									"args": map[string]any{"p": "/"},
								},
							},
						},
					},
				},
			},
		},
	})
	if len(res.Deltas) != 1 || res.Deltas[0].ToolCall == nil {
		t.Fatalf("got %+v, want one tool-call delta", res.Deltas)
	}
	tc := res.Deltas[0].ToolCall
	if tc.ID != "x" || tc.Name != "ls" || tc.Arguments != `{"p":"/"}` {
		t.Errorf("got %+v", tc)
	}
}

func TestDecodeEvent_AddMessagesToTaskUpdatesTaskID(t *testing.T) {
	res := DecodeEvent(map[string]any{
		"client_actions": map[string]any{
			"actions": []any{
				map[string]any{
					"add_messages_to_task": map[string]any{
						"task_id": "T2",
						"messages": []any{
							map[string]any{"agent_output": map[string]any{"text": "a"}},
							map[string]any{"agent_output": map[string]any{"text": "b"}},
						},
					},
				},
			},
		},
	})
	if res.TaskID != "T2" {
		t.Errorf("task_id = %q, want T2", res.TaskID)
	}
	if len(res.Deltas) != 2 || res.Deltas[0].Text != "a" || res.Deltas[1].Text != "b" {
		t.Fatalf("got %+v", res.Deltas)
	}
}

func TestDecodeEvent_UpdateTaskSummaryEmitsText(t *testing.T) {
	res := DecodeEvent(map[string]any{
		"client_actions": map[string]any{
			"actions": []any{
				map[string]any{"update_task_summary": map[string]any{"summary": "done"}},
			},
		},
	})
	if len(res.Deltas) != 1 || res.Deltas[0].Text != "done" {
		t.Fatalf("got %+v", res.Deltas)
	}
}

func TestExtractToolCall_NonMCPVariantUsesFieldNameAndWholeSubObject(t *testing.T) {
	call, ok := ExtractToolCall(map[string]any{
		"tool_call_id": "y",
		"run_command":  map[string]any{"cmd": "ls -la"},
	})
	if !ok {
		t.Fatal("expected a tool call to be extracted")
	}
	if call.Name != "run_command" || call.Arguments != `{"cmd":"ls -la"}` {
		t.Errorf("got %+v", call)
	}
}

func TestFinishReason(t *testing.T) {
	if FinishReason(true) != "tool_calls" {
		t.Error("expected tool_calls when tool calls were emitted")
	}
	if FinishReason(false) != "stop" {
		t.Error("expected stop when no tool calls were emitted")
	}
}
