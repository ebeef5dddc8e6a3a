package transcode

import "testing"

func TestModelConfig_KnownModelPassesThroughPlanningIsAlwaysO3(t *testing.T) {
	got := ModelConfig("gpt-5")
	if got["base"] != "gpt-5" {
		t.Errorf("base = %v, want gpt-5", got["base"])
	}
	if got["planning"] != "o3" {
		t.Errorf("planning = %v, want o3", got["planning"])
	}
	if got["coding"] != "auto" {
		t.Errorf("coding = %v, want auto", got["coding"])
	}
}

func TestModelConfig_UnknownModelFallsBackToAuto(t *testing.T) {
	got := ModelConfig("some-unrecognized-model")
	if got["base"] != "auto" {
		t.Errorf("base = %v, want auto", got["base"])
	}
	if got["planning"] != "o3" {
		t.Errorf("planning = %v, want o3", got["planning"])
	}
}

func TestPacketTemplate_FixedDefaults(t *testing.T) {
	p := PacketTemplate()

	settings := p["settings"].(map[string]any)
	modelConfig := settings["model_config"].(map[string]any)
	if modelConfig["base"] != defaultModelBase {
		t.Errorf("model_config.base = %v, want %q", modelConfig["base"], defaultModelBase)
	}

	tools, ok := settings["supported_tools"].([]any)
	if !ok || len(tools) != 1 || tools[0] != 9 {
		t.Fatalf("supported_tools = %v, want [9]", settings["supported_tools"])
	}

	logging := p["metadata"].(map[string]any)["logging"].(map[string]any)
	if logging["entrypoint"] != "USER_INITIATED" {
		t.Errorf("entrypoint = %v, want USER_INITIATED", logging["entrypoint"])
	}
	if logging["is_autodetected_user_query"] != true {
		t.Errorf("is_autodetected_user_query = %v, want true", logging["is_autodetected_user_query"])
	}
}

func TestMapHistoryToWarpMessages_PreambleFirst(t *testing.T) {
	msgs := MapHistoryToWarpMessages(nil, "task-1", "call-1", "msg-1")
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (preamble only)", len(msgs))
	}
	toolCall := msgs[0]["tool_call"].(map[string]any)
	if toolCall["tool_call_id"] != "call-1" {
		t.Errorf("preamble tool_call_id = %v, want call-1", toolCall["tool_call_id"])
	}
	server := toolCall["server"].(map[string]any)
	if server["payload"] != preambleServerPayload {
		t.Errorf("preamble payload = %v, want %q", server["payload"], preambleServerPayload)
	}
}

func TestAttachUserAndToolsToInputs_UserFinal(t *testing.T) {
	packet := PacketTemplate()
	final := ChatMsg{Role: "user", Segments: []Segment{{Type: "text", Text: "hello"}}}

	if err := AttachUserAndToolsToInputs(packet, final, "be helpful"); err != nil {
		t.Fatal(err)
	}

	inputs := packet["input"].(map[string]any)["user_inputs"].(map[string]any)["inputs"].([]any)
	if len(inputs) != 1 {
		t.Fatalf("got %d inputs, want 1", len(inputs))
	}
	uq := inputs[0].(map[string]any)["user_query"].(map[string]any)
	if uq["query"] != "hello" {
		t.Errorf("query = %v, want hello", uq["query"])
	}
	attachments := uq["referenced_attachments"].(map[string]any)["SYSTEM_PROMPT"].(map[string]any)
	plain := attachments["plain_text"].(string)
	if plain != SystemPromptAttachment("be helpful") {
		t.Errorf("plain_text = %q, want the ALERT-prefixed system prompt", plain)
	}
}

func TestAttachUserAndToolsToInputs_ToolFinalRejectsMissingID(t *testing.T) {
	packet := PacketTemplate()
	final := ChatMsg{Role: "tool"}

	if err := AttachUserAndToolsToInputs(packet, final, ""); err == nil {
		t.Fatal("expected an error for a tool input missing tool_call_id")
	}
}

func TestAttachUserAndToolsToInputs_RejectsNonInputRole(t *testing.T) {
	packet := PacketTemplate()
	final := ChatMsg{Role: "assistant"}

	if err := AttachUserAndToolsToInputs(packet, final, ""); err == nil {
		t.Fatal("expected an error when the final reordered message is not user/tool")
	}
}
