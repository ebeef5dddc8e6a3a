package compatapi

import (
	"encoding/json"
	"net/http"

	"github.com/nextlevelbuilder/warpbridge/internal/apierr"
	"github.com/nextlevelbuilder/warpbridge/internal/openaiapi"
	"github.com/nextlevelbuilder/warpbridge/internal/transcode"
)

// handleChatCompletions implements spec.md §4.11's POST /v1/chat/completions
// dispatch: warmup, reorder, packet build, then the streaming or
// non-streaming branch.
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	s.ensureWarmedUp(r.Context())

	var req openaiapi.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.ClientRequestInvalid(err.Error()))
		return
	}
	if len(req.Messages) == 0 {
		apierr.Write(w, apierr.ClientRequestInvalid("messages must not be empty"))
		return
	}

	all := transcode.FromOpenAI(req.Messages)
	nonSystem, systemPromptText := splitSystemPrompt(all)
	reordered := transcode.Reorder(nonSystem)
	if len(reordered) == 0 {
		apierr.Write(w, apierr.ClientRequestInvalid("messages contain no user or tool input"))
		return
	}
	history := reordered[:len(reordered)-1]
	final := reordered[len(reordered)-1]

	taskID := s.State.EnsureBaselineTaskID()
	toolCallID, toolMessageID := s.State.EnsureToolIDs()
	conversationID := s.State.ConversationID()

	packet, err := buildPacket(history, final, systemPromptText, req.Model, req.Tools, taskID, toolCallID, toolMessageID, conversationID)
	if err != nil {
		apierr.Write(w, apierr.ProtocolViolation(err.Error()))
		return
	}

	model := req.Model
	if model == "" {
		model = "claude-4.1-opus"
	}

	if req.Stream {
		s.sendStream(w, r, packet, model)
		return
	}
	s.sendNonStream(w, r, packet, model)
}
