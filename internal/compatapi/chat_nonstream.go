package compatapi

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/warpbridge/internal/apierr"
	"github.com/nextlevelbuilder/warpbridge/internal/decode"
	"github.com/nextlevelbuilder/warpbridge/internal/openaiapi"
)

// sendNonStream implements spec.md §4.11 step 6's non-streaming branch:
// POST the packet to the Bridge, retry once on a 429 after a best-effort
// auth refresh, extract tool_calls from parsed_events, and update
// BridgeState from the aggregated response.
func (s *Server) sendNonStream(w http.ResponseWriter, r *http.Request, packet map[string]any, model string) {
	ctx := r.Context()

	resp, err := s.postBridge(ctx, "/api/warp/send_stream", packet)
	if err != nil {
		apierr.Write(w, apierr.BridgeUnreachable(err.Error()))
		return
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		s.refreshBridgeAuth(ctx)
		resp, err = s.postBridge(ctx, "/api/warp/send_stream", packet)
		if err != nil {
			apierr.Write(w, apierr.BridgeUnreachable(err.Error()))
			return
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		passThroughBridgeStatus(w, resp)
		return
	}

	var out bridgeAggregatedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		apierr.Write(w, apierr.UpstreamTransport(err.Error()))
		return
	}
	s.State.UpdateFromUpstream(out.ConversationID, out.TaskID)

	var toolCalls []openaiapi.ToolCall
	if len(out.ParsedEvents) > 0 {
		calls, err := decode.ScanToolCallsJSON(out.ParsedEvents)
		if err != nil {
			calls = nil
		}
		for _, c := range calls {
			toolCalls = append(toolCalls, openaiapi.ToolCall{
				ID:   c.ID,
				Type: "function",
				Function: openaiapi.ToolCallFunc{
					Name:      c.Name,
					Arguments: c.Arguments,
				},
			})
		}
	}

	finishReason := decode.FinishReason(len(toolCalls) > 0)
	completion := openaiapi.ChatCompletionResponse{
		ID:      "chatcmpl-" + out.TaskID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []openaiapi.Choice{
			{
				Index: 0,
				Message: openaiapi.ResponseMsg{
					Role:      "assistant",
					Content:   out.Response,
					ToolCalls: toolCalls,
				},
				FinishReason: finishReason,
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(completion)
}

func passThroughBridgeStatus(w http.ResponseWriter, resp *http.Response) {
	w.Header().Set("Content-Type", resp.Header.Get("Content-Type"))
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}
