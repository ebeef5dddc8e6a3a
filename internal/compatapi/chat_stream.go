package compatapi

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nextlevelbuilder/warpbridge/internal/decode"
	"github.com/nextlevelbuilder/warpbridge/internal/openaiapi"
)

// sendStream implements spec.md §4.10's SSE transformer state machine:
// Opened -> Streaming -> Finished, talking to the Bridge's
// send_stream_sse endpoint (whose events are already-decoded JSON, unlike
// the raw hex/base64 upstream SSE internal/upstream.ScanEvents handles).
func (s *Server) sendStream(w http.ResponseWriter, r *http.Request, packet map[string]any, model string) {
	ctx := r.Context()

	resp, err := s.postBridge(ctx, "/api/warp/send_stream_sse", packet)
	if err != nil {
		apierrBridgeUnreachableSSE(w, err)
		return
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		s.refreshBridgeAuth(ctx)
		resp, err = s.postBridge(ctx, "/api/warp/send_stream_sse", packet)
		if err != nil {
			apierrBridgeUnreachableSSE(w, err)
			return
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		passThroughBridgeStatus(w, resp)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, _ := w.(http.Flusher)

	chunkBase := openaiapi.ChatCompletionChunk{
		ID:      "chatcmpl-stream",
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   model,
	}

	writeChunk := func(delta openaiapi.Delta, finishReason *string, chunkErr *openaiapi.ChunkError) {
		chunk := chunkBase
		chunk.Choices = []openaiapi.ChunkChoice{{Index: 0, Delta: delta, FinishReason: finishReason, Error: chunkErr}}
		data, err := json.Marshal(chunk)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		if flusher != nil {
			flusher.Flush()
		}
	}

	writeChunk(openaiapi.Delta{Role: "assistant"}, nil, nil)

	anyToolCalls := false
	streamErr := scanBridgeSSE(resp.Body, func(parsedData map[string]any) error {
		result := decode.DecodeEvent(parsedData)
		if result.ConversationID != "" || result.TaskID != "" {
			s.State.UpdateFromUpstream(result.ConversationID, result.TaskID)
		}
		for _, d := range result.Deltas {
			if d.ToolCall != nil {
				anyToolCalls = true
				writeChunk(openaiapi.Delta{ToolCalls: []openaiapi.ToolCall{{
					ID:   d.ToolCall.ID,
					Type: "function",
					Function: openaiapi.ToolCallFunc{
						Name:      d.ToolCall.Name,
						Arguments: d.ToolCall.Arguments,
					},
				}}}, nil, nil)
				continue
			}
			if d.Text != "" || d.Reasoning != "" {
				writeChunk(openaiapi.Delta{Content: d.Text}, nil, nil)
			}
		}
		return nil
	})

	if streamErr != nil {
		slog.Warn("compatapi: streaming transport error", "error", streamErr)
		errMsg := streamErr.Error()
		finishReason := "error"
		writeChunk(openaiapi.Delta{}, &finishReason, &openaiapi.ChunkError{Message: errMsg})
	} else {
		finishReason := decode.FinishReason(anyToolCalls)
		writeChunk(openaiapi.Delta{}, &finishReason, nil)
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

func apierrBridgeUnreachableSSE(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	json.NewEncoder(w).Encode(map[string]any{
		"code":    "bridge_unreachable",
		"message": err.Error(),
	})
}

// scanBridgeSSE reads the Bridge's send_stream_sse framing: `data:`-lines
// each carrying one complete JSON object `{parsed_data:...}`, blank-line
// terminated, ending on a literal `data: [DONE]`. Unlike
// internal/upstream.ScanEvents, payloads here are plain JSON text already
// decoded by the Bridge, not hex/base64 protobuf bytes.
func scanBridgeSSE(body io.Reader, onEvent func(parsedData map[string]any) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		rest, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		payload := strings.TrimPrefix(rest, " ")
		if payload == "" || payload == "[DONE]" {
			if payload == "[DONE]" {
				return nil
			}
			continue
		}

		var wrapped struct {
			ParsedData map[string]any `json:"parsed_data"`
		}
		if err := json.Unmarshal([]byte(payload), &wrapped); err != nil {
			slog.Warn("compatapi: dropping undecodable bridge SSE payload", "error", err)
			continue
		}
		if err := onEvent(wrapped.ParsedData); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("compatapi: reading bridge SSE stream: %w", err)
	}
	return nil
}
