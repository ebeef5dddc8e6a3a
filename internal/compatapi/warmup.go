package compatapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/warpbridge/internal/transcode"
)

// ensureWarmedUp runs warmup once, coalescing concurrent callers behind a
// single-flight guard, per spec.md §4.12. Best-effort: a failed warmup
// does not block the request that triggered it, since the bridge call
// made for that request will warm the same state up regardless.
func (s *Server) ensureWarmedUp(ctx context.Context) {
	if s.State.Initialized() {
		return
	}
	_, _, _ = s.warmupGroup.Do("warmup", func() (any, error) {
		s.runWarmup(ctx)
		return nil, nil
	})
}

func (s *Server) runWarmup(ctx context.Context) {
	if s.State.Initialized() {
		return
	}

	attempts := s.WarmupInitRetries
	if attempts <= 0 {
		attempts = 1
	}
	if !s.pollBridgeHealthz(ctx, attempts, func() { time.Sleep(s.WarmupInitDelay) }) {
		slog.Warn("compatapi: bridge did not become healthy during warmup")
		return
	}

	toolCallID, toolMessageID := s.State.EnsureToolIDs()
	taskID := uuid.NewString()
	final := transcode.ChatMsg{Role: "user", Segments: []transcode.Segment{{Type: "text", Text: "warmup"}}}

	packet, err := buildPacket(nil, final, "", "", nil, taskID, toolCallID, toolMessageID, "")
	if err != nil {
		slog.Warn("compatapi: building warmup packet failed", "error", err)
		return
	}

	retries := s.WarmupRequestRetry
	if retries <= 0 {
		retries = 1
	}

	var resp *http.Response
	var statusErr error
	for i := 0; i < retries; i++ {
		resp, err = s.postBridge(ctx, "/api/warp/send_stream", packet)
		statusErr = nil
		if err == nil && resp.StatusCode != http.StatusOK {
			statusErr = fmt.Errorf("status %d", resp.StatusCode)
			resp.Body.Close()
		}
		if err == nil && statusErr == nil {
			break
		}
		if i < retries-1 {
			time.Sleep(s.WarmupRequestDelay)
		}
	}
	if err != nil {
		slog.Warn("compatapi: warmup request failed", "error", err)
		return
	}
	if statusErr != nil {
		slog.Warn("compatapi: warmup request returned non-200", "error", statusErr)
		return
	}
	defer resp.Body.Close()

	var out bridgeAggregatedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		slog.Warn("compatapi: decoding warmup response failed", "error", err)
		return
	}
	s.State.UpdateFromUpstream(out.ConversationID, out.TaskID)
}
