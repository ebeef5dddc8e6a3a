// Package compatapi implements the OpenAI Chat Completions-compatible
// front-end: model listing, health, and the streaming/non-streaming chat
// completion dispatch that builds upstream packets and talks to the
// Bridge back-end over HTTP (SPEC_FULL.md §4.11, §4.12).
package compatapi

import (
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nextlevelbuilder/warpbridge/internal/config"
	"github.com/nextlevelbuilder/warpbridge/internal/state"
)

// Server holds the Compat front-end's dependencies: where to reach the
// Bridge, warmup tuning, and the shared BridgeState.
type Server struct {
	BridgeURL          string
	FallbackBridgeURLs []string

	WarmupInitRetries  int
	WarmupInitDelay    time.Duration
	WarmupRequestRetry int
	WarmupRequestDelay time.Duration

	HTTPClient *http.Client
	State      *state.BridgeState

	warmupGroup singleflight.Group
}

// New builds a Server from the process configuration. HTTPClient carries no
// Timeout: Client.Timeout bounds the whole request including body read, which
// would cut off a long send_stream_sse passthrough mid-stream. The inbound
// request's context (canceled on client disconnect) is what bounds each call
// instead.
func New(cfg config.CompatConfig, st *state.BridgeState) *Server {
	return &Server{
		BridgeURL:          cfg.BridgeURL,
		FallbackBridgeURLs: cfg.FallbackBridgeURL,
		WarmupInitRetries:  cfg.WarmupInitRetries,
		WarmupInitDelay:    cfg.WarmupInitDelayDuration(),
		WarmupRequestRetry: cfg.WarmupRequestRetry,
		WarmupRequestDelay: cfg.WarmupRequestDelayDuration(),
		HTTPClient:         &http.Client{},
		State:              st,
	}
}

// Mux builds the Compat front-end's HTTP router.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /v1/models", s.handleModels)
	mux.HandleFunc("POST /v1/chat/completions", s.handleChatCompletions)
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "service": "warp-compat"})
}
