package compatapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/nextlevelbuilder/warpbridge/internal/state"
)

func TestRunWarmup_RetriesOnNon200ResponseBeforeSucceeding(t *testing.T) {
	var calls int32
	bridge := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.WriteHeader(http.StatusOK)
			return
		}
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"conversation_id": "conv-warm",
			"task_id":         "task-warm",
		})
	}))
	defer bridge.Close()

	srv := &Server{
		BridgeURL:          bridge.URL,
		FallbackBridgeURLs: []string{bridge.URL},
		WarmupInitRetries:  1,
		WarmupRequestRetry: 3,
		HTTPClient:         &http.Client{},
		State:              state.New(),
	}

	srv.runWarmup(context.Background())

	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("bridge called %d times, want 3 (2 failures retried then success)", got)
	}
	if srv.State.ConversationID() != "conv-warm" {
		t.Fatalf("conversation id = %q, want conv-warm (warmup did not recover from non-200 retries)", srv.State.ConversationID())
	}
}

func TestRunWarmup_GivesUpAfterExhaustingRetriesOnPersistentNon200(t *testing.T) {
	var calls int32
	bridge := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.WriteHeader(http.StatusOK)
			return
		}
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bridge.Close()

	srv := &Server{
		BridgeURL:          bridge.URL,
		FallbackBridgeURLs: []string{bridge.URL},
		WarmupInitRetries:  1,
		WarmupRequestRetry: 2,
		HTTPClient:         &http.Client{},
		State:              state.New(),
	}

	srv.runWarmup(context.Background())

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("bridge called %d times, want 2 (WarmupRequestRetry attempts)", got)
	}
	if srv.State.Initialized() {
		t.Fatal("state should not be marked initialized after persistent non-200 warmup failures")
	}
}
