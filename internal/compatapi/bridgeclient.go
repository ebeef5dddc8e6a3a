package compatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// requestMessageType is the wire message_type Compat sends to the Bridge
// on every send_stream(_sse) call, per spec.md §6.
const requestMessageType = "warp.multi_agent.v1.Request"

type bridgeRequestBody struct {
	JSONData    map[string]any `json:"json_data"`
	MessageType string         `json:"message_type"`
}

// postBridge POSTs path to the Bridge, trying each configured URL in order
// until one accepts the connection (CompatConfig.FallbackBridgeURL is
// always at least [BridgeURL]).
func (s *Server) postBridge(ctx context.Context, path string, jsonData map[string]any) (*http.Response, error) {
	body, err := json.Marshal(bridgeRequestBody{JSONData: jsonData, MessageType: requestMessageType})
	if err != nil {
		return nil, fmt.Errorf("compatapi: encoding bridge request: %w", err)
	}

	var lastErr error
	for _, base := range s.bridgeURLs() {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(body))
		if err != nil {
			lastErr = err
			continue
		}
		req.Header.Set("content-type", "application/json")
		resp, err := s.HTTPClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("compatapi: bridge unreachable: %w", lastErr)
}

// refreshBridgeAuth best-effort calls /api/auth/refresh, per spec.md §4.10's
// on-429 recovery step. Errors are swallowed by the caller: a failed
// refresh just means the retried request fails too.
func (s *Server) refreshBridgeAuth(ctx context.Context) {
	resp, err := s.postBridgeNoBody(ctx, "/api/auth/refresh")
	if err != nil {
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func (s *Server) postBridgeNoBody(ctx context.Context, path string) (*http.Response, error) {
	var lastErr error
	for _, base := range s.bridgeURLs() {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, nil)
		if err != nil {
			lastErr = err
			continue
		}
		resp, err := s.HTTPClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}

func (s *Server) bridgeURLs() []string {
	if len(s.FallbackBridgeURLs) > 0 {
		return s.FallbackBridgeURLs
	}
	return []string{s.BridgeURL}
}

// pollBridgeHealthz polls GET /healthz up to attempts times with delay
// between tries, returning true on the first 200. Grounded on spec.md
// §4.12's warmup polling step.
func (s *Server) pollBridgeHealthz(ctx context.Context, attempts int, delay func()) bool {
	for i := 0; i < attempts; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BridgeURL+"/healthz", nil)
		if err == nil {
			if resp, err := s.HTTPClient.Do(req); err == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					return true
				}
			}
		}
		if i < attempts-1 {
			delay()
		}
	}
	return false
}
