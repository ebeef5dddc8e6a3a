// Package bridgeapi implements the upstream-facing back-end: it owns the
// protobuf runtime, the credential manager, and the upstream HTTP client,
// and exposes the three endpoints the Compat front-end calls to reach
// Warp (SPEC_FULL.md §6).
package bridgeapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nextlevelbuilder/warpbridge/internal/apierr"
	"github.com/nextlevelbuilder/warpbridge/internal/creds"
	"github.com/nextlevelbuilder/warpbridge/internal/decode"
	"github.com/nextlevelbuilder/warpbridge/internal/schema"
	"github.com/nextlevelbuilder/warpbridge/internal/upstream"
	"github.com/nextlevelbuilder/warpbridge/internal/warpwire"
)

// responseMessageType is the canonical top-level event message the
// upstream streams back, per spec.md §4.8/§4.9.
const responseMessageType = "warp.multi_agent.v1.ResponseEvent"

// Server holds the dependencies of the Bridge back-end. It does not hold
// BridgeState: packet assembly (and therefore conversation/task id
// bookkeeping) is a Compat concern (SPEC_FULL.md §9).
type Server struct {
	Runtime  *warpwire.Runtime
	Creds    *creds.Manager
	Upstream *upstream.Client

	// RequestMessageType is resolved once at startup via
	// Runtime.ResolveRequestType and reused for every request.
	RequestMessageType string
}

// New builds a Server, resolving the request message type up front so a
// missing canonical type surfaces at startup rather than mid-request.
func New(rt *warpwire.Runtime, credsMgr *creds.Manager, up *upstream.Client) (*Server, error) {
	reqType, err := rt.ResolveRequestType()
	if err != nil {
		return nil, fmt.Errorf("bridgeapi: %w", err)
	}
	return &Server{Runtime: rt, Creds: credsMgr, Upstream: up, RequestMessageType: reqType}, nil
}

// Mux builds the Bridge's HTTP router.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("POST /api/warp/send_stream", s.handleSendStream)
	mux.HandleFunc("POST /api/warp/send_stream_sse", s.handleSendStreamSSE)
	mux.HandleFunc("POST /api/auth/refresh", s.handleAuthRefresh)
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "service": "warp-bridge"})
}

// warpRequestBody is the shape both send_stream endpoints accept.
type warpRequestBody struct {
	JSONData    map[string]any `json:"json_data"`
	MessageType string         `json:"message_type"`
}

func (s *Server) decodeRequestBody(r *http.Request) (map[string]any, error) {
	var body warpRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding request body: %w", err)
	}
	if body.JSONData == nil {
		return nil, fmt.Errorf("missing json_data")
	}
	sanitizeMCPTools(body.JSONData)
	return body.JSONData, nil
}

// sanitizeMCPTools walks json_data["mcp_context"]["tools"][].input_schema
// and sanitizes each one in place, per spec.md §4.11 ("the sanitizer is
// applied on the bridge side").
func sanitizeMCPTools(jsonData map[string]any) {
	mcpContext, ok := jsonData["mcp_context"].(map[string]any)
	if !ok {
		return
	}
	tools, ok := mcpContext["tools"].([]any)
	if !ok {
		return
	}
	for _, t := range tools {
		tool, ok := t.(map[string]any)
		if !ok {
			continue
		}
		raw, ok := tool["input_schema"].(map[string]any)
		if !ok {
			continue
		}
		tool["input_schema"] = schema.Sanitize(raw)
	}
}

type sendStreamResponse struct {
	ConversationID string          `json:"conversation_id,omitempty"`
	TaskID         string          `json:"task_id,omitempty"`
	Response       string          `json:"response"`
	ParsedEvents   []parsedEventJS `json:"parsed_events"`
}

type parsedEventJS struct {
	EventNumber int            `json:"event_number"`
	EventType   string         `json:"event_type"`
	ParsedData  map[string]any `json:"parsed_data"`
}

func (s *Server) handleSendStream(w http.ResponseWriter, r *http.Request) {
	jsonData, err := s.decodeRequestBody(r)
	if err != nil {
		apierr.Write(w, apierr.ClientRequestInvalid(err.Error()))
		return
	}

	protoBytes, err := s.Runtime.DictToProtobufBytes(s.RequestMessageType, jsonData)
	if err != nil {
		apierr.Write(w, apierr.ProtocolViolation(err.Error()))
		return
	}

	resp, err := s.Upstream.SendBuffered(r.Context(), protoBytes)
	if err != nil {
		apierr.Write(w, apierr.UpstreamTransport(err.Error()))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		passThroughUpstreamStatus(w, resp)
		return
	}

	out := sendStreamResponse{}
	eventNumber := 0
	scanErr := upstream.ScanEvents(resp.Body, func(payload []byte, decodeErr error) error {
		if decodeErr != nil {
			if decodeErr == upstream.ErrStreamDone {
				return nil
			}
			slog.Warn("bridgeapi: dropping undecodable SSE payload", "error", decodeErr)
			return nil
		}
		ev, err := s.Runtime.ProtobufToDict(payload, responseMessageType)
		if err != nil {
			slog.Warn("bridgeapi: dropping unparsable event", "error", err)
			return nil
		}
		eventNumber++
		result := decode.DecodeEvent(ev)
		if result.ConversationID != "" {
			out.ConversationID = result.ConversationID
		}
		if result.TaskID != "" {
			out.TaskID = result.TaskID
		}
		for _, d := range result.Deltas {
			out.Response += d.Text
		}
		out.ParsedEvents = append(out.ParsedEvents, parsedEventJS{
			EventNumber: eventNumber,
			EventType:   eventTypeOf(ev),
			ParsedData:  ev,
		})
		return nil
	})
	if scanErr != nil {
		apierr.Write(w, apierr.UpstreamTransport(scanErr.Error()))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		slog.Error("bridgeapi: encoding send_stream response failed", "error", err)
	}
}

func (s *Server) handleSendStreamSSE(w http.ResponseWriter, r *http.Request) {
	jsonData, err := s.decodeRequestBody(r)
	if err != nil {
		apierr.Write(w, apierr.ClientRequestInvalid(err.Error()))
		return
	}

	protoBytes, err := s.Runtime.DictToProtobufBytes(s.RequestMessageType, jsonData)
	if err != nil {
		apierr.Write(w, apierr.ProtocolViolation(err.Error()))
		return
	}

	resp, err := s.Upstream.SendStream(r.Context(), protoBytes)
	if err != nil {
		apierr.Write(w, apierr.UpstreamTransport(err.Error()))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		passThroughUpstreamStatus(w, resp)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, _ := w.(http.Flusher)

	_ = upstream.ScanEvents(resp.Body, func(payload []byte, decodeErr error) error {
		if decodeErr != nil {
			if decodeErr == upstream.ErrStreamDone {
				return nil
			}
			slog.Warn("bridgeapi: dropping undecodable SSE payload", "error", decodeErr)
			return nil
		}
		ev, err := s.Runtime.ProtobufToDict(payload, responseMessageType)
		if err != nil {
			slog.Warn("bridgeapi: dropping unparsable event", "error", err)
			return nil
		}
		wrapped, err := json.Marshal(map[string]any{"parsed_data": ev})
		if err != nil {
			return nil
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", wrapped); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})

	fmt.Fprint(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

func (s *Server) handleAuthRefresh(w http.ResponseWriter, r *http.Request) {
	refreshed, err := s.Creds.CheckAndRefreshToken(r.Context())
	if err != nil {
		apierr.Write(w, apierr.Unauthenticated(err.Error()))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"refreshed": refreshed})
}

// eventTypeOf reports which of the ResponseEvent's mutually exclusive
// top-level fields is present, for the parsed_events[].event_type the
// buffered endpoint reports to Compat.
func eventTypeOf(ev map[string]any) string {
	for _, key := range []string{"init", "client_actions", "finished"} {
		if _, ok := ev[key]; ok {
			return key
		}
	}
	return "unknown"
}

// passThroughUpstreamStatus forwards a non-200 upstream response verbatim
// (status and body), per spec.md's "other non-200s are surfaced verbatim".
func passThroughUpstreamStatus(w http.ResponseWriter, resp *http.Response) {
	w.Header().Set("Content-Type", resp.Header.Get("Content-Type"))
	w.WriteHeader(resp.StatusCode)
	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			_, _ = w.Write(buf[:n])
		}
		if err != nil {
			return
		}
	}
}
