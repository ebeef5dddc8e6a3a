package compatapi

import "encoding/json"

// bridgeAggregatedResponse mirrors bridgeapi's POST /api/warp/send_stream
// JSON body. ParsedEvents is kept as raw bytes so it can be handed
// directly to decode.ScanToolCallsJSON without a round-trip through
// generic maps.
type bridgeAggregatedResponse struct {
	ConversationID string          `json:"conversation_id"`
	TaskID         string          `json:"task_id"`
	Response       string          `json:"response"`
	ParsedEvents   json.RawMessage `json:"parsed_events"`
}
