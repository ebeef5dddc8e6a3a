package decode

import (
	"fmt"

	"github.com/valyala/fastjson"
)

// ScanToolCallsJSON fast-scans the Bridge's buffered
// `{parsed_events:[{event_number,event_type,parsed_data}]}` JSON body for
// tool_call actions, without unmarshaling every event into a generic map.
// Used by the Compat non-streaming path (SPEC_FULL.md §4.11 step 6), where
// a response may carry many large agent_output text deltas irrelevant to
// this scan and only the tool_calls need extracting.
func ScanToolCallsJSON(parsedEventsJSON []byte) ([]ToolCallDelta, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(parsedEventsJSON)
	if err != nil {
		return nil, fmt.Errorf("decode: parsing parsed_events: %w", err)
	}

	var calls []ToolCallDelta
	for _, ev := range v.GetArray() {
		data := ev.Get("parsed_data")
		if data == nil {
			continue
		}
		scanToolCallsValue(data, &calls)
	}
	return calls, nil
}

func scanToolCallsValue(v *fastjson.Value, out *[]ToolCallDelta) {
	if v == nil || v.Type() != fastjson.TypeObject {
		return
	}
	obj := v.GetObject()
	if obj == nil {
		return
	}
	if tc := obj.Get("tool_call"); tc != nil {
		if call, ok := extractToolCallFastjson(tc); ok {
			*out = append(*out, call)
		}
	}
	obj.Visit(func(key []byte, val *fastjson.Value) {
		switch val.Type() {
		case fastjson.TypeObject:
			scanToolCallsValue(val, out)
		case fastjson.TypeArray:
			for _, item := range val.GetArray() {
				scanToolCallsValue(item, out)
			}
		}
	})
}

func extractToolCallFastjson(tc *fastjson.Value) (ToolCallDelta, bool) {
	obj := tc.GetObject()
	if obj == nil {
		return ToolCallDelta{}, false
	}
	id := string(tc.GetStringBytes("tool_call_id"))

	var found bool
	var name string
	var argsVal *fastjson.Value
	obj.Visit(func(key []byte, val *fastjson.Value) {
		if found || string(key) == "tool_call_id" || val.Type() != fastjson.TypeObject {
			return
		}
		found = true
		if string(key) == "call_mcp_tool" {
			name = string(val.GetStringBytes("name"))
			argsVal = val.Get("args")
			return
		}
		name = string(key)
		argsVal = val
	})
	if !found {
		return ToolCallDelta{}, false
	}
	argsJSON := "{}"
	if argsVal != nil {
		argsJSON = argsVal.String()
	}
	return ToolCallDelta{ID: id, Name: name, Arguments: argsJSON}, true
}
