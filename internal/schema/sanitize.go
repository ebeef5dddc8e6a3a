// Package schema sanitizes MCP tool input_schema objects forwarded from an
// OpenAI tool definition before they are embedded in an upstream packet.
// It enforces a minimal JSON Schema Draft-07 shape: non-empty values only,
// a type and description on every property, and special-cased `headers`
// handling so the upstream always receives at least one header property.
package schema

import "strings"

// Sanitize validates and cleans a single tool's input_schema, grounded on
// original_source/warp2protobuf/core/schema_sanitizer.py's
// _sanitize_json_schema.
func Sanitize(raw map[string]any) map[string]any {
	s, _ := deepClean(raw).(map[string]any)
	if s == nil {
		s = map[string]any{}
	}

	if _, hasProps := s["properties"]; hasProps {
		if _, isStr := s["type"].(string); !isStr {
			s["type"] = "object"
		}
	}

	if v, ok := s["$schema"]; ok {
		if _, isStr := v.(string); !isStr {
			delete(s, "$schema")
		}
	}
	if _, ok := s["$schema"]; !ok {
		s["$schema"] = "http://json-schema.org/draft-07/schema#"
	}

	properties, _ := s["properties"].(map[string]any)
	if properties != nil {
		fixed := make(map[string]any, len(properties))
		for name, sub := range properties {
			subMap, _ := sub.(map[string]any)
			if subMap == nil {
				subMap = map[string]any{}
			}
			fixed[name] = ensurePropertySchema(name, subMap)
		}
		s["properties"] = fixed
	}

	if req, ok := s["required"].([]any); ok {
		var cleaned []any
		if properties != nil {
			for _, r := range req {
				name, ok := r.(string)
				if !ok {
					continue
				}
				if _, present := properties[name]; present {
					cleaned = append(cleaned, name)
				}
			}
		}
		if len(cleaned) > 0 {
			s["required"] = cleaned
		} else {
			delete(s, "required")
		}
	}

	if ap, ok := s["additionalProperties"].(map[string]any); ok && len(ap) == 0 {
		delete(s, "additionalProperties")
	}

	return s
}

// ensurePropertySchema cleans one property's schema and fills in type and
// description defaults, with special handling for a property literally
// named "headers".
func ensurePropertySchema(name string, schema map[string]any) map[string]any {
	prop, _ := deepClean(schema).(map[string]any)
	if prop == nil {
		prop = map[string]any{}
	}

	if t, ok := prop["type"].(string); !ok || strings.TrimSpace(t) == "" {
		prop["type"] = inferTypeForProperty(name)
	}
	if d, ok := prop["description"].(string); !ok || strings.TrimSpace(d) == "" {
		prop["description"] = name + " parameter"
	}

	if strings.EqualFold(name, "headers") {
		prop["type"] = "object"
		headerProps, _ := prop["properties"].(map[string]any)
		if headerProps == nil {
			headerProps = map[string]any{}
		}
		if cleaned, ok := deepClean(headerProps).(map[string]any); ok {
			headerProps = cleaned
		}
		if len(headerProps) == 0 {
			headerProps = map[string]any{
				"user-agent": map[string]any{
					"type":        "string",
					"description": "User-Agent header for the request",
				},
			}
		} else {
			fixed := make(map[string]any, len(headerProps))
			for hk, hv := range headerProps {
				sub, _ := hv.(map[string]any)
				if sub == nil {
					sub = map[string]any{}
				}
				sub, _ = deepClean(sub).(map[string]any)
				if sub == nil {
					sub = map[string]any{}
				}
				if t, ok := sub["type"].(string); !ok || strings.TrimSpace(t) == "" {
					sub["type"] = "string"
				}
				if d, ok := sub["description"].(string); !ok || strings.TrimSpace(d) == "" {
					sub["description"] = hk + " header"
				}
				fixed[hk] = sub
			}
			headerProps = fixed
		}
		prop["properties"] = headerProps

		if req, ok := prop["required"].([]any); ok {
			var cleaned []any
			for _, r := range req {
				name, ok := r.(string)
				if !ok {
					continue
				}
				if _, present := headerProps[name]; present {
					cleaned = append(cleaned, name)
				}
			}
			if len(cleaned) > 0 {
				prop["required"] = cleaned
			} else {
				delete(prop, "required")
			}
		}
		if ap, ok := prop["additionalProperties"].(map[string]any); ok && len(ap) == 0 {
			delete(prop, "additionalProperties")
		}
	}

	return prop
}

func inferTypeForProperty(name string) string {
	switch strings.ToLower(name) {
	case "url", "uri", "href", "link":
		return "string"
	case "headers", "options", "params", "payload", "data":
		return "object"
	default:
		return "string"
	}
}

// isEmptyValue reports whether v is nil, a blank string, or an empty
// slice/map — the values deepClean strips out.
func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

// deepClean recursively strips empty strings/lists/maps and trims string
// values, mirroring _deep_clean.
func deepClean(v any) any {
	switch t := v.(type) {
	case map[string]any:
		cleaned := make(map[string]any, len(t))
		for k, vv := range t {
			cv := deepClean(vv)
			if isEmptyValue(cv) {
				continue
			}
			cleaned[k] = cv
		}
		return cleaned
	case []any:
		cleaned := make([]any, 0, len(t))
		for _, item := range t {
			ci := deepClean(item)
			if isEmptyValue(ci) {
				continue
			}
			cleaned = append(cleaned, ci)
		}
		return cleaned
	case string:
		return strings.TrimSpace(t)
	default:
		return v
	}
}
