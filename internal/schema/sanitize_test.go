package schema

import "testing"

func TestSanitize_FillsTypeAndDescription(t *testing.T) {
	in := map[string]any{
		"properties": map[string]any{
			"url":   map[string]any{},
			"count": map[string]any{"type": "integer"},
		},
	}
	out := Sanitize(in)

	props := out["properties"].(map[string]any)
	url := props["url"].(map[string]any)
	if url["type"] != "string" {
		t.Errorf("url type = %v, want string", url["type"])
	}
	if url["description"] != "url parameter" {
		t.Errorf("url description = %v, want %q", url["description"], "url parameter")
	}

	count := props["count"].(map[string]any)
	if count["type"] != "integer" {
		t.Errorf("count type = %v, want integer (should not be overwritten)", count["type"])
	}
	if count["description"] != "count parameter" {
		t.Errorf("count description = %v, want filled default", count["description"])
	}
}

func TestSanitize_HeadersDefaultsToUserAgent(t *testing.T) {
	in := map[string]any{
		"properties": map[string]any{
			"headers": map[string]any{},
		},
	}
	out := Sanitize(in)

	headers := out["properties"].(map[string]any)["headers"].(map[string]any)
	if headers["type"] != "object" {
		t.Errorf("headers type = %v, want object", headers["type"])
	}
	hp := headers["properties"].(map[string]any)
	if _, ok := hp["user-agent"]; !ok {
		t.Fatalf("expected user-agent header property to be injected, got %v", hp)
	}
}

func TestSanitize_HeadersPreservesExistingProperties(t *testing.T) {
	in := map[string]any{
		"properties": map[string]any{
			"headers": map[string]any{
				"properties": map[string]any{
					"authorization": map[string]any{},
				},
			},
		},
	}
	out := Sanitize(in)

	hp := out["properties"].(map[string]any)["headers"].(map[string]any)["properties"].(map[string]any)
	auth := hp["authorization"].(map[string]any)
	if auth["type"] != "string" {
		t.Errorf("authorization type = %v, want string", auth["type"])
	}
	if _, stillThere := hp["user-agent"]; stillThere {
		t.Errorf("user-agent should not be injected when other headers already exist")
	}
}

func TestSanitize_DropsEmptyRequiredAndAdditionalProperties(t *testing.T) {
	in := map[string]any{
		"properties":           map[string]any{"name": map[string]any{"type": "string"}},
		"required":             []any{"name", "missing"},
		"additionalProperties": map[string]any{},
	}
	out := Sanitize(in)

	req, ok := out["required"].([]any)
	if !ok || len(req) != 1 || req[0] != "name" {
		t.Errorf("required = %v, want [name]", out["required"])
	}
	if _, ok := out["additionalProperties"]; ok {
		t.Errorf("expected empty additionalProperties to be dropped")
	}
}

func TestSanitize_SetsDefaultSchemaVersion(t *testing.T) {
	out := Sanitize(map[string]any{"properties": map[string]any{}})
	if out["$schema"] != "http://json-schema.org/draft-07/schema#" {
		t.Errorf("$schema = %v, want draft-07 default", out["$schema"])
	}
}

func TestSanitize_InferObjectTypeWhenPropertiesPresent(t *testing.T) {
	out := Sanitize(map[string]any{"properties": map[string]any{"a": map[string]any{"type": "string"}}})
	if out["type"] != "object" {
		t.Errorf("type = %v, want object", out["type"])
	}
}
