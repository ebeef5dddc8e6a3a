// Package models provides the static Warp model catalog exposed via
// GET /v1/models, grounded on
// original_source/warp2protobuf/config/models.py's get_warp_models() /
// get_all_unique_models() (SPEC_FULL.md §4.13).
package models

import "github.com/nextlevelbuilder/warpbridge/internal/openaiapi"

type entry struct {
	id       string
	category string
}

// catalog lists every (id, category) pair from the agent/planning/coding
// tables, in the original's per-category order. Ids repeat across
// categories; Catalog dedupes them, first occurrence wins.
var catalog = []entry{
	{"auto", "agent"}, {"warp-basic", "agent"}, {"gpt-5", "agent"},
	{"claude-4-sonnet", "agent"}, {"claude-4-opus", "agent"},
	{"claude-4.1-opus", "agent"}, {"gpt-4o", "agent"}, {"gpt-4.1", "agent"},
	{"o4-mini", "agent"}, {"o3", "agent"}, {"gemini-2.5-pro", "agent"},

	{"warp-basic", "planning"}, {"gpt-5 (high reasoning)", "planning"},
	{"claude-4-opus", "planning"}, {"claude-4.1-opus", "planning"},
	{"gpt-4.1", "planning"}, {"o4-mini", "planning"}, {"o3", "planning"},

	{"auto", "coding"}, {"warp-basic", "coding"}, {"gpt-5", "coding"},
	{"claude-4-sonnet", "coding"}, {"claude-4-opus", "coding"},
	{"claude-4.1-opus", "coding"}, {"gpt-4o", "coding"}, {"gpt-4.1", "coding"},
	{"o4-mini", "coding"}, {"o3", "coding"}, {"gemini-2.5-pro", "coding"},
}

// Catalog returns the unified, deduplicated model list for GET /v1/models,
// insertion-ordered (agent, then planning, then coding).
func Catalog() []openaiapi.ModelInfo {
	seen := make(map[string]bool, len(catalog))
	out := make([]openaiapi.ModelInfo, 0, len(catalog))
	for _, e := range catalog {
		if seen[e.id] {
			continue
		}
		seen[e.id] = true
		out = append(out, openaiapi.ModelInfo{ID: e.id, Object: "model", OwnedBy: "warp"})
	}
	return out
}
