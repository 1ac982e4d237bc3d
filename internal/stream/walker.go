// Package stream turns one turn's ordered chunk sequence into raw,
// unreconciled evidence: image IDs, file references, and tool invocation
// records. Deduplication happens later, in the reconcile package, which
// needs the full repetition pattern.
package stream

import (
	"encoding/json"
	"sort"

	"github.com/haasonsaas/relay/pkg/models"
)

// maxWalkDepth bounds recursion through wrapper objects that reference
// each other. Structures deeper than this are treated as noise, not
// errors: traversal stops and keeps whatever it collected above the bound.
const maxWalkDepth = 10

// Collect extracts tool invocation records from an event tree, in
// traversal order.
//
// The walk handles four node shapes: SDK wrappers exposing an internal
// data envelope (unwrapped, wrapper fields ignored), strongly typed
// tool-call records (terminal), generic mappings, and sequences. A generic
// mapping only counts as an invocation when it is tagged as a tool-call
// kind AND carries an id AND a non-empty name; server/tool configuration
// mappings share the kind tag but lack the other two, and must never be
// emitted. Emission never stops recursion for mappings: one mapping can be
// a hit and still contain nested hits under step_details or tool_calls.
func Collect(node any) []models.ToolInvocation {
	var c collector
	c.walk(node, 0)
	return c.records
}

type collector struct {
	records []models.ToolInvocation
}

func (c *collector) walk(node any, depth int) {
	if node == nil || depth > maxWalkDepth {
		return
	}

	if env, ok := node.(models.Enveloper); ok {
		c.walk(env.Envelope(), depth+1)
		return
	}

	switch v := node.(type) {
	case *models.ToolCallRecord:
		if v != nil {
			c.emitRecord(*v)
		}
		return
	case models.ToolCallRecord:
		c.emitRecord(v)
		return
	case map[string]any:
		c.walkMapping(v, depth)
		return
	case []any:
		for _, item := range v {
			c.walk(item, depth+1)
		}
		return
	}
}

func (c *collector) emitRecord(rec models.ToolCallRecord) {
	c.records = append(c.records, models.ToolInvocation{
		ID:              rec.ID,
		Name:            rec.Name,
		ServerLabel:     rec.ServerLabel,
		Arguments:       rec.Arguments,
		ArgumentsParsed: models.ParseArguments(rec.Arguments),
		Output:          rec.Output,
	})
}

func (c *collector) walkMapping(m map[string]any, depth int) {
	if isToolCallMapping(m) {
		c.records = append(c.records, invocationFromMapping(m))
	}

	if sd, ok := m["step_details"]; ok {
		c.walk(sd, depth+1)
	}
	if tc, ok := m["tool_calls"]; ok {
		c.walk(tc, depth+1)
	}
	for _, key := range sortedKeys(m) {
		if key == "step_details" || key == "tool_calls" {
			continue
		}
		c.walk(m[key], depth+1)
	}
}

// isToolCallMapping applies the triple-condition filter: kind tag, call
// identifier, and non-empty name must all be present. Anything less is a
// configuration entry, not an invocation.
func isToolCallMapping(m map[string]any) bool {
	if m["type"] != "mcp" {
		return false
	}
	if _, ok := m["id"]; !ok {
		return false
	}
	return stringField(m, "name") != ""
}

func invocationFromMapping(m map[string]any) models.ToolInvocation {
	inv := models.ToolInvocation{
		ID:          stringField(m, "id"),
		Name:        stringField(m, "name"),
		ServerLabel: stringField(m, "server_label"),
		Output:      stringField(m, "output"),
	}
	if inv.ServerLabel == "" {
		inv.ServerLabel = "unknown"
	}

	switch args := m["arguments"].(type) {
	case nil:
		inv.Arguments = "{}"
		inv.ArgumentsParsed = "{}"
	case string:
		inv.Arguments = args
		inv.ArgumentsParsed = models.ParseArguments(args)
	default:
		// Already-structured arguments: keep the parsed form and render
		// a canonical raw text so raw-equality dedup still applies.
		inv.ArgumentsParsed = args
		if data, err := json.Marshal(args); err == nil {
			inv.Arguments = string(data)
		}
	}
	return inv
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// sortedKeys gives the mapping walk a stable field order. Go maps do not
// preserve insertion order, and tool lists must come out deterministic.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
