package models

import "encoding/json"

// ToolInvocation records one call the remote agent made to a hosted tool,
// with its arguments and output.
//
// Identity for deduplication is the (Name, Arguments) pair using raw-text
// equality: two calls with byte-identical argument text are the same
// invocation even if their parsed forms differ in key order.
type ToolInvocation struct {
	// ID is the runtime-assigned call identifier, when present.
	ID string `json:"id,omitempty"`

	Name        string `json:"name"`
	ServerLabel string `json:"server"`

	// Arguments is the raw argument text as sent by the runtime.
	Arguments string `json:"arguments"`

	// ArgumentsParsed is the best-effort structured form of Arguments.
	// When parsing fails it holds the raw text instead.
	ArgumentsParsed any `json:"arguments_parsed"`

	Output string `json:"output"`
}

type toolKey struct {
	name string
	args string
}

// Label returns the derived "server:name" label for this invocation.
func (t ToolInvocation) Label() string {
	return t.ServerLabel + ":" + t.Name
}

func (t ToolInvocation) key() toolKey {
	return toolKey{name: t.Name, args: t.Arguments}
}

// DedupToolInvocations removes repeated invocations by (name, raw arguments)
// identity, first occurrence wins, order preserved.
func DedupToolInvocations(in []ToolInvocation) []ToolInvocation {
	seen := make(map[toolKey]bool, len(in))
	out := make([]ToolInvocation, 0, len(in))
	for _, inv := range in {
		k := inv.key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, inv)
	}
	return out
}

// ParseArguments returns the structured form of raw tool argument text,
// falling back to the raw text itself when it is not valid JSON.
func ParseArguments(raw string) any {
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return raw
	}
	return parsed
}
