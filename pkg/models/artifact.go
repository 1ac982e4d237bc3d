package models

// ArtifactOrigin records how an artifact reference was discovered.
type ArtifactOrigin string

const (
	// OriginStructural means the reference arrived as typed data in the
	// stream (a code-interpreter file output).
	OriginStructural ArtifactOrigin = "structural"

	// OriginTextScan means the reference was recovered from a sandbox
	// path embedded in the turn's final text. Text-scanned references
	// start without a file ID and are resolved by history backfill.
	OriginTextScan ArtifactOrigin = "text-scanned"
)

// ArtifactReference points at a file the remote agent produced during a
// turn. FileID is empty until resolved; text-scanned references may remain
// unresolved when history backfill finds no matching identifier.
type ArtifactReference struct {
	FileID      string         `json:"file_id"`
	FileName    string         `json:"file_name,omitempty"`
	FileType    string         `json:"file_type,omitempty"`
	SandboxPath string         `json:"sandbox_path,omitempty"`
	Origin      ArtifactOrigin `json:"origin"`
}

// Resolved reports whether the reference carries a usable file ID.
func (a ArtifactReference) Resolved() bool {
	return a.FileID != ""
}

// SameArtifact reports whether two references point at the same artifact:
// matching file names once resolved, or matching IDs when both are set.
func (a ArtifactReference) SameArtifact(b ArtifactReference) bool {
	if a.FileName != "" && a.FileName == b.FileName {
		return true
	}
	return a.FileID != "" && a.FileID == b.FileID
}

// TurnOutputs is the reconciled result of one turn. It is materialized
// exactly once, at the end of reconciliation, and not mutated afterwards.
//
// Invariant: len(Tools) == len(ToolDetails) and
// Tools[i] == ToolDetails[i].Label() for every i.
type TurnOutputs struct {
	// Images holds image file IDs. After reconciliation at most one
	// remains: when the agent re-renders a visualization the newest
	// replaces the prior one.
	Images []string `json:"images"`

	// Files holds the deduplicated artifact references.
	Files []ArtifactReference `json:"files"`

	// Tools is the derived "server:name" label list, index-aligned with
	// ToolDetails.
	Tools []string `json:"tools"`

	// ToolDetails is the deduplicated, order-preserved invocation list.
	ToolDetails []ToolInvocation `json:"tool_details"`
}

// Aligned reports whether the tool label list and detail list satisfy the
// index-wise correspondence invariant.
func (o TurnOutputs) Aligned() bool {
	if len(o.Tools) != len(o.ToolDetails) {
		return false
	}
	for i, d := range o.ToolDetails {
		if o.Tools[i] != d.Label() {
			return false
		}
	}
	return true
}
