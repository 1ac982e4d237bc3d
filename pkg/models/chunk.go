package models

// ChunkKind tags the shape of one streamed event chunk.
type ChunkKind string

const (
	// ChunkDelta is an incremental update carrying text and/or
	// code-interpreter output produced while a run step executes.
	ChunkDelta ChunkKind = "delta"

	// ChunkRunRecord is a full run or run-step record (completed steps,
	// run snapshots). Tool-call data can appear anywhere inside it.
	ChunkRunRecord ChunkKind = "run_record"

	// ChunkLog is diagnostic output from the remote runtime.
	ChunkLog ChunkKind = "log"

	// ChunkApproval is a mid-turn request for user authorization of a
	// tool call.
	ChunkApproval ChunkKind = "approval"
)

// Chunk is one unit of a streamed turn response. It is immutable once
// received and owned by the turn that produced it.
//
// The same logical event can surface at different nesting depths depending
// on which kind carries it: delta chunks bury tool-call data under Delta's
// payload, while run records carry it directly in Body. Consumers must
// inspect both.
type Chunk struct {
	Kind ChunkKind

	// Delta is set for ChunkDelta chunks.
	Delta *DeltaUpdate

	// Approval is set for ChunkApproval chunks.
	Approval *ApprovalRequest

	// Body is the chunk's full event tree: generic mappings, sequences,
	// typed tool-call records, or SDK wrapper nodes. Nil for chunks whose
	// content lives entirely under Delta.
	Body any
}

// DeltaUpdate is the structural part of a delta chunk.
type DeltaUpdate struct {
	// Text is the text fragment appended to the turn's rendered response.
	Text string

	// Interpreter carries code-interpreter detail when the delta belongs
	// to a code-execution step.
	Interpreter *InterpreterDelta

	// Payload is the delta's nested event tree. Tool-call records inside
	// delta chunks are only reachable through here.
	Payload any
}

// InterpreterDelta is a code-interpreter step delta.
type InterpreterDelta struct {
	Input   string
	Outputs []InterpreterOutput
}

// InterpreterOutput is one output item of a code-interpreter step. Exactly
// one of the fields is meaningful per item; the runtime does not tag which,
// so consumers check Image first, then FileID, then Logs.
type InterpreterOutput struct {
	// Image is set for rendered image outputs.
	Image *ImageOutput

	// FileID is set for generic outputs that expose a stored file.
	FileID string

	// Logs holds stdout/stderr text emitted by the interpreter.
	Logs string
}

// ImageOutput references an image rendered by the code interpreter.
type ImageOutput struct {
	FileID string
}

// ToolCallRecord is a strongly typed tool invocation event as emitted by
// the remote runtime for hosted tool servers.
type ToolCallRecord struct {
	ID          string
	Name        string
	ServerLabel string
	Arguments   string
	Output      string
}

// Enveloper is the unwrap capability implemented by SDK-style wrapper
// nodes that carry their real content in an internal data envelope.
// Traversals recurse into the envelope instead of the wrapper itself.
type Enveloper interface {
	Envelope() any
}

// RawEvent wraps an event body the stream decoder did not recognize as a
// typed shape. It satisfies Enveloper so traversals reach the underlying
// mapping.
type RawEvent struct {
	Type string
	Data map[string]any
}

// Envelope returns the wrapped event mapping.
func (e *RawEvent) Envelope() any {
	if e == nil {
		return nil
	}
	return e.Data
}
