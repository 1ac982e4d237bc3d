package stream

import "github.com/haasonsaas/relay/pkg/models"

// RawOutputs is the append-only, order-preserving evidence collected from
// one turn's full chunk sequence. Nothing here is deduplicated.
type RawOutputs struct {
	// Images holds every image file ID seen, repeats included.
	Images []string

	// Files holds structural file references from interpreter outputs.
	Files []models.ArtifactReference

	// Tools holds every tool invocation record collected, repeats
	// included.
	Tools []models.ToolInvocation

	// Approvals holds the pending approval requests delivered with the
	// stream, in arrival order.
	Approvals []models.ApprovalRequest
}

// Aggregate consumes the ordered chunk sequence of one turn. Each chunk is
// walked twice, once through its nested delta payload and once as a whole:
// delta chunks bury tool-call data under the payload while run records
// carry it directly in the body, and a chunk can do both.
func Aggregate(chunks []models.Chunk) RawOutputs {
	var raw RawOutputs
	for _, chunk := range chunks {
		if chunk.Approval != nil {
			raw.Approvals = append(raw.Approvals, *chunk.Approval)
		}
		if chunk.Delta != nil {
			raw.collectInterpreter(chunk.Delta.Interpreter)
			raw.Tools = append(raw.Tools, Collect(chunk.Delta.Payload)...)
		}
		raw.Tools = append(raw.Tools, Collect(chunk.Body)...)
	}
	return raw
}

// FinalText assembles the turn's rendered text from its delta fragments.
func FinalText(chunks []models.Chunk) string {
	var size int
	for _, chunk := range chunks {
		if chunk.Delta != nil {
			size += len(chunk.Delta.Text)
		}
	}
	buf := make([]byte, 0, size)
	for _, chunk := range chunks {
		if chunk.Delta != nil {
			buf = append(buf, chunk.Delta.Text...)
		}
	}
	return string(buf)
}

func (r *RawOutputs) collectInterpreter(d *models.InterpreterDelta) {
	if d == nil {
		return
	}
	for _, out := range d.Outputs {
		switch {
		case out.Image != nil && out.Image.FileID != "":
			r.Images = append(r.Images, out.Image.FileID)
		case out.FileID != "":
			r.Files = append(r.Files, models.ArtifactReference{
				FileID: out.FileID,
				Origin: models.OriginStructural,
			})
		}
	}
}
