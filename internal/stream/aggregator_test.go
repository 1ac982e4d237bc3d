package stream

import (
	"testing"

	"github.com/haasonsaas/relay/pkg/models"
)

func TestAggregate_InterpreterOutputs(t *testing.T) {
	chunks := []models.Chunk{
		{
			Kind: models.ChunkDelta,
			Delta: &models.DeltaUpdate{
				Interpreter: &models.InterpreterDelta{
					Outputs: []models.InterpreterOutput{
						{Image: &models.ImageOutput{FileID: "img_1"}},
						{FileID: "file_1"},
						{Logs: "generated chart"},
					},
				},
			},
		},
		{
			Kind: models.ChunkDelta,
			Delta: &models.DeltaUpdate{
				Interpreter: &models.InterpreterDelta{
					Outputs: []models.InterpreterOutput{
						{Image: &models.ImageOutput{FileID: "img_1"}},
					},
				},
			},
		},
	}

	raw := Aggregate(chunks)
	if len(raw.Images) != 2 || raw.Images[0] != "img_1" || raw.Images[1] != "img_1" {
		t.Errorf("repeats must be kept for reconciliation: %v", raw.Images)
	}
	if len(raw.Files) != 1 || raw.Files[0].FileID != "file_1" {
		t.Errorf("unexpected files: %#v", raw.Files)
	}
	if raw.Files[0].Origin != models.OriginStructural {
		t.Errorf("interpreter files are structural, got %q", raw.Files[0].Origin)
	}
}

func TestAggregate_WalksPayloadAndBody(t *testing.T) {
	// A single chunk carrying tool data in both its delta payload and its
	// body must contribute from both paths; they are not alternatives.
	chunk := models.Chunk{
		Kind: models.ChunkDelta,
		Delta: &models.DeltaUpdate{
			Payload: map[string]any{
				"type": "mcp", "id": "call_a", "name": "query_data",
				"server_label": "pgsql", "arguments": "{}",
			},
		},
		Body: map[string]any{
			"step_details": map[string]any{
				"tool_calls": []any{
					map[string]any{
						"type": "mcp", "id": "call_b", "name": "get_databases",
						"server_label": "pgsql", "arguments": "{}",
					},
				},
			},
		},
	}

	raw := Aggregate([]models.Chunk{chunk})
	if len(raw.Tools) != 2 {
		t.Fatalf("expected records from both walks, got %d", len(raw.Tools))
	}
	if raw.Tools[0].ID != "call_a" || raw.Tools[1].ID != "call_b" {
		t.Errorf("unexpected order: %s, %s", raw.Tools[0].ID, raw.Tools[1].ID)
	}
}

func TestAggregate_RunRecordChunk(t *testing.T) {
	// Non-delta chunks can carry tool-call data not reachable via any
	// payload path.
	chunk := models.Chunk{
		Kind: models.ChunkRunRecord,
		Body: &models.RawEvent{
			Type: "thread.run.step.completed",
			Data: map[string]any{
				"tool_calls": []any{
					map[string]any{
						"type": "mcp", "id": "call_c", "name": "get_table_schemas",
						"server_label": "pgsql", "arguments": `{"schema":"sales"}`,
					},
				},
			},
		},
	}

	raw := Aggregate([]models.Chunk{chunk})
	if len(raw.Tools) != 1 || raw.Tools[0].ID != "call_c" {
		t.Fatalf("run record body not walked: %#v", raw.Tools)
	}
}

func TestAggregate_Approvals(t *testing.T) {
	chunks := []models.Chunk{
		{Kind: models.ChunkApproval, Approval: &models.ApprovalRequest{ID: "ap_1", ToolName: "drop_table"}},
		{Kind: models.ChunkApproval, Approval: &models.ApprovalRequest{ID: "ap_2", ToolName: "update_values"}},
	}

	raw := Aggregate(chunks)
	if len(raw.Approvals) != 2 || raw.Approvals[0].ID != "ap_1" || raw.Approvals[1].ID != "ap_2" {
		t.Errorf("approvals not collected in order: %#v", raw.Approvals)
	}
}

func TestFinalText(t *testing.T) {
	chunks := []models.Chunk{
		{Kind: models.ChunkDelta, Delta: &models.DeltaUpdate{Text: "Total revenue "}},
		{Kind: models.ChunkRunRecord},
		{Kind: models.ChunkDelta, Delta: &models.DeltaUpdate{Text: "was **$1,204.50**."}},
	}

	if got := FinalText(chunks); got != "Total revenue was **$1,204.50**." {
		t.Errorf("unexpected final text: %q", got)
	}
}
