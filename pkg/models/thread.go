package models

// ThreadMessage is one persisted conversation message as returned by the
// remote history store. Only the fields identifier backfill consumes are
// modeled.
type ThreadMessage struct {
	Role        string              `json:"role"`
	Attachments []MessageAttachment `json:"attachments,omitempty"`
	FileIDs     []string            `json:"file_ids,omitempty"`
}

// MessageAttachment is a file attached to a thread message.
type MessageAttachment struct {
	FileID string `json:"file_id"`
}

// ApprovalRequest is a mid-turn request for user authorization of a tool
// call, delivered as its own chunk once the stream ends with pending input.
type ApprovalRequest struct {
	ID        string `json:"id"`
	ToolName  string `json:"tool_name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// Respond builds the caller's answer to an approval request.
func (r ApprovalRequest) Respond(approve bool) ApprovalResponse {
	return ApprovalResponse{RequestID: r.ID, Approved: approve}
}

// ApprovalResponse answers a pending ApprovalRequest. It is resubmitted to
// the runtime with the same call shape as a fresh query.
type ApprovalResponse struct {
	RequestID string `json:"request_id"`
	Approved  bool   `json:"approved"`
}
