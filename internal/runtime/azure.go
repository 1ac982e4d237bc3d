package runtime

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/relay/pkg/models"
)

// AzureConfig holds configuration for the Azure agent runtime client.
type AzureConfig struct {
	// Endpoint is the agent service endpoint (required).
	// Format: https://{resource-name}.services.ai.azure.com/api/projects/{project}
	Endpoint string

	// APIKey authenticates requests (required).
	APIKey string

	// APIVersion is the API version query parameter (default: 2025-05-01).
	APIVersion string

	// AgentID is the pre-provisioned agent to run (required).
	AgentID string

	// MaxRetries is the maximum connect attempts for transient failures
	// (default: 3). Only the initial request is retried, never a stream
	// that already delivered chunks.
	MaxRetries int

	// RetryDelay is the base delay between retries (default: 1s).
	RetryDelay time.Duration
}

// AzureClient implements Client against an Azure-agents-shaped HTTP/SSE
// service. It is safe for concurrent use; each RunStream call owns an
// independent response stream.
type AzureClient struct {
	config     AzureConfig
	httpClient *http.Client
}

// NewAzureClient creates a runtime client. Returns an error when required
// configuration is missing.
func NewAzureClient(config AzureConfig) (*AzureClient, error) {
	if strings.TrimSpace(config.Endpoint) == "" {
		return nil, fmt.Errorf("azure runtime: endpoint is required")
	}
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, fmt.Errorf("azure runtime: api key is required")
	}
	if strings.TrimSpace(config.AgentID) == "" {
		return nil, fmt.Errorf("azure runtime: agent id is required")
	}
	if config.APIVersion == "" {
		config.APIVersion = "2025-05-01"
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	return &AzureClient{
		config:     config,
		httpClient: &http.Client{},
	}, nil
}

func (c *AzureClient) url(path string) string {
	return strings.TrimRight(c.config.Endpoint, "/") + path + "?api-version=" + c.config.APIVersion
}

func (c *AzureClient) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("api-key", c.config.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// CreateThread starts a new conversation thread.
func (c *AzureClient) CreateThread(ctx context.Context) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/threads", map[string]any{})
	if err != nil {
		return "", err
	}
	resp, err := c.doWithRetry(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", c.statusError(resp)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("azure runtime: decode thread: %w", err)
	}
	return created.ID, nil
}

// RunStream submits inputs to the thread and opens the turn's SSE stream.
func (c *AzureClient) RunStream(ctx context.Context, threadID string, inputs []Input, store bool) (Stream, error) {
	body := map[string]any{
		"assistant_id": c.config.AgentID,
		"stream":       true,
		"store":        store,
	}
	var messages []map[string]any
	var approvals []map[string]any
	for _, in := range inputs {
		if in.Approval != nil {
			approvals = append(approvals, map[string]any{
				"id":      in.Approval.RequestID,
				"approve": in.Approval.Approved,
			})
			continue
		}
		messages = append(messages, map[string]any{
			"role":    "user",
			"content": in.Text,
		})
	}
	if len(messages) > 0 {
		body["additional_messages"] = messages
	}
	if len(approvals) > 0 {
		body["tool_approvals"] = approvals
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/threads/"+threadID+"/runs", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.doWithRetry(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.statusError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &sseStream{body: resp.Body, scanner: scanner}, nil
}

// doWithRetry retries the initial request on transport errors and 5xx/429
// responses with linear backoff. The body is rewound between attempts via
// the request's GetBody.
func (c *AzureClient) doWithRetry(req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := 1; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 1 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			req.Body = body
		}
		resp, err := c.httpClient.Do(req)
		if err == nil && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = c.statusError(resp)
			resp.Body.Close()
		}
		if attempt < c.config.MaxRetries {
			select {
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			case <-req.Context().Done():
				return nil, req.Context().Err()
			}
		}
	}
	return nil, lastErr
}

func (c *AzureClient) statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = resp.Status
	}
	return fmt.Errorf("azure runtime: %s: %s", resp.Status, msg)
}

// sseStream decodes server-sent events into chunks.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	pending []models.Chunk // decoded but not yet delivered
	done    bool
}

func (s *sseStream) Close() error {
	return s.body.Close()
}

// Recv parses the next SSE event. Events the decoder does not recognize
// become run-record chunks wrapped in RawEvent so downstream traversal
// still reaches their content. One wire event can decode to several
// chunks (a requires_action carrying multiple approvals); extras are
// buffered and delivered in order.
func (s *sseStream) Recv() (models.Chunk, error) {
	if len(s.pending) > 0 {
		chunk := s.pending[0]
		s.pending = s.pending[1:]
		return chunk, nil
	}
	for !s.done {
		event, data, err := s.nextEvent()
		if err != nil {
			return models.Chunk{}, err
		}
		if event == "done" || data == "[DONE]" {
			s.done = true
			break
		}
		chunks := decodeChunks(event, data)
		if len(chunks) == 0 {
			continue
		}
		s.pending = chunks[1:]
		return chunks[0], nil
	}
	return models.Chunk{}, io.EOF
}

// nextEvent reads one "event:"/"data:" pair, tolerating comment lines and
// multi-line data per the SSE framing rules.
func (s *sseStream) nextEvent() (event, data string, err error) {
	var dataLines []string
	for s.scanner.Scan() {
		line := s.scanner.Text()
		switch {
		case line == "":
			if event != "" || len(dataLines) > 0 {
				return event, strings.Join(dataLines, "\n"), nil
			}
		case strings.HasPrefix(line, ":"):
			// comment/keep-alive
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := s.scanner.Err(); err != nil {
		return "", "", err
	}
	if event != "" || len(dataLines) > 0 {
		return event, strings.Join(dataLines, "\n"), nil
	}
	return "", "", io.EOF
}

// decodeChunks maps one wire event onto the chunk model.
func decodeChunks(event, data string) []models.Chunk {
	var payload map[string]any
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return nil
	}

	switch event {
	case "thread.message.delta":
		return []models.Chunk{{
			Kind:  models.ChunkDelta,
			Delta: &models.DeltaUpdate{Text: deltaText(payload)},
		}}

	case "thread.run.step.delta":
		delta := &models.DeltaUpdate{
			Interpreter: interpreterDelta(payload),
			Payload:     nested(payload, "delta", "step_details"),
		}
		return []models.Chunk{{Kind: models.ChunkDelta, Delta: delta}}

	case "thread.run.requires_action":
		reqs := approvalRequests(payload)
		chunks := make([]models.Chunk, 0, len(reqs))
		for i := range reqs {
			chunks = append(chunks, models.Chunk{
				Kind:     models.ChunkApproval,
				Approval: &reqs[i],
			})
		}
		return chunks

	default:
		return []models.Chunk{{
			Kind: models.ChunkRunRecord,
			Body: &models.RawEvent{Type: event, Data: payload},
		}}
	}
}

// deltaText pulls the text fragment out of a message delta.
func deltaText(payload map[string]any) string {
	content, _ := nested(payload, "delta", "content").([]any)
	var b strings.Builder
	for _, item := range content {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if text, ok := m["text"].(map[string]any); ok {
			if v, ok := text["value"].(string); ok {
				b.WriteString(v)
			}
		}
	}
	return b.String()
}

// interpreterDelta extracts code-interpreter detail from a step delta,
// when present.
func interpreterDelta(payload map[string]any) *models.InterpreterDelta {
	ci, ok := nested(payload, "delta", "step_details", "code_interpreter").(map[string]any)
	if !ok {
		return nil
	}
	delta := &models.InterpreterDelta{}
	if input, ok := ci["input"].(string); ok {
		delta.Input = input
	}
	outputs, _ := ci["outputs"].([]any)
	for _, item := range outputs {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		var out models.InterpreterOutput
		if img, ok := m["image"].(map[string]any); ok {
			if id, ok := img["file_id"].(string); ok {
				out.Image = &models.ImageOutput{FileID: id}
			}
		}
		if id, ok := m["file_id"].(string); ok {
			out.FileID = id
		}
		if logs, ok := m["logs"].(string); ok {
			out.Logs = logs
		}
		delta.Outputs = append(delta.Outputs, out)
	}
	if delta.Input == "" && len(delta.Outputs) == 0 {
		return nil
	}
	return delta
}

// approvalRequests extracts pending tool approvals from a requires_action
// event.
func approvalRequests(payload map[string]any) []models.ApprovalRequest {
	calls, _ := nested(payload, "required_action", "submit_tool_approval", "tool_calls").([]any)
	var reqs []models.ApprovalRequest
	for _, item := range calls {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		req := models.ApprovalRequest{}
		if id, ok := m["id"].(string); ok {
			req.ID = id
		}
		if name, ok := m["name"].(string); ok {
			req.ToolName = name
		}
		if args, ok := m["arguments"].(string); ok {
			req.Arguments = args
		}
		if req.ID != "" {
			reqs = append(reqs, req)
		}
	}
	return reqs
}

// nested walks a JSON object path, returning nil when any hop is missing.
func nested(m map[string]any, path ...string) any {
	var current any = m
	for _, key := range path {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = obj[key]
	}
	return current
}
