package runtime

import (
	"context"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/relay/pkg/models"
)

// OpenAIAdapter backs the history and file side channels with the
// assistants-compatible API exposed by the same service that runs the
// agent. Identifier backfill and artifact downloads go through here; the
// turn stream itself does not.
type OpenAIAdapter struct {
	client *openai.Client
}

// NewOpenAIAdapter creates an adapter. baseURL selects an Azure-hosted
// deployment; when empty the default OpenAI endpoint is used.
func NewOpenAIAdapter(apiKey, baseURL string) *OpenAIAdapter {
	if baseURL != "" {
		return &OpenAIAdapter{client: openai.NewClientWithConfig(openai.DefaultAzureConfig(apiKey, baseURL))}
	}
	return &OpenAIAdapter{client: openai.NewClient(apiKey)}
}

// ListMessages returns the thread's messages in the service's traversal
// order (newest first), mapped down to the fields backfill consumes.
func (a *OpenAIAdapter) ListMessages(ctx context.Context, threadID string) ([]models.ThreadMessage, error) {
	list, err := a.client.ListMessage(ctx, threadID, nil, nil, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list thread messages: %w", err)
	}
	return threadMessages(list.Messages), nil
}

// threadMessages maps API messages down to the history model. This API
// surfaces generated files through the message-level ID list only, so the
// model's attachment list stays empty here.
func threadMessages(msgs []openai.Message) []models.ThreadMessage {
	messages := make([]models.ThreadMessage, 0, len(msgs))
	for _, msg := range msgs {
		out := models.ThreadMessage{Role: msg.Role}
		out.FileIDs = append(out.FileIDs, msg.FileIds...)
		messages = append(messages, out)
	}
	return messages
}

// GetMetadata returns the stored filename for a file, when the service
// knows it.
func (a *OpenAIAdapter) GetMetadata(ctx context.Context, fileID string) (FileMetadata, error) {
	file, err := a.client.GetFile(ctx, fileID)
	if err != nil {
		return FileMetadata{}, fmt.Errorf("get file %s: %w", fileID, err)
	}
	return FileMetadata{Filename: file.FileName}, nil
}

// GetContent opens the file's byte stream.
func (a *OpenAIAdapter) GetContent(ctx context.Context, fileID string) (io.ReadCloser, error) {
	content, err := a.client.GetFileContent(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("get file content %s: %w", fileID, err)
	}
	return content, nil
}
