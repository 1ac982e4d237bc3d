// Package runtime defines the interfaces to the remote conversational-agent
// runtime and its side channels (conversation history, file storage), plus
// concrete clients for an Azure-agents-shaped service.
package runtime

import (
	"context"
	"io"

	"github.com/haasonsaas/relay/pkg/models"
)

// Input is one submission item for a turn: either a user query or an
// approval response. Approval resubmission uses the same call shape as a
// fresh query.
type Input struct {
	Text     string
	Approval *models.ApprovalResponse
}

// Query builds a plain text input.
func Query(text string) Input {
	return Input{Text: text}
}

// Approve builds an approval-response input.
func Approve(resp models.ApprovalResponse) Input {
	return Input{Approval: &resp}
}

// Stream is one turn's ordered chunk stream. Chunks are immutable once
// received; the stream is consumed exactly once.
type Stream interface {
	// Recv returns the next chunk, or io.EOF once the stream completes.
	Recv() (models.Chunk, error)

	// Close releases the stream's underlying connection. Safe to call
	// after Recv returned io.EOF.
	Close() error
}

// Client is the remote agent runtime.
type Client interface {
	// CreateThread starts a new conversation thread and returns its
	// identifier.
	CreateThread(ctx context.Context) (string, error)

	// RunStream submits inputs to the thread and returns the resulting
	// chunk stream. store controls whether the runtime persists the
	// turn's messages to the thread.
	RunStream(ctx context.Context, threadID string, inputs []Input, store bool) (Stream, error)
}

// FileService is the artifact storage behind the runtime's tools.
type FileService interface {
	// GetMetadata returns what the store knows about a file. The
	// filename may be empty.
	GetMetadata(ctx context.Context, fileID string) (FileMetadata, error)

	// GetContent opens the file's byte stream. The caller closes it.
	GetContent(ctx context.Context, fileID string) (io.ReadCloser, error)
}

// FileMetadata is the subset of stored file metadata relay consumes.
type FileMetadata struct {
	Filename string
}

// DrainStream reads a stream to completion, returning its chunks in
// arrival order. The stream is closed regardless of outcome.
func DrainStream(s Stream) ([]models.Chunk, error) {
	defer s.Close()
	var chunks []models.Chunk
	for {
		chunk, err := s.Recv()
		if err == io.EOF {
			return chunks, nil
		}
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
}
