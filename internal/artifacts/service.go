// Package artifacts resolves generated files into downloadable payloads:
// bytes from the runtime's file store, plus a trustworthy name and
// Content-Type even when the runtime reports neither.
package artifacts

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/haasonsaas/relay/internal/runtime"
)

// maxDownloadBytes bounds a single artifact download.
const maxDownloadBytes = 64 * 1024 * 1024

// Download is a fully resolved artifact payload.
type Download struct {
	FileName string
	MIMEType string
	Data     []byte
}

// Service fetches artifact content and resolves naming.
type Service struct {
	files  runtime.FileService
	logger *slog.Logger
}

// NewService creates a Service over the runtime's file API.
func NewService(files runtime.FileService, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{files: files, logger: logger}
}

// Fetch downloads a file and resolves its name and type. hintName, when
// non-empty, is the name reconciliation already attached to the artifact;
// otherwise the runtime's stored metadata is consulted, and failing that a
// name is synthesized from the sniffed content type. Metadata errors
// degrade to sniffing; only content errors fail the fetch.
func (s *Service) Fetch(ctx context.Context, fileID, hintName string) (*Download, error) {
	name := hintName
	if name == "" {
		meta, err := s.files.GetMetadata(ctx, fileID)
		if err != nil {
			s.logger.Warn("file metadata unavailable, falling back to content sniffing",
				"file_id", fileID, "error", err)
		} else {
			name = meta.Filename
		}
	}

	content, err := s.files.GetContent(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("fetch artifact %s: %w", fileID, err)
	}
	defer content.Close()

	data, err := io.ReadAll(io.LimitReader(content, maxDownloadBytes))
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", fileID, err)
	}

	sniffed := DetectExtension(data)
	name = resolveName(name, fileID, sniffed)

	return &Download{
		FileName: name,
		MIMEType: MIMEForExtension(extensionOf(name)),
		Data:     data,
	}, nil
}

// resolveName produces the final download name. A missing name is
// synthesized from the file ID; a name whose extension contradicts an
// authoritative magic-byte match is corrected.
func resolveName(name, fileID, sniffed string) string {
	if name == "" {
		return "download_" + fileID + "." + sniffed
	}
	ext := extensionOf(name)
	if ext == "" {
		return name + "." + sniffed
	}
	if authoritative(sniffed) && !strings.EqualFold(ext, sniffed) {
		return strings.TrimSuffix(name, path.Ext(name)) + "." + sniffed
	}
	return name
}

// authoritative reports whether a sniffed extension came from an exact
// magic-byte signature. The csv and bin guesses are heuristic and never
// override a stored name.
func authoritative(ext string) bool {
	switch ext {
	case "pptx", "docx", "xlsx", "pdf", "png", "jpg", "gif":
		return true
	}
	return false
}

func extensionOf(name string) string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")
}
