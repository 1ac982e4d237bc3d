package artifacts

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/haasonsaas/relay/internal/runtime"
)

type fakeFiles struct {
	metadata map[string]string
	content  map[string]string
	metaErr  error
	bodyErr  error
}

func (f *fakeFiles) GetMetadata(ctx context.Context, fileID string) (runtime.FileMetadata, error) {
	if f.metaErr != nil {
		return runtime.FileMetadata{}, f.metaErr
	}
	return runtime.FileMetadata{Filename: f.metadata[fileID]}, nil
}

func (f *fakeFiles) GetContent(ctx context.Context, fileID string) (io.ReadCloser, error) {
	if f.bodyErr != nil {
		return nil, f.bodyErr
	}
	return io.NopCloser(strings.NewReader(f.content[fileID])), nil
}

func TestFetch_UsesHintName(t *testing.T) {
	files := &fakeFiles{content: map[string]string{"f1": "%PDF-1.7 payload"}}
	svc := NewService(files, nil)

	dl, err := svc.Fetch(context.Background(), "f1", "report.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dl.FileName != "report.pdf" {
		t.Errorf("hint name must win: %q", dl.FileName)
	}
	if dl.MIMEType != "application/pdf" {
		t.Errorf("unexpected mime: %q", dl.MIMEType)
	}
}

func TestFetch_FallsBackToMetadata(t *testing.T) {
	files := &fakeFiles{
		metadata: map[string]string{"f1": "stored.csv"},
		content:  map[string]string{"f1": "a,b\n1,2\n"},
	}
	svc := NewService(files, nil)

	dl, err := svc.Fetch(context.Background(), "f1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dl.FileName != "stored.csv" || dl.MIMEType != "text/csv" {
		t.Errorf("metadata name not used: %q (%q)", dl.FileName, dl.MIMEType)
	}
}

func TestFetch_SynthesizesNameFromContent(t *testing.T) {
	files := &fakeFiles{
		metaErr: errors.New("metadata service down"),
		content: map[string]string{"f1": "\x89PNG\r\n\x1a\npixels"},
	}
	svc := NewService(files, nil)

	dl, err := svc.Fetch(context.Background(), "f1", "")
	if err != nil {
		t.Fatalf("metadata failure must degrade, got %v", err)
	}
	if dl.FileName != "download_f1.png" || dl.MIMEType != "image/png" {
		t.Errorf("sniffed name wrong: %q (%q)", dl.FileName, dl.MIMEType)
	}
}

func TestFetch_CorrectsWrongExtension(t *testing.T) {
	files := &fakeFiles{content: map[string]string{"f1": "%PDF-1.7 payload"}}
	svc := NewService(files, nil)

	dl, err := svc.Fetch(context.Background(), "f1", "export.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dl.FileName != "export.pdf" {
		t.Errorf("extension not corrected: %q", dl.FileName)
	}
}

func TestFetch_HeuristicNeverOverridesName(t *testing.T) {
	files := &fakeFiles{content: map[string]string{"f1": "a,b\n1,2\n"}}
	svc := NewService(files, nil)

	dl, err := svc.Fetch(context.Background(), "f1", "notes.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dl.FileName != "notes.txt" {
		t.Errorf("csv heuristic must not rename: %q", dl.FileName)
	}
}

func TestFetch_ContentError(t *testing.T) {
	wantErr := errors.New("file store down")
	svc := NewService(&fakeFiles{bodyErr: wantErr}, nil)

	if _, err := svc.Fetch(context.Background(), "f1", "x.pdf"); !errors.Is(err, wantErr) {
		t.Errorf("content failure must propagate, got %v", err)
	}
}

func TestDetectExtension(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"pptx", "PK\x03\x04....ppt/slides/slide1.xml", "pptx"},
		{"docx", "PK\x03\x04....word/document.xml", "docx"},
		{"xlsx", "PK\x03\x04....xl/workbook.xml", "xlsx"},
		{"plain zip", "PK\x03\x04....data/archive.txt", "zip"},
		{"pdf", "%PDF-1.4", "pdf"},
		{"png", "\x89PNG\r\n\x1a\n", "png"},
		{"jpg", "\xff\xd8\xff\xe0", "jpg"},
		{"gif", "GIF89a", "gif"},
		{"csv", "name,score\nalice,10\n", "csv"},
		{"utf8 csv", "name,ville\nZoé,Besançon\n東京,tōkyō\n", "csv"},
		{"text without commas", "just some words\n", "bin"},
		{"binary", "\x00\x01\x02\x03", "bin"},
		{"invalid encoding", "a,b\n\xff\xfe\x00\x01\n", "bin"},
		{"empty", "", "bin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectExtension([]byte(tt.data)); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMIMEForExtension(t *testing.T) {
	if got := MIMEForExtension("XLSX"); got != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Errorf("lookup must be case-insensitive, got %q", got)
	}
	if got := MIMEForExtension("weird"); got != "application/octet-stream" {
		t.Errorf("unknown extension must default, got %q", got)
	}
}
