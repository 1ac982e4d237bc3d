package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/haasonsaas/relay/internal/artifacts"
	"github.com/haasonsaas/relay/internal/orchestrator"
	"github.com/haasonsaas/relay/internal/runtime"
	"github.com/haasonsaas/relay/internal/sessions"
	"github.com/haasonsaas/relay/pkg/models"
)

type fakeSessions struct {
	session  *models.Session
	getErr   error
	resets   int
	lastTurn string
}

func (f *fakeSessions) GetOrCreate(ctx context.Context, id string) (*models.Session, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if id == "" {
		return &models.Session{ID: "fresh", ThreadID: "thread_fresh"}, nil
	}
	return f.session, nil
}

func (f *fakeSessions) Reset(ctx context.Context, id string) (*models.Session, error) {
	if f.session == nil || f.session.ID != id {
		return nil, sessions.ErrNotFound
	}
	f.resets++
	f.session.ThreadID = "thread_reset"
	f.session.Generation++
	return f.session, nil
}

func (f *fakeSessions) WithTurn(ctx context.Context, id string, fn func(*models.Session) error) error {
	f.lastTurn = id
	return fn(f.session)
}

type fakeRunner struct {
	result *orchestrator.TurnResult
	err    error
	query  string
	thread string
}

func (f *fakeRunner) RunTurn(ctx context.Context, query, threadID string) (*orchestrator.TurnResult, error) {
	f.query, f.thread = query, threadID
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestServer(sess SessionManager, runner TurnRunner) *Server {
	return NewServer(Config{}, sess, runner, nil, nil, nil)
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleChat(t *testing.T) {
	sess := &fakeSessions{session: &models.Session{ID: "s1", ThreadID: "t1"}}
	runner := &fakeRunner{result: &orchestrator.TurnResult{
		Response: "hello",
		Outputs: models.TurnOutputs{
			Tools:       []string{"pgsql:query_data"},
			ToolDetails: []models.ToolInvocation{{ID: "c1", Name: "query_data", ServerLabel: "pgsql"}},
			Files: []models.ArtifactReference{
				{FileID: "f1", FileName: "report.pdf", FileType: "pdf"},
			},
		},
	}}
	server := newTestServer(sess, runner)

	rec := postJSON(t, server.Handler(), "/api/chat", `{"message":"hi","session_id":"s1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}

	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.SessionID != "s1" || resp.Response != "hello" {
		t.Errorf("unexpected response: %#v", resp)
	}
	if len(resp.Files) != 1 || resp.Files[0].DownloadURL != "/api/download-file/f1?name=report.pdf" {
		t.Errorf("unexpected files: %#v", resp.Files)
	}
	if runner.query != "hi" || runner.thread != "t1" {
		t.Errorf("turn not routed to session thread: %q %q", runner.query, runner.thread)
	}
	if sess.lastTurn != "s1" {
		t.Errorf("turn lock not taken for session: %q", sess.lastTurn)
	}
}

func TestHandleChat_EmptyMessage(t *testing.T) {
	server := newTestServer(&fakeSessions{}, &fakeRunner{})
	rec := postJSON(t, server.Handler(), "/api/chat", `{"message":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandleChat_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"lock timeout", sessions.ErrLockTimeout, http.StatusConflict},
		{"agent unavailable", orchestrator.ErrAgentUnavailable, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := &fakeSessions{session: &models.Session{ID: "s1", ThreadID: "t1"}}
			server := newTestServer(sess, &fakeRunner{err: tt.err})
			rec := postJSON(t, server.Handler(), "/api/chat", `{"message":"hi","session_id":"s1"}`)
			if rec.Code != tt.want {
				t.Errorf("got %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHandleNewSession(t *testing.T) {
	server := newTestServer(&fakeSessions{}, &fakeRunner{})
	rec := postJSON(t, server.Handler(), "/api/new-session", `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var resp sessionResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.SessionID != "fresh" || resp.ThreadID != "thread_fresh" {
		t.Errorf("unexpected session: %#v", resp)
	}
}

func TestHandleClearSession(t *testing.T) {
	sess := &fakeSessions{session: &models.Session{ID: "s1", ThreadID: "t1", Generation: 1}}
	server := newTestServer(sess, &fakeRunner{})

	rec := postJSON(t, server.Handler(), "/api/clear-session", `{"session_id":"s1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if sess.resets != 1 {
		t.Errorf("expected one reset, got %d", sess.resets)
	}
	var resp sessionResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.ThreadID != "thread_reset" {
		t.Errorf("reset thread not returned: %#v", resp)
	}
}

func TestHandleClearSession_Unknown(t *testing.T) {
	server := newTestServer(&fakeSessions{}, &fakeRunner{})
	rec := postJSON(t, server.Handler(), "/api/clear-session", `{"session_id":"nope"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

type fakeFiles struct{ content string }

func (f *fakeFiles) GetMetadata(ctx context.Context, fileID string) (runtime.FileMetadata, error) {
	return runtime.FileMetadata{}, nil
}

func (f *fakeFiles) GetContent(ctx context.Context, fileID string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(f.content)), nil
}

func TestHandleDownloadFile(t *testing.T) {
	artifactSvc := artifacts.NewService(&fakeFiles{content: "%PDF-1.7 body"}, nil)
	server := NewServer(Config{}, &fakeSessions{}, &fakeRunner{}, artifactSvc, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/download-file/f1?name=report.pdf", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/pdf" {
		t.Errorf("unexpected content type %q", got)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "report.pdf") {
		t.Errorf("unexpected disposition %q", got)
	}
	if rec.Body.String() != "%PDF-1.7 body" {
		t.Errorf("body not streamed: %q", rec.Body.String())
	}
}

func TestHandleDownloadFile_NotConfigured(t *testing.T) {
	server := newTestServer(&fakeSessions{}, &fakeRunner{})
	req := httptest.NewRequest(http.MethodGet, "/api/download-file/f1", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	server := newTestServer(&fakeSessions{}, &fakeRunner{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}
