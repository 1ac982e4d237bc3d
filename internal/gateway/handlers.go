package gateway

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/haasonsaas/relay/internal/bridge"
	"github.com/haasonsaas/relay/internal/orchestrator"
	"github.com/haasonsaas/relay/internal/sessions"
	"github.com/haasonsaas/relay/pkg/models"
)

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

type fileInfo struct {
	FileID      string `json:"file_id"`
	FileName    string `json:"file_name"`
	FileType    string `json:"file_type,omitempty"`
	DownloadURL string `json:"download_url"`
}

type chatResponse struct {
	SessionID   string                  `json:"session_id"`
	Response    string                  `json:"response"`
	Images      []string                `json:"images,omitempty"`
	Files       []fileInfo              `json:"files,omitempty"`
	Tools       []string                `json:"tools,omitempty"`
	ToolDetails []models.ToolInvocation `json:"tool_details,omitempty"`
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
	ThreadID  string `json:"thread_id"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		s.jsonError(w, http.StatusBadRequest, "message is required")
		return
	}

	ctx := r.Context()
	session, err := s.sessions.GetOrCreate(ctx, req.SessionID)
	if err != nil {
		s.serveError(w, fmt.Errorf("session: %w", err))
		return
	}

	var result *orchestrator.TurnResult
	err = s.sessions.WithTurn(ctx, session.ID, func(session *models.Session) error {
		var turnErr error
		result, turnErr = s.runner.RunTurn(ctx, req.Message, session.ThreadID)
		return turnErr
	})
	if err != nil {
		s.serveError(w, err)
		return
	}

	resp := chatResponse{
		SessionID:   session.ID,
		Response:    result.Response,
		Tools:       result.Outputs.Tools,
		ToolDetails: result.Outputs.ToolDetails,
	}
	resp.Images = s.inlineImages(r, result.Outputs.Images)
	for _, file := range result.Outputs.Files {
		resp.Files = append(resp.Files, fileInfo{
			FileID:      file.FileID,
			FileName:    file.FileName,
			FileType:    file.FileType,
			DownloadURL: downloadURL(file),
		})
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// inlineImages fetches generated images and embeds them as data URLs so
// the client renders them without a second round trip. A failed fetch
// drops that image and keeps the response.
func (s *Server) inlineImages(r *http.Request, fileIDs []string) []string {
	if s.artifacts == nil {
		return nil
	}
	var out []string
	for _, fileID := range fileIDs {
		dl, err := s.artifacts.Fetch(r.Context(), fileID, "")
		if err != nil {
			s.logger.Warn("image fetch failed", "file_id", fileID, "error", err)
			continue
		}
		encoded := base64.StdEncoding.EncodeToString(dl.Data)
		out = append(out, "data:"+dl.MIMEType+";base64,"+encoded)
	}
	return out
}

func downloadURL(file models.ArtifactReference) string {
	u := "/api/download-file/" + file.FileID
	if file.FileName != "" {
		u += "?name=" + url.QueryEscape(file.FileName)
	}
	return u
}

func (s *Server) handleNewSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.GetOrCreate(r.Context(), "")
	if err != nil {
		s.serveError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sessionResponse{SessionID: session.ID, ThreadID: session.ThreadID})
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		s.jsonError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	session, err := s.sessions.Reset(r.Context(), req.SessionID)
	if err != nil {
		s.serveError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sessionResponse{SessionID: session.ID, ThreadID: session.ThreadID})
}

func (s *Server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	if s.artifacts == nil {
		s.jsonError(w, http.StatusNotFound, "file downloads are not configured")
		return
	}
	fileID := r.PathValue("id")
	if fileID == "" {
		s.jsonError(w, http.StatusBadRequest, "file id is required")
		return
	}

	dl, err := s.artifacts.Fetch(r.Context(), fileID, r.URL.Query().Get("name"))
	if err != nil {
		s.serveError(w, err)
		return
	}

	w.Header().Set("Content-Type", dl.MIMEType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dl.FileName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(dl.Data)
}

// serveError maps internal errors onto status codes.
func (s *Server) serveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sessions.ErrNotFound):
		s.jsonError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, sessions.ErrLockTimeout):
		s.jsonError(w, http.StatusConflict, "session busy, try again")
	case errors.Is(err, bridge.ErrSubmitTimeout):
		s.jsonError(w, http.StatusGatewayTimeout, "turn timed out")
	case errors.Is(err, orchestrator.ErrAgentUnavailable):
		s.jsonError(w, http.StatusServiceUnavailable, "agent unavailable")
	default:
		s.logger.Error("request failed", "error", err)
		s.jsonError(w, http.StatusBadGateway, "upstream error")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
