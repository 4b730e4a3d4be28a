package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/medscan/constants"
	"github.com/joseph-ayodele/medscan/internal/common"
	"github.com/joseph-ayodele/medscan/internal/entity"
	"github.com/joseph-ayodele/medscan/internal/pipeline"
)

type pipelineResponse struct {
	Message        string                  `json:"message"`
	Response       string                  `json:"response"`
	Provenance     constants.Provenance    `json:"provenance,omitempty"`
	ProcessingTime string                  `json:"processingTime"`
	Counters       entity.Counters         `json:"counters"`
	State          constants.PipelineState `json:"state"`
}

func (s *Server) handleLabReport(w http.ResponseWriter, r *http.Request) {
	s.handleDocument(w, r, constants.ActionReport)
}

func (s *Server) handleMedicine(w http.ResponseWriter, r *http.Request) {
	s.handleDocument(w, r, constants.ActionScan)
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request, mode constants.ActionKind) {
	path, filename, err := s.saveUpload(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.pipeline.Run(r.Context(), pipeline.Request{
		UserEmail: common.UserEmailFromContext(r.Context()),
		FilePath:  path,
		Filename:  filename,
		Mode:      mode,
		Language:  strings.TrimSpace(r.FormValue("language")),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pipelineResponse{
		Message:        fmt.Sprintf("Processed with %s", res.Provenance),
		Response:       res.Response,
		Provenance:     res.Provenance,
		ProcessingTime: formatElapsed(res.Elapsed),
		Counters:       res.Counters,
		State:          res.State,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input string `json:"input"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.pipeline.Chat(r.Context(), pipeline.ChatRequest{
		UserEmail: common.UserEmailFromContext(r.Context()),
		Input:     req.Input,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pipelineResponse{
		Message:        "Answered",
		Response:       res.Response,
		ProcessingTime: formatElapsed(res.Elapsed),
		Counters:       res.Counters,
		State:          res.State,
	})
}

func (s *Server) handleClearChat(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.ClearChat(r.Context(), common.UserEmailFromContext(r.Context())); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Chat history cleared"})
}

// saveUpload stores the multipart "file" field under the upload directory as
// <unix-ms>-<name>, with spaces in the name replaced by underscores. The
// pipeline owns the stored file from here on.
func (s *Server) saveUpload(w http.ResponseWriter, r *http.Request) (string, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", "", common.InvalidArgumentErrorf("file exceeds %d bytes", s.opts.MaxUploadBytes)
		}
		return "", "", common.NewAppError("NO_FILE", "no file uploaded", common.ErrNoFile)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	file, hdr, err := r.FormFile("file")
	if err != nil {
		return "", "", common.NewAppError("NO_FILE", "no file uploaded", common.ErrNoFile)
	}
	defer file.Close()

	original := filepath.Base(hdr.Filename)
	if _, ok := constants.KindFromPath(original); !ok {
		return "", "", common.NewAppError("UNSUPPORTED_MEDIA",
			fmt.Sprintf("unsupported file type %q", filepath.Ext(original)), common.ErrUnsupportedMediaKind)
	}

	if err := os.MkdirAll(s.opts.UploadDir, 0o755); err != nil {
		return "", "", fmt.Errorf("%w: create upload dir: %v", common.ErrInternal, err)
	}
	stored := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), strings.ReplaceAll(original, " ", "_"))
	path := filepath.Join(s.opts.UploadDir, stored)

	out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", "", fmt.Errorf("%w: store upload: %v", common.ErrInternal, err)
	}
	if _, err := io.Copy(out, file); err != nil {
		_ = out.Close()
		_ = os.Remove(path)
		return "", "", fmt.Errorf("%w: store upload: %v", common.ErrInternal, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(path)
		return "", "", fmt.Errorf("%w: store upload: %v", common.ErrInternal, err)
	}
	return path, original, nil
}

func formatElapsed(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}
