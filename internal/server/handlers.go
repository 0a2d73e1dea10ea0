package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/veildoc/veildoc/internal/audit"
	"github.com/veildoc/veildoc/internal/imagemask"
	"github.com/veildoc/veildoc/internal/pagedoc"
	"github.com/veildoc/veildoc/internal/pipeline"
	"github.com/veildoc/veildoc/internal/ws"
	"go.uber.org/zap"
)

// maskResponse is the payload returned by the mask endpoints.
type maskResponse struct {
	TaskID string           `json:"task_id"`
	Result *pipeline.Result `json:"result"`
}

// restoreResponse is the payload returned by the restore endpoint.
type restoreResponse struct {
	TaskID string                  `json:"task_id"`
	Result *pipeline.RestoreResult `json:"result"`
}

// handleMask accepts a multipart upload and runs the detection pipeline
// over it. The artifacts land in a per-task working directory and are
// served back through the download endpoint.
func (s *Server) handleMask(w http.ResponseWriter, r *http.Request) {
	taskID := uuid.NewString()
	taskDir, err := s.taskDir(taskID)
	if err != nil {
		s.logger.Error("Failed to create task directory", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create task directory")
		return
	}

	inPath, err := s.saveUpload(w, r, "file", taskDir)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	opts := pipeline.Options{TaskID: taskID, Progress: s.progressFunc(taskID, filepath.Base(inPath))}
	s.broadcast(ws.Event{Type: ws.EventTypeTaskStarted, TaskID: taskID})

	result, err := s.pipeline.Mask(r.Context(), inPath, taskDir, opts)
	if err != nil {
		s.finishTask(r, taskID, "mask", inPath, nil, start, err)
		status := http.StatusInternalServerError
		var unsupported *pipeline.UnsupportedFormatError
		if errors.As(err, &unsupported) {
			status = http.StatusUnsupportedMediaType
		}
		writeError(w, status, err.Error())
		return
	}

	s.finishTask(r, taskID, "mask", inPath, result, start, nil)
	writeJSON(w, http.StatusOK, maskResponse{TaskID: taskID, Result: result})
}

// handleManualMask masks caller-drawn regions on an uploaded image. The
// regions arrive as a JSON array in the "regions" form field.
func (s *Server) handleManualMask(w http.ResponseWriter, r *http.Request) {
	taskID := uuid.NewString()
	taskDir, err := s.taskDir(taskID)
	if err != nil {
		s.logger.Error("Failed to create task directory", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create task directory")
		return
	}

	inPath, err := s.saveUpload(w, r, "file", taskDir)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var regions []imagemask.ManualRegion
	if err := json.Unmarshal([]byte(r.FormValue("regions")), &regions); err != nil {
		writeError(w, http.StatusBadRequest, "invalid regions payload")
		return
	}

	start := time.Now()
	opts := pipeline.Options{TaskID: taskID}
	result, err := s.pipeline.MaskManualRegions(r.Context(), inPath, taskDir, regions, opts)
	if err != nil {
		s.finishTask(r, taskID, "manual_mask", inPath, nil, start, err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.finishTask(r, taskID, "manual_mask", inPath, result, start, nil)
	writeJSON(w, http.StatusOK, maskResponse{TaskID: taskID, Result: result})
}

// handleRestore accepts the masked file, its mapping and its key, and
// reverses the masking run.
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	taskID := uuid.NewString()
	taskDir, err := s.taskDir(taskID)
	if err != nil {
		s.logger.Error("Failed to create task directory", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create task directory")
		return
	}

	maskedPath, err := s.saveUpload(w, r, "file", taskDir)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mappingPath, err := s.saveUpload(w, r, "mapping", taskDir)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	keyPath, err := s.saveUpload(w, r, "key", taskDir)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	opts := pipeline.Options{TaskID: taskID, Progress: s.progressFunc(taskID, filepath.Base(maskedPath))}
	result, err := s.pipeline.Restore(r.Context(), maskedPath, mappingPath, keyPath, taskDir, opts)
	if err != nil {
		s.recordOperation(r, taskID, "restore", maskedPath, "failed", 0, 0, 0, time.Since(start), nil)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	status := "completed"
	if len(result.Unresolved) > 0 {
		status = "partial"
	}
	s.recordOperation(r, taskID, "restore", maskedPath, status, result.Records, result.Restored, 0, time.Since(start), nil)
	writeJSON(w, http.StatusOK, restoreResponse{TaskID: taskID, Result: result})
}

// handleDownload serves one artifact from a task working directory.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	taskID, name := vars["id"], vars["name"]

	if _, err := uuid.Parse(taskID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	if name != filepath.Base(name) || name == "." || name == ".." {
		writeError(w, http.StatusBadRequest, "invalid file name")
		return
	}

	path := filepath.Join(s.config.WorkDir, taskID, name)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	http.ServeFile(w, r, path)
}

// handleStats serves aggregate audit statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit store disabled")
		return
	}
	stats, err := s.audit.GetStatistics(r.Context())
	if err != nil {
		s.logger.Error("Failed to load statistics", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load statistics")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// taskDir creates the per-task working directory.
func (s *Server) taskDir(taskID string) (string, error) {
	dir := filepath.Join(s.config.WorkDir, taskID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// saveUpload stores one multipart file field into the task directory.
func (s *Server) saveUpload(w http.ResponseWriter, r *http.Request, field, dir string) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", fmt.Errorf("missing %q upload", field)
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("invalid file name in %q upload", field)
	}

	path := filepath.Join(dir, name)
	if err := writeUpload(path, file); err != nil {
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	return path, nil
}

func writeUpload(path string, src multipart.File) error {
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer dst.Close()
	_, err = io.Copy(dst, src)
	return err
}

// progressFunc adapts hub broadcasting to the coordinator's callback.
func (s *Server) progressFunc(taskID, fileName string) pagedoc.ProgressFunc {
	if s.hub == nil {
		return nil
	}
	return func(completed, total int) {
		s.broadcast(ws.Event{
			Type:   ws.EventTypePageProgress,
			TaskID: taskID,
			Data:   ws.ProgressEvent{FileName: fileName, Completed: completed, Total: total},
		})
	}
}

func (s *Server) broadcast(event ws.Event) {
	if s.hub != nil {
		s.hub.Broadcast(event)
	}
}

// finishTask broadcasts the completion event and records the audit entry
// for a masking run.
func (s *Server) finishTask(r *http.Request, taskID, operation, inPath string, result *pipeline.Result, start time.Time, runErr error) {
	name := filepath.Base(inPath)

	if runErr != nil {
		s.broadcast(ws.Event{
			Type:   ws.EventTypeTaskFailed,
			TaskID: taskID,
			Data:   ws.CompletionEvent{FileName: name, Status: "failed", Error: runErr.Error()},
		})
		s.recordOperation(r, taskID, operation, inPath, "failed", 0, 0, 0, time.Since(start), nil)
		return
	}

	s.broadcast(ws.Event{
		Type:   ws.EventTypeTaskCompleted,
		TaskID: taskID,
		Data: ws.CompletionEvent{
			FileName:    name,
			Status:      result.Status,
			Detected:    result.Detected,
			Masked:      result.Masked,
			FailedPages: result.FailedPages,
		},
	})
	s.recordOperation(r, taskID, operation, inPath, result.Status,
		result.Detected, result.Masked, len(result.FailedPages), time.Since(start), result.ByCategory)
}

// recordOperation writes the audit trail entry. Audit failures are logged,
// never surfaced to the client.
func (s *Server) recordOperation(r *http.Request, taskID, operation, inPath, status string, detected, masked, failedPages int, duration time.Duration, categories map[string]int) {
	if s.audit == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sessionID := r.Header.Get("X-Session-ID")
	if sessionID == "" {
		sessionID = taskID
	}
	session := &audit.Session{
		ID:        sessionID,
		ClientIP:  clientIP(r),
		UserAgent: r.UserAgent(),
	}
	if err := s.audit.CreateSession(ctx, session); err != nil {
		s.logger.Warn("Failed to record audit session", zap.Error(err))
		return
	}

	op := &audit.FileOperation{
		SessionID:   sessionID,
		TaskID:      taskID,
		Operation:   operation,
		FileName:    filepath.Base(inPath),
		FileType:    filepath.Ext(inPath),
		Status:      status,
		Detected:    detected,
		Masked:      masked,
		FailedPages: failedPages,
		DurationMS:  duration.Milliseconds(),
	}
	if err := s.audit.RecordOperation(ctx, op, categories); err != nil {
		s.logger.Warn("Failed to record audit operation", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
