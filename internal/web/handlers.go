package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/addonvalidator/internal/core"
	"github.com/JonMunkholm/addonvalidator/internal/logging"
	"github.com/JonMunkholm/addonvalidator/internal/payload"
	webmw "github.com/JonMunkholm/addonvalidator/internal/web/middleware"
	"github.com/JonMunkholm/addonvalidator/internal/web/templates"
)

const (
	// multipartMemory is how much of an upload is buffered in memory before
	// the multipart reader spills to disk.
	multipartMemory = 8 << 20

	// multipartOverhead covers form fields and part headers on top of the
	// package itself.
	multipartOverhead = 1 << 20

	statusRefreshSeconds = 3
	historyLimit         = 50
)

func statusPath(taskID string) string {
	return uploadPath + "status/" + taskID + "/"
}

func resultPath(taskID string) string {
	return uploadPath + "result/" + taskID
}

// render writes an HTML component with the given status.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render page", "path", r.URL.Path, "error", err)
	}
}

// handleUploadPage serves the upload form. The CSRF cookie is set by the
// route's middleware.
func (s *Server) handleUploadPage(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/") {
		target := uploadPath
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, target, http.StatusMovedPermanently)
		return
	}

	hint := r.URL.Query().Get("error")
	s.render(w, r, http.StatusOK, templates.UploadPage(webmw.CSRFToken(r.Context()), hint))
}

// handleSave accepts a package from the upload form.
//
// With ?ajax the addon field holds a data URI and the response body is the
// status page path, or the error sentinel on failure. Without it the client
// is redirected to the status page, or back to the form with a hint.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	ajax := r.URL.Query().Has("ajax")

	limit := s.cfg.Upload.MaxFileSize + multipartOverhead
	if ajax {
		limit = s.cfg.Upload.MaxFileSize/3*4 + multipartOverhead
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			err = fmt.Errorf("%w: request exceeds %d bytes", core.ErrFileTooLarge, maxErr.Limit)
		} else {
			err = fmt.Errorf("parse upload form: %w", err)
		}
		s.respondSaveFailure(w, r, err, ajax)
		return
	}
	defer r.MultipartForm.RemoveAll()

	if err := webmw.VerifyCSRF(r); err != nil {
		s.respondError(w, r, err, http.StatusForbidden)
		return
	}

	file, header, err := r.FormFile(payload.AddonField)
	if err != nil {
		s.respondSaveFailure(w, r, fmt.Errorf("%w: %v", core.ErrNoFile, err), ajax)
		return
	}
	defer file.Close()

	ctx := WithRequestMetadata(r.Context(), r)
	taskID, err := s.service.Save(ctx, core.SaveRequest{
		FileName: header.Filename,
		Body:     file,
		Size:     header.Size,
		Encoded:  ajax,
	})
	if err != nil {
		s.respondSaveFailure(w, r, err, ajax)
		return
	}

	dest := statusPath(taskID)
	if ajax {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, dest)
		return
	}
	http.Redirect(w, r, dest, http.StatusFound)
}

// handleStatus shows the progress page, or redirects to the result once the
// job is done.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task")

	status, err := s.service.Poll(taskID)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	if status == core.JobDone {
		http.Redirect(w, r, resultPath(taskID), http.StatusFound)
		return
	}
	s.render(w, r, http.StatusOK, templates.StatusPage(taskID, status, statusRefreshSeconds))
}

// PollResponse is the body of the poll endpoint.
type PollResponse struct {
	Status core.JobStatus `json:"status"`
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.Poll(chi.URLParam(r, "task"))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, PollResponse{Status: status})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task")

	result, err := s.service.Result(taskID)
	if err != nil {
		if errors.Is(err, core.ErrNotReady) && !wantsJSON(r) {
			http.Redirect(w, r, statusPath(taskID), http.StatusFound)
			return
		}
		s.respondError(w, r, err, statusFor(err))
		return
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, result)
		return
	}
	s.render(w, r, http.StatusOK, templates.ResultPage(result))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.history.Recent(r.Context(), historyLimit)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, entries)
		return
	}
	s.render(w, r, http.StatusOK, templates.HistoryPage(entries))
}

// HealthResponse reports service load.
type HealthResponse struct {
	Status  string             `json:"status"`
	Jobs    int                `json:"jobs"`
	Limiter core.LimiterStatus `json:"limiter"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.service.JobCount()
	if err != nil {
		s.respondError(w, r, err, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Jobs:    jobs,
		Limiter: s.service.LimiterStatus(),
	})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrNotReady):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
