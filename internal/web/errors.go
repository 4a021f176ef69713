package web

// errors.go provides unified error response handling for the web layer.
//
// Errors are logged server-side with the request ID and technical detail,
// then mapped via core.MapError to a coded user message rendered as JSON or
// as an HTML page depending on the request.

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/addonvalidator/internal/core"
	"github.com/JonMunkholm/addonvalidator/internal/payload"
	"github.com/JonMunkholm/addonvalidator/internal/web/templates"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes the mapped user message in the format
// the client asked for.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := logRequestError(r, err, statusCode)

	if wantsJSON(r) {
		respondErrorJSON(w, userMsg, statusCode)
		return
	}
	respondErrorHTML(w, r, userMsg, statusCode)
}

// respondSaveFailure answers a rejected upload. The ajax uploader only
// understands the error sentinel; the plain form goes back to the upload
// page with a hint.
func (s *Server) respondSaveFailure(w http.ResponseWriter, r *http.Request, err error, ajax bool) {
	logRequestError(r, err, http.StatusOK)

	if ajax {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(payload.ErrorSentinel))
		return
	}

	hint := templates.HintUpload
	if core.IsAddonError(err) {
		hint = templates.HintAddon
	}
	http.Redirect(w, r, uploadPath+"?error="+hint, http.StatusFound)
}

func logRequestError(r *http.Request, err error, statusCode int) core.UserMessage {
	userMsg := core.MapError(err)

	// Mapped errors are the client's problem; anything else is ours.
	level := slog.LevelError
	if core.IsUserFacing(err) {
		level = slog.LevelWarn
	}
	slog.Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)
	return userMsg
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// respondErrorHTML renders the error page.
func respondErrorHTML(w http.ResponseWriter, r *http.Request, msg core.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	if err := templates.ErrorPage(msg).Render(r.Context(), w); err != nil {
		slog.Error("render error page", "error", err)
	}
}

// wantsJSON checks if the client prefers JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}

	// Poll and health endpoints always speak JSON.
	return strings.HasSuffix(r.URL.Path, "/poll") || r.URL.Path == healthPath
}
