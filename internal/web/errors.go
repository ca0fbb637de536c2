package web

// errors.go turns handler errors into responses. The technical error is
// logged with the request ID; the client gets the mapped user message,
// as JSON for API routes and plain text otherwise. Compile failures also
// list every cell error so a sheet can be fixed in one pass.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/tablegen/internal/core"
	"github.com/JonMunkholm/tablegen/internal/logging"
)

// maxDetails caps the number of compile errors returned in one response.
const maxDetails = 200

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Action  string   `json:"action,omitempty"`
	Code    string   `json:"code"`
	Details []string `json:"details,omitempty"`
}

// respondError logs err and writes the user-facing response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)

	// mapped errors are the caller's to fix; the rest are ours
	level := slog.LevelError
	if core.IsUserFacing(err) {
		level = slog.LevelWarn
	}
	logging.FromContext(r.Context()).Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	if wantsJSON(r) {
		respondErrorJSON(w, userMsg, errorDetails(err), statusCode)
	} else {
		respondErrorText(w, userMsg, statusCode)
	}
}

// errorDetails lists the individual errors of a compile failure.
func errorDetails(err error) []string {
	var batch *core.CompileErrors
	if !errors.As(err, &batch) {
		return nil
	}
	n := min(len(batch.Errors), maxDetails)
	details := make([]string, n)
	for i, e := range batch.Errors[:n] {
		details[i] = e.Error()
	}
	return details
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, details []string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
		Details: details,
	})
}

// respondErrorText writes a plain text error response.
func respondErrorText(w http.ResponseWriter, msg core.UserMessage, statusCode int) {
	http.Error(w, msg.Message+" ("+msg.Code+")", statusCode)
}

// wantsJSON checks if the client prefers JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	// API routes default to JSON
	return strings.HasPrefix(r.URL.Path, "/api/")
}
