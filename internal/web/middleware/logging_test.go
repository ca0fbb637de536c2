package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/tablegen/internal/logging"
)

func TestLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{"ok", http.StatusOK, "level=INFO"},
		{"not found", http.StatusNotFound, "level=WARN"},
		{"server error", http.StatusInternalServerError, "level=ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logging.Setup(&buf, "info", "text")

			h := chimw.RequestID(Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte("hello"))
			})))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tables", nil))

			out := buf.String()
			for _, want := range []string{tt.wantLevel, "path=/api/tables", "bytes=5", "request_id="} {
				if !strings.Contains(out, want) {
					t.Errorf("log = %q, want %q", out, want)
				}
			}
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestResponseWriterDefaultsToOK(t *testing.T) {
	rec := httptest.NewRecorder()
	ww := &responseWriter{ResponseWriter: rec, status: http.StatusOK}
	ww.Write([]byte("x"))
	ww.WriteHeader(http.StatusTeapot)

	if ww.status != http.StatusOK || rec.Code != http.StatusOK {
		t.Errorf("status = %d/%d, want 200", ww.status, rec.Code)
	}
}
