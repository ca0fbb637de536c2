package web

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/tablegen/internal/build"
	"github.com/JonMunkholm/tablegen/internal/core"
	"github.com/JonMunkholm/tablegen/internal/logging"
	"github.com/JonMunkholm/tablegen/internal/luagen"
)

const (
	defaultRowLimit = 100
	maxRowLimit     = 1000
	defaultBuilds   = 20
)

// errNoBuild is served while no build has succeeded yet.
var errNoBuild = errors.New("no successful build yet")

type columnJSON struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Visibility string `json:"visibility"`
}

type tableSummary struct {
	Name       string `json:"name"`
	Columns    int    `json:"columns"`
	Rows       int    `json:"rows"`
	PrimaryKey string `json:"primary_key,omitempty"`
}

// tablePage is one window of a table's rows. Cells are rendered as Lua
// literals so NaN and nested values survive JSON.
type tablePage struct {
	Name    string       `json:"name"`
	Columns []columnJSON `json:"columns"`
	Rows    [][]string   `json:"rows"`
	Offset  int          `json:"offset"`
	Total   int          `json:"total"`
}

// parseIntParam parses a non-negative integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return defaultVal
	}
	return i
}

// currentBuild returns the served build, or responds with 503 when there is none.
func (s *Server) currentBuild(w http.ResponseWriter, r *http.Request) (*build.Result, bool) {
	res, lastErr := s.snapshot()
	if res != nil {
		return res, true
	}
	err := errNoBuild
	if lastErr != nil {
		err = fmt.Errorf("%w: %w", errNoBuild, lastErr)
	}
	s.respondError(w, r, err, http.StatusServiceUnavailable)
	return nil, false
}

// lookupTable resolves the {name} URL parameter in the served build.
func (s *Server) lookupTable(w http.ResponseWriter, r *http.Request) (*core.CompiledTable, bool) {
	res, ok := s.currentBuild(w, r)
	if !ok {
		return nil, false
	}
	name := chi.URLParam(r, "name")
	t, ok := res.Dataset.Table(name)
	if !ok {
		s.respondError(w, r, fmt.Errorf("table not found: %s", name), http.StatusNotFound)
		return nil, false
	}
	return t, true
}

// handleBuild describes the served build.
func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	res, ok := s.currentBuild(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, summarize(res))
}

// handleRebuild reads and compiles the sheets again.
func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	res, err := s.Rebuild(r.Context())
	switch {
	case errors.Is(err, ErrRebuildBusy):
		w.Header().Set("Retry-After", "5")
		s.respondError(w, r, err, http.StatusConflict)
		return
	case err != nil:
		s.respondError(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	logging.FromContext(r.Context()).Info("rebuild finished", "build_id", res.Dataset.BuildID)
	writeJSON(w, http.StatusOK, summarize(res))
}

// handleBuilds lists published builds, newest first.
func (s *Server) handleBuilds(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeJSON(w, http.StatusOK, []buildSummary{})
		return
	}
	limit := min(parseIntParam(r, "limit", defaultBuilds), maxRowLimit)
	builds, err := s.archive.List(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadGateway)
		return
	}

	out := make([]buildSummary, len(builds))
	for i, b := range builds {
		out[i] = buildSummary{
			BuildID:   b.BuildID.String(),
			CommitID:  b.CommitID,
			Audience:  b.Audience.String(),
			CreatedAt: b.CreatedAt,
			Tables:    b.Tables,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleBlob serves the packed binary artifact.
func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	res, ok := s.currentBuild(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+build.BlobFile+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Blob)))
	w.Write(res.Blob)
}

// handleListTables lists the tables of the served build.
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	res, ok := s.currentBuild(w, r)
	if !ok {
		return
	}

	out := make([]tableSummary, len(res.Dataset.Tables))
	for i, t := range res.Dataset.Tables {
		out[i] = tableSummary{Name: t.Name, Columns: len(t.Columns), Rows: len(t.Rows)}
		if k, ok := t.PrimaryKey(); ok {
			out[i].PrimaryKey = t.Columns[k].Name
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleTable returns the columns and a window of rows of one table.
// Query parameters: offset (default 0), limit (default 100, max 1000).
func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	t, ok := s.lookupTable(w, r)
	if !ok {
		return
	}

	offset := min(parseIntParam(r, "offset", 0), len(t.Rows))
	limit := min(parseIntParam(r, "limit", defaultRowLimit), maxRowLimit)
	end := min(offset+limit, len(t.Rows))

	page := tablePage{
		Name:    t.Name,
		Columns: make([]columnJSON, len(t.Columns)),
		Rows:    make([][]string, 0, end-offset),
		Offset:  offset,
		Total:   len(t.Rows),
	}
	for i, c := range t.Columns {
		page.Columns[i] = columnJSON{Name: c.Name, Type: c.Type.String(), Visibility: c.Visibility.String()}
	}
	for _, row := range t.Rows[offset:end] {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = core.EncodeLua(v)
		}
		page.Rows = append(page.Rows, cells)
	}
	writeJSON(w, http.StatusOK, page)
}

// handleTableLua serves the Lua module of one table.
func (s *Server) handleTableLua(w http.ResponseWriter, r *http.Request) {
	t, ok := s.lookupTable(w, r)
	if !ok {
		return
	}
	src, err := luagen.Emit(t)
	if err != nil {
		s.respondError(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	logging.WithFields(r.Context(), "table", t.Name).Debug("lua module served", "bytes", len(src))
	w.Header().Set("Content-Type", "text/x-lua; charset=utf-8")
	w.Write(src)
}
