package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/tablegen/internal/build"
	"github.com/JonMunkholm/tablegen/internal/core"
)

// handleIndex renders the overview page of the served build.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	res, lastErr := s.snapshot()
	status := http.StatusOK
	if res == nil {
		status = http.StatusServiceUnavailable
	}
	templ.Handler(indexPage(res, lastErr), templ.WithStatus(status)).ServeHTTP(w, r)
}

// indexPage lists the tables of res and, when the last rebuild failed, its
// user message.
func indexPage(res *build.Result, lastErr error) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &pageWriter{w: w}
		p.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>tablegen preview</title>`)
		p.raw(`<style>body{font-family:sans-serif;margin:2rem}table{border-collapse:collapse}td,th{border:1px solid #ccc;padding:.25rem .5rem;text-align:left}.error{color:#b00}</style>`)
		p.raw(`</head><body><h1>tablegen preview</h1>`)

		if lastErr != nil {
			p.raw(`<p class="error">`)
			p.text(core.FormatUserError(lastErr))
			p.raw(`</p>`)
		}

		if res == nil {
			p.raw(`<p>No build yet.</p></body></html>`)
			return p.err
		}

		ds := res.Dataset
		p.raw(`<p>Build <code>`)
		p.text(ds.BuildID.String())
		p.raw(`</code> for `)
		p.text(ds.Audience.String())
		if ds.CommitID != "" {
			p.raw(` at commit <code>`)
			p.text(ds.CommitID)
			p.raw(`</code>`)
		}
		p.text(fmt.Sprintf(", %d bytes packed.", len(res.Blob)))
		p.raw(` <a href="/api/dataset.bin">Download</a></p>`)

		p.raw(`<table><thead><tr><th>Table</th><th>Columns</th><th>Rows</th><th>Key</th><th></th></tr></thead><tbody>`)
		for _, t := range ds.Tables {
			key := ""
			if k, ok := t.PrimaryKey(); ok {
				key = t.Columns[k].Name
			}
			p.raw(`<tr><td>`)
			p.text(t.Name)
			p.raw(`</td><td>`)
			p.text(fmt.Sprint(len(t.Columns)))
			p.raw(`</td><td>`)
			p.text(fmt.Sprint(len(t.Rows)))
			p.raw(`</td><td>`)
			p.text(key)
			p.raw(`</td><td><a href="`)
			p.text(string(templ.URL("/api/tables/" + url.PathEscape(t.Name) + "/lua")))
			p.raw(`">lua</a></td></tr>`)
		}
		p.raw(`</tbody></table></body></html>`)
		return p.err
	})
}

// pageWriter keeps the first write error so rendering code stays linear.
type pageWriter struct {
	w   io.Writer
	err error
}

func (p *pageWriter) raw(s string) {
	if p.err == nil {
		_, p.err = io.WriteString(p.w, s)
	}
}

func (p *pageWriter) text(s string) {
	p.raw(templ.EscapeString(s))
}
