// Package sheet reads exported spreadsheet files into raw tables.
//
// Every CSV file holds one sheet named after the file. A YAML file holds one
// sheet per document, either as a bare sequence of rows (named after the
// file) or as a mapping with "name" and "rows" keys.
package sheet

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/tablegen/internal/core"
)

// DefaultExtensions are the file types read when none are configured.
var DefaultExtensions = []string{"csv", "yaml", "yml"}

// ErrMalformedSheet is returned for a file that cannot be read as a sheet.
var ErrMalformedSheet = errors.New("malformed sheet")

// Reader loads every sheet file of a directory.
type Reader struct {
	logger     *slog.Logger
	extensions map[string]bool
	workers    int
}

// NewReader creates a Reader accepting the given extensions (without dot,
// case-insensitive). A nil logger discards diagnostics.
func NewReader(logger *slog.Logger, extensions []string, workers int) *Reader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	if workers <= 0 {
		workers = core.DefaultWorkers
	}
	exts := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		exts[strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))] = true
	}
	return &Reader{logger: logger, extensions: exts, workers: workers}
}

// ReadDir reads every accepted file directly inside dir, in file name order.
// Files with other extensions and editor lock files are skipped with a
// warning. Reading stops at the first file that fails.
func (r *Reader) ReadDir(ctx context.Context, dir string) ([]core.RawTable, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		name := e.Name()
		switch {
		case e.IsDir():
			continue
		case strings.HasPrefix(name, "~$"), strings.HasPrefix(name, "."):
			r.logger.Debug("skipping lock or hidden file", "file", name)
			continue
		case !r.extensions[extension(name)]:
			r.logger.Warn("skipping file with unsupported extension", "file", name)
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	slices.Sort(paths)

	results := make([][]core.RawTable, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			tables, err := ReadFile(path)
			if err != nil {
				return err
			}
			results[i] = tables
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []core.RawTable
	for i, tables := range results {
		for _, t := range tables {
			r.logger.Debug("sheet read", "file", filepath.Base(paths[i]), "table", t.Name, "rows", len(t.Rows))
		}
		out = append(out, tables...)
	}
	r.logger.Info("sheets loaded", "dir", dir, "files", len(paths), "sheets", len(out))
	return out, nil
}

// ValidName reports whether name can name a table and its Lua module file:
// not empty, not "." or "..", and free of path separators.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

// ReadFile reads one sheet file, choosing the format by extension.
func ReadFile(path string) ([]core.RawTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	switch extension(path) {
	case "csv":
		t, err := ReadCSV(name, f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return []core.RawTable{t}, nil
	case "yaml", "yml":
		tables, err := ReadYAML(name, f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return tables, nil
	}
	return nil, fmt.Errorf("%s: %w: unsupported file type", path, ErrMalformedSheet)
}

// ReadCSV reads one CSV sheet. Rows may have different widths; width
// problems are reported by the compiler with row numbers.
func ReadCSV(name string, r io.Reader) (core.RawTable, error) {
	cr := csv.NewReader(cleanReader(r))
	cr.FieldsPerRecord = -1

	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return core.RawTable{}, fmt.Errorf("%w: %v", ErrMalformedSheet, err)
		}
		rows = append(rows, rec)
	}
	return core.RawTable{Name: name, Rows: normalize(rows)}, nil
}

// ReadYAML reads every document of a YAML stream as a sheet.
func ReadYAML(name string, r io.Reader) ([]core.RawTable, error) {
	dec := yaml.NewDecoder(cleanReader(r))

	var out []core.RawTable
	for {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedSheet, err)
		}
		if len(doc.Content) == 0 {
			continue
		}
		t, err := yamlSheet(name, doc.Content[0])
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func yamlSheet(name string, n *yaml.Node) (core.RawTable, error) {
	switch n.Kind {
	case yaml.SequenceNode:
		rows, err := yamlRows(n)
		if err != nil {
			return core.RawTable{}, err
		}
		return core.RawTable{Name: name, Rows: normalize(rows)}, nil
	case yaml.MappingNode:
		t := core.RawTable{Name: name}
		var rowsNode *yaml.Node
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i], n.Content[i+1]
			switch key.Value {
			case "name":
				if val.Kind != yaml.ScalarNode || !ValidName(val.Value) {
					return core.RawTable{}, yamlErr(val, "sheet name %q must be a plain file name", val.Value)
				}
				t.Name = val.Value
			case "rows":
				rowsNode = val
			default:
				return core.RawTable{}, yamlErr(key, "unknown key %q (want name or rows)", key.Value)
			}
		}
		if rowsNode == nil || rowsNode.Kind != yaml.SequenceNode {
			return core.RawTable{}, yamlErr(n, "sheet %q needs a rows sequence", t.Name)
		}
		rows, err := yamlRows(rowsNode)
		if err != nil {
			return core.RawTable{}, err
		}
		t.Rows = normalize(rows)
		return t, nil
	}
	return core.RawTable{}, yamlErr(n, "a sheet is a sequence of rows or a {name, rows} mapping")
}

func yamlRows(n *yaml.Node) ([][]string, error) {
	rows := make([][]string, 0, len(n.Content))
	for _, rn := range n.Content {
		if rn.Kind != yaml.SequenceNode {
			return nil, yamlErr(rn, "a row must be a sequence of cells")
		}
		row := make([]string, len(rn.Content))
		for j, cn := range rn.Content {
			if cn.Kind != yaml.ScalarNode {
				return nil, yamlErr(cn, "a cell must be a scalar; quote vectors such as \"1,2\"")
			}
			if cn.Tag != "!!null" {
				row[j] = cn.Value
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func yamlErr(n *yaml.Node, format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", ErrMalformedSheet, n.Line, fmt.Sprintf(format, args...))
}

// normalize trims every cell and drops data rows whose cells are all blank,
// which spreadsheet exports append as padding. Header rows are kept as they
// are, since the two reserved rows are often empty.
func normalize(rows [][]string) [][]string {
	out := rows[:0]
	for i, row := range rows {
		blank := true
		for j, cell := range row {
			row[j] = strings.TrimSpace(cell)
			if row[j] != "" {
				blank = false
			}
		}
		if blank && i >= core.HeaderRows {
			continue
		}
		out = append(out, row)
	}
	return out
}

func extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}
