package core

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the number of tables compiled in parallel when no
// limit is configured.
const DefaultWorkers = 4

// RawTable is one sheet as handed over by ingestion: a name and its rows of
// cell strings, header included.
type RawTable struct {
	Name string
	Rows [][]string
}

// CompiledTable is a fully parsed, type-checked table. Every row holds one
// Value per column. It is never modified after compilation.
type CompiledTable struct {
	Name    string
	Columns []Column
	Rows    []Row
}

// PrimaryKey returns the index of the table's lookup key column.
func (t *CompiledTable) PrimaryKey() (int, bool) {
	return PrimaryKey(t.Columns)
}

// Dataset is the set of compiled tables of one build.
type Dataset struct {
	BuildID   uuid.UUID
	CommitID  string
	CreatedAt time.Time
	Audience  Audience
	Tables    []*CompiledTable
}

// Table returns the table with the given name.
func (d *Dataset) Table(name string) (*CompiledTable, bool) {
	for _, t := range d.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// Compiler turns raw sheets into compiled tables.
// It holds no state between calls and is safe for concurrent use.
// The zero value compiles with DefaultWorkers, no logging and the wall clock.
type Compiler struct {
	logger   *slog.Logger
	workers  int
	commitID string
	now      func() time.Time
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithLogger sets the diagnostics sink. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compiler) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithWorkers bounds the number of tables compiled at once.
func WithWorkers(n int) Option {
	return func(c *Compiler) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithCommitID records the source revision in compiled datasets.
func WithCommitID(id string) Option {
	return func(c *Compiler) { c.commitID = id }
}

// WithClock overrides the time source used for Dataset.CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Compiler) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCompiler creates a Compiler.
func NewCompiler(opts ...Option) *Compiler {
	c := &Compiler{
		logger:  slog.New(slog.DiscardHandler),
		workers: DefaultWorkers,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Compiler) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

func (c *Compiler) limit() int {
	if c.workers <= 0 {
		return DefaultWorkers
	}
	return c.workers
}

func (c *Compiler) clock() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

// CompileTable builds the schema of raw and parses every data cell.
//
// It returns (nil, nil) for a sheet that is not exportable. Otherwise all
// cell and row errors of the sheet are collected into one *CompileErrors;
// the table is only returned when there are none.
func (c *Compiler) CompileTable(raw RawTable) (*CompiledTable, error) {
	if !Exportable(raw.Rows) {
		c.log().Debug("sheet has no key column, skipping", "table", raw.Name)
		return nil, nil
	}

	header := raw.Rows
	if len(header) > HeaderRows {
		header = header[:HeaderRows]
	}
	cols, err := BuildSchema(raw.Name, header)
	if err != nil {
		return nil, err
	}

	var data [][]string
	if len(raw.Rows) > HeaderRows {
		data = raw.Rows[HeaderRows:]
	}

	var errs CompileErrors
	rows := make([]Row, 0, len(data))
	for i, cells := range data {
		sheetRow := HeaderRows + i + 1

		if len(cells) != len(cols) {
			errs.Add(ValidationError{
				Table: raw.Name,
				Row:   sheetRow,
				Col:   -1,
				Err:   fmt.Errorf("%w: %d cells, schema has %d columns", ErrRowArityMismatch, len(cells), len(cols)),
			})
		}

		row := make(Row, len(cols))
		for j, col := range cols {
			if j >= len(cells) {
				row[j] = Zero(col.Type)
				continue
			}
			v, err := Parse(col.Type, cells[j])
			if err != nil {
				errs.Add(ValidationError{
					Table:  raw.Name,
					Row:    sheetRow,
					Col:    j,
					Column: col.Name,
					Value:  cells[j],
					Err:    err,
				})
				continue
			}
			row[j] = v
		}
		rows = append(rows, row)
	}

	if err := errs.Err(); err != nil {
		c.log().Debug("table failed validation", "table", raw.Name, "errors", errs.Len())
		return nil, err
	}

	c.log().Debug("table compiled", "table", raw.Name, "columns", len(cols), "rows", len(rows))
	return &CompiledTable{Name: raw.Name, Columns: cols, Rows: rows}, nil
}

// CompileDataset compiles every sheet, at most Workers at a time.
//
// A failing sheet does not stop the others: once all sheets were attempted,
// the errors of every sheet are returned together. Tables keep the order of
// raws, and sheets that are not exportable are left out.
func (c *Compiler) CompileDataset(raws []RawTable) (*Dataset, error) {
	results := make([]*CompiledTable, len(raws))
	failures := make([]error, len(raws))

	var g errgroup.Group
	g.SetLimit(c.limit())
	for i, raw := range raws {
		g.Go(func() error {
			results[i], failures[i] = c.CompileTable(raw)
			return nil
		})
	}
	_ = g.Wait()

	ds := &Dataset{
		BuildID:   uuid.New(),
		CommitID:  c.commitID,
		CreatedAt: c.clock().UTC().Truncate(time.Millisecond),
		Audience:  AudienceAll,
	}

	var errs CompileErrors
	seen := make(map[string]bool, len(raws))
	for i, raw := range raws {
		if failures[i] != nil {
			errs.Add(failures[i])
			continue
		}
		if results[i] == nil {
			continue
		}
		if seen[raw.Name] {
			errs.Add(ValidationError{Table: raw.Name, Col: -1, Err: ErrDuplicateTable})
			continue
		}
		seen[raw.Name] = true
		ds.Tables = append(ds.Tables, results[i])
	}

	if err := errs.Err(); err != nil {
		return nil, err
	}

	c.log().Info("dataset compiled",
		"build_id", ds.BuildID,
		"sheets", len(raws),
		"tables", len(ds.Tables),
	)
	return ds, nil
}
