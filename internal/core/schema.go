package core

import (
	"fmt"
	"strings"
)

// Sheet layout. Rows 3 and 4 are reserved for the authors (comments,
// descriptions) and never read.
const (
	rowNames   = 0
	rowTypes   = 1
	rowTags    = 2
	HeaderRows = 5
)

// Column describes one data column of a compiled table.
type Column struct {
	Name       string
	Type       CellType
	Visibility VisibilityTag
}

// Exportable reports whether the visibility row of a sheet holds at least
// one key-marking tag. Sheets without one are scratch sheets and are left
// out of the dataset without an error.
func Exportable(rows [][]string) bool {
	if len(rows) <= rowTags {
		return false
	}
	for _, cell := range rows[rowTags] {
		if tag, err := ParseVisibilityTag(cell); err == nil && tag.MarksKey() {
			return true
		}
	}
	return false
}

// BuildSchema turns the header rows of a sheet into its column schema.
// Every header problem is collected before returning.
func BuildSchema(table string, header [][]string) ([]Column, error) {
	if len(header) <= rowTags {
		return nil, ValidationError{
			Table: table,
			Row:   len(header) + 1,
			Col:   -1,
			Err:   fmt.Errorf("%w: header needs %d rows, sheet has %d", ErrRowArityMismatch, rowTags+1, len(header)),
		}
	}

	var errs CompileErrors
	width := len(header[rowNames])
	cols := make([]Column, width)

	for i, cell := range header[rowNames] {
		name := strings.TrimSpace(cell)
		if name == "" {
			errs.Add(expectedString(table, rowNames, i))
			continue
		}
		cols[i].Name = name
	}

	for _, r := range []int{rowTypes, rowTags} {
		row := header[r]
		if len(row) != width {
			errs.Add(ValidationError{
				Table: table,
				Row:   r + 1,
				Col:   -1,
				Err:   fmt.Errorf("%w: %d cells, name row has %d", ErrRowArityMismatch, len(row), width),
			})
		}
		for i := 0; i < width && i < len(row); i++ {
			cell := strings.TrimSpace(row[i])
			if cell == "" {
				errs.Add(expectedString(table, r, i))
				continue
			}
			var err error
			if r == rowTypes {
				cols[i].Type, err = ParseCellType(cell)
			} else {
				cols[i].Visibility, err = ParseVisibilityTag(cell)
			}
			if err != nil {
				errs.Add(ValidationError{Table: table, Row: r + 1, Col: i, Column: cols[i].Name, Value: cell, Err: err})
			}
		}
	}

	if err := errs.Err(); err != nil {
		return nil, err
	}
	return cols, nil
}

func expectedString(table string, row, col int) error {
	return ValidationError{
		Table: table,
		Row:   row + 1,
		Col:   col,
		Err:   fmt.Errorf("%w: header cell is blank", ErrExpectedString),
	}
}

// PrimaryKey returns the index of the lookup key column: the first column
// whose tag marks a key (allkey, serverkey, clientkey or all).
func PrimaryKey(cols []Column) (int, bool) {
	for i, c := range cols {
		if c.Visibility.MarksKey() {
			return i, true
		}
	}
	return -1, false
}
