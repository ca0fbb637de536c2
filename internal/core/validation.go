package core

// validation.go defines the error vocabulary of the compiler.
//
// Errors come in three layers:
//  1. Sentinels name the kind of problem (ErrMalformedBool, ...).
//  2. ParseError and ValidationError add detail: the raw input and cell type,
//     then the table/row/column where it was found.
//  3. CompileErrors batches every ValidationError of a run so a single pass
//     reports all data-entry mistakes at once.
//
// All layers unwrap, so errors.Is(err, ErrMalformedBool) holds for a
// CompileErrors that contains a malformed bool anywhere.

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownCellType      = errors.New("unknown cell type")
	ErrUnknownVisibilityTag = errors.New("unknown visibility tag")
	ErrExpectedString       = errors.New("expected string")
	ErrMalformedScalar      = errors.New("malformed scalar")
	ErrMalformedBool        = errors.New("malformed bool")
	ErrArityMismatch        = errors.New("arity mismatch")
	ErrRowArityMismatch     = errors.New("row arity mismatch")
	ErrMissingPrimaryKey    = errors.New("missing primary key")
	ErrUnimplemented        = errors.New("unimplemented cell type grammar")
	ErrDuplicateTable       = errors.New("duplicate table name")
)

// ParseError reports a raw cell string that does not fit its type's grammar.
type ParseError struct {
	Type     CellType
	Raw      string
	Expected int // component count, set for ErrArityMismatch
	Got      int
	Err      error // one of the sentinels
}

func (e *ParseError) Error() string {
	var inner *ParseError
	switch {
	case errors.As(e.Err, &inner):
		// a component failed; the inner error names the component
		return fmt.Sprintf("%s %q: %v", e.Type, e.Raw, e.Err)
	case errors.Is(e.Err, ErrArityMismatch):
		return fmt.Sprintf("%s: %v: expected %d components, got %d in %q", e.Type, e.Err, e.Expected, e.Got, e.Raw)
	}
	return fmt.Sprintf("%s: %v: %q", e.Type, e.Err, e.Raw)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ValidationError locates a failure inside a table.
// Row is the 1-based sheet row; Col is the 0-based column index, or -1 when
// the error concerns a whole row.
type ValidationError struct {
	Table  string
	Row    int
	Col    int
	Column string // column name when known
	Value  string // the offending raw cell
	Err    error
}

func (e ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Table)
	if e.Row > 0 {
		fmt.Fprintf(&b, " row %d", e.Row)
	}
	if e.Col >= 0 {
		if e.Column != "" {
			fmt.Fprintf(&b, " column %q", e.Column)
		} else {
			fmt.Fprintf(&b, " column %d", e.Col+1)
		}
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e ValidationError) Unwrap() error {
	return e.Err
}

// CompileErrors is the batch of every error collected during a compilation.
type CompileErrors struct {
	Errors []error
}

func (e *CompileErrors) Error() string {
	switch len(e.Errors) {
	case 0:
		return "no errors"
	case 1:
		return e.Errors[0].Error()
	}
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d errors:\n  - %s", len(e.Errors), strings.Join(msgs, "\n  - "))
}

func (e *CompileErrors) Unwrap() []error {
	return e.Errors
}

// Len returns the number of collected errors.
func (e *CompileErrors) Len() int {
	if e == nil {
		return 0
	}
	return len(e.Errors)
}

// Add appends err, flattening nested batches so counts stay exact.
func (e *CompileErrors) Add(err error) {
	if err == nil {
		return
	}
	var batch *CompileErrors
	if errors.As(err, &batch) && batch != e {
		e.Errors = append(e.Errors, batch.Errors...)
		return
	}
	e.Errors = append(e.Errors, err)
}

// Err returns e if any error was collected, nil otherwise.
func (e *CompileErrors) Err() error {
	if e.Len() == 0 {
		return nil
	}
	return e
}
