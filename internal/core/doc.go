// Package core compiles typed spreadsheet tables into immutable datasets.
//
// It holds the domain logic of tablegen, independent of how sheets are read
// or where artifacts are written. The CLI, the preview server and tests all
// drive it the same way.
//
// # Sheet Layout
//
// Every sheet starts with five header rows:
//
//	row 1: column names
//	row 2: cell type labels (int, vector3_int, array_uint, ...)
//	row 3: visibility tags (allkey, all, server, serverkey, client, clientkey)
//	row 4: free text, ignored
//	row 5: free text, ignored
//
// Data rows follow. A sheet whose tag row has no key-marking tag is not
// exported and compiles to nothing.
//
// # Cell Types
//
// Labels are resolved through a registry built at init time; see
// [ParseCellType] and [CellTypeLabels]. Each [CellType] has a [Shape] that
// decides how its cells are parsed and encoded:
//
//	scalar        42
//	tuple         1,2,3
//	array         1,2,3 (any length)
//	tuple array   1,2;3,4
//	dictionary    reserved, only blank cells are accepted
//
// "" and "0" are the default sentinel of every type and yield [Zero].
//
// # Compilation
//
// [Compiler.CompileDataset] compiles sheets in parallel, bounded by
// [WithWorkers]. It never stops at the first problem: every cell and header
// error of every sheet is collected into a [CompileErrors], and each entry is
// a [ValidationError] that names the table, row and column.
//
//	c := core.NewCompiler(core.WithLogger(logger), core.WithWorkers(8))
//	ds, err := c.CompileDataset(raws)
//	if err != nil {
//	    fmt.Println(core.FormatUserError(err))
//	}
//	server := ds.ForAudience(core.AudienceServer)
//
// # Audience Filtering
//
// [Dataset.ForAudience] keeps the columns an audience may see, in sheet
// order. Filtering is pure and idempotent.
package core
