package core

// Value is one typed cell.
// Only the fields matching Type's shape are meaningful; the others stay at
// their zero values:
//
//   - scalars use exactly one of U32, I32, I64, Str, Bool, F32, F64
//   - tuples and arrays keep their components in Elems, each typed with
//     Type.Elem()
//   - dictionaries keep their entries in Entries
type Value struct {
	Type CellType

	U32  uint32  // CellUInt
	I32  int32   // CellInt
	I64  int64   // CellLong
	Str  string  // CellString, CellLang
	Bool bool    // CellBool
	F32  float32 // CellFloat
	F64  float64 // CellDouble

	Elems   []Value
	Entries []Entry
}

// Entry is one key/value pair of a dictionary value.
type Entry struct {
	Key   string
	Value Value
}

// Row is one compiled data row, one Value per column.
type Row []Value

// Zero returns the zero value of t: 0, "", false, a tuple of zero
// components, or an empty array/dictionary.
func Zero(t CellType) Value {
	v := Value{Type: t}
	if n := t.Arity(); n > 0 {
		v.Elems = make([]Value, n)
		for i := range v.Elems {
			v.Elems[i] = Zero(t.Elem())
		}
	}
	return v
}

// Equal reports whether v and o hold the same typed value.
// Nil and empty element lists compare equal.
func (v Value) Equal(o Value) bool {
	if v.Type != o.Type || v.U32 != o.U32 || v.I32 != o.I32 || v.I64 != o.I64 ||
		v.Str != o.Str || v.Bool != o.Bool {
		return false
	}
	if !floatBitsEqual32(v.F32, o.F32) || !floatBitsEqual64(v.F64, o.F64) {
		return false
	}
	if len(v.Elems) != len(o.Elems) || len(v.Entries) != len(o.Entries) {
		return false
	}
	for i := range v.Elems {
		if !v.Elems[i].Equal(o.Elems[i]) {
			return false
		}
	}
	for i := range v.Entries {
		if v.Entries[i].Key != o.Entries[i].Key || !v.Entries[i].Value.Equal(o.Entries[i].Value) {
			return false
		}
	}
	return true
}

// floatBitsEqual32 treats NaN as equal to itself so round-trip checks hold.
func floatBitsEqual32(a, b float32) bool {
	return a == b || (a != a && b != b)
}

func floatBitsEqual64(a, b float64) bool {
	return a == b || (a != a && b != b)
}
