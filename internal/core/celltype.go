package core

import "strconv"

// CellType is the closed set of value kinds a sheet column may hold.
//
// Every switch over CellType in this module lists all kinds without a
// default arm so the exhaustive linter flags a kind that is not wired into
// the parser and both encoders.
type CellType int

const (
	CellUInt CellType = iota + 1
	CellInt
	CellLong
	CellString
	CellBool
	CellLang
	CellFloat
	CellDouble
	CellVector2Int
	CellVector3Int
	CellVector2UInt
	CellVector3UInt
	CellVector2Float
	CellVector3Float
	CellVector2String
	CellArrayInt
	CellArrayUInt
	CellVector2ArrayInt
	CellVector3ArrayInt
	CellDictionaryStringInt
	CellDictionaryStringFloat
)

// Shape groups cell types by the structure of their values.
type Shape int

const (
	ShapeScalar Shape = iota
	ShapeTuple
	ShapeArray
	ShapeTupleArray
	ShapeDictionary
)

// AllCellTypes returns every cell type in declaration order.
func AllCellTypes() []CellType {
	out := make([]CellType, 0, int(CellDictionaryStringFloat))
	for t := CellUInt; t <= CellDictionaryStringFloat; t++ {
		out = append(out, t)
	}
	return out
}

// Valid reports whether t is a member of the closed set.
func (t CellType) Valid() bool {
	return t >= CellUInt && t <= CellDictionaryStringFloat
}

// String returns the canonical label for t.
func (t CellType) String() string {
	if labels, ok := canonicalLabels[t]; ok {
		return labels
	}
	return "cell_type(" + strconv.Itoa(int(t)) + ")"
}

// Shape returns the structural shape of values of type t.
func (t CellType) Shape() Shape {
	//exhaustive:enforce
	switch t {
	case CellUInt, CellInt, CellLong, CellString, CellBool, CellLang, CellFloat, CellDouble:
		return ShapeScalar
	case CellVector2Int, CellVector3Int, CellVector2UInt, CellVector3UInt,
		CellVector2Float, CellVector3Float, CellVector2String:
		return ShapeTuple
	case CellArrayInt, CellArrayUInt:
		return ShapeArray
	case CellVector2ArrayInt, CellVector3ArrayInt:
		return ShapeTupleArray
	case CellDictionaryStringInt, CellDictionaryStringFloat:
		return ShapeDictionary
	}
	return ShapeScalar
}

// Elem returns the type of the components of a composite type: the scalar
// component kind of a tuple, the element kind of an array, the tuple kind
// of a tuple array and the value kind of a dictionary. Scalars return
// themselves.
func (t CellType) Elem() CellType {
	//exhaustive:enforce
	switch t {
	case CellUInt, CellInt, CellLong, CellString, CellBool, CellLang, CellFloat, CellDouble:
		return t
	case CellVector2Int, CellVector3Int, CellArrayInt:
		return CellInt
	case CellVector2UInt, CellVector3UInt, CellArrayUInt:
		return CellUInt
	case CellVector2Float, CellVector3Float:
		return CellFloat
	case CellVector2String:
		return CellString
	case CellVector2ArrayInt:
		return CellVector2Int
	case CellVector3ArrayInt:
		return CellVector3Int
	case CellDictionaryStringInt:
		return CellInt
	case CellDictionaryStringFloat:
		return CellFloat
	}
	return t
}

// Arity returns the fixed component count of a tuple type, or 0.
func (t CellType) Arity() int {
	//exhaustive:enforce
	switch t {
	case CellVector2Int, CellVector2UInt, CellVector2Float, CellVector2String:
		return 2
	case CellVector3Int, CellVector3UInt, CellVector3Float:
		return 3
	case CellUInt, CellInt, CellLong, CellString, CellBool, CellLang, CellFloat, CellDouble,
		CellArrayInt, CellArrayUInt, CellVector2ArrayInt, CellVector3ArrayInt,
		CellDictionaryStringInt, CellDictionaryStringFloat:
		return 0
	}
	return 0
}
