package core

// codec.go converts raw sheet strings into typed values and typed values into
// Lua literals.
//
// Grammar summary:
//   - "" and "0" are the default sentinel for every type and yield Zero(t).
//     A composite cell of exactly "0" therefore reads as blank, and so does a
//     string cell of "0". Sheets authored for the original tool rely on this.
//   - scalars use strconv's base-10 integer and float grammars
//   - bool accepts "1", "true" and "false"
//   - tuples and arrays split on ','; tuple arrays split on ';' then ','
//   - dictionaries have no grammar yet and only accept the sentinel

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Parse converts one raw cell string into a Value of type t.
// It never panics; failures are *ParseError values wrapping a sentinel.
func Parse(t CellType, raw string) (Value, error) {
	if raw == "" || raw == "0" {
		return Zero(t), nil
	}

	//exhaustive:enforce
	switch t {
	case CellUInt:
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return Value{}, malformed(t, raw)
		}
		return Value{Type: t, U32: uint32(n)}, nil
	case CellInt:
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return Value{}, malformed(t, raw)
		}
		return Value{Type: t, I32: int32(n)}, nil
	case CellLong:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Value{}, malformed(t, raw)
		}
		return Value{Type: t, I64: n}, nil
	case CellString, CellLang:
		return Value{Type: t, Str: raw}, nil
	case CellBool:
		switch raw {
		case "1", "true":
			return Value{Type: t, Bool: true}, nil
		case "false":
			return Value{Type: t}, nil
		}
		return Value{}, &ParseError{Type: t, Raw: raw, Err: ErrMalformedBool}
	case CellFloat:
		f, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return Value{}, malformed(t, raw)
		}
		return Value{Type: t, F32: float32(f)}, nil
	case CellDouble:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{}, malformed(t, raw)
		}
		return Value{Type: t, F64: f}, nil
	case CellVector2Int, CellVector3Int, CellVector2UInt, CellVector3UInt,
		CellVector2Float, CellVector3Float, CellVector2String:
		return parseTuple(t, raw)
	case CellArrayInt, CellArrayUInt:
		return parseList(t, raw, ",")
	case CellVector2ArrayInt, CellVector3ArrayInt:
		return parseList(t, raw, ";")
	case CellDictionaryStringInt, CellDictionaryStringFloat:
		return Value{}, &ParseError{Type: t, Raw: raw, Err: ErrUnimplemented}
	}
	return Value{}, &ParseError{Type: t, Raw: raw, Err: ErrUnknownCellType}
}

// parseTuple parses a fixed-arity, comma separated tuple.
// Components go through Parse, so a blank component reads as zero.
func parseTuple(t CellType, raw string) (Value, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != t.Arity() {
		return Value{}, &ParseError{Type: t, Raw: raw, Expected: t.Arity(), Got: len(parts), Err: ErrArityMismatch}
	}
	return parseElems(t, raw, parts)
}

// parseList parses a variable-length list whose elements are of t.Elem().
func parseList(t CellType, raw, sep string) (Value, error) {
	return parseElems(t, raw, strings.Split(raw, sep))
}

func parseElems(t CellType, raw string, parts []string) (Value, error) {
	elem := t.Elem()
	v := Value{Type: t, Elems: make([]Value, len(parts))}
	for i, part := range parts {
		ev, err := Parse(elem, part)
		if err != nil {
			return Value{}, &ParseError{Type: t, Raw: raw, Err: err}
		}
		v.Elems[i] = ev
	}
	return v, nil
}

func malformed(t CellType, raw string) error {
	return &ParseError{Type: t, Raw: raw, Err: ErrMalformedScalar}
}

// EncodeLua renders v as a Lua literal.
func EncodeLua(v Value) string {
	var b strings.Builder
	writeLua(&b, v)
	return b.String()
}

func writeLua(b *strings.Builder, v Value) {
	//exhaustive:enforce
	switch v.Type {
	case CellUInt:
		b.WriteString(strconv.FormatUint(uint64(v.U32), 10))
	case CellInt:
		b.WriteString(strconv.FormatInt(int64(v.I32), 10))
	case CellLong:
		b.WriteString(strconv.FormatInt(v.I64, 10))
	case CellString, CellLang:
		b.WriteString(QuoteLua(v.Str))
	case CellBool:
		b.WriteString(strconv.FormatBool(v.Bool))
	case CellFloat:
		b.WriteString(formatLuaFloat(float64(v.F32), 32))
	case CellDouble:
		b.WriteString(formatLuaFloat(v.F64, 64))
	case CellVector2Int, CellVector3Int, CellVector2UInt, CellVector3UInt,
		CellVector2Float, CellVector3Float, CellVector2String,
		CellArrayInt, CellArrayUInt, CellVector2ArrayInt, CellVector3ArrayInt:
		if len(v.Elems) == 0 {
			b.WriteString("{}")
			return
		}
		b.WriteString("{ ")
		for i, e := range v.Elems {
			if i > 0 {
				b.WriteString(", ")
			}
			writeLua(b, e)
		}
		b.WriteString(" }")
	case CellDictionaryStringInt, CellDictionaryStringFloat:
		if len(v.Entries) == 0 {
			b.WriteString("{}")
			return
		}
		entries := append([]Entry(nil), v.Entries...)
		sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
		b.WriteString("{ ")
		for i, e := range entries {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("{ ")
			if IsLuaIdent(e.Key) {
				b.WriteString(e.Key)
			} else {
				b.WriteString("[" + QuoteLua(e.Key) + "]")
			}
			b.WriteString(" = ")
			writeLua(b, e.Value)
			b.WriteString(" }")
		}
		b.WriteString(" }")
	}
}

// formatLuaFloat prints the shortest representation that reads back to the
// same value. Lua has no NaN or infinity literals, so those become
// expressions.
func formatLuaFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "(0/0)"
	case math.IsInf(f, 1):
		return "math.huge"
	case math.IsInf(f, -1):
		return "-math.huge"
	}
	return strconv.FormatFloat(f, 'g', -1, bits)
}

// QuoteLua returns s as a double-quoted Lua string literal.
// Backslash, quote, CR and LF get their short escapes; other control bytes
// use three-digit decimal escapes so a following digit is never absorbed.
func QuoteLua(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\':
			b.WriteString(`\\`)
		case c == '"':
			b.WriteString(`\"`)
		case c == '\r':
			b.WriteString(`\r`)
		case c == '\n':
			b.WriteString(`\n`)
		case c < 0x20 || c == 0x7f:
			fmt.Fprintf(&b, "\\%03d", c)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

var luaKeywords = map[string]bool{
	"and": true, "break": true, "do": true, "else": true, "elseif": true, "end": true,
	"false": true, "for": true, "function": true, "goto": true, "if": true, "in": true,
	"local": true, "nil": true, "not": true, "or": true, "repeat": true, "return": true,
	"then": true, "true": true, "until": true, "while": true,
}

// IsLuaIdent reports whether s can be written as a bare Lua field name.
func IsLuaIdent(s string) bool {
	if s == "" || luaKeywords[s] {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
