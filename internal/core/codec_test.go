package core

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ints(ns ...int32) []Value {
	out := make([]Value, len(ns))
	for i, n := range ns {
		out[i] = Value{Type: CellInt, I32: n}
	}
	return out
}

func TestParseEncodeLua(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		typ  CellType
		raw  string
		want Value
		lua  string
	}{
		{"uint", CellUInt, "4294967295", Value{Type: CellUInt, U32: math.MaxUint32}, "4294967295"},
		{"int", CellInt, "-12", Value{Type: CellInt, I32: -12}, "-12"},
		{"long", CellLong, "9007199254740993", Value{Type: CellLong, I64: 9007199254740993}, "9007199254740993"},
		{"string", CellString, `say "hi"`, Value{Type: CellString, Str: `say "hi"`}, `"say \"hi\""`},
		{"lang", CellLang, "line1\nline2", Value{Type: CellLang, Str: "line1\nline2"}, `"line1\nline2"`},
		{"bool one", CellBool, "1", Value{Type: CellBool, Bool: true}, "true"},
		{"bool true", CellBool, "true", Value{Type: CellBool, Bool: true}, "true"},
		{"bool false", CellBool, "false", Value{Type: CellBool}, "false"},
		{"float", CellFloat, "1.5", Value{Type: CellFloat, F32: 1.5}, "1.5"},
		{"float shortest", CellFloat, "0.1", Value{Type: CellFloat, F32: 0.1}, "0.1"},
		{"double", CellDouble, "-2.25e3", Value{Type: CellDouble, F64: -2250}, "-2250"},
		{"vector2 int", CellVector2Int, "3,4", Value{Type: CellVector2Int, Elems: ints(3, 4)}, "{ 3, 4 }"},
		{"vector3 int", CellVector3Int, "1,-2,3", Value{Type: CellVector3Int, Elems: ints(1, -2, 3)}, "{ 1, -2, 3 }"},
		{"vector2 uint", CellVector2UInt, "7,8", Value{Type: CellVector2UInt, Elems: []Value{
			{Type: CellUInt, U32: 7}, {Type: CellUInt, U32: 8},
		}}, "{ 7, 8 }"},
		{"vector3 uint blank component", CellVector3UInt, "1,,3", Value{Type: CellVector3UInt, Elems: []Value{
			{Type: CellUInt, U32: 1}, {Type: CellUInt}, {Type: CellUInt, U32: 3},
		}}, "{ 1, 0, 3 }"},
		{"vector2 float", CellVector2Float, "0.5,2", Value{Type: CellVector2Float, Elems: []Value{
			{Type: CellFloat, F32: 0.5}, {Type: CellFloat, F32: 2},
		}}, "{ 0.5, 2 }"},
		{"vector3 float", CellVector3Float, "1,2,3", Value{Type: CellVector3Float, Elems: []Value{
			{Type: CellFloat, F32: 1}, {Type: CellFloat, F32: 2}, {Type: CellFloat, F32: 3},
		}}, "{ 1, 2, 3 }"},
		{"vector2 string", CellVector2String, "a,b", Value{Type: CellVector2String, Elems: []Value{
			{Type: CellString, Str: "a"}, {Type: CellString, Str: "b"},
		}}, `{ "a", "b" }`},
		{"array int", CellArrayInt, "1,2,3", Value{Type: CellArrayInt, Elems: ints(1, 2, 3)}, "{ 1, 2, 3 }"},
		{"array uint single", CellArrayUInt, "9", Value{Type: CellArrayUInt, Elems: []Value{{Type: CellUInt, U32: 9}}}, "{ 9 }"},
		{"vector2 array int", CellVector2ArrayInt, "1,2;3,4", Value{Type: CellVector2ArrayInt, Elems: []Value{
			{Type: CellVector2Int, Elems: ints(1, 2)},
			{Type: CellVector2Int, Elems: ints(3, 4)},
		}}, "{ { 1, 2 }, { 3, 4 } }"},
		{"vector3 array int", CellVector3ArrayInt, "1,2,3", Value{Type: CellVector3ArrayInt, Elems: []Value{
			{Type: CellVector3Int, Elems: ints(1, 2, 3)},
		}}, "{ { 1, 2, 3 } }"},
		{"dictionary blank", CellDictionaryStringInt, "", Value{Type: CellDictionaryStringInt}, "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Parse(tt.typ, tt.raw)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "Parse(%s, %q) = %+v, want %+v", tt.typ, tt.raw, got, tt.want)
			assert.Equal(t, tt.lua, EncodeLua(got))
		})
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		typ  CellType
		raw  string
		want error
	}{
		{"bool literal", CellBool, "notabool", ErrMalformedBool},
		{"bool is case sensitive", CellBool, "TRUE", ErrMalformedBool},
		{"uint negative", CellUInt, "-1", ErrMalformedScalar},
		{"uint overflow", CellUInt, "4294967296", ErrMalformedScalar},
		{"int overflow", CellInt, "2147483648", ErrMalformedScalar},
		{"int hex", CellInt, "0x10", ErrMalformedScalar},
		{"long junk", CellLong, "12ab", ErrMalformedScalar},
		{"float junk", CellFloat, "1.2.3", ErrMalformedScalar},
		{"double junk", CellDouble, "abc", ErrMalformedScalar},
		{"tuple component", CellVector2Int, "1,x", ErrMalformedScalar},
		{"array element", CellArrayUInt, "1,-2", ErrMalformedScalar},
		{"tuple array group", CellVector2ArrayInt, "1,2;3", ErrArityMismatch},
		{"dictionary", CellDictionaryStringInt, "a:1", ErrUnimplemented},
		{"dictionary float", CellDictionaryStringFloat, "a=1.5", ErrUnimplemented},
		{"unknown type", CellType(99), "1", ErrUnknownCellType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse(tt.typ, tt.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.typ, pe.Type)
			assert.Equal(t, tt.raw, pe.Raw)
		})
	}
}

func TestParseMalformedBoolCarriesRaw(t *testing.T) {
	_, err := Parse(CellBool, "notabool")

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrMalformedBool, pe.Err)
	assert.Equal(t, "notabool", pe.Raw)
	assert.Contains(t, err.Error(), `"notabool"`)
}

func TestDefaultSentinel(t *testing.T) {
	t.Parallel()

	for _, typ := range AllCellTypes() {
		t.Run(typ.String(), func(t *testing.T) {
			t.Parallel()

			blank, err := Parse(typ, "")
			require.NoError(t, err)
			zero, err := Parse(typ, "0")
			require.NoError(t, err)

			assert.True(t, blank.Equal(Zero(typ)), "Parse(%q) is not the zero value", "")
			assert.True(t, zero.Equal(Zero(typ)), "Parse(%q) is not the zero value", "0")
		})
	}
}

func TestArity(t *testing.T) {
	t.Parallel()

	raws := []string{"1", "1,2", "1,2,3", "1,2,3,4", ",", ",,,"}
	for _, typ := range AllCellTypes() {
		if typ.Shape() != ShapeTuple {
			continue
		}
		for _, raw := range raws {
			got := strings.Count(raw, ",") + 1
			_, err := Parse(typ, raw)
			if got == typ.Arity() {
				assert.NoError(t, err, "%s %q", typ, raw)
				continue
			}
			var pe *ParseError
			require.ErrorAs(t, err, &pe, "%s %q", typ, raw)
			assert.ErrorIs(t, err, ErrArityMismatch)
			assert.Equal(t, typ.Arity(), pe.Expected)
			assert.Equal(t, got, pe.Got)
		}
	}
}

func TestEveryCellTypeIsWired(t *testing.T) {
	t.Parallel()

	samples := map[Shape]string{
		ShapeScalar:     "1",
		ShapeTuple:      "",
		ShapeArray:      "1,2",
		ShapeTupleArray: "",
		ShapeDictionary: "",
	}
	for _, typ := range AllCellTypes() {
		assert.True(t, typ.Valid())
		assert.NotContains(t, typ.String(), "cell_type(")

		raw := samples[typ.Shape()]
		if typ == CellBool {
			raw = "true"
		}
		v, err := Parse(typ, raw)
		require.NoError(t, err, typ.String())
		assert.Equal(t, typ, v.Type)
		assert.NotEmpty(t, EncodeLua(v), typ.String())
	}
}

func TestEncodeLuaSpecialFloats(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "(0/0)", EncodeLua(Value{Type: CellDouble, F64: math.NaN()}))
	assert.Equal(t, "math.huge", EncodeLua(Value{Type: CellDouble, F64: math.Inf(1)}))
	assert.Equal(t, "-math.huge", EncodeLua(Value{Type: CellFloat, F32: float32(math.Inf(-1))}))
}

func TestEncodeLuaDictionary(t *testing.T) {
	t.Parallel()

	v := Value{Type: CellDictionaryStringInt, Entries: []Entry{
		{Key: "hp", Value: Value{Type: CellInt, I32: 10}},
		{Key: "attack speed", Value: Value{Type: CellInt, I32: 2}},
		{Key: "end", Value: Value{Type: CellInt, I32: 1}},
	}}
	assert.Equal(t, `{ { ["attack speed"] = 2 }, { ["end"] = 1 }, { hp = 10 } }`, EncodeLua(v))
}

func TestQuoteLua(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"", `""`},
		{"plain", `"plain"`},
		{`a\b`, `"a\\b"`},
		{"cr\r", `"cr\r"`},
		{"tab\t1", `"tab\0091"`},
		{"héllo", `"héllo"`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, QuoteLua(tt.in), "QuoteLua(%q)", tt.in)
	}
}

func TestIsLuaIdent(t *testing.T) {
	t.Parallel()

	assert.True(t, IsLuaIdent("hp"))
	assert.True(t, IsLuaIdent("_max_2"))
	assert.False(t, IsLuaIdent("2x"))
	assert.False(t, IsLuaIdent("end"))
	assert.False(t, IsLuaIdent("with space"))
	assert.False(t, IsLuaIdent(""))
}
