package pack

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/JonMunkholm/tablegen/internal/core"
)

// maxDecompressed caps the memory a compressed blob may expand to.
const maxDecompressed = 512 << 20

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Unpack decodes a blob written by Pack, compressed or not.
// Truncated, damaged or unknown input is rejected with ErrCorruptBlob;
// a blob of another format version with ErrUnsupportedVersion.
func Unpack(blob []byte) (*core.Dataset, error) {
	if bytes.HasPrefix(blob, zstdMagic) {
		dec, err := zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(maxDecompressed),
		)
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		defer dec.Close()

		blob, err = dec.DecodeAll(blob, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: decompress: %v", ErrCorruptBlob, err)
		}
	}

	var (
		version        uint64
		payload        []byte
		crc            uint32
		hasVer, hasPay bool
		hasCRC         bool
	)
	err := walk(blob, func(f field) error {
		switch f.num {
		case envVersion:
			version, hasVer = f.u, true
			return f.want(protowire.VarintType)
		case envPayload:
			payload, hasPay = f.val, true
			return f.want(protowire.BytesType)
		case envCRC:
			crc, hasCRC = uint32(f.u), true
			return f.want(protowire.Fixed32Type)
		}
		return f.unknown("envelope")
	})
	if err != nil {
		return nil, err
	}

	switch {
	case !hasVer:
		return nil, corruptf("envelope has no version")
	case version != FormatVersion:
		return nil, fmt.Errorf("%w: %d (want %d)", ErrUnsupportedVersion, version, FormatVersion)
	case !hasPay:
		return nil, corruptf("envelope has no payload")
	case !hasCRC:
		return nil, corruptf("envelope has no checksum")
	case crc32.Checksum(payload, castagnoli) != crc:
		return nil, corruptf("checksum mismatch")
	}

	return decodePayload(payload)
}

func decodePayload(b []byte) (*core.Dataset, error) {
	ds := &core.Dataset{}
	err := walk(b, func(f field) error {
		switch f.num {
		case payBuildID:
			if err := f.want(protowire.BytesType); err != nil {
				return err
			}
			id, err := uuid.FromBytes(f.val)
			if err != nil {
				return corruptf("build id: %v", err)
			}
			ds.BuildID = id
			return nil
		case payCommitID:
			ds.CommitID = string(f.val)
			return f.want(protowire.BytesType)
		case payCreatedAt:
			ds.CreatedAt = time.UnixMilli(int64(f.u)).UTC()
			return f.want(protowire.VarintType)
		case payAudience:
			if err := f.want(protowire.VarintType); err != nil {
				return err
			}
			a := core.Audience(f.u)
			if f.u > math.MaxInt32 || !a.Valid() {
				return corruptf("unknown audience %d", f.u)
			}
			ds.Audience = a
			return nil
		case payTable:
			if err := f.want(protowire.BytesType); err != nil {
				return err
			}
			t, err := decodeTable(f.val)
			if err != nil {
				return err
			}
			ds.Tables = append(ds.Tables, t)
			return nil
		}
		return f.unknown("payload")
	})
	if err != nil {
		return nil, err
	}
	return ds, nil
}

func decodeTable(b []byte) (*core.CompiledTable, error) {
	t := &core.CompiledTable{}
	var rows [][]byte
	err := walk(b, func(f field) error {
		if err := f.want(protowire.BytesType); err != nil {
			return err
		}
		switch f.num {
		case tblName:
			t.Name = string(f.val)
			return nil
		case tblColumn:
			c, err := decodeColumn(f.val)
			if err != nil {
				return err
			}
			t.Columns = append(t.Columns, c)
			return nil
		case tblRow:
			rows = append(rows, f.val)
			return nil
		}
		return f.unknown("table")
	})
	if err != nil {
		return nil, err
	}

	t.Rows = make([]core.Row, 0, len(rows))
	for i, rb := range rows {
		row, err := decodeRow(t, rb)
		if err != nil {
			return nil, fmt.Errorf("table %s row %d: %w", t.Name, i+1, err)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func decodeColumn(b []byte) (core.Column, error) {
	var c core.Column
	err := walk(b, func(f field) error {
		if err := f.want(protowire.BytesType); err != nil {
			return err
		}
		var err error
		switch f.num {
		case colName:
			c.Name = string(f.val)
		case colType:
			if c.Type, err = core.ParseCellType(string(f.val)); err != nil {
				return corruptf("column: %v", err)
			}
		case colTag:
			if c.Visibility, err = core.ParseVisibilityTag(string(f.val)); err != nil {
				return corruptf("column: %v", err)
			}
		default:
			return f.unknown("column")
		}
		return nil
	})
	if err == nil && (c.Type == 0 || c.Visibility == 0) {
		err = corruptf("column %q is missing its type or tag", c.Name)
	}
	return c, err
}

func decodeRow(t *core.CompiledTable, b []byte) (core.Row, error) {
	row := make(core.Row, 0, len(t.Columns))
	err := walk(b, func(f field) error {
		if f.num != rowValue {
			return f.unknown("row")
		}
		if err := f.want(protowire.BytesType); err != nil {
			return err
		}
		if len(row) == len(t.Columns) {
			return corruptf("more values than the %d columns", len(t.Columns))
		}
		v, err := decodeValue(t.Columns[len(row)].Type, f.val)
		if err != nil {
			return err
		}
		row = append(row, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(row) != len(t.Columns) {
		return nil, corruptf("%d values for %d columns", len(row), len(t.Columns))
	}
	return row, nil
}

// valueField returns the one field a value of type t is written to.
func valueField(t core.CellType) (protowire.Number, protowire.Type) {
	//exhaustive:enforce
	switch t {
	case core.CellUInt:
		return valU32, protowire.VarintType
	case core.CellInt:
		return valI32, protowire.VarintType
	case core.CellLong:
		return valI64, protowire.VarintType
	case core.CellString, core.CellLang:
		return valStr, protowire.BytesType
	case core.CellBool:
		return valBool, protowire.VarintType
	case core.CellFloat:
		return valF32, protowire.Fixed32Type
	case core.CellDouble:
		return valF64, protowire.Fixed64Type
	case core.CellVector2Int, core.CellVector3Int, core.CellVector2UInt, core.CellVector3UInt,
		core.CellVector2Float, core.CellVector3Float, core.CellVector2String,
		core.CellArrayInt, core.CellArrayUInt, core.CellVector2ArrayInt, core.CellVector3ArrayInt:
		return valElem, protowire.BytesType
	case core.CellDictionaryStringInt, core.CellDictionaryStringFloat:
		return valEntry, protowire.BytesType
	}
	return 0, 0
}

func decodeValue(t core.CellType, b []byte) (core.Value, error) {
	v := core.Value{Type: t}
	num, typ := valueField(t)
	if num == 0 {
		return v, corruptf("unknown cell type %d", t)
	}

	count := 0
	err := walk(b, func(f field) error {
		if f.num != num || f.typ != typ {
			return corruptf("%s value has field %d of wire type %d", t, f.num, f.typ)
		}
		count++

		//exhaustive:enforce
		switch t {
		case core.CellUInt:
			if f.u > math.MaxUint32 {
				return corruptf("uint value %d out of range", f.u)
			}
			v.U32 = uint32(f.u)
		case core.CellInt:
			n := protowire.DecodeZigZag(f.u)
			if n < math.MinInt32 || n > math.MaxInt32 {
				return corruptf("int value %d out of range", n)
			}
			v.I32 = int32(n)
		case core.CellLong:
			v.I64 = protowire.DecodeZigZag(f.u)
		case core.CellString, core.CellLang:
			v.Str = string(f.val)
		case core.CellBool:
			if f.u > 1 {
				return corruptf("bool value %d", f.u)
			}
			v.Bool = protowire.DecodeBool(f.u)
		case core.CellFloat:
			v.F32 = math.Float32frombits(uint32(f.u))
		case core.CellDouble:
			v.F64 = math.Float64frombits(f.u)
		case core.CellVector2Int, core.CellVector3Int, core.CellVector2UInt, core.CellVector3UInt,
			core.CellVector2Float, core.CellVector3Float, core.CellVector2String,
			core.CellArrayInt, core.CellArrayUInt, core.CellVector2ArrayInt, core.CellVector3ArrayInt:
			e, err := decodeValue(t.Elem(), f.val)
			if err != nil {
				return err
			}
			v.Elems = append(v.Elems, e)
		case core.CellDictionaryStringInt, core.CellDictionaryStringFloat:
			e, err := decodeEntry(t.Elem(), f.val)
			if err != nil {
				return err
			}
			v.Entries = append(v.Entries, e)
		}
		return nil
	})
	if err != nil {
		return core.Value{}, err
	}

	switch t.Shape() {
	case core.ShapeScalar:
		if count != 1 {
			return core.Value{}, corruptf("%s value has %d fields", t, count)
		}
	case core.ShapeTuple:
		if count != t.Arity() {
			return core.Value{}, corruptf("%s value has %d components", t, count)
		}
	case core.ShapeArray, core.ShapeTupleArray, core.ShapeDictionary:
	}
	return v, nil
}

func decodeEntry(elem core.CellType, b []byte) (core.Entry, error) {
	var (
		e        core.Entry
		hasValue bool
	)
	err := walk(b, func(f field) error {
		if err := f.want(protowire.BytesType); err != nil {
			return err
		}
		switch f.num {
		case entryKey:
			e.Key = string(f.val)
			return nil
		case entryValue:
			v, err := decodeValue(elem, f.val)
			if err != nil {
				return err
			}
			e.Value, hasValue = v, true
			return nil
		}
		return f.unknown("dictionary entry")
	})
	if err == nil && !hasValue {
		err = corruptf("dictionary entry %q has no value", e.Key)
	}
	return e, err
}

// field is one decoded tag/value pair. Scalars are in u, bytes in val.
type field struct {
	num protowire.Number
	typ protowire.Type
	u   uint64
	val []byte
}

func (f field) want(typ protowire.Type) error {
	if f.typ != typ {
		return corruptf("field %d has wire type %d, want %d", f.num, f.typ, typ)
	}
	return nil
}

func (f field) unknown(msg string) error {
	return corruptf("unknown %s field %d", msg, f.num)
}

// walk calls fn for every field of the message in b, in order.
func walk(b []byte, fn func(field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return corruptf("tag: %v", protowire.ParseError(n))
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.u, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			f.u = uint64(v)
		case protowire.Fixed64Type:
			f.u, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.val, n = protowire.ConsumeBytes(b)
		default:
			return corruptf("field %d has unsupported wire type %d", num, typ)
		}
		if n < 0 {
			return corruptf("field %d: %v", num, protowire.ParseError(n))
		}
		b = b[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptBlob, fmt.Sprintf(format, args...))
}
