// Package pack serializes compiled datasets into the versioned binary
// artifact and reads them back.
//
// The blob is protobuf wire format written field by field with protowire,
// so any protobuf-aware tool can inspect it, and it is deterministic: fields
// are always written in the same order and zero values are written
// explicitly. Layout:
//
//	Envelope  1 version (varint)  2 payload (bytes)  3 crc32c of payload (fixed32)
//	Payload   1 build id  2 commit id  3 created at, unix ms  4 audience  5 table*
//	Table     1 name  2 column*  3 row*
//	Column    1 name  2 cell type label  3 visibility tag
//	Row       1 value*
//	Value     one field by kind:
//	          1 uint32  2 sint32  3 sint64  4 string  5 bool
//	          6 float (fixed32)  7 double (fixed64)
//	          8 element value* (tuples, arrays)  9 entry* {1 key, 2 value}
//
// When compression is enabled the whole envelope is wrapped in a zstd frame.
package pack

import (
	"errors"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/JonMunkholm/tablegen/internal/core"
)

// FormatVersion is written into every envelope. Unpack rejects any other.
const FormatVersion = 1

// Compression level bounds, in zstd's 1-22 scale with 0 as fastest.
const (
	MinLevel     = 0
	MaxLevel     = 22
	DefaultLevel = 4
)

var (
	ErrCorruptBlob        = errors.New("corrupt blob")
	ErrUnsupportedVersion = errors.New("unsupported blob version")
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Options controls how a dataset is packed.
type Options struct {
	Compress bool
	Level    int // zstd effort, MinLevel..MaxLevel
}

// Envelope field numbers.
const (
	envVersion protowire.Number = 1
	envPayload protowire.Number = 2
	envCRC     protowire.Number = 3
)

// Payload field numbers.
const (
	payBuildID   protowire.Number = 1
	payCommitID  protowire.Number = 2
	payCreatedAt protowire.Number = 3
	payAudience  protowire.Number = 4
	payTable     protowire.Number = 5
)

// Table, column and row field numbers.
const (
	tblName   protowire.Number = 1
	tblColumn protowire.Number = 2
	tblRow    protowire.Number = 3

	colName protowire.Number = 1
	colType protowire.Number = 2
	colTag  protowire.Number = 3

	rowValue protowire.Number = 1
)

// Value field numbers, one per kind.
const (
	valU32   protowire.Number = 1
	valI32   protowire.Number = 2
	valI64   protowire.Number = 3
	valStr   protowire.Number = 4
	valBool  protowire.Number = 5
	valF32   protowire.Number = 6
	valF64   protowire.Number = 7
	valElem  protowire.Number = 8
	valEntry protowire.Number = 9

	entryKey   protowire.Number = 1
	entryValue protowire.Number = 2
)

// Pack encodes ds into one blob.
func Pack(ds *core.Dataset, opts Options) ([]byte, error) {
	if opts.Level < MinLevel || opts.Level > MaxLevel {
		return nil, fmt.Errorf("compression level %d out of range %d-%d", opts.Level, MinLevel, MaxLevel)
	}

	payload, err := appendPayload(nil, ds)
	if err != nil {
		return nil, err
	}

	var env []byte
	env = protowire.AppendTag(env, envVersion, protowire.VarintType)
	env = protowire.AppendVarint(env, FormatVersion)
	env = protowire.AppendTag(env, envPayload, protowire.BytesType)
	env = protowire.AppendBytes(env, payload)
	env = protowire.AppendTag(env, envCRC, protowire.Fixed32Type)
	env = protowire.AppendFixed32(env, crc32.Checksum(payload, castagnoli))

	if !opts.Compress {
		return env, nil
	}

	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(opts.Level)),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(env, make([]byte, 0, len(env)/2)), nil
}

func appendPayload(b []byte, ds *core.Dataset) ([]byte, error) {
	b = protowire.AppendTag(b, payBuildID, protowire.BytesType)
	b = protowire.AppendBytes(b, ds.BuildID[:])
	b = protowire.AppendTag(b, payCommitID, protowire.BytesType)
	b = protowire.AppendString(b, ds.CommitID)
	b = protowire.AppendTag(b, payCreatedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(ds.CreatedAt.UnixMilli()))
	b = protowire.AppendTag(b, payAudience, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(ds.Audience))

	for _, t := range ds.Tables {
		tb, err := appendTable(nil, t)
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, payTable, protowire.BytesType)
		b = protowire.AppendBytes(b, tb)
	}
	return b, nil
}

func appendTable(b []byte, t *core.CompiledTable) ([]byte, error) {
	b = protowire.AppendTag(b, tblName, protowire.BytesType)
	b = protowire.AppendString(b, t.Name)

	for _, c := range t.Columns {
		var cb []byte
		cb = protowire.AppendTag(cb, colName, protowire.BytesType)
		cb = protowire.AppendString(cb, c.Name)
		cb = protowire.AppendTag(cb, colType, protowire.BytesType)
		cb = protowire.AppendString(cb, c.Type.String())
		cb = protowire.AppendTag(cb, colTag, protowire.BytesType)
		cb = protowire.AppendString(cb, c.Visibility.String())

		b = protowire.AppendTag(b, tblColumn, protowire.BytesType)
		b = protowire.AppendBytes(b, cb)
	}

	var rb []byte
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return nil, fmt.Errorf("pack table %s row %d: %w: %d values for %d columns",
				t.Name, i+1, core.ErrRowArityMismatch, len(row), len(t.Columns))
		}
		rb = rb[:0]
		for j, v := range row {
			if v.Type != t.Columns[j].Type {
				return nil, fmt.Errorf("pack table %s row %d column %s: value is %s, column is %s",
					t.Name, i+1, t.Columns[j].Name, v.Type, t.Columns[j].Type)
			}
			rb = protowire.AppendTag(rb, rowValue, protowire.BytesType)
			rb = protowire.AppendBytes(rb, appendValue(nil, v))
		}
		b = protowire.AppendTag(b, tblRow, protowire.BytesType)
		b = protowire.AppendBytes(b, rb)
	}
	return b, nil
}

func appendValue(b []byte, v core.Value) []byte {
	//exhaustive:enforce
	switch v.Type {
	case core.CellUInt:
		b = protowire.AppendTag(b, valU32, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v.U32))
	case core.CellInt:
		b = protowire.AppendTag(b, valI32, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(v.I32)))
	case core.CellLong:
		b = protowire.AppendTag(b, valI64, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(v.I64))
	case core.CellString, core.CellLang:
		b = protowire.AppendTag(b, valStr, protowire.BytesType)
		b = protowire.AppendString(b, v.Str)
	case core.CellBool:
		b = protowire.AppendTag(b, valBool, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(v.Bool))
	case core.CellFloat:
		b = protowire.AppendTag(b, valF32, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(v.F32))
	case core.CellDouble:
		b = protowire.AppendTag(b, valF64, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(v.F64))
	case core.CellVector2Int, core.CellVector3Int, core.CellVector2UInt, core.CellVector3UInt,
		core.CellVector2Float, core.CellVector3Float, core.CellVector2String,
		core.CellArrayInt, core.CellArrayUInt, core.CellVector2ArrayInt, core.CellVector3ArrayInt:
		for _, e := range v.Elems {
			b = protowire.AppendTag(b, valElem, protowire.BytesType)
			b = protowire.AppendBytes(b, appendValue(nil, e))
		}
	case core.CellDictionaryStringInt, core.CellDictionaryStringFloat:
		for _, e := range v.Entries {
			var eb []byte
			eb = protowire.AppendTag(eb, entryKey, protowire.BytesType)
			eb = protowire.AppendString(eb, e.Key)
			eb = protowire.AppendTag(eb, entryValue, protowire.BytesType)
			eb = protowire.AppendBytes(eb, appendValue(nil, e.Value))

			b = protowire.AppendTag(b, valEntry, protowire.BytesType)
			b = protowire.AppendBytes(b, eb)
		}
	}
	return b
}
