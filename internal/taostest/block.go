package taostest

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	taosws "github.com/taosdata/taosws-go"
)

// BuildRawBlock encodes rows into the columnar raw block layout the driver
// parses. It is a test double for the server-side encoder.
func BuildRawBlock(fields []taosws.Field, rows [][]any) []byte {
	nrows := len(rows)
	ncols := len(fields)

	header := make([]byte, 0, 28+9*ncols)
	header = binary.LittleEndian.AppendUint32(header, 1)      // version
	header = binary.LittleEndian.AppendUint32(header, 0)      // length, patched below
	header = binary.LittleEndian.AppendUint32(header, uint32(nrows))
	header = binary.LittleEndian.AppendUint32(header, uint32(ncols))
	header = binary.LittleEndian.AppendUint32(header, 0)      // flag segment
	header = binary.LittleEndian.AppendUint64(header, 0)      // group id

	for _, field := range fields {
		header = append(header, byte(field.Type))
		header = binary.LittleEndian.AppendUint32(header, field.Bytes)
	}

	sections := make([][]byte, ncols)
	lengths := make([]uint32, ncols)
	for col, field := range fields {
		if field.Type.IsVar() {
			sections[col], lengths[col] = encodeVarColumn(field.Type, rows, col)
		} else {
			sections[col], lengths[col] = encodeFixedColumn(field.Type, rows, col)
		}
	}

	for _, length := range lengths {
		header = binary.LittleEndian.AppendUint32(header, length)
	}

	block := header
	for _, section := range sections {
		block = append(block, section...)
	}
	binary.LittleEndian.PutUint32(block[4:], uint32(len(block)))
	return block
}

func encodeFixedColumn(ty taosws.Ty, rows [][]any, col int) ([]byte, uint32) {
	size := ty.FixedSize()
	bitmap := make([]byte, (len(rows)+7)/8)
	data := make([]byte, 0, size*len(rows))

	for row, values := range rows {
		value := values[col]
		if value == nil {
			bitmap[row/8] |= 1 << (7 - row%8)
			data = append(data, make([]byte, size)...)
			continue
		}
		data = append(data, encodeFixedValue(ty, value)...)
	}
	return append(bitmap, data...), uint32(size * len(rows))
}

func encodeFixedValue(ty taosws.Ty, value any) []byte {
	switch ty {
	case taosws.TyBool:
		if value.(bool) {
			return []byte{1}
		}
		return []byte{0}
	case taosws.TyTinyInt:
		return []byte{byte(asInt64(value))}
	case taosws.TyUTinyInt:
		return []byte{byte(asUint64(value))}
	case taosws.TySmallInt:
		return binary.LittleEndian.AppendUint16(nil, uint16(asInt64(value)))
	case taosws.TyUSmallInt:
		return binary.LittleEndian.AppendUint16(nil, uint16(asUint64(value)))
	case taosws.TyInt:
		return binary.LittleEndian.AppendUint32(nil, uint32(asInt64(value)))
	case taosws.TyUInt:
		return binary.LittleEndian.AppendUint32(nil, uint32(asUint64(value)))
	case taosws.TyBigInt, taosws.TyTimestamp:
		return binary.LittleEndian.AppendUint64(nil, uint64(asInt64(value)))
	case taosws.TyUBigInt:
		return binary.LittleEndian.AppendUint64(nil, asUint64(value))
	case taosws.TyFloat:
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(value.(float32)))
	case taosws.TyDouble:
		return binary.LittleEndian.AppendUint64(nil, math.Float64bits(value.(float64)))
	default:
		panic(fmt.Sprintf("taostest: not a fixed-width type: %s", ty))
	}
}

func encodeVarColumn(ty taosws.Ty, rows [][]any, col int) ([]byte, uint32) {
	offsets := make([]byte, 0, 4*len(rows))
	payload := make([]byte, 0)

	for _, values := range rows {
		value := values[col]
		if value == nil {
			offsets = binary.LittleEndian.AppendUint32(offsets, math.MaxUint32) // -1
			continue
		}
		offsets = binary.LittleEndian.AppendUint32(offsets, uint32(len(payload)))
		raw := encodeVarValue(ty, value)
		payload = binary.LittleEndian.AppendUint16(payload, uint16(len(raw)))
		payload = append(payload, raw...)
	}
	return append(offsets, payload...), uint32(len(payload))
}

func encodeVarValue(ty taosws.Ty, value any) []byte {
	switch v := value.(type) {
	case string:
		if ty == taosws.TyNChar {
			return encodeUCS4(v)
		}
		return []byte(v)
	case []byte:
		return v
	default:
		panic(fmt.Sprintf("taostest: unsupported var value %T", value))
	}
}

func encodeUCS4(s string) []byte {
	var buf []byte
	for _, r := range s {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(r))
	}
	return buf
}

func asInt64(value any) int64 {
	switch v := value.(type) {
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case time.Time:
		return v.UnixMilli()
	default:
		panic(fmt.Sprintf("taostest: unsupported integer value %T", value))
	}
}

func asUint64(value any) uint64 {
	switch v := value.(type) {
	case int:
		return uint64(v)
	case uint8:
		return uint64(v)
	case uint16:
		return uint64(v)
	case uint32:
		return uint64(v)
	case uint64:
		return v
	default:
		panic(fmt.Sprintf("taostest: unsupported unsigned value %T", value))
	}
}
