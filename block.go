/*
 * Copyright 2025 TAOS Data, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package taosws

import (
	"encoding/binary"
	"errors"
	"math"
	"unicode/utf8"
)

// Raw block layout, all little-endian:
//
//	int32   version
//	int32   length of the whole block in bytes
//	int32   row count
//	int32   column count
//	int32   flag segment
//	uint64  group id
//	column count * { uint8 type, uint32 bytes }
//	column count * uint32 data section length
//	column data sections
//
// A fixed-width column section is a null bitmap of (rows+7)/8 bytes followed
// by rows*size value bytes. A variable-width column section is rows int32
// offsets (-1 marks null) followed by the payload area, where every value is
// prefixed with its uint16 byte length.
const blockHeaderSize = 28

// RawBlock is one batch of rows in the server's columnar block encoding.
// All cell accessors are zero-copy views over the block buffer; they stay
// valid for as long as the buffer itself.
type RawBlock struct {
	bytes []byte

	rows int
	cols int

	colTypes []Ty
	colBytes []uint32
	// colData[i] is the offset of column i's data section; for variable
	// width columns colPayload[i] is the offset of its payload area.
	colData    []int
	colPayload []int
}

// NewRawBlock parses a raw block buffer. The buffer is retained, not copied.
func NewRawBlock(buf []byte) (*RawBlock, error) {
	if len(buf) < blockHeaderSize {
		return nil, errors.New("raw block: truncated header")
	}
	length := int(int32(binary.LittleEndian.Uint32(buf[4:])))
	rows := int(int32(binary.LittleEndian.Uint32(buf[8:])))
	cols := int(int32(binary.LittleEndian.Uint32(buf[12:])))
	if rows < 0 || cols < 0 || length > len(buf) {
		return nil, errors.New("raw block: malformed header")
	}

	b := &RawBlock{
		bytes:      buf,
		rows:       rows,
		cols:       cols,
		colTypes:   make([]Ty, cols),
		colBytes:   make([]uint32, cols),
		colData:    make([]int, cols),
		colPayload: make([]int, cols),
	}

	off := blockHeaderSize
	if len(buf) < off+5*cols+4*cols {
		return nil, errors.New("raw block: truncated column info")
	}
	for i := 0; i < cols; i++ {
		b.colTypes[i] = Ty(buf[off])
		b.colBytes[i] = binary.LittleEndian.Uint32(buf[off+1:])
		off += 5
	}
	dataLens := make([]int, cols)
	for i := 0; i < cols; i++ {
		dataLens[i] = int(int32(binary.LittleEndian.Uint32(buf[off:])))
		off += 4
	}

	for i := 0; i < cols; i++ {
		b.colData[i] = off
		if b.colTypes[i].IsVar() {
			b.colPayload[i] = off + 4*rows
			off += 4*rows + dataLens[i]
		} else {
			off += bitmapLen(rows) + b.colTypes[i].FixedSize()*rows
		}
		if off > len(buf) {
			return nil, errors.New("raw block: truncated column data")
		}
	}
	return b, nil
}

// Bytes returns the underlying block buffer.
func (b *RawBlock) Bytes() []byte {
	return b.bytes
}

// Rows returns the number of rows in the block.
func (b *RawBlock) Rows() int {
	return b.rows
}

// Cols returns the number of columns in the block.
func (b *RawBlock) Cols() int {
	return b.cols
}

// Cell returns the type, decoded byte length and raw bytes of the cell at
// (row, col). For variable-width types the length is the actual payload
// length of this cell; for fixed-width types it is the type's size. A null
// cell yields (TyNull, 0, nil). Coordinates must be in range.
func (b *RawBlock) Cell(row, col int) (Ty, uint32, []byte) {
	ty, length, off := b.CellOffset(row, col)
	if off < 0 {
		return ty, length, nil
	}
	return ty, length, b.bytes[off : off+int(length)]
}

// CellOffset is Cell with the data position reported as an offset into the
// block buffer instead of a slice. Null cells report offset -1.
func (b *RawBlock) CellOffset(row, col int) (Ty, uint32, int) {
	ty := b.colTypes[col]
	start := b.colData[col]
	if ty.IsVar() {
		offset := int(int32(binary.LittleEndian.Uint32(b.bytes[start+4*row:])))
		if offset < 0 {
			return TyNull, 0, -1
		}
		pos := b.colPayload[col] + offset
		length := uint32(binary.LittleEndian.Uint16(b.bytes[pos:]))
		return ty, length, pos + 2
	}

	bitmap := b.bytes[start : start+bitmapLen(b.rows)]
	if bitmap[row/8]&(1<<(7-row%8)) != 0 {
		return TyNull, 0, -1
	}
	size := ty.FixedSize()
	return ty, uint32(size), start + bitmapLen(b.rows) + size*row
}

// Value decodes the cell at (row, col) into a Go value: bool, int8..int64,
// uint8..uint64, float32/float64, string for text types, []byte for binary
// types, int64 for raw timestamps, and nil for null cells.
func (b *RawBlock) Value(row, col int) any {
	ty, length, raw := b.Cell(row, col)
	if raw == nil {
		return nil
	}
	switch ty {
	case TyBool:
		return raw[0] != 0
	case TyTinyInt:
		return int8(raw[0])
	case TySmallInt:
		return int16(binary.LittleEndian.Uint16(raw))
	case TyInt:
		return int32(binary.LittleEndian.Uint32(raw))
	case TyBigInt, TyTimestamp:
		return int64(binary.LittleEndian.Uint64(raw))
	case TyUTinyInt:
		return raw[0]
	case TyUSmallInt:
		return binary.LittleEndian.Uint16(raw)
	case TyUInt:
		return binary.LittleEndian.Uint32(raw)
	case TyUBigInt:
		return binary.LittleEndian.Uint64(raw)
	case TyFloat:
		return math.Float32frombits(binary.LittleEndian.Uint32(raw))
	case TyDouble:
		return math.Float64frombits(binary.LittleEndian.Uint64(raw))
	case TyVarChar, TyJson:
		return string(raw)
	case TyNChar:
		return decodeUCS4(raw[:length])
	case TyVarBinary, TyGeometry:
		return raw[:length:length]
	default:
		return raw[:length:length]
	}
}

func bitmapLen(rows int) int {
	return (rows + 7) / 8
}

// NChar payloads are stored as UCS-4LE code points, 4 bytes per rune.

func decodeUCS4(raw []byte) string {
	runes := make([]rune, 0, len(raw)/4)
	for i := 0; i+4 <= len(raw); i += 4 {
		runes = append(runes, rune(binary.LittleEndian.Uint32(raw[i:])))
	}
	return string(runes)
}

func encodeUCS4(s string) []byte {
	buf := make([]byte, 0, 4*utf8.RuneCountInString(s))
	for _, r := range s {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(r))
	}
	return buf
}
