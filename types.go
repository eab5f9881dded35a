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

import "time"

// Ty is the type tag of a column or a cell value.
//
// The numeric values match the data type codes used on the wire and in the
// native ABI, so a Ty can be handed to foreign callers unchanged.
type Ty uint8

const (
	TyNull      Ty = 0
	TyBool      Ty = 1
	TyTinyInt   Ty = 2
	TySmallInt  Ty = 3
	TyInt       Ty = 4
	TyBigInt    Ty = 5
	TyFloat     Ty = 6
	TyDouble    Ty = 7
	TyVarChar   Ty = 8
	TyTimestamp Ty = 9
	TyNChar     Ty = 10
	TyUTinyInt  Ty = 11
	TyUSmallInt Ty = 12
	TyUInt      Ty = 13
	TyUBigInt   Ty = 14
	TyJson      Ty = 15
	TyVarBinary Ty = 16
	TyGeometry  Ty = 20
)

// TyBinary is an alias kept for callers that still use the 2.x type name.
const TyBinary = TyVarChar

var tyNames = map[Ty]string{
	TyNull:      "NULL",
	TyBool:      "BOOL",
	TyTinyInt:   "TINYINT",
	TySmallInt:  "SMALLINT",
	TyInt:       "INT",
	TyBigInt:    "BIGINT",
	TyFloat:     "FLOAT",
	TyDouble:    "DOUBLE",
	TyVarChar:   "VARCHAR",
	TyTimestamp: "TIMESTAMP",
	TyNChar:     "NCHAR",
	TyUTinyInt:  "TINYINT UNSIGNED",
	TyUSmallInt: "SMALLINT UNSIGNED",
	TyUInt:      "INT UNSIGNED",
	TyUBigInt:   "BIGINT UNSIGNED",
	TyJson:      "JSON",
	TyVarBinary: "VARBINARY",
	TyGeometry:  "GEOMETRY",
}

func (ty Ty) String() string {
	if name, ok := tyNames[ty]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsVar reports whether values of this type have per-cell byte lengths.
func (ty Ty) IsVar() bool {
	switch ty {
	case TyVarChar, TyNChar, TyJson, TyVarBinary, TyGeometry:
		return true
	default:
		return false
	}
}

// FixedSize returns the value size in bytes for fixed-width types, and 0 for
// variable-width types.
func (ty Ty) FixedSize() int {
	switch ty {
	case TyBool, TyTinyInt, TyUTinyInt:
		return 1
	case TySmallInt, TyUSmallInt:
		return 2
	case TyInt, TyUInt, TyFloat:
		return 4
	case TyBigInt, TyUBigInt, TyDouble, TyTimestamp:
		return 8
	default:
		return 0
	}
}

// Precision is the time precision of a result set's timestamp columns.
type Precision int

const (
	PrecisionMilli Precision = 0
	PrecisionMicro Precision = 1
	PrecisionNano  Precision = 2
)

func (p Precision) String() string {
	switch p {
	case PrecisionMilli:
		return "ms"
	case PrecisionMicro:
		return "us"
	case PrecisionNano:
		return "ns"
	default:
		return "unknown"
	}
}

// Field describes a single column of a result set.
type Field struct {
	// Name is the column name.
	Name string
	// Type is the column data type.
	Type Ty
	// Bytes is the declared column width. For variable-width columns this is
	// the maximum payload size, not the length of any particular cell.
	Bytes uint32
}

// Time converts a raw timestamp cell value into a time.Time.
func (p Precision) Time(raw int64) time.Time {
	switch p {
	case PrecisionMicro:
		return time.UnixMicro(raw)
	case PrecisionNano:
		return time.Unix(0, raw)
	default:
		return time.UnixMilli(raw)
	}
}

// FormatTimestamp renders a raw timestamp as an RFC 3339 string with the
// fractional digits implied by the precision. With useZ set the instant is
// rendered in UTC with a literal "Z" suffix, otherwise in the local zone with
// a numeric offset.
func FormatTimestamp(raw int64, precision Precision, useZ bool) string {
	var layout string
	switch precision {
	case PrecisionMicro:
		layout = "2006-01-02T15:04:05.000000"
	case PrecisionNano:
		layout = "2006-01-02T15:04:05.000000000"
	default:
		layout = "2006-01-02T15:04:05.000"
	}

	t := precision.Time(raw)
	if useZ {
		return t.UTC().Format(layout + "Z07:00")
	}
	// always a numeric offset, "+00:00" rather than "Z" for UTC
	return t.Local().Format(layout + "-07:00")
}
