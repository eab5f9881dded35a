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
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// ArrowSchema maps the result schema to an Arrow schema. Timestamp columns
// carry the result set's time unit.
func ArrowSchema(fields []Field, precision Precision) (*arrow.Schema, error) {
	arrowFields := make([]arrow.Field, 0, len(fields))
	for _, field := range fields {
		dt, err := arrowType(field.Type, precision)
		if err != nil {
			return nil, err
		}
		arrowFields = append(arrowFields, arrow.Field{
			Name:     field.Name,
			Type:     dt,
			Nullable: true,
		})
	}
	return arrow.NewSchema(arrowFields, nil), nil
}

func arrowType(ty Ty, precision Precision) (arrow.DataType, error) {
	switch ty {
	case TyBool:
		return arrow.FixedWidthTypes.Boolean, nil
	case TyTinyInt:
		return arrow.PrimitiveTypes.Int8, nil
	case TySmallInt:
		return arrow.PrimitiveTypes.Int16, nil
	case TyInt:
		return arrow.PrimitiveTypes.Int32, nil
	case TyBigInt:
		return arrow.PrimitiveTypes.Int64, nil
	case TyUTinyInt:
		return arrow.PrimitiveTypes.Uint8, nil
	case TyUSmallInt:
		return arrow.PrimitiveTypes.Uint16, nil
	case TyUInt:
		return arrow.PrimitiveTypes.Uint32, nil
	case TyUBigInt:
		return arrow.PrimitiveTypes.Uint64, nil
	case TyFloat:
		return arrow.PrimitiveTypes.Float32, nil
	case TyDouble:
		return arrow.PrimitiveTypes.Float64, nil
	case TyTimestamp:
		return &arrow.TimestampType{Unit: arrowTimeUnit(precision)}, nil
	case TyVarChar, TyNChar, TyJson:
		return arrow.BinaryTypes.String, nil
	case TyVarBinary, TyGeometry:
		return arrow.BinaryTypes.Binary, nil
	default:
		return nil, fmt.Errorf("unsupported arrow conversion for type %s", ty)
	}
}

func arrowTimeUnit(precision Precision) arrow.TimeUnit {
	switch precision {
	case PrecisionMicro:
		return arrow.Microsecond
	case PrecisionNano:
		return arrow.Nanosecond
	default:
		return arrow.Millisecond
	}
}

// ToArrowBatch drains the remaining blocks of the result set and returns them
// as Arrow records, one record per fetched block.
func (rs *ResultSet) ToArrowBatch() ([]arrow.Record, error) {
	schema, err := ArrowSchema(rs.fields, rs.precision)
	if err != nil {
		return nil, err
	}

	records := make([]arrow.Record, 0)
	for {
		block, err := rs.Fetch()
		if err != nil {
			for _, record := range records {
				record.Release()
			}
			return nil, err
		}
		if block == nil {
			return records, nil
		}
		record, err := blockToRecord(schema, block)
		if err != nil {
			for _, r := range records {
				r.Release()
			}
			return nil, err
		}
		records = append(records, record)
	}
}

// blockToRecord converts one raw block into an Arrow record with the given
// schema. The record owns its buffers; the block may be discarded afterwards.
func blockToRecord(schema *arrow.Schema, block *RawBlock) (arrow.Record, error) {
	builder := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer builder.Release()

	for col := 0; col < block.Cols(); col++ {
		fb := builder.Field(col)
		for row := 0; row < block.Rows(); row++ {
			value := block.Value(row, col)
			if value == nil {
				fb.AppendNull()
				continue
			}
			switch b := fb.(type) {
			case *array.BooleanBuilder:
				b.Append(value.(bool))
			case *array.Int8Builder:
				b.Append(value.(int8))
			case *array.Int16Builder:
				b.Append(value.(int16))
			case *array.Int32Builder:
				b.Append(value.(int32))
			case *array.Int64Builder:
				b.Append(value.(int64))
			case *array.Uint8Builder:
				b.Append(value.(uint8))
			case *array.Uint16Builder:
				b.Append(value.(uint16))
			case *array.Uint32Builder:
				b.Append(value.(uint32))
			case *array.Uint64Builder:
				b.Append(value.(uint64))
			case *array.Float32Builder:
				b.Append(value.(float32))
			case *array.Float64Builder:
				b.Append(value.(float64))
			case *array.TimestampBuilder:
				b.Append(arrow.Timestamp(value.(int64)))
			case *array.StringBuilder:
				b.Append(value.(string))
			case *array.BinaryBuilder:
				b.Append(value.([]byte))
			default:
				return nil, fmt.Errorf("unsupported arrow builder %T", fb)
			}
		}
	}
	return builder.NewRecord(), nil
}
