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

// Package main builds libtaosws, a C shared library exposing the websocket
// driver through opaque handles:
//
//	go build -buildmode=c-shared -o libtaosws.so ./libtaosws
//
// No error crosses this boundary as a panic; failures are captured inside the
// handle they belong to and queried with the *_errno/*_errstr functions.
package main

/*
#include <stdbool.h>
#include <stdlib.h>
#include <string.h>
#include "taosws.h"
*/
import "C"

import (
	"unsafe"

	taosws "github.com/taosdata/taosws-go"
)

var emptyCStr = C.CString("")

// wsTaos is the boundary object behind a WS_TAOS handle: either a live
// client or a captured connect error. Construction never fails abruptly.
type wsTaos struct {
	client *taosws.WsClient
	err    *taosws.Error
	errStr *C.char
}

func connectWithDsn(dsn string) *wsTaos {
	h := &wsTaos{}
	d, err := taosws.ParseDsn(dsn)
	if err == nil {
		var client *taosws.WsClient
		client, err = taosws.NewWsClient(d)
		h.client = client
	}
	if err != nil {
		h.err = wrapErr(err)
		h.errStr = C.CString(h.err.Message)
	}
	return h
}

func wrapErr(err error) *taosws.Error {
	if e, ok := err.(*taosws.Error); ok {
		return e
	}
	return &taosws.Error{Code: taosws.CodeFailed, Message: err.Error()}
}

func (h *wsTaos) errno() int32 {
	if h == nil || h.err == nil {
		return 0
	}
	return h.err.Code
}

func (h *wsTaos) errstr() *C.char {
	if h == nil || h.err == nil {
		return emptyCStr
	}
	return h.errStr
}

func (h *wsTaos) errMessage() string {
	return C.GoString(h.errstr())
}

func (h *wsTaos) free() {
	if h == nil {
		return
	}
	if h.client != nil {
		_ = h.client.Close()
	}
	if h.errStr != nil {
		C.free(unsafe.Pointer(h.errStr))
		h.errStr = nil
	}
}

func (h *wsTaos) query(sql string) *wsResultSet {
	if h == nil {
		return newWsResultSet(nil, &taosws.Error{Code: taosws.CodeFailed, Message: "client pointer is null"})
	}
	if h.err != nil {
		return newWsResultSet(nil, h.err)
	}
	rs, err := h.client.Query(sql)
	if err != nil {
		return newWsResultSet(nil, wrapErr(err))
	}
	return newWsResultSet(rs, nil)
}

// wsResultSet is the boundary object behind a WS_RES handle. It owns at most
// one row block at a time (replaced on every fetch) and two independently
// cached column metadata arrays, one per struct layout. Both caches together
// with the error string live in C memory owned by this handle and stay valid
// exactly until ws_free_result.
type wsResultSet struct {
	rs  *taosws.ResultSet
	err *taosws.Error

	errStr *C.char

	block    *taosws.RawBlock
	blockBuf unsafe.Pointer
	blockCap int

	fields    *C.WS_FIELD
	fieldsLen int

	fieldsV2    *C.WS_FIELD_V2
	fieldsV2Len int
}

func newWsResultSet(rs *taosws.ResultSet, err *taosws.Error) *wsResultSet {
	r := &wsResultSet{rs: rs, err: err}
	if err != nil {
		r.errStr = C.CString(err.Message)
	}
	return r
}

func (r *wsResultSet) errno() int32 {
	if r == nil || r.err == nil {
		return 0
	}
	return r.err.Code
}

func (r *wsResultSet) errstr() *C.char {
	if r == nil || r.err == nil {
		return emptyCStr
	}
	return r.errStr
}

func (r *wsResultSet) errMessage() string {
	return C.GoString(r.errstr())
}

func (r *wsResultSet) precision() int32 {
	if r == nil || r.err != nil {
		return int32(taosws.PrecisionMilli)
	}
	return int32(r.rs.Precision())
}

func (r *wsResultSet) affectedRows() int32 {
	if r == nil || r.err != nil {
		return 0
	}
	return int32(r.rs.AffectedRows())
}

func (r *wsResultSet) numOfFields() int32 {
	if r == nil || r.err != nil {
		return 0
	}
	return int32(len(r.rs.Fields()))
}

// getFields returns the cached current-layout metadata array, rebuilding it
// only when the cached length disagrees with the live column count. The
// schema of a result set is fixed, so the rebuild happens at most once.
func (r *wsResultSet) getFields() *C.WS_FIELD {
	if r == nil || r.err != nil {
		return nil
	}
	fields := r.rs.Fields()
	if r.fieldsLen == len(fields) {
		return r.fields
	}
	if r.fields != nil {
		C.free(unsafe.Pointer(r.fields))
	}
	r.fields = (*C.WS_FIELD)(C.malloc(C.size_t(len(fields)) * C.sizeof_WS_FIELD))
	r.fieldsLen = len(fields)
	for i, field := range fields {
		entry := (*C.WS_FIELD)(unsafe.Add(unsafe.Pointer(r.fields), i*C.sizeof_WS_FIELD))
		copyFieldName(&entry.name, field.Name)
		entry._type = C.uint8_t(field.Type)
		entry.bytes = C.uint32_t(field.Bytes)
	}
	return r.fields
}

// getFieldsV2 is getFields for the legacy 2.x struct layout.
func (r *wsResultSet) getFieldsV2() *C.WS_FIELD_V2 {
	if r == nil || r.err != nil {
		return nil
	}
	fields := r.rs.Fields()
	if r.fieldsV2Len == len(fields) {
		return r.fieldsV2
	}
	if r.fieldsV2 != nil {
		C.free(unsafe.Pointer(r.fieldsV2))
	}
	r.fieldsV2 = (*C.WS_FIELD_V2)(C.malloc(C.size_t(len(fields)) * C.sizeof_WS_FIELD_V2))
	r.fieldsV2Len = len(fields)
	for i, field := range fields {
		entry := (*C.WS_FIELD_V2)(unsafe.Add(unsafe.Pointer(r.fieldsV2), i*C.sizeof_WS_FIELD_V2))
		copyFieldName(&entry.name, field.Name)
		entry._type = C.uint8_t(field.Type)
		entry.bytes = C.uint16_t(field.Bytes)
	}
	return r.fieldsV2
}

func copyFieldName(dst *[65]C.char, name string) {
	n := len(name)
	if n > 64 {
		n = 64
	}
	for i := 0; i < n; i++ {
		dst[i] = C.char(name[i])
	}
	dst[n] = 0
}

// fetchBlock advances to the next row block. The block bytes are copied into
// C memory owned by this result set, so cell pointers handed out afterwards
// survive until the next fetch or the final free. Zero rows with a zero code
// reports end of data.
func (r *wsResultSet) fetchBlock() (ptr unsafe.Pointer, rows int32, code int32) {
	if r == nil {
		return nil, 0, 0
	}
	if r.err != nil {
		return nil, 0, r.err.Code
	}

	block, err := r.rs.Fetch()
	if err != nil {
		return nil, 0, wrapErr(err).Code
	}
	r.block = block
	if block == nil {
		return nil, 0, 0
	}

	raw := block.Bytes()
	if r.blockCap < len(raw) {
		if r.blockBuf != nil {
			C.free(r.blockBuf)
		}
		r.blockBuf = C.malloc(C.size_t(len(raw)))
		r.blockCap = len(raw)
	}
	C.memcpy(r.blockBuf, unsafe.Pointer(&raw[0]), C.size_t(len(raw)))
	return r.blockBuf, int32(block.Rows()), 0
}

// cell reads the value at (row, col) of the currently held block. Out of
// range coordinates, null cells and errored result sets all answer with the
// null triple; the data pointer points into this handle's C block copy.
func (r *wsResultSet) cell(row, col int32) (ty uint8, length uint32, ptr unsafe.Pointer) {
	if r == nil || r.block == nil {
		return uint8(taosws.TyNull), 0, nil
	}
	if row < 0 || col < 0 || int(row) >= r.block.Rows() || int(col) >= r.block.Cols() {
		return uint8(taosws.TyNull), 0, nil
	}
	t, n, off := r.block.CellOffset(int(row), int(col))
	if off < 0 {
		return uint8(taosws.TyNull), 0, nil
	}
	return uint8(t), n, unsafe.Add(r.blockBuf, off)
}

// fieldAt reads one entry back out of the cached current-layout array.
func (r *wsResultSet) fieldAt(i int) (string, uint8, uint32) {
	entry := (*C.WS_FIELD)(unsafe.Add(unsafe.Pointer(r.getFields()), i*C.sizeof_WS_FIELD))
	return C.GoString(&entry.name[0]), uint8(entry._type), uint32(entry.bytes)
}

// fieldV2At reads one entry back out of the cached legacy-layout array.
func (r *wsResultSet) fieldV2At(i int) (string, uint8, uint32) {
	entry := (*C.WS_FIELD_V2)(unsafe.Add(unsafe.Pointer(r.getFieldsV2()), i*C.sizeof_WS_FIELD_V2))
	return C.GoString(&entry.name[0]), uint8(entry._type), uint32(entry.bytes)
}

func (r *wsResultSet) free() {
	if r == nil {
		return
	}
	if r.rs != nil {
		_ = r.rs.Close()
	}
	if r.errStr != nil {
		C.free(unsafe.Pointer(r.errStr))
		r.errStr = nil
	}
	if r.blockBuf != nil {
		C.free(r.blockBuf)
		r.blockBuf = nil
	}
	if r.fields != nil {
		C.free(unsafe.Pointer(r.fields))
		r.fields = nil
	}
	if r.fieldsV2 != nil {
		C.free(unsafe.Pointer(r.fieldsV2))
		r.fieldsV2 = nil
	}
}

func goBytes(p unsafe.Pointer, n uint32) []byte {
	if p == nil || n == 0 {
		return nil
	}
	return C.GoBytes(p, C.int(n))
}

func writeCString(dst *C.char, s string) {
	buf := append([]byte(s), 0)
	C.memcpy(unsafe.Pointer(dst), unsafe.Pointer(&buf[0]), C.size_t(len(buf)))
}

// ws_connect_with_dsn opens a connection described by the descriptor string.
// The returned handle is never null; use ws_connect_errno to learn whether
// the connection actually came up, and ws_close to release it.
//
//export ws_connect_with_dsn
func ws_connect_with_dsn(dsn *C.char) unsafe.Pointer {
	return handles.put(connectWithDsn(C.GoString(dsn)))
}

// ws_connect_errno reports the captured connect error code, 0 on success.
//
//export ws_connect_errno
func ws_connect_errno(taos unsafe.Pointer) C.int32_t {
	h, _ := handles.get(taos).(*wsTaos)
	return C.int32_t(h.errno())
}

// ws_connect_errstr reports the captured connect error message. The buffer
// belongs to the handle and stays valid until ws_close.
//
//export ws_connect_errstr
func ws_connect_errstr(taos unsafe.Pointer) *C.char {
	h, _ := handles.get(taos).(*wsTaos)
	return h.errstr()
}

// ws_close releases a connection handle. This should always be called after
// everything is done with the connection; using the handle afterwards is
// undefined.
//
//export ws_close
func ws_close(taos unsafe.Pointer) {
	h, _ := handles.take(taos).(*wsTaos)
	h.free()
}

// ws_query executes a SQL statement and returns a result set handle. The
// handle is never null even if the query failed; always check ws_query_errno
// and release the handle with ws_free_result.
//
//export ws_query
func ws_query(taos unsafe.Pointer, sql *C.char) unsafe.Pointer {
	h, _ := handles.get(taos).(*wsTaos)
	return handles.put(h.query(C.GoString(sql)))
}

// ws_query_errno reports the captured query error code, 0 on success.
//
//export ws_query_errno
func ws_query_errno(res unsafe.Pointer) C.int32_t {
	r, _ := handles.get(res).(*wsResultSet)
	return C.int32_t(r.errno())
}

// ws_query_errstr reports the captured query error message. The buffer
// belongs to the handle and stays valid until ws_free_result.
//
//export ws_query_errstr
func ws_query_errstr(res unsafe.Pointer) *C.char {
	r, _ := handles.get(res).(*wsResultSet)
	return r.errstr()
}

// ws_affected_rows reports the affected row count of an update statement.
//
//export ws_affected_rows
func ws_affected_rows(res unsafe.Pointer) C.int32_t {
	r, _ := handles.get(res).(*wsResultSet)
	return C.int32_t(r.affectedRows())
}

// ws_num_of_fields reports the number of columns in the result set.
//
//export ws_num_of_fields
func ws_num_of_fields(res unsafe.Pointer) C.int32_t {
	r, _ := handles.get(res).(*wsResultSet)
	return C.int32_t(r.numOfFields())
}

// ws_fetch_fields returns the column metadata array in the current layout,
// to be used together with ws_num_of_fields. The array belongs to the handle.
//
//export ws_fetch_fields
func ws_fetch_fields(res unsafe.Pointer) *C.WS_FIELD {
	r, _ := handles.get(res).(*wsResultSet)
	return r.getFields()
}

// ws_fetch_fields_v2 returns the column metadata array in the legacy 2.x
// layout, over the same schema as ws_fetch_fields.
//
//export ws_fetch_fields_v2
func ws_fetch_fields_v2(res unsafe.Pointer) *C.WS_FIELD_V2 {
	r, _ := handles.get(res).(*wsResultSet)
	return r.getFieldsV2()
}

// ws_fetch_block fetches the next row block. On success *ptr addresses the
// block bytes and *rows its row count; zero rows means end of data. The
// previous block of the same result set is invalidated by every call.
//
//export ws_fetch_block
func ws_fetch_block(res unsafe.Pointer, ptr *unsafe.Pointer, rows *C.int32_t) C.int32_t {
	r, _ := handles.get(res).(*wsResultSet)
	p, n, code := r.fetchBlock()
	if ptr != nil {
		*ptr = p
	}
	if rows != nil {
		*rows = C.int32_t(n)
	}
	return C.int32_t(code)
}

// ws_free_result releases a result set handle along with its block, its
// metadata arrays and its error string. Every result set handle must be
// released exactly once.
//
//export ws_free_result
func ws_free_result(res unsafe.Pointer) {
	r, _ := handles.take(res).(*wsResultSet)
	r.free()
}

// ws_result_precision reports the timestamp precision of the result set.
//
//export ws_result_precision
func ws_result_precision(res unsafe.Pointer) C.int32_t {
	r, _ := handles.get(res).(*wsResultSet)
	return C.int32_t(r.precision())
}

// ws_get_value_in_block reads the value at (row, col) of the current block.
// It writes the value type to *ty and the decoded byte length to *len, and
// returns a pointer to the data, valid until the next ws_fetch_block or
// ws_free_result. For variable-width types *len is the actual payload length
// of this cell, not the declared column width. Out-of-range coordinates
// yield a null type and a null pointer.
//
//export ws_get_value_in_block
func ws_get_value_in_block(res unsafe.Pointer, row C.int32_t, col C.int32_t, ty *C.uint8_t, length *C.uint32_t) unsafe.Pointer {
	r, _ := handles.get(res).(*wsResultSet)
	t, n, p := r.cell(int32(row), int32(col))
	if ty != nil {
		*ty = C.uint8_t(t)
	}
	if length != nil {
		*length = C.uint32_t(n)
	}
	return p
}

// ws_timestamp_to_rfc3339 renders a raw timestamp as a nul-terminated
// RFC 3339 string into dest. The required capacity depends on the precision
// (fractional digits) and use_z (zone digits versus a literal 'Z'); sizing
// dest is the caller's responsibility and is not validated here.
//
//export ws_timestamp_to_rfc3339
func ws_timestamp_to_rfc3339(dest *C.char, raw C.int64_t, precision C.int32_t, use_z C.bool) {
	if dest == nil {
		return
	}
	s := taosws.FormatTimestamp(int64(raw), taosws.Precision(precision), bool(use_z))
	writeCString(dest, s)
}
