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

package main

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	taosws "github.com/taosdata/taosws-go"
	"github.com/taosdata/taosws-go/internal/taostest"
)

func startServer(t *testing.T, handle func(sql string) (*taostest.Result, *taosws.Error)) *taostest.Server {
	t.Helper()
	srv := taostest.NewServer(handle)
	t.Cleanup(srv.Close)
	return srv
}

func TestConnectAndClose(t *testing.T) {
	srv := startServer(t, nil)

	h := connectWithDsn(srv.DSN())
	require.Equal(t, int32(0), h.errno())
	assert.Equal(t, "", h.errMessage())
	h.free()
}

func TestConnectInvalidDsn(t *testing.T) {
	h := connectWithDsn("oracle://localhost:6041")
	defer h.free()

	assert.Equal(t, taosws.CodeInvalidDsn, h.errno())
	assert.Contains(t, h.errMessage(), "invalid dsn")
}

func TestConnectBadCredentials(t *testing.T) {
	srv := startServer(t, nil)
	srv.Password = "wrong-on-server"

	h := connectWithDsn(srv.DSN())
	defer h.free()

	require.NotEqual(t, int32(0), h.errno())
	assert.Equal(t, "Authentication failure", h.errMessage())
}

func TestQueryFetchCells(t *testing.T) {
	srv := startServer(t, func(sql string) (*taostest.Result, *taosws.Error) {
		return &taostest.Result{
			Fields: []taosws.Field{
				{Name: "ts", Type: taosws.TyTimestamp, Bytes: 8},
				{Name: "current", Type: taosws.TyInt, Bytes: 4},
				{Name: "location", Type: taosws.TyVarChar, Bytes: 16},
			},
			Precision: taosws.PrecisionMilli,
			Rows: [][]any{
				{int64(1700000000000), int32(215), "beijing"},
				{int64(1700000001000), nil, "shanghai"},
			},
		}, nil
	})

	h := connectWithDsn(srv.DSN())
	defer h.free()
	require.Equal(t, int32(0), h.errno())

	r := h.query("select * from meters")
	defer r.free()
	require.Equal(t, int32(0), r.errno())

	assert.Equal(t, int32(3), r.numOfFields())
	assert.Equal(t, int32(taosws.PrecisionMilli), r.precision())

	name, ty, bytes := r.fieldAt(1)
	assert.Equal(t, "current", name)
	assert.Equal(t, uint8(taosws.TyInt), ty)
	assert.Equal(t, uint32(4), bytes)

	name, ty, bytes = r.fieldV2At(2)
	assert.Equal(t, "location", name)
	assert.Equal(t, uint8(taosws.TyVarChar), ty)
	assert.Equal(t, uint32(16), bytes)

	ptr, rows, code := r.fetchBlock()
	require.Equal(t, int32(0), code)
	require.NotNil(t, ptr)
	require.Equal(t, int32(2), rows)

	cellTy, n, p := r.cell(0, 1)
	assert.Equal(t, uint8(taosws.TyInt), cellTy)
	require.Equal(t, uint32(4), n)
	assert.Equal(t, uint32(215), binary.LittleEndian.Uint32(goBytes(p, n)))

	cellTy, n, p = r.cell(1, 2)
	assert.Equal(t, uint8(taosws.TyVarChar), cellTy)
	assert.Equal(t, "shanghai", string(goBytes(p, n)))

	// null cell and out-of-range coordinates are both inert
	cellTy, _, p = r.cell(1, 1)
	assert.Equal(t, uint8(taosws.TyNull), cellTy)
	assert.Nil(t, p)
	cellTy, _, p = r.cell(9, 0)
	assert.Equal(t, uint8(taosws.TyNull), cellTy)
	assert.Nil(t, p)

	ptr, rows, code = r.fetchBlock()
	assert.Equal(t, int32(0), code)
	assert.Nil(t, ptr)
	assert.Equal(t, int32(0), rows)
}

func TestQueryUpdate(t *testing.T) {
	srv := startServer(t, func(sql string) (*taostest.Result, *taosws.Error) {
		return taostest.UpdateResult(3), nil
	})

	h := connectWithDsn(srv.DSN())
	defer h.free()

	r := h.query("insert into t values (now, 1)")
	defer r.free()
	require.Equal(t, int32(0), r.errno())
	assert.Equal(t, int32(3), r.affectedRows())
	assert.Equal(t, int32(0), r.numOfFields())
}

func TestQueryError(t *testing.T) {
	srv := startServer(t, func(sql string) (*taostest.Result, *taosws.Error) {
		return nil, &taosws.Error{Code: 0x0216, Message: "syntax error near 'slect'"}
	})

	h := connectWithDsn(srv.DSN())
	defer h.free()

	r := h.query("slect 1")
	defer r.free()
	assert.Equal(t, int32(0x0216), r.errno())
	assert.Equal(t, "syntax error near 'slect'", r.errMessage())

	// the error sticks to every accessor of the result set
	assert.Nil(t, r.getFields())
	_, rows, code := r.fetchBlock()
	assert.Equal(t, int32(0x0216), code)
	assert.Equal(t, int32(0), rows)
}

func TestQueryOnFailedConnection(t *testing.T) {
	h := connectWithDsn("oracle://nope")
	defer h.free()
	require.NotEqual(t, int32(0), h.errno())

	r := h.query("select 1")
	defer r.free()
	assert.Equal(t, h.errno(), r.errno())
	assert.Equal(t, h.errMessage(), r.errMessage())
}

func TestNilHandlesAreInert(t *testing.T) {
	var h *wsTaos
	assert.Equal(t, int32(0), h.errno())
	assert.Equal(t, "", h.errMessage())
	h.free()

	r := h.query("select 1")
	defer r.free()
	assert.Equal(t, taosws.CodeFailed, r.errno())
	assert.Equal(t, "client pointer is null", r.errMessage())

	var nilRes *wsResultSet
	assert.Equal(t, int32(0), nilRes.errno())
	assert.Equal(t, int32(0), nilRes.numOfFields())
	assert.Nil(t, nilRes.getFields())
	assert.Nil(t, nilRes.getFieldsV2())
	_, rows, code := nilRes.fetchBlock()
	assert.Equal(t, int32(0), rows)
	assert.Equal(t, int32(0), code)
	nilRes.free()
}

func TestHandleTable(t *testing.T) {
	h := &wsTaos{}
	p := handles.put(h)
	require.NotNil(t, p)

	got, ok := handles.get(p).(*wsTaos)
	require.True(t, ok)
	assert.Same(t, h, got)

	taken, ok := handles.take(p).(*wsTaos)
	require.True(t, ok)
	assert.Same(t, h, taken)

	// released and unknown handles both read back as absent
	assert.Nil(t, handles.get(p))
	assert.Nil(t, handles.take(p))
	assert.Nil(t, handles.get(nil))
}

func TestFieldArraysCached(t *testing.T) {
	srv := startServer(t, func(sql string) (*taostest.Result, *taosws.Error) {
		return &taostest.Result{
			Fields:    []taosws.Field{{Name: "v", Type: taosws.TyBigInt, Bytes: 8}},
			Precision: taosws.PrecisionNano,
			Rows:      [][]any{{int64(42)}},
		}, nil
	})

	h := connectWithDsn(srv.DSN())
	defer h.free()

	r := h.query("select v from t")
	defer r.free()
	require.Equal(t, int32(0), r.errno())

	first := r.getFields()
	require.NotNil(t, first)
	assert.Equal(t, first, r.getFields())

	firstV2 := r.getFieldsV2()
	require.NotNil(t, firstV2)
	assert.Equal(t, firstV2, r.getFieldsV2())
	assert.Equal(t, int32(taosws.PrecisionNano), r.precision())
}
