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

package taosws_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	taosws "github.com/taosdata/taosws-go"
	"github.com/taosdata/taosws-go/internal/taostest"
)

func TestInsertCableFlushOnClose(t *testing.T) {
	srv := newTestServer(t, func(sql string) (*taostest.Result, *taosws.Error) {
		return taostest.UpdateResult(2), nil
	})

	ws, err := taosws.Open(srv.DSN())
	require.NoError(t, err)
	defer ws.Close()

	cable := ws.InsertCable("power.meters")
	cable.Start(context.Background())

	done1, err1 := cable.Send(int64(1700000000000), 215, "beijing")
	done2, err2 := cable.Send(int64(1700000001000), nil, "sha'nghai")
	cable.Close()

	<-done1
	<-done2
	require.NoError(t, <-err1)
	require.NoError(t, <-err2)

	queries := srv.Queries()
	require.Len(t, queries, 1)
	sql := queries[0]
	assert.True(t, strings.HasPrefix(sql, "INSERT INTO power.meters VALUES "), sql)
	assert.Contains(t, sql, "(1700000000000,215,'beijing')")
	assert.Contains(t, sql, "(1700000001000,NULL,'sha\\'nghai')")
}

func TestInsertCableFlushOnBatchSize(t *testing.T) {
	srv := newTestServer(t, func(sql string) (*taostest.Result, *taosws.Error) {
		return taostest.UpdateResult(3), nil
	})

	ws, err := taosws.Open(srv.DSN())
	require.NoError(t, err)
	defer ws.Close()

	cable := ws.InsertCable("t")
	cable.BatchRows = 3
	cable.BatchInterval = time.Hour // only the row budget can trigger the flush
	cable.Start(context.Background())
	defer cable.Close()

	var dones []<-chan struct{}
	for i := 0; i < 3; i++ {
		done, _ := cable.Send(time.UnixMilli(1700000000000), float64(i))
		dones = append(dones, done)
	}
	for _, done := range dones {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("flush did not happen")
		}
	}
	require.Len(t, srv.Queries(), 1)
}

func TestInsertCableReportsExecError(t *testing.T) {
	srv := newTestServer(t, func(sql string) (*taostest.Result, *taosws.Error) {
		return nil, &taosws.Error{Code: 0x2600, Message: "Table does not exist"}
	})

	ws, err := taosws.Open(srv.DSN())
	require.NoError(t, err)
	defer ws.Close()

	cable := ws.InsertCable("missing")
	cable.Start(context.Background())

	done, errCh := cable.Send(1, 2)
	cable.Close()
	<-done

	err = <-errCh
	var e *taosws.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, int32(0x2600), e.Code)
}
