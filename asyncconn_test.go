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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	taosws "github.com/taosdata/taosws-go"
	"github.com/taosdata/taosws-go/internal/taostest"
)

func dialAsync(t *testing.T, srv *taostest.Server) *taosws.WsAsyncClient {
	t.Helper()
	dsn, err := taosws.ParseDsn(srv.DSN())
	require.NoError(t, err)
	client, err := taosws.NewWsAsyncClient(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestAsyncQuery(t *testing.T) {
	srv := newTestServer(t, func(sql string) (*taostest.Result, *taosws.Error) {
		return metersResult(), nil
	})
	client := dialAsync(t, srv)

	ctx := context.Background()
	rs, err := client.Query(ctx, "select * from meters")
	require.NoError(t, err)
	defer rs.Close(ctx)

	require.Len(t, rs.Fields(), 3)
	assert.Equal(t, taosws.PrecisionMilli, rs.Precision())

	block, err := rs.Fetch(ctx)
	require.NoError(t, err)
	require.NotNil(t, block)
	assert.Equal(t, 3, block.Rows())
	assert.Equal(t, "california", block.Value(0, 2))

	block, err = rs.Fetch(ctx)
	require.NoError(t, err)
	assert.Nil(t, block)
}

func TestAsyncExec(t *testing.T) {
	srv := newTestServer(t, func(sql string) (*taostest.Result, *taosws.Error) {
		return taostest.UpdateResult(5), nil
	})
	client := dialAsync(t, srv)

	affected, err := client.Exec(context.Background(), "insert into t values (now, 1)")
	require.NoError(t, err)
	assert.Equal(t, int64(5), affected)
}

func TestAsyncQueryError(t *testing.T) {
	srv := newTestServer(t, func(sql string) (*taostest.Result, *taosws.Error) {
		return nil, &taosws.Error{Code: 0x0216, Message: "syntax error"}
	})
	client := dialAsync(t, srv)

	_, err := client.Query(context.Background(), "slect 1")
	var e *taosws.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, int32(0x0216), e.Code)
	assert.Equal(t, "syntax error", e.Message)
}

func TestAsyncConcurrentQueries(t *testing.T) {
	srv := newTestServer(t, func(sql string) (*taostest.Result, *taosws.Error) {
		return metersResult(), nil
	})
	client := dialAsync(t, srv)

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rs, err := client.Query(ctx, "select * from meters")
			if !assert.NoError(t, err) {
				return
			}
			defer rs.Close(ctx)
			total := 0
			for {
				block, err := rs.Fetch(ctx)
				if !assert.NoError(t, err) {
					return
				}
				if block == nil {
					break
				}
				total += block.Rows()
			}
			assert.Equal(t, 3, total)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, srv.ConnCount())
}

func TestAsyncContextCanceled(t *testing.T) {
	srv := newTestServer(t, func(sql string) (*taostest.Result, *taosws.Error) {
		time.Sleep(200 * time.Millisecond)
		return metersResult(), nil
	})
	client := dialAsync(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Query(ctx, "select * from meters")
	require.Error(t, err)
	var e *taosws.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, taosws.CodeFailed, e.Code)
}

func TestAsyncCallAfterClose(t *testing.T) {
	srv := newTestServer(t, func(sql string) (*taostest.Result, *taosws.Error) {
		return metersResult(), nil
	})

	dsn, err := taosws.ParseDsn(srv.DSN())
	require.NoError(t, err)
	client, err := taosws.NewWsAsyncClient(context.Background(), dsn)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	// the read loop may take a moment to observe the closed socket
	require.Eventually(t, func() bool {
		_, err := client.Query(context.Background(), "select 1")
		return err != nil
	}, time.Second, 10*time.Millisecond)
}
