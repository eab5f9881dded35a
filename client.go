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
	"context"
	"sync/atomic"
)

// Ws is the client façade: one parsed descriptor and two lazily created
// transports, a blocking one for Query/Exec and a non-blocking one for the
// Context variants. Each transport is created on first use and reused for the
// lifetime of the façade.
//
// Initialization is first-writer-wins: under a race, concurrent callers may
// each build a transport, but only the first published one survives and the
// losers close theirs and adopt it. Callers never observe more than one live
// transport of a kind.
type Ws struct {
	dsn *Dsn

	syncClient  atomic.Pointer[WsClient]
	asyncClient atomic.Pointer[WsAsyncClient]
	stmtClient  atomic.Pointer[WsClient]
}

// Open parses a descriptor string into a client façade. No connection is made
// until the first query; descriptor resolution errors surface at that point.
func Open(dsn string) (*Ws, error) {
	d, err := ParseDsn(dsn)
	if err != nil {
		return nil, err
	}
	return &Ws{dsn: d}, nil
}

// Dsn returns the parsed descriptor the façade was opened with.
func (ws *Ws) Dsn() *Dsn {
	return ws.dsn
}

// Close closes whichever transports have been created.
func (ws *Ws) Close() {
	if c := ws.syncClient.Swap(nil); c != nil {
		_ = c.Close()
	}
	if c := ws.asyncClient.Swap(nil); c != nil {
		_ = c.Close()
	}
	if c := ws.stmtClient.Swap(nil); c != nil {
		_ = c.Close()
	}
}

// Query executes a SQL statement on the blocking transport.
func (ws *Ws) Query(sql string) (*ResultSet, error) {
	c, err := ws.syncConn()
	if err != nil {
		return nil, err
	}
	return c.Query(sql)
}

// Exec executes a SQL statement on the blocking transport and returns the
// affected row count.
func (ws *Ws) Exec(sql string) (int64, error) {
	c, err := ws.syncConn()
	if err != nil {
		return 0, err
	}
	return c.Exec(sql)
}

// QueryContext executes a SQL statement on the non-blocking transport.
func (ws *Ws) QueryContext(ctx context.Context, sql string) (*AsyncResultSet, error) {
	c, err := ws.asyncConn(ctx)
	if err != nil {
		return nil, err
	}
	return c.Query(ctx, sql)
}

// ExecContext executes a SQL statement on the non-blocking transport and
// returns the affected row count.
func (ws *Ws) ExecContext(ctx context.Context, sql string) (int64, error) {
	c, err := ws.asyncConn(ctx)
	if err != nil {
		return 0, err
	}
	return c.Exec(ctx, sql)
}

func (ws *Ws) syncConn() (*WsClient, error) {
	if c := ws.syncClient.Load(); c != nil {
		return c, nil
	}
	built, err := NewWsClient(ws.dsn)
	if err != nil {
		return nil, err
	}
	if !ws.syncClient.CompareAndSwap(nil, built) {
		// Another caller published first; the extra session is discarded.
		_ = built.Close()
		if c := ws.syncClient.Load(); c != nil {
			return c, nil
		}
	}
	return built, nil
}

func (ws *Ws) stmtConn() (*WsClient, error) {
	if c := ws.stmtClient.Load(); c != nil {
		return c, nil
	}
	info, err := ResolveDsn(ws.dsn)
	if err != nil {
		return nil, err
	}
	built, err := dialWs(info, info.StmtURL())
	if err != nil {
		return nil, err
	}
	if !ws.stmtClient.CompareAndSwap(nil, built) {
		_ = built.Close()
		if c := ws.stmtClient.Load(); c != nil {
			return c, nil
		}
	}
	return built, nil
}

func (ws *Ws) asyncConn(ctx context.Context) (*WsAsyncClient, error) {
	if c := ws.asyncClient.Load(); c != nil {
		return c, nil
	}
	built, err := NewWsAsyncClient(ctx, ws.dsn)
	if err != nil {
		return nil, err
	}
	if !ws.asyncClient.CompareAndSwap(nil, built) {
		_ = built.Close()
		if c := ws.asyncClient.Load(); c != nil {
			return c, nil
		}
	}
	return built, nil
}
