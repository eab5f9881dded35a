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
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// WsAsyncClient is the non-blocking transport: one websocket session shared
// by any number of in-flight requests. A background read loop matches JSON
// responses to waiters by request id and binary block frames by result id.
// Every method suspends at I/O boundaries and honors its context.
type WsAsyncClient struct {
	info *WsInfo
	conn *websocket.Conn

	writeMu sync.Mutex
	reqID   atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan []byte
	blocks  map[uint64]chan []byte

	closed    chan struct{}
	closeOnce sync.Once
	readErr   atomic.Pointer[Error]
}

// NewWsAsyncClient resolves the descriptor, dials the query endpoint and
// performs the session-open handshake.
func NewWsAsyncClient(ctx context.Context, dsn *Dsn) (*WsAsyncClient, error) {
	info, err := ResolveDsn(dsn)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, info.QueryURL(), nil)
	if err != nil {
		return nil, wrapError(err)
	}

	c := &WsAsyncClient{
		info:    info,
		conn:    conn,
		pending: map[uint64]chan []byte{},
		blocks:  map[uint64]chan []byte{},
		closed:  make(chan struct{}),
	}
	go c.readLoop()

	var connR connResp
	if err := c.call(ctx, actionConn, func(reqID uint64) any {
		return info.connReq(reqID)
	}, &connR); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// Close terminates the session. Every in-flight call fails.
func (c *WsAsyncClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

func (c *WsAsyncClient) readLoop() {
	for {
		kind, payload, err := c.conn.ReadMessage()
		if err != nil {
			c.readErr.CompareAndSwap(nil, wrapError(err))
			_ = c.Close()
			return
		}
		switch kind {
		case websocket.BinaryMessage:
			id, ok := blockFrameID(payload)
			if !ok {
				continue
			}
			c.mu.Lock()
			ch := c.blocks[id]
			delete(c.blocks, id)
			c.mu.Unlock()
			if ch != nil {
				ch <- payload
			}
		case websocket.TextMessage:
			var head commonResp
			if err := json.Unmarshal(payload, &head); err != nil {
				continue
			}
			c.mu.Lock()
			ch := c.pending[head.ReqID]
			delete(c.pending, head.ReqID)
			c.mu.Unlock()
			if ch != nil {
				ch <- payload
			}
		}
	}
}

func (c *WsAsyncClient) fatalErr() *Error {
	if err := c.readErr.Load(); err != nil {
		return err
	}
	return &Error{Code: CodeFailed, Message: "connection closed"}
}

// call performs one request/response exchange. Responses of unrelated
// exchanges never interfere: the waiter is keyed by request id.
func (c *WsAsyncClient) call(ctx context.Context, action string, args func(reqID uint64) any, out response) error {
	reqID := c.reqID.Add(1)
	ch := make(chan []byte, 1)

	c.mu.Lock()
	c.pending[reqID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
	}()

	if err := c.write(&request{ReqID: reqID, Action: action, Args: args(reqID)}); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return wrapError(ctx.Err())
	case <-c.closed:
		return c.fatalErr()
	case payload := <-ch:
		if err := json.Unmarshal(payload, out); err != nil {
			return wrapError(err)
		}
		return errOrNil(out.err())
	}
}

func (c *WsAsyncClient) write(req *request) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.closed:
		return c.fatalErr()
	default:
	}
	if err := c.conn.WriteJSON(req); err != nil {
		return wrapError(err)
	}
	return nil
}

// fetchBlock awaits the binary frame of the next block for a result id. The
// waiter is registered before the request goes out so the frame cannot be
// dropped. A result set fetches sequentially, so at most one block per result
// id is ever outstanding.
func (c *WsAsyncClient) fetchBlock(ctx context.Context, id uint64) (*RawBlock, error) {
	reqID := c.reqID.Add(1)
	ch := make(chan []byte, 1)

	c.mu.Lock()
	c.blocks[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.blocks[id] == ch {
			delete(c.blocks, id)
		}
		c.mu.Unlock()
	}()

	req := &request{ReqID: reqID, Action: actionFetchBlock, Args: &resultArgs{ReqID: reqID, ID: id}}
	if err := c.write(req); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, wrapError(ctx.Err())
	case <-c.closed:
		return nil, c.fatalErr()
	case payload := <-ch:
		return parseBlockFrame(payload)
	}
}

// Query executes a SQL statement and returns its result set.
func (c *WsAsyncClient) Query(ctx context.Context, sql string) (*AsyncResultSet, error) {
	var resp queryResp
	if err := c.call(ctx, actionQuery, func(reqID uint64) any {
		return &queryArgs{ReqID: reqID, SQL: sql}
	}, &resp); err != nil {
		return nil, err
	}

	rs := &AsyncResultSet{
		client:       c,
		id:           resp.ID,
		precision:    Precision(resp.Precision),
		affectedRows: resp.AffectedRows,
	}
	if !resp.IsUpdate {
		rs.fields = resp.fields()
	} else {
		rs.done = true
		_ = rs.free(ctx)
	}
	return rs, nil
}

// Exec executes a SQL statement and returns the number of affected rows.
func (c *WsAsyncClient) Exec(ctx context.Context, sql string) (int64, error) {
	rs, err := c.Query(ctx, sql)
	if err != nil {
		return 0, err
	}
	return int64(rs.AffectedRows()), nil
}

// AsyncResultSet is the result of one query on the non-blocking transport.
type AsyncResultSet struct {
	client *WsAsyncClient
	id     uint64

	fields       []Field
	precision    Precision
	affectedRows int

	done  bool
	freed bool
}

// Fields returns the result schema. It is nil for update statements.
func (rs *AsyncResultSet) Fields() []Field {
	return rs.fields
}

// Precision returns the timestamp precision of the result set.
func (rs *AsyncResultSet) Precision() Precision {
	return rs.precision
}

// AffectedRows returns the affected row count of an update statement.
func (rs *AsyncResultSet) AffectedRows() int {
	return rs.affectedRows
}

// Fetch returns the next row block, or nil at end of data.
func (rs *AsyncResultSet) Fetch(ctx context.Context) (*RawBlock, error) {
	if rs.done {
		return nil, nil
	}

	var resp fetchResp
	if err := rs.client.call(ctx, actionFetch, func(reqID uint64) any {
		return &resultArgs{ReqID: reqID, ID: rs.id}
	}, &resp); err != nil {
		return nil, err
	}
	if resp.Completed {
		rs.done = true
		return nil, rs.free(ctx)
	}
	return rs.client.fetchBlock(ctx, rs.id)
}

// Close releases the server-side result. It is safe to call more than once.
func (rs *AsyncResultSet) Close(ctx context.Context) error {
	rs.done = true
	return rs.free(ctx)
}

func (rs *AsyncResultSet) free(ctx context.Context) error {
	if rs.freed {
		return nil
	}
	rs.freed = true
	var resp freeResultResp
	return rs.client.call(ctx, actionFreeResult, func(reqID uint64) any {
		return &resultArgs{ReqID: reqID, ID: rs.id}
	}, &resp)
}

// errOrNil avoids a non-nil interface wrapping a nil *Error.
func errOrNil(err *Error) error {
	if err == nil {
		return nil
	}
	return err
}
