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
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const dialTimeout = 10 * time.Second

// WsClient is the blocking transport: one websocket session whose requests
// execute synchronously on the caller's goroutine. Every request/response
// exchange runs under an internal lock, so a WsClient may be shared by
// concurrent callers.
type WsClient struct {
	info *WsInfo
	conn *websocket.Conn

	mu    sync.Mutex
	reqID atomic.Uint64
}

// NewWsClient resolves the descriptor, dials the query endpoint and performs
// the session-open handshake.
func NewWsClient(dsn *Dsn) (*WsClient, error) {
	info, err := ResolveDsn(dsn)
	if err != nil {
		return nil, err
	}
	return dialWs(info, info.QueryURL())
}

// dialWs dials one of the websocket endpoints and performs the session-open
// handshake on it.
func dialWs(info *WsInfo, wsURL string) (*WsClient, error) {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, resp, err := dialer.Dial(wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, &Error{Code: CodeFailed, Message: fmt.Sprintf("dial %s: %s", info.Addr, resp.Status)}
		}
		return nil, wrapError(err)
	}

	c := &WsClient{info: info, conn: conn}
	var connR connResp
	if err := c.roundTrip(actionConn, func(reqID uint64) any {
		return info.connReq(reqID)
	}, &connR); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the websocket session.
func (c *WsClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

// Query executes a SQL statement and returns its result set.
func (c *WsClient) Query(sql string) (*ResultSet, error) {
	var resp queryResp
	if err := c.roundTrip(actionQuery, func(reqID uint64) any {
		return &queryArgs{ReqID: reqID, SQL: sql}
	}, &resp); err != nil {
		return nil, err
	}

	rs := &ResultSet{
		client:       c,
		id:           resp.ID,
		precision:    Precision(resp.Precision),
		affectedRows: resp.AffectedRows,
	}
	if !resp.IsUpdate {
		rs.fields = resp.fields()
	} else {
		// An update statement has no rows to fetch; release the server
		// side result immediately.
		rs.done = true
		_ = rs.free()
	}
	return rs, nil
}

// Exec executes a SQL statement and returns the number of affected rows.
func (c *WsClient) Exec(sql string) (int64, error) {
	rs, err := c.Query(sql)
	if err != nil {
		return 0, err
	}
	return int64(rs.AffectedRows()), nil
}

// roundTrip performs one request/response exchange in lock step. The args
// callback receives the assigned request id.
func (c *WsClient) roundTrip(action string, args func(reqID uint64) any, out response) error {
	reqID := c.reqID.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.WriteJSON(&request{ReqID: reqID, Action: action, Args: args(reqID)}); err != nil {
		return wrapError(err)
	}
	_, payload, err := c.conn.ReadMessage()
	if err != nil {
		return wrapError(err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return wrapError(err)
	}
	if err := out.err(); err != nil {
		return err
	}
	return nil
}

// fetchBlock requests the binary frame of the next block for a result id.
// The write and the read happen under the same lock acquisition so the frame
// cannot be claimed by a concurrent exchange.
func (c *WsClient) fetchBlock(id uint64) (*RawBlock, error) {
	reqID := c.reqID.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()

	req := &request{ReqID: reqID, Action: actionFetchBlock, Args: &resultArgs{ReqID: reqID, ID: id}}
	if err := c.conn.WriteJSON(req); err != nil {
		return nil, wrapError(err)
	}
	kind, payload, err := c.conn.ReadMessage()
	if err != nil {
		return nil, wrapError(err)
	}
	if kind != websocket.BinaryMessage {
		var resp fetchResp
		if err := json.Unmarshal(payload, &resp); err != nil {
			return nil, wrapError(err)
		}
		if err := resp.err(); err != nil {
			return nil, err
		}
		return nil, &Error{Code: CodeFailed, Message: "fetch_block: expected binary frame"}
	}
	return parseBlockFrame(payload)
}

func parseBlockFrame(payload []byte) (*RawBlock, error) {
	if len(payload) < binaryIDLen {
		return nil, &Error{Code: CodeFailed, Message: "fetch_block: short binary frame"}
	}
	block, err := NewRawBlock(payload[binaryIDLen:])
	if err != nil {
		return nil, wrapError(err)
	}
	return block, nil
}

// blockFrameID extracts the result id prefix of a binary frame.
func blockFrameID(payload []byte) (uint64, bool) {
	if len(payload) < binaryIDLen {
		return 0, false
	}
	return binary.LittleEndian.Uint64(payload), true
}

// ResultSet is the result of one query on the blocking transport. Blocks are
// fetched one at a time; a fetched block stays valid until the next Fetch or
// Close on the same result set.
type ResultSet struct {
	client *WsClient
	id     uint64

	fields       []Field
	precision    Precision
	affectedRows int

	done  bool
	freed bool
}

// Fields returns the result schema. It is nil for update statements.
func (rs *ResultSet) Fields() []Field {
	return rs.fields
}

// Precision returns the timestamp precision of the result set.
func (rs *ResultSet) Precision() Precision {
	return rs.precision
}

// AffectedRows returns the affected row count of an update statement.
func (rs *ResultSet) AffectedRows() int {
	return rs.affectedRows
}

// Fetch returns the next row block, or nil at end of data. End of data is
// idempotent: once reached, every further Fetch returns nil.
func (rs *ResultSet) Fetch() (*RawBlock, error) {
	if rs.done {
		return nil, nil
	}

	var resp fetchResp
	if err := rs.client.roundTrip(actionFetch, func(reqID uint64) any {
		return &resultArgs{ReqID: reqID, ID: rs.id}
	}, &resp); err != nil {
		return nil, err
	}
	if resp.Completed {
		rs.done = true
		return nil, rs.free()
	}
	return rs.client.fetchBlock(rs.id)
}

// Close releases the server-side result. It is safe to call more than once.
func (rs *ResultSet) Close() error {
	rs.done = true
	return rs.free()
}

func (rs *ResultSet) free() error {
	if rs.freed {
		return nil
	}
	rs.freed = true
	var resp freeResultResp
	return rs.client.roundTrip(actionFreeResult, func(reqID uint64) any {
		return &resultArgs{ReqID: reqID, ID: rs.id}
	}, &resp)
}

// ToValues drains the remaining blocks and returns all rows as decoded Go
// values, in the manner of RawBlock.Value.
func (rs *ResultSet) ToValues() ([][]any, error) {
	var rows [][]any
	for {
		block, err := rs.Fetch()
		if err != nil {
			return nil, err
		}
		if block == nil {
			return rows, nil
		}
		for row := 0; row < block.Rows(); row++ {
			values := make([]any, block.Cols())
			for col := range values {
				values[col] = block.Value(row, col)
			}
			rows = append(rows, values)
		}
	}
}
