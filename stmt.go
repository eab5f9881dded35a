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

// Stmt is a prepared statement on the statement endpoint. The typical
// write path is
//
//	stmt, _ := ws.Stmt()
//	stmt.Prepare("INSERT INTO ? USING meters TAGS (?) VALUES (?, ?)")
//	stmt.SetTableName("d0")
//	stmt.SetTags("california")
//	stmt.Bind(tsCol, currentCol)
//	stmt.AddBatch()
//	affected, _ := stmt.Exec()
//	stmt.Close()
//
// A Stmt is not safe for concurrent use; open one per goroutine. The
// underlying statement session is shared and may host any number of
// statements.
type Stmt struct {
	client *WsClient
	id     uint64

	closed bool
}

// Stmt opens a prepared statement. The statement transport is created on
// first use, like the query transports.
func (ws *Ws) Stmt() (*Stmt, error) {
	c, err := ws.stmtConn()
	if err != nil {
		return nil, err
	}

	var resp stmtResp
	if err := c.roundTrip(actionStmtInit, func(reqID uint64) any {
		return &stmtArgs{ReqID: reqID}
	}, &resp); err != nil {
		return nil, err
	}
	return &Stmt{client: c, id: resp.StmtID}, nil
}

// Prepare sets the parameterized SQL of the statement.
func (s *Stmt) Prepare(sql string) error {
	var resp stmtResp
	return s.client.roundTrip(actionStmtPrepare, func(reqID uint64) any {
		return &stmtPrepareArgs{ReqID: reqID, StmtID: s.id, SQL: sql}
	}, &resp)
}

// SetTableName targets the statement at a child table. Required when the
// prepared SQL carries a table placeholder.
func (s *Stmt) SetTableName(name string) error {
	var resp stmtResp
	return s.client.roundTrip(actionStmtSetTableName, func(reqID uint64) any {
		return &stmtSetTableNameArgs{ReqID: reqID, StmtID: s.id, Name: name}
	}, &resp)
}

// SetTags binds the tag values of the targeted child table.
func (s *Stmt) SetTags(tags ...any) error {
	var resp stmtResp
	return s.client.roundTrip(actionStmtSetTags, func(reqID uint64) any {
		return &stmtSetTagsArgs{ReqID: reqID, StmtID: s.id, Tags: tags}
	}, &resp)
}

// Bind binds parameter data column by column: columns[i] holds the values of
// the i-th placeholder, one per row. All columns must have the same length.
func (s *Stmt) Bind(columns ...[]any) error {
	var resp stmtResp
	return s.client.roundTrip(actionStmtBind, func(reqID uint64) any {
		return &stmtBindArgs{ReqID: reqID, StmtID: s.id, Columns: columns}
	}, &resp)
}

// AddBatch seals the bound rows into the current batch. Afterwards the
// statement can be re-targeted and bound again before Exec.
func (s *Stmt) AddBatch() error {
	var resp stmtResp
	return s.client.roundTrip(actionStmtAddBatch, func(reqID uint64) any {
		return &stmtArgs{ReqID: reqID, StmtID: s.id}
	}, &resp)
}

// Exec executes the batched statement and returns the affected row count.
func (s *Stmt) Exec() (int64, error) {
	var resp stmtResp
	if err := s.client.roundTrip(actionStmtExec, func(reqID uint64) any {
		return &stmtArgs{ReqID: reqID, StmtID: s.id}
	}, &resp); err != nil {
		return 0, err
	}
	return int64(resp.Affected), nil
}

// Close releases the server-side statement. It is safe to call more than
// once.
func (s *Stmt) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var resp stmtResp
	return s.client.roundTrip(actionStmtClose, func(reqID uint64) any {
		return &stmtArgs{ReqID: reqID, StmtID: s.id}
	}, &resp)
}