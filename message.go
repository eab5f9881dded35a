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

// Control messages are JSON text frames with an action name and a request id;
// the response to any action echoes both. Row blocks travel as binary frames
// prefixed with the uint64 result id they belong to.
const (
	actionConn       = "conn"
	actionQuery      = "query"
	actionFetch      = "fetch"
	actionFetchBlock = "fetch_block"
	actionFreeResult = "free_result"
)

// Actions of the statement endpoint. They share the envelope and the conn
// handshake with the query endpoint.
const (
	actionStmtInit         = "init"
	actionStmtPrepare      = "prepare"
	actionStmtSetTableName = "set_table_name"
	actionStmtSetTags      = "set_tags"
	actionStmtBind         = "bind"
	actionStmtAddBatch     = "add_batch"
	actionStmtExec         = "exec"
	actionStmtClose        = "close"
)

// binaryIDLen is the length of the result id prefix of a binary frame.
const binaryIDLen = 8

type request struct {
	ReqID  uint64 `json:"req_id"`
	Action string `json:"action"`
	Args   any    `json:"args"`
}

type connArgs struct {
	ReqID    uint64 `json:"req_id"`
	User     string `json:"user"`
	Password string `json:"password"`
	DB       string `json:"db,omitempty"`
}

type queryArgs struct {
	ReqID uint64 `json:"req_id"`
	SQL   string `json:"sql"`
}

type resultArgs struct {
	ReqID uint64 `json:"req_id"`
	ID    uint64 `json:"id"`
}

type commonResp struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
	Action  string `json:"action"`
	ReqID   uint64 `json:"req_id"`
}

func (r *commonResp) reqID() uint64 {
	return r.ReqID
}

func (r *commonResp) err() *Error {
	if r.Code == 0 {
		return nil
	}
	return &Error{Code: r.Code, Message: r.Message}
}

type response interface {
	reqID() uint64
	err() *Error
}

type connResp struct {
	commonResp
}

type queryResp struct {
	commonResp
	ID            uint64   `json:"id"`
	IsUpdate      bool     `json:"is_update"`
	AffectedRows  int      `json:"affected_rows"`
	FieldsCount   int      `json:"fields_count"`
	FieldsNames   []string `json:"fields_names"`
	FieldsTypes   []uint8  `json:"fields_types"`
	FieldsLengths []uint32 `json:"fields_lengths"`
	Precision     int      `json:"precision"`
}

func (r *queryResp) fields() []Field {
	fields := make([]Field, 0, r.FieldsCount)
	for i := 0; i < r.FieldsCount; i++ {
		fields = append(fields, Field{
			Name:  r.FieldsNames[i],
			Type:  Ty(r.FieldsTypes[i]),
			Bytes: r.FieldsLengths[i],
		})
	}
	return fields
}

type fetchResp struct {
	commonResp
	ID        uint64 `json:"id"`
	Completed bool   `json:"completed"`
	Rows      int    `json:"rows"`
}

type freeResultResp struct {
	commonResp
}

type stmtArgs struct {
	ReqID  uint64 `json:"req_id"`
	StmtID uint64 `json:"stmt_id"`
}

type stmtPrepareArgs struct {
	ReqID  uint64 `json:"req_id"`
	StmtID uint64 `json:"stmt_id"`
	SQL    string `json:"sql"`
}

type stmtSetTableNameArgs struct {
	ReqID  uint64 `json:"req_id"`
	StmtID uint64 `json:"stmt_id"`
	Name   string `json:"name"`
}

type stmtSetTagsArgs struct {
	ReqID  uint64 `json:"req_id"`
	StmtID uint64 `json:"stmt_id"`
	Tags   []any  `json:"tags"`
}

type stmtBindArgs struct {
	ReqID   uint64  `json:"req_id"`
	StmtID  uint64  `json:"stmt_id"`
	Columns [][]any `json:"columns"`
}

type stmtResp struct {
	commonResp
	StmtID   uint64 `json:"stmt_id"`
	Affected int    `json:"affected"`
}
