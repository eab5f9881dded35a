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

package itcases

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	taosws "github.com/taosdata/taosws-go"
)

func TestTableSchema(t *testing.T) {
	c := NewClient(t)
	defer c.Close()

	db := NewDatabase(t, c)
	tbl := c.Table(RandomName(t))
	tbl.Database = db

	_, err := c.Exec(fmt.Sprintf(`
		CREATE TABLE %s (
			ts TIMESTAMP,
			current FLOAT,
			voltage INT,
			phase DOUBLE,
			location NCHAR(24)
		)
	`, tbl.Identifier()))
	require.NoError(t, err)
	defer func() {
		require.NoError(t, tbl.Drop())
	}()

	fields, err := tbl.Describe()
	require.NoError(t, err)
	require.Equal(t, []taosws.Field{
		{Name: "ts", Type: taosws.TyTimestamp, Bytes: 8},
		{Name: "current", Type: taosws.TyFloat, Bytes: 4},
		{Name: "voltage", Type: taosws.TyInt, Bytes: 4},
		{Name: "phase", Type: taosws.TyDouble, Bytes: 8},
		{Name: "location", Type: taosws.TyNChar, Bytes: 24},
	}, fields)
}

func TestReadAfterWrite(t *testing.T) {
	c := NewClient(t)
	defer c.Close()

	db := NewDatabase(t, c)
	tbl := c.Table(RandomName(t))
	tbl.Database = db

	_, err := c.Exec(fmt.Sprintf("CREATE TABLE %s (ts TIMESTAMP, v INT, note VARCHAR(16))", tbl.Identifier()))
	require.NoError(t, err)

	affected, err := c.Exec(fmt.Sprintf(
		"INSERT INTO %s VALUES (1700000000000, 1, 'one') (1700000001000, NULL, 'two')",
		tbl.Identifier(),
	))
	require.NoError(t, err)
	require.Equal(t, int64(2), affected)

	rs, err := c.Query(fmt.Sprintf("SELECT ts, v, note FROM %s ORDER BY ts", tbl.Identifier()))
	require.NoError(t, err)
	rows, err := rs.ToValues()
	require.NoError(t, err)
	require.Equal(t, [][]any{
		{int64(1700000000000), int32(1), "one"},
		{int64(1700000001000), nil, "two"},
	}, rows)
}
