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
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	taosws "github.com/taosdata/taosws-go"
)

func TestQueryMissingTable(t *testing.T) {
	c := NewClient(t)
	defer c.Close()

	// a uuid-derived name cannot collide with anything that exists
	name := "t_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	_, err := c.Query(fmt.Sprintf("SELECT * FROM %s", name))
	require.Error(t, err)

	var e *taosws.Error
	require.ErrorAs(t, err, &e)
	require.NotZero(t, e.Code)
	require.NotEmpty(t, e.Message)
}

func TestSyntaxError(t *testing.T) {
	c := NewClient(t)
	defer c.Close()

	_, err := c.Exec("SLECT 1")
	var e *taosws.Error
	require.ErrorAs(t, err, &e)
	require.NotZero(t, e.Code)
}
