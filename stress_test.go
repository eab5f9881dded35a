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
	"sync/atomic"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	taosws "github.com/taosdata/taosws-go"
	"github.com/taosdata/taosws-go/internal/taostest"
)

// Pumps a few thousand generated rows through the cable while readers hammer
// the same façade, to shake out races between the two transports.
func TestStressCableAndQueries(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in short mode")
	}

	var inserted atomic.Int64
	srv := newTestServer(t, func(sql string) (*taostest.Result, *taosws.Error) {
		if len(sql) >= 6 && sql[:6] == "INSERT" {
			inserted.Add(1)
			return taostest.UpdateResult(1), nil
		}
		return metersResult(), nil
	})

	ws, err := taosws.Open(srv.DSN())
	require.NoError(t, err)
	defer ws.Close()

	ctx := context.Background()
	cable := ws.InsertCable("power.meters")
	cable.BatchRows = 100
	cable.BatchInterval = 10 * time.Millisecond
	cable.Start(ctx)

	const rows = 2000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		var errs []<-chan error
		for i := 0; i < rows; i++ {
			_, errCh := cable.Send(time.Now(), gofakeit.Float32Range(0, 250), gofakeit.City())
			errs = append(errs, errCh)
		}
		cable.Close()
		for _, errCh := range errs {
			assert.NoError(t, <-errCh)
		}
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				rs, err := ws.QueryContext(ctx, "select * from meters")
				if !assert.NoError(t, err) {
					return
				}
				assert.NoError(t, rs.Close(ctx))
			}
		}()
	}
	wg.Wait()

	assert.Positive(t, inserted.Load())
}
