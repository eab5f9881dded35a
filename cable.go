package taosws

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// InsertCable batches row tuples for one table and flushes them as a single
// multi-value INSERT statement, either when enough rows have accumulated or
// on an interval tick. Every Send gets its own done/err channel pair so a
// producer can await (or ignore) the fate of its rows.
type InsertCable struct {
	ws    *Ws
	table string

	sendRows []*cableRow
	sendCh   chan *cableRow

	BatchRows     int
	BatchInterval time.Duration
}

type cableRow struct {
	tuple string

	err  chan error
	done chan struct{}
}

// InsertCable creates a cable writing into the given table. The table name is
// used verbatim, so it may carry a database prefix.
func (ws *Ws) InsertCable(table string) *InsertCable {
	return &InsertCable{
		ws:            ws,
		table:         table,
		sendRows:      make([]*cableRow, 0),
		sendCh:        make(chan *cableRow),
		BatchRows:     1000,        // default to 1000 rows per statement
		BatchInterval: time.Second, // default to 1 second
	}
}

// Start runs the cable loop until Close.
func (c *InsertCable) Start(ctx context.Context) {
	go func() {
		ticker := time.Tick(c.BatchInterval)

		stop, tick := false, false
		for {
			if tick || len(c.sendRows) >= c.BatchRows {
				sendRows := c.sendRows
				go c.flush(sendRows)

				tick = false
				c.sendRows = make([]*cableRow, 0)
			}

			if stop {
				break
			}

			select {
			case <-ctx.Done():
				stop = true
				tick = len(c.sendRows) > 0
			case <-ticker:
				if len(c.sendRows) > 0 {
					tick = true
				}
			case row, more := <-c.sendCh:
				if !more {
					stop = true
					tick = len(c.sendRows) > 0
					continue
				}
				c.sendRows = append(c.sendRows, row)
			}
		}
	}()
}

func (c *InsertCable) flush(rows []*cableRow) {
	if len(rows) == 0 {
		return
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(c.table)
	b.WriteString(" VALUES ")
	for _, row := range rows {
		b.WriteString(row.tuple)
	}

	_, err := c.ws.Exec(b.String())
	for _, row := range rows {
		if err != nil {
			row.err <- err
		} else {
			close(row.err)
		}
		close(row.done)
	}
}

// Send queues one row. The returned channels report when the row has been
// flushed and whether the flush failed.
func (c *InsertCable) Send(values ...any) (<-chan struct{}, <-chan error) {
	row := &cableRow{
		tuple: renderTuple(values),
		err:   make(chan error, 1),
		done:  make(chan struct{}, 1),
	}
	c.sendCh <- row
	return row.done, row.err
}

// Close stops the cable after flushing whatever is queued.
func (c *InsertCable) Close() {
	close(c.sendCh)
}

func renderTuple(values []any) string {
	var b strings.Builder
	b.WriteByte('(')
	for i, value := range values {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(renderValue(value))
	}
	b.WriteByte(')')
	return b.String()
}

func renderValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(v, "'", "\\'") + "'"
	case time.Time:
		return fmt.Sprintf("%d", v.UnixMilli())
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", v)
	}
}
