package taosws

import (
	"fmt"
	"strings"
)

// Table is a small helper bound to one table name.
type Table struct {
	ws *Ws

	// Database is the database the table lives in. Optional; when empty the
	// session's default database applies.
	Database string
	// Table is the table name.
	Table string
}

// Table binds a helper to the given table name.
func (ws *Ws) Table(tableName string) *Table {
	return &Table{
		ws:    ws,
		Table: tableName,
	}
}

// Drop drops the table.
func (t *Table) Drop() error {
	_, err := t.ws.Exec(fmt.Sprintf("DROP TABLE %s", t.Identifier()))
	return err
}

// Describe fetches the table schema via DESCRIBE and maps it to fields.
func (t *Table) Describe() ([]Field, error) {
	rs, err := t.ws.Query(fmt.Sprintf("DESCRIBE %s", t.Identifier()))
	if err != nil {
		return nil, err
	}
	rows, err := rs.ToValues()
	if err != nil {
		return nil, err
	}

	var fields []Field
	for _, row := range rows {
		if len(row) < 3 {
			return nil, fmt.Errorf("describe: expected at least 3 columns, got %d", len(row))
		}
		name, ok := row[0].(string)
		if !ok {
			return nil, fmt.Errorf("describe: expected string field name, got %T", row[0])
		}
		typeName, ok := row[1].(string)
		if !ok {
			return nil, fmt.Errorf("describe: expected string type name, got %T", row[1])
		}
		ty, ok := tyByName(typeName)
		if !ok {
			return nil, fmt.Errorf("describe: unrecognized type: %s", typeName)
		}
		var length uint32
		if v, ok := row[2].(int32); ok {
			length = uint32(v)
		}
		fields = append(fields, Field{Name: name, Type: ty, Bytes: length})
	}
	return fields, nil
}

// Identifier renders the quoted table identifier, with the database prefix if
// one is set.
func (t *Table) Identifier() string {
	var b strings.Builder
	if t.Database != "" {
		b.WriteString(quoteIdent(t.Database))
		b.WriteByte('.')
	}
	b.WriteString(quoteIdent(t.Table))
	return b.String()
}

func quoteIdent(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

func tyByName(name string) (Ty, bool) {
	for ty, n := range tyNames {
		if strings.EqualFold(n, name) {
			return ty, true
		}
	}
	return TyNull, false
}
