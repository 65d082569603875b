package catalog

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lunardb/lunar-db/internal/types"
)

// Snapshot files store rows as JSON documents keyed by column name, typed
// back through the schema on load. Numbers are decoded with json.Number so
// integers survive the round trip.

type schemaDoc struct {
	Name    string      `json:"name"`
	Columns []columnDoc `json:"columns"`
}

type columnDoc struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

func schemaToDoc(t *types.Table) schemaDoc {
	doc := schemaDoc{Name: t.Name, Columns: make([]columnDoc, len(t.Schema))}
	for i, col := range t.Schema {
		doc.Columns[i] = columnDoc{Name: col.Name, Type: col.Type.String(), Nullable: col.Nullable}
	}
	return doc
}

func docToSchema(doc schemaDoc) (types.Schema, error) {
	schema := make(types.Schema, len(doc.Columns))
	for i, col := range doc.Columns {
		vt, err := types.ParseValueType(col.Type)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", doc.Name, err)
		}
		schema[i] = types.Column{Name: col.Name, Type: vt, Nullable: col.Nullable}
	}
	return schema, nil
}

func rowToDoc(schema types.Schema, row types.Row) map[string]interface{} {
	doc := make(map[string]interface{}, len(schema))
	for i, col := range schema {
		v := row[i]
		switch v.Type {
		case types.NullType:
			doc[col.Name] = nil
		case types.IntType:
			doc[col.Name] = v.Int
		case types.FloatType:
			doc[col.Name] = v.Float
		case types.StringType:
			doc[col.Name] = v.Str
		case types.BoolType:
			doc[col.Name] = v.Bool
		case types.TimeType:
			doc[col.Name] = v.Time.Format(time.RFC3339Nano)
		}
	}
	return doc
}

func docToRow(schema types.Schema, doc map[string]interface{}) (types.Row, error) {
	row := make(types.Row, len(schema))
	for i, col := range schema {
		raw, ok := doc[col.Name]
		if !ok || raw == nil {
			row[i] = types.Null()
			continue
		}
		v, err := decodeValue(col.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		row[i] = v
	}
	return row, nil
}

func decodeValue(vt types.ValueType, raw interface{}) (types.Value, error) {
	switch vt {
	case types.IntType:
		switch n := raw.(type) {
		case json.Number:
			i, err := n.Int64()
			if err != nil {
				return types.Value{}, fmt.Errorf("value %v is not an integer", raw)
			}
			return types.NewInt(i), nil
		case float64:
			return types.NewInt(int64(n)), nil
		case int64:
			return types.NewInt(n), nil
		}
	case types.FloatType:
		switch n := raw.(type) {
		case json.Number:
			f, err := n.Float64()
			if err != nil {
				return types.Value{}, fmt.Errorf("value %v is not a number", raw)
			}
			return types.NewFloat(f), nil
		case float64:
			return types.NewFloat(n), nil
		case int64:
			return types.NewFloat(float64(n)), nil
		}
	case types.StringType:
		if s, ok := raw.(string); ok {
			return types.NewString(s), nil
		}
	case types.BoolType:
		if b, ok := raw.(bool); ok {
			return types.NewBool(b), nil
		}
	case types.TimeType:
		if s, ok := raw.(string); ok {
			ts, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return types.Value{}, fmt.Errorf("value %q is not a timestamp", s)
			}
			return types.NewTime(ts), nil
		}
	}
	return types.Value{}, fmt.Errorf("value %v does not fit column type %s", raw, vt)
}
