package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type jsonTable struct {
	Name    string                   `json:"name"`
	Columns []columnDoc              `json:"columns"`
	Rows    []map[string]interface{} `json:"rows"`
}

type jsonDatabase struct {
	Tables map[string]*jsonTable `json:"tables"`
}

// SaveJSON writes the whole catalog to one JSON file.
func (c *Catalog) SaveJSON(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	db := &jsonDatabase{Tables: make(map[string]*jsonTable)}
	for name, t := range c.tables {
		jt := &jsonTable{
			Name:    name,
			Columns: schemaToDoc(t).Columns,
			Rows:    make([]map[string]interface{}, len(t.Rows)),
		}
		for i, row := range t.Rows {
			jt.Rows[i] = rowToDoc(t.Schema, row)
		}
		db.Tables[name] = jt
	}

	data, err := json.MarshalIndent(db, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadJSON loads tables from a JSON snapshot file into the catalog.
func (c *Catalog) LoadJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	var db jsonDatabase
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&db); err != nil {
		return fmt.Errorf("failed to parse snapshot: %w", err)
	}

	for name, jt := range db.Tables {
		schema, err := docToSchema(schemaDoc{Name: name, Columns: jt.Columns})
		if err != nil {
			return err
		}
		if err := c.CreateTable(name, schema); err != nil {
			return err
		}
		t, _ := c.GetTable(name)
		for _, doc := range jt.Rows {
			row, err := docToRow(schema, doc)
			if err != nil {
				return fmt.Errorf("table %s: %w", name, err)
			}
			t.Rows = append(t.Rows, row)
		}
		c.log.Infow("loaded table", "table", name, "rows", len(t.Rows))
	}
	return nil
}
