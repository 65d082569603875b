// Package catalog owns the tables and indexes a query session runs
// against. The engine takes read-only views of both; mutation happens
// between queries through Insert and is assumed externally serialized.
package catalog

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lunardb/lunar-db/internal/index"
	"github.com/lunardb/lunar-db/internal/logger"
	"github.com/lunardb/lunar-db/internal/types"
)

// Catalog is the table and index registry for one engine session.
type Catalog struct {
	mu      sync.RWMutex
	tables  map[string]*types.Table
	indexes map[string][]*index.Index
	log     *logger.Logger
}

// New creates an empty catalog. A nil logger disables catalog logging.
func New(log *logger.Logger) *Catalog {
	if log == nil {
		log = logger.Nop()
	}
	return &Catalog{
		tables:  make(map[string]*types.Table),
		indexes: make(map[string][]*index.Index),
		log:     log,
	}
}

// CreateTable registers a new empty table.
func (c *Catalog) CreateTable(name string, schema types.Schema) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tables[name]; exists {
		return fmt.Errorf("table %s already exists", name)
	}
	seen := make(map[string]bool)
	for _, col := range schema {
		if seen[col.Name] {
			return fmt.Errorf("duplicate column name: %s", col.Name)
		}
		seen[col.Name] = true
	}
	c.tables[name] = &types.Table{Name: name, Schema: schema}
	c.log.Debugw("created table", "table", name, "columns", len(schema))
	return nil
}

// Insert appends a row after validating it against the table schema.
// Integer values are accepted for float columns; everything else must
// match the declared type or be NULL in a nullable column.
func (c *Catalog) Insert(tableName string, row types.Row) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, exists := c.tables[tableName]
	if !exists {
		return fmt.Errorf("table %s does not exist", tableName)
	}
	if len(row) != len(t.Schema) {
		return fmt.Errorf("table %s expects %d values, got %d", tableName, len(t.Schema), len(row))
	}
	checked := make(types.Row, len(row))
	for i, col := range t.Schema {
		v := row[i]
		if v.IsNull() {
			if !col.Nullable {
				return fmt.Errorf("column %s is not nullable", col.Name)
			}
			checked[i] = v
			continue
		}
		switch {
		case v.Type == col.Type:
			checked[i] = v
		case col.Type == types.FloatType && v.Type == types.IntType:
			checked[i] = types.NewFloat(float64(v.Int))
		default:
			return fmt.Errorf("invalid value for column %s: expected %s, got %s", col.Name, col.Type, v.Type)
		}
	}
	t.Rows = append(t.Rows, checked)
	return c.rebuildIndexes(t)
}

// GetTable returns the named table.
func (c *Catalog) GetTable(name string) (*types.Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, exists := c.tables[name]
	if !exists {
		return nil, fmt.Errorf("table %s does not exist", name)
	}
	return t, nil
}

// ShowTables lists table names in sorted order.
func (c *Catalog) ShowTables() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreateIndex builds an ordered index over the given columns.
func (c *Catalog) CreateIndex(tableName string, columns []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, exists := c.tables[tableName]
	if !exists {
		return fmt.Errorf("table %s does not exist", tableName)
	}
	ix, err := index.Build(t, columns)
	if err != nil {
		return err
	}
	c.indexes[tableName] = append(c.indexes[tableName], ix)
	c.log.Debugw("created index", "table", tableName, "columns", columns, "keys", ix.Len())
	return nil
}

// GetIndex returns an index usable for a lookup on the given columns: one
// whose column list starts with exactly those columns, in order. A lookup
// that skips a leading index column finds nothing here and the scan falls
// back to reading every row.
func (c *Catalog) GetIndex(tableName string, columns []string) *index.Index {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(columns) == 0 {
		return nil
	}
	for _, ix := range c.indexes[tableName] {
		if len(columns) > len(ix.Columns) {
			continue
		}
		match := true
		for i, col := range columns {
			if ix.Columns[i] != col {
				match = false
				break
			}
		}
		if match {
			return ix
		}
	}
	return nil
}

// rebuildIndexes refreshes every index of a table after a mutation.
// Caller holds the write lock.
func (c *Catalog) rebuildIndexes(t *types.Table) error {
	olds := c.indexes[t.Name]
	if len(olds) == 0 {
		return nil
	}
	rebuilt := make([]*index.Index, len(olds))
	for i, old := range olds {
		ix, err := index.Build(t, old.Columns)
		if err != nil {
			return fmt.Errorf("failed to rebuild index on %s: %w", t.Name, err)
		}
		rebuilt[i] = ix
	}
	c.indexes[t.Name] = rebuilt
	return nil
}
