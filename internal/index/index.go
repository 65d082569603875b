// Package index provides an ordered index over one or more table columns.
//
// The index maps a composite key to the row ids holding that key, with
// keys kept in total sort order (NULLs after all non-NULL values, matching
// ORDER BY). It is rebuilt by the catalog when table contents change; the
// engine only consumes it as a read-only view for point and range lookups.
package index

import (
	"fmt"

	sorted "github.com/tobshub/go-sortedmap"

	"github.com/lunardb/lunar-db/internal/types"
)

type entry struct {
	key    []types.Value
	rowIDs []int
}

// Index is an ordered index over the listed columns of one table.
type Index struct {
	Table   string
	Columns []string

	m        *sorted.SortedMap[string, entry]
	colTypes []types.ValueType
}

func entryLess(a, b entry) bool {
	return types.CompareKeys(a.key, b.key) < 0
}

// New creates an empty index over the given columns.
func New(table string, columns []string) *Index {
	return &Index{
		Table:   table,
		Columns: columns,
		m:       sorted.New[string, entry](0, entryLess),
	}
}

// Build constructs an index over the current rows of a table.
func Build(t *types.Table, columns []string) (*Index, error) {
	ix := New(t.Name, columns)
	ix.colTypes = make([]types.ValueType, len(columns))
	positions := make([]int, len(columns))
	for i, name := range columns {
		pos, err := t.Schema.Resolve("", name)
		if err != nil {
			return nil, fmt.Errorf("cannot index %s.%s: %w", t.Name, name, err)
		}
		positions[i] = pos
		ix.colTypes[i] = t.Schema[pos].Type
	}
	for rowID, row := range t.Rows {
		key := make([]types.Value, len(positions))
		for i, pos := range positions {
			key[i] = row[pos]
		}
		ix.add(key, rowID)
	}
	return ix, nil
}

func (ix *Index) add(key []types.Value, rowID int) {
	enc := types.EncodeKey(key)
	if e, ok := ix.m.Get(enc); ok {
		e.rowIDs = append(e.rowIDs, rowID)
		ix.m.Replace(enc, e)
		return
	}
	ix.m.Insert(enc, entry{key: key, rowIDs: []int{rowID}})
}

// Lookup returns the row ids whose key equals the argument, in insertion
// order within the key. A key containing NULL never matches: equality
// against NULL is not true under three-valued logic, so `col = NULL`
// correctly yields no rows. A key shorter than the indexed column list is
// treated as a prefix lookup.
func (ix *Index) Lookup(key []types.Value) []int {
	for _, v := range key {
		if v.IsNull() {
			return nil
		}
	}
	if len(key) < len(ix.Columns) {
		return ix.prefix(key)
	}
	e, ok := ix.m.Get(types.EncodeKey(key))
	if !ok {
		return nil
	}
	out := make([]int, len(e.rowIDs))
	copy(out, e.rowIDs)
	return out
}

// Range returns the row ids whose key falls between the bounds, in index
// key order. A nil bound is unbounded on that side. Bounds compare against
// the key prefix of matching length, so a one-column bound works against a
// composite index.
func (ix *Index) Range(lower, upper []types.Value, incLower, incUpper bool) []int {
	bound := max(len(lower), len(upper))
	var out []int
	ix.iterate(func(e entry) {
		if lower != nil {
			c := types.CompareKeys(e.key[:min(len(e.key), len(lower))], lower)
			if c < 0 || (c == 0 && !incLower) {
				return
			}
		}
		if upper != nil {
			c := types.CompareKeys(e.key[:min(len(e.key), len(upper))], upper)
			if c > 0 || (c == 0 && !incUpper) {
				return
			}
		}
		for _, v := range e.key[:min(len(e.key), bound)] {
			if v.IsNull() {
				// NULL in a bounded column is never matched by a
				// comparison predicate; trailing unbounded columns
				// do not participate and may hold anything.
				return
			}
		}
		out = append(out, e.rowIDs...)
	})
	return out
}

func (ix *Index) prefix(key []types.Value) []int {
	var out []int
	ix.iterate(func(e entry) {
		if types.CompareKeys(e.key[:len(key)], key) == 0 {
			out = append(out, e.rowIDs...)
		}
	})
	return out
}

// Len returns the number of distinct keys.
func (ix *Index) Len() int {
	return ix.m.Len()
}

// iterate visits entries in key order. The iterator channel errors only
// when the map is empty, which simply means there is nothing to visit.
func (ix *Index) iterate(fn func(entry)) {
	iterCh, err := ix.m.IterCh()
	if err != nil {
		return
	}
	defer iterCh.Close()
	for rec := range iterCh.Records() {
		fn(rec.Val)
	}
}
