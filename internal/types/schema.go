package types

import "fmt"

// Column describes one column of a schema. Table holds the table name or
// alias used to qualify references when the bare name is ambiguous.
type Column struct {
	Table    string
	Name     string
	Type     ValueType
	Nullable bool
}

// Schema is an ordered sequence of columns. Names are unique within a
// scope only when taken together with their qualifier.
type Schema []Column

// Resolve finds the position of a column reference. The qualifier is
// optional; an unqualified name matching more than one column is ambiguous.
func (s Schema) Resolve(qualifier, name string) (int, error) {
	found := -1
	for i, col := range s {
		if col.Name != name {
			continue
		}
		if qualifier != "" && col.Table != qualifier {
			continue
		}
		if found >= 0 {
			return 0, fmt.Errorf("%w: column reference %q is ambiguous", ErrUnresolvedColumn, refString(qualifier, name))
		}
		found = i
	}
	if found < 0 {
		return 0, fmt.Errorf("%w: column %q not found", ErrUnresolvedColumn, refString(qualifier, name))
	}
	return found, nil
}

// Has reports whether a reference resolves without error.
func (s Schema) Has(qualifier, name string) bool {
	_, err := s.Resolve(qualifier, name)
	return err == nil
}

// Count returns how many columns a reference matches. Zero means absent,
// more than one means the reference is ambiguous in this scope.
func (s Schema) Count(qualifier, name string) int {
	n := 0
	for _, col := range s {
		if col.Name != name {
			continue
		}
		if qualifier != "" && col.Table != qualifier {
			continue
		}
		n++
	}
	return n
}

// Qualify returns a copy of the schema with every column re-qualified by
// the given alias. Used when a table (or derived table) is scanned under
// an alias, including self joins.
func (s Schema) Qualify(alias string) Schema {
	out := make(Schema, len(s))
	for i, col := range s {
		col.Table = alias
		out[i] = col
	}
	return out
}

// Concat appends another schema, as produced by a join.
func (s Schema) Concat(other Schema) Schema {
	out := make(Schema, 0, len(s)+len(other))
	out = append(out, s...)
	out = append(out, other...)
	return out
}

func refString(qualifier, name string) string {
	if qualifier == "" {
		return name
	}
	return qualifier + "." + name
}

// Row is an ordered sequence of values positionally aligned to a Schema.
// Rows are treated as immutable once emitted by an operator.
type Row []Value

// Clone copies a row so the original may be retained safely.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// Concat combines two rows into a joined row.
func (r Row) Concat(other Row) Row {
	out := make(Row, 0, len(r)+len(other))
	out = append(out, r...)
	out = append(out, other...)
	return out
}

// Table is a named sequence of rows conforming to a schema. Tables are
// owned by the catalog; the engine reads them through a snapshot taken at
// scan open.
type Table struct {
	Name   string
	Schema Schema
	Rows   []Row
}
