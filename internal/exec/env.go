package exec

import (
	"fmt"
	"strings"

	"github.com/lunardb/lunar-db/internal/types"
)

// env is the explicit outer-row binding stack. Every operator pushes a
// frame for the row it is currently evaluating and pops it afterwards;
// correlated subqueries resolve enclosing-row columns by walking frames
// from innermost to outermost. Pushes and pops happen in strict nested
// call order on a single execution thread, so no locking is involved.
type env struct {
	frames []frame
}

// frame binds one row to its schema. aggs carries pre-computed aggregate
// results while a HAVING or post-aggregate projection is evaluated.
type frame struct {
	schema types.Schema
	row    types.Row
	aggs   []types.Value
}

func (e *env) push(schema types.Schema, row types.Row) {
	e.frames = append(e.frames, frame{schema: schema, row: row})
}

func (e *env) pushAgg(schema types.Schema, row types.Row, aggs []types.Value) {
	e.frames = append(e.frames, frame{schema: schema, row: row, aggs: aggs})
}

func (e *env) pop() {
	e.frames = e.frames[:len(e.frames)-1]
}

// resolve finds a column reference in the innermost frame that knows it.
// Ambiguity within a single frame is an error; an outer frame is only
// consulted when no inner frame resolves the reference at all.
func (e *env) resolve(qualifier, name string) (types.Value, error) {
	for i := len(e.frames) - 1; i >= 0; i-- {
		f := e.frames[i]
		switch f.schema.Count(qualifier, name) {
		case 0:
			continue
		case 1:
			idx, err := f.schema.Resolve(qualifier, name)
			if err != nil {
				return types.Value{}, err
			}
			return f.row[idx], nil
		default:
			_, err := f.schema.Resolve(qualifier, name)
			return types.Value{}, err
		}
	}
	ref := name
	if qualifier != "" {
		ref = qualifier + "." + name
	}
	return types.Value{}, fmt.Errorf("%w: column %q not found in any enclosing scope", types.ErrUnresolvedColumn, ref)
}

// aggValue returns the pre-computed aggregate result for a slot, from the
// innermost frame carrying aggregate results.
func (e *env) aggValue(idx int) (types.Value, error) {
	for i := len(e.frames) - 1; i >= 0; i-- {
		if e.frames[i].aggs == nil {
			continue
		}
		if idx < 0 || idx >= len(e.frames[i].aggs) {
			return types.Value{}, fmt.Errorf("%w: aggregate slot %d out of range", types.ErrInvalidProjection, idx)
		}
		return e.frames[i].aggs[idx], nil
	}
	return types.Value{}, fmt.Errorf("%w: aggregate reference outside aggregation context", types.ErrInvalidProjection)
}

// key encodes every bound row, innermost last. Used to memoize correlated
// subquery executions by their visible outer bindings.
func (e *env) key() string {
	var b strings.Builder
	for _, f := range e.frames {
		b.WriteString(types.EncodeKey(f.row))
		b.WriteByte('|')
	}
	return b.String()
}
