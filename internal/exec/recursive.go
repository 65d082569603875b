package exec

import (
	"fmt"

	"github.com/lunardb/lunar-db/internal/plan"
	"github.com/lunardb/lunar-db/internal/types"
)

// buildRecursive evaluates `anchor UNION ALL step` to a fixpoint. The
// anchor runs once; each round then re-runs the step with the previous
// round's output bound as the working set, until a round produces no
// rows. Rows accumulate in production order and duplicates are kept.
func (e *Executor) buildRecursive(ec *execCtx, n *plan.Recursive) (RowSource, error) {
	accum, schema, err := ec.drain(n.Anchor)
	if err != nil {
		return nil, err
	}
	// The result set carries the recursive name as qualifier, whatever
	// the anchor's operands were aliased to.
	schema = schema.Qualify(n.Name)

	prev, shadowed := ec.bindings[n.Name]
	defer func() {
		if shadowed {
			ec.bindings[n.Name] = prev
		} else {
			delete(ec.bindings, n.Name)
		}
	}()

	working := accum
	for round := 1; len(working) > 0; round++ {
		if round > e.maxRecursion {
			return nil, fmt.Errorf("%w: %q exceeded %d iterations", types.ErrRecursionLimit, n.Name, e.maxRecursion)
		}
		if err := ec.cancelled(); err != nil {
			return nil, err
		}
		ec.bindings[n.Name] = &types.Table{Name: n.Name, Schema: schema, Rows: working}
		next, stepSchema, err := ec.drain(n.Step)
		if err != nil {
			return nil, err
		}
		if len(stepSchema) != len(schema) {
			return nil, fmt.Errorf("recursive step of %q produced %d columns, anchor produced %d",
				n.Name, len(stepSchema), len(schema))
		}
		accum = append(accum, next...)
		working = next
	}

	e.log.Debugw("recursive fixpoint reached", "query_id", ec.queryID,
		"name", n.Name, "rows", len(accum))
	return &tableScan{ec: ec, schema: schema, rows: accum}, nil
}
