package exec

import (
	"fmt"

	"github.com/lunardb/lunar-db/internal/plan"
	"github.com/lunardb/lunar-db/internal/types"
)

// tableScan produces rows from a materialized snapshot, optionally
// filtered by a predicate. The snapshot is taken at build time, so
// concurrent external appends are invisible to a running query.
type tableScan struct {
	ec        *execCtx
	schema    types.Schema
	rows      []types.Row
	pos       int
	predicate plan.Expr
}

func (s *tableScan) Schema() types.Schema { return s.schema }

func (s *tableScan) Next() (types.Row, error) {
	for {
		if err := s.ec.cancelled(); err != nil {
			return nil, err
		}
		if s.pos >= len(s.rows) {
			return nil, nil
		}
		row := s.rows[s.pos]
		s.pos++
		if s.predicate == nil {
			return row, nil
		}
		s.ec.env.push(s.schema, row)
		v, err := s.ec.evalBool(s.predicate)
		s.ec.env.pop()
		if err != nil {
			return nil, err
		}
		if isTrue(v) {
			return row, nil
		}
	}
}

func (s *tableScan) Close() error {
	s.rows = nil
	return nil
}

func (e *Executor) buildScan(ec *execCtx, n *plan.Scan) (RowSource, error) {
	t, err := e.cat.GetTable(n.Table)
	if err != nil {
		return nil, err
	}
	alias := n.Alias
	if alias == "" {
		alias = n.Table
	}
	schema := t.Schema.Qualify(alias)
	rows := t.Rows[:len(t.Rows):len(t.Rows)]

	if probe := e.findIndexProbe(n, t.Schema, alias); probe != nil {
		rows = probeRows(t, probe.ids)
		e.log.Debugw("index scan", "query_id", ec.queryID,
			"table", n.Table, "column", probe.column, "candidates", len(rows))
	}

	return &tableScan{ec: ec, schema: schema, rows: rows, predicate: n.Predicate}, nil
}

func (e *Executor) buildRecursiveRef(ec *execCtx, n *plan.RecursiveRef) (RowSource, error) {
	t, ok := ec.bindings[n.Name]
	if !ok {
		return nil, fmt.Errorf("recursive reference %q outside its recursive evaluation", n.Name)
	}
	alias := n.Alias
	if alias == "" {
		alias = n.Name
	}
	rows := t.Rows[:len(t.Rows):len(t.Rows)]
	return &tableScan{ec: ec, schema: t.Schema.Qualify(alias), rows: rows}, nil
}

// indexProbe is a resolved index access path: the candidate row ids for
// one equality or range conjunct of the scan predicate.
type indexProbe struct {
	column string
	ids    []int
}

// findIndexProbe picks an index access path with a fixed rule: the first
// predicate conjunct that compares an indexed column against a literal
// wins; no cost model. The full predicate is still evaluated against each
// candidate row, so the probe only has to be a superset of the matches.
// An equality probe against a NULL literal finds no rows, matching
// `WHERE col = NULL` yielding nothing under three-valued logic.
func (e *Executor) findIndexProbe(n *plan.Scan, schema types.Schema, alias string) *indexProbe {
	for _, conjunct := range conjuncts(n.Predicate) {
		cmp, ok := conjunct.(*plan.Compare)
		if !ok {
			continue
		}
		col, lit, op, ok := normalizeComparison(cmp, schema, alias)
		if !ok || op == plan.Ne {
			continue
		}
		ix := e.cat.GetIndex(n.Table, []string{col})
		if ix == nil {
			continue
		}
		key := []types.Value{lit}
		var ids []int
		switch op {
		case plan.Eq:
			ids = ix.Lookup(key)
		case plan.Lt:
			ids = ix.Range(nil, key, false, false)
		case plan.Le:
			ids = ix.Range(nil, key, false, true)
		case plan.Gt:
			ids = ix.Range(key, nil, false, false)
		case plan.Ge:
			ids = ix.Range(key, nil, true, false)
		}
		return &indexProbe{column: col, ids: ids}
	}
	return nil
}

// conjuncts splits a predicate on AND.
func conjuncts(e plan.Expr) []plan.Expr {
	if e == nil {
		return nil
	}
	if and, ok := e.(*plan.And); ok {
		return append(conjuncts(and.Left), conjuncts(and.Right)...)
	}
	return []plan.Expr{e}
}

// normalizeComparison extracts `column <op> literal` from a comparison in
// either operand order, flipping the operator when the literal is on the
// left. The column must belong to the scanned table.
func normalizeComparison(cmp *plan.Compare, schema types.Schema, alias string) (string, types.Value, plan.CompareOp, bool) {
	if col, ok := cmp.Left.(*plan.ColumnRef); ok {
		if lit, ok := cmp.Right.(*plan.Literal); ok && columnOfTable(col, schema, alias) {
			return col.Name, lit.Value, cmp.Op, true
		}
	}
	if col, ok := cmp.Right.(*plan.ColumnRef); ok {
		if lit, ok := cmp.Left.(*plan.Literal); ok && columnOfTable(col, schema, alias) {
			return col.Name, lit.Value, flipOp(cmp.Op), true
		}
	}
	return "", types.Value{}, 0, false
}

func columnOfTable(col *plan.ColumnRef, schema types.Schema, alias string) bool {
	if col.Table != "" && col.Table != alias {
		return false
	}
	return schema.Count("", col.Name) == 1
}

func flipOp(op plan.CompareOp) plan.CompareOp {
	switch op {
	case plan.Lt:
		return plan.Gt
	case plan.Le:
		return plan.Ge
	case plan.Gt:
		return plan.Lt
	case plan.Ge:
		return plan.Le
	default:
		return op
	}
}

func probeRows(t *types.Table, ids []int) []types.Row {
	rows := make([]types.Row, 0, len(ids))
	for _, id := range ids {
		if id >= 0 && id < len(t.Rows) {
			rows = append(rows, t.Rows[id])
		}
	}
	return rows
}
