// Package exec evaluates logical query plans against a catalog. Operators
// compose bottom-up into a pull-based pipeline: each operator produces one
// row on demand from its parent, and only the aggregate, window, sort,
// recursive and hash-join-build operators materialize their input.
package exec

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lunardb/lunar-db/internal/catalog"
	"github.com/lunardb/lunar-db/internal/logger"
	"github.com/lunardb/lunar-db/internal/plan"
	"github.com/lunardb/lunar-db/internal/types"
)

// RowSource is the capability every operator exposes: a lazy, finite
// sequence of rows with an attached schema. Next returns a nil row once
// the sequence is exhausted.
type RowSource interface {
	Schema() types.Schema
	Next() (types.Row, error)
	Close() error
}

// Executor turns plans into operator pipelines and runs them.
type Executor struct {
	cat          *catalog.Catalog
	log          *logger.Logger
	maxRecursion int
	hashJoin     bool
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the executor's logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Executor) { e.log = l }
}

// WithMaxRecursion caps the number of fixpoint iterations a Recursive
// plan may run before failing.
func WithMaxRecursion(n int) Option {
	return func(e *Executor) { e.maxRecursion = n }
}

// WithHashJoin enables or disables the hash join algorithm; with it off
// every join runs as a nested loop.
func WithHashJoin(enabled bool) Option {
	return func(e *Executor) { e.hashJoin = enabled }
}

// New creates an Executor over a catalog.
func New(cat *catalog.Catalog, opts ...Option) *Executor {
	e := &Executor{
		cat:          cat,
		log:          logger.Nop(),
		maxRecursion: 1000,
		hashJoin:     true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// execCtx carries the per-query state threaded through operator
// construction and expression evaluation: the cancellation context, the
// outer-row binding environment for correlated subqueries, the working
// sets of active recursive evaluations and the subquery memo, which
// also covers derived-table materializations.
type execCtx struct {
	ctx      context.Context
	ex       *Executor
	env      *env
	queryID  string
	bindings map[string]*types.Table
	memo     map[plan.Node]map[string]memoEntry
}

type memoEntry struct {
	rows   []types.Row
	schema types.Schema
}

// cancelled reports the cancellation failure once the context is done.
func (ec *execCtx) cancelled() error {
	if err := ec.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrCancelled, err)
	}
	return nil
}

// Execute builds the operator pipeline for a plan and returns its result
// sequence. The context cancels the query: cancellation is checked
// between row productions and unwinds the pipeline as ErrCancelled.
func (e *Executor) Execute(ctx context.Context, root plan.Node) (*Result, error) {
	ec := &execCtx{
		ctx:      ctx,
		ex:       e,
		env:      &env{},
		queryID:  uuid.NewString(),
		bindings: make(map[string]*types.Table),
		memo:     make(map[plan.Node]map[string]memoEntry),
	}
	e.log.Debugw("executing plan", "query_id", ec.queryID)
	src, err := e.build(ec, root)
	if err != nil {
		return nil, err
	}
	return &Result{src: src}, nil
}

// build composes the operator for one plan node.
func (e *Executor) build(ec *execCtx, node plan.Node) (RowSource, error) {
	switch n := node.(type) {
	case *plan.Scan:
		return e.buildScan(ec, n)
	case *plan.RecursiveRef:
		return e.buildRecursiveRef(ec, n)
	case *plan.Filter:
		return e.buildFilter(ec, n)
	case *plan.Project:
		return e.buildProject(ec, n)
	case *plan.Join:
		return e.buildJoin(ec, n)
	case *plan.Aggregate:
		return e.buildAggregate(ec, n)
	case *plan.Sort:
		return e.buildSort(ec, n)
	case *plan.Window:
		return e.buildWindow(ec, n)
	case *plan.Derived:
		return e.buildDerived(ec, n)
	case *plan.Recursive:
		return e.buildRecursive(ec, n)
	default:
		return nil, fmt.Errorf("unsupported plan node: %T", node)
	}
}

// Result is the output of one query: a lazy row sequence with its schema.
type Result struct {
	src RowSource
}

// Schema returns the output schema.
func (r *Result) Schema() types.Schema { return r.src.Schema() }

// Next pulls the next row; a nil row means the sequence is exhausted.
func (r *Result) Next() (types.Row, error) { return r.src.Next() }

// Materialize drains the remaining rows.
func (r *Result) Materialize() ([]types.Row, error) {
	var rows []types.Row
	for {
		row, err := r.src.Next()
		if err != nil {
			return nil, err
		}
		if row == nil {
			return rows, nil
		}
		rows = append(rows, row)
	}
}

// Close releases the pipeline.
func (r *Result) Close() error { return r.src.Close() }

// drain runs a subplan to completion. Correlated subplans see the current
// environment because ec is shared; a fresh operator tree is built per
// call, so per-outer-row re-execution starts fresh scans.
func (ec *execCtx) drain(node plan.Node) ([]types.Row, types.Schema, error) {
	src, err := ec.ex.build(ec, node)
	if err != nil {
		return nil, nil, err
	}
	defer src.Close()
	var rows []types.Row
	for {
		if err := ec.cancelled(); err != nil {
			return nil, nil, err
		}
		row, err := src.Next()
		if err != nil {
			return nil, nil, err
		}
		if row == nil {
			return rows, src.Schema(), nil
		}
		rows = append(rows, row)
	}
}
