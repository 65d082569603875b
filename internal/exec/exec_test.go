package exec_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunardb/lunar-db/internal/catalog"
	"github.com/lunardb/lunar-db/internal/exec"
	"github.com/lunardb/lunar-db/internal/plan"
	"github.com/lunardb/lunar-db/internal/types"
)

// testCatalog builds the dataset shared by the executor tests:
//
//	customers: 3 rows, orders: 5 rows (one with NULL CustomerID),
//	employees: a 4-node reporting hierarchy,
//	ratings: a table whose Score column is entirely NULL.
func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat := catalog.New(nil)

	require.NoError(t, cat.CreateTable("customers", types.Schema{
		{Name: "CustomerID", Type: types.IntType},
		{Name: "Name", Type: types.StringType},
	}))
	require.NoError(t, cat.CreateTable("orders", types.Schema{
		{Name: "OrderID", Type: types.IntType},
		{Name: "CustomerID", Type: types.IntType, Nullable: true},
		{Name: "Amount", Type: types.FloatType},
	}))
	require.NoError(t, cat.CreateTable("employees", types.Schema{
		{Name: "EmployeeID", Type: types.IntType},
		{Name: "Name", Type: types.StringType},
		{Name: "ManagerID", Type: types.IntType, Nullable: true},
	}))
	require.NoError(t, cat.CreateTable("ratings", types.Schema{
		{Name: "ID", Type: types.IntType},
		{Name: "Score", Type: types.FloatType, Nullable: true},
	}))

	rows := map[string][]types.Row{
		"customers": {
			{types.NewInt(1), types.NewString("Ada")},
			{types.NewInt(2), types.NewString("Grace")},
			{types.NewInt(3), types.NewString("Edsger")},
		},
		"orders": {
			{types.NewInt(1), types.NewInt(1), types.NewFloat(100)},
			{types.NewInt(2), types.NewInt(1), types.NewFloat(300)},
			{types.NewInt(3), types.NewInt(2), types.NewFloat(250)},
			{types.NewInt(4), types.NewInt(2), types.NewFloat(200)},
			{types.NewInt(5), types.Null(), types.NewFloat(75)},
		},
		"employees": {
			{types.NewInt(1), types.NewString("Root"), types.Null()},
			{types.NewInt(2), types.NewString("Lead A"), types.NewInt(1)},
			{types.NewInt(3), types.NewString("Lead B"), types.NewInt(1)},
			{types.NewInt(4), types.NewString("Engineer"), types.NewInt(2)},
		},
		"ratings": {
			{types.NewInt(1), types.Null()},
			{types.NewInt(2), types.Null()},
		},
	}
	for table, rs := range rows {
		for _, row := range rs {
			require.NoError(t, cat.Insert(table, row))
		}
	}
	return cat
}

func run(t *testing.T, cat *catalog.Catalog, p plan.Node, opts ...exec.Option) []types.Row {
	t.Helper()
	rows, _, err := tryRun(cat, p, opts...)
	require.NoError(t, err)
	return rows
}

func tryRun(cat *catalog.Catalog, p plan.Node, opts ...exec.Option) ([]types.Row, types.Schema, error) {
	ex := exec.New(cat, opts...)
	result, err := ex.Execute(context.Background(), p)
	if err != nil {
		return nil, nil, err
	}
	defer result.Close()
	rows, err := result.Materialize()
	if err != nil {
		return nil, nil, err
	}
	return rows, result.Schema(), nil
}

func intCol(t *testing.T, rows []types.Row, idx int) []int64 {
	t.Helper()
	out := make([]int64, len(rows))
	for i, row := range rows {
		require.Equal(t, types.IntType, row[idx].Type, "row %d column %d", i, idx)
		out[i] = row[idx].Int
	}
	return out
}

func TestScan(t *testing.T) {
	cat := testCatalog(t)

	rows := run(t, cat, &plan.Scan{Table: "customers"})
	assert.Len(t, rows, 3)
	assert.Equal(t, []int64{1, 2, 3}, intCol(t, rows, 0))

	_, _, err := tryRun(cat, &plan.Scan{Table: "missing"})
	assert.Error(t, err)
}

func TestScanPredicate(t *testing.T) {
	cat := testCatalog(t)

	rows := run(t, cat, &plan.Scan{Table: "orders",
		Predicate: &plan.Compare{Op: plan.Gt, Left: plan.Col("Amount"), Right: plan.Lit(types.NewFloat(200))}})
	assert.Equal(t, []int64{2, 3}, intCol(t, rows, 0))

	// col = NULL is never true, so it filters everything out
	rows = run(t, cat, &plan.Scan{Table: "orders",
		Predicate: &plan.Compare{Op: plan.Eq, Left: plan.Col("CustomerID"), Right: plan.Lit(types.Null())}})
	assert.Empty(t, rows)
}

func TestScanUsesIndex(t *testing.T) {
	cat := testCatalog(t)
	require.NoError(t, cat.CreateIndex("orders", []string{"CustomerID"}))

	eq := &plan.Scan{Table: "orders",
		Predicate: &plan.Compare{Op: plan.Eq, Left: plan.Col("CustomerID"), Right: plan.Lit(types.NewInt(1))}}
	assert.Equal(t, []int64{1, 2}, intCol(t, run(t, cat, eq), 0))

	// Range probe, with the literal on the left
	rng := &plan.Scan{Table: "orders",
		Predicate: &plan.Compare{Op: plan.Le, Left: plan.Lit(types.NewInt(2)), Right: plan.Col("CustomerID")}}
	assert.Equal(t, []int64{3, 4}, intCol(t, run(t, cat, rng), 0))

	// The NULL-CustomerID row is unreachable through a comparison
	ge := &plan.Scan{Table: "orders",
		Predicate: &plan.Compare{Op: plan.Ge, Left: plan.Col("CustomerID"), Right: plan.Lit(types.NewInt(1))}}
	assert.Len(t, run(t, cat, ge), 4)
}

func TestScanCompositeIndexRange(t *testing.T) {
	cat := testCatalog(t)
	require.NoError(t, cat.CreateIndex("orders", []string{"OrderID", "CustomerID"}))

	// A range on the leading column keeps the row whose trailing indexed
	// column is NULL; only bounded columns reject NULL keys.
	rows := run(t, cat, &plan.Scan{Table: "orders",
		Predicate: &plan.Compare{Op: plan.Gt, Left: plan.Col("OrderID"), Right: plan.Lit(types.NewInt(3))}})
	assert.Equal(t, []int64{4, 5}, intCol(t, rows, 0))

	// Equality probes on the leading column behave the same way
	rows = run(t, cat, &plan.Scan{Table: "orders",
		Predicate: &plan.Compare{Op: plan.Eq, Left: plan.Col("OrderID"), Right: plan.Lit(types.NewInt(5))}})
	assert.Equal(t, []int64{5}, intCol(t, rows, 0))
}

func TestFilterThreeValued(t *testing.T) {
	cat := testCatalog(t)

	// NOT (CustomerID = 1) is NULL for the NULL row, which filters it out:
	// only customers 2 and 2 remain, not the NULL-customer order.
	rows := run(t, cat, &plan.Filter{
		Input: &plan.Scan{Table: "orders"},
		Predicate: &plan.Not{Input: &plan.Compare{Op: plan.Eq,
			Left: plan.Col("CustomerID"), Right: plan.Lit(types.NewInt(1))}},
	})
	assert.Equal(t, []int64{3, 4}, intCol(t, rows, 0))

	// IS NULL does see it
	rows = run(t, cat, &plan.Filter{
		Input:     &plan.Scan{Table: "orders"},
		Predicate: &plan.IsNull{Input: plan.Col("CustomerID")},
	})
	assert.Equal(t, []int64{5}, intCol(t, rows, 0))

	// IS NOT NULL is its complement
	rows = run(t, cat, &plan.Filter{
		Input:     &plan.Scan{Table: "orders"},
		Predicate: &plan.IsNull{Input: plan.Col("CustomerID"), Negate: true},
	})
	assert.Len(t, rows, 4)
}

func TestProject(t *testing.T) {
	cat := testCatalog(t)

	rows := run(t, cat, &plan.Project{
		Input: &plan.Scan{Table: "orders", Alias: "o"},
		Fields: []plan.Field{
			{Expr: plan.QCol("o", "OrderID"), Alias: "id"},
			{Expr: &plan.Arith{Op: plan.Mul, Left: plan.Col("Amount"), Right: plan.Lit(types.NewFloat(2))}, Alias: "doubled"},
		},
	})
	require.Len(t, rows, 5)
	assert.Equal(t, types.NewFloat(200), rows[0][1])

	// Arithmetic with a NULL operand is NULL
	rows = run(t, cat, &plan.Project{
		Input: &plan.Scan{Table: "orders"},
		Fields: []plan.Field{
			{Expr: &plan.Arith{Op: plan.Add, Left: plan.Col("CustomerID"), Right: plan.Lit(types.NewInt(1))}, Alias: "next"},
		},
	})
	assert.True(t, rows[4][0].IsNull())
}

func TestIntegerDivisionTruncates(t *testing.T) {
	cat := testCatalog(t)

	one := &plan.Scan{Table: "customers",
		Predicate: &plan.Compare{Op: plan.Eq, Left: plan.Col("CustomerID"), Right: plan.Lit(types.NewInt(1))}}
	rows := run(t, cat, &plan.Project{
		Input: one,
		Fields: []plan.Field{
			{Expr: &plan.Arith{Op: plan.Div, Left: plan.Lit(types.NewInt(7)), Right: plan.Lit(types.NewInt(2))}, Alias: "q"},
			{Expr: &plan.Arith{Op: plan.Div, Left: plan.Lit(types.NewFloat(7)), Right: plan.Lit(types.NewInt(2))}, Alias: "f"},
		},
	})
	require.Len(t, rows, 1)
	assert.Equal(t, types.NewInt(3), rows[0][0])
	assert.Equal(t, types.NewFloat(3.5), rows[0][1])

	_, _, err := tryRun(cat, &plan.Project{
		Input: one,
		Fields: []plan.Field{
			{Expr: &plan.Arith{Op: plan.Div, Left: plan.Lit(types.NewInt(1)), Right: plan.Lit(types.NewInt(0))}, Alias: "boom"},
		},
	})
	assert.Error(t, err)
}

func TestCaseExpression(t *testing.T) {
	cat := testCatalog(t)

	rows := run(t, cat, &plan.Project{
		Input: &plan.Scan{Table: "orders"},
		Fields: []plan.Field{{
			Expr: &plan.Case{
				Branches: []plan.CaseBranch{
					{When: &plan.Compare{Op: plan.Ge, Left: plan.Col("Amount"), Right: plan.Lit(types.NewFloat(250))},
						Then: plan.Lit(types.NewString("big"))},
					{When: &plan.Compare{Op: plan.Ge, Left: plan.Col("Amount"), Right: plan.Lit(types.NewFloat(100))},
						Then: plan.Lit(types.NewString("medium"))},
				},
				Else: plan.Lit(types.NewString("small")),
			},
			Alias: "bucket",
		}},
	})
	got := make([]string, len(rows))
	for i, row := range rows {
		got[i] = row[0].Str
	}
	assert.Equal(t, []string{"medium", "big", "big", "medium", "small"}, got)

	// No matching branch and no ELSE is NULL
	rows = run(t, cat, &plan.Project{
		Input: &plan.Scan{Table: "ratings"},
		Fields: []plan.Field{{
			Expr: &plan.Case{Branches: []plan.CaseBranch{
				// Score > 0 is NULL for every row, which never matches
				{When: &plan.Compare{Op: plan.Gt, Left: plan.Col("Score"), Right: plan.Lit(types.NewFloat(0))},
					Then: plan.Lit(types.NewString("scored"))},
			}},
			Alias: "state",
		}},
	})
	for _, row := range rows {
		assert.True(t, row[0].IsNull())
	}
}

func TestInListWithNull(t *testing.T) {
	cat := testCatalog(t)

	inExpr := &plan.InList{
		Input: plan.Col("CustomerID"),
		Items: []plan.Expr{plan.Lit(types.NewInt(1)), plan.Lit(types.NewInt(2)), plan.Lit(types.Null())},
	}

	// x IN (1, 2, NULL): true for 1 and 2, NULL (not false) otherwise, so
	// a filter keeps exactly the matching rows.
	rows := run(t, cat, &plan.Filter{Input: &plan.Scan{Table: "orders"}, Predicate: inExpr})
	assert.Len(t, rows, 4)

	// NOT IN over the same list keeps nothing at all: the NULL in the list
	// makes every non-match unknown.
	rows = run(t, cat, &plan.Filter{
		Input: &plan.Scan{Table: "orders"},
		Predicate: &plan.InList{
			Input:  plan.Col("CustomerID"),
			Items:  []plan.Expr{plan.Lit(types.NewInt(1)), plan.Lit(types.NewInt(2)), plan.Lit(types.Null())},
			Negate: true,
		},
	})
	assert.Empty(t, rows)

	// IN over an empty list is false outright, so NOT IN keeps every row,
	// the NULL-CustomerID one included.
	rows = run(t, cat, &plan.Filter{
		Input:     &plan.Scan{Table: "orders"},
		Predicate: &plan.InList{Input: plan.Col("CustomerID"), Negate: true},
	})
	assert.Len(t, rows, 5)
}

func TestSortNullsLast(t *testing.T) {
	cat := testCatalog(t)

	asc := run(t, cat, &plan.Sort{
		Input: &plan.Scan{Table: "orders"},
		Keys:  []plan.SortKey{{Expr: plan.Col("CustomerID")}, {Expr: plan.Col("Amount"), Desc: true}},
	})
	assert.Equal(t, []int64{2, 1, 3, 4, 5}, intCol(t, asc, 0))

	// Descending still leaves NULL at the end
	desc := run(t, cat, &plan.Sort{
		Input: &plan.Scan{Table: "orders"},
		Keys:  []plan.SortKey{{Expr: plan.Col("CustomerID"), Desc: true}},
	})
	assert.Equal(t, []int64{3, 4, 1, 2, 5}, intCol(t, desc, 0))
}

func TestUnresolvedColumn(t *testing.T) {
	cat := testCatalog(t)

	_, _, err := tryRun(cat, &plan.Filter{
		Input:     &plan.Scan{Table: "orders"},
		Predicate: &plan.Compare{Op: plan.Eq, Left: plan.Col("Nope"), Right: plan.Lit(types.NewInt(1))},
	})
	assert.ErrorIs(t, err, types.ErrUnresolvedColumn)

	// Ambiguous reference across a self join
	_, _, err = tryRun(cat, &plan.Filter{
		Input: &plan.Join{Kind: plan.CrossJoin,
			Left:  &plan.Scan{Table: "customers", Alias: "a"},
			Right: &plan.Scan{Table: "customers", Alias: "b"}},
		Predicate: &plan.Compare{Op: plan.Eq, Left: plan.Col("CustomerID"), Right: plan.Lit(types.NewInt(1))},
	})
	assert.ErrorIs(t, err, types.ErrUnresolvedColumn)
}

func TestTypeMismatch(t *testing.T) {
	cat := testCatalog(t)

	_, _, err := tryRun(cat, &plan.Filter{
		Input:     &plan.Scan{Table: "customers"},
		Predicate: &plan.Compare{Op: plan.Eq, Left: plan.Col("Name"), Right: plan.Lit(types.NewInt(1))},
	})
	assert.ErrorIs(t, err, types.ErrTypeMismatch)

	// A non-boolean filter condition is rejected, not coerced
	_, _, err = tryRun(cat, &plan.Filter{
		Input:     &plan.Scan{Table: "customers"},
		Predicate: plan.Col("Name"),
	})
	assert.ErrorIs(t, err, types.ErrTypeMismatch)
}

func TestCancellation(t *testing.T) {
	cat := testCatalog(t)
	ex := exec.New(cat)

	ctx, cancel := context.WithCancel(context.Background())
	result, err := ex.Execute(ctx, &plan.Scan{Table: "orders"})
	require.NoError(t, err)
	defer result.Close()

	row, err := result.Next()
	require.NoError(t, err)
	require.NotNil(t, row)

	cancel()
	_, err = result.Next()
	assert.ErrorIs(t, err, types.ErrCancelled)
}
