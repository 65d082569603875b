package exec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunardb/lunar-db/internal/catalog"
	"github.com/lunardb/lunar-db/internal/plan"
	"github.com/lunardb/lunar-db/internal/types"
)

// scoresCatalog holds one table with a duplicate value, the classic
// RANK vs DENSE_RANK input.
func scoresCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat := catalog.New(nil)
	require.NoError(t, cat.CreateTable("scores", types.Schema{
		{Name: "Player", Type: types.StringType},
		{Name: "Points", Type: types.IntType},
		{Name: "Team", Type: types.StringType},
	}))
	for _, row := range []types.Row{
		{types.NewString("a"), types.NewInt(10), types.NewString("red")},
		{types.NewString("b"), types.NewInt(10), types.NewString("blue")},
		{types.NewString("c"), types.NewInt(20), types.NewString("red")},
	} {
		require.NoError(t, cat.Insert("scores", row))
	}
	return cat
}

func TestRankVersusDenseRank(t *testing.T) {
	cat := scoresCatalog(t)

	rows := run(t, cat, &plan.Window{
		Input: &plan.Scan{Table: "scores"},
		Calls: []plan.WindowCall{
			{Fn: plan.Rank, OrderBy: []plan.SortKey{{Expr: plan.Col("Points")}}, Alias: "rank"},
			{Fn: plan.DenseRank, OrderBy: []plan.SortKey{{Expr: plan.Col("Points")}}, Alias: "dense"},
			{Fn: plan.RowNumber, OrderBy: []plan.SortKey{{Expr: plan.Col("Points")}}, Alias: "rn"},
		},
	})
	require.Len(t, rows, 3)

	// Output keeps the input row order
	assert.Equal(t, "a", rows[0][0].Str)
	assert.Equal(t, "b", rows[1][0].Str)
	assert.Equal(t, "c", rows[2][0].Str)

	// Ties share a rank; RANK skips past them, DENSE_RANK does not
	assert.Equal(t, []int64{1, 1, 3}, intCol(t, rows, 3))
	assert.Equal(t, []int64{1, 1, 2}, intCol(t, rows, 4))
	assert.Equal(t, []int64{1, 2, 3}, intCol(t, rows, 5))
}

func TestWindowPartition(t *testing.T) {
	cat := scoresCatalog(t)

	rows := run(t, cat, &plan.Window{
		Input: &plan.Scan{Table: "scores"},
		Calls: []plan.WindowCall{
			{Fn: plan.WinSum, Arg: plan.Col("Points"),
				PartitionBy: []plan.Expr{plan.Col("Team")}, Alias: "team_total"},
			{Fn: plan.WinCount,
				PartitionBy: []plan.Expr{plan.Col("Team")}, Alias: "team_size"},
		},
	})
	require.Len(t, rows, 3)

	// red: a(10) + c(20); blue: b(10)
	assert.Equal(t, []int64{30, 10, 30}, intCol(t, rows, 3))
	assert.Equal(t, []int64{2, 1, 2}, intCol(t, rows, 4))
}

func TestWindowRunningSum(t *testing.T) {
	cat := testCatalog(t)

	// Default frame with ORDER BY is partition start through current row
	rows := run(t, cat, &plan.Window{
		Input: &plan.Scan{Table: "orders"},
		Calls: []plan.WindowCall{{
			Fn: plan.WinSum, Arg: plan.Col("Amount"),
			OrderBy: []plan.SortKey{{Expr: plan.Col("OrderID")}},
			Alias:   "running",
		}},
	})
	require.Len(t, rows, 5)
	running := make([]float64, len(rows))
	for i, row := range rows {
		running[i] = row[3].Float
	}
	assert.Equal(t, []float64{100, 400, 650, 850, 925}, running)
}

func TestWindowExplicitFrame(t *testing.T) {
	cat := testCatalog(t)

	// Moving window of the previous, current and next row
	rows := run(t, cat, &plan.Window{
		Input: &plan.Scan{Table: "orders"},
		Calls: []plan.WindowCall{{
			Fn: plan.WinSum, Arg: plan.Col("Amount"),
			OrderBy: []plan.SortKey{{Expr: plan.Col("OrderID")}},
			Frame: &plan.Frame{
				Start: plan.FrameBound{Type: plan.Preceding, Offset: 1},
				End:   plan.FrameBound{Type: plan.Following, Offset: 1},
			},
			Alias: "moving",
		}},
	})
	moving := make([]float64, len(rows))
	for i, row := range rows {
		moving[i] = row[3].Float
	}
	assert.Equal(t, []float64{400, 650, 750, 525, 275}, moving)
}

func TestWindowEmptyFrame(t *testing.T) {
	cat := testCatalog(t)

	// 3..2 PRECEDING never covers anything for the first row
	rows := run(t, cat, &plan.Window{
		Input: &plan.Scan{Table: "orders"},
		Calls: []plan.WindowCall{
			{Fn: plan.WinSum, Arg: plan.Col("Amount"),
				OrderBy: []plan.SortKey{{Expr: plan.Col("OrderID")}},
				Frame: &plan.Frame{
					Start: plan.FrameBound{Type: plan.Preceding, Offset: 3},
					End:   plan.FrameBound{Type: plan.Preceding, Offset: 2},
				},
				Alias: "lagged_sum"},
			{Fn: plan.WinCount, Arg: plan.Col("Amount"),
				OrderBy: []plan.SortKey{{Expr: plan.Col("OrderID")}},
				Frame: &plan.Frame{
					Start: plan.FrameBound{Type: plan.Preceding, Offset: 3},
					End:   plan.FrameBound{Type: plan.Preceding, Offset: 2},
				},
				Alias: "lagged_count"},
		},
	})

	// Empty frame: aggregates are NULL, counts are 0
	assert.True(t, rows[0][3].IsNull())
	assert.Equal(t, types.NewInt(0), rows[0][4])

	// Row 4 sees rows 1 and 2
	assert.Equal(t, types.NewFloat(400), rows[3][3])
	assert.Equal(t, types.NewInt(2), rows[3][4])
}

func TestLeadAndLag(t *testing.T) {
	cat := testCatalog(t)

	rows := run(t, cat, &plan.Window{
		Input: &plan.Scan{Table: "orders"},
		Calls: []plan.WindowCall{
			{Fn: plan.Lag, Arg: plan.Col("Amount"), Offset: 1,
				OrderBy: []plan.SortKey{{Expr: plan.Col("OrderID")}}, Alias: "prev"},
			{Fn: plan.Lead, Arg: plan.Col("Amount"), Offset: 1,
				OrderBy: []plan.SortKey{{Expr: plan.Col("OrderID")}}, Alias: "next"},
			{Fn: plan.Lag, Arg: plan.Col("Amount"), Offset: 2,
				Default: plan.Lit(types.NewFloat(-1)),
				OrderBy: []plan.SortKey{{Expr: plan.Col("OrderID")}}, Alias: "prev2"},
		},
	})
	require.Len(t, rows, 5)

	// Out-of-partition offsets are NULL without a default
	assert.True(t, rows[0][3].IsNull())
	assert.Equal(t, types.NewFloat(100), rows[1][3])
	assert.Equal(t, types.NewFloat(300), rows[0][4])
	assert.True(t, rows[4][4].IsNull())

	// With a default they take it instead
	assert.Equal(t, types.NewFloat(-1), rows[0][5])
	assert.Equal(t, types.NewFloat(-1), rows[1][5])
	assert.Equal(t, types.NewFloat(100), rows[2][5])
}

func TestWindowWholePartitionWithoutOrder(t *testing.T) {
	cat := testCatalog(t)

	// No ORDER BY: the frame is the whole partition for every row
	rows := run(t, cat, &plan.Window{
		Input: &plan.Scan{Table: "orders"},
		Calls: []plan.WindowCall{{Fn: plan.WinSum, Arg: plan.Col("Amount"), Alias: "grand_total"}},
	})
	for _, row := range rows {
		assert.Equal(t, types.NewFloat(925), row[3])
	}
}
