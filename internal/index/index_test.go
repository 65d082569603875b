package index_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunardb/lunar-db/internal/index"
	"github.com/lunardb/lunar-db/internal/types"
)

func ordersTable() *types.Table {
	return &types.Table{
		Name: "orders",
		Schema: types.Schema{
			{Name: "id", Type: types.IntType},
			{Name: "customer", Type: types.IntType, Nullable: true},
			{Name: "region", Type: types.StringType},
		},
		Rows: []types.Row{
			{types.NewInt(1), types.NewInt(10), types.NewString("east")},
			{types.NewInt(2), types.NewInt(20), types.NewString("west")},
			{types.NewInt(3), types.NewInt(10), types.NewString("west")},
			{types.NewInt(4), types.Null(), types.NewString("east")},
			{types.NewInt(5), types.NewInt(30), types.NewString("east")},
		},
	}
}

func TestIndexLookup(t *testing.T) {
	ix, err := index.Build(ordersTable(), []string{"customer"})
	require.NoError(t, err)

	// Duplicate keys keep insertion order
	assert.Equal(t, []int{0, 2}, ix.Lookup([]types.Value{types.NewInt(10)}))
	assert.Equal(t, []int{1}, ix.Lookup([]types.Value{types.NewInt(20)}))
	assert.Empty(t, ix.Lookup([]types.Value{types.NewInt(99)}))

	// Equality against NULL matches nothing
	assert.Empty(t, ix.Lookup([]types.Value{types.Null()}))

	// Int and float keys that compare equal find the same entry
	assert.Equal(t, []int{0, 2}, ix.Lookup([]types.Value{types.NewFloat(10.0)}))
}

func TestIndexRange(t *testing.T) {
	ix, err := index.Build(ordersTable(), []string{"customer"})
	require.NoError(t, err)

	// customer > 10: NULL keys never match a comparison
	ids := ix.Range([]types.Value{types.NewInt(10)}, nil, false, false)
	assert.Equal(t, []int{1, 4}, ids)

	// customer >= 10, in key order
	ids = ix.Range([]types.Value{types.NewInt(10)}, nil, true, false)
	assert.Equal(t, []int{0, 2, 1, 4}, ids)

	// 10 <= customer <= 20
	ids = ix.Range([]types.Value{types.NewInt(10)}, []types.Value{types.NewInt(20)}, true, true)
	assert.Equal(t, []int{0, 2, 1}, ids)

	// customer < 10
	ids = ix.Range(nil, []types.Value{types.NewInt(10)}, false, false)
	assert.Empty(t, ids)
}

func TestCompositeIndexPrefix(t *testing.T) {
	ix, err := index.Build(ordersTable(), []string{"region", "customer"})
	require.NoError(t, err)

	// Full key lookup
	assert.Equal(t, []int{0}, ix.Lookup([]types.Value{types.NewString("east"), types.NewInt(10)}))

	// Prefix lookup on the leading column only
	ids := ix.Lookup([]types.Value{types.NewString("west")})
	assert.ElementsMatch(t, []int{1, 2}, ids)

	// Prefix covers the NULL-customer row too: the prefix itself is non-NULL
	ids = ix.Lookup([]types.Value{types.NewString("east")})
	assert.ElementsMatch(t, []int{0, 3, 4}, ids)
}

func TestCompositeIndexRange(t *testing.T) {
	ix, err := index.Build(ordersTable(), []string{"region", "customer"})
	require.NoError(t, err)

	// A bound on the leading column only: rows whose trailing indexed
	// column is NULL still qualify, the bound never examines it.
	ids := ix.Range([]types.Value{types.NewString("a")}, nil, false, false)
	assert.ElementsMatch(t, []int{0, 1, 2, 3, 4}, ids)

	ids = ix.Range(nil, []types.Value{types.NewString("east")}, false, true)
	assert.ElementsMatch(t, []int{0, 3, 4}, ids)

	// A two-column bound does examine the trailing column, so the
	// NULL-customer row drops out even though NULL sorts past the bound.
	ids = ix.Range([]types.Value{types.NewString("east"), types.NewInt(10)}, nil, true, false)
	assert.ElementsMatch(t, []int{0, 4, 1, 2}, ids)
}

func TestIndexLen(t *testing.T) {
	ix, err := index.Build(ordersTable(), []string{"customer"})
	require.NoError(t, err)
	// 10, 20, 30, NULL
	assert.Equal(t, 4, ix.Len())
}
