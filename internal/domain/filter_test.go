package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFilterSQL(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   string
	}{
		{"all", All(), "1 = 1"},
		{"zero value", Filter{}, "1 = 1"},
		{"eq string quoted", Eq("site_name", "O'Hara Run"), "site_name = 'O''Hara Run'"},
		{"eq int", Eq("objectid", 12), "objectid = 12"},
		{"eq nil", Eq("load_status", nil), "load_status IS NULL"},
		{"in", In("nha_join_id", "A", "B"), "nha_join_id IN ('A', 'B')"},
		{"empty in", In("nha_join_id"), "1 = 0"},
		{"is null", IsNull("load_status"), "load_status IS NULL"},
		{"not null", NotNull("nha_join_id"), "nha_join_id IS NOT NULL"},
		{
			"and",
			And(Eq("source_table", "site_account"), IsNull("site_account_GUID")),
			"(source_table = 'site_account') AND (site_account_GUID IS NULL)",
		},
		{
			"timestamp",
			Eq("written_date", time.Date(2024, 3, 5, 6, 7, 8, 0, time.UTC)),
			"written_date = timestamp '2024-03-05 06:07:08'",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.SQL())
		})
	}
}

func TestFilterParams(t *testing.T) {
	f := And(Eq("Photo_Approve", "new"), NotNull("NHA_JOIN_ID"), In("objectid", 1, 2))
	sql, args := f.Params(func(s string) string { return "x_" + s })
	assert.Equal(t, "(x_Photo_Approve = ?) AND (x_NHA_JOIN_ID IS NOT NULL) AND (x_objectid IN ?)", sql)
	assert.Equal(t, []any{"new", []any{int64(1), int64(2)}}, args)

	sql, args = All().Params(nil)
	assert.Equal(t, "1 = 1", sql)
	assert.Empty(t, args)
}

func TestFilterMatch(t *testing.T) {
	r := Record{ObjectID: 3, Attributes: map[string]any{"nha_join_id": "A", "count": 2.0, "load_status": nil}}

	assert.True(t, All().Match(r))
	assert.True(t, Eq("NHA_JOIN_ID", "A").Match(r))
	assert.True(t, Eq("count", 2).Match(r))
	assert.False(t, Eq("nha_join_id", "B").Match(r))
	assert.True(t, In("nha_join_id", "B", "A").Match(r))
	assert.True(t, IsNull("load_status").Match(r))
	assert.True(t, IsNull("missing").Match(r))
	assert.False(t, NotNull("load_status").Match(r))
	assert.False(t, And(Eq("nha_join_id", "A"), NotNull("load_status")).Match(r))
}

func TestKeyFilter(t *testing.T) {
	_, ok := KeyFilter("nha_join_id", nil)
	assert.False(t, ok)

	f, ok := KeyFilter("nha_join_id", []string{"A"})
	assert.True(t, ok)
	assert.Equal(t, "nha_join_id = 'A'", f.SQL())

	f, ok = KeyFilter("nha_join_id", []string{"A", "B"})
	assert.True(t, ok)
	assert.Equal(t, "nha_join_id IN ('A', 'B')", f.SQL())
}
