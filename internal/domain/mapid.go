package domain

import (
	"cmp"
	"slices"
)

// AssignMapIDs numbers sites 1..n within each county in site name order and
// returns one MAP_ID update per site.
func AssignMapIDs(sites []Record) []RowUpdate {
	type entry struct {
		oid    int64
		county string
		name   string
	}
	entries := make([]entry, 0, len(sites))
	for _, r := range sites {
		entries = append(entries, entry{oid: r.ObjectID, county: r.Text(FieldCounty), name: r.Text(FieldSiteName)})
	}
	slices.SortStableFunc(entries, func(a, b entry) int {
		if c := cmp.Compare(a.county, b.county); c != 0 {
			return c
		}
		return cmp.Compare(a.name, b.name)
	})

	updates := make([]RowUpdate, 0, len(entries))
	var county string
	n := 0
	for i, e := range entries {
		if i == 0 || e.county != county {
			county = e.county
			n = 0
		}
		n++
		updates = append(updates, RowUpdate{ObjectID: e.oid, Fields: Patch{FieldMapID: int64(n)}})
	}
	return updates
}
