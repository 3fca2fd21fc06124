package domain

import (
	"encoding/json"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Record is one row of a feature layer or table as returned by a store.
type Record struct {
	ObjectID   int64
	Attributes map[string]any
}

// Get returns the attribute value for field, matching the name
// case-insensitively when there is no exact match. Among several
// case-insensitive matches the lexically smallest key wins.
func (r Record) Get(field string) any {
	if v, ok := r.Attributes[field]; ok {
		return v
	}
	var (
		match string
		value any
		found bool
	)
	for k, v := range r.Attributes {
		if strings.EqualFold(k, field) && (!found || k < match) {
			match, value, found = k, v, true
		}
	}
	return value
}

// String returns the attribute as a string, or nil when it is missing.
// Numbers are formatted without a trailing fraction when integral.
func (r Record) String(field string) *string {
	switch x := Normalize(r.Get(field)).(type) {
	case nil:
		return nil
	case string:
		return &x
	case int64:
		s := strconv.FormatInt(x, 10)
		return &s
	case float64:
		s := strconv.FormatFloat(x, 'f', -1, 64)
		return &s
	case bool:
		s := strconv.FormatBool(x)
		return &s
	case time.Time:
		s := x.Format(time.RFC3339)
		return &s
	default:
		return nil
	}
}

// Text returns the attribute as a string, with "" for missing values.
func (r Record) Text(field string) string {
	if s := r.String(field); s != nil {
		return *s
	}
	return ""
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Time returns the attribute as a time. Numeric values are epoch
// milliseconds, the representation feature services use for date fields.
func (r Record) Time(field string) *time.Time {
	switch x := Normalize(r.Get(field)).(type) {
	case time.Time:
		return &x
	case int64:
		t := time.UnixMilli(x).UTC()
		return &t
	case float64:
		t := time.UnixMilli(int64(x)).UTC()
		return &t
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, strings.TrimSpace(x)); err == nil {
				t = t.UTC()
				return &t
			}
		}
	}
	return nil
}

// Int returns the attribute as an integer, or nil when it is missing or not numeric.
func (r Record) Int(field string) *int64 {
	switch x := Normalize(r.Get(field)).(type) {
	case int64:
		return &x
	case float64:
		i := int64(math.Round(x))
		return &i
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
			return &i
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil && !math.IsNaN(f) {
			i := int64(math.Round(f))
			return &i
		}
	}
	return nil
}

// Float returns the attribute as a float, or nil when it is missing or not numeric.
func (r Record) Float(field string) *float64 {
	switch x := Normalize(r.Get(field)).(type) {
	case int64:
		f := float64(x)
		return &f
	case float64:
		return &x
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil && !math.IsNaN(f) {
			return &f
		}
	}
	return nil
}

// RecordFromJSON decodes a flat JSON object into a Record. Numbers keep their
// integer form.
func RecordFromJSON(objectID int64, data []byte) (Record, error) {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	attrs := map[string]any{}
	if err := dec.Decode(&attrs); err != nil {
		return Record{}, err
	}
	for k, v := range attrs {
		attrs[k] = Normalize(v)
	}
	return Record{ObjectID: objectID, Attributes: attrs}, nil
}

// Patch is a set of field assignments applied to one row.
type Patch map[string]any

// RowUpdate is a patch addressed to a row by object id.
type RowUpdate struct {
	ObjectID int64
	Fields   Patch
}

// PlanUpdates builds one update per row whose key field has a patch.
// Rows without a key or without a matching patch are left alone, and row
// order is preserved.
func PlanUpdates(rows []Record, keyField string, patches map[string]Patch) []RowUpdate {
	var updates []RowUpdate
	for _, row := range rows {
		key := row.String(keyField)
		if key == nil {
			continue
		}
		patch, ok := patches[*key]
		if !ok {
			continue
		}
		fields := make(Patch, len(patch))
		for k, v := range patch {
			fields[k] = v
		}
		updates = append(updates, RowUpdate{ObjectID: row.ObjectID, Fields: fields})
	}
	return updates
}

// LatestRecords keeps, for each distinct key, the row with the greatest
// date. Rows with no key are dropped; rows with no date lose to any dated
// row; ties keep the first row seen. The result is ordered by key.
func LatestRecords(rows []Record, keyField, dateField string) []Record {
	type pick struct {
		row  Record
		date *time.Time
	}
	best := map[string]pick{}
	var order []string
	for _, row := range rows {
		key := row.String(keyField)
		if key == nil {
			continue
		}
		date := row.Time(dateField)
		cur, ok := best[*key]
		if !ok {
			best[*key] = pick{row: row, date: date}
			order = append(order, *key)
			continue
		}
		if date != nil && (cur.date == nil || date.After(*cur.date)) {
			best[*key] = pick{row: row, date: date}
		}
	}
	slices.Sort(order)
	out := make([]Record, 0, len(order))
	for _, k := range order {
		out = append(out, best[k].row)
	}
	return out
}
