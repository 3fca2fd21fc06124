package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type filterOp int

const (
	opAll filterOp = iota
	opEq
	opIn
	opIsNull
	opNotNull
	opAnd
)

// Filter is a store-neutral row predicate. Stores render it to their own
// query language; the zero value matches every row.
type Filter struct {
	op       filterOp
	field    string
	values   []any
	children []Filter
}

// All matches every row.
func All() Filter { return Filter{op: opAll} }

// Eq matches rows whose field equals v.
func Eq(field string, v any) Filter {
	return Filter{op: opEq, field: field, values: []any{Normalize(v)}}
}

// In matches rows whose field equals any of values.
func In(field string, values ...any) Filter {
	norm := make([]any, len(values))
	for i, v := range values {
		norm[i] = Normalize(v)
	}
	return Filter{op: opIn, field: field, values: norm}
}

// IsNull matches rows whose field is missing.
func IsNull(field string) Filter { return Filter{op: opIsNull, field: field} }

// NotNull matches rows whose field is present.
func NotNull(field string) Filter { return Filter{op: opNotNull, field: field} }

// And matches rows matching every child filter.
func And(filters ...Filter) Filter {
	return Filter{op: opAnd, children: filters}
}

// KeyFilter returns an equality filter for one key and a set-membership
// filter for several. It reports false when keys is empty so callers can skip
// the update entirely.
func KeyFilter(field string, keys []string) (Filter, bool) {
	switch len(keys) {
	case 0:
		return Filter{}, false
	case 1:
		return Eq(field, keys[0]), true
	default:
		values := make([]any, len(keys))
		for i, k := range keys {
			values[i] = k
		}
		return In(field, values...), true
	}
}

// SQL renders the filter as a where clause with inline literals, the form
// feature services accept.
func (f Filter) SQL() string {
	switch f.op {
	case opEq:
		if f.values[0] == nil {
			return f.field + " IS NULL"
		}
		return f.field + " = " + sqlLiteral(f.values[0])
	case opIn:
		if len(f.values) == 0 {
			return "1 = 0"
		}
		parts := make([]string, len(f.values))
		for i, v := range f.values {
			parts[i] = sqlLiteral(v)
		}
		return f.field + " IN (" + strings.Join(parts, ", ") + ")"
	case opIsNull:
		return f.field + " IS NULL"
	case opNotNull:
		return f.field + " IS NOT NULL"
	case opAnd:
		if len(f.children) == 0 {
			return "1 = 1"
		}
		parts := make([]string, len(f.children))
		for i, c := range f.children {
			parts[i] = "(" + c.SQL() + ")"
		}
		return strings.Join(parts, " AND ")
	default:
		return "1 = 1"
	}
}

// Params renders the filter with ? placeholders. rename maps field names to
// column names; nil keeps them unchanged.
func (f Filter) Params(rename func(string) string) (string, []any) {
	if rename == nil {
		rename = func(s string) string { return s }
	}
	switch f.op {
	case opEq:
		if f.values[0] == nil {
			return rename(f.field) + " IS NULL", nil
		}
		return rename(f.field) + " = ?", []any{f.values[0]}
	case opIn:
		if len(f.values) == 0 {
			return "1 = 0", nil
		}
		return rename(f.field) + " IN ?", []any{f.values}
	case opIsNull:
		return rename(f.field) + " IS NULL", nil
	case opNotNull:
		return rename(f.field) + " IS NOT NULL", nil
	case opAnd:
		if len(f.children) == 0 {
			return "1 = 1", nil
		}
		parts := make([]string, 0, len(f.children))
		var args []any
		for _, c := range f.children {
			sql, a := c.Params(rename)
			parts = append(parts, "("+sql+")")
			args = append(args, a...)
		}
		return strings.Join(parts, " AND "), args
	default:
		return "1 = 1", nil
	}
}

// Match evaluates the filter against a record in memory.
func (f Filter) Match(r Record) bool {
	switch f.op {
	case opEq:
		return valuesEqual(r.Get(f.field), f.values[0])
	case opIn:
		v := r.Get(f.field)
		for _, want := range f.values {
			if valuesEqual(v, want) {
				return true
			}
		}
		return false
	case opIsNull:
		return Normalize(r.Get(f.field)) == nil
	case opNotNull:
		return Normalize(r.Get(f.field)) != nil
	case opAnd:
		for _, c := range f.children {
			if !c.Match(r) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

func (f Filter) String() string { return f.SQL() }

func valuesEqual(a, b any) bool {
	return NewTuple(a).Key() == NewTuple(b).Key()
}

func sqlLiteral(v any) string {
	switch x := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case time.Time:
		return "timestamp '" + x.UTC().Format("2006-01-02 15:04:05") + "'"
	default:
		return "'" + strings.ReplaceAll(fmt.Sprint(x), "'", "''") + "'"
	}
}
