package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Normalize maps an attribute value to its canonical form so that values read
// back from different stores compare equal. Every missing representation
// (nil, typed nil pointers, NaN, zero time) becomes nil, integers become int64,
// integral floats become int64 and times are UTC truncated to milliseconds.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	case *string:
		if x == nil {
			return nil
		}
		return *x
	case []byte:
		return string(x)
	case bool:
		return x
	case *bool:
		if x == nil {
			return nil
		}
		return *x
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case *int:
		if x == nil {
			return nil
		}
		return int64(*x)
	case *int64:
		if x == nil {
			return nil
		}
		return *x
	case float32:
		return normalizeFloat(float64(x))
	case float64:
		return normalizeFloat(x)
	case *float64:
		if x == nil {
			return nil
		}
		return normalizeFloat(*x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return normalizeFloat(f)
		}
		return x.String()
	case time.Time:
		if x.IsZero() {
			return nil
		}
		return x.UTC().Truncate(time.Millisecond)
	case *time.Time:
		if x == nil {
			return nil
		}
		return Normalize(*x)
	default:
		return v
	}
}

func normalizeFloat(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return f
}

// Tuple is an ordered list of normalized attribute values used to detect
// records that were already loaded.
type Tuple []any

// NewTuple normalizes values into a Tuple.
func NewTuple(values ...any) Tuple {
	t := make(Tuple, len(values))
	for i, v := range values {
		t[i] = Normalize(v)
	}
	return t
}

// Key returns a canonical string for the tuple. Values are type-tagged and
// length-prefixed so that nil, "" and 0 never collide.
func (t Tuple) Key() string {
	var b strings.Builder
	for i, v := range t {
		if i > 0 {
			b.WriteByte('|')
		}
		writeKeyPart(&b, Normalize(v))
	}
	return b.String()
}

func writeKeyPart(b *strings.Builder, v any) {
	switch x := v.(type) {
	case nil:
		b.WriteString("n")
	case string:
		b.WriteString("s")
		b.WriteString(strconv.Itoa(len(x)))
		b.WriteByte(':')
		b.WriteString(x)
	case int64:
		b.WriteString("i:")
		b.WriteString(strconv.FormatInt(x, 10))
	case float64:
		b.WriteString("f:")
		b.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
	case bool:
		b.WriteString("b:")
		b.WriteString(strconv.FormatBool(x))
	case time.Time:
		b.WriteString("t:")
		b.WriteString(strconv.FormatInt(x.UnixMilli(), 10))
	default:
		s := fmt.Sprint(x)
		b.WriteString("x")
		b.WriteString(strconv.Itoa(len(s)))
		b.WriteByte(':')
		b.WriteString(s)
	}
}

// TupleSet holds the tuples of every existing row of a table.
type TupleSet struct {
	keys map[string]struct{}
}

// NewTupleSet builds a set from the given tuples.
func NewTupleSet(tuples ...Tuple) *TupleSet {
	s := &TupleSet{keys: make(map[string]struct{}, len(tuples))}
	for _, t := range tuples {
		s.Add(t)
	}
	return s
}

// Add records t as present.
func (s *TupleSet) Add(t Tuple) {
	s.keys[t.Key()] = struct{}{}
}

// Contains reports whether an equal tuple was added.
func (s *TupleSet) Contains(t Tuple) bool {
	_, ok := s.keys[t.Key()]
	return ok
}

// Len returns the number of distinct tuples.
func (s *TupleSet) Len() int { return len(s.keys) }

// Decision is the outcome of routing a candidate record.
type Decision int

const (
	// Insert means the candidate is new.
	Insert Decision = iota + 1
	// Skip means an identical row already exists.
	Skip
)

func (d Decision) String() string {
	switch d {
	case Insert:
		return "insert"
	case Skip:
		return "skip"
	default:
		return "unknown"
	}
}

// Route decides whether a candidate tuple should be inserted.
func Route(candidate Tuple, existing *TupleSet) Decision {
	if existing != nil && existing.Contains(candidate) {
		return Skip
	}
	return Insert
}
