package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	var nilString *string
	var nilTime *time.Time
	s := "abc"
	when := time.Date(2023, 5, 1, 12, 30, 0, 123456789, time.FixedZone("EDT", -4*3600))

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"typed nil string", nilString, nil},
		{"typed nil time", nilTime, nil},
		{"NaN", math.NaN(), nil},
		{"zero time", time.Time{}, nil},
		{"string pointer", &s, "abc"},
		{"int", 7, int64(7)},
		{"int32", int32(7), int64(7)},
		{"integral float", 7.0, int64(7)},
		{"fractional float", 7.25, 7.25},
		{"time to UTC millis", when, time.Date(2023, 5, 1, 16, 30, 0, 123000000, time.UTC)},
		{"bytes", []byte("x"), "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestTupleKey(t *testing.T) {
	t.Run("nil empty and zero differ", func(t *testing.T) {
		keys := map[string]bool{
			NewTuple(nil).Key():   true,
			NewTuple("").Key():    true,
			NewTuple(0).Key():     true,
			NewTuple("0").Key():   true,
			NewTuple(false).Key(): true,
		}
		assert.Len(t, keys, 5)
	})

	t.Run("equivalent representations match", func(t *testing.T) {
		ms := time.Date(2022, 1, 2, 0, 0, 0, 0, time.UTC)
		var missing *string
		a := NewTuple("site", 3, ms, missing, math.NaN())
		b := NewTuple("site", 3.0, ms.In(time.FixedZone("x", 3600)), nil, nil)
		assert.Equal(t, a.Key(), b.Key())
	})

	t.Run("separator inside values does not collide", func(t *testing.T) {
		assert.NotEqual(t, NewTuple("a|s1:b").Key(), NewTuple("a", "b").Key())
	})
}

func TestRoute(t *testing.T) {
	existing := NewTupleSet(NewTuple("A", "desc", nil))

	assert.Equal(t, Skip, Route(NewTuple("A", "desc", nil), existing))
	assert.Equal(t, Insert, Route(NewTuple("A", "desc", ""), existing))
	assert.Equal(t, Insert, Route(NewTuple("B", "desc", nil), existing))
	assert.Equal(t, Insert, Route(NewTuple("A"), nil))
}

func TestRoute_InsertedCandidateIsSkippedNextTime(t *testing.T) {
	existing := NewTupleSet()
	candidate := NewTuple("A", int64(1))

	assert.Equal(t, Insert, Route(candidate, existing))
	existing.Add(candidate)
	assert.Equal(t, Skip, Route(candidate, existing))
	assert.Equal(t, 1, existing.Len())
}
