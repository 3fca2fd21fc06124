package zotero

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFormatter struct {
	calls map[string]int
	err   error
}

func (f *countingFormatter) Citation(_ context.Context, key string) (string, error) {
	f.calls[key]++
	if f.err != nil {
		return "", f.err
	}
	return "cite:" + key, nil
}

func TestCachedFormatter_CacheHit(t *testing.T) {
	inner := &countingFormatter{calls: map[string]int{}}
	cached := NewCachedFormatter(inner, time.Hour)

	for range 3 {
		got, err := cached.Citation(context.Background(), "ABC")
		require.NoError(t, err)
		assert.Equal(t, "cite:ABC", got)
	}
	_, err := cached.Citation(context.Background(), "DEF")
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"ABC": 1, "DEF": 1}, inner.calls)
}

func TestCachedFormatter_ErrorsNotCached(t *testing.T) {
	inner := &countingFormatter{calls: map[string]int{}, err: errors.New("rate limited")}
	cached := NewCachedFormatter(inner, time.Hour)

	_, err := cached.Citation(context.Background(), "ABC")
	require.Error(t, err)
	_, err = cached.Citation(context.Background(), "ABC")
	require.Error(t, err)

	assert.Equal(t, 2, inner.calls["ABC"])
}
