package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/pnhp/nha-sync/internal/domain"
	"github.com/pnhp/nha-sync/internal/observability"
	"github.com/pnhp/nha-sync/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLibrary struct {
	items []domain.BibItem
	err   error
}

func (s stubLibrary) Items(context.Context) ([]domain.BibItem, error) { return s.items, s.err }

type stubFormatter struct {
	cites map[string]string
	calls map[string]int
}

func (s *stubFormatter) Citation(_ context.Context, key string) (string, error) {
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[key]++
	cite, ok := s.cites[key]
	if !ok {
		return "", errors.New("item not found")
	}
	return cite, nil
}

func TestMirrorSync_ReplacesMirror(t *testing.T) {
	mirror := newMemLayer(map[string]any{"key": "STALE", "title": "Removed from library"})
	metrics := observability.NewMetricsForTesting()
	library := stubLibrary{items: []domain.BibItem{
		{
			Key: "ABC", ItemType: "book", Title: "Flora of Pennsylvania", ParsedDate: "2007-01-01",
			Creators: []domain.Creator{{FirstName: "Ann", LastName: "Rhoads"}},
		},
		{Key: "NOTE1", ItemType: "note"},
	}}

	require.NoError(t, pipeline.NewMirrorSync(library, mirror, slog.Default(), metrics).Run(context.Background()))

	rows := mirror.where(domain.All())
	require.Len(t, rows, 1)
	assert.Equal(t, "ABC", rows[0].Text(domain.FieldKey))
	assert.Equal(t, "Rhoads, Ann", rows[0].Text(domain.FieldAuthors))
	assert.Equal(t, "2007", rows[0].Text(domain.FieldPublicationYear))
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.MirrorEntries), 1e-9)
}

func TestMirrorSync_PartialFetchKeepsCollectedItems(t *testing.T) {
	mirror := newMemLayer(map[string]any{"key": "STALE"})
	library := stubLibrary{items: []domain.BibItem{{Key: "ABC", ItemType: "book"}}, err: errors.New("page 2: 503")}

	err := pipeline.NewMirrorSync(library, mirror, slog.Default(), observability.NewMetricsForTesting()).Run(context.Background())

	require.NoError(t, err)
	rows := mirror.where(domain.All())
	require.Len(t, rows, 1)
	assert.Equal(t, "ABC", rows[0].Text(domain.FieldKey))
}

func TestMirrorSync_FailedFirstPageKeepsMirror(t *testing.T) {
	mirror := newMemLayer(map[string]any{"key": "KEEP"})
	library := stubLibrary{err: errors.New("page 1: 503")}

	err := pipeline.NewMirrorSync(library, mirror, slog.Default(), observability.NewMetricsForTesting()).Run(context.Background())

	require.Error(t, err)
	rows := mirror.where(domain.All())
	require.Len(t, rows, 1)
	assert.Equal(t, "KEEP", rows[0].Text(domain.FieldKey))
}

func TestCitationFiller_FillsEachKeyOnce(t *testing.T) {
	refs := newMemLayer(
		map[string]any{"zotero_key": "ABC", "source_id": "NHA-1"},
		map[string]any{"zotero_key": "ABC", "source_id": "NHA-2"},
		map[string]any{"zotero_key": "DEF", "full_cite": "Already cited."},
		map[string]any{"zotero_key": "MISSING"},
		map[string]any{"source_id": "NHA-3"},
	)
	formatter := &stubFormatter{cites: map[string]string{"ABC": "Rhoads, A. (2007). Flora of Pennsylvania."}}
	metrics := observability.NewMetricsForTesting()

	require.NoError(t, pipeline.NewCitationFiller(refs, formatter, slog.Default(), metrics).Run(context.Background()))

	assert.Equal(t, map[string]int{"ABC": 1, "MISSING": 1}, formatter.calls)
	cited := refs.where(domain.Eq(domain.FieldFullCite, "Rhoads, A. (2007). Flora of Pennsylvania."))
	assert.Len(t, cited, 2)
	missing := refs.where(domain.Eq(domain.FieldZoteroKey, "MISSING"))[0]
	assert.Nil(t, missing.Get(domain.FieldFullCite), "retried next run")
	assert.Equal(t, 1, refs.updates, "one batch update")
	assert.InDelta(t, 2.0, testutil.ToFloat64(metrics.CitationsFilled), 1e-9)
}

func TestCitationFiller_NothingToFill(t *testing.T) {
	refs := newMemLayer(map[string]any{"zotero_key": "DEF", "full_cite": "Already cited."})
	formatter := &stubFormatter{}

	require.NoError(t, pipeline.NewCitationFiller(refs, formatter, slog.Default(), observability.NewMetricsForTesting()).Run(context.Background()))

	assert.Empty(t, formatter.calls)
	assert.Zero(t, refs.updates)
}

func TestMapIDAssigner_NumbersWithinCounty(t *testing.T) {
	sites := newMemLayer(
		map[string]any{"site_name": "Woodcock Creek", "COUNTY_NAM": "Crawford"},
		map[string]any{"site_name": "Bear Meadows", "COUNTY_NAM": "Centre", "MAP_ID": 1},
		map[string]any{"site_name": "Alan Seeger", "COUNTY_NAM": "Centre"},
		map[string]any{"site_name": "Conneaut Marsh", "COUNTY_NAM": "Crawford"},
	)
	assigner := pipeline.NewMapIDAssigner(sites, slog.Default())

	require.NoError(t, assigner.Run(context.Background()))

	ids := map[string]int64{}
	for _, row := range sites.where(domain.All()) {
		ids[row.Text(domain.FieldSiteName)] = *row.Int(domain.FieldMapID)
	}
	assert.Equal(t, map[string]int64{
		"Alan Seeger":    1,
		"Bear Meadows":   2,
		"Conneaut Marsh": 1,
		"Woodcock Creek": 2,
	}, ids)
	assert.Equal(t, 1, sites.updates)

	require.NoError(t, assigner.Run(context.Background()))
	assert.Equal(t, 1, sites.updates, "unchanged numbering writes nothing")
}
