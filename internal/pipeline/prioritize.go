package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pnhp/nha-sync/internal/domain"
	"github.com/pnhp/nha-sync/internal/observability"
)

// ScoringTables are the occurrence, site and rank tables the scoring job reads.
type ScoringTables struct {
	Sites   domain.Table
	Species domain.Table
	EOs     domain.Table
	Visits  domain.Table

	// Features are the source feature layers (points, lines, polygons).
	Features []domain.Table

	GRank      domain.Table
	SRank      domain.Table
	RankMatrix domain.Table
	EOWeights  domain.Table
}

// Spatial answers the overlay questions scoring depends on.
type Spatial interface {
	// IntersectSites returns the sites each feature's centroid falls within.
	IntersectSites(ctx context.Context, features map[string]domain.SourceFeature) ([]domain.SiteOccurrence, error)
	// ProtectedShare returns the percent of each site's area on protected land.
	ProtectedShare(ctx context.Context) (map[string]float64, error)
}

// ScoreSink receives the complete score table of a run.
type ScoreSink interface {
	WriteScores(ctx context.Context, scores []domain.PriorityScore) error
}

// Prioritizer computes the site priority scores and writes them to every sink.
type Prioritizer struct {
	tables  ScoringTables
	spatial Spatial
	sinks   []ScoreSink
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewPrioritizer creates a Prioritizer.
func NewPrioritizer(tables ScoringTables, spatial Spatial, sinks []ScoreSink, logger *slog.Logger, metrics *observability.Metrics) *Prioritizer {
	return &Prioritizer{
		tables:  tables,
		spatial: spatial,
		sinks:   sinks,
		logger:  logger.With("component", "prioritize"),
		metrics: metrics,
	}
}

func (p *Prioritizer) Name() string { return "prioritize" }

// Run scores every site and replaces the output of each sink.
func (p *Prioritizer) Run(ctx context.Context) error {
	in, err := p.load(ctx)
	if err != nil {
		return err
	}

	scores := domain.Score(in)
	for _, sink := range p.sinks {
		if err := sink.WriteScores(ctx, scores); err != nil {
			return fmt.Errorf("write scores: %w", err)
		}
	}
	p.metrics.SitesScored.Set(float64(len(scores)))
	p.logger.Info("sites scored", "sites", len(scores), "qualifying_features", len(in.Features))
	return nil
}

func (p *Prioritizer) load(ctx context.Context) (domain.ScoringInput, error) {
	var in domain.ScoringInput

	ranks, err := p.loadRanks(ctx)
	if err != nil {
		return in, err
	}
	in.Ranks = ranks

	eoRows, err := p.tables.EOs.Query(ctx, domain.All())
	if err != nil {
		return in, fmt.Errorf("query element occurrences: %w", err)
	}
	in.EOs = make(map[string]domain.EORecord, len(eoRows))
	for _, row := range eoRows {
		eo := domain.EORecordFromRecord(row)
		in.EOs[eo.EOID] = eo
	}

	speciesRows, err := p.tables.Species.Query(ctx, domain.All())
	if err != nil {
		return in, fmt.Errorf("query species lists: %w", err)
	}
	for _, row := range speciesRows {
		in.Species = append(in.Species, domain.SpeciesEntryFromRecord(row))
	}

	in.Features, err = p.qualifyingFeatures(ctx, in.EOs)
	if err != nil {
		return in, err
	}
	if len(in.Features) > 0 {
		in.Intersections, err = p.spatial.IntersectSites(ctx, in.Features)
		if err != nil {
			return in, fmt.Errorf("intersect features with sites: %w", err)
		}
	}

	visitRows, err := p.tables.Visits.Query(ctx, domain.All())
	if err != nil {
		return in, fmt.Errorf("query visits: %w", err)
	}
	for _, row := range visitRows {
		in.Visits = append(in.Visits, domain.VisitFromRecord(row))
	}

	siteRows, err := p.tables.Sites.Query(ctx, domain.All())
	if err != nil {
		return in, fmt.Errorf("query sites: %w", err)
	}
	in.DrawnDates = make(map[string]time.Time, len(siteRows))
	for _, row := range siteRows {
		key := row.String(domain.FieldJoinID)
		drawn := row.Time(domain.FieldDrawnDate)
		if key != nil && drawn != nil {
			in.DrawnDates[*key] = *drawn
		}
	}

	in.Protected, err = p.spatial.ProtectedShare(ctx)
	if err != nil {
		return in, fmt.Errorf("protected land share: %w", err)
	}
	return in, nil
}

func (p *Prioritizer) loadRanks(ctx context.Context) (domain.RankTables, error) {
	query := func(t domain.Table, name string) ([]domain.Record, error) {
		rows, err := t.Query(ctx, domain.All())
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", name, err)
		}
		return rows, nil
	}
	grank, err := query(p.tables.GRank, "global ranks")
	if err != nil {
		return domain.RankTables{}, err
	}
	srank, err := query(p.tables.SRank, "state ranks")
	if err != nil {
		return domain.RankTables{}, err
	}
	matrix, err := query(p.tables.RankMatrix, "rank matrix")
	if err != nil {
		return domain.RankTables{}, err
	}
	weights, err := query(p.tables.EOWeights, "EO rank weights")
	if err != nil {
		return domain.RankTables{}, err
	}
	return domain.RankTablesFromRecords(grank, srank, matrix, weights), nil
}

// qualifyingFeatures returns the tracked source features that pass the
// recency rules, keyed by SF_ID.
func (p *Prioritizer) qualifyingFeatures(ctx context.Context, eos map[string]domain.EORecord) (map[string]domain.SourceFeature, error) {
	year := domain.CurrentYear()
	out := map[string]domain.SourceFeature{}
	for _, t := range p.tables.Features {
		rows, err := t.Query(ctx, domain.Eq(domain.FieldEOTrack, "Y"))
		if err != nil {
			return nil, fmt.Errorf("query source features: %w", err)
		}
		for _, row := range rows {
			f := domain.SourceFeatureFromRecord(row)
			if eo, ok := eos[f.EOID]; ok {
				f = f.WithEO(eo)
			}
			if f.SFID != "" && domain.Qualifies(f, year) {
				out[f.SFID] = f
			}
		}
	}
	return out, nil
}
