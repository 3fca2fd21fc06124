package arcgis

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"

	"github.com/pnhp/nha-sync/internal/domain"
)

// keyChunk bounds the number of keys in one IN clause.
const keyChunk = 500

// Spatial answers the scoring overlays with the geometry service.
type Spatial struct {
	geometry  *GeometryService
	sites     *FeatureLayer
	features  []*FeatureLayer
	protected *FeatureLayer
	logger    *slog.Logger
}

// NewSpatial creates a Spatial over the site polygons, the source feature
// layers and the protected lands layer.
func NewSpatial(geometry *GeometryService, sites *FeatureLayer, features []*FeatureLayer, protected *FeatureLayer, logger *slog.Logger) *Spatial {
	return &Spatial{
		geometry:  geometry,
		sites:     sites,
		features:  features,
		protected: protected,
		logger:    logger.With("component", "spatial"),
	}
}

type sitePolygons struct {
	keys     []string
	polygons []json.RawMessage
}

func (s *Spatial) loadSites(ctx context.Context) (sitePolygons, error) {
	features, _, err := s.sites.QueryGeometry(ctx, domain.NotNull(domain.FieldJoinID))
	if err != nil {
		return sitePolygons{}, err
	}
	var out sitePolygons
	for _, f := range features {
		key := f.Record.Text(domain.FieldJoinID)
		if key == "" || emptyGeometry(f.Geometry) {
			continue
		}
		out.keys = append(out.keys, key)
		out.polygons = append(out.polygons, f.Geometry)
	}
	return out, nil
}

// IntersectSites finds the site each feature's representative point falls
// within.
func (s *Spatial) IntersectSites(ctx context.Context, features map[string]domain.SourceFeature) ([]domain.SiteOccurrence, error) {
	ids := make([]string, 0, len(features))
	for id := range features {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var points []Point
	var pointIDs []string
	for _, layer := range s.features {
		for chunk := range slices.Chunk(ids, keyChunk) {
			filter, ok := domain.KeyFilter(domain.FieldSFID, chunk)
			if !ok {
				continue
			}
			rows, geometryType, err := layer.QueryGeometry(ctx, filter)
			if err != nil {
				return nil, err
			}
			pts, ptIDs, err := s.representativePoints(ctx, rows, geometryType)
			if err != nil {
				return nil, err
			}
			points = append(points, pts...)
			pointIDs = append(pointIDs, ptIDs...)
		}
	}

	sites, err := s.loadSites(ctx)
	if err != nil {
		return nil, err
	}
	relations, err := s.geometry.Within(ctx, points, sites.polygons)
	if err != nil {
		return nil, err
	}

	out := make([]domain.SiteOccurrence, 0, len(relations))
	for _, rel := range relations {
		if rel.Geometry1Index >= len(pointIDs) || rel.Geometry2Index >= len(sites.keys) {
			continue
		}
		out = append(out, domain.SiteOccurrence{JoinID: sites.keys[rel.Geometry2Index], SFID: pointIDs[rel.Geometry1Index]})
	}
	s.logger.Info("features intersected with sites", "features", len(points), "sites", len(sites.keys), "matches", len(out))
	return out, nil
}

func (s *Spatial) representativePoints(ctx context.Context, rows []Feature, geometryType string) ([]Point, []string, error) {
	var points []Point
	var ids []string
	var polygons []json.RawMessage
	var polygonIDs []string
	for _, f := range rows {
		id := f.Record.Text(domain.FieldSFID)
		if id == "" || emptyGeometry(f.Geometry) {
			continue
		}
		p, ok, err := representativePoint(geometryType, f.Geometry)
		if err != nil {
			s.logger.Warn("skipping feature with unreadable geometry", "SF_ID", id, "error", err)
			continue
		}
		if ok {
			points = append(points, p)
			ids = append(ids, id)
			continue
		}
		polygons = append(polygons, f.Geometry)
		polygonIDs = append(polygonIDs, id)
	}
	labels, err := s.geometry.LabelPoints(ctx, polygons)
	if err != nil {
		return nil, nil, err
	}
	return append(points, labels...), append(ids, polygonIDs...), nil
}

// ProtectedShare returns, per site, the percent of its area on protected land.
func (s *Spatial) ProtectedShare(ctx context.Context) (map[string]float64, error) {
	sites, err := s.loadSites(ctx)
	if err != nil {
		return nil, err
	}
	if len(sites.keys) == 0 {
		return map[string]float64{}, nil
	}

	protected, _, err := s.protected.QueryGeometry(ctx, domain.All())
	if err != nil {
		return nil, err
	}
	var lands []json.RawMessage
	for _, f := range protected {
		if !emptyGeometry(f.Geometry) {
			lands = append(lands, f.Geometry)
		}
	}
	out := make(map[string]float64, len(sites.keys))
	if len(lands) == 0 {
		return out, nil
	}

	dissolved, err := s.geometry.Union(ctx, lands)
	if err != nil {
		return nil, err
	}
	clipped, err := s.geometry.Intersect(ctx, sites.polygons, dissolved)
	if err != nil {
		return nil, err
	}
	siteAreas, err := s.geometry.Areas(ctx, sites.polygons)
	if err != nil {
		return nil, err
	}

	var nonEmpty []json.RawMessage
	var nonEmptyIdx []int
	for i, g := range clipped {
		if !emptyGeometry(g) {
			nonEmpty = append(nonEmpty, g)
			nonEmptyIdx = append(nonEmptyIdx, i)
		}
	}
	clippedAreas, err := s.geometry.Areas(ctx, nonEmpty)
	if err != nil {
		return nil, err
	}

	for j, i := range nonEmptyIdx {
		if siteAreas[i] <= 0 {
			continue
		}
		out[sites.keys[i]] += 100 * clippedAreas[j] / siteAreas[i]
	}
	s.logger.Info("protected share computed", "sites", len(sites.keys), "protected_parcels", len(lands))
	return out, nil
}
