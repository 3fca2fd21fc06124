package pipeline

import (
	"context"
	"fmt"

	"github.com/pnhp/nha-sync/internal/domain"
)

// TableSpatial answers overlay questions from precomputed tables: one row
// per (nha_join_id, SF_ID) centroid intersection and one row per site with
// its percent_protected.
type TableSpatial struct {
	intersections domain.Table
	protected     domain.Table
}

// NewTableSpatial creates a TableSpatial over the two overlay tables.
func NewTableSpatial(intersections, protected domain.Table) *TableSpatial {
	return &TableSpatial{intersections: intersections, protected: protected}
}

// IntersectSites returns the stored intersections of the given features.
func (s *TableSpatial) IntersectSites(ctx context.Context, features map[string]domain.SourceFeature) ([]domain.SiteOccurrence, error) {
	rows, err := s.intersections.Query(ctx, domain.All())
	if err != nil {
		return nil, fmt.Errorf("query site intersections: %w", err)
	}
	var out []domain.SiteOccurrence
	for _, row := range rows {
		sfID := row.Text(domain.FieldSFID)
		joinID := row.Text(domain.FieldJoinID)
		if _, ok := features[sfID]; !ok || joinID == "" {
			continue
		}
		out = append(out, domain.SiteOccurrence{JoinID: joinID, SFID: sfID})
	}
	return out, nil
}

// ProtectedShare returns the stored protected percentage per site.
func (s *TableSpatial) ProtectedShare(ctx context.Context) (map[string]float64, error) {
	rows, err := s.protected.Query(ctx, domain.All())
	if err != nil {
		return nil, fmt.Errorf("query protected share: %w", err)
	}
	out := make(map[string]float64, len(rows))
	for _, row := range rows {
		joinID := row.Text(domain.FieldJoinID)
		pct := row.Float(domain.FieldPctProtect)
		if joinID == "" || pct == nil {
			continue
		}
		out[joinID] = *pct
	}
	return out, nil
}
