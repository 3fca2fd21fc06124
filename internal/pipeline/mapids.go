package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pnhp/nha-sync/internal/domain"
)

// MapIDAssigner numbers the sites of each county for map series layouts.
type MapIDAssigner struct {
	sites  domain.Table
	logger *slog.Logger
}

// NewMapIDAssigner creates a MapIDAssigner.
func NewMapIDAssigner(sites domain.Table, logger *slog.Logger) *MapIDAssigner {
	return &MapIDAssigner{sites: sites, logger: logger.With("component", "mapids")}
}

func (m *MapIDAssigner) Name() string { return "mapids" }

// Run renumbers every site and writes the numbers that changed.
func (m *MapIDAssigner) Run(ctx context.Context) error {
	rows, err := m.sites.Query(ctx, domain.All())
	if err != nil {
		return fmt.Errorf("query sites: %w", err)
	}
	current := make(map[int64]any, len(rows))
	for _, row := range rows {
		current[row.ObjectID] = domain.Normalize(row.Get(domain.FieldMapID))
	}

	var changed []domain.RowUpdate
	for _, u := range domain.AssignMapIDs(rows) {
		if current[u.ObjectID] != u.Fields[domain.FieldMapID] {
			changed = append(changed, u)
		}
	}
	if len(changed) == 0 {
		m.logger.Info("map ids up to date", "sites", len(rows))
		return nil
	}
	if err := m.sites.Update(ctx, changed); err != nil {
		return fmt.Errorf("update map ids: %w", err)
	}
	m.logger.Info("map ids assigned", "sites", len(rows), "changed", len(changed))
	return nil
}
