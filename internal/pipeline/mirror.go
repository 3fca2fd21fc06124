package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pnhp/nha-sync/internal/domain"
	"github.com/pnhp/nha-sync/internal/observability"
)

// BibSource lists every item of the reference library.
type BibSource interface {
	Items(ctx context.Context) ([]domain.BibItem, error)
}

// MirrorSync replaces the reference mirror table with the library contents.
type MirrorSync struct {
	source  BibSource
	mirror  domain.Table
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewMirrorSync creates a MirrorSync.
func NewMirrorSync(source BibSource, mirror domain.Table, logger *slog.Logger, metrics *observability.Metrics) *MirrorSync {
	return &MirrorSync{
		source:  source,
		mirror:  mirror,
		logger:  logger.With("component", "refs"),
		metrics: metrics,
	}
}

func (m *MirrorSync) Name() string { return "refs" }

// Run fetches the library and replaces the mirror. A fetch that fails part
// way still replaces the mirror with the items read before the failure; one
// that returns nothing leaves the mirror as it was.
func (m *MirrorSync) Run(ctx context.Context) error {
	items, err := m.source.Items(ctx)
	if err != nil {
		if len(items) == 0 {
			return fmt.Errorf("fetch library: %w", err)
		}
		m.logger.Warn("library fetch incomplete, mirroring partial results", "fetched", len(items), "error", err)
	}

	entries := domain.NormalizeBibItems(items)
	rows := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, e.Fields())
	}

	if err := m.mirror.Delete(ctx, domain.All()); err != nil {
		return fmt.Errorf("clear mirror: %w", err)
	}
	if len(rows) > 0 {
		if err := m.mirror.Insert(ctx, rows); err != nil {
			return fmt.Errorf("insert mirror: %w", err)
		}
	}
	m.metrics.MirrorEntries.Set(float64(len(rows)))
	m.logger.Info("reference mirror replaced", "items", len(items), "entries", len(rows))
	return nil
}
