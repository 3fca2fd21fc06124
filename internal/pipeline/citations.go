package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pnhp/nha-sync/internal/domain"
	"github.com/pnhp/nha-sync/internal/observability"
)

// CitationFormatter renders the formatted bibliography entry of a library item.
type CitationFormatter interface {
	Citation(ctx context.Context, key string) (string, error)
}

// CitationFiller fills full_cite on references that have a library key but
// no citation yet.
type CitationFiller struct {
	references domain.Table
	formatter  CitationFormatter
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewCitationFiller creates a CitationFiller.
func NewCitationFiller(references domain.Table, formatter CitationFormatter, logger *slog.Logger, metrics *observability.Metrics) *CitationFiller {
	return &CitationFiller{
		references: references,
		formatter:  formatter,
		logger:     logger.With("component", "citations"),
		metrics:    metrics,
	}
}

func (c *CitationFiller) Name() string { return "citations" }

// Run looks up each distinct key once. A key that fails to format is logged
// and left for the next run.
func (c *CitationFiller) Run(ctx context.Context) error {
	rows, err := c.references.Query(ctx, domain.And(
		domain.NotNull(domain.FieldZoteroKey),
		domain.IsNull(domain.FieldFullCite),
	))
	if err != nil {
		return fmt.Errorf("query references without citation: %w", err)
	}

	byKey := map[string][]int64{}
	for _, row := range rows {
		ref := domain.ReferenceFromRecord(row)
		byKey[*ref.ZoteroKey] = append(byKey[*ref.ZoteroKey], ref.ObjectID)
	}

	var updates []domain.RowUpdate
	for _, key := range sortedKeys(byKey) {
		cite, err := c.formatter.Citation(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("citation lookup failed", "zotero_key", key, "error", err)
			continue
		}
		if cite == "" {
			continue
		}
		for _, oid := range byKey[key] {
			updates = append(updates, domain.RowUpdate{ObjectID: oid, Fields: domain.Patch{domain.FieldFullCite: cite}})
		}
	}

	if len(updates) == 0 {
		return nil
	}
	if err := c.references.Update(ctx, updates); err != nil {
		return fmt.Errorf("update citations: %w", err)
	}
	c.metrics.CitationsFilled.Add(float64(len(updates)))
	c.logger.Info("citations filled", "references", len(updates), "keys", len(byKey))
	return nil
}
