// Package csvexport writes the priority score table as a CSV file.
package csvexport

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pnhp/nha-sync/internal/domain"
)

// Writer replaces a CSV file with each score table it receives.
type Writer struct {
	path   string
	logger *slog.Logger
}

// NewWriter creates a Writer for the file at path.
func NewWriter(path string, logger *slog.Logger) *Writer {
	return &Writer{path: path, logger: logger.With("component", "csvexport")}
}

// WriteScores writes a header row and one row per site. The file is written
// beside the target and renamed over it, so readers never see a partial
// table.
func (w *Writer) WriteScores(ctx context.Context, scores []domain.PriorityScore) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".scores-*.csv")
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer os.Remove(tmp.Name())

	cw := csv.NewWriter(tmp)
	if err := cw.Write(domain.ScoreColumns); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write header: %w", err)
	}
	for _, s := range scores {
		if err := cw.Write(formatRow(s.Values())); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("write %s: %w", s.JoinID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("flush export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close export file: %w", err)
	}
	if err := os.Rename(tmp.Name(), w.path); err != nil {
		return fmt.Errorf("replace export file: %w", err)
	}
	w.logger.Info("scores exported", "path", w.path, "sites", len(scores))
	return nil
}

func formatRow(values []any) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = formatValue(v)
	}
	return out
}

// formatValue renders missing values as empty cells.
func formatValue(v any) string {
	switch x := domain.Normalize(v).(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
