package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"

	"github.com/pnhp/nha-sync/internal/domain"
)

const (
	colObjectID    = "objectid"
	colGlobalID    = "globalid"
	colCreatedDate = "created_date"

	insertBatch = 200
)

// Table is one table of the store. It satisfies domain.Layer; attachments of
// every table live in a shared attachments table.
type Table struct {
	db      *gorm.DB
	name    string
	columns map[string]bool
	model   func() any
	clock   clockwork.Clock
	logger  *slog.Logger
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

func column(field string) string { return strings.ToLower(field) }

func (t *Table) quote(field string) string { return t.db.Statement.Quote(column(field)) }

// Query returns every row matching where, ordered by object id.
func (t *Table) Query(ctx context.Context, where domain.Filter) ([]domain.Record, error) {
	sql, args := where.Params(t.quote)
	var rows []map[string]any
	err := t.db.WithContext(ctx).Table(t.name).Where(sql, args...).Order(t.quote(colObjectID)).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.name, err)
	}
	out := make([]domain.Record, 0, len(rows))
	for _, row := range rows {
		attrs := make(map[string]any, len(row))
		for k, v := range row {
			attrs[column(k)] = domain.Normalize(v)
		}
		rec := domain.Record{Attributes: attrs}
		if oid, ok := attrs[colObjectID].(int64); ok {
			rec.ObjectID = oid
		}
		out = append(out, rec)
	}
	return out, nil
}

// Insert adds rows, assigning a GlobalID and creation date where the table
// has them and the row does not.
func (t *Table) Insert(ctx context.Context, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}
	keys := map[string]bool{}
	prepared := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		values, err := t.values(row)
		if err != nil {
			return fmt.Errorf("insert into %s: %w", t.name, err)
		}
		delete(values, colObjectID)
		if t.columns[colGlobalID] && values[colGlobalID] == nil {
			values[colGlobalID] = newGlobalID()
		}
		if t.columns[colCreatedDate] && values[colCreatedDate] == nil {
			values[colCreatedDate] = t.clock.Now().UTC()
		}
		for k := range values {
			keys[k] = true
		}
		prepared = append(prepared, values)
	}
	// Every row of a batch must name the same columns.
	for _, values := range prepared {
		for k := range keys {
			if _, ok := values[k]; !ok {
				values[k] = nil
			}
		}
	}

	for batch := range slices.Chunk(prepared, insertBatch) {
		if err := t.db.WithContext(ctx).Table(t.name).Create(batch).Error; err != nil {
			return fmt.Errorf("insert into %s: %w", t.name, err)
		}
	}
	t.logger.Debug("rows inserted", "count", len(prepared))
	return nil
}

// Update applies each patch to the row with its object id.
func (t *Table) Update(ctx context.Context, updates []domain.RowUpdate) error {
	for _, u := range updates {
		values, err := t.values(u.Fields)
		if err != nil {
			return fmt.Errorf("update %s: %w", t.name, err)
		}
		delete(values, colObjectID)
		if len(values) == 0 {
			continue
		}
		err = t.db.WithContext(ctx).Table(t.name).
			Where(t.quote(colObjectID)+" = ?", u.ObjectID).
			Updates(values).Error
		if err != nil {
			return fmt.Errorf("update %s row %d: %w", t.name, u.ObjectID, err)
		}
	}
	return nil
}

// Calculate sets field to value on every row matching where.
func (t *Table) Calculate(ctx context.Context, where domain.Filter, field string, value any) error {
	col := column(field)
	if !t.columns[col] {
		return fmt.Errorf("calculate %s: unknown field %q", t.name, field)
	}
	sql, args := where.Params(t.quote)
	err := t.db.WithContext(ctx).Table(t.name).Where(sql, args...).Update(col, domain.Normalize(value)).Error
	if err != nil {
		return fmt.Errorf("calculate %s.%s: %w", t.name, field, err)
	}
	return nil
}

// Delete removes every row matching where, with its attachments.
func (t *Table) Delete(ctx context.Context, where domain.Filter) error {
	sql, args := where.Params(t.quote)
	db := t.db.WithContext(ctx)

	var ids []int64
	if err := db.Table(t.name).Where(sql, args...).Pluck(colObjectID, &ids).Error; err != nil {
		return fmt.Errorf("delete from %s: %w", t.name, err)
	}
	if len(ids) == 0 {
		return nil
	}
	if err := db.Where(sql, args...).Delete(t.model()).Error; err != nil {
		return fmt.Errorf("delete from %s: %w", t.name, err)
	}
	for chunk := range slices.Chunk(ids, insertBatch) {
		err := db.Where("layer = ? AND rel_objectid IN ?", t.name, chunk).Delete(&attachment{}).Error
		if err != nil {
			return fmt.Errorf("delete attachments of %s: %w", t.name, err)
		}
	}
	t.logger.Debug("rows deleted", "count", len(ids))
	return nil
}

func (t *Table) values(fields map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		col := column(k)
		if !t.columns[col] {
			return nil, fmt.Errorf("unknown field %q", k)
		}
		out[col] = domain.Normalize(v)
	}
	return out, nil
}

// newGlobalID returns a GlobalID in the braced upper-case form feature
// services use.
func newGlobalID() string {
	return "{" + strings.ToUpper(uuid.NewString()) + "}"
}

// ListAttachments returns the attachments of a row.
func (t *Table) ListAttachments(ctx context.Context, objectID int64) ([]domain.Attachment, error) {
	var rows []attachment
	err := t.db.WithContext(ctx).
		Select("attachmentid", "att_name", "content_type", "data_size").
		Where("layer = ? AND rel_objectid = ?", t.name, objectID).
		Order("attachmentid").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list attachments of %s row %d: %w", t.name, objectID, err)
	}
	out := make([]domain.Attachment, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Attachment{ID: r.ID, Name: r.Name, ContentType: r.ContentType, Size: r.Size})
	}
	return out, nil
}

// DownloadAttachment writes an attachment into dir under its own name.
func (t *Table) DownloadAttachment(ctx context.Context, objectID int64, att domain.Attachment, dir string) (string, error) {
	var row attachment
	err := t.db.WithContext(ctx).
		Where("attachmentid = ? AND layer = ? AND rel_objectid = ?", att.ID, t.name, objectID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("attachment %d of %s row %d: %w", att.ID, t.name, objectID, domain.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("read attachment %d: %w", att.ID, err)
	}
	name := filepath.Base(row.Name)
	if name == "." || name == string(filepath.Separator) {
		name = fmt.Sprintf("attachment-%d", row.ID)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, row.Data, 0o600); err != nil {
		return "", fmt.Errorf("write attachment: %w", err)
	}
	return path, nil
}

// AddAttachment stores the file at path on a row.
func (t *Table) AddAttachment(ctx context.Context, objectID int64, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read attachment file: %w", err)
	}
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	row := attachment{
		Layer:       t.name,
		ParentOID:   objectID,
		Name:        filepath.Base(path),
		ContentType: contentType,
		Size:        int64(len(data)),
		Data:        data,
	}
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("add attachment to %s row %d: %w", t.name, objectID, err)
	}
	return nil
}

// DeleteAttachment removes one attachment from a row.
func (t *Table) DeleteAttachment(ctx context.Context, objectID, attachmentID int64) error {
	res := t.db.WithContext(ctx).
		Where("attachmentid = ? AND layer = ? AND rel_objectid = ?", attachmentID, t.name, objectID).
		Delete(&attachment{})
	if res.Error != nil {
		return fmt.Errorf("delete attachment %d of %s row %d: %w", attachmentID, t.name, objectID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("attachment %d of %s row %d: %w", attachmentID, t.name, objectID, domain.ErrNotFound)
	}
	return nil
}
