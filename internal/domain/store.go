package domain

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a layer, item or attachment does not exist.
var ErrNotFound = errors.New("not found")

// Table is the narrow contract every feature layer or table store satisfies.
type Table interface {
	// Query returns every row matching where.
	Query(ctx context.Context, where Filter) ([]Record, error)

	// Insert adds rows. Each map holds field name to value.
	Insert(ctx context.Context, rows []map[string]any) error

	// Update applies patches addressed by object id in one pass.
	Update(ctx context.Context, updates []RowUpdate) error

	// Calculate sets field to value on every row matching where.
	Calculate(ctx context.Context, where Filter, field string, value any) error

	// Delete removes every row matching where.
	Delete(ctx context.Context, where Filter) error
}

// Attachment describes a file attached to a row.
type Attachment struct {
	ID          int64
	Name        string
	ContentType string
	Size        int64
}

// Attachments manages files attached to rows of a layer.
type Attachments interface {
	ListAttachments(ctx context.Context, objectID int64) ([]Attachment, error)

	// DownloadAttachment writes the attachment into dir and returns the file path.
	DownloadAttachment(ctx context.Context, objectID int64, att Attachment, dir string) (string, error)

	AddAttachment(ctx context.Context, objectID int64, path string) error
	DeleteAttachment(ctx context.Context, objectID, attachmentID int64) error
}

// Layer is a table whose rows carry attachments.
type Layer interface {
	Table
	Attachments
}
