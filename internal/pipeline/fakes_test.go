package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pnhp/nha-sync/internal/domain"
)

// memLayer is an in-memory domain.Layer. Inserted rows get an object id, a
// global id and an increasing created_date, as the editor tracking of a
// feature service would assign.
type memLayer struct {
	mu          sync.Mutex
	rows        []domain.Record
	nextOID     int64
	attachments map[int64][]memAttachment
	nextAttID   int64
	updates     int
	queryErr    error
}

type memAttachment struct {
	att  domain.Attachment
	path string
}

var baseCreated = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newMemLayer(rows ...map[string]any) *memLayer {
	m := &memLayer{attachments: map[int64][]memAttachment{}}
	for _, attrs := range rows {
		m.add(attrs)
	}
	return m
}

func (m *memLayer) add(attrs map[string]any) int64 {
	m.nextOID++
	oid := m.nextOID
	row := make(map[string]any, len(attrs)+3)
	for k, v := range attrs {
		row[k] = domain.Normalize(v)
	}
	row[domain.FieldObjectID] = oid
	if _, ok := row[domain.FieldGlobalID]; !ok {
		row[domain.FieldGlobalID] = fmt.Sprintf("{GUID-%04d}", oid)
	}
	if _, ok := row[domain.FieldCreatedDate]; !ok {
		row[domain.FieldCreatedDate] = baseCreated.Add(time.Duration(oid) * time.Hour)
	}
	m.rows = append(m.rows, domain.Record{ObjectID: oid, Attributes: row})
	return oid
}

func (m *memLayer) Query(_ context.Context, where domain.Filter) ([]domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	var out []domain.Record
	for _, r := range m.rows {
		if !where.Match(r) {
			continue
		}
		attrs := make(map[string]any, len(r.Attributes))
		for k, v := range r.Attributes {
			attrs[k] = v
		}
		out = append(out, domain.Record{ObjectID: r.ObjectID, Attributes: attrs})
	}
	return out, nil
}

func (m *memLayer) Insert(_ context.Context, rows []map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, attrs := range rows {
		m.add(attrs)
	}
	return nil
}

func (m *memLayer) Update(_ context.Context, updates []domain.RowUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	for _, u := range updates {
		row := m.find(u.ObjectID)
		if row == nil {
			return fmt.Errorf("objectid %d: %w", u.ObjectID, domain.ErrNotFound)
		}
		for k, v := range u.Fields {
			row.Attributes[k] = domain.Normalize(v)
		}
	}
	return nil
}

func (m *memLayer) Calculate(_ context.Context, where domain.Filter, field string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if where.Match(m.rows[i]) {
			m.rows[i].Attributes[field] = domain.Normalize(value)
		}
	}
	return nil
}

func (m *memLayer) Delete(_ context.Context, where domain.Filter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	for _, r := range m.rows {
		if !where.Match(r) {
			kept = append(kept, r)
		}
	}
	m.rows = kept
	return nil
}

func (m *memLayer) ListAttachments(_ context.Context, objectID int64) ([]domain.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Attachment
	for _, a := range m.attachments[objectID] {
		out = append(out, a.att)
	}
	return out, nil
}

func (m *memLayer) DownloadAttachment(_ context.Context, objectID int64, att domain.Attachment, dir string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attachments[objectID] {
		if a.att.ID == att.ID {
			path := filepath.Join(dir, a.att.Name)
			if err := os.WriteFile(path, []byte("photo"), 0o600); err != nil {
				return "", err
			}
			return path, nil
		}
	}
	return "", domain.ErrNotFound
}

func (m *memLayer) AddAttachment(_ context.Context, objectID int64, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := os.Stat(path); err != nil {
		return err
	}
	m.attach(objectID, filepath.Base(path))
	return nil
}

func (m *memLayer) attach(objectID int64, name string) {
	m.nextAttID++
	m.attachments[objectID] = append(m.attachments[objectID], memAttachment{
		att:  domain.Attachment{ID: m.nextAttID, Name: name, ContentType: "image/jpeg"},
		path: name,
	})
}

func (m *memLayer) DeleteAttachment(_ context.Context, objectID, attachmentID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	atts := m.attachments[objectID]
	for i, a := range atts {
		if a.att.ID == attachmentID {
			m.attachments[objectID] = append(atts[:i], atts[i+1:]...)
			return nil
		}
	}
	return errors.New("attachment not found")
}

func (m *memLayer) find(oid int64) *domain.Record {
	for i := range m.rows {
		if m.rows[i].ObjectID == oid {
			return &m.rows[i]
		}
	}
	return nil
}

// where returns the rows matching f.
func (m *memLayer) where(f domain.Filter) []domain.Record {
	rows, _ := m.Query(context.Background(), f)
	return rows
}

func (m *memLayer) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}
