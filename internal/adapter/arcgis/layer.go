package arcgis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pnhp/nha-sync/internal/domain"
)

const (
	pageSize  = 1000
	editBatch = 500
)

// Feature is a row with its geometry as returned by a query.
type Feature struct {
	Record   domain.Record
	Geometry json.RawMessage
}

// FeatureLayer is a feature layer or table of a feature service. It
// implements domain.Layer.
type FeatureLayer struct {
	client *Client
	url    string

	mu            sync.Mutex
	objectIDField string
}

// NewFeatureLayer binds a layer URL such as .../FeatureServer/0.
func NewFeatureLayer(client *Client, layerURL string) *FeatureLayer {
	return &FeatureLayer{client: client, url: strings.TrimRight(layerURL, "/")}
}

// URL returns the layer endpoint.
func (l *FeatureLayer) URL() string { return l.url }

// oidField returns the layer's object id field name from its metadata.
func (l *FeatureLayer) oidField(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.objectIDField != "" {
		return l.objectIDField, nil
	}
	var meta struct {
		ObjectIDField string `json:"objectIdField"`
		Fields        []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"fields"`
	}
	if err := l.client.get(ctx, l.url, nil, &meta); err != nil {
		return "", fmt.Errorf("layer metadata: %w", err)
	}
	field := meta.ObjectIDField
	if field == "" {
		for _, f := range meta.Fields {
			if f.Type == "esriFieldTypeOID" {
				field = f.Name
				break
			}
		}
	}
	if field == "" {
		field = "OBJECTID"
	}
	l.objectIDField = field
	return field, nil
}

type queryResponse struct {
	ObjectIDFieldName     string `json:"objectIdFieldName"`
	GeometryType          string `json:"geometryType"`
	ExceededTransferLimit bool   `json:"exceededTransferLimit"`
	Features              []struct {
		Attributes map[string]any  `json:"attributes"`
		Geometry   json.RawMessage `json:"geometry"`
	} `json:"features"`
}

// Query returns every row matching where, paging through the service limit.
func (l *FeatureLayer) Query(ctx context.Context, where domain.Filter) ([]domain.Record, error) {
	features, _, err := l.query(ctx, where, false)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Record, len(features))
	for i, f := range features {
		out[i] = f.Record
	}
	return out, nil
}

// QueryGeometry returns matching rows with geometry in WGS84, plus the
// layer's geometry type.
func (l *FeatureLayer) QueryGeometry(ctx context.Context, where domain.Filter) ([]Feature, string, error) {
	return l.query(ctx, where, true)
}

// query pages by offset in object id order so pages never overlap.
func (l *FeatureLayer) query(ctx context.Context, where domain.Filter, withGeometry bool) ([]Feature, string, error) {
	oid, err := l.oidField(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("query %s: %w", l.url, err)
	}
	var out []Feature
	var geometryType string
	for offset := 0; ; {
		params := url.Values{
			"where":             {where.SQL()},
			"outFields":         {"*"},
			"orderByFields":     {oid + " ASC"},
			"returnGeometry":    {strconv.FormatBool(withGeometry)},
			"resultOffset":      {strconv.Itoa(offset)},
			"resultRecordCount": {strconv.Itoa(pageSize)},
		}
		if withGeometry {
			params.Set("outSR", strconv.Itoa(wgs84))
		}
		var resp queryResponse
		if err := l.client.post(ctx, l.url+"/query", params, &resp); err != nil {
			return nil, "", fmt.Errorf("query %s: %w", l.url, err)
		}
		geometryType = resp.GeometryType
		for _, f := range resp.Features {
			out = append(out, Feature{Record: toRecord(f.Attributes, resp.ObjectIDFieldName), Geometry: f.Geometry})
		}
		if !resp.ExceededTransferLimit || len(resp.Features) == 0 {
			return out, geometryType, nil
		}
		offset += len(resp.Features)
	}
}

func toRecord(attrs map[string]any, oidField string) domain.Record {
	r := domain.Record{Attributes: make(map[string]any, len(attrs))}
	for k, v := range attrs {
		r.Attributes[k] = domain.Normalize(v)
	}
	if oidField == "" {
		oidField = domain.FieldObjectID
	}
	if oid := r.Int(oidField); oid != nil {
		r.ObjectID = *oid
	}
	return r
}

type editResult struct {
	ObjectID int64 `json:"objectId"`
	Success  bool  `json:"success"`
	Error    *struct {
		Code        int    `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func checkResults(op string, results []editResult) error {
	for _, r := range results {
		if !r.Success {
			if r.Error != nil {
				return fmt.Errorf("%s objectid %d: %d %s", op, r.ObjectID, r.Error.Code, r.Error.Description)
			}
			return fmt.Errorf("%s objectid %d failed", op, r.ObjectID)
		}
	}
	return nil
}

type edit struct {
	Attributes map[string]any `json:"attributes"`
}

// Insert adds rows in batches through applyEdits.
func (l *FeatureLayer) Insert(ctx context.Context, rows []map[string]any) error {
	for start := 0; start < len(rows); start += editBatch {
		end := min(start+editBatch, len(rows))
		adds := make([]edit, 0, end-start)
		for _, row := range rows[start:end] {
			adds = append(adds, edit{Attributes: encodeAttributes(row)})
		}
		if err := l.applyEdits(ctx, "adds", adds); err != nil {
			return err
		}
	}
	return nil
}

// Update applies patches in batches through applyEdits.
func (l *FeatureLayer) Update(ctx context.Context, updates []domain.RowUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	oidField, err := l.oidField(ctx)
	if err != nil {
		return err
	}
	for start := 0; start < len(updates); start += editBatch {
		end := min(start+editBatch, len(updates))
		edits := make([]edit, 0, end-start)
		for _, u := range updates[start:end] {
			attrs := encodeAttributes(u.Fields)
			attrs[oidField] = u.ObjectID
			edits = append(edits, edit{Attributes: attrs})
		}
		if err := l.applyEdits(ctx, "updates", edits); err != nil {
			return err
		}
	}
	return nil
}

func (l *FeatureLayer) applyEdits(ctx context.Context, kind string, edits []edit) error {
	payload, err := json.Marshal(edits)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	var resp struct {
		AddResults    []editResult `json:"addResults"`
		UpdateResults []editResult `json:"updateResults"`
	}
	if err := l.client.post(ctx, l.url+"/applyEdits", url.Values{kind: {string(payload)}}, &resp); err != nil {
		return fmt.Errorf("apply %s to %s: %w", kind, l.url, err)
	}
	if err := checkResults("add", resp.AddResults); err != nil {
		return err
	}
	return checkResults("update", resp.UpdateResults)
}

// Calculate sets field to value on every matching row in one request.
func (l *FeatureLayer) Calculate(ctx context.Context, where domain.Filter, field string, value any) error {
	expr, err := json.Marshal([]map[string]any{{"field": field, "value": encodeValue(domain.Normalize(value))}})
	if err != nil {
		return fmt.Errorf("encode calc expression: %w", err)
	}
	var resp struct {
		Success bool `json:"success"`
	}
	params := url.Values{"where": {where.SQL()}, "calcExpression": {string(expr)}}
	if err := l.client.post(ctx, l.url+"/calculate", params, &resp); err != nil {
		return fmt.Errorf("calculate %s on %s: %w", field, l.url, err)
	}
	if !resp.Success {
		return fmt.Errorf("calculate %s on %s: not successful", field, l.url)
	}
	return nil
}

// Delete removes every matching row.
func (l *FeatureLayer) Delete(ctx context.Context, where domain.Filter) error {
	var resp struct {
		Success       *bool        `json:"success"`
		DeleteResults []editResult `json:"deleteResults"`
	}
	if err := l.client.post(ctx, l.url+"/deleteFeatures", url.Values{"where": {where.SQL()}}, &resp); err != nil {
		return fmt.Errorf("delete from %s: %w", l.url, err)
	}
	if resp.Success != nil && !*resp.Success {
		return fmt.Errorf("delete from %s: not successful", l.url)
	}
	return checkResults("delete", resp.DeleteResults)
}

// ListAttachments returns the attachments of a row.
func (l *FeatureLayer) ListAttachments(ctx context.Context, objectID int64) ([]domain.Attachment, error) {
	var resp struct {
		AttachmentInfos []struct {
			ID          int64  `json:"id"`
			Name        string `json:"name"`
			ContentType string `json:"contentType"`
			Size        int64  `json:"size"`
		} `json:"attachmentInfos"`
	}
	if err := l.client.get(ctx, fmt.Sprintf("%s/%d/attachments", l.url, objectID), nil, &resp); err != nil {
		return nil, fmt.Errorf("list attachments of %d: %w", objectID, err)
	}
	out := make([]domain.Attachment, 0, len(resp.AttachmentInfos))
	for _, a := range resp.AttachmentInfos {
		out = append(out, domain.Attachment{ID: a.ID, Name: a.Name, ContentType: a.ContentType, Size: a.Size})
	}
	return out, nil
}

// DownloadAttachment saves an attachment into dir under its own name.
func (l *FeatureLayer) DownloadAttachment(ctx context.Context, objectID int64, att domain.Attachment, dir string) (string, error) {
	name := filepath.Base(att.Name)
	if name == "." || name == string(filepath.Separator) {
		name = fmt.Sprintf("attachment-%d", att.ID)
	}
	path := filepath.Join(dir, name)
	if err := l.client.download(ctx, fmt.Sprintf("%s/%d/attachments/%d", l.url, objectID, att.ID), path); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

// AddAttachment uploads the file at path to a row.
func (l *FeatureLayer) AddAttachment(ctx context.Context, objectID int64, path string) error {
	var resp struct {
		Result editResult `json:"addAttachmentResult"`
	}
	if err := l.client.upload(ctx, fmt.Sprintf("%s/%d/addAttachment", l.url, objectID), "attachment", path, nil, &resp); err != nil {
		return fmt.Errorf("add attachment to %d: %w", objectID, err)
	}
	return checkResults("add attachment", []editResult{resp.Result})
}

// DeleteAttachment removes one attachment from a row.
func (l *FeatureLayer) DeleteAttachment(ctx context.Context, objectID, attachmentID int64) error {
	var resp struct {
		Results []editResult `json:"deleteAttachmentResults"`
	}
	params := url.Values{"attachmentIds": {strconv.FormatInt(attachmentID, 10)}}
	if err := l.client.post(ctx, fmt.Sprintf("%s/%d/deleteAttachments", l.url, objectID), params, &resp); err != nil {
		return fmt.Errorf("delete attachment %d of %d: %w", attachmentID, objectID, err)
	}
	return checkResults("delete attachment", resp.Results)
}

func encodeAttributes(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = encodeValue(domain.Normalize(v))
	}
	return out
}

// encodeValue converts times to the epoch milliseconds date fields expect.
func encodeValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UnixMilli()
	}
	return v
}
