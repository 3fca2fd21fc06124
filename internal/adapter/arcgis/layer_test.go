package arcgis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pnhp/nha-sync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const layerPath = "/server/rest/services/NHA/FeatureServer/0"

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(srv *httptest.Server, username string) *Client {
	return NewClient(srv.URL+"/portal", username, "secret", 5*time.Second, clockwork.NewFakeClockAt(testNow), discardLogger())
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

// serveLayerInfo answers the layer metadata request with the object id field.
func serveLayerInfo(t *testing.T, mux *http.ServeMux, path, oidField string) {
	t.Helper()
	mux.HandleFunc("GET "+path, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{"objectIdField": oidField})
	})
}

func TestFeatureLayer_QueryPages(t *testing.T) {
	var offsets []string
	mux := http.NewServeMux()
	serveLayerInfo(t, mux, layerPath, "OBJECTID")
	mux.HandleFunc("POST "+layerPath+"/query", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "status = 'rev'", r.PostForm.Get("where"))
		assert.Equal(t, "json", r.PostForm.Get("f"))
		assert.Equal(t, "false", r.PostForm.Get("returnGeometry"))
		assert.Equal(t, "OBJECTID ASC", r.PostForm.Get("orderByFields"))
		offsets = append(offsets, r.PostForm.Get("resultOffset"))

		if r.PostForm.Get("resultOffset") == "0" {
			writeJSON(t, w, map[string]any{
				"objectIdFieldName":     "OBJECTID",
				"exceededTransferLimit": true,
				"features": []any{
					map[string]any{"attributes": map[string]any{"OBJECTID": 1, "nha_join_id": "NHA-1", "written_date": 1714564800000}},
					map[string]any{"attributes": map[string]any{"OBJECTID": 2, "nha_join_id": "NHA-2", "written_date": nil}},
				},
			})
			return
		}
		writeJSON(t, w, map[string]any{
			"objectIdFieldName": "OBJECTID",
			"features": []any{
				map[string]any{"attributes": map[string]any{"OBJECTID": 3, "nha_join_id": "NHA-3", "score": 1.5}},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	layer := NewFeatureLayer(testClient(srv, ""), srv.URL+layerPath)
	rows, err := layer.Query(context.Background(), domain.Eq("status", "rev"))
	require.NoError(t, err)

	assert.Equal(t, []string{"0", "2"}, offsets)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(1), rows[0].ObjectID)
	assert.Equal(t, "NHA-1", rows[0].Text(domain.FieldJoinID))
	require.NotNil(t, rows[0].Time(domain.FieldWrittenDate))
	assert.True(t, rows[0].Time(domain.FieldWrittenDate).Equal(time.UnixMilli(1714564800000)))
	assert.Nil(t, rows[1].Get(domain.FieldWrittenDate))
	assert.Equal(t, int64(3), rows[2].ObjectID)
	assert.Equal(t, 1.5, rows[2].Get("score"))
}

func TestFeatureLayer_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{"error": map[string]any{
			"code": 400, "message": "Unable to complete operation.", "details": []string{"Invalid where clause"},
		}})
	}))
	defer srv.Close()

	_, err := NewFeatureLayer(testClient(srv, ""), srv.URL+layerPath).Query(context.Background(), domain.All())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.Code)
	assert.Contains(t, err.Error(), "Invalid where clause")
}

func TestFeatureLayer_HTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	_, err := NewFeatureLayer(testClient(srv, ""), srv.URL+layerPath).Query(context.Background(), domain.All())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestClient_TokenRenewedWhenRejected(t *testing.T) {
	var issued atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /portal/sharing/rest/generateToken", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "editor", r.PostForm.Get("username"))
		assert.Equal(t, "secret", r.PostForm.Get("password"))
		n := issued.Add(1)
		writeJSON(t, w, map[string]any{
			"token":   map[int32]string{1: "first", 2: "second"}[n],
			"expires": testNow.Add(time.Hour).UnixMilli(),
		})
	})
	serveLayerInfo(t, mux, layerPath, "OBJECTID")
	mux.HandleFunc("POST "+layerPath+"/query", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("token") != "second" {
			writeJSON(t, w, map[string]any{"error": map[string]any{"code": 498, "message": "Invalid token."}})
			return
		}
		writeJSON(t, w, map[string]any{"features": []any{}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := testClient(srv, "editor")
	layer := NewFeatureLayer(client, srv.URL+layerPath)

	_, err := layer.Query(context.Background(), domain.All())
	require.NoError(t, err)
	assert.Equal(t, int32(2), issued.Load())

	_, err = layer.Query(context.Background(), domain.All())
	require.NoError(t, err)
	assert.Equal(t, int32(2), issued.Load(), "valid token is reused")
}

func TestFeatureLayer_InsertEncodesDates(t *testing.T) {
	var adds []map[string]map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+layerPath+"/applyEdits", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.NoError(t, json.Unmarshal([]byte(r.PostForm.Get("adds")), &adds))
		writeJSON(t, w, map[string]any{"addResults": []any{map[string]any{"objectId": 10, "success": true}}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	written := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	err := NewFeatureLayer(testClient(srv, ""), srv.URL+layerPath).Insert(context.Background(), []map[string]any{
		{"nha_join_id": "NHA-1", "written_date": written, "site_desc": nil},
	})
	require.NoError(t, err)

	require.Len(t, adds, 1)
	attrs := adds[0]["attributes"]
	assert.Equal(t, "NHA-1", attrs["nha_join_id"])
	assert.InDelta(t, float64(written.UnixMilli()), attrs["written_date"], 0)
	assert.Contains(t, attrs, "site_desc")
	assert.Nil(t, attrs["site_desc"])
}

func TestFeatureLayer_InsertReportsFailedRow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{"addResults": []any{map[string]any{
			"objectId": -1, "success": false, "error": map[string]any{"code": 1000, "description": "field too long"},
		}}})
	}))
	defer srv.Close()

	err := NewFeatureLayer(testClient(srv, ""), srv.URL+layerPath).Insert(context.Background(), []map[string]any{{"a": 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field too long")
}

func TestFeatureLayer_UpdateUsesObjectIDField(t *testing.T) {
	var metadataCalls atomic.Int32
	var updates []map[string]map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+layerPath, func(w http.ResponseWriter, _ *http.Request) {
		metadataCalls.Add(1)
		writeJSON(t, w, map[string]any{"objectIdField": "ObjectId"})
	})
	mux.HandleFunc("POST "+layerPath+"/applyEdits", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.NoError(t, json.Unmarshal([]byte(r.PostForm.Get("updates")), &updates))
		writeJSON(t, w, map[string]any{"updateResults": []any{
			map[string]any{"objectId": 7, "success": true},
			map[string]any{"objectId": 8, "success": true},
		}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	layer := NewFeatureLayer(testClient(srv, ""), srv.URL+layerPath)
	batch := []domain.RowUpdate{
		{ObjectID: 7, Fields: domain.Patch{"status": "app"}},
		{ObjectID: 8, Fields: domain.Patch{"status": "app"}},
	}
	require.NoError(t, layer.Update(context.Background(), batch))
	require.NoError(t, layer.Update(context.Background(), batch))

	assert.Equal(t, int32(1), metadataCalls.Load())
	require.Len(t, updates, 2)
	assert.InDelta(t, 7.0, updates[0]["attributes"]["ObjectId"], 0)
	assert.Equal(t, "app", updates[0]["attributes"]["status"])
}

func TestFeatureLayer_CalculateAndDelete(t *testing.T) {
	var calcWhere, calcExpr, deleteWhere string
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+layerPath+"/calculate", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		calcWhere = r.PostForm.Get("where")
		calcExpr = r.PostForm.Get("calcExpression")
		writeJSON(t, w, map[string]any{"success": true, "updatedFeatureCount": 2})
	})
	mux.HandleFunc("POST "+layerPath+"/deleteFeatures", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		deleteWhere = r.PostForm.Get("where")
		writeJSON(t, w, map[string]any{"success": true})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	layer := NewFeatureLayer(testClient(srv, ""), srv.URL+layerPath)
	filter, _ := domain.KeyFilter(domain.FieldJoinID, []string{"NHA-1", "NHA-2"})
	require.NoError(t, layer.Calculate(context.Background(), filter, domain.FieldLoadStatus, domain.MarkerLoaded))
	require.NoError(t, layer.Delete(context.Background(), domain.All()))

	assert.Equal(t, "nha_join_id IN ('NHA-1', 'NHA-2')", calcWhere)
	assert.JSONEq(t, `[{"field":"load_status","value":"loaded"}]`, calcExpr)
	assert.Equal(t, "1 = 1", deleteWhere)
}

func TestFeatureLayer_Attachments(t *testing.T) {
	var uploaded string
	var deletedIDs string
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+layerPath+"/5/attachments", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{"attachmentInfos": []any{
			map[string]any{"id": 31, "name": "meadow.jpg", "contentType": "image/jpeg", "size": 5},
		}})
	})
	mux.HandleFunc("GET "+layerPath+"/5/attachments/31", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("jpeg!"))
	})
	mux.HandleFunc("POST "+layerPath+"/9/addAttachment", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("attachment")
		require.NoError(t, err)
		defer file.Close()
		body, err := io.ReadAll(file)
		require.NoError(t, err)
		uploaded = header.Filename + ":" + string(body)
		assert.Equal(t, "json", r.FormValue("f"))
		writeJSON(t, w, map[string]any{"addAttachmentResult": map[string]any{"objectId": 40, "success": true}})
	})
	mux.HandleFunc("POST "+layerPath+"/9/deleteAttachments", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		deletedIDs = r.PostForm.Get("attachmentIds")
		writeJSON(t, w, map[string]any{"deleteAttachmentResults": []any{map[string]any{"objectId": 12, "success": true}}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	layer := NewFeatureLayer(testClient(srv, ""), srv.URL+layerPath)

	atts, err := layer.ListAttachments(ctx, 5)
	require.NoError(t, err)
	require.Len(t, atts, 1)
	assert.Equal(t, domain.Attachment{ID: 31, Name: "meadow.jpg", ContentType: "image/jpeg", Size: 5}, atts[0])

	dir := t.TempDir()
	path, err := layer.DownloadAttachment(ctx, 5, atts[0], dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "meadow.jpg"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "jpeg!", string(data))

	require.NoError(t, layer.AddAttachment(ctx, 9, path))
	assert.Equal(t, "meadow.jpg:jpeg!", uploaded)

	require.NoError(t, layer.DeleteAttachment(ctx, 9, 12))
	assert.Equal(t, "12", deletedIDs)
}

func TestClient_ResolveForm(t *testing.T) {
	mux := http.NewServeMux()
	var serviceURL string
	mux.HandleFunc("GET /portal/sharing/rest/content/items/abc123", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{"type": "Feature Service", "url": serviceURL})
	})
	mux.HandleFunc("GET /server/rest/services/Hosted/survey123_abc/FeatureServer", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{
			"layers": []any{map[string]any{"id": 0}},
			"tables": []any{map[string]any{"id": 1}, map[string]any{"id": 2}, map[string]any{"id": 3}},
		})
	})
	mux.HandleFunc("GET /portal/sharing/rest/content/items/missing", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	serviceURL = srv.URL + "/server/rest/services/Hosted/survey123_abc/FeatureServer"

	form, err := testClient(srv, "").ResolveForm(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, serviceURL+"/0", form.Surveys.URL())
	assert.Equal(t, serviceURL+"/1", form.SiteRefs.URL())
	assert.Equal(t, serviceURL+"/2", form.ThreatRefs.URL())
	assert.Equal(t, serviceURL+"/3", form.Bullets.URL())

	_, err = testClient(srv, "").ResolveForm(context.Background(), "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
