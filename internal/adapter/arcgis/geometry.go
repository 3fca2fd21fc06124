package arcgis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const wgs84 = 4326

// Geometry types.
const (
	GeometryPoint    = "esriGeometryPoint"
	GeometryPolyline = "esriGeometryPolyline"
	GeometryPolygon  = "esriGeometryPolygon"
)

// Point is a WGS84 point geometry.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Relation pairs the index of a geometry in the first list with the index of
// the geometry it relates to in the second.
type Relation struct {
	Geometry1Index int `json:"geometry1Index"`
	Geometry2Index int `json:"geometry2Index"`
}

// GeometryService calls the operations of a GeometryServer. Every geometry
// is in WGS84.
type GeometryService struct {
	client *Client
	url    string
}

// NewGeometryService binds a .../GeometryServer URL.
func NewGeometryService(client *Client, serviceURL string) *GeometryService {
	return &GeometryService{client: client, url: strings.TrimRight(serviceURL, "/")}
}

type geometryList struct {
	GeometryType string            `json:"geometryType"`
	Geometries   []json.RawMessage `json:"geometries"`
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// LabelPoints returns a point guaranteed to fall inside each polygon.
func (g *GeometryService) LabelPoints(ctx context.Context, polygons []json.RawMessage) ([]Point, error) {
	if len(polygons) == 0 {
		return nil, nil
	}
	geoms, err := encodeJSON(polygons)
	if err != nil {
		return nil, err
	}
	var resp struct {
		LabelPoints []Point `json:"labelPoints"`
	}
	params := url.Values{"polygons": {geoms}, "sr": {strconv.Itoa(wgs84)}}
	if err := g.client.post(ctx, g.url+"/labelPoints", params, &resp); err != nil {
		return nil, fmt.Errorf("label points: %w", err)
	}
	if len(resp.LabelPoints) != len(polygons) {
		return nil, fmt.Errorf("label points: got %d for %d polygons", len(resp.LabelPoints), len(polygons))
	}
	return resp.LabelPoints, nil
}

// Within returns which points fall within which polygons.
func (g *GeometryService) Within(ctx context.Context, points []Point, polygons []json.RawMessage) ([]Relation, error) {
	if len(points) == 0 || len(polygons) == 0 {
		return nil, nil
	}
	pts := make([]json.RawMessage, len(points))
	for i, p := range points {
		b, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		pts[i] = b
	}
	g1, err := encodeJSON(geometryList{GeometryType: GeometryPoint, Geometries: pts})
	if err != nil {
		return nil, err
	}
	g2, err := encodeJSON(geometryList{GeometryType: GeometryPolygon, Geometries: polygons})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Relations []Relation `json:"relations"`
	}
	params := url.Values{
		"geometries1": {g1},
		"geometries2": {g2},
		"sr":          {strconv.Itoa(wgs84)},
		"relation":    {"esriGeometryRelationWithin"},
	}
	if err := g.client.post(ctx, g.url+"/relation", params, &resp); err != nil {
		return nil, fmt.Errorf("relation: %w", err)
	}
	return resp.Relations, nil
}

// Union dissolves polygons into a single polygon.
func (g *GeometryService) Union(ctx context.Context, polygons []json.RawMessage) (json.RawMessage, error) {
	geoms, err := encodeJSON(geometryList{GeometryType: GeometryPolygon, Geometries: polygons})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Geometry json.RawMessage `json:"geometry"`
	}
	params := url.Values{"geometries": {geoms}, "sr": {strconv.Itoa(wgs84)}}
	if err := g.client.post(ctx, g.url+"/union", params, &resp); err != nil {
		return nil, fmt.Errorf("union: %w", err)
	}
	return resp.Geometry, nil
}

// Intersect clips each polygon to the given polygon.
func (g *GeometryService) Intersect(ctx context.Context, polygons []json.RawMessage, with json.RawMessage) ([]json.RawMessage, error) {
	geoms, err := encodeJSON(geometryList{GeometryType: GeometryPolygon, Geometries: polygons})
	if err != nil {
		return nil, err
	}
	clip, err := encodeJSON(map[string]any{"geometryType": GeometryPolygon, "geometry": with})
	if err != nil {
		return nil, err
	}
	var resp geometryList
	params := url.Values{"geometries": {geoms}, "geometry": {clip}, "sr": {strconv.Itoa(wgs84)}}
	if err := g.client.post(ctx, g.url+"/intersect", params, &resp); err != nil {
		return nil, fmt.Errorf("intersect: %w", err)
	}
	if len(resp.Geometries) != len(polygons) {
		return nil, fmt.Errorf("intersect: got %d results for %d polygons", len(resp.Geometries), len(polygons))
	}
	return resp.Geometries, nil
}

// Areas returns the geodesic area of each polygon in square meters.
func (g *GeometryService) Areas(ctx context.Context, polygons []json.RawMessage) ([]float64, error) {
	if len(polygons) == 0 {
		return nil, nil
	}
	geoms, err := encodeJSON(polygons)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Areas []float64 `json:"areas"`
	}
	params := url.Values{
		"polygons":        {geoms},
		"sr":              {strconv.Itoa(wgs84)},
		"areaUnit":        {`{"areaUnit":"esriSquareMeters"}`},
		"calculationType": {"geodesic"},
	}
	if err := g.client.post(ctx, g.url+"/areasAndLengths", params, &resp); err != nil {
		return nil, fmt.Errorf("areas and lengths: %w", err)
	}
	if len(resp.Areas) != len(polygons) {
		return nil, fmt.Errorf("areas and lengths: got %d areas for %d polygons", len(resp.Areas), len(polygons))
	}
	return resp.Areas, nil
}

// representativePoint returns a point for point and polyline geometries. It
// reports false for polygons, which need LabelPoints.
func representativePoint(geometryType string, geom json.RawMessage) (Point, bool, error) {
	switch geometryType {
	case GeometryPoint:
		var p Point
		if err := json.Unmarshal(geom, &p); err != nil {
			return Point{}, false, fmt.Errorf("decode point: %w", err)
		}
		return p, true, nil
	case GeometryPolyline:
		var line struct {
			Paths [][][]float64 `json:"paths"`
		}
		if err := json.Unmarshal(geom, &line); err != nil {
			return Point{}, false, fmt.Errorf("decode polyline: %w", err)
		}
		if len(line.Paths) == 0 || len(line.Paths[0]) == 0 {
			return Point{}, false, errors.New("empty polyline")
		}
		path := line.Paths[0]
		mid := path[len(path)/2]
		if len(mid) < 2 {
			return Point{}, false, errors.New("malformed polyline vertex")
		}
		return Point{X: mid[0], Y: mid[1]}, true, nil
	default:
		return Point{}, false, nil
	}
}

func emptyGeometry(geom json.RawMessage) bool {
	s := strings.TrimSpace(string(geom))
	return s == "" || s == "null" || s == "{}"
}
