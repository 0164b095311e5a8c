package atlas

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	BBox       []float64       `json:"bbox"`
	Properties featureProps    `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

type featureProps struct {
	Admin string    `json:"ADMIN"`
	ISOA2 string    `json:"ISO_A2"`
	ISOA3 string    `json:"ISO_A3"`
	GDP   float64   `json:"GDP_MD_EST"`
	Pop   float64   `json:"POP_EST"`
	BBox  []float64 `json:"bbox"`
}

type geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// LoadFile reads a GeoJSON atlas from path.
func LoadFile(path string) (*Atlas, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open atlas: %w", err)
	}
	defer f.Close()
	return LoadGeoJSON(f)
}

// LoadGeoJSON reads a Natural Earth admin-0 FeatureCollection. Features
// without a usable ISO_A2 code fall back to ISO_A3; features with neither
// are skipped. The bounding box comes from the feature, the properties, or
// the geometry, in that order.
func LoadGeoJSON(r io.Reader) (*Atlas, error) {
	var fc featureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("decode geojson: type %q, want FeatureCollection", fc.Type)
	}

	seen := make(map[string]bool, len(fc.Features))
	regions := make([]Region, 0, len(fc.Features))
	skipped := 0
	for _, f := range fc.Features {
		code := usableCode(f.Properties.ISOA2)
		if code == "" {
			code = usableCode(f.Properties.ISOA3)
		}
		if code == "" || seen[code] {
			skipped++
			continue
		}
		seen[code] = true

		reg := Region{
			Code:       code,
			Name:       strings.TrimSpace(f.Properties.Admin),
			GDP:        f.Properties.GDP,
			Population: f.Properties.Pop,
		}
		switch {
		case len(f.BBox) == 4:
			reg.BBox = boxFrom(f.BBox)
		case len(f.Properties.BBox) == 4:
			reg.BBox = boxFrom(f.Properties.BBox)
		default:
			reg.BBox = geometryBox(f.Geometry)
		}
		regions = append(regions, reg)
	}
	if skipped > 0 {
		slog.Debug("atlas features skipped", "count", skipped)
	}
	return New(regions)
}

func usableCode(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || s == "-99" {
		return ""
	}
	return s
}

func boxFrom(v []float64) *BBox {
	return &BBox{MinLng: v[0], MinLat: v[1], MaxLng: v[2], MaxLat: v[3]}
}

// geometryBox computes a box over every position of a Polygon or
// MultiPolygon. Other geometry types yield nil.
func geometryBox(raw json.RawMessage) *BBox {
	if len(raw) == 0 {
		return nil
	}
	var g geometry
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil
	}
	var rings [][][2]float64
	switch g.Type {
	case "Polygon":
		if err := json.Unmarshal(g.Coordinates, &rings); err != nil {
			return nil
		}
	case "MultiPolygon":
		var polys [][][][2]float64
		if err := json.Unmarshal(g.Coordinates, &polys); err != nil {
			return nil
		}
		for _, p := range polys {
			rings = append(rings, p...)
		}
	default:
		return nil
	}

	var box *BBox
	for _, ring := range rings {
		for _, pt := range ring {
			lng, lat := pt[0], pt[1]
			if box == nil {
				box = &BBox{MinLng: lng, MinLat: lat, MaxLng: lng, MaxLat: lat}
				continue
			}
			box.MinLng = min(box.MinLng, lng)
			box.MinLat = min(box.MinLat, lat)
			box.MaxLng = max(box.MaxLng, lng)
			box.MaxLat = max(box.MaxLat, lat)
		}
	}
	return box
}
