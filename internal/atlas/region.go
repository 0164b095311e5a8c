// Package atlas is the catalog of claimable regions: countries loaded from a
// Natural Earth GeoJSON file, or sectors generated procedurally.
package atlas

import (
	"fmt"
	"math"
	"sort"
)

// MinPlantArea is the bounding-box area (square degrees) a region must exceed
// to host a nuclear plant.
const MinPlantArea = 25.0

// BBox is a lng/lat bounding box.
type BBox struct {
	MinLng float64 `json:"minLng"`
	MinLat float64 `json:"minLat"`
	MaxLng float64 `json:"maxLng"`
	MaxLat float64 `json:"maxLat"`
}

// Area is |maxLng-minLng| * |maxLat-minLat|.
func (b BBox) Area() float64 {
	return math.Abs(b.MaxLng-b.MinLng) * math.Abs(b.MaxLat-b.MinLat)
}

// Center returns the box midpoint as (lat, lng).
func (b BBox) Center() (lat, lng float64) {
	return (b.MinLat + b.MaxLat) / 2, (b.MinLng + b.MaxLng) / 2
}

// Region is an immutable claimable territory.
type Region struct {
	Code       string  `json:"code"`
	Name       string  `json:"name"`
	GDP        float64 `json:"gdpEstimate,omitempty"`
	Population float64 `json:"populationEstimate,omitempty"`
	BBox       *BBox   `json:"bbox,omitempty"`
}

// Area returns the bounding-box area and whether a box is known.
func (r Region) Area() (float64, bool) {
	if r.BBox == nil {
		return 0, false
	}
	return r.BBox.Area(), true
}

// LargeEnoughForPlant reports whether a nuclear plant fits. Regions without
// a bounding box always qualify.
func (r Region) LargeEnoughForPlant() bool {
	area, ok := r.Area()
	if !ok {
		return true
	}
	return area > MinPlantArea
}

// Atlas is an immutable, code-indexed set of regions.
type Atlas struct {
	regions map[string]Region
	codes   []string
}

// New builds an atlas, rejecting blank or duplicate codes.
func New(regions []Region) (*Atlas, error) {
	a := &Atlas{regions: make(map[string]Region, len(regions))}
	for _, r := range regions {
		if r.Code == "" {
			return nil, fmt.Errorf("region %q has no code", r.Name)
		}
		if _, dup := a.regions[r.Code]; dup {
			return nil, fmt.Errorf("duplicate region code %q", r.Code)
		}
		if r.Name == "" {
			r.Name = r.Code
		}
		a.regions[r.Code] = r
		a.codes = append(a.codes, r.Code)
	}
	sort.Strings(a.codes)
	return a, nil
}

// Region looks up a region by code.
func (a *Atlas) Region(code string) (Region, bool) {
	r, ok := a.regions[code]
	return r, ok
}

// Regions returns all regions ordered by code.
func (a *Atlas) Regions() []Region {
	out := make([]Region, 0, len(a.codes))
	for _, c := range a.codes {
		out = append(out, a.regions[c])
	}
	return out
}

// Len returns the number of regions.
func (a *Atlas) Len() int { return len(a.codes) }
