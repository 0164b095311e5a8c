// Procedural atlas generation using layered simplex noise.
// Used when no GeoJSON file is configured: the globe is cut into a lat/lng
// grid of sectors whose GDP and population come from independent noise fields.
package atlas

import (
	"fmt"
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenConfig holds procedural atlas parameters.
type GenConfig struct {
	Columns  int     // sectors along longitude
	Rows     int     // sectors along latitude
	Seed     int64   // noise seed (0 = random)
	MaxLat   float64 // polar cutoff in degrees
	SeaLevel float64 // GDP noise below this leaves the cell as ocean (0.0–1.0)
}

// DefaultGenConfig returns a globe of roughly 150 sectors.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Columns:  18,
		Rows:     10,
		Seed:     0,
		MaxLat:   75,
		SeaLevel: 0.3,
	}
}

// SmallTestConfig returns a tiny atlas for tests.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Columns:  6,
		Rows:     4,
		Seed:     42,
		MaxLat:   60,
		SeaLevel: 0,
	}
}

// Generate builds a procedural atlas.
func Generate(cfg GenConfig) (*Atlas, error) {
	if cfg.Columns <= 0 || cfg.Rows <= 0 {
		return nil, fmt.Errorf("generate atlas: grid %dx%d must be positive", cfg.Columns, cfg.Rows)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}

	gdpNoise := opensimplex.NewNormalized(seed)
	popNoise := opensimplex.NewNormalized(seed + 1)

	lngStep := 360.0 / float64(cfg.Columns)
	latStep := 2 * cfg.MaxLat / float64(cfg.Rows)

	var regions []Region
	for row := 0; row < cfg.Rows; row++ {
		for col := 0; col < cfg.Columns; col++ {
			box := BBox{
				MinLng: -180 + float64(col)*lngStep,
				MaxLng: -180 + float64(col+1)*lngStep,
				MinLat: -cfg.MaxLat + float64(row)*latStep,
				MaxLat: -cfg.MaxLat + float64(row+1)*latStep,
			}
			lat, lng := box.Center()
			x, y := lng/lngStep, lat/latStep

			wealth := octaveNoise(gdpNoise, x, y, 4, 0.35, 0.5)
			if wealth < cfg.SeaLevel {
				continue
			}
			density := octaveNoise(popNoise, x, y, 3, 0.3, 0.5)

			// Equatorial and polar bands are poorer and emptier.
			band := 1.0 - math.Abs(lat)/(cfg.MaxLat*1.5)

			regions = append(regions, Region{
				Code:       fmt.Sprintf("S%02d%02d", row, col),
				Name:       sectorName(row, col, lat, lng),
				GDP:        math.Round(math.Pow(10, 3.5+wealth*3.2) * band),
				Population: math.Round(math.Pow(10, 5.5+density*3.0) * band),
				BBox:       &box,
			})
		}
	}
	return New(regions)
}

func sectorName(row, col int, lat, lng float64) string {
	ns, ew := "N", "E"
	if lat < 0 {
		ns = "S"
	}
	if lng < 0 {
		ew = "W"
	}
	return fmt.Sprintf("Sector %c%d %02.0f%s %03.0f%s", 'A'+rune(row), col+1, math.Abs(lat), ns, math.Abs(lng), ew)
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
