package atlas

import (
	"golang.org/x/text/language"

	"github.com/talgya/earth-dominion/internal/i18n"
)

// Zone classifies a region's economic weight.
type Zone string

const (
	ZoneCore       Zone = "core"
	ZoneExtraction Zone = "extraction"
	ZoneStandard   Zone = "standard"
)

// Density classifies a region's population pressure.
type Density string

const (
	DensityOver     Density = "over"
	DensitySparse   Density = "sparse"
	DensityModerate Density = "moderate"
)

// Classify derives the zone and density of a region from its estimates.
// Missing estimates count as zero.
func Classify(r Region) (Zone, Density) {
	zone := ZoneStandard
	switch {
	case r.GDP > 2_000_000:
		zone = ZoneCore
	case r.GDP < 50_000:
		zone = ZoneExtraction
	}
	density := DensityModerate
	switch {
	case r.Population > 100_000_000:
		density = DensityOver
	case r.Population < 5_000_000:
		density = DensitySparse
	}
	return zone, density
}

// Analysis renders the localized strategic briefing for a region.
func Analysis(b *i18n.Bundle, tag language.Tag, r Region) string {
	zone, density := Classify(r)
	p := b.Printer(tag)
	return p.Sprintf("analysis.report",
		p.Sprintf("analysis.zone."+string(zone)),
		p.Sprintf("analysis.density."+string(density)),
	)
}
