// Market generation using layered simplex noise.
// Zone desirability is sampled from a smooth noise field so that neighbouring
// zones have related price levels; the property stock is drawn from a seeded
// generator on top of it.
package world

import (
	"fmt"
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenConfig holds market generation parameters.
type GenConfig struct {
	Seed       int64
	Grid       int // zones per side
	Properties int
	// MinPricePerSqm and MaxPricePerSqm bound zone base prices.
	MinPricePerSqm int64
	MaxPricePerSqm int64
}

// DefaultGenConfig returns a reasonable starting configuration.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Seed:           42,
		Grid:           3,
		Properties:     1400,
		MinPricePerSqm: 25_000,
		MaxPricePerSqm: 70_000,
	}
}

var zoneNames = []string{
	"Harbour", "Old Town", "Riverside", "Northgate", "Parkview", "Millbrook",
	"Eastfield", "Hillcrest", "Westbury", "Southend", "Lakeside", "Ashford",
	"Kingsway", "Meadowbank", "Stonebridge", "Fairhaven",
}

// GenerateZones creates Grid×Grid zones with noise-driven desirability.
func GenerateZones(cfg GenConfig) *Map {
	noise := opensimplex.NewNormalized(cfg.Seed)
	grid := cfg.Grid
	if grid <= 0 {
		grid = 1
	}

	zones := make([]*Zone, 0, grid*grid)
	for row := 0; row < grid; row++ {
		for col := 0; col < grid; col++ {
			id := ZoneID(len(zones) + 1)
			x, y := float64(col), float64(row)

			d := octaveNoise(noise, x, y, 3, 0.35, 0.5)

			// Central zones carry a premium.
			c := float64(grid-1) / 2
			dist := 0.0
			if c > 0 {
				dist = math.Hypot(x-c, y-c) / (c * math.Sqrt2)
			}
			d = 0.7*d + 0.3*(1-dist)
			d = math.Max(0, math.Min(1, d))

			price := cfg.MinPricePerSqm + int64(math.Round(d*float64(cfg.MaxPricePerSqm-cfg.MinPricePerSqm)))

			zones = append(zones, &Zone{
				ID:              id,
				Name:            zoneName(int(id)),
				Row:             row,
				Col:             col,
				Desirability:    d,
				BasePricePerSqm: price,
			})
		}
	}
	return NewMap(zones)
}

func zoneName(id int) string {
	if id <= len(zoneNames) {
		return zoneNames[id-1]
	}
	return fmt.Sprintf("%s %d", zoneNames[(id-1)%len(zoneNames)], (id-1)/len(zoneNames)+1)
}

// GenerateProperties creates the unowned property stock, spread across zones
// with more desirable zones slightly denser.
func GenerateProperties(m *Map, cfg GenConfig) []*Property {
	rng := rand.New(rand.NewSource(cfg.Seed + 100))
	props := make([]*Property, 0, cfg.Properties)

	weights := make([]float64, len(m.Zones))
	total := 0.0
	for i, z := range m.Zones {
		weights[i] = 0.5 + z.Desirability
		total += weights[i]
	}

	for i := 0; i < cfg.Properties; i++ {
		zone := pickWeighted(rng, weights, total)

		quality := QualityStandard
		switch r := rng.Float64(); {
		case r < 0.3:
			quality = QualityBasic
		case r > 0.85:
			quality = QualityPremium
		}

		area := 45 + rng.NormFloat64()*20 + float64(quality)*15
		if area < 28 {
			area = 28
		}

		props = append(props, &Property{
			ID:             PropertyID(i + 1),
			Zone:           m.Zones[zone].ID,
			Quality:        quality,
			Area:           math.Round(area),
			SchoolDistrict: rng.Float64() < 0.25+0.3*m.Zones[zone].Desirability,
			Status:         StatusOffMarket,
		})
	}
	return props
}

func pickWeighted(rng *rand.Rand, weights []float64, total float64) int {
	r := rng.Float64() * total
	for i, w := range weights {
		if r < w {
			return i
		}
		r -= w
	}
	return len(weights) - 1
}

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
