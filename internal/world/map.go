package world

import "fmt"

// ZoneID identifies a zone. IDs are dense and start at 1.
type ZoneID uint16

// Zone is a coarse market segment. Buyers search within one zone and local
// supply/demand is measured per zone.
type Zone struct {
	ID              ZoneID  `json:"id" db:"id"`
	Name            string  `json:"name" db:"name"`
	Row             int     `json:"row" db:"row"`
	Col             int     `json:"col" db:"col"`
	Desirability    float64 `json:"desirability" db:"desirability"` // 0.0–1.0
	BasePricePerSqm int64   `json:"base_price_per_sqm" db:"base_price_per_sqm"`
}

// Map holds the zone table.
type Map struct {
	Zones []*Zone `json:"zones"` // index = ID-1
}

// NewMap wraps zones whose IDs are 1..len(zones) in order.
func NewMap(zones []*Zone) *Map {
	return &Map{Zones: zones}
}

// Get returns the zone with the given ID, or nil if unknown.
func (m *Map) Get(id ZoneID) *Zone {
	if id == 0 || int(id) > len(m.Zones) {
		return nil
	}
	return m.Zones[id-1]
}

// Valid reports whether id names a zone on this map.
func (m *Map) Valid(id ZoneID) bool {
	return m.Get(id) != nil
}

// IDs returns all zone IDs in ascending order.
func (m *Map) IDs() []ZoneID {
	ids := make([]ZoneID, len(m.Zones))
	for i, z := range m.Zones {
		ids[i] = z.ID
	}
	return ids
}

// String returns a summary of the map.
func (m *Map) String() string {
	return fmt.Sprintf("Map(zones=%d)", len(m.Zones))
}
