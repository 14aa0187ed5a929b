package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateZonesDeterministic(t *testing.T) {
	cfg := DefaultGenConfig()
	a := GenerateZones(cfg)
	b := GenerateZones(cfg)

	require.Len(t, a.Zones, 9)
	for i := range a.Zones {
		assert.Equal(t, *a.Zones[i], *b.Zones[i])
		assert.Equal(t, ZoneID(i+1), a.Zones[i].ID)
		assert.GreaterOrEqual(t, a.Zones[i].BasePricePerSqm, cfg.MinPricePerSqm)
		assert.LessOrEqual(t, a.Zones[i].BasePricePerSqm, cfg.MaxPricePerSqm)
	}
}

func TestMapGet(t *testing.T) {
	m := GenerateZones(GenConfig{Seed: 1, Grid: 2, MinPricePerSqm: 10, MaxPricePerSqm: 20})
	assert.Nil(t, m.Get(0))
	assert.Nil(t, m.Get(5))
	assert.Equal(t, ZoneID(4), m.Get(4).ID)
	assert.True(t, m.Valid(1))
	assert.False(t, m.Valid(9))
	assert.Equal(t, []ZoneID{1, 2, 3, 4}, m.IDs())
}

func TestGenerateProperties(t *testing.T) {
	cfg := DefaultGenConfig()
	cfg.Properties = 200
	m := GenerateZones(cfg)
	props := GenerateProperties(m, cfg)

	require.Len(t, props, 200)
	for i, p := range props {
		assert.Equal(t, PropertyID(i+1), p.ID)
		assert.True(t, m.Valid(p.Zone))
		assert.GreaterOrEqual(t, p.Area, 28.0)
		assert.Equal(t, StatusOffMarket, p.Status)
		assert.Zero(t, p.OwnerID)
	}
}

func TestValuation(t *testing.T) {
	z := &Zone{ID: 1, BasePricePerSqm: 50_000}
	p := &Property{Zone: 1, Quality: QualityStandard, Area: 100}
	assert.Equal(t, int64(5_000_000), p.Valuation(z))

	p.SchoolDistrict = true
	assert.Equal(t, int64(5_750_000), p.Valuation(z))

	p.Quality = QualityPremium
	p.SchoolDistrict = false
	assert.Equal(t, int64(6_500_000), p.Valuation(z))
	assert.Zero(t, p.Valuation(nil))
}

func TestListingLifecycle(t *testing.T) {
	p := &Property{ID: 1, OwnerID: 9, Status: StatusOffMarket}

	p.List(5_000_000, 4_500_000, 3)
	assert.True(t, p.ForSale())
	assert.Equal(t, 2, p.MonthsListed(5))

	p.Reprice(4_000_000)
	assert.Equal(t, int64(4_500_000), p.ListedPrice, "reprice never goes below the floor")

	p.Transfer(12)
	assert.False(t, p.ForSale())
	assert.Equal(t, uint64(12), p.OwnerID)
	assert.Zero(t, p.ListedPrice)
	assert.Zero(t, p.MonthsListed(5))
}

func TestListClampsFloor(t *testing.T) {
	p := &Property{}
	p.List(100, 150, 0)
	assert.Equal(t, int64(100), p.MinPrice)
}
