package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/mini-market/internal/world"
)

func TestRoleNames(t *testing.T) {
	for _, r := range []Role{RoleObserver, RoleBuyer, RoleSeller, RoleBuyerSeller} {
		got, ok := ParseRole(r.String())
		require.True(t, ok)
		assert.Equal(t, r, got)
	}
	_, ok := ParseRole("LANDLORD")
	assert.False(t, ok)

	assert.True(t, RoleBuyerSeller.Buys())
	assert.True(t, RoleBuyerSeller.Sells())
	assert.False(t, RoleSeller.Buys())
	assert.False(t, RoleObserver.Sells())
}

func TestPropertySet(t *testing.T) {
	a := &Agent{}
	a.AddProperty(5)
	a.AddProperty(2)
	a.AddProperty(9)
	a.AddProperty(5)

	assert.Equal(t, []world.PropertyID{2, 5, 9}, a.Properties)
	assert.True(t, a.Owns(5))
	assert.False(t, a.Owns(4))

	assert.True(t, a.RemoveProperty(5))
	assert.False(t, a.RemoveProperty(5))
	assert.Equal(t, []world.PropertyID{2, 9}, a.Properties)
	assert.Equal(t, 2, a.PropertyCount())
}

func TestSetRole(t *testing.T) {
	a := &Agent{Role: RoleBuyer, RoleDuration: 4, Preference: &BuyerPreference{MaxPrice: 1}}

	a.SetRole(RoleBuyer)
	assert.Equal(t, 4, a.RoleDuration, "same role keeps the clock")

	a.SetRole(RoleBuyerSeller)
	assert.Zero(t, a.RoleDuration)
	assert.NotNil(t, a.Preference, "still buying")

	a.SetRole(RoleObserver)
	assert.Nil(t, a.Preference)
}

func TestExitDelay(t *testing.T) {
	assert.Equal(t, 3, PressureUrgent.ExitDelay())
	assert.Equal(t, 1, PressurePatient.ExitDelay())
	assert.Equal(t, 0, PressureOpportunistic.ExitDelay())
}

func TestSpawnerDeterministic(t *testing.T) {
	m := world.GenerateZones(world.DefaultGenConfig())

	a := NewSpawner(7).SpawnPopulation(50, m)
	b := NewSpawner(7).SpawnPopulation(50, m)
	require.Len(t, a, 50)
	for i := range a {
		assert.Equal(t, *a[i], *b[i])
		assert.Equal(t, AgentID(i+1), a[i].ID)
		assert.Greater(t, a[i].MonthlyIncome, int64(0))
		assert.True(t, m.Valid(a[i].HomeZone))
		assert.Equal(t, RoleObserver, a[i].Role)
	}
}

func TestAssignOwnership(t *testing.T) {
	cfg := world.DefaultGenConfig()
	cfg.Properties = 60
	m := world.GenerateZones(cfg)
	props := world.GenerateProperties(m, cfg)

	sp := NewSpawner(3)
	pop := sp.SpawnPopulation(100, m)
	sp.AssignOwnership(pop, props)

	owners := map[world.PropertyID]AgentID{}
	for _, a := range pop {
		for _, pid := range a.Properties {
			_, dup := owners[pid]
			require.False(t, dup, "property %d has two owners", pid)
			owners[pid] = a.ID
		}
	}
	assert.Len(t, owners, 60)
	for _, p := range props {
		assert.Equal(t, uint64(owners[p.ID]), p.OwnerID)
	}
}
