// Agent spawning: creates the initial population with incomes, savings,
// existing debt, life pressure, home zones, and the initial ownership of the
// property stock.
package agents

import (
	"math"
	"math/rand"

	"github.com/talgya/mini-market/internal/entropy"
	"github.com/talgya/mini-market/internal/world"
)

// Spawner creates agents for the simulation.
type Spawner struct {
	rng    *rand.Rand
	nextID AgentID
}

// NewSpawner creates an agent spawner with the given seed.
func NewSpawner(seed int64) *Spawner {
	return &Spawner{
		rng:    entropy.Stream(seed, entropy.DomainSpawn),
		nextID: 1,
	}
}

// SpawnPopulation creates count agents living across the zones of m.
func (s *Spawner) SpawnPopulation(count int, m *world.Map) []*Agent {
	agents := make([]*Agent, 0, count)
	for i := 0; i < count; i++ {
		agents = append(agents, s.spawnOne(m))
	}
	return agents
}

func (s *Spawner) spawnOne(m *world.Map) *Agent {
	id := s.nextID
	s.nextID++

	// Log-normal monthly income, median ~35k.
	income := int64(math.Round(35_000 * math.Exp(s.rng.NormFloat64()*0.45)))

	// Savings: a few months to several years of income.
	months := 2 + s.rng.ExpFloat64()*18
	cash := int64(math.Round(float64(income) * months))

	// Existing debt service (car, student loans) for about a third of households.
	var debt int64
	if s.rng.Float64() < 0.35 {
		debt = int64(math.Round(float64(income) * (0.03 + s.rng.Float64()*0.12)))
	}

	pressure := PressurePatient
	switch r := s.rng.Float64(); {
	case r < 0.2:
		pressure = PressureUrgent
	case r < 0.45:
		pressure = PressureOpportunistic
	}

	home := m.Zones[s.rng.Intn(len(m.Zones))].ID

	return &Agent{
		ID:            id,
		Name:          s.generateName(),
		Cash:          cash,
		MonthlyIncome: income,
		MonthlyDebt:   debt,
		Role:          RoleObserver,
		LifePressure:  pressure,
		HomeZone:      home,
	}
}

func (s *Spawner) generateName() string {
	first := firstNames[s.rng.Intn(len(firstNames))]
	last := lastNames[s.rng.Intn(len(lastNames))]
	return first + " " + last
}

// AssignOwnership hands out the property stock. Higher-income agents are more
// likely to own, and a small share own several properties. Owners live in the
// zone of their first property. Properties left over stay unowned.
func (s *Spawner) AssignOwnership(agents []*Agent, props []*world.Property) {
	if len(agents) == 0 {
		return
	}

	order := s.rng.Perm(len(agents))
	// Bias toward higher income: sort the permutation by a noisy income score.
	scores := make([]float64, len(agents))
	for i, a := range agents {
		scores[i] = math.Log(float64(a.MonthlyIncome)+1) + s.rng.NormFloat64()*0.4
	}
	sortByScore(order, scores)

	next := 0
	for _, idx := range order {
		if next >= len(props) {
			break
		}
		a := agents[idx]
		n := 1
		if s.rng.Float64() < 0.08 {
			n = 2 + s.rng.Intn(2)
		}
		for k := 0; k < n && next < len(props); k++ {
			p := props[next]
			next++
			p.OwnerID = uint64(a.ID)
			a.AddProperty(p.ID)
			if k == 0 {
				a.HomeZone = p.Zone
			}
		}
	}
}

// sortByScore orders idx by descending score (insertion sort keeps the
// result stable for equal scores).
func sortByScore(idx []int, scores []float64) {
	for i := 1; i < len(idx); i++ {
		for j := i; j > 0 && scores[idx[j]] > scores[idx[j-1]]; j-- {
			idx[j], idx[j-1] = idx[j-1], idx[j]
		}
	}
}

var firstNames = []string{
	"Ava", "Ben", "Chloe", "Daniel", "Elena", "Felix", "Grace", "Henry",
	"Isla", "Jonas", "Kira", "Leo", "Maya", "Noah", "Olivia", "Paul",
	"Quinn", "Rosa", "Samir", "Tara", "Umar", "Vera", "Will", "Yara",
	"Zoe", "Astrid", "Bram", "Cora", "Dorian", "Freya", "Gunnar", "Hilde",
}

var lastNames = []string{
	"Ashford", "Baker", "Caldwell", "Dunmore", "Ellis", "Farrow", "Greenvale",
	"Harper", "Ingram", "Jensen", "Keller", "Larsen", "Mercer", "Nolan",
	"Okafor", "Price", "Quist", "Reyes", "Silva", "Thatcher", "Underwood",
	"Vance", "Ward", "Xu", "Young", "Zimmer", "Holloway", "Millward",
}
