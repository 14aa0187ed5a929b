package engine

import (
	"github.com/talgya/mini-market/internal/agents"
	"github.com/talgya/mini-market/internal/market"
	"github.com/talgya/mini-market/internal/settlement"
	"github.com/talgya/mini-market/internal/world"
)

// RoleEvent records one role transition.
type RoleEvent struct {
	Month   int            `json:"month" db:"month"`
	AgentID agents.AgentID `json:"agent_id" db:"agent_id"`
	From    string         `json:"from" db:"from_role"`
	To      string         `json:"to" db:"to_role"`
	Reason  string         `json:"reason" db:"reason"`
}

// ZoneStats are one zone's market figures for one month. AvgPrice carries
// the previous value forward in months without sales.
type ZoneStats struct {
	Month             int          `json:"month" db:"month"`
	Zone              world.ZoneID `json:"zone" db:"zone_id"`
	Listings          int          `json:"listings" db:"listings"`
	Buyers            int          `json:"buyers" db:"buyers"`
	Sales             int          `json:"sales" db:"sales"`
	AvgPrice          int64        `json:"avg_price" db:"avg_price"`
	SupplyDemandRatio float64      `json:"supply_demand_ratio" db:"supply_demand_ratio"`
}

func indexStats(stats []ZoneStats) map[world.ZoneID]ZoneStats {
	out := make(map[world.ZoneID]ZoneStats, len(stats))
	for _, st := range stats {
		out[st.Zone] = st
	}
	return out
}

// zoneStats builds this month's per-zone figures from the matching-time
// supply and demand and the settled transactions.
func (s *Simulation) zoneStats(month int, supply, demand map[world.ZoneID]int, txs []settlement.Transaction) []ZoneStats {
	sales := make(map[world.ZoneID]int)
	volume := make(map[world.ZoneID]int64)
	for _, tx := range txs {
		z := s.Property(tx.PropertyID).Zone
		sales[z]++
		volume[z] += tx.Price
	}

	out := make([]ZoneStats, 0, len(s.Map.Zones))
	for _, z := range s.Map.IDs() {
		st := ZoneStats{
			Month:             month,
			Zone:              z,
			Listings:          supply[z],
			Buyers:            demand[z],
			Sales:             sales[z],
			SupplyDemandRatio: market.ZoneCondition(supply[z], demand[z]),
		}
		if st.Sales > 0 {
			st.AvgPrice = volume[z] / int64(st.Sales)
		} else {
			st.AvgPrice = s.lastStats[z].AvgPrice
		}
		out = append(out, st)
	}
	return out
}
