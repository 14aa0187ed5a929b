package engine

import (
	"errors"
	"fmt"

	"github.com/talgya/mini-market/internal/agents"
	"github.com/talgya/mini-market/internal/world"
)

// CheckInvariants verifies ownership, role-property and listing consistency
// across the arena.
func (s *Simulation) CheckInvariants() error {
	var errs []error
	owner := make(map[world.PropertyID]agents.AgentID)
	for _, a := range s.Agents {
		if a.IsSelling() && a.PropertyCount() == 0 {
			errs = append(errs, fmt.Errorf("agent %d is %s without property", a.ID, a.Role))
		}
		for _, pid := range a.Properties {
			if prev, dup := owner[pid]; dup {
				errs = append(errs, fmt.Errorf("property %d owned by %d and %d", pid, prev, a.ID))
			}
			owner[pid] = a.ID
		}
	}
	for _, p := range s.Properties {
		if p.OwnerID != uint64(owner[p.ID]) {
			errs = append(errs, fmt.Errorf("property %d records owner %d, agent set says %d", p.ID, p.OwnerID, owner[p.ID]))
		}
		_, listed := s.Book.Get(p.ID)
		if p.ForSale() != listed {
			errs = append(errs, fmt.Errorf("property %d for_sale=%v but listed=%v", p.ID, p.ForSale(), listed))
		}
		if p.ForSale() {
			seller := s.Agent(agents.AgentID(p.OwnerID))
			if seller == nil || !seller.IsSelling() {
				errs = append(errs, fmt.Errorf("property %d for sale but owner is not selling", p.ID))
			}
		}
	}
	return errors.Join(errs...)
}
