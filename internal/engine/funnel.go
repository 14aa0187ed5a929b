package engine

import (
	"context"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/talgya/mini-market/internal/agents"
	"github.com/talgya/mini-market/internal/entropy"
	"github.com/talgya/mini-market/internal/finance"
	"github.com/talgya/mini-market/internal/market"
	"github.com/talgya/mini-market/internal/oracle"
	"github.com/talgya/mini-market/internal/world"
)

const (
	minMultiplier = 0.8
	maxMultiplier = 1.5
)

// exitCheck ages every active role and asks long-searching buyers whether
// they keep looking. Decisions are fetched concurrently and applied in id
// order.
func (s *Simulation) exitCheck(ctx context.Context, month int) {
	var due []*agents.Agent
	for _, a := range s.Agents {
		if a.Role == agents.RoleObserver {
			continue
		}
		a.RoleDuration++
		if a.IsBuying() && a.RoleDuration > s.cfg.Funnel.ExitCheckAfter+a.LifePressure.ExitDelay() {
			due = append(due, a)
		}
	}
	if len(due) == 0 {
		return
	}

	decisions := make([]oracle.ExitDecision, len(due))
	g := s.fanOut(ctx)
	for i, a := range due {
		g.Go(func() error {
			def := oracle.ExitDecision{Action: oracle.ActionStay, Reason: "default: keep searching"}
			if a.RoleDuration >= s.cfg.Funnel.MaxSearchMonths {
				def = oracle.ExitDecision{Action: oracle.ActionExit, Reason: "default: search limit reached"}
			}
			decisions[i], _ = oracle.Ask(ctx, s.oracle, oracle.Request{
				Kind:    oracle.KindExit,
				Month:   month,
				Subject: uint64(a.ID),
				Context: oracle.ExitContext{
					AgentID:      uint64(a.ID),
					Role:         a.Role.String(),
					MonthsWaited: a.RoleDuration,
					LifePressure: string(a.LifePressure),
					MarketHeat:   s.heat(searchZone(a)),
				},
			}, def)
			return nil
		})
	}
	_ = g.Wait()

	for i, a := range due {
		if decisions[i].Action != oracle.ActionExit {
			continue
		}
		if a.Role == agents.RoleBuyerSeller && s.Book.HasSeller(a.ID) {
			a.SetRole(agents.RoleSeller)
		} else {
			a.SetRole(agents.RoleObserver)
		}
	}
}

func searchZone(a *agents.Agent) world.ZoneID {
	if a.Preference != nil {
		return a.Preference.TargetZone
	}
	return a.HomeZone
}

// fanOut returns an errgroup bounded by the negotiation concurrency limit.
func (s *Simulation) fanOut(ctx context.Context) *errgroup.Group {
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.cfg.Negotiation.Concurrency))
	return g
}

// eligible reports whether an observer may be offered a market role.
func (s *Simulation) eligible(a *agents.Agent) bool {
	return a.Role == agents.RoleObserver &&
		(a.Cash >= s.cfg.Funnel.MinLiquidity || a.PropertyCount() > 0)
}

// sampleObservers draws up to SampleSize eligible observers with the month's
// funnel stream and returns them in ascending id.
func (s *Simulation) sampleObservers(month int) []*agents.Agent {
	var pool []*agents.Agent
	for _, a := range s.Agents {
		if s.eligible(a) {
			pool = append(pool, a)
		}
	}
	n := s.cfg.Funnel.SampleSize
	if n <= 0 || n >= len(pool) {
		return pool
	}
	rng := entropy.Stream(s.Seed, entropy.DomainFunnel, int64(month))
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	picked := pool[:n]
	sort.Slice(picked, func(i, j int) bool { return picked[i].ID < picked[j].ID })
	return picked
}

// activate offers sampled observers a market role in batches, then applies
// the decisions in id order.
func (s *Simulation) activate(ctx context.Context, month int) {
	cands := s.sampleObservers(month)
	if len(cands) == 0 {
		return
	}

	size := max(1, s.cfg.Funnel.BatchSize)
	var batches [][]*agents.Agent
	for i := 0; i < len(cands); i += size {
		batches = append(batches, cands[i:min(i+size, len(cands))])
	}

	zones := make([]uint16, 0, len(s.Map.Zones))
	for _, id := range s.Map.IDs() {
		zones = append(zones, uint16(id))
	}
	heat := s.heat(0)

	results := make([]oracle.RoleBatch, len(batches))
	g := s.fanOut(ctx)
	for i, batch := range batches {
		g.Go(func() error {
			rc := oracle.RoleContext{MarketHeat: heat, Zones: zones}
			for _, a := range batch {
				rc.Candidates = append(rc.Candidates, oracle.RoleCandidate{
					AgentID:       uint64(a.ID),
					Cash:          a.Cash,
					MonthlyIncome: a.MonthlyIncome,
					MonthlyDebt:   a.MonthlyDebt,
					Properties:    a.PropertyCount(),
					HomeZone:      uint16(a.HomeZone),
					LifePressure:  string(a.LifePressure),
					MaxAffordable: s.terms.MaxAffordablePrice(a.Borrower()),
				})
			}
			// Anyone missing from the answer stays an observer.
			results[i], _ = oracle.Ask(ctx, s.oracle, oracle.Request{
				Kind:    oracle.KindRole,
				Month:   month,
				Subject: uint64(batch[0].ID),
				Context: rc,
			}, oracle.RoleBatch{})
			return nil
		})
	}
	_ = g.Wait()

	decided := make(map[agents.AgentID]oracle.RoleDecision)
	for i, batch := range batches {
		inBatch := make(map[uint64]bool, len(batch))
		for _, a := range batch {
			inBatch[uint64(a.ID)] = true
		}
		for _, d := range results[i].Decisions {
			if inBatch[d.AgentID] {
				decided[agents.AgentID(d.AgentID)] = d
			}
		}
	}

	for _, a := range cands {
		if d, ok := decided[a.ID]; ok {
			s.applyRole(ctx, month, a, d)
		}
	}
}

// applyRole enforces the role-property invariant, then sets up listings and
// buyer preferences for the new role.
func (s *Simulation) applyRole(ctx context.Context, month int, a *agents.Agent, d oracle.RoleDecision) {
	role, ok := agents.ParseRole(d.Role)
	if !ok || role == agents.RoleObserver {
		return
	}
	buyIntent := d.BuyIntent || role.Buys()

	if role.Sells() && a.PropertyCount() == 0 {
		corrected := agents.RoleObserver
		if buyIntent {
			corrected = agents.RoleBuyer
		}
		s.oracle.Correct(month, oracle.KindRole, uint64(a.ID),
			fmt.Sprintf("%s assigned to agent without property, set to %s", role, corrected))
		role = corrected
		if role == agents.RoleObserver {
			return
		}
	}

	if role.Sells() && s.listFor(ctx, month, a) == 0 {
		s.oracle.Correct(month, oracle.KindListing, uint64(a.ID), "no listable property")
		if role == agents.RoleBuyerSeller {
			role = agents.RoleBuyer
		} else {
			return
		}
	}

	if role.Buys() {
		pref, ok := s.buyerPreference(a, d)
		if !ok {
			s.oracle.Correct(month, oracle.KindRole, uint64(a.ID), "affordability ceiling is zero, buying dropped")
			if role == agents.RoleBuyerSeller {
				a.SetRole(agents.RoleSeller)
			}
			return
		}
		a.SetRole(role)
		a.Preference = pref
		return
	}
	a.SetRole(role)
}

// listFor creates listings for a newly activated seller and returns how many
// were created. Single-property owners list their property; owners of
// several choose properties and a price multiplier.
func (s *Simulation) listFor(ctx context.Context, month int, a *agents.Agent) int {
	var options []oracle.ListingOption
	for _, pid := range a.Properties {
		p := s.Property(pid)
		if p == nil || p.ForSale() {
			continue
		}
		options = append(options, oracle.ListingOption{
			PropertyID: uint64(pid),
			Zone:       uint16(p.Zone),
			Valuation:  p.Valuation(s.Map.Get(p.Zone)),
		})
	}
	if len(options) == 0 {
		return 0
	}

	chosen := []uint64{options[0].PropertyID}
	multiplier := s.cfg.Funnel.DefaultMarkup
	if len(options) > 1 {
		d, _ := oracle.Ask(ctx, s.oracle, oracle.Request{
			Kind:    oracle.KindListing,
			Month:   month,
			Subject: uint64(a.ID),
			Context: oracle.ListingContext{AgentID: uint64(a.ID), Options: options, MarketHeat: s.heat(a.HomeZone)},
		}, oracle.ListingDecision{PropertyIDs: chosen, Multiplier: multiplier})

		valid := make(map[uint64]bool, len(options))
		for _, o := range options {
			valid[o.PropertyID] = true
		}
		var picked []uint64
		for _, id := range d.PropertyIDs {
			if valid[id] {
				picked = append(picked, id)
				valid[id] = false
			}
		}
		if len(picked) > 0 {
			chosen = picked
		}
		multiplier = finance.Clamp(d.Multiplier, minMultiplier, maxMultiplier)
	}

	for _, id := range chosen {
		p := s.Property(world.PropertyID(id))
		listed := int64(math.Round(float64(p.Valuation(s.Map.Get(p.Zone))) * multiplier))
		floor := int64(math.Round(float64(listed) * s.cfg.Funnel.FloorRatio))
		p.List(listed, floor, month)
		s.Book.Put(market.FromProperty(p))
	}
	return len(chosen)
}

// buyerPreference derives the buyer's search. The price ceiling is the true
// affordability limit; a stated maximum may only lower it.
func (s *Simulation) buyerPreference(a *agents.Agent, d oracle.RoleDecision) (*agents.BuyerPreference, bool) {
	ceiling := s.terms.MaxAffordablePrice(a.Borrower())
	if ceiling <= 0 {
		return nil, false
	}
	maxPrice := ceiling
	if d.MaxPrice > 0 && d.MaxPrice < ceiling {
		maxPrice = d.MaxPrice
	}
	target := world.ZoneID(d.TargetZone)
	if !s.Map.Valid(target) {
		target = a.HomeZone
	}
	return &agents.BuyerPreference{
		TargetZone:       target,
		MaxPrice:         maxPrice,
		Trigger:          d.Trigger,
		Urgency:          d.Urgency,
		PriceExpectation: d.PriceExpectation,
	}, true
}
