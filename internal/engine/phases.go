package engine

import (
	"context"
	"log/slog"

	"github.com/talgya/mini-market/internal/agents"
	"github.com/talgya/mini-market/internal/logging"
	"github.com/talgya/mini-market/internal/market"
	"github.com/talgya/mini-market/internal/negotiation"
	"github.com/talgya/mini-market/internal/oracle"
	"github.com/talgya/mini-market/internal/world"
)

// negotiate runs one session per registry entry concurrently. Buyers enter
// a session as snapshots of their current search.
func (s *Simulation) negotiate(ctx context.Context, month int, reg *market.Registry) ([]*negotiation.Session, error) {
	jobs := make([]negotiation.Job, 0, reg.Len())
	for _, in := range reg.Entries() {
		job := negotiation.Job{
			Listing:      in.Listing,
			MonthsListed: in.Listing.MonthsListed(month),
			MarketHeat:   s.heat(in.Listing.Zone),
		}
		for _, id := range in.Buyers {
			a := s.Agent(id)
			job.Buyers = append(job.Buyers, negotiation.Participant{ID: id, MaxPrice: a.Preference.MaxPrice})
		}
		jobs = append(jobs, job)
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return s.negotiator.RunAll(ctx, month, jobs, s.cfg.Negotiation.Concurrency)
}

// applyFeedback cuts failed listings in oversupplied zones and reviews
// stale listings. supply and demand are the zone counts seen by matching.
func (s *Simulation) applyFeedback(ctx context.Context, month int, sessions []*negotiation.Session, supply, demand map[world.ZoneID]int) {
	for _, sess := range sessions {
		if sess.Succeeded() {
			continue
		}
		l, ok := s.Book.Get(sess.Listing.PropertyID)
		if !ok {
			continue
		}
		adj := s.feedback.AfterFailure(month, l, supply[l.Zone], demand[l.Zone])
		s.applyAdjustment(month, adj)
	}

	var stale []market.Listing
	for _, l := range s.Book.All() {
		if s.feedback.Stale(month, l) {
			stale = append(stale, l)
		}
	}
	if len(stale) == 0 {
		return
	}
	adjs := make([]market.Adjustment, len(stale))
	g := s.fanOut(ctx)
	for i, l := range stale {
		trend := s.trend(l.Zone)
		g.Go(func() error {
			adjs[i] = s.feedback.Review(ctx, month, l, trend)
			return nil
		})
	}
	_ = g.Wait()
	for _, adj := range adjs {
		s.applyAdjustment(month, adj)
	}
}

func (s *Simulation) applyAdjustment(month int, adj market.Adjustment) {
	if !adj.Changed() {
		return
	}
	p := s.Property(adj.PropertyID)
	if p == nil || !p.ForSale() {
		return
	}
	seller := s.Agent(agents.AgentID(p.OwnerID))

	if adj.Delist {
		p.Withdraw()
		s.Book.Remove(p.ID)
		s.Stats.Delisted++
		if seller != nil && !s.Book.HasSeller(seller.ID) {
			switch seller.Role {
			case agents.RoleBuyerSeller:
				seller.SetRole(agents.RoleBuyer)
			case agents.RoleSeller:
				seller.SetRole(agents.RoleObserver)
			}
		}
		slog.Debug("listing withdrawn", "month", month, "property", p.ID, "reason", adj.Reason)
		return
	}

	p.Reprice(adj.NewPrice)
	s.Book.Put(market.FromProperty(p))
	s.Stats.PriceCuts++
	slog.Debug("listing repriced",
		"month", month,
		"property", p.ID,
		"from", logging.Price(adj.OldPrice),
		"to", logging.Price(p.ListedPrice),
		"reason", adj.Reason,
	)
}

// journalFallbacks counts fallback decisions in entries.
func journalFallbacks(entries []oracle.Entry) int {
	n := 0
	for _, e := range entries {
		if e.Fallback {
			n++
		}
	}
	return n
}
