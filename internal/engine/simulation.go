// Simulation ties together the market stages and runs them each month.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/talgya/mini-market/internal/agents"
	"github.com/talgya/mini-market/internal/config"
	"github.com/talgya/mini-market/internal/finance"
	"github.com/talgya/mini-market/internal/logging"
	"github.com/talgya/mini-market/internal/market"
	"github.com/talgya/mini-market/internal/negotiation"
	"github.com/talgya/mini-market/internal/oracle"
	"github.com/talgya/mini-market/internal/settlement"
	"github.com/talgya/mini-market/internal/world"
)

// Simulation holds the complete market state. Agents and Properties are
// arenas indexed by id-1; every stage refers to records by id and borrows
// pointers only for the duration of one phase.
type Simulation struct {
	RunID      string
	Seed       int64
	Map        *world.Map
	Agents     []*agents.Agent
	Properties []*world.Property
	Book       *market.Book
	LastMonth  int // most recent month processed

	cfg        *config.Config
	terms      finance.Terms
	oracle     *oracle.Client
	negotiator *negotiation.Negotiator
	settler    *settlement.Settler
	feedback   *market.Feedback
	store      Store

	// Zone statistics of the previous two months, for heat and trend.
	prevStats map[world.ZoneID]ZoneStats
	lastStats map[world.ZoneID]ZoneStats

	pendingEvents []RoleEvent

	// Running totals since the last yearly summary.
	yearSales  int
	yearVolume int64

	// Statistics of the most recent month.
	Stats SimStats
}

// SimStats tracks aggregate market statistics for one month.
type SimStats struct {
	Month        int   `json:"month"`
	Buyers       int   `json:"buyers"`
	Sellers      int   `json:"sellers"`
	Listings     int   `json:"listings"`
	Matched      int   `json:"matched"`
	Sessions     int   `json:"sessions"`
	Agreed       int   `json:"agreed"`
	Sales        int   `json:"sales"`
	Rejected     int   `json:"rejected"` // agreed but failed settlement
	PriceCuts    int   `json:"price_cuts"`
	Delisted     int   `json:"delisted"`
	Fallbacks    int   `json:"fallbacks"`
	Volume       int64 `json:"volume"`
	AvgSalePrice int64 `json:"avg_sale_price"`
}

// NewSimulation creates a Simulation from generated or restored components.
// Agents and properties must carry dense ids starting at 1. store may be nil.
func NewSimulation(cfg *config.Config, m *world.Map, ag []*agents.Agent, props []*world.Property, client *oracle.Client, store Store) (*Simulation, error) {
	if err := checkDense(ag, props); err != nil {
		return nil, err
	}
	if client == nil {
		client = oracle.NewClient(nil, 0, nil)
	}
	terms := finance.Terms{
		DownPaymentRatio: cfg.Finance.DownPaymentRatio,
		AnnualRate:       cfg.Finance.AnnualRate,
		TermYears:        cfg.Finance.TermYears,
		MaxDTI:           cfg.Finance.MaxDTI,
	}
	sim := &Simulation{
		Seed:       cfg.Simulation.Seed,
		Map:        m,
		Agents:     ag,
		Properties: props,
		Book:       market.BookFromProperties(props),
		cfg:        cfg,
		terms:      terms,
		oracle:     client,
		negotiator: negotiation.NewNegotiator(negotiation.Options{
			MaxRounds:     cfg.Negotiation.MaxRounds,
			BuyerDefault:  cfg.Negotiation.BuyerDefault,
			SellerDefault: cfg.Negotiation.SellerDefault,
			FlashDiscount: cfg.Negotiation.FlashDiscount,
		}, client),
		settler: settlement.NewSettler(terms),
		feedback: market.NewFeedback(market.FeedbackOptions{
			Seed:            cfg.Simulation.Seed,
			OversupplyRatio: cfg.Feedback.OversupplyRatio,
			CutProbability:  cfg.Feedback.CutProbability,
			CutRate:         cfg.Feedback.CutRate,
			StaleAfter:      cfg.Feedback.StaleAfter,
			SmallCut:        cfg.Feedback.SmallCut,
			LargeCut:        cfg.Feedback.LargeCut,
		}, client),
		store: store,
	}
	return sim, nil
}

func checkDense(ag []*agents.Agent, props []*world.Property) error {
	for i, a := range ag {
		if a.ID != agents.AgentID(i+1) {
			return fmt.Errorf("agent at index %d has id %d", i, a.ID)
		}
	}
	for i, p := range props {
		if p.ID != world.PropertyID(i+1) {
			return fmt.Errorf("property at index %d has id %d", i, p.ID)
		}
	}
	return nil
}

// Agent returns the agent with id, or nil.
func (s *Simulation) Agent(id agents.AgentID) *agents.Agent {
	if id == 0 || int(id) > len(s.Agents) {
		return nil
	}
	return s.Agents[id-1]
}

// Property returns the property with id, or nil.
func (s *Simulation) Property(id world.PropertyID) *world.Property {
	if id == 0 || int(id) > len(s.Properties) {
		return nil
	}
	return s.Properties[id-1]
}

// RestoreStats seeds heat and trend from persisted zone statistics.
func (s *Simulation) RestoreStats(prev, last []ZoneStats) {
	s.prevStats = indexStats(prev)
	s.lastStats = indexStats(last)
}

// RestoreYear seeds the running yearly totals, so a resumed run's first
// yearly summary covers the whole year.
func (s *Simulation) RestoreYear(sales int, volume int64) {
	s.yearSales, s.yearVolume = sales, volume
}

// TickMonth runs one month: funnel, matching, negotiation, settlement,
// feedback and persistence. Only context cancellation is returned as an
// error; everything else is recovered and logged.
func (s *Simulation) TickMonth(ctx context.Context, month int) error {
	s.LastMonth = month
	s.Stats = SimStats{Month: month}

	s.accrueSavings()

	before := s.roles()
	s.exitCheck(ctx, month)
	s.recordRoleChanges(month, before, "exit")

	before = s.roles()
	s.activate(ctx, month)
	s.recordRoleChanges(month, before, "activated")

	if err := ctx.Err(); err != nil {
		return err
	}

	buyers := s.activeBuyers()
	demand := zoneDemand(buyers)
	supply := s.zoneSupply()
	s.Stats.Buyers = len(buyers)
	s.Stats.Listings = s.Book.Len()
	s.Stats.Sellers = s.countRole(agents.RoleSeller) + s.countRole(agents.RoleBuyerSeller)

	reg := market.Match(s.Book, buyers, market.MatchOptions{
		Headroom:  s.cfg.Matching.Headroom,
		CrossZone: s.cfg.Matching.CrossZone,
	})
	s.Stats.Matched = reg.Len()

	sessions, err := s.negotiate(ctx, month, reg)
	if err != nil {
		return err
	}

	before = s.roles()
	txs := s.settler.SettleAll(month, sessions, s, s.Book)
	s.recordRoleChanges(month, before, "settled")

	before = s.roles()
	s.applyFeedback(ctx, month, sessions, supply, demand)
	s.recordRoleChanges(month, before, "delisted")

	stats := s.zoneStats(month, supply, demand, txs)
	s.prevStats, s.lastStats = s.lastStats, indexStats(stats)
	s.summarize(sessions, txs)

	if err := s.CheckInvariants(); err != nil {
		slog.Error("invariant check failed", "month", month, "error", err)
	}

	s.persist(ctx, month, sessions, txs, stats)

	slog.Info("monthly report",
		"month", month,
		"time", SimTime(month),
		"buyers", s.Stats.Buyers,
		"sellers", s.Stats.Sellers,
		"listings", s.Stats.Listings,
		"sessions", s.Stats.Sessions,
		"sales", s.Stats.Sales,
		"rejected", s.Stats.Rejected,
		"cuts", s.Stats.PriceCuts,
		"delisted", s.Stats.Delisted,
		"avg_price", logging.Price(s.Stats.AvgSalePrice),
		"fallbacks", s.Stats.Fallbacks,
	)
	return nil
}

func (s *Simulation) persist(ctx context.Context, month int, sessions []*negotiation.Session, txs []settlement.Transaction, stats []ZoneStats) {
	decisions := s.oracle.Journal().Drain()
	s.Stats.Fallbacks = journalFallbacks(decisions)
	events := s.pendingEvents
	s.pendingEvents = nil

	if s.store == nil {
		return
	}
	rec := &MonthRecord{
		RunID:        s.RunID,
		Month:        month,
		Transactions: txs,
		Sessions:     sessions,
		RoleEvents:   events,
		Decisions:    decisions,
		ZoneStats:    stats,
		Agents:       s.Agents,
		Properties:   s.Properties,
	}
	if err := s.store.SaveMonth(ctx, rec); err != nil {
		slog.Error("monthly save failed", "month", month, "error", err)
	}
}

// accrueSavings adds the saved share of disposable income to every agent.
func (s *Simulation) accrueSavings() {
	rate := s.cfg.Economy.SavingsRate
	if rate <= 0 {
		return
	}
	for _, a := range s.Agents {
		if free := a.MonthlyIncome - a.MonthlyDebt; free > 0 {
			a.Cash += int64(float64(free) * rate)
		}
	}
}

func (s *Simulation) roles() []agents.Role {
	out := make([]agents.Role, len(s.Agents))
	for i, a := range s.Agents {
		out[i] = a.Role
	}
	return out
}

func (s *Simulation) recordRoleChanges(month int, before []agents.Role, reason string) {
	for i, a := range s.Agents {
		if a.Role != before[i] {
			s.pendingEvents = append(s.pendingEvents, RoleEvent{
				Month:   month,
				AgentID: a.ID,
				From:    before[i].String(),
				To:      a.Role.String(),
				Reason:  reason,
			})
		}
	}
}

func (s *Simulation) countRole(r agents.Role) int {
	n := 0
	for _, a := range s.Agents {
		if a.Role == r {
			n++
		}
	}
	return n
}

func (s *Simulation) summarize(sessions []*negotiation.Session, txs []settlement.Transaction) {
	s.Stats.Sessions = len(sessions)
	for _, sess := range sessions {
		if sess.Succeeded() {
			s.Stats.Agreed++
		}
	}
	s.Stats.Sales = len(txs)
	s.Stats.Rejected = s.Stats.Agreed - len(txs)
	for _, tx := range txs {
		s.Stats.Volume += tx.Price
	}
	s.yearSales += len(txs)
	s.yearVolume += s.Stats.Volume
	if len(txs) > 0 {
		s.Stats.AvgSalePrice = s.Stats.Volume / int64(len(txs))
	}
}

// activeBuyers returns the matching view of every buying agent, by id.
func (s *Simulation) activeBuyers() []market.Buyer {
	var out []market.Buyer
	for _, a := range s.Agents {
		if a.IsBuying() && a.Preference != nil {
			out = append(out, market.Buyer{ID: a.ID, TargetZone: a.Preference.TargetZone, MaxPrice: a.Preference.MaxPrice})
		}
	}
	return out
}

func zoneDemand(buyers []market.Buyer) map[world.ZoneID]int {
	out := make(map[world.ZoneID]int)
	for _, b := range buyers {
		out[b.TargetZone]++
	}
	return out
}

func (s *Simulation) zoneSupply() map[world.ZoneID]int {
	out := make(map[world.ZoneID]int)
	for _, id := range s.Map.IDs() {
		out[id] = s.Book.CountInZone(id)
	}
	return out
}

// heat is the demand share of a zone last month in [0, 1]; 0.5 when unknown.
// Zone 0 means the whole market.
func (s *Simulation) heat(zone world.ZoneID) float64 {
	var buyers, listings int
	for z, st := range s.lastStats {
		if zone == 0 || z == zone {
			buyers += st.Buyers
			listings += st.Listings
		}
	}
	if buyers+listings == 0 {
		return 0.5
	}
	return float64(buyers) / float64(buyers+listings)
}

// trend is the month-over-month change in a zone's average sale price.
func (s *Simulation) trend(zone world.ZoneID) float64 {
	last, ok1 := s.lastStats[zone]
	prev, ok2 := s.prevStats[zone]
	if !ok1 || !ok2 || prev.AvgPrice == 0 {
		return 0
	}
	return float64(last.AvgPrice-prev.AvgPrice) / float64(prev.AvgPrice)
}

// YearSummary logs the sales of the past year and resets the running totals.
func (s *Simulation) YearSummary(month int) {
	var avg int64
	if s.yearSales > 0 {
		avg = s.yearVolume / int64(s.yearSales)
	}
	owners := 0
	for _, a := range s.Agents {
		if a.PropertyCount() > 0 {
			owners++
		}
	}
	slog.Info("yearly summary",
		"month", month,
		"time", SimTime(month),
		"sales", s.yearSales,
		"volume", logging.Price(s.yearVolume),
		"avg_price", logging.Price(avg),
		"owners", owners,
		"ownership_rate", logging.Ratio(float64(owners)/float64(max(1, len(s.Agents)))),
		"listings", s.Book.Len(),
	)
	s.yearSales, s.yearVolume = 0, 0
}
