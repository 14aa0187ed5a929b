package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/mini-market/internal/agents"
	"github.com/talgya/mini-market/internal/engine"
	"github.com/talgya/mini-market/internal/market"
	"github.com/talgya/mini-market/internal/negotiation"
	"github.com/talgya/mini-market/internal/oracle"
	"github.com/talgya/mini-market/internal/settlement"
	"github.com/talgya/mini-market/internal/world"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:", RetryPolicy{MaxRetries: 2, Delay: time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testWorld() (*world.Map, []*agents.Agent, []*world.Property) {
	m := world.NewMap([]*world.Zone{
		{ID: 1, Name: "Harbour", Desirability: 0.8, BasePricePerSqm: 60_000},
		{ID: 2, Name: "Old Town", Col: 1, Desirability: 0.4, BasePricePerSqm: 40_000},
	})
	a1 := &agents.Agent{ID: 1, Name: "Ada Park", Cash: 900_000, MonthlyIncome: 40_000, HomeZone: 1,
		LifePressure: agents.PressureUrgent}
	a2 := &agents.Agent{ID: 2, Name: "Ben Cho", Cash: 2_000_000, MonthlyIncome: 70_000, MonthlyDebt: 5_000,
		HomeZone: 2, LifePressure: agents.PressurePatient}
	props := []*world.Property{
		{ID: 1, Zone: 1, Quality: world.QualityPremium, Area: 80, SchoolDistrict: true, Status: world.StatusOffMarket},
		{ID: 2, Zone: 2, Quality: world.QualityBasic, Area: 45, Status: world.StatusOffMarket},
	}
	props[0].OwnerID = 1
	a1.AddProperty(1)
	props[0].List(5_000_000, 4_500_000, 3)
	a1.SetRole(agents.RoleSeller)
	a2.SetRole(agents.RoleBuyer)
	a2.Preference = &agents.BuyerPreference{TargetZone: 1, MaxPrice: 5_500_000, Trigger: "growing family"}
	return m, []*agents.Agent{a1, a2}, props
}

func TestSaveWorldRoundTrip(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	has, err := db.HasWorldState()
	require.NoError(t, err)
	assert.False(t, has)

	m, ag, props := testWorld()
	require.NoError(t, db.SaveWorld(ctx, "run-1", 42, m, ag, props))

	has, err = db.HasWorldState()
	require.NoError(t, err)
	assert.True(t, has)

	gotMap, err := db.LoadZones()
	require.NoError(t, err)
	assert.Equal(t, m.Zones, gotMap.Zones)

	gotProps, err := db.LoadProperties()
	require.NoError(t, err)
	assert.Equal(t, props, gotProps)

	gotAgents, err := db.LoadAgents()
	require.NoError(t, err)
	assert.Equal(t, ag, gotAgents)

	runID, err := db.GetMeta(MetaRunID)
	require.NoError(t, err)
	assert.Equal(t, "run-1", runID)
	seed, err := db.GetMeta(MetaSeed)
	require.NoError(t, err)
	assert.Equal(t, "42", seed)
	month, err := db.LastMonth()
	require.NoError(t, err)
	assert.Equal(t, 0, month)
}

func TestGetMetaMissing(t *testing.T) {
	db := openTest(t)
	v, err := db.GetMeta("nope")
	require.NoError(t, err)
	assert.Equal(t, "", v)

	require.NoError(t, db.SetMeta("nope", "yes"))
	v, err = db.GetMeta("nope")
	require.NoError(t, err)
	assert.Equal(t, "yes", v)
}

func TestSaveMonth(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	m, ag, props := testWorld()
	require.NoError(t, db.SaveWorld(ctx, "run-1", 42, m, ag, props))

	// Agent 2 buys property 1 from agent 1.
	props[0].Withdraw()
	props[0].Transfer(2)
	ag[0].RemoveProperty(1)
	ag[0].SetRole(agents.RoleObserver)
	ag[1].AddProperty(1)
	ag[1].SetRole(agents.RoleObserver)

	tx := settlement.Transaction{Month: 4, PropertyID: 1, BuyerID: 2, SellerID: 1, Price: 4_800_000,
		DownPayment: 1_440_000, Loan: 3_360_000, MonthlyPayment: 18_037, RoundCount: 2}
	rec := &engine.MonthRecord{
		RunID:        "run-1",
		Month:        4,
		Transactions: []settlement.Transaction{tx},
		Sessions: []*negotiation.Session{{
			Month:   4,
			Listing: market.Listing{PropertyID: 1, SellerID: 1, Zone: 1, ListedPrice: 5_000_000, MinPrice: 4_500_000},
			Buyers:  []negotiation.Participant{{ID: 2, MaxPrice: 5_500_000}},
			Format:  negotiation.FormatClassic,
			Rounds: []negotiation.Round{
				{Number: 1, Party: negotiation.PartyBuyer, BuyerID: 2, Action: oracle.MoveOffer, Price: 4_600_000},
				{Number: 1, Party: negotiation.PartySeller, Action: oracle.MoveCounter, Price: 4_800_000},
				{Number: 2, Party: negotiation.PartyBuyer, BuyerID: 2, Action: oracle.MoveAccept, Price: 4_800_000},
			},
			Outcome: negotiation.OutcomeSuccess, Winner: 2, FinalPrice: 4_800_000, RoundCount: 2,
		}},
		RoleEvents: []engine.RoleEvent{
			{Month: 4, AgentID: 1, From: "SELLER", To: "OBSERVER", Reason: "settled"},
			{Month: 4, AgentID: 2, From: "BUYER", To: "OBSERVER", Reason: "settled"},
		},
		Decisions: []oracle.Entry{
			{Month: 4, Kind: oracle.KindBuyerMove, Subject: 2, Payload: `{"action":"OFFER","price":4600000}`},
			{Month: 4, Kind: oracle.KindSellerMove, Subject: 1, Payload: `{"action":"COUNTER"}`, Fallback: true, Note: "timeout"},
			{Month: 4, Kind: oracle.KindRole, Subject: 3, Note: "SELLER assigned to agent without property, set to OBSERVER"},
		},
		ZoneStats: []engine.ZoneStats{
			{Month: 4, Zone: 1, Listings: 0, Buyers: 1, Sales: 1, AvgPrice: 4_800_000, SupplyDemandRatio: 0},
			{Month: 4, Zone: 2, Listings: 0, Buyers: 0, Sales: 0, AvgPrice: 0, SupplyDemandRatio: 0},
		},
		Agents:     ag,
		Properties: props,
	}
	require.NoError(t, db.SaveMonth(ctx, rec))

	month, err := db.LastMonth()
	require.NoError(t, err)
	assert.Equal(t, 4, month)

	gotAgents, err := db.LoadAgents()
	require.NoError(t, err)
	assert.Equal(t, ag, gotAgents)
	gotProps, err := db.LoadProperties()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), gotProps[0].OwnerID)
	assert.False(t, gotProps[0].ForSale())

	stats, err := db.LoadZoneStats(4)
	require.NoError(t, err)
	assert.Equal(t, rec.ZoneStats, stats)

	recent, err := db.RecentTransactions(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []settlement.Transaction{tx}, recent)

	events, err := db.RoleEvents(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, rec.RoleEvents, events)

	s, err := db.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-1", s.RunID)
	assert.Equal(t, 4, s.LastMonth)
	assert.Equal(t, 2, s.Agents)
	assert.Equal(t, 2, s.Properties)
	assert.Equal(t, 0, s.ForSale)
	assert.Equal(t, 1, s.Sales)
	assert.Equal(t, int64(4_800_000), s.Volume)
	assert.Equal(t, 1, s.Negotiations)
	assert.Equal(t, 1, s.Agreed)
	assert.Equal(t, 2, s.Decisions)
	assert.Equal(t, 1, s.Fallbacks)
	assert.Equal(t, 1, s.Corrections)
}

func TestYearTotals(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	sales, volume, err := db.YearTotals(5)
	require.NoError(t, err)
	assert.Zero(t, sales)
	assert.Zero(t, volume)

	for month, prices := range map[int][]int64{
		11: {1_000_000},
		12: {2_000_000},
		13: {3_000_000, 4_000_000},
		14: {5_000_000},
	} {
		rec := &engine.MonthRecord{RunID: "run-1", Month: month}
		for i, p := range prices {
			rec.Transactions = append(rec.Transactions, settlement.Transaction{
				Month: month, PropertyID: world.PropertyID(i + 1), BuyerID: 2, SellerID: 1, Price: p,
			})
		}
		require.NoError(t, db.SaveMonth(ctx, rec))
	}

	tests := []struct {
		month  int
		sales  int
		volume int64
	}{
		{11, 1, 1_000_000},
		{12, 0, 0},
		{13, 2, 7_000_000},
		{14, 3, 12_000_000},
	}
	for _, tt := range tests {
		sales, volume, err := db.YearTotals(tt.month)
		require.NoError(t, err)
		assert.Equal(t, tt.sales, sales, "month %d", tt.month)
		assert.Equal(t, tt.volume, volume, "month %d", tt.month)
	}
}

func TestWithRetry(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	t.Run("busy then ok", func(t *testing.T) {
		calls := 0
		err := db.withRetry(ctx, "op", func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("database is locked (5) (SQLITE_BUSY)")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		err := db.withRetry(ctx, "op", func(context.Context) error {
			calls++
			return errors.New("database is locked")
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
		assert.Contains(t, err.Error(), "op: database is locked")
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		calls := 0
		boom := errors.New("no such table")
		err := db.withRetry(ctx, "op", func(context.Context) error {
			calls++
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled while waiting", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := db.withRetry(cctx, "op", func(context.Context) error {
			return errors.New("database is locked")
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestSimulationWritesThroughStore(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	m, ag, props := testWorld()
	require.NoError(t, db.SaveWorld(ctx, "run-2", 1, m, ag, props))

	var store engine.Store = db
	require.NoError(t, store.SaveMonth(ctx, &engine.MonthRecord{RunID: "run-2", Month: 1}))

	// Nil snapshots leave the stored world as it was.
	gotAgents, err := db.LoadAgents()
	require.NoError(t, err)
	assert.Len(t, gotAgents, 2)
	month, err := db.LastMonth()
	require.NoError(t, err)
	assert.Equal(t, 1, month)
}
