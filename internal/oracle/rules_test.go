package oracle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRulesDeterministic(t *testing.T) {
	ctx := RoleContext{MarketHeat: 0.5, Zones: []uint16{1, 2, 3}}
	for i := uint64(1); i <= 40; i++ {
		ctx.Candidates = append(ctx.Candidates, RoleCandidate{
			AgentID: i, Cash: 2_000_000, MonthlyIncome: 40_000, Properties: int(i % 2),
			HomeZone: 1, LifePressure: "patient", MaxAffordable: 4_000_000,
		})
	}
	req := Request{Kind: KindRole, Month: 4, Subject: 1, Context: ctx}

	a, err := NewRules(9).Decide(context.Background(), req)
	require.NoError(t, err)
	b, err := NewRules(9).Decide(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c := NewClient(NewRules(9), 0, nil)
	batch, ok := Ask(context.Background(), c, req, RoleBatch{})
	require.True(t, ok)
	require.Len(t, batch.Decisions, 40)
	for _, d := range batch.Decisions {
		if d.BuyIntent {
			assert.LessOrEqual(t, d.MaxPrice, int64(4_000_000))
		}
	}
}

func TestRulesUnsupported(t *testing.T) {
	_, err := NewRules(1).Decide(context.Background(), Request{Kind: KindExit, Context: 42})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestRulesNegotiationConverges(t *testing.T) {
	buyer := BuyerTurnContext{ListedPrice: 5_000_000, MaxPrice: 5_200_000, Round: 1, MaxRounds: 3}
	m := buyerRule(buyer)
	assert.Equal(t, MoveOffer, m.Action)
	assert.Equal(t, int64(4_600_000), m.Price)

	s := sellerRule(SellerTurnContext{ListedPrice: 5_000_000, MinPrice: 4_500_000, Offer: m.Price, Round: 1, MaxRounds: 3})
	assert.Equal(t, MoveCounter, s.Action)
	assert.Equal(t, int64(4_800_000), s.Price)

	s = sellerRule(SellerTurnContext{ListedPrice: 5_000_000, MinPrice: 4_500_000, Offer: 4_550_000, Round: 3, MaxRounds: 3, Ultimatum: true})
	assert.Equal(t, MoveAccept, s.Action)

	s = sellerRule(SellerTurnContext{ListedPrice: 5_000_000, MinPrice: 4_500_000, Offer: 4_000_000, Round: 3, MaxRounds: 3, Ultimatum: true})
	assert.Equal(t, MoveReject, s.Action)
}

func TestRulesBidCappedAtBudget(t *testing.T) {
	req := Request{Kind: KindBid, Subject: 3, Context: BidContext{ListedPrice: 5_000_000, MaxPrice: 4_900_000, Competitors: 4}}
	c := NewClient(NewRules(2), 0, nil)
	bid, ok := Ask(context.Background(), c, req, Bid{})
	require.True(t, ok)
	assert.LessOrEqual(t, bid.Price, int64(4_900_000))
	assert.Greater(t, bid.Price, int64(0))
}
