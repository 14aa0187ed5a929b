package market

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/mini-market/internal/agents"
	"github.com/talgya/mini-market/internal/oracle"
	"github.com/talgya/mini-market/internal/world"
)

func listing(pid world.PropertyID, seller agents.AgentID, zone world.ZoneID, price int64) Listing {
	return Listing{PropertyID: pid, SellerID: seller, Zone: zone, ListedPrice: price, MinPrice: price * 9 / 10, ListingMonth: 1}
}

func TestBookOrdering(t *testing.T) {
	b := NewBook()
	b.Put(listing(7, 1, 1, 100))
	b.Put(listing(3, 2, 1, 100))
	b.Put(listing(5, 3, 2, 100))

	assert.Equal(t, 3, b.Len())
	z1 := b.InZone(1)
	require.Len(t, z1, 2)
	assert.Equal(t, world.PropertyID(3), z1[0].PropertyID)

	// Moving zones keeps indexes consistent.
	b.Put(listing(7, 1, 2, 90))
	assert.Equal(t, 1, b.CountInZone(1))
	assert.Equal(t, 2, b.CountInZone(2))

	assert.True(t, b.Remove(3))
	assert.False(t, b.Remove(3))
	assert.Zero(t, b.CountInZone(1))
	assert.True(t, b.HasSeller(1))
	assert.False(t, b.HasSeller(2))
	assert.Len(t, b.BySeller(3), 1)
}

func TestBookFromProperties(t *testing.T) {
	p1 := &world.Property{ID: 1, Zone: 1, OwnerID: 4}
	p1.List(1000, 900, 2)
	p2 := &world.Property{ID: 2, Zone: 1, OwnerID: 5}
	b := BookFromProperties([]*world.Property{p1, p2})
	require.Equal(t, 1, b.Len())
	l, ok := b.Get(1)
	require.True(t, ok)
	assert.Equal(t, agents.AgentID(4), l.SellerID)
	assert.Equal(t, int64(900), l.MinPrice)
}

func TestMatchPicksCheapestThenLowestID(t *testing.T) {
	b := NewBook()
	b.Put(listing(10, 100, 1, 5_000_000))
	b.Put(listing(4, 101, 1, 4_000_000))
	b.Put(listing(2, 102, 1, 4_000_000))
	b.Put(listing(8, 103, 2, 1_000_000))

	reg := Match(b, []Buyer{
		{ID: 3, TargetZone: 1, MaxPrice: 4_500_000},
		{ID: 1, TargetZone: 1, MaxPrice: 6_000_000},
	}, MatchOptions{Headroom: 0.1})

	require.Equal(t, 1, reg.Len())
	in := reg.Entries()[0]
	assert.Equal(t, world.PropertyID(2), in.Listing.PropertyID)
	assert.Equal(t, []agents.AgentID{1, 3}, in.Buyers, "buyers in ascending id")
}

func TestMatchHeadroomAndOwnListing(t *testing.T) {
	b := NewBook()
	b.Put(listing(1, 50, 1, 5_400_000))
	b.Put(listing(2, 60, 1, 5_600_000))

	reg := Match(b, []Buyer{{ID: 50, TargetZone: 1, MaxPrice: 5_000_000}}, MatchOptions{Headroom: 0.1})
	assert.Zero(t, reg.Len(), "own listing excluded and the other is above headroom")

	reg = Match(b, []Buyer{{ID: 7, TargetZone: 1, MaxPrice: 5_000_000}}, MatchOptions{Headroom: 0.1})
	pid, ok := reg.ListingFor(7)
	require.True(t, ok)
	assert.Equal(t, world.PropertyID(1), pid)
}

func TestMatchCrossZoneFallback(t *testing.T) {
	b := NewBook()
	b.Put(listing(9, 1, 3, 2_000_000))

	assert.Zero(t, Match(b, []Buyer{{ID: 2, TargetZone: 1, MaxPrice: 3_000_000}}, MatchOptions{}).Len())

	reg := Match(b, []Buyer{{ID: 2, TargetZone: 1, MaxPrice: 3_000_000}}, MatchOptions{CrossZone: true})
	require.Equal(t, 1, reg.Len())
	assert.Equal(t, map[world.ZoneID]int{3: 1}, reg.BuyersTargeting())
}

func TestMatchSingleEntryPerBuyer(t *testing.T) {
	b := NewBook()
	for i := 1; i <= 20; i++ {
		b.Put(listing(world.PropertyID(i), agents.AgentID(1000+i), world.ZoneID(i%3+1), int64(1_000_000+i*10_000)))
	}
	var buyers []Buyer
	for i := 1; i <= 50; i++ {
		buyers = append(buyers, Buyer{ID: agents.AgentID(i), TargetZone: world.ZoneID(i%4 + 1), MaxPrice: 2_000_000})
	}
	buyers = append(buyers, buyers[0]) // duplicate submission
	reg := Match(b, buyers, MatchOptions{CrossZone: true})

	seen := map[agents.AgentID]int{}
	for _, in := range reg.Entries() {
		assert.NotEmpty(t, in.Buyers)
		for _, id := range in.Buyers {
			seen[id]++
		}
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "buyer %d matched %d times", id, n)
	}
}

func TestCutToward(t *testing.T) {
	assert.Equal(t, int64(970), CutToward(1000, 900, 0.03))
	assert.Equal(t, int64(950), CutToward(1000, 950, 0.08))
	assert.Equal(t, int64(900), CutToward(900, 900, 0.03))
}

func TestAfterFailureIdempotent(t *testing.T) {
	f := NewFeedback(FeedbackOptions{Seed: 11, OversupplyRatio: 1.2, CutProbability: 1, CutRate: 0.03}, nil)
	l := listing(5, 1, 1, 1_000_000)

	a := f.AfterFailure(4, l, 10, 2)
	b := f.AfterFailure(4, l, 10, 2)
	assert.Equal(t, a, b)
	assert.Equal(t, int64(970_000), a.NewPrice)
	assert.True(t, a.Changed())

	balanced := f.AfterFailure(4, l, 2, 2)
	assert.False(t, balanced.Changed())

	never := NewFeedback(FeedbackOptions{Seed: 11, OversupplyRatio: 1.2, CutProbability: 0, CutRate: 0.03}, nil)
	assert.False(t, never.AfterFailure(4, l, 10, 0).Changed())
}

func TestAfterFailureNeverBelowFloor(t *testing.T) {
	f := NewFeedback(FeedbackOptions{Seed: 1, OversupplyRatio: 0.5, CutProbability: 1, CutRate: 0.5}, nil)
	l := listing(1, 1, 1, 1_000_000)
	assert.Equal(t, l.MinPrice, f.AfterFailure(1, l, 5, 1).NewPrice)
}

func TestReview(t *testing.T) {
	s := oracle.NewScript().
		Push(oracle.KindPriceReview, oracle.PriceReviewDecision{Action: oracle.ReviewLargeCut}).
		Push(oracle.KindPriceReview, oracle.PriceReviewDecision{Action: oracle.ReviewDelist}).
		Push(oracle.KindPriceReview, `garbage`)
	f := NewFeedback(FeedbackOptions{StaleAfter: 6, SmallCut: 0.03, LargeCut: 0.08}, oracle.NewClient(s, 0, nil))

	l := listing(3, 1, 1, 1_000_000)
	assert.False(t, f.Stale(6, l))
	assert.True(t, f.Stale(7, l))

	cut := f.Review(context.Background(), 7, l, -0.01)
	assert.Equal(t, int64(920_000), cut.NewPrice)

	delist := f.Review(context.Background(), 7, l, 0)
	assert.True(t, delist.Delist)

	held := f.Review(context.Background(), 7, l, 0)
	assert.False(t, held.Changed(), "malformed answer falls back to maintain")
}
