package settlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/mini-market/internal/agents"
	"github.com/talgya/mini-market/internal/finance"
	"github.com/talgya/mini-market/internal/market"
	"github.com/talgya/mini-market/internal/negotiation"
	"github.com/talgya/mini-market/internal/world"
)

var terms = finance.Terms{DownPaymentRatio: 0.30, AnnualRate: 0.05, TermYears: 30, MaxDTI: 0.50}

type arena struct {
	agents map[agents.AgentID]*agents.Agent
	props  map[world.PropertyID]*world.Property
}

func (a arena) Agent(id agents.AgentID) *agents.Agent          { return a.agents[id] }
func (a arena) Property(id world.PropertyID) *world.Property { return a.props[id] }

type fixture struct {
	buyer, seller *agents.Agent
	prop          *world.Property
	book          *market.Book
	arena         arena
}

func newFixture(buyerCash, income int64) *fixture {
	buyer := &agents.Agent{ID: 1, Cash: buyerCash, MonthlyIncome: income, Role: agents.RoleBuyer,
		Preference: &agents.BuyerPreference{TargetZone: 1, MaxPrice: 6_000_000}}
	seller := &agents.Agent{ID: 2, Cash: 100_000, MonthlyIncome: 30_000, Role: agents.RoleSeller}
	prop := &world.Property{ID: 10, Zone: 1, Area: 80, Quality: world.QualityStandard}
	prop.OwnerID = uint64(seller.ID)
	seller.AddProperty(prop.ID)
	prop.List(5_000_000, 4_500_000, 1)

	book := market.BookFromProperties([]*world.Property{prop})
	return &fixture{
		buyer: buyer, seller: seller, prop: prop, book: book,
		arena: arena{
			agents: map[agents.AgentID]*agents.Agent{1: buyer, 2: seller},
			props:  map[world.PropertyID]*world.Property{10: prop},
		},
	}
}

func agreed(l market.Listing, buyer agents.AgentID, price int64) *negotiation.Session {
	return &negotiation.Session{
		Listing: l, Buyers: []negotiation.Participant{{ID: buyer}},
		Outcome: negotiation.OutcomeSuccess, Winner: buyer, FinalPrice: price, RoundCount: 3,
	}
}

func TestSettleMovesCashAndOwnership(t *testing.T) {
	f := newFixture(2_000_000, 100_000)
	l, _ := f.book.Get(10)
	sess := agreed(l, 1, 4_800_000)

	buyerCash, sellerCash := f.buyer.Cash, f.seller.Cash
	tx, err := NewSettler(terms).Settle(5, sess, f.buyer, f.seller, f.prop, f.book)
	require.NoError(t, err)

	assert.Equal(t, int64(1_440_000), tx.DownPayment)
	assert.Equal(t, int64(3_360_000), tx.Loan)
	assert.Equal(t, tx.Price, tx.DownPayment+tx.Loan)
	assert.Equal(t, buyerCash-tx.DownPayment, f.buyer.Cash)
	assert.Equal(t, sellerCash+tx.Price, f.seller.Cash)
	assert.Equal(t, tx.MonthlyPayment, f.buyer.MonthlyDebt)
	assert.Equal(t, 3, tx.RoundCount)

	assert.Equal(t, uint64(1), f.prop.OwnerID)
	assert.False(t, f.prop.ForSale())
	assert.True(t, f.buyer.Owns(10))
	assert.False(t, f.seller.Owns(10))
	assert.Zero(t, f.book.Len())
	assert.Equal(t, agents.RoleObserver, f.buyer.Role)
	assert.Nil(t, f.buyer.Preference)
	assert.Equal(t, agents.RoleObserver, f.seller.Role)
}

func TestBackstopRejectsOvershoot(t *testing.T) {
	// Cash 900k with 30% down caps the buyer at 3.0M.
	f := newFixture(900_000, 200_000)
	require.InDelta(t, 3_000_000, float64(terms.MaxAffordablePrice(f.buyer.Borrower())), 1)

	l, _ := f.book.Get(10)
	sess := agreed(l, 1, 3_500_000)
	before := *f.buyer

	txs := NewSettler(terms).SettleAll(5, []*negotiation.Session{sess}, f.arena, f.book)

	assert.Empty(t, txs)
	assert.Equal(t, negotiation.OutcomeFailed, sess.Outcome)
	assert.Contains(t, sess.Reason, "insufficient cash")
	assert.Equal(t, before.Cash, f.buyer.Cash)
	assert.Equal(t, agents.RoleBuyer, f.buyer.Role)
	assert.Equal(t, uint64(2), f.prop.OwnerID)
	assert.True(t, f.prop.ForSale())
	assert.Equal(t, 1, f.book.Len())
}

func TestBackstopRejectsDTI(t *testing.T) {
	f := newFixture(5_000_000, 20_000)
	l, _ := f.book.Get(10)
	_, err := NewSettler(terms).Settle(1, agreed(l, 1, 4_800_000), f.buyer, f.seller, f.prop, f.book)
	assert.ErrorIs(t, err, ErrDTIExceeded)
	assert.Equal(t, uint64(2), f.prop.OwnerID)
}

func TestSettleRejectsStaleListing(t *testing.T) {
	f := newFixture(2_000_000, 100_000)
	l, _ := f.book.Get(10)
	f.prop.Withdraw()
	_, err := NewSettler(terms).Settle(1, agreed(l, 1, 4_800_000), f.buyer, f.seller, f.prop, f.book)
	assert.ErrorIs(t, err, ErrNotForSale)

	_, err = NewSettler(terms).Settle(1, agreed(l, 1, 4_800_000), nil, f.seller, f.prop, f.book)
	assert.ErrorIs(t, err, ErrUnknownParty)
}

func TestBuyerSellerKeepsSellingOtherListing(t *testing.T) {
	f := newFixture(2_000_000, 100_000)
	f.buyer.SetRole(agents.RoleBuyerSeller)
	other := &world.Property{ID: 11, Zone: 2, OwnerID: 1}
	f.buyer.AddProperty(11)
	other.List(3_000_000, 2_700_000, 1)
	f.book.Put(market.FromProperty(other))

	// The seller has a second listing too.
	third := &world.Property{ID: 12, Zone: 1, OwnerID: 2}
	f.seller.AddProperty(12)
	third.List(4_000_000, 3_600_000, 1)
	f.book.Put(market.FromProperty(third))

	l, _ := f.book.Get(10)
	_, err := NewSettler(terms).Settle(2, agreed(l, 1, 4_800_000), f.buyer, f.seller, f.prop, f.book)
	require.NoError(t, err)

	assert.Equal(t, agents.RoleSeller, f.buyer.Role)
	assert.Equal(t, agents.RoleSeller, f.seller.Role)
	assert.Equal(t, 2, f.book.Len())
}

func TestSettleAllSkipsFailedSessions(t *testing.T) {
	f := newFixture(2_000_000, 100_000)
	l, _ := f.book.Get(10)
	failed := &negotiation.Session{Listing: l, Outcome: negotiation.OutcomeTimeout}
	txs := NewSettler(terms).SettleAll(1, []*negotiation.Session{failed, agreed(l, 1, 4_600_000)}, f.arena, f.book)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(4_600_000), txs[0].Price)
}
