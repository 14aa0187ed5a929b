// Package settlement closes agreed negotiations. Every agreement is
// re-underwritten at the agreed price before ownership and cash move; a
// failure leaves all records untouched and marks the session failed.
package settlement

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/talgya/mini-market/internal/agents"
	"github.com/talgya/mini-market/internal/finance"
	"github.com/talgya/mini-market/internal/logging"
	"github.com/talgya/mini-market/internal/market"
	"github.com/talgya/mini-market/internal/negotiation"
	"github.com/talgya/mini-market/internal/world"
)

var (
	ErrInsufficientCash = finance.ErrInsufficientCash
	ErrDTIExceeded      = finance.ErrDTIExceeded
	ErrNotForSale       = errors.New("property not for sale")
	ErrOwnerMismatch    = errors.New("seller does not own property")
	ErrUnknownParty     = errors.New("unknown buyer or seller")
)

// Transaction is the immutable record of a completed sale.
type Transaction struct {
	Month          int              `json:"month" db:"month"`
	PropertyID     world.PropertyID `json:"property_id" db:"property_id"`
	BuyerID        agents.AgentID   `json:"buyer_id" db:"buyer_id"`
	SellerID       agents.AgentID   `json:"seller_id" db:"seller_id"`
	Price          int64            `json:"price" db:"price"`
	DownPayment    int64            `json:"down_payment" db:"down_payment"`
	Loan           int64            `json:"loan" db:"loan"`
	MonthlyPayment int64            `json:"monthly_payment" db:"monthly_payment"`
	RoundCount     int              `json:"round_count" db:"round_count"`
}

// Arena resolves ids to the live records settlement mutates.
type Arena interface {
	Agent(id agents.AgentID) *agents.Agent
	Property(id world.PropertyID) *world.Property
}

// Settler applies agreed sessions.
type Settler struct {
	terms finance.Terms
}

// NewSettler creates a settler using terms for the backstop.
func NewSettler(terms finance.Terms) *Settler {
	return &Settler{terms: terms}
}

// Settle closes one agreed session. On error nothing is mutated.
func (s *Settler) Settle(month int, sess *negotiation.Session, buyer, seller *agents.Agent, prop *world.Property, book *market.Book) (Transaction, error) {
	if buyer == nil || seller == nil || prop == nil {
		return Transaction{}, ErrUnknownParty
	}
	if !prop.ForSale() {
		return Transaction{}, fmt.Errorf("property %d: %w", prop.ID, ErrNotForSale)
	}
	if prop.OwnerID != uint64(seller.ID) || !seller.Owns(prop.ID) || buyer.ID == seller.ID {
		return Transaction{}, fmt.Errorf("property %d seller %d: %w", prop.ID, seller.ID, ErrOwnerMismatch)
	}

	q, err := s.terms.Underwrite(buyer.Borrower(), sess.FinalPrice)
	if err != nil {
		return Transaction{}, fmt.Errorf("buyer %d at %d: %w", buyer.ID, sess.FinalPrice, err)
	}

	buyer.Cash -= q.DownPayment
	buyer.MonthlyDebt += q.MonthlyPayment
	seller.Cash += q.Price

	seller.RemoveProperty(prop.ID)
	buyer.AddProperty(prop.ID)
	prop.Transfer(uint64(buyer.ID))
	book.Remove(prop.ID)

	buyer.ResetToObserver(book.HasSeller(buyer.ID))
	if !book.HasSeller(seller.ID) {
		seller.SetRole(agents.RoleObserver)
	}

	return Transaction{
		Month:          month,
		PropertyID:     prop.ID,
		BuyerID:        buyer.ID,
		SellerID:       seller.ID,
		Price:          q.Price,
		DownPayment:    q.DownPayment,
		Loan:           q.Loan,
		MonthlyPayment: q.MonthlyPayment,
		RoundCount:     sess.RoundCount,
	}, nil
}

// SettleAll settles every successful session in order. Sessions that fail
// the backstop are marked failed so feedback treats them like any other
// failed negotiation.
func (s *Settler) SettleAll(month int, sessions []*negotiation.Session, arena Arena, book *market.Book) []Transaction {
	var txs []Transaction
	for _, sess := range sessions {
		if !sess.Succeeded() {
			continue
		}
		l := sess.Listing
		tx, err := s.Settle(month, sess, arena.Agent(sess.Winner), arena.Agent(l.SellerID), arena.Property(l.PropertyID), book)
		if err != nil {
			sess.Fail("settlement: " + err.Error())
			slog.Info("settlement rejected",
				"month", month,
				"property", l.PropertyID,
				"buyer", sess.Winner,
				"price", logging.Price(sess.FinalPrice),
				"err", err,
			)
			continue
		}
		txs = append(txs, tx)
	}
	return txs
}
