package negotiation

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/talgya/mini-market/internal/market"
	"github.com/talgya/mini-market/internal/oracle"
)

// Options tunes the protocols.
type Options struct {
	MaxRounds     int
	BuyerDefault  string // withdraw | repeat
	SellerDefault string // reject | hold
	FlashDiscount float64
}

// Negotiator runs sessions against an oracle.
type Negotiator struct {
	opts   Options
	oracle *oracle.Client
}

// NewNegotiator creates a negotiator.
func NewNegotiator(opts Options, c *oracle.Client) *Negotiator {
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = 3
	}
	return &Negotiator{opts: opts, oracle: c}
}

// Job is one listing to negotiate with its interested buyers in registry order.
type Job struct {
	Listing      market.Listing
	Buyers       []Participant
	MonthsListed int
	MarketHeat   float64
}

// Run negotiates one job to a terminal outcome.
func (n *Negotiator) Run(ctx context.Context, month int, job Job) *Session {
	s := &Session{
		Month:   month,
		Listing: job.Listing,
		Buyers:  append([]Participant(nil), job.Buyers...),
	}
	if len(s.Buyers) == 0 {
		s.finish(OutcomeFailed, 0, "no buyers")
		return s
	}

	format, discount := n.chooseFormat(ctx, month, job)
	s.Format = format
	switch format {
	case FormatBatch:
		n.runBatch(ctx, s)
	case FormatFlash:
		n.runFlash(ctx, s, discount)
	default:
		n.runClassic(ctx, s)
	}

	slog.Debug("negotiation finished",
		"property", s.Listing.PropertyID,
		"format", s.Format,
		"buyers", len(s.Buyers),
		"outcome", s.Outcome,
		"price", s.FinalPrice,
		"rounds", s.RoundCount,
	)
	return s
}

// chooseFormat asks the seller side for a format. Batch needs two or more
// buyers and degrades to classic otherwise; classic with several buyers is
// upgraded to batch so that exactly one contest decides the listing.
func (n *Negotiator) chooseFormat(ctx context.Context, month int, job Job) (Format, float64) {
	def := oracle.FormatDecision{Format: oracle.FormatClassic}
	if len(job.Buyers) >= 2 {
		def.Format = oracle.FormatBatch
	}
	pid := uint64(job.Listing.PropertyID)
	d, _ := oracle.Ask(ctx, n.oracle, oracle.Request{
		Kind:    oracle.KindFormat,
		Month:   month,
		Subject: pid,
		Context: oracle.FormatContext{
			PropertyID:   pid,
			ListedPrice:  job.Listing.ListedPrice,
			MinPrice:     job.Listing.MinPrice,
			Buyers:       len(job.Buyers),
			MonthsListed: job.MonthsListed,
			MarketHeat:   job.MarketHeat,
		},
	}, def)

	f := Format(d.Format)
	switch {
	case f == FormatBatch && len(job.Buyers) < 2:
		n.oracle.Correct(month, oracle.KindFormat, pid, "batch with a single buyer degraded to classic")
		f = FormatClassic
	case f == FormatClassic && len(job.Buyers) >= 2:
		n.oracle.Correct(month, oracle.KindFormat, pid,
			fmt.Sprintf("classic with %d buyers upgraded to batch", len(job.Buyers)))
		f = FormatBatch
	}
	return f, d.Discount
}

func (n *Negotiator) buyerDefault(lastOffer int64) oracle.BuyerMove {
	if n.opts.BuyerDefault == "repeat" && lastOffer > 0 {
		return oracle.BuyerMove{Action: oracle.MoveOffer, Price: lastOffer, Rationale: "default: repeat last offer"}
	}
	return oracle.BuyerMove{Action: oracle.MoveWithdraw, Rationale: "default: withdraw"}
}

func (n *Negotiator) sellerDefault(lastCounter, listed int64) oracle.SellerMove {
	if n.opts.SellerDefault == "hold" {
		price := lastCounter
		if price == 0 {
			price = listed
		}
		return oracle.SellerMove{Action: oracle.MoveCounter, Price: price, Rationale: "default: hold price"}
	}
	return oracle.SellerMove{Action: oracle.MoveReject, Rationale: "default: reject"}
}

// runClassic alternates buyer offers and seller responses for up to
// MaxRounds rounds. The last round is flagged as an ultimatum to both sides.
func (n *Negotiator) runClassic(ctx context.Context, s *Session) {
	buyer := s.Buyers[0]
	l := s.Listing
	pid := uint64(l.PropertyID)
	var lastOffer, lastCounter int64

	for r := 1; r <= n.opts.MaxRounds; r++ {
		ultimatum := r == n.opts.MaxRounds

		bm, ok := oracle.Ask(ctx, n.oracle, oracle.Request{
			Kind:    oracle.KindBuyerMove,
			Month:   s.Month,
			Subject: uint64(buyer.ID),
			Context: oracle.BuyerTurnContext{
				PropertyID:  pid,
				BuyerID:     uint64(buyer.ID),
				ListedPrice: l.ListedPrice,
				MaxPrice:    buyer.MaxPrice,
				Round:       r,
				MaxRounds:   n.opts.MaxRounds,
				Ultimatum:   ultimatum,
				LastOffer:   lastOffer,
				LastCounter: lastCounter,
				History:     s.history(),
			},
		}, n.buyerDefault(lastOffer))
		s.record(Round{Number: r, Party: PartyBuyer, BuyerID: buyer.ID, Action: bm.Action, Price: bm.Price, Rationale: bm.Rationale, Fallback: !ok})
		if bm.Action == oracle.MoveWithdraw {
			s.finish(OutcomeFailed, r, "buyer withdrew")
			return
		}
		lastOffer = bm.Price

		sm, ok := oracle.Ask(ctx, n.oracle, oracle.Request{
			Kind:    oracle.KindSellerMove,
			Month:   s.Month,
			Subject: pid,
			Context: oracle.SellerTurnContext{
				PropertyID:  pid,
				SellerID:    uint64(l.SellerID),
				ListedPrice: l.ListedPrice,
				MinPrice:    l.MinPrice,
				Offer:       lastOffer,
				Round:       r,
				MaxRounds:   n.opts.MaxRounds,
				Ultimatum:   ultimatum,
				History:     s.history(),
			},
		}, n.sellerDefault(lastCounter, l.ListedPrice))
		if sm.Action == oracle.MoveAccept && lastOffer < l.MinPrice {
			n.oracle.Correct(s.Month, oracle.KindSellerMove, pid,
				fmt.Sprintf("accept of %d below floor %d turned into counter", lastOffer, l.MinPrice))
			sm = oracle.SellerMove{Action: oracle.MoveCounter, Price: l.MinPrice, Rationale: "floor"}
		}
		if sm.Action == oracle.MoveCounter && sm.Price < l.MinPrice {
			n.oracle.Correct(s.Month, oracle.KindSellerMove, pid,
				fmt.Sprintf("counter of %d below floor %d raised to floor", sm.Price, l.MinPrice))
			sm.Price = l.MinPrice
		}
		s.record(Round{Number: r, Party: PartySeller, Action: sm.Action, Price: sm.Price, Rationale: sm.Rationale, Fallback: !ok})

		switch sm.Action {
		case oracle.MoveAccept:
			s.win(buyer.ID, lastOffer, r, "accepted")
			return
		case oracle.MoveReject:
			s.finish(OutcomeFailed, r, "seller rejected")
			return
		}
		lastCounter = sm.Price
	}
	s.finish(OutcomeTimeout, n.opts.MaxRounds, "round budget exhausted")
}

// runBatch collects one sealed bid per buyer. The highest bid at or above
// the floor wins; ties go to the earliest submission.
func (n *Negotiator) runBatch(ctx context.Context, s *Session) {
	l := s.Listing
	pid := uint64(l.PropertyID)
	var best Participant
	var bestBid int64

	for _, b := range s.Buyers {
		bid, ok := oracle.Ask(ctx, n.oracle, oracle.Request{
			Kind:    oracle.KindBid,
			Month:   s.Month,
			Subject: uint64(b.ID),
			Context: oracle.BidContext{
				PropertyID:  pid,
				BuyerID:     uint64(b.ID),
				ListedPrice: l.ListedPrice,
				MaxPrice:    b.MaxPrice,
				Competitors: len(s.Buyers) - 1,
			},
		}, oracle.Bid{Rationale: "default: no bid"})
		action := "BID"
		if bid.Price == 0 {
			action = "PASS"
		}
		s.record(Round{Number: 1, Party: PartyBuyer, BuyerID: b.ID, Action: action, Price: bid.Price, Rationale: bid.Rationale, Fallback: !ok})

		if bid.Price >= l.MinPrice && bid.Price > bestBid {
			best, bestBid = b, bid.Price
		}
	}

	if bestBid == 0 {
		s.record(Round{Number: 1, Party: PartySeller, Action: oracle.MoveReject, Rationale: "no bid met the floor"})
		s.finish(OutcomeFailed, 1, "no qualifying bid")
		return
	}
	s.record(Round{Number: 1, Party: PartySeller, BuyerID: best.ID, Action: oracle.MoveAccept, Price: bestBid, Rationale: "highest qualifying bid"})
	s.win(best.ID, bestBid, 1, "highest bid")
}

// FlashPrice is the fixed flash-sale price: the listed price less discount,
// never below the floor.
func FlashPrice(l market.Listing, discount float64) int64 {
	p := int64(math.Round(float64(l.ListedPrice) * (1 - discount)))
	return max(p, l.MinPrice)
}

// runFlash offers one fixed price; the first buyer to accept wins.
func (n *Negotiator) runFlash(ctx context.Context, s *Session, discount float64) {
	if discount <= 0 {
		discount = n.opts.FlashDiscount
	}
	l := s.Listing
	price := FlashPrice(l, discount)
	s.record(Round{Number: 1, Party: PartySeller, Action: "FLASH", Price: price})

	for _, b := range s.Buyers {
		resp, ok := oracle.Ask(ctx, n.oracle, oracle.Request{
			Kind:    oracle.KindFlash,
			Month:   s.Month,
			Subject: uint64(b.ID),
			Context: oracle.FlashContext{
				PropertyID:  uint64(l.PropertyID),
				BuyerID:     uint64(b.ID),
				ListedPrice: l.ListedPrice,
				Price:       price,
				MaxPrice:    b.MaxPrice,
			},
		}, oracle.FlashResponse{Rationale: "default: decline"})
		action := "DECLINE"
		if resp.Accept {
			action = oracle.MoveAccept
		}
		s.record(Round{Number: 1, Party: PartyBuyer, BuyerID: b.ID, Action: action, Price: price, Rationale: resp.Rationale, Fallback: !ok})
		if resp.Accept {
			s.win(b.ID, price, 1, "flash accepted")
			return
		}
	}
	s.finish(OutcomeFailed, 1, "flash declined")
}
