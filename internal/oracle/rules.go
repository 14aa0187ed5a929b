package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"

	"github.com/talgya/mini-market/internal/entropy"
)

// Rules is a deterministic heuristic oracle. Each answer is drawn from a
// stream keyed by (seed, kind, month, subject), so concurrent sessions get
// the same answers in any scheduling order.
type Rules struct {
	Seed int64
}

// NewRules creates a rule-based oracle.
func NewRules(seed int64) *Rules {
	return &Rules{Seed: seed}
}

// Decide implements Oracle.
func (r *Rules) Decide(ctx context.Context, req Request) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rng := r.stream(req)

	var out any
	switch c := req.Context.(type) {
	case RoleContext:
		out = r.roles(rng, c)
	case ExitContext:
		out = exitRule(rng, c)
	case ListingContext:
		out = listingRule(c)
	case PriceReviewContext:
		out = reviewRule(rng, c)
	case FormatContext:
		out = formatRule(rng, c)
	case BuyerTurnContext:
		out = buyerRule(c)
	case SellerTurnContext:
		out = sellerRule(c)
	case BidContext:
		out = bidRule(rng, c)
	case FlashContext:
		out = FlashResponse{Accept: c.Price <= c.MaxPrice}
	default:
		return nil, fmt.Errorf("%w: %s with %T", ErrUnsupported, req.Kind, req.Context)
	}
	return json.Marshal(out)
}

// stream derives the generator for one request. Negotiation draws are keyed
// by listing so a session's outcome does not depend on other sessions.
func (r *Rules) stream(req Request) *rand.Rand {
	domain := string(req.Kind)
	switch c := req.Context.(type) {
	case FormatContext:
		return entropy.Stream(r.Seed, entropy.DomainNegotiation+"/"+domain, int64(req.Month), int64(c.PropertyID))
	case BidContext:
		return entropy.Stream(r.Seed, entropy.DomainNegotiation+"/"+domain, int64(req.Month), int64(c.PropertyID), int64(c.BuyerID))
	}
	return entropy.Stream(r.Seed, entropy.DomainRules+"/"+domain, int64(req.Month), int64(req.Subject))
}

func (r *Rules) roles(rng *rand.Rand, c RoleContext) RoleBatch {
	// Hot markets pull more buyers in and make owners keener to sell.
	buyP := 0.18 + 0.10*c.MarketHeat
	sellP := 0.12 + 0.06*c.MarketHeat

	var b RoleBatch
	for _, cand := range c.Candidates {
		d := RoleDecision{AgentID: cand.AgentID, Role: "OBSERVER", TargetZone: cand.HomeZone}
		x := rng.Float64()
		canBuy := cand.MaxAffordable > 0
		switch {
		case cand.Properties > 0 && canBuy && x < sellP*0.35:
			d.Role, d.BuyIntent, d.Trigger = "BUYER_SELLER", true, "upsizing"
		case cand.Properties > 0 && x < sellP:
			d.Role, d.Trigger = "SELLER", "cashing out"
		case canBuy && x < sellP+buyP:
			d.Role, d.BuyIntent = "BUYER", true
			d.Trigger = "first home"
			if cand.Properties > 0 {
				d.Trigger = "investment"
			}
		}
		if d.BuyIntent {
			d.Urgency = cand.LifePressure
			d.PriceExpectation = "stable"
			if c.MarketHeat > 0.6 {
				d.PriceExpectation = "rising"
			}
			// Stated budget sits somewhat under the true ceiling.
			d.MaxPrice = int64(math.Round(float64(cand.MaxAffordable) * (0.85 + 0.15*rng.Float64())))
			if len(c.Zones) > 0 && rng.Float64() < 0.2 {
				d.TargetZone = c.Zones[rng.Intn(len(c.Zones))]
			}
		}
		b.Decisions = append(b.Decisions, d)
	}
	return b
}

func exitRule(rng *rand.Rand, c ExitContext) ExitDecision {
	if c.MonthsWaited < 4 {
		return ExitDecision{Action: ActionStay}
	}
	p := 0.15 + 0.05*float64(c.MonthsWaited-4) - 0.1*c.MarketHeat
	if rng.Float64() < p {
		return ExitDecision{Action: ActionExit, Reason: "search fatigue"}
	}
	return ExitDecision{Action: ActionStay}
}

func listingRule(c ListingContext) ListingDecision {
	// List the cheapest holding, priced up in hot markets.
	if len(c.Options) == 0 {
		return ListingDecision{}
	}
	best := c.Options[0]
	for _, o := range c.Options[1:] {
		if o.Valuation < best.Valuation || (o.Valuation == best.Valuation && o.PropertyID < best.PropertyID) {
			best = o
		}
	}
	return ListingDecision{
		PropertyIDs: []uint64{best.PropertyID},
		Multiplier:  1.0 + 0.1*c.MarketHeat,
	}
}

func reviewRule(rng *rand.Rand, c PriceReviewContext) PriceReviewDecision {
	switch {
	case c.MonthsListed >= 12 && c.ListedPrice <= c.MinPrice:
		return PriceReviewDecision{Action: ReviewDelist, Reason: "no takers at floor"}
	case c.MonthsListed >= 10:
		return PriceReviewDecision{Action: ReviewLargeCut}
	case c.Trend < 0 || rng.Float64() < 0.3:
		return PriceReviewDecision{Action: ReviewSmallCut}
	}
	return PriceReviewDecision{Action: ReviewMaintain}
}

func formatRule(rng *rand.Rand, c FormatContext) FormatDecision {
	switch {
	case c.Buyers >= 2:
		return FormatDecision{Format: FormatBatch}
	case c.MonthsListed >= 4 && rng.Float64() < 0.3:
		return FormatDecision{Format: FormatFlash, Discount: 0.05}
	}
	return FormatDecision{Format: FormatClassic}
}

func buyerRule(c BuyerTurnContext) BuyerMove {
	if c.LastCounter == 0 {
		offer := min(c.MaxPrice, int64(math.Round(float64(c.ListedPrice)*0.92)))
		return BuyerMove{Action: MoveOffer, Price: offer, Rationale: "opening below ask"}
	}
	if c.LastCounter <= c.MaxPrice && (c.Ultimatum || c.LastCounter-c.LastOffer <= c.ListedPrice/50) {
		return BuyerMove{Action: MoveOffer, Price: c.LastCounter, Rationale: "meet the counter"}
	}
	if c.LastOffer >= c.MaxPrice {
		return BuyerMove{Action: MoveWithdraw, Rationale: "over budget"}
	}
	mid := c.LastOffer + (c.LastCounter-c.LastOffer)/2
	return BuyerMove{Action: MoveOffer, Price: min(mid, c.MaxPrice), Rationale: "split the difference"}
}

func sellerRule(c SellerTurnContext) SellerMove {
	near := int64(math.Round(float64(c.ListedPrice) * 0.97))
	switch {
	case c.Offer >= near:
		return SellerMove{Action: MoveAccept, Rationale: "close to ask"}
	case c.Ultimatum && c.Offer >= c.MinPrice:
		return SellerMove{Action: MoveAccept, Rationale: "clears the floor"}
	case c.Ultimatum:
		return SellerMove{Action: MoveReject, Rationale: "below floor"}
	}
	counter := max(c.MinPrice, c.Offer+(c.ListedPrice-c.Offer)/2)
	return SellerMove{Action: MoveCounter, Price: counter, Rationale: "meet halfway"}
}

func bidRule(rng *rand.Rand, c BidContext) Bid {
	factor := 0.96 + 0.015*float64(c.Competitors) + 0.03*rng.Float64()
	bid := int64(math.Round(float64(c.ListedPrice) * factor))
	if bid > c.MaxPrice {
		bid = c.MaxPrice
	}
	return Bid{Price: bid}
}
