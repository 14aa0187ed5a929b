package market

import (
	"context"
	"math"

	"github.com/talgya/mini-market/internal/entropy"
	"github.com/talgya/mini-market/internal/finance"
	"github.com/talgya/mini-market/internal/oracle"
	"github.com/talgya/mini-market/internal/world"
)

// FeedbackOptions tunes price discovery.
type FeedbackOptions struct {
	Seed            int64
	OversupplyRatio float64
	CutProbability  float64
	CutRate         float64
	StaleAfter      int
	SmallCut        float64
	LargeCut        float64
}

// Adjustment is a price change or delisting produced by feedback.
type Adjustment struct {
	PropertyID world.PropertyID
	OldPrice   int64
	NewPrice   int64
	Delist     bool
	Reason     string
}

// Changed reports whether the adjustment alters the listing.
func (a Adjustment) Changed() bool { return a.Delist || a.NewPrice != a.OldPrice }

// Feedback adjusts listings after failed negotiations and reviews stale ones.
type Feedback struct {
	opts   FeedbackOptions
	oracle *oracle.Client
}

// NewFeedback creates a feedback stage. The oracle client is only used for
// stale-listing reviews.
func NewFeedback(opts FeedbackOptions, c *oracle.Client) *Feedback {
	return &Feedback{opts: opts, oracle: c}
}

// ZoneCondition is the ratio of competing listings to estimated demand.
func ZoneCondition(listings, buyers int) float64 {
	return float64(listings) / float64(max(1, buyers))
}

// CutToward lowers price by rate, never below floor.
func CutToward(price, floor int64, rate float64) int64 {
	cut := int64(math.Round(float64(price) * (1 - rate)))
	return finance.Clamp(cut, floor, price)
}

// AfterFailure computes the post-failure price of a listing. The draw is
// keyed by (seed, month, property), so replaying it yields the same price.
func (f *Feedback) AfterFailure(month int, l Listing, zoneListings, zoneBuyers int) Adjustment {
	adj := Adjustment{PropertyID: l.PropertyID, OldPrice: l.ListedPrice, NewPrice: l.ListedPrice}
	ratio := ZoneCondition(zoneListings, zoneBuyers)
	if ratio <= f.opts.OversupplyRatio {
		adj.Reason = "balanced"
		return adj
	}
	if entropy.Float(f.opts.Seed, entropy.DomainFeedback, int64(month), int64(l.PropertyID)) >= f.opts.CutProbability {
		adj.Reason = "oversupply, held"
		return adj
	}
	adj.NewPrice = CutToward(l.ListedPrice, l.MinPrice, f.opts.CutRate)
	adj.Reason = "oversupply cut"
	return adj
}

// Stale reports whether a listing is due for review at month.
func (f *Feedback) Stale(month int, l Listing) bool {
	return f.opts.StaleAfter > 0 && l.MonthsListed(month) >= f.opts.StaleAfter
}

// Review asks the seller's oracle about a stale listing. trend is the zone's
// month-over-month average price change. The default is to maintain.
func (f *Feedback) Review(ctx context.Context, month int, l Listing, trend float64) Adjustment {
	d, _ := oracle.Ask(ctx, f.oracle, oracle.Request{
		Kind:    oracle.KindPriceReview,
		Month:   month,
		Subject: uint64(l.PropertyID),
		Context: oracle.PriceReviewContext{
			PropertyID:   uint64(l.PropertyID),
			Zone:         uint16(l.Zone),
			ListedPrice:  l.ListedPrice,
			MinPrice:     l.MinPrice,
			MonthsListed: l.MonthsListed(month),
			Trend:        trend,
		},
	}, oracle.PriceReviewDecision{Action: oracle.ReviewMaintain})

	return f.ApplyReview(l, d.Action)
}

// ApplyReview turns a review action into an adjustment.
func (f *Feedback) ApplyReview(l Listing, action string) Adjustment {
	adj := Adjustment{PropertyID: l.PropertyID, OldPrice: l.ListedPrice, NewPrice: l.ListedPrice, Reason: action}
	switch action {
	case oracle.ReviewSmallCut:
		adj.NewPrice = CutToward(l.ListedPrice, l.MinPrice, f.opts.SmallCut)
	case oracle.ReviewLargeCut:
		adj.NewPrice = CutToward(l.ListedPrice, l.MinPrice, f.opts.LargeCut)
	case oracle.ReviewDelist:
		adj.Delist = true
	}
	return adj
}
