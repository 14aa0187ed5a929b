package oracle

import (
	"fmt"

	"github.com/talgya/mini-market/internal/agents"
)

// Move is one step of negotiation history as shown to the parties.
type Move struct {
	Round  int    `json:"round"`
	Party  string `json:"party"` // buyer | seller
	Action string `json:"action"`
	Price  int64  `json:"price,omitempty"`
}

// --- role assignment ---

// RoleCandidate describes one observer submitted for a role decision.
type RoleCandidate struct {
	AgentID       uint64 `json:"agent_id"`
	Cash          int64  `json:"cash"`
	MonthlyIncome int64  `json:"monthly_income"`
	MonthlyDebt   int64  `json:"monthly_debt"`
	Properties    int    `json:"properties"`
	HomeZone      uint16 `json:"home_zone"`
	LifePressure  string `json:"life_pressure"`
	MaxAffordable int64  `json:"max_affordable"`
}

// RoleContext is the context for KindRole. Candidates are decided as a batch.
type RoleContext struct {
	Candidates []RoleCandidate `json:"candidates"`
	MarketHeat float64         `json:"market_heat"`
	Zones      []uint16        `json:"zones"`
}

// RoleDecision is the answer for one candidate.
type RoleDecision struct {
	AgentID          uint64 `json:"agent_id"`
	Role             string `json:"role"`
	BuyIntent        bool   `json:"buy_intent"`
	Trigger          string `json:"trigger,omitempty"`
	Urgency          string `json:"urgency,omitempty"`
	PriceExpectation string `json:"price_expectation,omitempty"`
	TargetZone       uint16 `json:"target_zone,omitempty"`
	MaxPrice         int64  `json:"max_price,omitempty"`
}

// RoleBatch is the answer for KindRole.
type RoleBatch struct {
	Decisions []RoleDecision `json:"decisions"`
}

func (b RoleBatch) Validate() error {
	seen := make(map[uint64]bool, len(b.Decisions))
	for _, d := range b.Decisions {
		if _, ok := agents.ParseRole(d.Role); !ok {
			return fmt.Errorf("agent %d: unknown role %q", d.AgentID, d.Role)
		}
		if seen[d.AgentID] {
			return fmt.Errorf("agent %d decided twice", d.AgentID)
		}
		if d.MaxPrice < 0 {
			return fmt.Errorf("agent %d: negative max price", d.AgentID)
		}
		seen[d.AgentID] = true
	}
	return nil
}

// --- exit ---

// ExitContext is the context for KindExit.
type ExitContext struct {
	AgentID      uint64  `json:"agent_id"`
	Role         string  `json:"role"`
	MonthsWaited int     `json:"months_waited"`
	LifePressure string  `json:"life_pressure"`
	MarketHeat   float64 `json:"market_heat"`
}

// ExitDecision is the answer for KindExit.
type ExitDecision struct {
	Action string `json:"action"` // STAY | EXIT
	Reason string `json:"reason,omitempty"`
}

const (
	ActionStay = "STAY"
	ActionExit = "EXIT"
)

func (d ExitDecision) Validate() error {
	if d.Action != ActionStay && d.Action != ActionExit {
		return fmt.Errorf("exit action %q", d.Action)
	}
	return nil
}

// --- listing ---

// ListingOption is one owned property a multi-property seller may list.
type ListingOption struct {
	PropertyID uint64 `json:"property_id"`
	Zone       uint16 `json:"zone"`
	Valuation  int64  `json:"valuation"`
}

// ListingContext is the context for KindListing.
type ListingContext struct {
	AgentID    uint64          `json:"agent_id"`
	Options    []ListingOption `json:"options"`
	MarketHeat float64         `json:"market_heat"`
}

// ListingDecision is the answer for KindListing.
type ListingDecision struct {
	PropertyIDs []uint64 `json:"property_ids"`
	Multiplier  float64  `json:"multiplier"`
	Reason      string   `json:"reason,omitempty"`
}

func (d ListingDecision) Validate() error {
	if len(d.PropertyIDs) == 0 {
		return fmt.Errorf("no properties chosen")
	}
	if d.Multiplier <= 0 {
		return fmt.Errorf("multiplier %v", d.Multiplier)
	}
	return nil
}

// --- stale listing review ---

// PriceReviewContext is the context for KindPriceReview.
type PriceReviewContext struct {
	PropertyID   uint64  `json:"property_id"`
	Zone         uint16  `json:"zone"`
	ListedPrice  int64   `json:"listed_price"`
	MinPrice     int64   `json:"min_price"`
	MonthsListed int     `json:"months_listed"`
	Trend        float64 `json:"market_trend"` // month-over-month zone price change
}

// PriceReviewDecision is the answer for KindPriceReview.
type PriceReviewDecision struct {
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
}

const (
	ReviewMaintain = "maintain"
	ReviewSmallCut = "small_cut"
	ReviewLargeCut = "large_cut"
	ReviewDelist   = "delist"
)

func (d PriceReviewDecision) Validate() error {
	switch d.Action {
	case ReviewMaintain, ReviewSmallCut, ReviewLargeCut, ReviewDelist:
		return nil
	}
	return fmt.Errorf("review action %q", d.Action)
}

// --- negotiation ---

// FormatContext is the seller-side context for KindFormat.
type FormatContext struct {
	PropertyID   uint64  `json:"property_id"`
	ListedPrice  int64   `json:"listed_price"`
	MinPrice     int64   `json:"min_price"`
	Buyers       int     `json:"interested_buyers"`
	MonthsListed int     `json:"months_listed"`
	MarketHeat   float64 `json:"market_heat"`
}

// FormatDecision is the answer for KindFormat.
type FormatDecision struct {
	Format   string  `json:"format"`             // classic | batch | flash
	Discount float64 `json:"discount,omitempty"` // flash only
}

const (
	FormatClassic = "classic"
	FormatBatch   = "batch"
	FormatFlash   = "flash"
)

func (d FormatDecision) Validate() error {
	switch d.Format {
	case FormatClassic, FormatBatch, FormatFlash:
	default:
		return fmt.Errorf("format %q", d.Format)
	}
	if d.Discount < 0 || d.Discount >= 1 {
		return fmt.Errorf("discount %v", d.Discount)
	}
	return nil
}

// BuyerTurnContext is the context for KindBuyerMove.
type BuyerTurnContext struct {
	PropertyID  uint64 `json:"property_id"`
	BuyerID     uint64 `json:"buyer_id"`
	ListedPrice int64  `json:"listed_price"`
	MaxPrice    int64  `json:"max_price"`
	Round       int    `json:"round"`
	MaxRounds   int    `json:"max_rounds"`
	Ultimatum   bool   `json:"ultimatum"`
	LastOffer   int64  `json:"last_offer,omitempty"`
	LastCounter int64  `json:"last_counter,omitempty"`
	History     []Move `json:"history"`
}

// BuyerMove is the answer for KindBuyerMove.
type BuyerMove struct {
	Action    string `json:"action"` // OFFER | WITHDRAW
	Price     int64  `json:"price,omitempty"`
	Rationale string `json:"rationale,omitempty"`
}

const (
	MoveOffer    = "OFFER"
	MoveWithdraw = "WITHDRAW"
	MoveAccept   = "ACCEPT"
	MoveCounter  = "COUNTER"
	MoveReject   = "REJECT"
)

func (m BuyerMove) Validate() error {
	switch m.Action {
	case MoveOffer:
		if m.Price <= 0 {
			return fmt.Errorf("offer without price")
		}
	case MoveWithdraw:
	default:
		return fmt.Errorf("buyer action %q", m.Action)
	}
	return nil
}

// SellerTurnContext is the context for KindSellerMove.
type SellerTurnContext struct {
	PropertyID  uint64 `json:"property_id"`
	SellerID    uint64 `json:"seller_id"`
	ListedPrice int64  `json:"listed_price"`
	MinPrice    int64  `json:"min_price"`
	Offer       int64  `json:"offer"`
	Round       int    `json:"round"`
	MaxRounds   int    `json:"max_rounds"`
	Ultimatum   bool   `json:"ultimatum"`
	History     []Move `json:"history"`
}

// SellerMove is the answer for KindSellerMove.
type SellerMove struct {
	Action    string `json:"action"` // ACCEPT | COUNTER | REJECT
	Price     int64  `json:"price,omitempty"`
	Rationale string `json:"rationale,omitempty"`
}

func (m SellerMove) Validate() error {
	switch m.Action {
	case MoveCounter:
		if m.Price <= 0 {
			return fmt.Errorf("counter without price")
		}
	case MoveAccept, MoveReject:
	default:
		return fmt.Errorf("seller action %q", m.Action)
	}
	return nil
}

// BidContext is the context for KindBid.
type BidContext struct {
	PropertyID  uint64 `json:"property_id"`
	BuyerID     uint64 `json:"buyer_id"`
	ListedPrice int64  `json:"listed_price"`
	MaxPrice    int64  `json:"max_price"`
	Competitors int    `json:"competitors"`
}

// Bid is the answer for KindBid. A zero price means no bid.
type Bid struct {
	Price     int64  `json:"price"`
	Rationale string `json:"rationale,omitempty"`
}

func (b Bid) Validate() error {
	if b.Price < 0 {
		return fmt.Errorf("negative bid")
	}
	return nil
}

// FlashContext is the context for KindFlash.
type FlashContext struct {
	PropertyID  uint64 `json:"property_id"`
	BuyerID     uint64 `json:"buyer_id"`
	ListedPrice int64  `json:"listed_price"`
	Price       int64  `json:"flash_price"`
	MaxPrice    int64  `json:"max_price"`
}

// FlashResponse is the answer for KindFlash.
type FlashResponse struct {
	Accept    bool   `json:"accept"`
	Rationale string `json:"rationale,omitempty"`
}

func (FlashResponse) Validate() error { return nil }
