package llm

import "github.com/talgya/mini-market/internal/oracle"

const systemPrompt = `You make decisions for households in a simulated housing market. Prices are whole currency units. You are given a situation as JSON and must answer with exactly one JSON object and nothing else.`

type prompt struct {
	task   string
	schema string
}

var prompts = map[oracle.Kind]prompt{
	oracle.KindRole: {
		task: `Decide, for each candidate household, whether it enters the market this month. Roles: OBSERVER (stay out), BUYER, SELLER (needs at least one property), BUYER_SELLER (sell one home and buy another). Never state a max_price above max_affordable.`,
		schema: `{"decisions": [{"agent_id": 1, "role": "BUYER", "buy_intent": true, "trigger": "...", "urgency": "...", "price_expectation": "...", "target_zone": 1, "max_price": 0}]}`,
	},
	oracle.KindExit: {
		task:   `A buyer has been searching for a while. Decide whether they keep searching (STAY) or give up for now (EXIT).`,
		schema: `{"action": "STAY" | "EXIT", "reason": "..."}`,
	},
	oracle.KindListing: {
		task:   `An owner of several properties is selling. Choose which properties to list and a price multiplier applied to their valuation (0.8 to 1.5).`,
		schema: `{"property_ids": [1], "multiplier": 1.05, "reason": "..."}`,
	},
	oracle.KindPriceReview: {
		task:   `A listing has gone stale. Decide whether the seller maintains the price, takes a small cut, a large cut, or delists.`,
		schema: `{"action": "maintain" | "small_cut" | "large_cut" | "delist", "reason": "..."}`,
	},
	oracle.KindFormat: {
		task:   `Choose how the seller runs this sale: classic (alternating offers with one buyer), batch (sealed bids, needs two or more buyers) or flash (one fixed discounted price, first to accept wins).`,
		schema: `{"format": "classic" | "batch" | "flash", "discount": 0.05}`,
	},
	oracle.KindBuyerMove: {
		task:   `You are the buyer in a negotiation. Make an offer or withdraw. If ultimatum is true this is the last round.`,
		schema: `{"action": "OFFER" | "WITHDRAW", "price": 0, "rationale": "..."}`,
	},
	oracle.KindSellerMove: {
		task:   `You are the seller responding to an offer. Accept it, counter with a price, or reject. If ultimatum is true this is the last round.`,
		schema: `{"action": "ACCEPT" | "COUNTER" | "REJECT", "price": 0, "rationale": "..."}`,
	},
	oracle.KindBid: {
		task:   `You are one of several buyers submitting a single sealed bid. Bid 0 to pass.`,
		schema: `{"price": 0, "rationale": "..."}`,
	},
	oracle.KindFlash: {
		task:   `The seller offers a fixed flash price. Accept or decline.`,
		schema: `{"accept": true, "rationale": "..."}`,
	},
}
