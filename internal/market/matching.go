package market

import (
	"math"
	"sort"

	"github.com/talgya/mini-market/internal/agents"
	"github.com/talgya/mini-market/internal/world"
)

// Buyer is the matching view of an active buyer.
type Buyer struct {
	ID         agents.AgentID
	TargetZone world.ZoneID
	MaxPrice   int64
}

// MatchOptions tunes candidate filtering.
type MatchOptions struct {
	// Headroom admits listings priced up to MaxPrice*(1+Headroom); the
	// negotiation is expected to close the gap.
	Headroom  float64
	CrossZone bool
}

// Interest is one registry entry: a listing and the buyers who chose it, in
// ascending buyer id.
type Interest struct {
	Listing Listing
	Buyers  []agents.AgentID
}

// Registry maps listings to interested buyers. Entries are kept in ascending
// property-id order and every buyer appears in at most one entry.
type Registry struct {
	entries []*Interest
	byProp  map[world.PropertyID]*Interest
	byBuyer map[agents.AgentID]world.PropertyID
}

func newRegistry() *Registry {
	return &Registry{
		byProp:  make(map[world.PropertyID]*Interest),
		byBuyer: make(map[agents.AgentID]world.PropertyID),
	}
}

// Entries returns the registry entries in ascending property id.
func (r *Registry) Entries() []*Interest { return r.entries }

// Len returns the number of listings with at least one buyer.
func (r *Registry) Len() int { return len(r.entries) }

// Lookup returns the entry for pid.
func (r *Registry) Lookup(pid world.PropertyID) (*Interest, bool) {
	in, ok := r.byProp[pid]
	return in, ok
}

// ListingFor returns the listing a buyer was matched to.
func (r *Registry) ListingFor(buyer agents.AgentID) (world.PropertyID, bool) {
	pid, ok := r.byBuyer[buyer]
	return pid, ok
}

// BuyersTargeting counts matched buyers per listing zone.
func (r *Registry) BuyersTargeting() map[world.ZoneID]int {
	out := make(map[world.ZoneID]int)
	for _, in := range r.entries {
		out[in.Listing.Zone] += len(in.Buyers)
	}
	return out
}

func (r *Registry) add(l Listing, buyer agents.AgentID) {
	in, ok := r.byProp[l.PropertyID]
	if !ok {
		in = &Interest{Listing: l}
		r.byProp[l.PropertyID] = in
		i := sort.Search(len(r.entries), func(i int) bool { return r.entries[i].Listing.PropertyID >= l.PropertyID })
		r.entries = append(r.entries, nil)
		copy(r.entries[i+1:], r.entries[i:])
		r.entries[i] = in
	}
	in.Buyers = append(in.Buyers, buyer)
	r.byBuyer[buyer] = l.PropertyID
}

// Match assigns each buyer at most one listing. Buyers are processed in
// ascending id; each picks the cheapest eligible listing in its target zone
// (lowest property id on ties), falling back to every zone when the target
// zone has nothing and CrossZone is set.
func Match(book *Book, buyers []Buyer, opts MatchOptions) *Registry {
	ordered := append([]Buyer(nil), buyers...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	reg := newRegistry()
	var all []Listing
	for _, b := range ordered {
		if _, dup := reg.byBuyer[b.ID]; dup {
			continue
		}
		limit := priceLimit(b.MaxPrice, opts.Headroom)
		l, ok := cheapest(book.InZone(b.TargetZone), b.ID, limit)
		if !ok && opts.CrossZone {
			if all == nil {
				all = book.All()
			}
			l, ok = cheapest(all, b.ID, limit)
		}
		if ok {
			reg.add(l, b.ID)
		}
	}
	return reg
}

func priceLimit(maxPrice int64, headroom float64) int64 {
	if maxPrice <= 0 {
		return 0
	}
	return int64(math.Floor(float64(maxPrice) * (1 + headroom)))
}

func cheapest(listings []Listing, buyer agents.AgentID, limit int64) (Listing, bool) {
	var best Listing
	found := false
	for _, l := range listings {
		if l.SellerID == buyer || l.ListedPrice > limit {
			continue
		}
		if !found || l.ListedPrice < best.ListedPrice ||
			(l.ListedPrice == best.ListedPrice && l.PropertyID < best.PropertyID) {
			best, found = l, true
		}
	}
	return best, found
}
