// Package market holds the for-sale side of the simulation: the listing book,
// the buyer-to-listing matching engine and post-failure price discovery.
package market

import (
	"sort"

	"github.com/talgya/mini-market/internal/agents"
	"github.com/talgya/mini-market/internal/world"
)

// Listing is the for-sale projection of a property.
type Listing struct {
	PropertyID   world.PropertyID `json:"property_id"`
	SellerID     agents.AgentID   `json:"seller_id"`
	Zone         world.ZoneID     `json:"zone"`
	ListedPrice  int64            `json:"listed_price"`
	MinPrice     int64            `json:"min_price"`
	ListingMonth int              `json:"listing_month"`
}

// FromProperty projects a for-sale property into a Listing.
func FromProperty(p *world.Property) Listing {
	return Listing{
		PropertyID:   p.ID,
		SellerID:     agents.AgentID(p.OwnerID),
		Zone:         p.Zone,
		ListedPrice:  p.ListedPrice,
		MinPrice:     p.MinPrice,
		ListingMonth: p.ListingMonth,
	}
}

// MonthsListed returns the listing's age at month.
func (l Listing) MonthsListed(month int) int {
	if month < l.ListingMonth {
		return 0
	}
	return month - l.ListingMonth
}

// Book indexes live listings by property and by zone. Iteration is always in
// ascending property-id order.
type Book struct {
	byID   map[world.PropertyID]Listing
	byZone map[world.ZoneID][]world.PropertyID // sorted
}

// NewBook creates an empty book.
func NewBook() *Book {
	return &Book{
		byID:   make(map[world.PropertyID]Listing),
		byZone: make(map[world.ZoneID][]world.PropertyID),
	}
}

// BookFromProperties builds a book from every for-sale property.
func BookFromProperties(props []*world.Property) *Book {
	b := NewBook()
	for _, p := range props {
		if p.ForSale() {
			b.Put(FromProperty(p))
		}
	}
	return b
}

// Put inserts or replaces a listing.
func (b *Book) Put(l Listing) {
	if old, ok := b.byID[l.PropertyID]; ok {
		if old.Zone == l.Zone {
			b.byID[l.PropertyID] = l
			return
		}
		b.removeFromZone(old.Zone, l.PropertyID)
	}
	ids := b.byZone[l.Zone]
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= l.PropertyID })
	ids = append(ids, 0)
	copy(ids[i+1:], ids[i:])
	ids[i] = l.PropertyID
	b.byZone[l.Zone] = ids
	b.byID[l.PropertyID] = l
}

// Remove deletes the listing for pid. Returns false if absent.
func (b *Book) Remove(pid world.PropertyID) bool {
	l, ok := b.byID[pid]
	if !ok {
		return false
	}
	delete(b.byID, pid)
	b.removeFromZone(l.Zone, pid)
	return true
}

func (b *Book) removeFromZone(z world.ZoneID, pid world.PropertyID) {
	ids := b.byZone[z]
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= pid })
	if i < len(ids) && ids[i] == pid {
		b.byZone[z] = append(ids[:i], ids[i+1:]...)
	}
}

// Get returns the listing for pid.
func (b *Book) Get(pid world.PropertyID) (Listing, bool) {
	l, ok := b.byID[pid]
	return l, ok
}

// Len returns the number of live listings.
func (b *Book) Len() int { return len(b.byID) }

// InZone returns the listings in zone z.
func (b *Book) InZone(z world.ZoneID) []Listing {
	ids := b.byZone[z]
	out := make([]Listing, len(ids))
	for i, id := range ids {
		out[i] = b.byID[id]
	}
	return out
}

// CountInZone returns the number of listings in zone z.
func (b *Book) CountInZone(z world.ZoneID) int { return len(b.byZone[z]) }

// All returns every listing.
func (b *Book) All() []Listing {
	out := make([]Listing, 0, len(b.byID))
	for _, l := range b.byID {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PropertyID < out[j].PropertyID })
	return out
}

// BySeller returns the listings owned by seller.
func (b *Book) BySeller(seller agents.AgentID) []Listing {
	var out []Listing
	for _, l := range b.All() {
		if l.SellerID == seller {
			out = append(out, l)
		}
	}
	return out
}

// HasSeller reports whether seller has any live listing.
func (b *Book) HasSeller(seller agents.AgentID) bool {
	for _, l := range b.byID {
		if l.SellerID == seller {
			return true
		}
	}
	return false
}
