package world

import "math"

// PropertyID identifies a property. IDs are dense and start at 1.
type PropertyID uint64

// QualityTier grades a property's build quality.
type QualityTier uint8

const (
	QualityBasic    QualityTier = 1
	QualityStandard QualityTier = 2
	QualityPremium  QualityTier = 3
)

// Multiplier scales the zone price per m² for this tier.
func (q QualityTier) Multiplier() float64 {
	switch q {
	case QualityBasic:
		return 0.85
	case QualityPremium:
		return 1.30
	default:
		return 1.0
	}
}

// SchoolPremium is the valuation uplift for school-district properties.
const SchoolPremium = 1.15

// Status is the market status of a property.
type Status string

const (
	StatusOffMarket Status = "off_market"
	StatusForSale   Status = "for_sale"
)

// Property is a dwelling. Zone, Quality, Area and SchoolDistrict never change
// after generation; the remaining fields are market state.
type Property struct {
	ID             PropertyID  `json:"id" db:"id"`
	Zone           ZoneID      `json:"zone" db:"zone_id"`
	Quality        QualityTier `json:"quality" db:"quality"`
	Area           float64     `json:"area" db:"area"` // m²
	SchoolDistrict bool        `json:"school_district" db:"school_district"`

	// OwnerID is the owning agent's ID, 0 when unowned.
	OwnerID      uint64 `json:"owner_id" db:"owner_id"`
	Status       Status `json:"status" db:"status"`
	ListedPrice  int64  `json:"listed_price" db:"listed_price"`
	MinPrice     int64  `json:"min_price" db:"min_price"`
	ListingMonth int    `json:"listing_month" db:"listing_month"`
}

// Valuation is the reference market value of p in zone z.
func (p *Property) Valuation(z *Zone) int64 {
	if z == nil {
		return 0
	}
	v := float64(z.BasePricePerSqm) * p.Area * p.Quality.Multiplier()
	if p.SchoolDistrict {
		v *= SchoolPremium
	}
	return int64(math.Round(v))
}

// ForSale reports whether p is listed.
func (p *Property) ForSale() bool {
	return p.Status == StatusForSale
}

// MonthsListed is the listing age at month, 0 when not listed.
func (p *Property) MonthsListed(month int) int {
	if !p.ForSale() || month < p.ListingMonth {
		return 0
	}
	return month - p.ListingMonth
}

// List puts p on the market. The floor never exceeds the listed price.
func (p *Property) List(price, floor int64, month int) {
	if floor > price {
		floor = price
	}
	p.Status = StatusForSale
	p.ListedPrice = price
	p.MinPrice = floor
	p.ListingMonth = month
}

// Reprice changes the listed price, never going below the floor.
func (p *Property) Reprice(price int64) {
	if price < p.MinPrice {
		price = p.MinPrice
	}
	p.ListedPrice = price
}

// Withdraw takes p off the market without changing ownership.
func (p *Property) Withdraw() {
	p.Status = StatusOffMarket
	p.ListedPrice = 0
	p.MinPrice = 0
	p.ListingMonth = 0
}

// Transfer hands p to a new owner and takes it off the market.
func (p *Property) Transfer(newOwner uint64) {
	p.OwnerID = newOwner
	p.Withdraw()
}
