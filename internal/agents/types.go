// Package agents provides the household agent data model and the seeded
// population spawner.
package agents

import (
	"sort"

	"github.com/talgya/mini-market/internal/finance"
	"github.com/talgya/mini-market/internal/world"
)

// AgentID is a unique identifier for an agent. IDs are dense and start at 1.
type AgentID uint64

// Role is an agent's current market role. Roles are mutually exclusive.
type Role uint8

const (
	RoleObserver    Role = iota // not in the market
	RoleBuyer                   // searching to buy
	RoleSeller                  // has at least one listing
	RoleBuyerSeller             // selling one home and buying another
)

var roleNames = [...]string{"OBSERVER", "BUYER", "SELLER", "BUYER_SELLER"}

func (r Role) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return "UNKNOWN"
}

// ParseRole maps a role name (as produced by String) to a Role.
func ParseRole(s string) (Role, bool) {
	for i, n := range roleNames {
		if n == s {
			return Role(i), true
		}
	}
	return RoleObserver, false
}

// Buys reports whether the role implies buying.
func (r Role) Buys() bool { return r == RoleBuyer || r == RoleBuyerSeller }

// Sells reports whether the role implies selling.
func (r Role) Sells() bool { return r == RoleSeller || r == RoleBuyerSeller }

// LifePressure shapes how long an agent keeps searching before reconsidering.
type LifePressure string

const (
	PressureUrgent        LifePressure = "urgent"
	PressurePatient       LifePressure = "patient"
	PressureOpportunistic LifePressure = "opportunistic"
)

// ExitDelay is the number of extra months an agent waits before the exit
// check starts. Urgent movers hang on longest; opportunists give up first.
func (p LifePressure) ExitDelay() int {
	switch p {
	case PressureUrgent:
		return 3
	case PressurePatient:
		return 1
	default:
		return 0
	}
}

// BuyerPreference is what a buying agent is looking for.
type BuyerPreference struct {
	TargetZone       world.ZoneID `json:"target_zone"`
	MaxPrice         int64        `json:"max_price"`
	Trigger          string       `json:"trigger,omitempty"`
	Urgency          string       `json:"urgency,omitempty"`
	PriceExpectation string       `json:"price_expectation,omitempty"`
}

// Agent is a household participating (or not) in the housing market.
type Agent struct {
	ID   AgentID `json:"id"`
	Name string  `json:"name"`

	// Financial snapshot
	Cash          int64 `json:"cash"`
	MonthlyIncome int64 `json:"monthly_income"`
	MonthlyDebt   int64 `json:"monthly_debt"` // existing debt service

	// Market lifecycle
	Role         Role         `json:"role"`
	RoleDuration int          `json:"role_duration"` // months in current non-observer role
	LifePressure LifePressure `json:"life_pressure"`

	HomeZone   world.ZoneID       `json:"home_zone"`
	Properties []world.PropertyID `json:"properties"` // ascending

	Preference *BuyerPreference `json:"preference,omitempty"` // set while buying
}

// IsBuying reports whether the agent is an active buyer.
func (a *Agent) IsBuying() bool { return a.Role.Buys() }

// IsSelling reports whether the agent is an active seller.
func (a *Agent) IsSelling() bool { return a.Role.Sells() }

// PropertyCount returns the number of owned properties.
func (a *Agent) PropertyCount() int { return len(a.Properties) }

// Owns reports whether the agent owns pid.
func (a *Agent) Owns(pid world.PropertyID) bool {
	i := sort.Search(len(a.Properties), func(i int) bool { return a.Properties[i] >= pid })
	return i < len(a.Properties) && a.Properties[i] == pid
}

// AddProperty records ownership of pid, keeping the set sorted.
func (a *Agent) AddProperty(pid world.PropertyID) {
	i := sort.Search(len(a.Properties), func(i int) bool { return a.Properties[i] >= pid })
	if i < len(a.Properties) && a.Properties[i] == pid {
		return
	}
	a.Properties = append(a.Properties, 0)
	copy(a.Properties[i+1:], a.Properties[i:])
	a.Properties[i] = pid
}

// RemoveProperty drops pid from the owned set. Returns false if not owned.
func (a *Agent) RemoveProperty(pid world.PropertyID) bool {
	i := sort.Search(len(a.Properties), func(i int) bool { return a.Properties[i] >= pid })
	if i >= len(a.Properties) || a.Properties[i] != pid {
		return false
	}
	a.Properties = append(a.Properties[:i], a.Properties[i+1:]...)
	return true
}

// SetRole moves the agent into role and restarts the role clock. Leaving a
// buying role clears the buyer preference.
func (a *Agent) SetRole(role Role) {
	if a.Role == role {
		return
	}
	a.Role = role
	a.RoleDuration = 0
	if !role.Buys() {
		a.Preference = nil
	}
}

// Borrower returns the agent's financial snapshot for underwriting.
func (a *Agent) Borrower() finance.Borrower {
	return finance.Borrower{
		Cash:          a.Cash,
		MonthlyIncome: a.MonthlyIncome,
		MonthlyDebt:   a.MonthlyDebt,
	}
}

// ResetToObserver returns the agent to the idle pool, keeping a seller role
// only while it still has something listed.
func (a *Agent) ResetToObserver(stillListing bool) {
	if stillListing && a.PropertyCount() > 0 {
		a.SetRole(RoleSeller)
		return
	}
	a.SetRole(RoleObserver)
}
