// Package negotiation runs the per-listing negotiation protocols. A session
// works on value snapshots of the listing and its buyers and only produces an
// outcome; ownership and cash are changed later by settlement.
package negotiation

import (
	"github.com/talgya/mini-market/internal/agents"
	"github.com/talgya/mini-market/internal/market"
	"github.com/talgya/mini-market/internal/oracle"
)

// Format is the sale mechanism chosen for a session.
type Format string

const (
	FormatClassic Format = oracle.FormatClassic
	FormatBatch   Format = oracle.FormatBatch
	FormatFlash   Format = oracle.FormatFlash
)

// Outcome is the terminal state of a session.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeTimeout Outcome = "timeout"
)

const (
	PartyBuyer  = "buyer"
	PartySeller = "seller"
)

// Round is one recorded action.
type Round struct {
	Number    int            `json:"round"`
	Party     string         `json:"party"`
	BuyerID   agents.AgentID `json:"buyer_id,omitempty"`
	Action    string         `json:"action"`
	Price     int64          `json:"price,omitempty"`
	Rationale string         `json:"rationale,omitempty"`
	Fallback  bool           `json:"fallback,omitempty"`
}

// Participant is a buyer's snapshot for the session.
type Participant struct {
	ID       agents.AgentID `json:"id"`
	MaxPrice int64          `json:"max_price"`
}

// Session is the full record of one negotiation.
type Session struct {
	Month      int            `json:"month"`
	Listing    market.Listing `json:"listing"`
	Buyers     []Participant  `json:"buyers"`
	Format     Format         `json:"format"`
	Rounds     []Round        `json:"rounds"`
	Outcome    Outcome        `json:"outcome"`
	Winner     agents.AgentID `json:"winner,omitempty"`
	FinalPrice int64          `json:"final_price,omitempty"`
	RoundCount int            `json:"round_count"`
	Reason     string         `json:"reason,omitempty"`
}

// Succeeded reports whether the session reached agreement.
func (s *Session) Succeeded() bool { return s.Outcome == OutcomeSuccess }

// Fail marks an agreed session as failed, as settlement does when the
// winner cannot close.
func (s *Session) Fail(reason string) {
	s.Outcome = OutcomeFailed
	s.Reason = reason
}

func (s *Session) record(r Round) {
	s.Rounds = append(s.Rounds, r)
}

func (s *Session) finish(o Outcome, rounds int, reason string) {
	s.Outcome = o
	s.RoundCount = rounds
	s.Reason = reason
}

func (s *Session) win(buyer agents.AgentID, price int64, rounds int, reason string) {
	s.Winner = buyer
	s.FinalPrice = price
	s.finish(OutcomeSuccess, rounds, reason)
}

// history converts the round log into the oracle's view.
func (s *Session) history() []oracle.Move {
	out := make([]oracle.Move, len(s.Rounds))
	for i, r := range s.Rounds {
		out[i] = oracle.Move{Round: r.Number, Party: r.Party, Action: r.Action, Price: r.Price}
	}
	return out
}
