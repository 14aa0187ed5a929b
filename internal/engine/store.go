package engine

import (
	"context"

	"github.com/talgya/mini-market/internal/agents"
	"github.com/talgya/mini-market/internal/negotiation"
	"github.com/talgya/mini-market/internal/oracle"
	"github.com/talgya/mini-market/internal/settlement"
	"github.com/talgya/mini-market/internal/world"
)

// MonthRecord is everything a month produces: append-only logs plus the
// end-of-month state snapshot.
type MonthRecord struct {
	RunID        string
	Month        int
	Transactions []settlement.Transaction
	Sessions     []*negotiation.Session
	RoleEvents   []RoleEvent
	Decisions    []oracle.Entry
	ZoneStats    []ZoneStats
	Agents       []*agents.Agent
	Properties   []*world.Property
}

// Store persists month records. A failed save aborts that month's write only.
type Store interface {
	SaveMonth(ctx context.Context, rec *MonthRecord) error
}
