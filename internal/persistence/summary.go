package persistence

import (
	"context"
	"fmt"

	"github.com/talgya/mini-market/internal/engine"
	"github.com/talgya/mini-market/internal/settlement"
)

// Summary is the run overview printed by the inspect command.
type Summary struct {
	RunID        string
	LastMonth    int
	Agents       int   `db:"agents"`
	Properties   int   `db:"properties"`
	ForSale      int   `db:"for_sale"`
	Sales        int   `db:"sales"`
	Volume       int64 `db:"volume"`
	Negotiations int   `db:"negotiations"`
	Agreed       int   `db:"agreed"`
	Decisions    int   `db:"decisions"`
	Fallbacks    int   `db:"fallbacks"`
	Corrections  int   `db:"corrections"`
}

// Summary gathers headline counts across the stored run.
func (db *DB) Summary(ctx context.Context) (Summary, error) {
	var s Summary
	err := db.conn.GetContext(ctx, &s, `SELECT
		(SELECT COUNT(*) FROM agents) AS agents,
		(SELECT COUNT(*) FROM properties) AS properties,
		(SELECT COUNT(*) FROM properties WHERE status = 'for_sale') AS for_sale,
		(SELECT COUNT(*) FROM transactions) AS sales,
		(SELECT COALESCE(SUM(price), 0) FROM transactions) AS volume,
		(SELECT COUNT(*) FROM negotiations) AS negotiations,
		(SELECT COUNT(*) FROM negotiations WHERE outcome = 'success') AS agreed,
		(SELECT COUNT(*) FROM decisions WHERE payload != '') AS decisions,
		(SELECT COUNT(*) FROM decisions WHERE fallback = 1) AS fallbacks,
		(SELECT COUNT(*) FROM decisions WHERE payload = '' AND note != '') AS corrections`)
	if err != nil {
		return s, fmt.Errorf("summary: %w", err)
	}
	if s.RunID, err = db.GetMeta(MetaRunID); err != nil {
		return s, err
	}
	if s.LastMonth, err = db.LastMonth(); err != nil {
		return s, err
	}
	return s, nil
}

// RecentTransactions returns the most recent limit sales, newest first.
func (db *DB) RecentTransactions(ctx context.Context, limit int) ([]settlement.Transaction, error) {
	var txs []settlement.Transaction
	err := db.conn.SelectContext(ctx, &txs, `SELECT month, property_id, buyer_id, seller_id, price,
		down_payment, loan, monthly_payment, round_count
		FROM transactions ORDER BY id DESC LIMIT ?`, limit)
	return txs, err
}

// RoleEvents returns the role transitions recorded for month.
func (db *DB) RoleEvents(ctx context.Context, month int) ([]engine.RoleEvent, error) {
	var events []engine.RoleEvent
	err := db.conn.SelectContext(ctx, &events, `SELECT month, agent_id, from_role, to_role, reason
		FROM role_events WHERE month = ? ORDER BY id`, month)
	return events, err
}

// NegotiationRow is a stored negotiation with its buyers and rounds still
// JSON-encoded.
type NegotiationRow struct {
	Month      int    `db:"month" json:"month"`
	PropertyID uint64 `db:"property_id" json:"property_id"`
	SellerID   uint64 `db:"seller_id" json:"seller_id"`
	Format     string `db:"format" json:"format"`
	Outcome    string `db:"outcome" json:"outcome"`
	Winner     uint64 `db:"winner" json:"winner,omitempty"`
	FinalPrice int64  `db:"final_price" json:"final_price,omitempty"`
	RoundCount int    `db:"round_count" json:"round_count"`
	Reason     string `db:"reason" json:"reason,omitempty"`
	Buyers     string `db:"buyers_json" json:"-"`
	Rounds     string `db:"rounds_json" json:"-"`
}

// Negotiations returns the sessions held in month, optionally limited to one
// property (pid 0 means all).
func (db *DB) Negotiations(ctx context.Context, month int, pid uint64) ([]NegotiationRow, error) {
	var rows []NegotiationRow
	err := db.conn.SelectContext(ctx, &rows, `SELECT month, property_id, seller_id, format, outcome,
		winner, final_price, round_count, reason, buyers_json, rounds_json
		FROM negotiations WHERE month = ? AND (? = 0 OR property_id = ?) ORDER BY id`, month, pid, pid)
	return rows, err
}

// AgentTransactions returns the sales an agent took part in, oldest first.
func (db *DB) AgentTransactions(ctx context.Context, id uint64) ([]settlement.Transaction, error) {
	var txs []settlement.Transaction
	err := db.conn.SelectContext(ctx, &txs, `SELECT month, property_id, buyer_id, seller_id, price,
		down_payment, loan, monthly_payment, round_count
		FROM transactions WHERE buyer_id = ? OR seller_id = ? ORDER BY id`, id, id)
	return txs, err
}
