// Package persistence provides SQLite-based market storage: append-only
// monthly logs plus a snapshot of agents and properties for resuming a run.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/mini-market/internal/agents"
	"github.com/talgya/mini-market/internal/engine"
	"github.com/talgya/mini-market/internal/world"
)

// Meta keys.
const (
	MetaRunID     = "run_id"
	MetaSeed      = "seed"
	MetaLastMonth = "last_month"
)

// RetryPolicy controls how busy-database errors are retried.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration // first wait, doubled on every retry
}

// DB wraps a SQLite connection for market persistence.
type DB struct {
	conn  *sqlx.DB
	retry RetryPolicy
}

// Open opens or creates a SQLite database at the given path. ":memory:" gives
// a private in-memory database.
func Open(path string, retry RetryPolicy) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer at a time; also keeps an in-memory database on one connection.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn, retry: retry}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS zones (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		row INTEGER NOT NULL,
		col INTEGER NOT NULL,
		desirability REAL NOT NULL,
		base_price_per_sqm INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS properties (
		id INTEGER PRIMARY KEY,
		zone_id INTEGER NOT NULL,
		quality INTEGER NOT NULL,
		area REAL NOT NULL,
		school_district INTEGER NOT NULL,
		owner_id INTEGER NOT NULL,
		status TEXT NOT NULL,
		listed_price INTEGER NOT NULL,
		min_price INTEGER NOT NULL,
		listing_month INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agents (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		cash INTEGER NOT NULL,
		monthly_income INTEGER NOT NULL,
		monthly_debt INTEGER NOT NULL,
		role TEXT NOT NULL,
		role_duration INTEGER NOT NULL,
		life_pressure TEXT NOT NULL,
		home_zone INTEGER NOT NULL,
		properties_json TEXT NOT NULL,
		preference_json TEXT
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		month INTEGER NOT NULL,
		property_id INTEGER NOT NULL,
		buyer_id INTEGER NOT NULL,
		seller_id INTEGER NOT NULL,
		price INTEGER NOT NULL,
		down_payment INTEGER NOT NULL,
		loan INTEGER NOT NULL,
		monthly_payment INTEGER NOT NULL,
		round_count INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS negotiations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		month INTEGER NOT NULL,
		property_id INTEGER NOT NULL,
		seller_id INTEGER NOT NULL,
		format TEXT NOT NULL,
		outcome TEXT NOT NULL,
		winner INTEGER NOT NULL,
		final_price INTEGER NOT NULL,
		round_count INTEGER NOT NULL,
		reason TEXT NOT NULL,
		buyers_json TEXT NOT NULL,
		rounds_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS role_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		month INTEGER NOT NULL,
		agent_id INTEGER NOT NULL,
		from_role TEXT NOT NULL,
		to_role TEXT NOT NULL,
		reason TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		month INTEGER NOT NULL,
		kind TEXT NOT NULL,
		subject INTEGER NOT NULL,
		payload TEXT NOT NULL,
		fallback INTEGER NOT NULL,
		note TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS zone_stats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		month INTEGER NOT NULL,
		zone_id INTEGER NOT NULL,
		listings INTEGER NOT NULL,
		buyers INTEGER NOT NULL,
		sales INTEGER NOT NULL,
		avg_price INTEGER NOT NULL,
		supply_demand_ratio REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_month ON transactions(month);
	CREATE INDEX IF NOT EXISTS idx_negotiations_month ON negotiations(month);
	CREATE INDEX IF NOT EXISTS idx_decisions_month ON decisions(month);
	CREATE INDEX IF NOT EXISTS idx_zone_stats_month ON zone_stats(month);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// isBusy reports whether err is SQLite lock contention worth retrying.
func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// withRetry runs fn, retrying busy errors with exponential backoff.
func (db *DB) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	delay := db.retry.Delay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !isBusy(err) || attempt >= db.retry.MaxRetries {
			return fmt.Errorf("%s: %w", op, err)
		}
		slog.Warn("database busy, retrying", "op", op, "attempt", attempt+1, "delay", delay)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// SaveWorld writes the initial world: zones, properties, agents and run
// metadata. Existing snapshot rows are replaced.
func (db *DB) SaveWorld(ctx context.Context, runID string, seed int64, m *world.Map, ag []*agents.Agent, props []*world.Property) error {
	slog.Info("saving initial world", "zones", len(m.Zones), "agents", len(ag), "properties", len(props))
	return db.withRetry(ctx, "save world", func(ctx context.Context) error {
		tx, err := db.conn.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, "DELETE FROM zones"); err != nil {
			return err
		}
		for _, z := range m.Zones {
			if _, err := tx.NamedExecContext(ctx, `INSERT INTO zones
				(id, name, row, col, desirability, base_price_per_sqm)
				VALUES (:id, :name, :row, :col, :desirability, :base_price_per_sqm)`, z); err != nil {
				return fmt.Errorf("insert zone %d: %w", z.ID, err)
			}
		}
		if err := saveAgents(ctx, tx, ag); err != nil {
			return err
		}
		if err := saveProperties(ctx, tx, props); err != nil {
			return err
		}
		for k, v := range map[string]string{
			MetaRunID:     runID,
			MetaSeed:      strconv.FormatInt(seed, 10),
			MetaLastMonth: "0",
		} {
			if err := setMeta(ctx, tx, k, v); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// SaveMonth appends the month's logs and replaces the state snapshot in one
// transaction.
func (db *DB) SaveMonth(ctx context.Context, rec *engine.MonthRecord) error {
	return db.withRetry(ctx, fmt.Sprintf("save month %d", rec.Month), func(ctx context.Context) error {
		tx, err := db.conn.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for _, t := range rec.Transactions {
			if _, err := tx.ExecContext(ctx, `INSERT INTO transactions
				(run_id, month, property_id, buyer_id, seller_id, price, down_payment, loan, monthly_payment, round_count)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				rec.RunID, t.Month, t.PropertyID, t.BuyerID, t.SellerID, t.Price,
				t.DownPayment, t.Loan, t.MonthlyPayment, t.RoundCount,
			); err != nil {
				return fmt.Errorf("insert transaction for property %d: %w", t.PropertyID, err)
			}
		}

		for _, s := range rec.Sessions {
			buyersJSON, _ := json.Marshal(s.Buyers)
			roundsJSON, _ := json.Marshal(s.Rounds)
			if _, err := tx.ExecContext(ctx, `INSERT INTO negotiations
				(run_id, month, property_id, seller_id, format, outcome, winner, final_price, round_count, reason, buyers_json, rounds_json)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				rec.RunID, s.Month, s.Listing.PropertyID, s.Listing.SellerID, string(s.Format), string(s.Outcome),
				s.Winner, s.FinalPrice, s.RoundCount, s.Reason, string(buyersJSON), string(roundsJSON),
			); err != nil {
				return fmt.Errorf("insert negotiation for property %d: %w", s.Listing.PropertyID, err)
			}
		}

		for _, e := range rec.RoleEvents {
			if _, err := tx.ExecContext(ctx, `INSERT INTO role_events
				(run_id, month, agent_id, from_role, to_role, reason) VALUES (?, ?, ?, ?, ?, ?)`,
				rec.RunID, e.Month, e.AgentID, e.From, e.To, e.Reason,
			); err != nil {
				return err
			}
		}

		for _, d := range rec.Decisions {
			if _, err := tx.ExecContext(ctx, `INSERT INTO decisions
				(run_id, month, kind, subject, payload, fallback, note) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				rec.RunID, d.Month, string(d.Kind), d.Subject, d.Payload, d.Fallback, d.Note,
			); err != nil {
				return err
			}
		}

		for _, z := range rec.ZoneStats {
			if _, err := tx.ExecContext(ctx, `INSERT INTO zone_stats
				(run_id, month, zone_id, listings, buyers, sales, avg_price, supply_demand_ratio)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				rec.RunID, z.Month, z.Zone, z.Listings, z.Buyers, z.Sales, z.AvgPrice, z.SupplyDemandRatio,
			); err != nil {
				return err
			}
		}

		if err := saveAgents(ctx, tx, rec.Agents); err != nil {
			return err
		}
		if err := saveProperties(ctx, tx, rec.Properties); err != nil {
			return err
		}
		if err := setMeta(ctx, tx, MetaLastMonth, strconv.Itoa(rec.Month)); err != nil {
			return err
		}
		return tx.Commit()
	})
}

type agentRow struct {
	ID             uint64         `db:"id"`
	Name           string         `db:"name"`
	Cash           int64          `db:"cash"`
	MonthlyIncome  int64          `db:"monthly_income"`
	MonthlyDebt    int64          `db:"monthly_debt"`
	Role           string         `db:"role"`
	RoleDuration   int            `db:"role_duration"`
	LifePressure   string         `db:"life_pressure"`
	HomeZone       uint16         `db:"home_zone"`
	PropertiesJSON string         `db:"properties_json"`
	PreferenceJSON sql.NullString `db:"preference_json"`
}

// saveAgents replaces the agent snapshot. A nil slice leaves it untouched.
func saveAgents(ctx context.Context, tx *sqlx.Tx, ag []*agents.Agent) error {
	if ag == nil {
		return nil
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM agents"); err != nil {
		return err
	}

	stmt, err := tx.PreparexContext(ctx, `INSERT INTO agents
		(id, name, cash, monthly_income, monthly_debt, role, role_duration, life_pressure,
		 home_zone, properties_json, preference_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range ag {
		propsJSON, _ := json.Marshal(a.Properties)
		var pref sql.NullString
		if a.Preference != nil {
			b, _ := json.Marshal(a.Preference)
			pref = sql.NullString{String: string(b), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			a.ID, a.Name, a.Cash, a.MonthlyIncome, a.MonthlyDebt,
			a.Role.String(), a.RoleDuration, string(a.LifePressure),
			a.HomeZone, string(propsJSON), pref,
		); err != nil {
			return fmt.Errorf("insert agent %d: %w", a.ID, err)
		}
	}
	return nil
}

// saveProperties replaces the property snapshot. A nil slice leaves it
// untouched.
func saveProperties(ctx context.Context, tx *sqlx.Tx, props []*world.Property) error {
	if props == nil {
		return nil
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM properties"); err != nil {
		return err
	}

	stmt, err := tx.PrepareNamedContext(ctx, `INSERT INTO properties
		(id, zone_id, quality, area, school_district, owner_id, status, listed_price, min_price, listing_month)
		VALUES (:id, :zone_id, :quality, :area, :school_district, :owner_id, :status, :listed_price, :min_price, :listing_month)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range props {
		if _, err := stmt.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("insert property %d: %w", p.ID, err)
		}
	}
	return nil
}

func setMeta(ctx context.Context, tx *sqlx.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx, "INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)", key, value)
	return err
}

// SetMeta stores a key-value pair in run metadata.
func (db *DB) SetMeta(key, value string) error {
	_, err := db.conn.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)", key, value)
	return err
}

// GetMeta retrieves a metadata value. Missing keys return "" and no error.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// HasWorldState reports whether a world has been saved.
func (db *DB) HasWorldState() (bool, error) {
	var n int
	if err := db.conn.Get(&n, "SELECT COUNT(*) FROM zones"); err != nil {
		return false, err
	}
	return n > 0, nil
}

// LastMonth returns the last persisted month, 0 for a fresh world.
func (db *DB) LastMonth() (int, error) {
	v, err := db.GetMeta(MetaLastMonth)
	if err != nil || v == "" {
		return 0, err
	}
	return strconv.Atoi(v)
}

// LoadZones reads the zone table into a Map.
func (db *DB) LoadZones() (*world.Map, error) {
	var zones []*world.Zone
	if err := db.conn.Select(&zones, `SELECT id, name, row, col, desirability, base_price_per_sqm
		FROM zones ORDER BY id`); err != nil {
		return nil, fmt.Errorf("load zones: %w", err)
	}
	return world.NewMap(zones), nil
}

// LoadProperties reads the property snapshot in id order.
func (db *DB) LoadProperties() ([]*world.Property, error) {
	var props []*world.Property
	if err := db.conn.Select(&props, `SELECT id, zone_id, quality, area, school_district, owner_id,
		status, listed_price, min_price, listing_month FROM properties ORDER BY id`); err != nil {
		return nil, fmt.Errorf("load properties: %w", err)
	}
	return props, nil
}

const agentColumns = `id, name, cash, monthly_income, monthly_debt, role,
	role_duration, life_pressure, home_zone, properties_json, preference_json`

// LoadAgents reads the agent snapshot in id order.
func (db *DB) LoadAgents() ([]*agents.Agent, error) {
	var rows []agentRow
	if err := db.conn.Select(&rows, "SELECT "+agentColumns+" FROM agents ORDER BY id"); err != nil {
		return nil, fmt.Errorf("load agents: %w", err)
	}

	out := make([]*agents.Agent, 0, len(rows))
	for _, r := range rows {
		a, err := r.agent()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// LoadAgent reads one agent from the snapshot. A missing agent returns
// nil and no error.
func (db *DB) LoadAgent(ctx context.Context, id uint64) (*agents.Agent, error) {
	var r agentRow
	err := db.conn.GetContext(ctx, &r, "SELECT "+agentColumns+" FROM agents WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load agent %d: %w", id, err)
	}
	return r.agent()
}

func (r agentRow) agent() (*agents.Agent, error) {
	role, ok := agents.ParseRole(r.Role)
	if !ok {
		return nil, fmt.Errorf("agent %d: unknown role %q", r.ID, r.Role)
	}
	a := &agents.Agent{
		ID:            agents.AgentID(r.ID),
		Name:          r.Name,
		Cash:          r.Cash,
		MonthlyIncome: r.MonthlyIncome,
		MonthlyDebt:   r.MonthlyDebt,
		Role:          role,
		RoleDuration:  r.RoleDuration,
		LifePressure:  agents.LifePressure(r.LifePressure),
		HomeZone:      world.ZoneID(r.HomeZone),
	}
	if err := json.Unmarshal([]byte(r.PropertiesJSON), &a.Properties); err != nil {
		return nil, fmt.Errorf("agent %d properties: %w", r.ID, err)
	}
	if r.PreferenceJSON.Valid {
		a.Preference = &agents.BuyerPreference{}
		if err := json.Unmarshal([]byte(r.PreferenceJSON.String), a.Preference); err != nil {
			return nil, fmt.Errorf("agent %d preference: %w", r.ID, err)
		}
	}
	return a, nil
}

// LoadZoneStats returns the zone statistics recorded for month.
func (db *DB) LoadZoneStats(month int) ([]engine.ZoneStats, error) {
	var stats []engine.ZoneStats
	err := db.conn.Select(&stats, `SELECT month, zone_id, listings, buyers, sales, avg_price, supply_demand_ratio
		FROM zone_stats WHERE month = ? ORDER BY zone_id`, month)
	return stats, err
}

// YearTotals returns the sales count and volume recorded since the last
// year boundary up to and including month.
func (db *DB) YearTotals(month int) (int, int64, error) {
	var t struct {
		Sales  int   `db:"sales"`
		Volume int64 `db:"volume"`
	}
	start := month - month%engine.MonthsPerYear
	err := db.conn.Get(&t, `SELECT COUNT(*) AS sales, COALESCE(SUM(price), 0) AS volume
		FROM transactions WHERE month > ? AND month <= ?`, start, month)
	if err != nil {
		return 0, 0, fmt.Errorf("year totals: %w", err)
	}
	return t.Sales, t.Volume, nil
}
