package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/talgya/mini-market/internal/agents"
	"github.com/talgya/mini-market/internal/config"
	"github.com/talgya/mini-market/internal/engine"
	"github.com/talgya/mini-market/internal/llm"
	"github.com/talgya/mini-market/internal/logging"
	"github.com/talgya/mini-market/internal/oracle"
	"github.com/talgya/mini-market/internal/persistence"
	"github.com/talgya/mini-market/internal/world"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Advance the market by a number of months",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("months") {
				cfg.Simulation.Months, _ = cmd.Flags().GetInt("months")
			}
			if cmd.Flags().Changed("seed") {
				cfg.Simulation.Seed, _ = cmd.Flags().GetInt64("seed")
			}
			if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
				cfg.Persistence.Path = dbPath
			}

			slog.SetDefault(logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stderr))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runMarket(ctx, cfg)
		},
	}

	cmd.Flags().String("config", "", "YAML config file")
	cmd.Flags().Int("months", 0, "Months to simulate (default from config)")
	cmd.Flags().Int64("seed", 0, "Seed for a new world (ignored when resuming)")
	return cmd
}

// startState bundles the state a run starts from.
type startState struct {
	runID      string
	month      int
	zones      *world.Map
	agents     []*agents.Agent
	properties []*world.Property
	prevStats  []engine.ZoneStats
	lastStats  []engine.ZoneStats
	yearSales  int
	yearVolume int64
}

func runMarket(ctx context.Context, cfg *config.Config) error {
	if dir := filepath.Dir(cfg.Persistence.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := persistence.Open(cfg.Persistence.Path, persistence.RetryPolicy{
		MaxRetries: cfg.Persistence.MaxRetries,
		Delay:      cfg.Persistence.RetryDelay,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.Persistence.Path)

	has, err := db.HasWorldState()
	if err != nil {
		return fmt.Errorf("check world state: %w", err)
	}
	var st *startState
	if has {
		st, err = loadWorld(db, cfg)
	} else {
		st, err = generateWorld(ctx, db, cfg)
	}
	if err != nil {
		return err
	}

	o, err := newOracle(cfg)
	if err != nil {
		return err
	}
	slog.Info("decision oracle ready", "oracle", cfg.Oracle.String())

	sim, err := engine.NewSimulation(cfg, st.zones, st.agents, st.properties,
		oracle.NewClient(o, cfg.Oracle.Timeout, nil), db)
	if err != nil {
		return err
	}
	sim.RunID = st.runID
	sim.LastMonth = st.month
	sim.RestoreStats(st.prevStats, st.lastStats)
	sim.RestoreYear(st.yearSales, st.yearVolume)

	eng := engine.NewEngine(st.month)
	eng.OnMonth = sim.TickMonth
	eng.OnYear = sim.YearSummary

	slog.Info("market ready",
		"run_id", st.runID,
		"zones", len(st.zones.Zones),
		"agents", len(st.agents),
		"properties", len(st.properties),
		"listings", sim.Book.Len(),
		"start", engine.SimTime(st.month+1),
	)

	err = eng.Run(ctx, cfg.Simulation.Months)
	if errors.Is(err, context.Canceled) {
		slog.Info("run interrupted", "month", eng.Month)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("Simulated %d months (now %s). Database: %s\n",
		cfg.Simulation.Months, engine.SimTime(eng.Month), cfg.Persistence.Path)
	return nil
}

func generateWorld(ctx context.Context, db *persistence.DB, cfg *config.Config) (*startState, error) {
	slog.Info("no saved state found, generating new market", "seed", cfg.Simulation.Seed)

	gen := world.DefaultGenConfig()
	gen.Seed = cfg.Simulation.Seed
	gen.Grid = cfg.Simulation.ZoneGrid
	gen.Properties = cfg.Simulation.Properties
	m := world.GenerateZones(gen)
	props := world.GenerateProperties(m, gen)

	spawner := agents.NewSpawner(cfg.Simulation.Seed)
	pop := spawner.SpawnPopulation(cfg.Simulation.Agents, m)
	spawner.AssignOwnership(pop, props)

	for _, z := range m.Zones {
		slog.Debug("zone", "id", z.ID, "name", z.Name,
			"desirability", logging.Ratio(z.Desirability), "price_per_sqm", logging.Price(z.BasePricePerSqm))
	}

	runID := uuid.NewString()
	if err := db.SaveWorld(ctx, runID, cfg.Simulation.Seed, m, pop, props); err != nil {
		return nil, fmt.Errorf("initial save: %w", err)
	}
	return &startState{runID: runID, zones: m, agents: pop, properties: props}, nil
}

func loadWorld(db *persistence.DB, cfg *config.Config) (*startState, error) {
	slog.Info("found saved market state, loading...")

	m, err := db.LoadZones()
	if err != nil {
		return nil, err
	}
	props, err := db.LoadProperties()
	if err != nil {
		return nil, err
	}
	pop, err := db.LoadAgents()
	if err != nil {
		return nil, err
	}
	month, err := db.LastMonth()
	if err != nil {
		return nil, fmt.Errorf("read last month: %w", err)
	}

	// The stored seed wins so a resumed run draws from the same streams.
	if s, err := db.GetMeta(persistence.MetaSeed); err == nil && s != "" {
		if seed, err := strconv.ParseInt(s, 10, 64); err == nil {
			cfg.Simulation.Seed = seed
		}
	}
	runID, err := db.GetMeta(persistence.MetaRunID)
	if err != nil || runID == "" {
		runID = uuid.NewString()
	}

	st := &startState{runID: runID, month: month, zones: m, agents: pop, properties: props}
	if st.lastStats, err = db.LoadZoneStats(month); err != nil {
		return nil, fmt.Errorf("load zone stats: %w", err)
	}
	if st.prevStats, err = db.LoadZoneStats(month - 1); err != nil {
		return nil, fmt.Errorf("load zone stats: %w", err)
	}
	if st.yearSales, st.yearVolume, err = db.YearTotals(month); err != nil {
		return nil, err
	}

	slog.Info("market state restored",
		"run_id", runID,
		"agents", len(pop),
		"properties", len(props),
		"month", month,
		"sim_time", engine.SimTime(month),
		"year_sales", st.yearSales,
	)
	return st, nil
}

// newOracle picks the decision source named by the config.
func newOracle(cfg *config.Config) (oracle.Oracle, error) {
	if cfg.Oracle.Provider == "rules" {
		return oracle.NewRules(cfg.Simulation.Seed), nil
	}
	oc := cfg.Oracle
	if oc.APIKey == "" {
		switch oc.Provider {
		case "anthropic":
			oc.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case "openai":
			oc.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if oc.APIKey == "" {
		slog.Warn("no API key set for oracle provider, requests will fail and fall back to defaults",
			"provider", oc.Provider)
	}
	o, err := llm.FromConfig(oc)
	if err != nil {
		return nil, err
	}
	return o, nil
}
