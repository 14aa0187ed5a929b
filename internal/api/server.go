// Package api serves a stored market run over HTTP. All endpoints are
// read-only GETs backed by the persistence layer, so the API can run next
// to (or after) a simulation without touching live state.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/mini-market/internal/agents"
	"github.com/talgya/mini-market/internal/engine"
	"github.com/talgya/mini-market/internal/negotiation"
	"github.com/talgya/mini-market/internal/persistence"
	"github.com/talgya/mini-market/internal/settlement"
	"github.com/talgya/mini-market/internal/world"
)

// Reader is the subset of persistence.DB the API needs.
type Reader interface {
	Summary(ctx context.Context) (persistence.Summary, error)
	LoadZones() (*world.Map, error)
	LoadZoneStats(month int) ([]engine.ZoneStats, error)
	RecentTransactions(ctx context.Context, limit int) ([]settlement.Transaction, error)
	AgentTransactions(ctx context.Context, id uint64) ([]settlement.Transaction, error)
	LoadAgent(ctx context.Context, id uint64) (*agents.Agent, error)
	RoleEvents(ctx context.Context, month int) ([]engine.RoleEvent, error)
	Negotiations(ctx context.Context, month int, pid uint64) ([]persistence.NegotiationRow, error)
}

// Server serves market state over HTTP.
type Server struct {
	DB        Reader
	Port      int
	RatePerIP int // requests per minute per client; 0 disables limiting
}

// Handler builds the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/zones", s.handleZones)
	mux.HandleFunc("GET /api/v1/transactions", s.handleTransactions)
	mux.HandleFunc("GET /api/v1/negotiations", s.handleNegotiations)
	mux.HandleFunc("GET /api/v1/role_events", s.handleRoleEvents)
	mux.HandleFunc("GET /api/v1/agent/{id}", s.handleAgent)

	var h http.Handler = mux
	if s.RatePerIP > 0 {
		h = RateLimitMiddleware(NewRateLimiter(s.RatePerIP, s.RatePerIP/6+1), h)
	}
	return corsMiddleware(h)
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", srv.Addr, "rate_per_ip", s.RatePerIP)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		slog.Info("HTTP API stopping")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list of extra allowed origins.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sum, err := s.DB.Summary(r.Context())
	if err != nil {
		serverError(w, err)
		return
	}
	var avg int64
	if sum.Sales > 0 {
		avg = sum.Volume / int64(sum.Sales)
	}
	writeJSON(w, map[string]any{
		"run_id":       sum.RunID,
		"month":        sum.LastMonth,
		"sim_time":     engine.SimTime(sum.LastMonth),
		"agents":       sum.Agents,
		"properties":   sum.Properties,
		"for_sale":     sum.ForSale,
		"sales":        sum.Sales,
		"volume":       sum.Volume,
		"avg_price":    avg,
		"negotiations": sum.Negotiations,
		"agreed":       sum.Agreed,
		"decisions":    sum.Decisions,
		"fallbacks":    sum.Fallbacks,
		"corrections":  sum.Corrections,
	})
}

// monthParam reads ?month=, defaulting to the last stored month.
func (s *Server) monthParam(r *http.Request) (int, error) {
	if v := r.URL.Query().Get("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 0 {
			return 0, fmt.Errorf("bad month %q", v)
		}
		return m, nil
	}
	sum, err := s.DB.Summary(r.Context())
	if err != nil {
		return 0, err
	}
	return sum.LastMonth, nil
}

func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	month, err := s.monthParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	m, err := s.DB.LoadZones()
	if err != nil {
		serverError(w, err)
		return
	}
	stats, err := s.DB.LoadZoneStats(month)
	if err != nil {
		serverError(w, err)
		return
	}
	byZone := make(map[world.ZoneID]engine.ZoneStats, len(stats))
	for _, z := range stats {
		byZone[z.Zone] = z
	}

	type zoneSummary struct {
		*world.Zone
		Stats *engine.ZoneStats `json:"stats,omitempty"`
	}
	result := make([]zoneSummary, 0, len(m.Zones))
	for _, z := range m.Zones {
		zs := zoneSummary{Zone: z}
		if st, ok := byZone[z.ID]; ok {
			zs.Stats = &st
		}
		result = append(result, zs)
	}
	writeJSON(w, result)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, fmt.Sprintf("bad limit %q", v), http.StatusBadRequest)
			return
		}
		limit = min(n, 500)
	}
	txs, err := s.DB.RecentTransactions(r.Context(), limit)
	if err != nil {
		serverError(w, err)
		return
	}
	writeJSON(w, nonNil(txs))
}

func (s *Server) handleNegotiations(w http.ResponseWriter, r *http.Request) {
	month, err := s.monthParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var pid uint64
	if v := r.URL.Query().Get("property"); v != "" {
		if pid, err = strconv.ParseUint(v, 10, 64); err != nil {
			http.Error(w, fmt.Sprintf("bad property %q", v), http.StatusBadRequest)
			return
		}
	}
	rows, err := s.DB.Negotiations(r.Context(), month, pid)
	if err != nil {
		serverError(w, err)
		return
	}

	type negotiationDetail struct {
		persistence.NegotiationRow
		Buyers []negotiation.Participant `json:"buyers"`
		Rounds []negotiation.Round       `json:"rounds"`
	}
	result := make([]negotiationDetail, 0, len(rows))
	for _, row := range rows {
		d := negotiationDetail{NegotiationRow: row}
		if err := json.Unmarshal([]byte(row.Buyers), &d.Buyers); err != nil {
			serverError(w, fmt.Errorf("negotiation for property %d: %w", row.PropertyID, err))
			return
		}
		if err := json.Unmarshal([]byte(row.Rounds), &d.Rounds); err != nil {
			serverError(w, fmt.Errorf("negotiation for property %d: %w", row.PropertyID, err))
			return
		}
		result = append(result, d)
	}
	writeJSON(w, result)
}

func (s *Server) handleRoleEvents(w http.ResponseWriter, r *http.Request) {
	month, err := s.monthParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	events, err := s.DB.RoleEvents(r.Context(), month)
	if err != nil {
		serverError(w, err)
		return
	}
	writeJSON(w, nonNil(events))
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid agent ID", http.StatusBadRequest)
		return
	}
	a, err := s.DB.LoadAgent(r.Context(), id)
	if err != nil {
		serverError(w, err)
		return
	}
	if a == nil {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}
	txs, err := s.DB.AgentTransactions(r.Context(), id)
	if err != nil {
		serverError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"agent":        a,
		"role":         a.Role.String(),
		"transactions": nonNil(txs),
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func serverError(w http.ResponseWriter, err error) {
	slog.Error("API request failed", "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
