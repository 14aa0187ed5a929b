// Package engine provides the month-based market simulation loop.
package engine

import (
	"context"
	"fmt"
	"log/slog"
)

// MonthsPerYear sets how often the yearly callback runs.
const MonthsPerYear = 12

// Engine drives the simulation forward one month at a time. Months are
// strictly sequential.
type Engine struct {
	Month int // last completed month (monotonic, never resets)

	// Callbacks for each tick layer, populated during setup.
	OnMonth func(ctx context.Context, month int) error
	OnYear  func(month int)
}

// NewEngine creates an engine starting after month start.
func NewEngine(start int) *Engine {
	return &Engine{Month: start}
}

// Run advances months months, stopping early if ctx is cancelled or a month
// fails.
func (e *Engine) Run(ctx context.Context, months int) error {
	slog.Info("simulation engine started", "month", e.Month, "months", months)
	for i := 0; i < months; i++ {
		if err := ctx.Err(); err != nil {
			slog.Info("simulation engine stopped", "month", e.Month, "reason", err)
			return err
		}
		if err := e.step(ctx); err != nil {
			return fmt.Errorf("month %d: %w", e.Month+1, err)
		}
	}
	slog.Info("simulation engine stopped", "month", e.Month)
	return nil
}

// step advances the simulation by one month.
func (e *Engine) step(ctx context.Context) error {
	next := e.Month + 1
	if e.OnMonth != nil {
		if err := e.OnMonth(ctx, next); err != nil {
			return err
		}
	}
	e.Month = next

	if e.Month%MonthsPerYear == 0 && e.OnYear != nil {
		e.OnYear(e.Month)
	}
	return nil
}

// SimTime returns a human-readable time string from a month number.
func SimTime(month int) string {
	if month <= 0 {
		return "start"
	}
	monthNames := [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}
	return fmt.Sprintf("%s Year %d", monthNames[(month-1)%12], (month-1)/12+1)
}
