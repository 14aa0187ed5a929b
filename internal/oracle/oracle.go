// Package oracle is the boundary to the decision source that drives agent
// choices. Every call site asks for a typed decision and supplies a default;
// transport errors, timeouts and malformed payloads fall back to that default
// and are recorded in the journal instead of surfacing as errors.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Kind identifies the decision being requested.
type Kind string

const (
	KindRole        Kind = "role"
	KindExit        Kind = "exit"
	KindListing     Kind = "listing"
	KindPriceReview Kind = "price_review"
	KindFormat      Kind = "negotiation_format"
	KindBuyerMove   Kind = "buyer_move"
	KindSellerMove  Kind = "seller_move"
	KindBid         Kind = "sealed_bid"
	KindFlash       Kind = "flash_response"
)

// ErrUnsupported is returned by an oracle for kinds it cannot answer.
var ErrUnsupported = errors.New("unsupported decision kind")

// Request is one decision query. Context holds the kind-specific context
// struct (RoleContext for KindRole, ExitContext for KindExit and so on).
type Request struct {
	Kind    Kind   `json:"kind"`
	Month   int    `json:"month"`
	Subject uint64 `json:"subject"` // agent or property the decision is about
	Context any    `json:"context"`
}

// Oracle returns a JSON-encoded decision for a request.
type Oracle interface {
	Decide(ctx context.Context, req Request) ([]byte, error)
}

// Decision is a typed oracle answer that can check its own shape.
type Decision interface {
	Validate() error
}

// Client wraps an Oracle with a per-call timeout and a journal.
type Client struct {
	oracle  Oracle
	timeout time.Duration
	journal *Journal
}

// NewClient creates a client. A zero timeout disables the per-call deadline.
// A nil journal gets a fresh one.
func NewClient(o Oracle, timeout time.Duration, j *Journal) *Client {
	if j == nil {
		j = NewJournal()
	}
	return &Client{oracle: o, timeout: timeout, journal: j}
}

// Journal returns the client's decision journal.
func (c *Client) Journal() *Journal { return c.journal }

// Correct records an invariant correction made by the caller.
func (c *Client) Correct(month int, kind Kind, subject uint64, note string) {
	c.journal.Record(Entry{Month: month, Kind: kind, Subject: subject, Note: note})
	slog.Debug("decision corrected", "kind", kind, "subject", subject, "note", note)
}

// Ask queries the oracle and decodes the answer into T. On any failure it
// returns def and false. Every call is journaled.
func Ask[T Decision](ctx context.Context, c *Client, req Request, def T) (T, bool) {
	out, raw, err := ask(ctx, c, req)
	if err == nil {
		var d T
		if err = json.Unmarshal(out, &d); err == nil {
			if err = d.Validate(); err == nil {
				c.journal.Record(Entry{Month: req.Month, Kind: req.Kind, Subject: req.Subject, Payload: string(out)})
				return d, true
			}
		}
		err = fmt.Errorf("decode %s decision: %w", req.Kind, err)
	}

	payload, _ := json.Marshal(def)
	c.journal.Record(Entry{
		Month:    req.Month,
		Kind:     req.Kind,
		Subject:  req.Subject,
		Payload:  string(payload),
		Fallback: true,
		Note:     err.Error(),
	})
	slog.Debug("oracle fallback", "kind", req.Kind, "subject", req.Subject, "raw_len", len(raw), "err", err)
	return def, false
}

func ask(ctx context.Context, c *Client, req Request) ([]byte, []byte, error) {
	if c == nil || c.oracle == nil {
		return nil, nil, errors.New("no oracle configured")
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	raw, err := c.oracle.Decide(ctx, req)
	if err != nil {
		return nil, raw, fmt.Errorf("%s decision: %w", req.Kind, err)
	}
	if ctx.Err() != nil {
		return nil, raw, fmt.Errorf("%s decision: %w", req.Kind, ctx.Err())
	}
	return raw, raw, nil
}
