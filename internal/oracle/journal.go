package oracle

import (
	"cmp"
	"slices"
	"sync"
)

// Entry is one journaled decision. Fallback marks answers that came from the
// caller's default; Note carries the failure reason or a correction note.
type Entry struct {
	Month    int    `json:"month" db:"month"`
	Kind     Kind   `json:"kind" db:"kind"`
	Subject  uint64 `json:"subject" db:"subject"`
	Payload  string `json:"payload" db:"payload"`
	Fallback bool   `json:"fallback" db:"fallback"`
	Note     string `json:"note,omitempty" db:"note"`
}

// Journal collects decision entries. Safe for concurrent use.
type Journal struct {
	mu      sync.Mutex
	entries []Entry
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{}
}

// Record appends an entry.
func (j *Journal) Record(e Entry) {
	j.mu.Lock()
	j.entries = append(j.entries, e)
	j.mu.Unlock()
}

// Len returns the number of pending entries.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// Drain returns all pending entries ordered by (Month, Kind, Subject) and
// empties the journal. Entries sharing a key keep their recording order, so a
// negotiation's rounds stay in sequence while concurrent fan-outs come out the
// same way on every run.
func (j *Journal) Drain() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := j.entries
	j.entries = nil
	slices.SortStableFunc(out, func(a, b Entry) int {
		return cmp.Or(
			cmp.Compare(a.Month, b.Month),
			cmp.Compare(a.Kind, b.Kind),
			cmp.Compare(a.Subject, b.Subject),
		)
	})
	return out
}
