package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slowOracle struct{}

func (slowOracle) Decide(ctx context.Context, _ Request) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAskDecodes(t *testing.T) {
	s := NewScript().Push(KindExit, ExitDecision{Action: ActionExit, Reason: "tired"})
	c := NewClient(s, time.Second, nil)

	got, ok := Ask(context.Background(), c, Request{Kind: KindExit, Month: 3, Subject: 9}, ExitDecision{Action: ActionStay})
	require.True(t, ok)
	assert.Equal(t, ActionExit, got.Action)

	entries := c.Journal().Drain()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Fallback)
	assert.Equal(t, uint64(9), entries[0].Subject)
	assert.Equal(t, 3, entries[0].Month)
	assert.Zero(t, c.Journal().Len())
}

func TestAskFallsBack(t *testing.T) {
	def := SellerMove{Action: MoveReject}
	tests := []struct {
		name   string
		answer any
	}{
		{"transport error", errors.New("connection reset")},
		{"malformed json", `{"action": `},
		{"invalid action", SellerMove{Action: "SHRUG"}},
		{"counter without price", SellerMove{Action: MoveCounter}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(NewScript().Push(KindSellerMove, tt.answer), time.Second, nil)
			got, ok := Ask(context.Background(), c, Request{Kind: KindSellerMove}, def)
			assert.False(t, ok)
			assert.Equal(t, def, got)

			entries := c.Journal().Drain()
			require.Len(t, entries, 1)
			assert.True(t, entries[0].Fallback)
			assert.NotEmpty(t, entries[0].Note)
			assert.JSONEq(t, `{"action":"REJECT"}`, entries[0].Payload)
		})
	}
}

func TestAskTimeout(t *testing.T) {
	c := NewClient(slowOracle{}, 10*time.Millisecond, nil)
	got, ok := Ask(context.Background(), c, Request{Kind: KindBid}, Bid{})
	assert.False(t, ok)
	assert.Zero(t, got.Price)
}

func TestAskWithoutOracle(t *testing.T) {
	c := NewClient(nil, 0, nil)
	got, ok := Ask(context.Background(), c, Request{Kind: KindFlash}, FlashResponse{})
	assert.False(t, ok)
	assert.False(t, got.Accept)
}

func TestCorrectRecordsNote(t *testing.T) {
	c := NewClient(nil, 0, NewJournal())
	c.Correct(2, KindRole, 14, "SELLER without property downgraded to OBSERVER")
	e := c.Journal().Drain()
	require.Len(t, e, 1)
	assert.Contains(t, e[0].Note, "downgraded")
	assert.False(t, e[0].Fallback)
}

func TestDrainOrdersConcurrentEntries(t *testing.T) {
	j := NewJournal()
	var wg sync.WaitGroup
	for subject := range uint64(8) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for round := range 3 {
				j.Record(Entry{Month: 1, Kind: KindBuyerMove, Subject: 8 - subject, Payload: fmt.Sprint(round)})
			}
		}()
	}
	j.Record(Entry{Month: 1, Kind: KindRole, Subject: 1})
	j.Record(Entry{Month: 0, Kind: KindSellerMove, Subject: 3})
	wg.Wait()

	entries := j.Drain()
	require.Len(t, entries, 26)
	assert.Equal(t, 0, entries[0].Month)
	assert.Equal(t, KindBuyerMove, entries[1].Kind)
	assert.Equal(t, KindRole, entries[25].Kind)
	for i, e := range entries[1:25] {
		assert.Equal(t, uint64(i/3+1), e.Subject)
		assert.Equal(t, fmt.Sprint(i%3), e.Payload, "rounds keep their order within a subject")
	}
	assert.Zero(t, j.Len())
}

func TestRoleBatchValidate(t *testing.T) {
	assert.NoError(t, RoleBatch{Decisions: []RoleDecision{{AgentID: 1, Role: "BUYER"}, {AgentID: 2, Role: "OBSERVER"}}}.Validate())
	assert.Error(t, RoleBatch{Decisions: []RoleDecision{{AgentID: 1, Role: "LANDLORD"}}}.Validate())
	assert.Error(t, RoleBatch{Decisions: []RoleDecision{{AgentID: 1, Role: "BUYER"}, {AgentID: 1, Role: "SELLER"}}}.Validate())
}

func TestFormatValidate(t *testing.T) {
	assert.NoError(t, FormatDecision{Format: FormatFlash, Discount: 0.1}.Validate())
	assert.Error(t, FormatDecision{Format: "auction"}.Validate())
	assert.Error(t, FormatDecision{Format: FormatFlash, Discount: 1.2}.Validate())
}

func TestScriptHandlerAndExhaustion(t *testing.T) {
	s := NewScript().Handle(KindBid, func(r Request) (any, error) {
		return Bid{Price: int64(r.Subject) * 10}, nil
	})
	c := NewClient(s, 0, nil)
	got, ok := Ask(context.Background(), c, Request{Kind: KindBid, Subject: 7}, Bid{})
	require.True(t, ok)
	assert.Equal(t, int64(70), got.Price)

	_, err := s.Decide(context.Background(), Request{Kind: KindExit})
	assert.ErrorIs(t, err, ErrScriptExhausted)
	assert.Len(t, s.Calls(), 2)
}
