package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrScriptExhausted is returned when a Script has no answer queued.
var ErrScriptExhausted = errors.New("script exhausted")

// Script is a programmable oracle for tests. Answers are queued per kind and
// consumed in order; a queued error is returned as-is. A handler registered
// for a kind takes precedence over the queue.
type Script struct {
	mu       sync.Mutex
	queues   map[Kind][]any
	handlers map[Kind]func(Request) (any, error)
	calls    []Request
}

// NewScript creates an empty script.
func NewScript() *Script {
	return &Script{
		queues:   make(map[Kind][]any),
		handlers: make(map[Kind]func(Request) (any, error)),
	}
}

// Push queues answers for kind. Values may be decisions, raw strings (sent
// verbatim) or errors.
func (s *Script) Push(kind Kind, answers ...any) *Script {
	s.mu.Lock()
	s.queues[kind] = append(s.queues[kind], answers...)
	s.mu.Unlock()
	return s
}

// Handle answers every request of kind with fn.
func (s *Script) Handle(kind Kind, fn func(Request) (any, error)) *Script {
	s.mu.Lock()
	s.handlers[kind] = fn
	s.mu.Unlock()
	return s
}

// Calls returns the requests seen so far.
func (s *Script) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.calls...)
}

// Decide implements Oracle.
func (s *Script) Decide(ctx context.Context, req Request) ([]byte, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	fn := s.handlers[req.Kind]
	var answer any
	var queued bool
	if fn == nil {
		if q := s.queues[req.Kind]; len(q) > 0 {
			answer, queued = q[0], true
			s.queues[req.Kind] = q[1:]
		}
	}
	s.mu.Unlock()

	if fn != nil {
		a, err := fn(req)
		if err != nil {
			return nil, err
		}
		answer, queued = a, true
	}
	if !queued {
		return nil, fmt.Errorf("%w: %s", ErrScriptExhausted, req.Kind)
	}
	switch a := answer.(type) {
	case error:
		return nil, a
	case string:
		return []byte(a), nil
	}
	return json.Marshal(answer)
}
