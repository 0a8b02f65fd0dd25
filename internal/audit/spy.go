package audit

import (
	"context"
	"sync"
)

// Spy is a Sink that collects events in memory. Used by service tests
// to assert on the emitted trail.
type Spy struct {
	mu     sync.Mutex
	Events []Event
}

func (s *Spy) Record(_ context.Context, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, ev)
}

// Actions returns the recorded action names in order.
func (s *Spy) Actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Events))
	for i, ev := range s.Events {
		out[i] = ev.Action
	}
	return out
}
