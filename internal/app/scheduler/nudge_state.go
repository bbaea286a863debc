package scheduler

import "time"

// nudgeState remembers which (event, start) pairs a user has already been
// nudged about. It lives only in memory and is touched only inside a tick.
type nudgeState struct {
	notified  map[string]struct{}
	lastCheck time.Time
}

func newNudgeState() *nudgeState {
	return &nudgeState{notified: make(map[string]struct{})}
}

func (s *nudgeState) has(key string) bool {
	_, ok := s.notified[key]
	return ok
}

func (s *nudgeState) add(key string) {
	s.notified[key] = struct{}{}
}

func (s *nudgeState) forget(key string) {
	delete(s.notified, key)
}

// retain drops keys whose event is no longer upcoming (it started, moved or
// was cancelled) and returns how many were dropped.
func (s *nudgeState) retain(current map[string]struct{}) int {
	dropped := 0
	for key := range s.notified {
		if _, ok := current[key]; !ok {
			delete(s.notified, key)
			dropped++
		}
	}
	return dropped
}

func (s *nudgeState) size() int {
	return len(s.notified)
}
