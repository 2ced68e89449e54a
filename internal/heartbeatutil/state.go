package heartbeatutil

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultFailureThreshold = 3

// State tracks consecutive failures of a periodic loop and raises an alert
// once every Threshold failures in a row.
type State struct {
	Name      string
	Threshold int

	mu          sync.Mutex
	running     bool
	failures    int
	lastSuccess time.Time
	lastError   string
	lastRun     time.Time
}

type Snapshot struct {
	Failures    int       `json:"failures"`
	LastSuccess time.Time `json:"last_success,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	LastRun     time.Time `json:"last_run,omitempty"`
	Running     bool      `json:"running"`
}

func (s *State) Start(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	s.lastRun = now
	return true
}

func (s *State) EndSuccess(now time.Time) {
	s.mu.Lock()
	s.running = false
	s.failures = 0
	s.lastError = ""
	s.lastSuccess = now
	s.mu.Unlock()
}

// EndFailure records err and reports whether the failure streak reached the
// threshold, with an alert message when it did.
func (s *State) EndFailure(err error) (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.failures++
	if err != nil {
		s.lastError = strings.TrimSpace(err.Error())
	}
	threshold := s.Threshold
	if threshold <= 0 {
		threshold = defaultFailureThreshold
	}
	if s.failures%threshold != 0 {
		return false, ""
	}
	name := strings.TrimSpace(s.Name)
	if name == "" {
		name = "loop"
	}
	msg := fmt.Sprintf("%s failing (%d in a row)", name, s.failures)
	if s.lastError != "" {
		msg = fmt.Sprintf("%s: %s", msg, s.lastError)
	}
	return true, msg
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Failures:    s.failures,
		LastSuccess: s.lastSuccess,
		LastError:   s.lastError,
		LastRun:     s.lastRun,
		Running:     s.running,
	}
}
