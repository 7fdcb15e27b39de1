package transport

import (
	"sync"

	"github.com/bazelment/agentbridge/protocol"
)

// Observers is the callback set for side-channel updates. Any callback may
// be nil; events with no matching callback are dropped at delivery time.
type Observers struct {
	OnUsage             func(protocol.Usage)
	OnPlan              func(protocol.Plan)
	OnAvailableCommands func([]protocol.AvailableCommand)
	OnCurrentMode       func(modeID string)
	OnConfigOption      func(protocol.ConfigOption)
	OnSessionInfo       func(protocol.SessionInfo)
}

// sideChannel routes side-channel updates to the observer set. While no
// observer set is attached it buffers updates in arrival order; attaching a
// set flushes the backlog through it exactly once, then the channel is live.
// Observer wiring in the consuming UI can lag session creation by a render
// cycle, which is why the backlog exists.
type sideChannel struct {
	observers *Observers // nil while buffering
	backlog   []protocol.SessionUpdate
	mu        sync.Mutex
}

// Dispatch routes one update. It reports whether the update was a
// side-channel kind (buffered or delivered); visible-stream updates return
// false untouched.
func (s *sideChannel) Dispatch(u protocol.SessionUpdate) bool {
	if !u.IsSideChannel() {
		return false
	}

	s.mu.Lock()
	obs := s.observers
	if obs == nil {
		s.backlog = append(s.backlog, u)
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()

	deliver(obs, u)
	return true
}

// SetObservers attaches or replaces the observer set. A non-nil set flushes
// the backlog in original arrival order, then clears it; nil returns the
// channel to buffering without discarding the backlog.
func (s *sideChannel) SetObservers(obs *Observers) {
	s.mu.Lock()
	s.observers = obs
	if obs == nil {
		s.mu.Unlock()
		return
	}
	backlog := s.backlog
	s.backlog = nil
	s.mu.Unlock()

	for _, u := range backlog {
		deliver(obs, u)
	}
}

// Observers returns the current observer set, or nil while buffering.
func (s *sideChannel) Observers() *Observers {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observers
}

func deliver(obs *Observers, u protocol.SessionUpdate) {
	switch u.Type {
	case protocol.UpdateTypeUsage:
		if obs.OnUsage != nil && u.Usage != nil {
			obs.OnUsage(*u.Usage)
		}
	case protocol.UpdateTypePlan:
		if obs.OnPlan != nil && u.Plan != nil {
			obs.OnPlan(*u.Plan)
		}
	case protocol.UpdateTypeAvailableCommands:
		if obs.OnAvailableCommands != nil {
			obs.OnAvailableCommands(u.AvailableCommands)
		}
	case protocol.UpdateTypeCurrentMode:
		if obs.OnCurrentMode != nil {
			obs.OnCurrentMode(u.CurrentModeID)
		}
	case protocol.UpdateTypeConfigOption:
		if obs.OnConfigOption != nil && u.ConfigOption != nil {
			obs.OnConfigOption(*u.ConfigOption)
		}
	case protocol.UpdateTypeSessionInfo:
		if obs.OnSessionInfo != nil && u.SessionInfo != nil {
			obs.OnSessionInfo(*u.SessionInfo)
		}
	}
}
