// Package status derives and publishes the per-session presence indicator
// shown next to a conversation: a colored dot with a solid or pulsing style.
//
// The indicator is computed from the latest known session status plus a
// pending-approvals flag, independently of the chunk stream, so the UI can
// show liveness even for sessions whose transcript is not on screen.
package status

import "sync"

// SessionStatus is the coarse lifecycle state reported by the transport.
type SessionStatus string

const (
	StatusInitializing SessionStatus = "initializing"
	StatusSubmitted    SessionStatus = "submitted"
	StatusStreaming    SessionStatus = "streaming"
	StatusReady        SessionStatus = "ready"
	StatusError        SessionStatus = "error"
)

// DotColor is the indicator color.
type DotColor string

const (
	ColorGray  DotColor = "gray"
	ColorGreen DotColor = "green"
	ColorAmber DotColor = "amber"
	ColorRed   DotColor = "red"
)

// DotStyle is the indicator animation style.
type DotStyle string

const (
	StyleSolid   DotStyle = "solid"
	StylePulsing DotStyle = "pulsing"
)

// Dot is the derived presence indicator.
type Dot struct {
	Color DotColor
	Style DotStyle
}

// DeriveDot computes the indicator for a status and pending-approvals flag.
// Pending approvals win over any status.
func DeriveDot(st SessionStatus, pendingApprovals bool) Dot {
	if pendingApprovals {
		return Dot{Color: ColorRed, Style: StylePulsing}
	}
	switch st {
	case StatusStreaming, StatusSubmitted:
		return Dot{Color: ColorAmber, Style: StylePulsing}
	case StatusReady:
		return Dot{Color: ColorGreen, Style: StyleSolid}
	case StatusError:
		return Dot{Color: ColorRed, Style: StyleSolid}
	default:
		return Dot{Color: ColorGray, Style: StyleSolid}
	}
}

type entry struct {
	status  SessionStatus
	pending bool
}

// Store is a keyed publish/subscribe registry of session status entries.
// Listeners receive the derived Dot, not the raw status.
type Store struct {
	entries   map[string]entry
	listeners map[string]map[int]func(Dot)
	mu        sync.Mutex
	nextID    int
}

// NewStore creates an empty status store.
func NewStore() *Store {
	return &Store{
		entries:   make(map[string]entry),
		listeners: make(map[string]map[int]func(Dot)),
	}
}

// SetStatus records the latest status and pending-approvals flag for a key
// and notifies subscribers with the newly derived dot. The entry is created
// on first report.
func (s *Store) SetStatus(key string, st SessionStatus, pendingApprovals bool) {
	s.mu.Lock()
	s.entries[key] = entry{status: st, pending: pendingApprovals}
	fns := s.snapshotLocked(key)
	s.mu.Unlock()

	dot := DeriveDot(st, pendingApprovals)
	for _, fn := range fns {
		fn(dot)
	}
}

// Dot returns the derived indicator for a key. Unknown keys derive as
// initializing (gray, solid).
func (s *Store) Dot(key string) Dot {
	s.mu.Lock()
	e := s.entries[key]
	s.mu.Unlock()
	if e.status == "" {
		return DeriveDot(StatusInitializing, false)
	}
	return DeriveDot(e.status, e.pending)
}

// Subscribe registers a listener for a key and invokes it synchronously with
// the current derived value before any future updates. The returned
// unsubscribe is idempotent; removing the last listener for a key releases
// that key's listener set but not the status entry.
func (s *Store) Subscribe(key string, fn func(Dot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	set := s.listeners[key]
	if set == nil {
		set = make(map[int]func(Dot))
		s.listeners[key] = set
	}
	set[id] = fn
	s.mu.Unlock()

	fn(s.Dot(key))

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if set, ok := s.listeners[key]; ok {
				delete(set, id)
				if len(set) == 0 {
					delete(s.listeners, key)
				}
			}
			s.mu.Unlock()
		})
	}
}

// Remove deletes a key's status entry and listeners. Called when the
// session is disposed.
func (s *Store) Remove(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	delete(s.listeners, key)
	s.mu.Unlock()
}

// snapshotLocked copies the listener set for a key. Caller must hold s.mu.
func (s *Store) snapshotLocked(key string) []func(Dot) {
	set := s.listeners[key]
	if len(set) == 0 {
		return nil
	}
	fns := make([]func(Dot), 0, len(set))
	for _, fn := range set {
		fns = append(fns, fn)
	}
	return fns
}
