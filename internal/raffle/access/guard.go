package access

import (
	"sync/atomic"

	apperrors "github.com/louisbranch/sortition/internal/platform/errors"
)

// Switch is a per-component halt flag. While paused, state-mutating entry
// points fail fast; read-only queries stay available.
type Switch struct {
	component string
	paused    atomic.Bool
}

// NewSwitch creates a pause switch for the named component.
func NewSwitch(component string) *Switch {
	return &Switch{component: component}
}

// Pause halts the component.
func (s *Switch) Pause() {
	s.paused.Store(true)
}

// Unpause resumes the component.
func (s *Switch) Unpause() {
	s.paused.Store(false)
}

// Paused reports whether the component is halted.
func (s *Switch) Paused() bool {
	return s.paused.Load()
}

// Component returns the component name the switch guards.
func (s *Switch) Component() string {
	return s.component
}

// Require returns a component-paused error when the switch is engaged.
func (s *Switch) Require() error {
	if s.Paused() {
		return apperrors.WithMetadata(
			apperrors.CodeComponentPaused,
			s.component+" is paused",
			map[string]string{"component": s.component},
		)
	}
	return nil
}

// Guard is the in-progress flag that rejects re-entrant calls into a
// component. Cross-component calls inside one operation run synchronously,
// so a callback that re-enters the component before the operation finishes
// would observe half-applied state; the guard turns that into a hard error.
//
// The guard does not block: an overlapping call fails instead of waiting,
// which also makes violations of the one-at-a-time calling contract
// observable rather than silently serialized.
type Guard struct {
	component  string
	inProgress atomic.Bool
}

// NewGuard creates a reentrancy guard for the named component.
func NewGuard(component string) *Guard {
	return &Guard{component: component}
}

// Enter marks an operation in progress. The returned release function must
// be called on every exit path, success and failure alike; callers defer it
// immediately.
func (g *Guard) Enter() (release func(), err error) {
	if !g.inProgress.CompareAndSwap(false, true) {
		return nil, apperrors.WithMetadata(
			apperrors.CodeReentrantCall,
			"operation already in progress on "+g.component,
			map[string]string{"component": g.component},
		)
	}
	return func() { g.inProgress.Store(false) }, nil
}
