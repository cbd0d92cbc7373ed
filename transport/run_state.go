package transport

import (
	"sync"

	"github.com/LordOfDragons/deremotelauncher-sub000/protocol"
)

// LinkedRunState is a mutex-guarded mirror of one side's run-status byte,
// pushed over the connection instead of polled. It plays the role of the
// original's linked network value for the game's run state: the launcher
// client is the writer (it alone knows whether the game process is
// running), the server is the reader (it only ever observes pushes), and
// every change is carried as a MessageLinkRunState frame rather than a
// request/response pair.
type LinkedRunState struct {
	mu     sync.Mutex
	status protocol.RunStateStatus
	onSet  func(protocol.RunStateStatus)
}

// NewLinkedRunState creates a state starting out stopped. onChanged, if
// non-nil, is called (without the state's lock held) whenever Set changes
// the value — the reader side uses this to notice pushes without polling.
func NewLinkedRunState(onChanged func(protocol.RunStateStatus)) *LinkedRunState {
	return &LinkedRunState{status: protocol.RunStateStopped, onSet: onChanged}
}

// Get returns the current status.
func (s *LinkedRunState) Get() protocol.RunStateStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Set updates the status. Called by the writer side after a local run-state
// transition, and by the reader side when applying a pushed update; either
// way the stored value and the wire are kept in sync by the caller.
func (s *LinkedRunState) Set(status protocol.RunStateStatus) {
	s.mu.Lock()
	changed := s.status != status
	s.status = status
	s.mu.Unlock()

	if changed && s.onSet != nil {
		s.onSet(status)
	}
}
