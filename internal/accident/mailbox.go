package accident

import "sync"

// frameSlot is a single-slot, keep-latest mailbox for frames.
//
// Producers overwrite an unconsumed frame and the overwrite is counted as a
// drop. The consumer selects on ready() and then calls take().
type frameSlot struct {
	mu     sync.Mutex
	frame  *Frame
	closed bool
	ready  chan struct{}

	consecutiveDrops uint64
	totalDrops       uint64
}

func newFrameSlot() *frameSlot {
	return &frameSlot{ready: make(chan struct{}, 1)}
}

// put stores f, replacing any unconsumed frame. It reports whether a frame was
// overwritten. put never blocks and is a no-op once the slot is closed.
func (s *frameSlot) put(f Frame) (dropped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if s.frame != nil {
		s.consecutiveDrops++
		s.totalDrops++
		dropped = true
	}
	s.frame = &f

	select {
	case s.ready <- struct{}{}:
	default:
	}
	return dropped
}

// take returns the pending frame, if any.
func (s *frameSlot) take() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frame == nil || s.closed {
		return Frame{}, false
	}
	f := *s.frame
	s.frame = nil
	s.consecutiveDrops = 0
	return f, true
}

// close discards the pending frame and rejects further puts.
func (s *frameSlot) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.frame = nil
}

func (s *frameSlot) drops() (consecutive, total uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consecutiveDrops, s.totalDrops
}
