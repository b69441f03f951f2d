package hub

import "sync"

// Subscription is one connected stream. The frames channel is never closed;
// readers select on Done to learn the subscription ended.
type Subscription struct {
	id        string
	accountID int64
	role      string

	frames chan Frame
	done   chan struct{}
	once   sync.Once
}

func (s *Subscription) ID() string { return s.id }
func (s *Subscription) AccountID() int64 { return s.accountID }
func (s *Subscription) Role() string { return s.role }
func (s *Subscription) Frames() <-chan Frame { return s.frames }
func (s *Subscription) Done() <-chan struct{} { return s.done }

// offer never blocks. It fails when the subscription has ended or its buffer
// is full.
func (s *Subscription) offer(f Frame) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.frames <- f:
		return true
	default:
		return false
	}
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.done) })
}
