package ticker

import "sync"

// observerSet is a copy-on-write list of observers. Subscribing or
// unsubscribing during delivery is safe; the change applies from the next tick.
type observerSet struct {
	mu   sync.RWMutex
	next uint64
	subs []subscription
}

type subscription struct {
	id uint64
	fn Observer
}

func (s *observerSet) add(fn Observer) func() {
	s.mu.Lock()
	s.next++
	subID := s.next
	subs := make([]subscription, 0, len(s.subs)+1)
	subs = append(subs, s.subs...)
	s.subs = append(subs, subscription{id: subID, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(subID) })
	}
}

func (s *observerSet) remove(subID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := make([]subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.id != subID {
			subs = append(subs, sub)
		}
	}
	s.subs = subs
}

func (s *observerSet) notify(t Tick) {
	s.mu.RLock()
	subs := s.subs
	s.mu.RUnlock()

	for _, sub := range subs {
		sub.fn(t)
	}
}

// channelSink lazily creates the buffered channel behind Channel.
type channelSink struct {
	mu     sync.Mutex
	ch     chan Tick
	closed bool
}

func (s *channelSink) channel(buffer int, observers *observerSet, onDrop func()) <-chan Tick {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ch != nil {
		return s.ch
	}
	s.ch = make(chan Tick, buffer)
	if s.closed {
		close(s.ch)
		return s.ch
	}

	ch := s.ch
	observers.add(func(t Tick) {
		// Non-blocking send
		select {
		case ch <- t:
		default:
			// Channel full, drop this tick (prevents blocking the delivery goroutine)
			onDrop()
		}
	})
	return ch
}

// close must only run once no further deliveries can happen.
func (s *channelSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	if s.ch != nil {
		close(s.ch)
	}
}
