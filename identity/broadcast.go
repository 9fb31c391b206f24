package identity

import (
	"sync"
	"sync/atomic"
)

// subscription serialises deliveries to one listener and drops stale ones.
type subscription struct {
	mu     sync.Mutex
	fn     Listener
	last   uint64
	closed atomic.Bool
}

func (s *subscription) deliver(version uint64, id *Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() || version <= s.last {
		return
	}
	s.last = version
	s.fn(id)
}

// broadcaster fans session changes out to listeners, the way both providers
// report them. Nothing is delivered until the first call to set.
type broadcaster struct {
	mu      sync.Mutex
	subs    map[*subscription]struct{}
	known   bool
	current *Identity
	version uint64
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[*subscription]struct{})}
}

// Subscribe implements Subscriber.
func (b *broadcaster) Subscribe(fn Listener) func() {
	sub := &subscription{fn: fn}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	known, current, version := b.known, cloneIdentity(b.current), b.version
	b.mu.Unlock()

	if known {
		go sub.deliver(version, current)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.closed.Store(true)
			b.mu.Lock()
			delete(b.subs, sub)
			b.mu.Unlock()
		})
	}
}

// set records the current session and notifies every listener.
func (b *broadcaster) set(id *Identity) {
	b.mu.Lock()
	b.known = true
	b.current = cloneIdentity(id)
	b.version++
	version := b.version
	subs := make([]*subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		go sub.deliver(version, cloneIdentity(id))
	}
}

// snapshot returns the current session, if any.
func (b *broadcaster) snapshot() *Identity {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cloneIdentity(b.current)
}

func cloneIdentity(id *Identity) *Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
