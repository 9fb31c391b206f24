package session

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"octave/identity"
)

// DefaultTimeout bounds how long the screen waits for the provider's first
// session report before showing the form.
const DefaultTimeout = 3 * time.Second

// State is the screen's view of the session.
type State int

const (
	Loading State = iota
	Unauthenticated
	Authenticated
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Resolution is a session transition reported by the Bootstrapper.
type Resolution struct {
	State State
	// User is set when State is Authenticated.
	User identity.Identity
	// TimedOut marks an Unauthenticated resolution caused by the timeout.
	TimedOut bool
}

type stopper interface {
	Stop() bool
}

// Bootstrapper races the provider's first session report against a timeout.
// The first of the two decides the initial state; the other is ignored.
//
// After an Unauthenticated resolution the subscription stays open so a
// sign-in made through the form still arrives as one Authenticated event.
// Once Authenticated, the Store owns the session and nothing more is
// emitted. Every report after Stop is dropped.
type Bootstrapper struct {
	sub     identity.Subscriber
	store   Publisher
	timeout time.Duration
	logger  *zap.Logger

	afterFunc func(time.Duration, func()) stopper

	mu          sync.Mutex
	state       State
	started     bool
	stopped     bool
	events      chan Resolution
	done        chan struct{}
	timer       stopper
	unsubscribe func()
}

// NewBootstrapper creates a bootstrapper. A non-positive timeout means DefaultTimeout.
func NewBootstrapper(sub identity.Subscriber, store Publisher, timeout time.Duration, logger *zap.Logger) *Bootstrapper {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Bootstrapper{
		sub:     sub,
		store:   store,
		timeout: timeout,
		logger:  logger,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		// At most two events: the initial resolution and one later sign-in.
		events: make(chan Resolution, 2),
		done:   make(chan struct{}),
	}
}

// Start arms the timeout and subscribes to the provider. Calling it again
// returns the same channel.
func (b *Bootstrapper) Start() <-chan Resolution {
	b.mu.Lock()
	if b.started || b.stopped {
		b.mu.Unlock()
		return b.events
	}
	b.started = true
	b.timer = b.afterFunc(b.timeout, b.expire)
	b.mu.Unlock()

	b.logger.Debug("Session bootstrap started", zap.Duration("timeout", b.timeout))

	unsubscribe := b.sub.Subscribe(b.report)

	b.mu.Lock()
	if b.stopped {
		// Stop ran while subscribing.
		b.mu.Unlock()
		unsubscribe()
		return b.events
	}
	b.unsubscribe = unsubscribe
	b.mu.Unlock()
	return b.events
}

// Done is closed by Stop.
func (b *Bootstrapper) Done() <-chan struct{} {
	return b.done
}

// State returns the current session state.
func (b *Bootstrapper) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stop cancels the timeout and unsubscribes. It is safe to call more than once.
func (b *Bootstrapper) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	if b.timer != nil {
		b.timer.Stop()
	}
	unsubscribe := b.unsubscribe
	b.unsubscribe = nil
	close(b.done)
	b.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	b.logger.Debug("Session bootstrap stopped")
}

// report handles a provider session report.
func (b *Bootstrapper) report(user *identity.Identity) {
	b.mu.Lock()
	if b.stopped || b.state == Authenticated {
		b.mu.Unlock()
		return
	}

	if user == nil {
		if b.state != Loading {
			b.mu.Unlock()
			return
		}
		b.state = Unauthenticated
		b.timer.Stop()
		b.events <- Resolution{State: Unauthenticated}
		b.mu.Unlock()
		b.logger.Info("Session resolved", zap.Stringer("state", Unauthenticated))
		return
	}

	initial := b.state == Loading
	b.state = Authenticated
	b.timer.Stop()
	b.mu.Unlock()

	// The store must know the user before anyone acts on the event.
	b.store.Publish(*user)
	b.logger.Info("Session resolved",
		zap.Stringer("state", Authenticated),
		zap.String("uid", user.UID),
		zap.Bool("initial", initial))

	b.mu.Lock()
	if !b.stopped {
		b.events <- Resolution{State: Authenticated, User: *user}
	}
	b.mu.Unlock()
}

// expire handles the timeout.
func (b *Bootstrapper) expire() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped || b.state != Loading {
		return
	}
	b.state = Unauthenticated
	b.events <- Resolution{State: Unauthenticated, TimedOut: true}
	b.logger.Info("Session bootstrap timed out", zap.Duration("timeout", b.timeout))
}
