// Package session resolves the initial sign-in state of the screen and
// holds the signed-in user for the rest of the application.
package session

import (
	"sync"

	"go.uber.org/zap"

	"octave/identity"
)

// Publisher receives the authenticated user. It is a one-way hand-off.
type Publisher interface {
	Publish(user identity.Identity)
}

// Store is the application-wide holder of the signed-in user.
type Store struct {
	mu       sync.Mutex
	user     *identity.Identity
	watchers []func(identity.Identity)
	logger   *zap.Logger
}

// NewStore creates an empty store.
func NewStore(logger *zap.Logger) *Store {
	return &Store{logger: logger}
}

// Publish records user as signed in and notifies watchers.
func (s *Store) Publish(user identity.Identity) {
	s.mu.Lock()
	s.user = &user
	watchers := append([]func(identity.Identity){}, s.watchers...)
	s.mu.Unlock()

	s.logger.Info("User logged in", zap.String("uid", user.UID), zap.String("email", user.Email))
	for _, w := range watchers {
		w(user)
	}
}

// Current returns the signed-in user.
func (s *Store) Current() (identity.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return identity.Identity{}, false
	}
	return *s.user, true
}

// Watch registers fn for every later Publish.
func (s *Store) Watch(fn func(identity.Identity)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
}
