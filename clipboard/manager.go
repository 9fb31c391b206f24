// Package clipboard copies short-lived codes to the system clipboard and
// wipes them again after a timeout.
package clipboard

import (
	"fmt"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"go.uber.org/zap"
)

// Manager handles clipboard writes with automatic clearing.
// Uses a single timer to prevent goroutine leaks.
type Manager struct {
	mu     sync.Mutex
	timer  *time.Timer
	copied string
	write  func(string) error
	read   func() (string, error)
	logger *zap.Logger
}

// NewManager creates a manager backed by the system clipboard.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		write:  clipboard.WriteAll,
		read:   clipboard.ReadAll,
		logger: logger,
	}
}

// Copy puts text on the clipboard and clears it after timeout, unless the
// user has copied something else in the meantime.
func (m *Manager) Copy(text string, timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}

	if err := m.write(text); err != nil {
		return fmt.Errorf("failed to write to clipboard: %w", err)
	}
	m.copied = text

	m.timer = time.AfterFunc(timeout, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.clearOwned()
	})

	return nil
}

// clearOwned wipes the clipboard if it still holds what we copied. Callers hold m.mu.
func (m *Manager) clearOwned() {
	if m.copied == "" {
		return
	}
	if current, err := m.read(); err == nil && current != m.copied {
		m.copied = ""
		return
	}
	if err := m.write(""); err != nil {
		m.logger.Warn("Failed to clear clipboard", zap.Error(err))
		return
	}
	m.copied = ""
}

// ClearNow clears what we copied and cancels any pending auto-clear.
func (m *Manager) ClearNow() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.clearOwned()
}

// Close stops any pending timers. Should be called on program exit.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}
