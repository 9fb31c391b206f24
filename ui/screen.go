package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"octave/clipboard"
	"octave/identity"
	"octave/session"
	"octave/signin"
)

// Screen represents a UI screen that can handle updates and render itself.
type Screen interface {
	Init() tea.Cmd
	Update(msg tea.Msg) (Screen, tea.Cmd)
	View() string
}

// Closer is implemented by screens that hold resources. The app closes a
// screen when it is replaced and on exit.
type Closer interface {
	Close()
}

// sessionMsg carries a bootstrapper resolution to the event loop.
type sessionMsg struct {
	resolution session.Resolution
}

// attemptDoneMsg carries the outcome of a submission back to the event loop.
type attemptDoneMsg struct {
	attempt *signin.Attempt
	err     error
}

// DeviceCodeMsg is sent when Google sign-in needs the user to approve a
// code on another device.
type DeviceCodeMsg identity.DeviceCode

// Context holds shared application state and dependencies.
type Context struct {
	Provider         identity.Provider
	Store            *session.Store
	ClipboardManager *clipboard.Manager
	Config           *Config
	Logger           *zap.Logger
	// Base bounds every provider call; cancelled on shutdown.
	Base context.Context
}

func (c *Context) base() context.Context {
	if c.Base == nil {
		return context.Background()
	}
	return c.Base
}

// Config holds UI configuration.
type Config struct {
	BootstrapTimeout time.Duration
	SubmitTimeout    time.Duration
	ClipboardTimeout time.Duration
	RecoveryURL      string
}
