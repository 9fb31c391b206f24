package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

// App is the main TUI application model.
type App struct {
	screen Screen
	ctx    *Context
}

// NewApp creates the application with the sign-in screen showing.
func NewApp(ctx *Context) *App {
	return &App{
		screen: NewSignInScreen(ctx),
		ctx:    ctx,
	}
}

// Init initializes the application.
func (a *App) Init() tea.Cmd {
	return a.screen.Init()
}

// Update handles messages and updates the application state.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		// Global quit commands
		switch msg.String() {
		case "ctrl+c", "ctrl+q":
			return a, tea.Quit
		}
	}

	// Delegate to current screen
	newScreen, cmd := a.screen.Update(msg)
	if newScreen != a.screen {
		if closer, ok := a.screen.(Closer); ok {
			closer.Close()
		}
		a.ctx.Logger.Debug("Screen replaced", zap.String("screen", screenName(newScreen)))
		a.screen = newScreen
		cmd = tea.Batch(cmd, newScreen.Init())
	}
	return a, cmd
}

// View renders the application.
func (a *App) View() string {
	return a.screen.View()
}

// Screen returns the screen currently shown.
func (a *App) Screen() Screen {
	return a.screen
}

// Close cleans up resources.
func (a *App) Close() {
	if closer, ok := a.screen.(Closer); ok {
		closer.Close()
	}
	if a.ctx.ClipboardManager != nil {
		a.ctx.ClipboardManager.ClearNow()
		a.ctx.ClipboardManager.Close()
	}
}

func screenName(s Screen) string {
	switch s.(type) {
	case *SignInScreen:
		return "signin"
	case *HomeScreen:
		return "home"
	default:
		return "unknown"
	}
}
